package config

// builtinPrompts are the prompt templates shipped with the binary. User
// configuration may override any of them by redefining the same prompt type.
// Placeholders use {{.key}} syntax and are substituted from the call's
// mapping values by the gateway.
func builtinPrompts() map[PromptType]*PromptConfig {
	return map[PromptType]*PromptConfig{
		PromptPlanner: {
			ModelType:  ModelTypeReasoning,
			Creativity: CreativityBalanced,
			System: `You are a task planner for a software-engineering assistant.
Break the user's request into descriptive requirements. Each requirement states
WHAT must happen, not which tool does it. Also produce a goal graph: every goal
has an integer goalId, a goalIntent, and dependsOn listing the goalIds that
must finish first. Goals without a dependency path between them are
independent and may run in parallel.

Available tools:
{{.toolCatalog}}

Respond with JSON only, conforming to the requested schema.`,
			User: `Conversation summary:
{{.contextSummary}}

User request:
{{.question}}`,
		},
		PromptToolReasoning: {
			ModelType:  ModelTypeReasoning,
			Creativity: CreativityStrict,
			System: `You map descriptive requirements onto concrete tools. For each
requirement pick exactly one tool from the catalog, explain the choice in one
sentence, and extract string parameters the tool needs.

Available tools:
{{.toolCatalog}}

Respond with JSON only, conforming to the requested schema.`,
			User: `Requirements:
{{.requirements}}`,
		},
		PromptSynthesis: {
			ModelType:  ModelTypeChat,
			Creativity: CreativityBalanced,
			System: `You synthesize retrieved knowledge-base fragments into one coherent
answer. Use only the supplied fragments; when they disagree, prefer the ones
with higher scores. State plainly when the fragments do not answer the
question.`,
			User: `Question:
{{.question}}

Retrieved fragments:
{{.fragments}}`,
		},
		PromptFinalizer: {
			ModelType:  ModelTypeChat,
			Creativity: CreativityBalanced,
			System: `You write the final user-visible answer for a completed task. Combine
the step results into a direct answer in the user's language. If the task
failed, explain what was attempted and why it could not finish. Never expose
stack traces or internal identifiers.`,
			User: `Original question:
{{.question}}

Step results:
{{.stepResults}}`,
		},
		PromptRecoveryReasoning: {
			ModelType:  ModelTypeReasoning,
			Creativity: CreativityBalanced,
			System: `A plan step failed. Decide how to continue: propose replacement
requirements that achieve the remaining goals while avoiding the failure
cause. Respond with JSON only, conforming to the requested schema.`,
			User: `Failed step:
{{.failedStep}}

Failure:
{{.failure}}

Remaining goals:
{{.remainingGoals}}`,
		},
		PromptAnalysis: {
			ModelType:  ModelTypeReasoning,
			Creativity: CreativityBalanced,
			System: `You are an analysis engine. Reason over the supplied context and
produce a concise, well-grounded analysis of the task. Distinguish between
conclusions supported by the context and assumptions.`,
			User: `Task:
{{.task}}

Context:
{{.context}}`,
		},
		PromptRequirement: {
			ModelType:  ModelTypeChat,
			Creativity: CreativityStrict,
			System: `Extract a structured user requirement from the task description:
title, description, keywords, and priority (LOW, MEDIUM, HIGH, URGENT).
Respond with JSON only, conforming to the requested schema.`,
			User: `Task description:
{{.task}}`,
		},
		PromptTranslation: {
			ModelType:  ModelTypeChat,
			Creativity: CreativityStrict,
			System: `Translate the user's text to English, preserving technical terms,
code fragments, and identifiers verbatim. Respond with JSON only, conforming
to the requested schema.`,
			User: `{{.text}}`,
		},
	}
}
