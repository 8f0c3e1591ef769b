package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// renderTemplate substitutes {{.key}} placeholders from values. Missing keys
// render as empty strings so optional mapping values never break a prompt.
func renderTemplate(name, tmpl string, values map[string]string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	parsed, err := template.New(name).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var out strings.Builder
	if err := parsed.Execute(&out, values); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return out.String(), nil
}

// extractJSON returns the JSON object or array embedded in an LLM response.
// Models routinely wrap JSON in markdown fences or prose; the parser takes
// the outermost {...} or [...] span.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if fenced := stripFence(content); fenced != "" {
		content = fenced
	}

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return content
	}
	closing := byte('}')
	if content[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(content, closing)
	if end <= start {
		return content
	}
	return content[start : end+1]
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	rest := strings.TrimPrefix(content, "```")
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}
