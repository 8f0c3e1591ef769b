package llm

import "errors"

var (
	// ErrUnavailable indicates every model candidate failed; the caller may
	// degrade or fail the plan step.
	ErrUnavailable = errors.New("no LLM candidate available")

	// ErrParseFailure indicates the model returned JSON that does not
	// conform to the expected schema, even after corrective retries.
	ErrParseFailure = errors.New("LLM response did not conform to schema")

	// ErrProviderAuth indicates a 401/403 from the provider; non-retryable.
	ErrProviderAuth = errors.New("provider authentication failed")

	// ErrProviderTransient indicates a retryable provider failure
	// (network error, 5xx, 429).
	ErrProviderTransient = errors.New("transient provider failure")

	// ErrNoModels indicates no model of the requested type exists at all.
	ErrNoModels = errors.New("no models of requested type configured")
)
