// Package tokens provides BPE token counting and token-budget text chunking
// for LLM request sizing.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingName is the cl100k-compatible BPE encoding used for counting.
	encodingName = "cl100k_base"

	// DefaultResponseBuffer is reserved for the model's answer when
	// estimating a request's total size.
	DefaultResponseBuffer = 500

	// truncationMargin is the safety margin subtracted when a single
	// sentence must be truncated word-wise.
	truncationMargin = 10

	// ellipsis marks a word-wise truncation in the output.
	ellipsis = "…"
)

// Counter counts BPE tokens. The encoder is loaded lazily and shared; when
// loading fails the counter degrades to a len/4 estimate.
type Counter struct {
	responseBuffer int

	once    sync.Once
	encoder *tiktoken.Tiktoken
}

// NewCounter creates a Counter. responseBuffer <= 0 selects the default.
func NewCounter(responseBuffer int) *Counter {
	if responseBuffer <= 0 {
		responseBuffer = DefaultResponseBuffer
	}
	return &Counter{responseBuffer: responseBuffer}
}

// CountTokens returns the BPE token count of text. On encoder failure it
// falls back to len(text)/4 and logs a warning.
func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateTotalRequest estimates the token footprint of a request:
// count(system) + count(user) + response buffer.
func (c *Counter) EstimateTotalRequest(systemPrompt, userPrompt string) int {
	return c.CountTokens(systemPrompt) + c.CountTokens(userPrompt) + c.responseBuffer
}

// ProcessWithLimit reduces text to fit within maxTokens. Text is chunked at
// sentence terminators (. ! ?); the first chunk that fits the budget is the
// authoritative summary. A single sentence larger than the budget is
// truncated word-wise with a small safety margin and an ellipsis sentinel.
func (c *Counter) ProcessWithLimit(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if c.CountTokens(text) <= maxTokens {
		return text
	}

	var (
		chunk strings.Builder
		used  int
	)
	for _, sentence := range splitSentences(text) {
		n := c.CountTokens(sentence)
		if n > maxTokens {
			// A single oversized sentence: if nothing is accumulated yet,
			// the truncated sentence becomes the chunk; otherwise stop here.
			if chunk.Len() == 0 {
				return c.truncateWords(sentence, maxTokens-truncationMargin)
			}
			break
		}
		if used+n > maxTokens {
			break
		}
		chunk.WriteString(sentence)
		used += n
	}
	return strings.TrimSpace(chunk.String())
}

// truncateWords keeps whole words while staying within budget tokens and
// appends the ellipsis sentinel.
func (c *Counter) truncateWords(sentence string, budget int) string {
	if budget <= 0 {
		return ellipsis
	}
	words := strings.Fields(sentence)
	var (
		out  strings.Builder
		used int
	)
	for _, word := range words {
		n := c.CountTokens(word + " ")
		if used+n > budget {
			break
		}
		if out.Len() > 0 {
			out.WriteString(" ")
		}
		out.WriteString(word)
		used += n
	}
	return out.String() + ellipsis
}

// splitSentences splits text after each sentence terminator, keeping the
// terminator attached to its sentence.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// encoding returns the shared encoder, loading it on first use.
func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			slog.Warn("Failed to load BPE encoding, falling back to length estimate",
				"encoding", encodingName, "error", err)
			return
		}
		c.encoder = enc
	})
	return c.encoder
}
