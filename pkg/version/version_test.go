package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringIncludesDirtyMarker(t *testing.T) {
	assert.Equal(t, "jervis/a3f8c2d1", Info{Commit: "a3f8c2d1"}.String())
	assert.Equal(t, "jervis/a3f8c2d1+dirty", Info{Commit: "a3f8c2d1", Modified: true}.String())
}

func TestShortenCapsAtEightChars(t *testing.T) {
	assert.Equal(t, "a3f8c2d1", shorten("a3f8c2d1e9b7f0a2"))
	assert.Equal(t, "dev", shorten("dev"))
}

func TestBuildResolvesOnce(t *testing.T) {
	// Test binaries carry build info but usually no VCS stamping, so the
	// commit is either a real revision or the "dev" fallback.
	info := Build()
	assert.NotEmpty(t, info.Commit)
	assert.Equal(t, info, Build())
}
