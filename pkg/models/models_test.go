package models

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		name  string
		slug  string
		valid bool
	}{
		{"simple", "acme", true},
		{"with-dash", "acme-corp", true},
		{"digits", "team42", true},
		{"uppercase", "Acme", false},
		{"underscore", "acme_corp", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSlug(tt.slug)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSlug)
			}
		})
	}
}

func TestIndexingRulesAllows(t *testing.T) {
	rules := IndexingRules{
		IncludeGlobs:     []string{"src/**/*.go", "docs/**"},
		ExcludeGlobs:     []string{"**/vendor/**"},
		MaxFileSizeBytes: 1024,
	}

	assert.True(t, rules.Allows("src/pkg/main.go", 100))
	assert.True(t, rules.Allows("docs/readme.md", 100))
	assert.False(t, rules.Allows("src/vendor/lib/x.go", 100))
	assert.False(t, rules.Allows("Makefile", 100))
	assert.False(t, rules.Allows("src/pkg/main.go", 4096))

	// No includes means everything passes except excludes.
	open := IndexingRules{ExcludeGlobs: []string{"*.tmp"}}
	assert.True(t, open.Allows("anything.txt", 1))
	assert.False(t, open.Allows("scratch.tmp", 1))
}

func TestConnectionRecordRoundTrip(t *testing.T) {
	rec := &ConnectionRecord{
		BaseURL:               "https://jira.example.com",
		Auth:                  AuthConfig{Type: AuthBearer, Token: "secret"},
		TimeoutMs:             5000,
		AvailableCapabilities: []Capability{CapabilityBugtracker, CapabilityWiki},
	}

	data, err := rec.Encode()
	require.NoError(t, err)

	decoded, err := DecodeConnectionRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	// Base64-wrapped transport
	wrapped := base64.StdEncoding.EncodeToString(data)
	decoded, err = DecodeConnectionRecord([]byte(wrapped))
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestConnectionHelpers(t *testing.T) {
	conn := &Connection{
		Provider:              ProviderAtlassian,
		AvailableCapabilities: []Capability{CapabilityWiki},
		TimeoutMs:             250,
	}
	assert.True(t, conn.HasCapability(CapabilityWiki))
	assert.False(t, conn.HasCapability(CapabilityMail))
	assert.Equal(t, 250*time.Millisecond, conn.Timeout(time.Second))
	conn.TimeoutMs = 0
	assert.Equal(t, time.Second, conn.Timeout(time.Second))
}

func TestUserRequirementValidate(t *testing.T) {
	req := &UserRequirement{Title: "  ", Priority: PriorityHigh}
	assert.ErrorIs(t, req.Validate(), ErrBlankTitle)

	req = &UserRequirement{Title: "Add SSO", Priority: Priority("SOON")}
	assert.Error(t, req.Validate())

	req = &UserRequirement{Title: "Add SSO", Priority: PriorityUrgent}
	assert.NoError(t, req.Validate())
}

func TestProjectLanguageFor(t *testing.T) {
	client := &Client{
		DefaultLanguage:   "en",
		PlatformLanguages: map[string]string{"jira": "de"},
	}
	project := &Project{PlatformLanguages: map[string]string{"confluence": "cs"}}

	assert.Equal(t, "cs", project.LanguageFor(client, "confluence"))
	assert.Equal(t, "de", project.LanguageFor(client, "jira"))
	assert.Equal(t, "en", project.LanguageFor(client, "gitlab"))
}
