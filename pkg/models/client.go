package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidSlug indicates a client slug that does not match [a-z0-9-]+.
var ErrInvalidSlug = errors.New("invalid client slug")

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Client is a top-level tenant. All projects, connections, and indexed
// knowledge hang off a client.
type Client struct {
	ID              ClientID          `bson:"_id" json:"id"`
	Slug            string            `bson:"slug" json:"slug"`
	Name            string            `bson:"name" json:"name"`
	DefaultLanguage string            `bson:"defaultLanguage,omitempty" json:"defaultLanguage,omitempty"`
	// PlatformLanguages maps a platform (e.g. "jira", "confluence") to the
	// language used when talking to that platform.
	PlatformLanguages map[string]string `bson:"platformLanguages,omitempty" json:"platformLanguages,omitempty"`
	CreatedAt         time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// ValidateSlug checks the tenant slug format (lowercase, [a-z0-9-]+).
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// IndexingRules controls which repository paths are pushed to the vector
// store. Globs use doublestar syntax ("**/*.md", "vendor/**").
type IndexingRules struct {
	IncludeGlobs     []string `bson:"includeGlobs,omitempty" json:"includeGlobs,omitempty"`
	ExcludeGlobs     []string `bson:"excludeGlobs,omitempty" json:"excludeGlobs,omitempty"`
	MaxFileSizeBytes int64    `bson:"maxFileSizeBytes,omitempty" json:"maxFileSizeBytes,omitempty"`
}

// Allows reports whether a repository path of the given size should be
// indexed. An empty include list means "include everything"; excludes always
// win over includes.
func (r IndexingRules) Allows(path string, sizeBytes int64) bool {
	if r.MaxFileSizeBytes > 0 && sizeBytes > r.MaxFileSizeBytes {
		return false
	}
	for _, glob := range r.ExcludeGlobs {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return false
		}
	}
	if len(r.IncludeGlobs) == 0 {
		return true
	}
	for _, glob := range r.IncludeGlobs {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Project belongs to exactly one client.
type Project struct {
	ID       ProjectID `bson:"_id" json:"id"`
	ClientID ClientID  `bson:"clientId" json:"clientId"`
	Name     string    `bson:"name" json:"name"`
	// ConnectionIDs lists connections attached at project level (scoped).
	ConnectionIDs []ConnectionID `bson:"connectionIds,omitempty" json:"connectionIds,omitempty"`
	IndexingRules IndexingRules  `bson:"indexingRules,omitempty" json:"indexingRules,omitempty"`
	// PlatformLanguages overrides the client-level map per platform.
	PlatformLanguages map[string]string `bson:"platformLanguages,omitempty" json:"platformLanguages,omitempty"`
	CreatedAt         time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// LanguageFor resolves the language used on a platform for this project,
// falling back to the client's platform map, then the client default.
func (p *Project) LanguageFor(c *Client, platform string) string {
	if lang, ok := p.PlatformLanguages[platform]; ok {
		return lang
	}
	if c != nil {
		if lang, ok := c.PlatformLanguages[platform]; ok {
			return lang
		}
		return c.DefaultLanguage
	}
	return ""
}
