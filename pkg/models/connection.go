package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// SourceProvider identifies the kind of external system a connection talks to.
type SourceProvider string

// Supported source providers.
const (
	ProviderAtlassian SourceProvider = "atlassian"
	ProviderGitLab    SourceProvider = "gitlab"
	ProviderEmail     SourceProvider = "email"
)

// IsValid reports whether the provider is one of the supported values.
func (p SourceProvider) IsValid() bool {
	switch p {
	case ProviderAtlassian, ProviderGitLab, ProviderEmail:
		return true
	}
	return false
}

// Capability is one facet an external source can expose.
type Capability string

// Connection capabilities.
const (
	CapabilityBugtracker Capability = "BUGTRACKER"
	CapabilityWiki       Capability = "WIKI"
	CapabilityRepository Capability = "REPOSITORY"
	CapabilityMail       Capability = "MAIL"
)

// AuthType selects how requests to the source are authenticated.
type AuthType string

// Supported auth types.
const (
	AuthBasic  AuthType = "BASIC"
	AuthBearer AuthType = "BEARER"
	AuthNone   AuthType = "NONE"
)

// AuthConfig holds source credentials. Exactly the fields valid for the
// chosen type are set; the rest stay empty.
type AuthConfig struct {
	Type     AuthType `bson:"type" json:"type"`
	Username string   `bson:"username,omitempty" json:"username,omitempty"`
	Password string   `bson:"password,omitempty" json:"password,omitempty"`
	Token    string   `bson:"token,omitempty" json:"token,omitempty"`
}

// Connection is the configuration of one external source. It is attached
// either at client level (inherited by all the client's projects) or at
// project level (scoped to that project).
type Connection struct {
	ID       ConnectionID   `bson:"_id" json:"id"`
	ClientID ClientID       `bson:"clientId" json:"clientId"`
	Name     string         `bson:"name" json:"name"`
	Provider SourceProvider `bson:"provider" json:"provider"`
	BaseURL  string         `bson:"baseUrl" json:"baseUrl"`
	Auth     AuthConfig     `bson:"auth" json:"auth"`
	// TimeoutMs bounds every request to the source; zero means the
	// process-wide default.
	TimeoutMs             int          `bson:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
	AvailableCapabilities []Capability `bson:"availableCapabilities" json:"availableCapabilities"`
	CreatedAt             time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// HasCapability reports whether the connection exposes the capability.
func (c *Connection) HasCapability(cap Capability) bool {
	for _, have := range c.AvailableCapabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// Timeout returns the per-connection request timeout, or fallback when unset.
func (c *Connection) Timeout(fallback time.Duration) time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// ConnectionRecord is the wire shape for transporting connection settings,
// optionally base64-encoded.
type ConnectionRecord struct {
	BaseURL               string       `json:"baseUrl"`
	Auth                  AuthConfig   `json:"auth"`
	TimeoutMs             int          `json:"timeoutMs,omitempty"`
	AvailableCapabilities []Capability `json:"availableCapabilities"`
}

// DecodeConnectionRecord parses a connection record from raw JSON or from a
// base64-encoded JSON payload.
func DecodeConnectionRecord(data []byte) (*ConnectionRecord, error) {
	raw := data
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		raw = decoded
	}
	var rec ConnectionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode connection record: %w", err)
	}
	return &rec, nil
}

// Encode serializes the record to compact JSON.
func (r *ConnectionRecord) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode connection record: %w", err)
	}
	return data, nil
}
