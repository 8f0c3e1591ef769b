package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/models"
)

func encodeRecord(t *testing.T, rec *models.ConnectionRecord) string {
	t.Helper()
	raw, err := rec.Encode()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCreateConnectionStoresAndRedacts(t *testing.T) {
	ts := newTestServer(t)
	clientID := models.NewClientID()
	record := &models.ConnectionRecord{
		BaseURL: "https://jira.example.com",
		Auth: models.AuthConfig{
			Type:     models.AuthBasic,
			Username: "svc-jervis",
			Password: "hunter2",
		},
		AvailableCapabilities: []models.Capability{models.CapabilityBugtracker, models.CapabilityWiki},
	}

	rec := doJSON(t, ts.server.Handler(), http.MethodPost, "/api/connections", map[string]any{
		"clientId": clientID.Hex(),
		"name":     "corp jira",
		"provider": "atlassian",
		"record":   encodeRecord(t, record),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp models.Connection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "corp jira", resp.Name)
	assert.Equal(t, models.ProviderAtlassian, resp.Provider)
	assert.Empty(t, resp.Auth.Password, "credentials must not leave the API")
	assert.Equal(t, "svc-jervis", resp.Auth.Username)

	stored, err := ts.connections.ByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored.Auth.Password)
	assert.True(t, stored.HasCapability(models.CapabilityWiki))
}

func TestCreateConnectionAcceptsPlainJSONRecord(t *testing.T) {
	ts := newTestServer(t)
	record := &models.ConnectionRecord{
		BaseURL: "https://gitlab.example.com",
		Auth:    models.AuthConfig{Type: models.AuthBearer, Token: "glpat-abc"},
	}
	raw, err := record.Encode()
	require.NoError(t, err)

	rec := doJSON(t, ts.server.Handler(), http.MethodPost, "/api/connections", map[string]any{
		"clientId": models.NewClientID().Hex(),
		"name":     "gitlab",
		"provider": "gitlab",
		"record":   string(raw),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateConnectionValidation(t *testing.T) {
	ts := newTestServer(t)
	clientID := models.NewClientID().Hex()
	validRecord := encodeRecord(t, &models.ConnectionRecord{
		BaseURL: "https://jira.example.com",
		Auth:    models.AuthConfig{Type: models.AuthNone},
	})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad client id", map[string]any{
			"clientId": "nope", "name": "x", "provider": "atlassian", "record": validRecord,
		}},
		{"blank name", map[string]any{
			"clientId": clientID, "name": "  ", "provider": "atlassian", "record": validRecord,
		}},
		{"unknown provider", map[string]any{
			"clientId": clientID, "name": "x", "provider": "ftp", "record": validRecord,
		}},
		{"garbage record", map[string]any{
			"clientId": clientID, "name": "x", "provider": "atlassian", "record": "{{{",
		}},
		{"missing base url", map[string]any{
			"clientId": clientID, "name": "x", "provider": "atlassian",
			"record": encodeRecord(t, &models.ConnectionRecord{Auth: models.AuthConfig{Type: models.AuthNone}}),
		}},
		{"basic auth without password", map[string]any{
			"clientId": clientID, "name": "x", "provider": "atlassian",
			"record": encodeRecord(t, &models.ConnectionRecord{
				BaseURL: "https://jira.example.com",
				Auth:    models.AuthConfig{Type: models.AuthBasic, Username: "svc"},
			}),
		}},
		{"bearer auth without token", map[string]any{
			"clientId": clientID, "name": "x", "provider": "gitlab",
			"record": encodeRecord(t, &models.ConnectionRecord{
				BaseURL: "https://gitlab.example.com",
				Auth:    models.AuthConfig{Type: models.AuthBearer},
			}),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, ts.server.Handler(), http.MethodPost, "/api/connections", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListClientConnections(t *testing.T) {
	ts := newTestServer(t)
	clientID := models.NewClientID()
	other := models.NewClientID()
	for _, id := range []models.ClientID{clientID, clientID, other} {
		require.NoError(t, ts.connections.Create(context.Background(), &models.Connection{
			ID:       models.NewConnectionID(),
			ClientID: id,
			Name:     "conn",
			Provider: models.ProviderEmail,
			BaseURL:  "imap://mail.example.com",
			Auth:     models.AuthConfig{Type: models.AuthBasic, Username: "u", Password: "p"},
		}))
	}

	rec := doJSON(t, ts.server.Handler(), http.MethodGet, "/api/clients/"+clientID.Hex()+"/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []models.Connection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	for _, conn := range out {
		assert.Empty(t, conn.Auth.Password)
	}
}

func TestGetConnectionNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := doJSON(t, ts.server.Handler(), http.MethodGet, "/api/connections/"+models.NewConnectionID().Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
