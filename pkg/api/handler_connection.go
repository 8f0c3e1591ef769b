package api

import (
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/models"
)

// CreateConnectionRequest is the body of POST /api/connections. Record holds
// the connection settings as JSON, optionally base64-encoded for transport
// through systems that mangle nested JSON.
type CreateConnectionRequest struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Record   string `json:"record"`
}

// createConnectionHandler handles POST /api/connections.
func (s *Server) createConnectionHandler(c *echo.Context) error {
	var req CreateConnectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clientID, err := models.ParseClientID(req.ClientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId must be a valid object id")
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	provider := models.SourceProvider(req.Provider)
	if !provider.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown provider")
	}

	record, err := models.DecodeConnectionRecord([]byte(req.Record))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "record is not valid connection JSON")
	}
	if record.BaseURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "record.baseUrl is required")
	}
	if err := validateAuth(record.Auth); err != nil {
		return err
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:                    models.NewConnectionID(),
		ClientID:              clientID,
		Name:                  req.Name,
		Provider:              provider,
		BaseURL:               record.BaseURL,
		Auth:                  record.Auth,
		TimeoutMs:             record.TimeoutMs,
		AvailableCapabilities: record.AvailableCapabilities,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.connections.Create(c.Request().Context(), conn); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, redactConnection(conn))
}

// getConnectionHandler handles GET /api/connections/:id.
func (s *Server) getConnectionHandler(c *echo.Context) error {
	id, err := models.ParseConnectionID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a valid object id")
	}
	conn, err := s.connections.ByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, redactConnection(conn))
}

// listClientConnectionsHandler handles GET /api/clients/:id/connections.
func (s *Server) listClientConnectionsHandler(c *echo.Context) error {
	clientID, err := models.ParseClientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a valid object id")
	}
	conns, err := s.connections.ForClient(c.Request().Context(), clientID)
	if err != nil {
		return httpError(err)
	}
	out := make([]*models.Connection, 0, len(conns))
	for i := range conns {
		out = append(out, redactConnection(&conns[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func validateAuth(auth models.AuthConfig) error {
	switch auth.Type {
	case models.AuthBasic:
		if auth.Username == "" || auth.Password == "" {
			return errBasicAuthIncomplete
		}
	case models.AuthBearer:
		if auth.Token == "" {
			return errBearerAuthIncomplete
		}
	case models.AuthNone:
	default:
		return errUnknownAuthType
	}
	return nil
}

var (
	errBasicAuthIncomplete  = echo.NewHTTPError(http.StatusBadRequest, "BASIC auth requires username and password")
	errBearerAuthIncomplete = echo.NewHTTPError(http.StatusBadRequest, "BEARER auth requires a token")
	errUnknownAuthType      = echo.NewHTTPError(http.StatusBadRequest, "unknown auth type")
)

// redactConnection strips credentials before a connection leaves the API.
func redactConnection(conn *models.Connection) *models.Connection {
	out := *conn
	out.Auth.Password = ""
	out.Auth.Token = ""
	return &out
}
