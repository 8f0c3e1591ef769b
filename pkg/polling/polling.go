// Package polling discovers new items on external sources and inserts them
// as NEW IndexedItems. Handlers are keyed by source provider and dispatch to
// capability-specific sub-handlers; inserts are idempotent on the natural
// key, so re-polling an unchanged source creates nothing.
package polling

import (
	"context"
	"time"

	"github.com/jervis-ai/jervis/pkg/models"
)

// Result counts one polling run.
type Result struct {
	Discovered int `json:"discovered"`
	Created    int `json:"created"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// Add accumulates another result into this one.
func (r *Result) Add(other Result) {
	r.Discovered += other.Discovered
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

// Context scopes one polling run: the clients that inherit the connection and
// the projects that attached it explicitly.
type Context struct {
	Connection *models.Connection
	ClientIDs  []models.ClientID

	projectByClient map[models.ClientID]models.ProjectID
	rules           []models.IndexingRules
}

// NewContext builds a polling context from the connection's owner and its
// explicit project attachments.
func NewContext(conn *models.Connection, projects []models.Project) *Context {
	pc := &Context{
		Connection:      conn,
		ClientIDs:       []models.ClientID{conn.ClientID},
		projectByClient: make(map[models.ClientID]models.ProjectID),
	}
	for _, project := range projects {
		pc.projectByClient[project.ClientID] = project.ID
		pc.rules = append(pc.rules, project.IndexingRules)
	}
	return pc
}

// AllowsIndexing reports whether a repository path of the given size should
// be inserted for indexing. With no explicit project attachments everything
// is allowed; otherwise the path must pass at least one attached project's
// indexing rules.
func (pc *Context) AllowsIndexing(path string, sizeBytes int64) bool {
	if len(pc.rules) == 0 {
		return true
	}
	for _, rules := range pc.rules {
		if rules.Allows(path, sizeBytes) {
			return true
		}
	}
	return false
}

// GetProjectID returns the explicit project attachment for a client, or nil
// meaning the connection is inherited on all of the client's projects.
func (pc *Context) GetProjectID(clientID models.ClientID) *models.ProjectID {
	if id, ok := pc.projectByClient[clientID]; ok {
		return &id
	}
	return nil
}

// Handler polls one source provider.
type Handler interface {
	Provider() models.SourceProvider
	Poll(ctx context.Context, pc *Context) (Result, error)
}

// RemoteItem is one item enumerated from a source.
type RemoteItem struct {
	Key       string
	UpdatedAt time.Time
	Payload   *models.ItemPayload
	// Path and SizeBytes are set by repository sub-handlers so the attached
	// projects' indexing rules can filter files before insertion. Empty Path
	// means the item is not subject to path filtering.
	Path      string
	SizeBytes int64
}

// CapabilityHandler enumerates the remote items behind one capability of a
// connection, one page at a time. Implementations live with the
// source-specific API clients; page is zero-based and the bool reports
// whether more pages remain.
type CapabilityHandler interface {
	Capability() models.Capability
	Kind() models.ItemKind
	FetchPage(ctx context.Context, conn *models.Connection, page, pageSize int) ([]RemoteItem, bool, error)
}

// ItemInserter performs the idempotent NEW insert. Satisfied by
// *indexing.ItemStore.
type ItemInserter interface {
	InsertNew(ctx context.Context, item *models.IndexedItem) (bool, error)
}

// Registry resolves handlers by provider tag.
type Registry struct {
	handlers map[models.SourceProvider]Handler
}

// NewRegistry builds the handler registry.
func NewRegistry(handlers ...Handler) *Registry {
	reg := &Registry{handlers: make(map[models.SourceProvider]Handler, len(handlers))}
	for _, h := range handlers {
		reg.handlers[h.Provider()] = h
	}
	return reg
}

// ForProvider returns the handler for a provider, or nil.
func (r *Registry) ForProvider(provider models.SourceProvider) Handler {
	return r.handlers[provider]
}
