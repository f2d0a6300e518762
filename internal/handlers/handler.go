// Package handlers implements the board API on gin and gorm.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskboard/internal/apierr"
	"taskboard/internal/auth"
	"taskboard/internal/cache"
	"taskboard/internal/generate"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/realtime"
	"taskboard/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultDraftTTL is how long generated drafts are reused for identical
// instructions.
const DefaultDraftTTL = 10 * time.Minute

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	DB        *gorm.DB
	Tokens    *auth.Manager
	Hub       *realtime.Hub
	Generator generate.Generator
	Drafts    cache.Cache[string, []models.TaskGenerationItem]
	DraftTTL  time.Duration
	Log       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithHub sets the realtime hub events are published on.
func WithHub(hub *realtime.Hub) Option {
	return func(h *Handler) { h.Hub = hub }
}

// WithGenerator replaces the draft generator.
func WithGenerator(g generate.Generator) Option {
	return func(h *Handler) { h.Generator = g }
}

// WithDraftTTL sets how long generated drafts stay cached.
func WithDraftTTL(ttl time.Duration) Option {
	return func(h *Handler) { h.DraftTTL = ttl }
}

// WithDrafts replaces the draft cache.
func WithDrafts(c cache.Cache[string, []models.TaskGenerationItem]) Option {
	return func(h *Handler) { h.Drafts = c }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.Log = l }
}

// New wires a Handler with an in-process hub, the heuristic generator and a
// bounded draft cache unless options say otherwise.
func New(db *gorm.DB, tokens *auth.Manager, opts ...Option) *Handler {
	h := &Handler{
		DB:        db,
		Tokens:    tokens,
		Hub:       realtime.NewHub(),
		Generator: generate.Heuristic{},
		Drafts:    cache.NewSimpleCache[string, []models.TaskGenerationItem](cache.Options{MaxEntries: 256}),
		DraftTTL:  DefaultDraftTTL,
		Log:       telemetry.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// projectScope is the workspace/project/user triple of a request.
type projectScope struct {
	WorkspaceID string
	ProjectID   string
	UserID      string
}

func scopeOf(c *gin.Context) projectScope {
	return projectScope{
		WorkspaceID: c.GetString(middleware.KeyWorkspaceID),
		ProjectID:   c.Param("project"),
		UserID:      c.GetString(middleware.KeyUserID),
	}
}

// fail writes err as a JSON error body. Unexpected errors are logged and
// answered with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apierr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", "route", c.FullPath(), "error", err)
		msg = "Internal server error"
	}
	apierr.Abort(c, status, msg)
}

// bindFailed answers a request whose body did not decode.
func bindFailed(c *gin.Context, err error) {
	apierr.Abort(c, http.StatusBadRequest, err.Error())
}

func (h *Handler) publish(ev realtime.Event) {
	h.Hub.Publish(ev)
}

// notFound converts gorm's missing-row error into the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, models.ErrNotFound)
	}
	return err
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
