// Package httpapi serves the read-only presence API and the live event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/poller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Poller is the part of the poll scheduler the API reads from.
type Poller interface {
	Status() poller.Status
	Current() *models.Snapshot
	TriggerRefresh()
}

// Registry lists known entities, including offline ones.
type Registry interface {
	List(ctx context.Context) ([]models.Entity, error)
}

// ClientView is the JSON representation of a present client.
type ClientView struct {
	MAC           string         `json:"mac"`
	Name          string         `json:"name"`
	State         string         `json:"state"`
	Interface     string         `json:"interface,omitempty"`
	Signal        *int           `json:"signal"`
	Authorized    bool           `json:"authorized"`
	Authenticated bool           `json:"authenticated"`
	Attributes    map[string]any `json:"attributes"`
}

// CycleMessage is pushed to websocket subscribers after every cycle.
type CycleMessage struct {
	CycleID string         `json:"cycle_id"`
	TakenAt time.Time      `json:"taken_at"`
	Clients []ClientView   `json:"clients"`
	Events  []models.Event `json:"events"`
}

// API holds the handlers and the websocket hub.
type API struct {
	poller   Poller
	registry Registry
	aliases  alias.Resolver
	hub      *Hub
	logger   zerolog.Logger
}

// New creates the API. registry may be nil.
func New(logger zerolog.Logger, p Poller, registry Registry, aliases alias.Resolver) *API {
	if aliases == nil {
		aliases = alias.Map{}
	}
	return &API{
		poller:   p,
		registry: registry,
		aliases:  aliases,
		hub:      NewHub(logger),
		logger:   logger,
	}
}

// Handler builds the routing tree.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(a.logger))
	r.Use(RequestLogger(a.logger))

	r.Get("/healthz", a.health)
	r.Route("/api", func(api chi.Router) {
		api.Get("/events", a.hub.ServeHTTP)

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(20 * time.Second))
			api.Get("/clients", a.listClients)
			api.Get("/clients/{mac}", a.getClient)
			api.Get("/entities", a.listEntities)
			api.Post("/refresh", a.refresh)
		})
	})
	return r
}

// Notify pushes a completed cycle to websocket subscribers.
func (a *API) Notify(_ context.Context, update models.Update) {
	if a.hub.Len() == 0 {
		return
	}
	msg := CycleMessage{
		CycleID: update.CycleID,
		Clients: a.views(update.Snapshot),
		Events:  update.Delta.Events(),
	}
	if update.Snapshot != nil {
		msg.TakenAt = update.Snapshot.TakenAt
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to marshal cycle message")
		return
	}
	a.hub.Broadcast(payload)
}

// Close disconnects websocket subscribers.
func (a *API) Close() {
	a.hub.Close()
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	status := a.poller.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"poller":  status,
		"clients": a.poller.Current().Len(),
	})
}

func (a *API) listClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.views(a.poller.Current())})
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	mac := models.NormalizeMAC(chi.URLParam(r, "mac"))
	rec, ok := a.poller.Current().Get(mac)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Client not found")
		return
	}
	writeJSON(w, http.StatusOK, a.view(rec))
}

func (a *API) listEntities(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeError(w, http.StatusNotFound, "registry_disabled", "Entity registry is not configured")
		return
	}
	items, err := a.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) refresh(w http.ResponseWriter, _ *http.Request) {
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) views(snapshot *models.Snapshot) []ClientView {
	records := snapshot.Records()
	views := make([]ClientView, 0, len(records))
	for _, rec := range records {
		views = append(views, a.view(rec))
	}
	return views
}

func (a *API) view(rec models.ClientRecord) ClientView {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return ClientView{
		MAC:           rec.MAC,
		Name:          a.aliases.Resolve(rec.MAC),
		State:         rec.State(),
		Interface:     rec.Interface,
		Signal:        rec.Signal,
		Authorized:    rec.Authorized,
		Authenticated: rec.Authenticated,
		Attributes:    attrs,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// RunServer starts server and shuts it down gracefully when ctx is cancelled.
func RunServer(ctx context.Context, server *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
			return err
		}
		return nil
	}
}
