// Package web exposes a small HTTP API over the planner service:
// health, sync state, template resolution, cell reads, and a manual
// fetch trigger.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"uplanner/internal/config"
	appLog "uplanner/internal/log"
	"uplanner/internal/model"
	"uplanner/internal/planner"
)

// Server provides the HTTP surface.
type Server struct {
	cfg *config.Config
	svc *planner.Service
	mux *http.ServeMux
}

func NewServer(cfg *config.Config, svc *planner.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when
// credentials are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="uplanner", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/resolve", s.handleResolve)
	s.mux.HandleFunc("GET /api/cell", s.handleCell)
	s.mux.HandleFunc("POST /api/fetch", s.handleFetch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: encode response failed", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CalendarState())
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	date := model.ISODate(r.URL.Query().Get("date"))
	if !date.Valid() {
		http.Error(w, "invalid or missing date", http.StatusBadRequest)
		return
	}

	key := s.svc.ResolveTemplateDate(date)
	resp := map[string]any{
		"date":         date,
		"template_key": key,
	}
	if key != model.NoDate {
		resp["items"] = s.svc.EffectiveTemplate(date)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := model.ISODate(q.Get("date"))
	item := model.ItemID(q.Get("item"))
	if !date.Valid() || item == "" {
		http.Error(w, "invalid or missing date/item", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date": date,
		"item": item,
		"text": s.svc.Cell(date, item),
	})
}

// handleFetch triggers a calendar sync for the item named in the query.
// The fetch runs in the background; poll /api/state for the outcome.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := model.ISODate(q.Get("template_key"))
	calID := model.ItemID(q.Get("calendar"))
	if !key.Valid() || calID == "" {
		http.Error(w, "invalid or missing template_key/calendar", http.StatusBadRequest)
		return
	}

	loc := time.Local
	if s.cfg.Timezone != "" {
		if l, err := time.LoadLocation(s.cfg.Timezone); err == nil {
			loc = l
		}
	}
	now := time.Now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	after := day.AddDate(0, 0, -s.cfg.GraceDays)
	before := day.AddDate(0, 0, s.cfg.LookaheadDays)

	go s.svc.FetchInGracePeriod(context.Background(), key, calID, after, before)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	appLog.Info("web server listening", "addr", s.cfg.Listen)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
