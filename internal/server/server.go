package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ogulcanaydogan/outagewatch/pkg/budget"
	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/storage"
)

// Server exposes stored state over a read-only JSON API.
type Server struct {
	backend storage.Backend
	policy  *budget.Policy
	now     func() time.Time
	logger  *slog.Logger
}

// NewServer creates an API server reading from backend.
func NewServer(backend storage.Backend, policy *budget.Policy, logger *slog.Logger) *Server {
	return &Server{
		backend: backend,
		policy:  policy,
		now:     time.Now,
		logger:  logger,
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/outages", s.handleOutages)
		r.Get("/outages/{id}", s.handleOutage)
	})
	return r
}

// Stats is the monthly budget report.
type Stats struct {
	Month          string      `json:"month"`
	Notifications  int         `json:"notifications"`
	Limit          int         `json:"limit"`
	Remaining      int         `json:"remaining"`
	UsagePct       float64     `json:"usage_pct"`
	Band           budget.Band `json:"band"`
	TrackedOutages int         `json:"tracked_outages"`
	LastCheck      time.Time   `json:"last_check"`
}

// BuildStats summarizes snap against policy as of now.
func BuildStats(snap *model.Snapshot, policy *budget.Policy, now time.Time) Stats {
	count := snap.NotificationCount(now)
	return Stats{
		Month:          model.MonthOf(now),
		Notifications:  count,
		Limit:          policy.Limit(),
		Remaining:      policy.Remaining(count),
		UsagePct:       policy.UsagePct(count),
		Band:           policy.Band(count),
		TrackedOutages: len(snap.Outages),
		LastCheck:      snap.LastCheck,
	}
}

// SortedOutages returns the outages of snap ordered by id.
func SortedOutages(snap *model.Snapshot) []*model.StoredOutage {
	out := make([]*model.StoredOutage, 0, len(snap.Outages))
	for _, o := range snap.Outages {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// lessID orders numeric ids by value and falls back to string order.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, BuildStats(snap, s.policy, s.now()))
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	outages := SortedOutages(snap)
	if status, filtered := r.URL.Query()["status"]; filtered {
		kept := outages[:0]
		for _, o := range outages {
			if o.Status == status[0] {
				kept = append(kept, o)
			}
		}
		outages = kept
	}
	writeJSON(w, http.StatusOK, outages)
}

func (s *Server) handleOutage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	o, found := snap.Outages[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "outage not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// snapshot reads the current state, writing an error response on failure.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*model.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	snap, err := s.backend.Read(ctx)
	if errors.Is(err, storage.ErrNotExist) {
		return model.NewSnapshot(s.now()), true
	}
	if err != nil {
		s.logger.Error("read state", "backend", s.backend.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	snap.Normalize(s.now())
	return snap, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
