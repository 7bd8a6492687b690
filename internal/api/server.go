// Package api exposes the engine over HTTP: an event ingestion endpoint
// for business-event producers, a manual sweep trigger, and read-only
// rule/log views for the dashboard.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/fitpulse/studio-automation/internal/engine"
	"github.com/fitpulse/studio-automation/internal/pkg/httputil"
	"github.com/fitpulse/studio-automation/internal/rules"
)

// AutomationEngine is the engine surface the API drives.
type AutomationEngine interface {
	Trigger(ctx context.Context, triggerEvent string, ec engine.EventContext) error
	RunSweep(ctx context.Context) (*engine.SweepResult, error)
}

// RuleReader provides the read-only rule views.
type RuleReader interface {
	List(ctx context.Context) ([]rules.Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*rules.Rule, error)
	ListLogs(ctx context.Context, ruleID uuid.UUID, limit int) ([]rules.ExecutionLog, error)
}

// SweepStatus reports the periodic sweeper's last tick, for health checks.
type SweepStatus interface {
	Status() (time.Time, error)
}

// Server is the HTTP surface of the automation service.
type Server struct {
	engine  AutomationEngine
	rules   RuleReader
	sweeper SweepStatus
	router  chi.Router
}

// NewServer builds the router. sweeper may be nil when the process runs
// without a periodic sweep loop.
func NewServer(eng AutomationEngine, ruleReader RuleReader, sweeper SweepStatus) *Server {
	s := &Server{engine: eng, rules: ruleReader, sweeper: sweeper}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", s.handleEvent)
		r.Post("/sweep", s.handleSweep)
		r.Get("/rules", s.handleListRules)
		r.Get("/rules/{ruleID}", s.handleGetRule)
		r.Get("/rules/{ruleID}/logs", s.handleRuleLogs)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type eventRequest struct {
	TriggerEvent string                 `json:"trigger_event"`
	ClientID     *uuid.UUID             `json:"client_id,omitempty"`
	TrainerID    *uuid.UUID             `json:"trainer_id,omitempty"`
	SessionID    *uuid.UUID             `json:"session_id,omitempty"`
	PaymentID    *uuid.UUID             `json:"payment_id,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// handleEvent accepts one business event and runs the pipeline inline.
// Producers call this after their entity mutation commits.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TriggerEvent == "" {
		httputil.BadRequest(w, "trigger_event is required")
		return
	}

	ec := engine.EventContext{
		ClientID:  req.ClientID,
		TrainerID: req.TrainerID,
		SessionID: req.SessionID,
		PaymentID: req.PaymentID,
		Extra:     req.Extra,
	}
	if err := s.engine.Trigger(r.Context(), req.TriggerEvent, ec); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "processed"})
}

// handleSweep runs one sweep tick on demand.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RunSweep(r.Context())
	if err != nil {
		// Dispatches already happened; return the partial result with the
		// persistence error.
		httputil.JSON(w, http.StatusInternalServerError, map[string]interface{}{
			"result": result,
			"error":  err.Error(),
		})
		return
	}
	httputil.OK(w, result)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	views := make([]ruleView, 0, len(list))
	for i := range list {
		views = append(views, toRuleView(&list[i]))
	}
	httputil.OK(w, map[string]interface{}{"rules": views, "total": len(views)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.BadRequest(w, "invalid rule id")
		return
	}
	rule, err := s.rules.Get(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rule == nil {
		httputil.NotFound(w, "rule not found")
		return
	}
	httputil.OK(w, toRuleView(rule))
}

func (s *Server) handleRuleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.BadRequest(w, "invalid rule id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.rules.ListLogs(r.Context(), id, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	views := make([]logView, 0, len(logs))
	for i := range logs {
		views = append(views, toLogView(&logs[i]))
	}
	httputil.OK(w, map[string]interface{}{"logs": views, "total": len(views)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	code := http.StatusOK
	if s.sweeper != nil {
		lastRun, lastErr := s.sweeper.Status()
		if !lastRun.IsZero() {
			resp["last_sweep_at"] = lastRun.UTC().Format(time.RFC3339)
		}
		if lastErr != nil {
			resp["status"] = "degraded"
			resp["sweep_error"] = lastErr.Error()
			code = http.StatusServiceUnavailable
		}
	}
	httputil.JSON(w, code, resp)
}
