// Package labsim is a stand-in laboratory automation service speaking the
// live instrument protocol. Measurements come from the simulated strategy.
package labsim

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hypocycle/adapters/execution/live"
	"hypocycle/adapters/execution/simulated"
	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config holds simulator settings
type Config struct {
	FailSamples []string      // sample ids reported as failed
	Delay       time.Duration // added before every response
}

// Server serves the instrument protocol
type Server struct {
	router   *chi.Mux
	executor ports.ExecutorPort
	fail     map[core.SampleID]bool
	delay    time.Duration
	logger   *zap.Logger
}

// NewServer creates a simulator backed by executor
func NewServer(executor ports.ExecutorPort, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	fail := make(map[core.SampleID]bool, len(config.FailSamples))
	for _, id := range config.FailSamples {
		fail[core.SampleID(id)] = true
	}

	s := &Server{
		router:   chi.NewRouter(),
		executor: executor,
		fail:     fail,
		delay:    config.Delay,
		logger:   logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post(live.MeasurementsPath, s.handleMeasurements)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "strategy": simulated.Strategy})
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	var req live.MeasurementRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, live.ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()})
		return
	}

	if err := spec.CheckVersion(req.SchemaVersion); err != nil {
		s.rejectSchema(w, err)
		return
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	report, err := s.executor.Execute(r.Context(), req.Samples, ports.ExecuteOptions{})
	if err != nil {
		if core.IsSchemaViolation(err) {
			s.rejectSchema(w, err)
			return
		}
		s.logger.Error("measurement failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, live.ErrorResponse{Code: "INTERNAL_ERROR", Message: err.Error()})
		return
	}

	resp := live.MeasurementResponse{
		Results: make(map[core.SampleID]float64, len(report.Results)),
		Errors:  map[core.SampleID]string{},
	}
	for id, v := range report.Results {
		if s.fail[id] {
			resp.Errors[id] = "instrument reported failure"
			continue
		}
		resp.Results[id] = v
	}
	for _, e := range report.Errors {
		resp.Errors[e.SampleID] = e.Reason
	}

	s.logger.Info("batch measured",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("samples", len(req.Samples)),
		zap.Int("failed", len(resp.Errors)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) rejectSchema(w http.ResponseWriter, err error) {
	body := live.ErrorResponse{Code: "SCHEMA_VIOLATION", Message: err.Error()}
	var sv *core.SchemaViolationError
	if errors.As(err, &sv) {
		body.Field, body.Expected, body.Got = sv.Field, sv.Expected, sv.Got
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
