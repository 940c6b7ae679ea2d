package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/logging"
	"gpt-queue/internal/infra/metrics"
	"gpt-queue/internal/usecase"
)

const (
	apologyReply     = "Sorry, something went wrong while handling your request. Please try again later."
	rateLimitedReply = "Rate limit exceeded. Please try again later."
)

// Server is the slash-command style HTTP front end of the enqueue service.
type Server struct {
	enqueue   usecase.EnqueueUseCase
	directory adapter.RecipientDirectory
	limiter   adapter.CommandLimiter
	timeout   time.Duration
	channels  bool
	validate  *validator.Validate
	log       *zerolog.Logger
	server    *http.Server
}

// NewServer builds the front end. limiter may be nil.
func NewServer(
	enqueue usecase.EnqueueUseCase,
	directory adapter.RecipientDirectory,
	limiter adapter.CommandLimiter,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		enqueue:   enqueue,
		directory: directory,
		limiter:   limiter,
		timeout:   timeout,
		validate:  validator.New(),
		log:       &l,
	}
}

// WithChannelDelivery keeps the form's channel_id on queued jobs. Without a
// channel platform the id is dropped and results go to the delivery target.
func (s *Server) WithChannelDelivery(enabled bool) *Server {
	s.channels = enabled
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range []Middleware{TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout)} {
		r.Use(mw)
	}

	r.Post("/commands", s.handleCommand)
	r.Get("/jobs/{id}", s.handleJob)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type commandRequest struct {
	Text        string
	UserID      string `validate:"required,max=64"`
	UserName    string `validate:"max=64"`
	ChannelID   string `validate:"max=64"`
	ResponseURL string `validate:"omitempty,url"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	req := commandRequest{
		Text:        r.PostForm.Get("text"),
		UserID:      strings.TrimSpace(r.PostForm.Get("user_id")),
		UserName:    strings.TrimSpace(r.PostForm.Get("user_name")),
		ChannelID:   strings.TrimSpace(r.PostForm.Get("channel_id")),
		ResponseURL: strings.TrimSpace(r.PostForm.Get("response_url")),
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "invalid command: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !s.channels {
		req.ChannelID = ""
	}

	ctx := logging.WithRequesterID(r.Context(), req.UserID)
	log := logging.With(ctx, s.log)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "http", req.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit check")
		} else if !allowed {
			metrics.IncCommand("http", "rate_limited")
			writeText(w, http.StatusTooManyRequests, rateLimitedReply)
			return
		}
	}

	if req.UserName != "" {
		if err := s.directory.Remember(ctx, req.UserName, req.UserID); err != nil {
			log.Warn().Err(err).Msg("remember requester handle")
		}
	}

	reply, err := s.enqueue.Handle(ctx, usecase.Command{
		Text:            req.Text,
		RequesterID:     req.UserID,
		RequesterName:   req.UserName,
		ChannelID:       req.ChannelID,
		ResponseAddress: req.ResponseURL,
		Origin:          clientAddr(r),
	})
	if err != nil {
		log.Error().Err(err).Msg("handle command")
		writeText(w, http.StatusOK, apologyReply)
		return
	}

	metrics.IncCommand("http", string(reply.Intent))
	if reply.JobID > 0 {
		metrics.IncJobEnqueued()
	}
	writeText(w, http.StatusOK, reply.Text)
}

// clientAddr is the caller's address: X-Real-Ip from the fronting proxy, else
// the connection's remote host.
func clientAddr(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// jobResponse is the structured status-query record.
type jobResponse struct {
	ID             int64          `json:"id"`
	Slug           string         `json:"slug"`
	State          model.JobState `json:"state"`
	Result         int            `json:"result"`
	Message        string         `json:"message"`
	RequesterID    string         `json:"requester_id"`
	ChannelID      *string        `json:"channel_id"`
	DeliveryTarget string         `json:"delivery_target"`
	Response       *string        `json:"response"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	out := jobResponse{
		ID:             j.ID,
		Slug:           j.Slug,
		State:          j.State,
		Result:         j.Result,
		Message:        j.Message,
		RequesterID:    j.RequesterID,
		DeliveryTarget: j.DeliveryTarget,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.ChannelID != "" {
		out.ChannelID = &j.ChannelID
	}
	if j.Response != "" {
		out.Response = &j.Response
	}
	return out
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}

	job, err := s.enqueue.Status(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Int64("job_id", id).Msg("load job")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
