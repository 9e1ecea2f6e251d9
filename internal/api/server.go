package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/output"
	"github.com/bryanchriswhite/addertuner/internal/player"
	"github.com/bryanchriswhite/addertuner/internal/scheduler"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/transcode"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server represents the HTTP API server. Every mutation of session state is
// handed to the scheduler goroutine.
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	sched     *scheduler.Scheduler
	mjpeg     *output.MJPEGOutput

	// exactly one of these is set
	loop   *transcode.Loop
	engine *player.Engine

	upgrader websocket.Upgrader
	http     *http.Server
	logger   *zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithTranscoder serves a transcode session
func WithTranscoder(l *transcode.Loop) Option {
	return func(s *Server) { s.loop = l }
}

// WithPlayer serves a playback session
func WithPlayer(e *player.Engine) Option {
	return func(s *Server) { s.engine = e }
}

// NewServer creates a new API server
func NewServer(configMgr *config.Manager, sched *scheduler.Scheduler, mjpeg *output.MJPEGOutput, opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		sched:     sched,
		mjpeg:     mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin
			},
		},
		logger: logger.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Transcoder parameters
	api.HandleFunc("/params", s.handleGetParams).Methods("GET")
	api.HandleFunc("/params", s.handleUpdateParams).Methods("PUT")
	api.HandleFunc("/params/reset", s.handleResetParams).Methods("POST")

	// Source selection
	api.HandleFunc("/source", s.handleSelectSource).Methods("POST")
	api.HandleFunc("/source/reset", s.handleResetSource).Methods("POST")

	// Playback transport
	api.HandleFunc("/player/settings", s.handleGetPlayerSettings).Methods("GET")
	api.HandleFunc("/player/settings", s.handleUpdatePlayerSettings).Methods("PUT")
	api.HandleFunc("/player/{action}", s.handlePlayerAction).Methods("POST")

	api.HandleFunc("/stats/stream", s.handleStatsStream)

	if s.mjpeg != nil {
		api.HandleFunc("/frame.jpg", s.mjpeg.GetSnapshotHandler()).Methods("GET")
		s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler()).Methods("GET")
		s.router.HandleFunc("/stream/stats", s.mjpeg.GetStatsHandler()).Methods("GET")
		s.router.HandleFunc("/view", s.mjpeg.GetViewerHandler()).Methods("GET")
	}

	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/view", http.StatusFound)
	}).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers to return
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeError maps session errors onto status codes. Construction errors are
// the user's input, not a server fault.
func writeError(w http.ResponseWriter, err error) {
	var cerr *source.ConstructionError
	switch {
	case errors.As(err, &cerr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, player.ErrNoStream):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scheduler.ErrStopped), errors.Is(err, context.Canceled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) mode() string {
	if s.engine != nil {
		return "play"
	}
	return "transcode"
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
		"mode":    s.mode(),
	})
}

type statusResponse struct {
	Mode     string               `json:"mode"`
	Cycles   uint64               `json:"cycles"`
	Latest   scheduler.Result     `json:"latest"`
	Params   *config.Params       `json:"params,omitempty"`
	Player   *config.PlayerParams `json:"player,omitempty"`
	Progress *float64             `json:"progress,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:   s.mode(),
		Cycles: s.sched.Cycles(),
		Latest: s.sched.Latest(),
	}
	err := s.sched.Do(r.Context(), func(ctx context.Context) error {
		if s.loop != nil {
			p := s.loop.Params()
			resp.Params = &p
		}
		if s.engine != nil {
			p := s.engine.Settings()
			progress := s.engine.Progress()
			resp.Player = &p
			resp.Progress = &progress
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Params())
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	p := s.configMgr.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.UpdateParams(p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.notifyParams(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleResetParams(w http.ResponseWriter, r *http.Request) {
	p, err := s.configMgr.ResetParams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.notifyParams(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) notifyParams(ctx context.Context, p config.Params) error {
	if s.loop == nil {
		return nil
	}
	return s.sched.Do(ctx, func(context.Context) error {
		s.loop.NotifyConfigurationChanged(p)
		return nil
	})
}

func (s *Server) handleSelectSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path        string `json:"path"`
		ResumeFrame uint32 `json:"resume_frame"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	err := s.sched.Do(r.Context(), func(ctx context.Context) error {
		if s.engine != nil {
			return s.engine.Open(ctx, req.Path)
		}
		return s.loop.RequestRebuild(ctx, req.Path, req.ResumeFrame)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleResetSource(w http.ResponseWriter, r *http.Request) {
	err := s.sched.Do(r.Context(), func(ctx context.Context) error {
		if s.engine != nil {
			if err := s.engine.Stop(); err != nil {
				return err
			}
			return s.engine.Play()
		}
		return s.loop.ResetVideo(ctx)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleGetPlayerSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get().Player)
}

func (s *Server) handleUpdatePlayerSettings(w http.ResponseWriter, r *http.Request) {
	p := s.configMgr.Get().Player
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.UpdatePlayer(p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.engine != nil {
		err := s.sched.Do(r.Context(), func(context.Context) error {
			return s.engine.Apply(p)
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "not a playback session", http.StatusNotFound)
		return
	}

	var action func() error
	switch mux.Vars(r)["action"] {
	case "play":
		action = s.engine.Play
	case "pause":
		action = s.engine.Pause
	case "stop":
		action = s.engine.Stop
	case "step-back":
		action = s.engine.StepBack
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}

	var state string
	err := s.sched.Do(r.Context(), func(context.Context) error {
		if err := action(); err != nil {
			return err
		}
		state = s.engine.State().String()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "state": state})
}

// handleStatsStream pushes every cycle result, without its frame, as JSON
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.sched.Subscribe()
	defer unsubscribe()

	// the read pump only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.sched.Latest()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case res := <-updates:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(res); err != nil {
				s.logger.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}
