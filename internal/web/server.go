// Package web provides the HTTP command surface and status page for the
// lockbox controller.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/lockbox/internal/config"
	"github.com/sweeney/lockbox/internal/hal"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/status"
	"github.com/sweeney/lockbox/internal/store"
)

// Controller is the command surface of the session engine.
// *session.Engine satisfies it.
type Controller interface {
	StartSession(cfg session.SessionConfig) (uint32, error)
	StartTest() error
	StopTest()
	Abort(source string)
	Trigger(source string)
	PetWatchdog()
	ModifyTime(increase bool) (uint32, error)
	Acknowledge() error
	UpdateSettings(presets session.SessionPresets, deterrents session.DeterrentConfig) error
	Rewards() ([]session.Reward, bool)
	Presets() session.SessionPresets
	Deterrents() session.DeterrentConfig
	SystemDefaults() session.SystemDefaults
	State() session.DeviceState
}

// LogSource exposes recent engine log lines. *hal.Device satisfies it.
type LogSource interface {
	Logs() []hal.LogEntry
}

// History lists past sessions. *store.Store satisfies it.
type History interface {
	ListSessions(ctx context.Context, limit int) ([]store.SessionRecord, error)
}

// SettingsStore persists settings changes. *config.File satisfies it.
type SettingsStore interface {
	Current() config.Settings
	Save(s config.Settings) (string, error)
}

// Options wires a Server. Logs, History and Settings may be nil; the
// matching endpoints then answer 404.
type Options struct {
	Addr       string
	Tracker    *status.Tracker
	Controller Controller
	Logs       LogSource
	History    History
	Settings   SettingsStore
}

// Server serves the status page and commands over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	logs       LogSource
	history    History
	settings   SettingsStore
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		tracker:  opts.Tracker,
		ctrl:     opts.Controller,
		logs:     opts.Logs,
		history:  opts.History,
		settings: opts.Settings,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /details", s.handleDetails)
	mux.HandleFunc("GET /reward", s.handleReward)
	mux.HandleFunc("GET /log", s.handleLog)
	mux.HandleFunc("GET /history", s.handleHistory)

	mux.HandleFunc("POST /arm", s.handleArm)
	mux.HandleFunc("POST /start-test", s.handleStartTest)
	mux.HandleFunc("POST /stop-test", s.handleStopTest)
	mux.HandleFunc("POST /abort", s.handleAbort)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("POST /keepalive", s.handleKeepAlive)
	mux.HandleFunc("POST /modify-time", s.handleModifyTime)
	mux.HandleFunc("POST /acknowledge", s.handleAcknowledge)
	mux.HandleFunc("POST /settings", s.handleSettings)

	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
