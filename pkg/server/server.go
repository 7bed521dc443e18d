// Package server exposes the dashboard and the JSON/control API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/eosconnect/eosconnect/pkg/battery"
	"github.com/eosconnect/eosconnect/pkg/control"
	"github.com/eosconnect/eosconnect/pkg/evcc"
	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/scheduler"
	"github.com/eosconnect/eosconnect/web"
	"github.com/levenlabs/go-lflag"
)

// Server handles the HTTP UI and control surface. Reads come from the
// scheduler state and the port snapshots, writes go through the control
// state machine.
type Server struct {
	sched      *scheduler.Scheduler
	controller *control.Controller
	battery    *battery.Service
	evcc       *evcc.Client
	driver     inverter.Driver
	settings   *inverter.Settings

	listenAddr string
	workDir    string
	now        func() time.Time
	httpServer *http.Server
}

// Configured sets up the Server based on flags.
func Configured(sched *scheduler.Scheduler, ctrl *control.Controller, batteries *battery.Service, evccClient *evcc.Client, driver inverter.Driver, settings *inverter.Settings) *Server {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	srv := &Server{
		sched:      sched,
		controller: ctrl,
		battery:    batteries,
		evcc:       evccClient,
		driver:     driver,
		settings:   settings,
		workDir:    ".",
		now:        time.Now,
	}
	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

// SetWorkDir overrides the directory searched for web asset overrides.
func (s *Server) SetWorkDir(dir string) { s.workDir = dir }

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleAsset("index.html", "text/html; charset=utf-8"))
	mux.HandleFunc("GET /style.css", s.handleAsset("style.css", "text/css; charset=utf-8"))
	mux.HandleFunc("GET /json/optimize_request.json", s.handleOptimizeRequest)
	mux.HandleFunc("GET /json/optimize_response.json", s.handleOptimizeResponse)
	mux.HandleFunc("GET /json/current_controls.json", s.handleCurrentControls)
	mux.HandleFunc("POST /controls/mode_override", s.handleModeOverride)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// the websocket handshake must bypass the gzip wrapper, it hijacks the
	// connection
	root := http.NewServeMux()
	root.HandleFunc("GET /ws", s.handleWebsocket)
	root.Handle("/", gziphandler.GzipHandler(mux))
	return root
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// handleAsset serves an embedded web asset. A file of the same name under
// <workdir>/web takes precedence so the dashboard can be customized without
// rebuilding.
func (s *Server) handleAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		override := filepath.Join(s.workDir, "web", name)
		if data, err := os.ReadFile(override); err == nil {
			w.Header().Set("Content-Type", contentType)
			w.Write(data)
			return
		}
		data, err := web.FS.ReadFile(name)
		if err != nil {
			log.Ctx(r.Context()).ErrorContext(r.Context(), "missing embedded asset",
				slog.String("file", name),
			)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		writeJSONError(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(data); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}
