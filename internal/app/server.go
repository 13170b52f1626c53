package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/config"
	"github.com/genc-murat/memwarden/internal/coordinator"
	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/format"
	"github.com/genc-murat/memwarden/internal/metrics"
)

// CommandHandler serves one control command. The returned text is written
// verbatim to the client.
type CommandHandler func(args url.Values) (string, error)

var errUsage = errors.New("wrong arguments")

// Server exposes metrics, pprof and a small control surface over HTTP.
type Server struct {
	cfg         *config.Config
	coordinator *coordinator.Coordinator
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cmds        map[string]CommandHandler
	servers     []*http.Server
}

func NewServer(cfg *config.Config, coord *coordinator.Coordinator, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		coordinator: coord,
		metrics:     m,
		logger:      logger.With(zap.String("component", "server")),
		cmds:        make(map[string]CommandHandler),
	}

	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.cmds["PING"] = s.handlePing
	s.cmds["INFO"] = s.handleInfo
	s.cmds["GC"] = s.handleGC
	s.cmds["STRATEGY"] = s.handleStrategy
	s.cmds["ENABLE"] = s.handleEnable
	s.cmds["DISABLE"] = s.handleDisable
	s.cmds["IDLE"] = s.handleIdle
	s.cmds["ACTIVE"] = s.handleActive
	s.cmds["ALERTS"] = s.handleAlerts
	s.cmds["HISTORY"] = s.handleHistory
}

// Handler returns the mux served on the metrics port.
func (s *Server) Handler() http.Handler {
	path := s.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.metrics.Handler())
	mux.HandleFunc("/control/", s.handleCommand)
	return mux
}

func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start binds every enabled listener before returning so port conflicts
// fail startup.
func (s *Server) Start() error {
	if s.cfg.Metrics.Enabled {
		if err := s.listen(s.cfg.Metrics.Port, s.Handler()); err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
	}
	if s.cfg.Pprof.Enabled {
		if err := s.listen(s.cfg.Pprof.Port, pprofHandler()); err != nil {
			return fmt.Errorf("pprof listener: %w", err)
		}
	}
	return nil
}

func (s *Server) listen(port int, handler http.Handler) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	s.servers = append(s.servers, srv)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("http listener started", zap.String("address", listener.Addr().String()))
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.servers = nil
	return errors.Join(errs...)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, "/control/"), "/"))
	handler, exists := s.cmds[cmd]
	if !exists {
		http.Error(w, "ERR unknown command '"+cmd+"'", http.StatusNotFound)
		return
	}

	out, err := handler(r.URL.Query())
	if err != nil {
		http.Error(w, "ERR "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func (s *Server) handlePing(args url.Values) (string, error) {
	if msg := args.Get("message"); msg != "" {
		return msg, nil
	}
	return "PONG", nil
}

func (s *Server) handleInfo(args url.Values) (string, error) {
	return format.FormatInfo(s.coordinator.Info()), nil
}

// handleGC forces a collection; wait=true selects a thorough pass.
func (s *Server) handleGC(args url.Values) (string, error) {
	wait := false
	if v := args.Get("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return "", errUsage
		}
		wait = parsed
	}

	res := s.coordinator.ForceCollect(wait)
	return format.FormatInfo(map[string]string{
		"executed": strconv.FormatBool(res.Executed),
		"mode":     res.Mode.String(),
		"duration": res.Duration.String(),
		"freed":    format.Bytes(res.MemoryFreed),
		"reason":   res.Reason,
	}), nil
}

func (s *Server) handleStrategy(args url.Values) (string, error) {
	name := args.Get("name")
	if name == "" {
		return s.coordinator.Policy().Strategy().String(), nil
	}
	strategy, err := models.ParseStrategy(name)
	if err != nil {
		return "", err
	}
	s.coordinator.SetStrategy(strategy)
	return "OK", nil
}

func (s *Server) handleEnable(args url.Values) (string, error) {
	s.coordinator.SetEnabled(true)
	return "OK", nil
}

func (s *Server) handleDisable(args url.Values) (string, error) {
	s.coordinator.SetEnabled(false)
	return "OK", nil
}

func (s *Server) handleIdle(args url.Values) (string, error) {
	s.coordinator.NotifyIdle()
	return "OK", nil
}

func (s *Server) handleActive(args url.Values) (string, error) {
	s.coordinator.NotifyActive()
	return "OK", nil
}

func (s *Server) handleAlerts(args url.Values) (string, error) {
	var builder strings.Builder
	builder.WriteString("level:")
	builder.WriteString(s.coordinator.Alerts().CurrentLevel().String())
	builder.WriteString("\r\n")
	for _, a := range s.coordinator.Alerts().RecentAlerts() {
		fmt.Fprintf(&builder, "%s %s %s %s\r\n",
			a.Timestamp.Format(time.RFC3339), a.Level, a.Type, a.Message)
	}
	return builder.String(), nil
}

// handleHistory lists the last n snapshots (default 10).
func (s *Server) handleHistory(args url.Values) (string, error) {
	n := 10
	if v := args.Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return "", errUsage
		}
		n = parsed
	}

	history := s.coordinator.GetMemoryHistory()
	if len(history) > n {
		history = history[len(history)-n:]
	}

	var builder strings.Builder
	for _, snap := range history {
		fmt.Fprintf(&builder, "%s total=%s total_mb=%.1f managed=%s system=%s\r\n",
			snap.Timestamp.Format(time.RFC3339), format.Bytes(snap.TotalBytes), snap.TotalMB(),
			format.Bytes(snap.ManagedBytes), format.Bytes(snap.SystemBytes))
	}
	return builder.String(), nil
}
