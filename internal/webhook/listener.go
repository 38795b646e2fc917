// ABOUTME: Webhook listener that fans out platform change notifications
// ABOUTME: POST /event/{type} re-emits each body.changes entry as one named event

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/liveconnect/internal/config"
)

// EmitFunc receives one webhook change entry. The event type is the path
// segment the platform posted to.
type EmitFunc func(eventType string, change json.RawMessage)

// payload is the platform's webhook notification body. Only the changes
// list matters; everything else is passed through opaquely per change.
type payload struct {
	Body struct {
		Changes []json.RawMessage `json:"changes"`
	} `json:"body"`
}

// Listener accepts webhook notifications on a typed route and re-emits each
// change record. Delivery is fire-and-forget: the route answers 200 no
// matter what the emission did.
type Listener struct {
	cfg    config.ListenerConfig
	emit   EmitFunc
	logger *slog.Logger

	mu          sync.Mutex
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	addr        string
}

// NewListener creates a webhook listener. emit must be non-nil.
func NewListener(cfg config.ListenerConfig, emit EmitFunc, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:    cfg,
		emit:   emit,
		logger: logger.With("component", "listener"),
	}
}

// Start binds the listener and begins serving in the background. With
// Tailscale enabled it serves on the tailnet (publicly when Funnel is on);
// a failed tailnet bind falls back to plain TCP with a warning, so the
// ready state looks the same either way.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := l.setupListener(ctx)
	if err != nil {
		return err
	}

	mux := l.routes()
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	l.mu.Lock()
	l.httpServer = server
	l.addr = ln.Addr().String()
	l.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("webhook server stopped", "error", err)
		}
	}()

	l.logger.Info("webhook listener ready", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address (empty before Start).
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Shutdown stops serving and releases the tailnet node if one was started.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	server := l.httpServer
	tsServer := l.tsnetServer
	l.mu.Unlock()

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}
	if tsServer != nil {
		if err := tsServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("listener shutdown errors: %v", errs)
	}
	return nil
}

// routes builds the HTTP mux for the listener.
func (l *Listener) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /event/{type}", l.handleEvent)
	mux.HandleFunc("/health", l.handleHealth)
	return mux
}

// handleEvent fans out the changes of one notification. The response is
// always 200 with an empty body; a malformed or changes-less payload simply
// emits nothing.
func (l *Listener) handleEvent(w http.ResponseWriter, r *http.Request) {
	eventType := r.PathValue("type")

	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		l.logger.Warn("undecodable webhook payload", "type", eventType, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, change := range p.Body.Changes {
		l.emit(eventType, change)
	}
	if n := len(p.Body.Changes); n > 0 {
		l.logger.Debug("webhook changes emitted", "type", eventType, "count", n)
	}

	w.WriteHeader(http.StatusOK)
}

func (l *Listener) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// setupListener binds a TCP or tailnet listener per config.
func (l *Listener) setupListener(ctx context.Context) (net.Listener, error) {
	if l.cfg.Tailscale.Enabled {
		ln, err := l.setupTailscaleListener(ctx)
		if err == nil {
			return ln, nil
		}
		l.logger.Warn("tailscale listener unavailable, falling back to tcp", "error", err)
	}
	return net.Listen("tcp", fmt.Sprintf(":%d", l.cfg.Port))
}

// setupTailscaleListener starts a tsnet node and listens on the tailnet,
// publicly over Funnel when configured.
func (l *Listener) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := l.cfg.Tailscale

	stateDir, err := resolveStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}

	tsServer := &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	l.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "funnel", tsCfg.Funnel)
	status, err := tsServer.Up(ctx)
	if err != nil {
		_ = tsServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if status.Self != nil {
		l.logger.Info("tailscale node ready", "dns_name", status.Self.DNSName)
	}

	var ln net.Listener
	if tsCfg.Funnel {
		ln, err = tsServer.ListenFunnel("tcp", ":443")
	} else {
		ln, err = tsServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = tsServer.Close()
		return nil, fmt.Errorf("listening on tailnet: %w", err)
	}

	l.mu.Lock()
	l.tsnetServer = tsServer
	l.mu.Unlock()
	return ln, nil
}

// resolveStateDir returns the tsnet state directory, defaulting under the
// user's data dir.
func resolveStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set listener.tailscale.state_dir): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "liveconnect", "tailscale"), nil
}
