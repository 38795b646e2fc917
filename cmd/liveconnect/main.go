// ABOUTME: Entry point for the liveconnect messaging connector
// ABOUTME: Runs the connector daemon and one-shot consumer messaging commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/liveconnect/internal/config"
	"github.com/2389/liveconnect/internal/connector"
	"github.com/2389/liveconnect/internal/ums"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ _                                            _
| (_)_   _____  ___ ___  _ __  _ __   ___  ___| |_
| | \ \ / / _ \/ __/ _ \| '_ \| '_ \ / _ \/ __| __|
| | |\ V /  __/ (_| (_) | | | | | | |  __/ (__| |_
|_|_| \_/ \___|\___\___/|_| |_|_| |_|\___|\___|\__|
`

// getConfigPath returns the path to the connector config file.
// Priority: LIVECONNECT_CONFIG env var > XDG_CONFIG_HOME/liveconnect/config.yaml > ~/.config/liveconnect/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LIVECONNECT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "liveconnect", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: liveconnect <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the connector daemon")
		fmt.Println("  init                         Create a new config file interactively")
		fmt.Println("  send --to ID --message TEXT  Send a text message as a consumer")
		fmt.Println("  health                       Check webhook listener health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "send":
		err = runSend(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Account:  %s\n", cfg.Account.ID)
	if cfg.HasListener() {
		green.Print("    ▶ ")
		fmt.Printf("Listener: port %d\n", cfg.Listener.Port)
	}

	// Tailscale status
	if cfg.Listener.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Listener.Tailscale.Hostname)
		if cfg.Listener.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Listener.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting liveconnect",
		"config", configPath,
		"account", cfg.Account.ID,
	)

	conn := connector.New(cfg, logger)
	events := conn.Events(ctx)
	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("starting connector: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return conn.Shutdown(shutdownCtx)
		case e, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(logger, e)
		}
	}
}

// logEvent writes one connector event to the log.
func logEvent(logger *slog.Logger, e connector.Event) {
	switch e.Kind {
	case connector.KindWebhook:
		logger.Info("webhook event", "type", e.WebhookType, "payload", string(e.Change))
	case connector.KindSenderError:
		logger.Error("app token refresh failed", "error", e.Err)
	case connector.KindTokenRefreshed:
		logger.Debug("app token refreshed")
	default:
		logger.Info(string(e.Kind), "message", e.Message)
	}
}

// runSend opens (or resumes) a conversation for the given external consumer
// id and sends one text message.
func runSend(ctx context.Context) error {
	var consumerID, message string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--to":
			if i+1 >= len(args) {
				return fmt.Errorf("--to requires a value")
			}
			consumerID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--to="):
			consumerID = strings.TrimPrefix(arg, "--to=")
		case arg == "--message" || arg == "-m":
			if i+1 >= len(args) {
				return fmt.Errorf("--message requires a value")
			}
			message = args[i+1]
			i++
		case strings.HasPrefix(arg, "--message="):
			message = strings.TrimPrefix(arg, "--message=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if message == "" {
		return fmt.Errorf("--message flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// One-shot command: no webhook listener.
	cfg.Listener = config.ListenerConfig{}

	logger := setupLogger(cfg.Logging)
	conn := connector.New(cfg, logger)
	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("starting connector: %w", err)
	}
	defer conn.Shutdown(context.Background())

	conv, err := conn.OpenConversation(ctx, consumerID, ums.UserProfile{})
	if err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	if _, err := conn.SendText(ctx, conv.ConversationID(), message); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("  ✓ ")
	fmt.Printf("Sent to conversation %s\n", conv.ConversationID())
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.HasListener() {
		return fmt.Errorf("no listener configured")
	}

	url := fmt.Sprintf("http://localhost:%d/health", cfg.Listener.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("liveconnect configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Account
	fmt.Println("\n--- Account Configuration ---")
	accountID := prompt(reader, "Account id", "")
	csdsDomain := prompt(reader, "CSDS domain", "adminlogin.liveperson.net")

	// App credentials
	fmt.Println("\n--- App Credentials ---")
	installationID := prompt(reader, "Installation id (client_id)", "")
	secret := prompt(reader, "Installation secret (leave empty to use ${LP_APP_SECRET})", "")
	appID := prompt(reader, "App id", "")

	// Listener
	fmt.Println("\n--- Webhook Listener ---")
	port := prompt(reader, "Listener port (0 to disable)", "8080")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "liveconnect")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
		funnelStr := prompt(reader, "Enable Funnel (public HTTPS)?", "yes")
		tsFunnel = strings.ToLower(funnelStr) == "yes" || strings.ToLower(funnelStr) == "y"
	}

	// OAuth1 (history)
	fmt.Println("\n--- History Search (OAuth1) ---")
	consumerKey := prompt(reader, "Consumer key (leave empty to disable history)", "")
	var consumerSecret, token, tokenSecret string
	if consumerKey != "" {
		consumerSecret = prompt(reader, "Consumer secret", "")
		token = prompt(reader, "Token", "")
		tokenSecret = prompt(reader, "Token secret", "")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# liveconnect configuration\n")
	cfg.WriteString("# Generated by liveconnect init\n\n")

	cfg.WriteString("account:\n")
	cfg.WriteString(fmt.Sprintf("  id: \"%s\"\n", accountID))
	cfg.WriteString(fmt.Sprintf("  csds_domain: \"%s\"\n", csdsDomain))
	cfg.WriteString("\n")

	cfg.WriteString("app:\n")
	cfg.WriteString(fmt.Sprintf("  installation_id: \"%s\"\n", installationID))
	if secret != "" {
		cfg.WriteString(fmt.Sprintf("  secret: \"%s\"\n", secret))
	} else {
		cfg.WriteString("  secret: \"${LP_APP_SECRET}\"\n")
	}
	if appID != "" {
		cfg.WriteString(fmt.Sprintf("  app_id: \"%s\"\n", appID))
	}
	cfg.WriteString("\n")

	cfg.WriteString("listener:\n")
	cfg.WriteString(fmt.Sprintf("  port: %s\n", port))
	cfg.WriteString("  tailscale:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("    hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("    auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("    ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("    funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	if consumerKey != "" {
		cfg.WriteString("oauth:\n")
		cfg.WriteString(fmt.Sprintf("  consumer_key: \"%s\"\n", consumerKey))
		cfg.WriteString(fmt.Sprintf("  consumer_secret: \"%s\"\n", consumerSecret))
		cfg.WriteString(fmt.Sprintf("  token: \"%s\"\n", token))
		cfg.WriteString(fmt.Sprintf("  token_secret: \"%s\"\n", tokenSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the connector:")
	fmt.Printf("  liveconnect serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
