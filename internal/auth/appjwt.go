// ABOUTME: App-level bearer token lifecycle against the sentinel endpoint
// ABOUTME: Refreshes the token at 80% of its remaining JWT lifetime with one pending timer

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/liveconnect/internal/csds"
)

// Token errors
var (
	ErrNoToken   = errors.New("no app token available")
	ErrNoExpiry  = errors.New("token has no expiry claim")
	ErrManagerUp = errors.New("credential manager already started")
)

// refreshFraction is the portion of the token lifetime to wait before
// refreshing.
const refreshFraction = 0.8

// TokenSource yields the current app-level bearer token.
type TokenSource interface {
	Token() (string, error)
}

// appTokenResponse is the sentinel token endpoint response body.
type appTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// FetchAppToken obtains an app JWT from the sentinel endpoint using the
// installation id and secret.
func FetchAppToken(ctx context.Context, client *http.Client, accountID, sentinelDomain, installationID, secret string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := fmt.Sprintf("%s/sentinel/api/account/%s/app/token", csds.BaseURL(sentinelDomain), accountID)
	query := url.Values{
		"v":             {"1.0"},
		"grant_type":    {"client_credentials"},
		"client_id":     {installationID},
		"client_secret": {secret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching app token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching app token: status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body appTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return body.AccessToken, nil
}

// decodeExpiry extracts the exp claim from the token payload without
// verifying the signature. The platform signs the token; the connector only
// needs the expiry to schedule its refresh.
func decodeExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("decoding token payload: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading expiry claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// ManagerConfig configures a Manager. HTTPClient, Logger, Now and Schedule
// may be nil for production defaults; Now and Schedule exist so tests can
// control time.
type ManagerConfig struct {
	AccountID      string
	SentinelDomain string
	InstallationID string
	Secret         string

	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnRefresh is invoked after every refresh attempt that follows a
	// successful Start. A nil error means a new token is current.
	OnRefresh func(err error)

	Now      func() time.Time
	Schedule func(d time.Duration, f func()) *time.Timer
}

// Manager owns the app-level bearer token. Exactly one token is current at
// any instant; a single timer refreshes it at refreshFraction of the
// remaining lifetime. A failed refresh reports through OnRefresh and stops
// the loop.
type Manager struct {
	cfg        ManagerConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	schedule   func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	token   string
	expiry  time.Time
	timer   *time.Timer
	started bool
	closed  bool

	// ctx governs refreshes scheduled after Start
	ctx context.Context
}

// NewManager creates a credential manager. Call Start to obtain the first
// token and begin the refresh loop.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:        cfg,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		now:        cfg.Now,
		schedule:   cfg.Schedule,
	}
	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "credentials")
	if m.now == nil {
		m.now = time.Now
	}
	if m.schedule == nil {
		m.schedule = time.AfterFunc
	}
	return m
}

// Start performs the initial refresh and schedules the next one. The given
// context bounds the initial request and all timer-driven refreshes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerUp
	}
	m.started = true
	m.ctx = ctx
	m.mu.Unlock()

	return m.refresh(ctx)
}

// Token returns the current app token, or ErrNoToken when no refresh has
// succeeded yet.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

// Expiry returns the expiry of the current token (zero when none).
func (m *Manager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry
}

// Close cancels any pending refresh. The current token remains readable.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// refresh obtains a new token, stores it as current, and schedules the next
// refresh. The next refresh is scheduled only after this one completes, so
// at most one refresh is ever in flight.
func (m *Manager) refresh(ctx context.Context) error {
	token, err := FetchAppToken(ctx, m.httpClient, m.cfg.AccountID, m.cfg.SentinelDomain, m.cfg.InstallationID, m.cfg.Secret)
	if err != nil {
		return err
	}

	expiry, err := decodeExpiry(token)
	if err != nil {
		return err
	}

	delay := time.Duration(refreshFraction * float64(expiry.Sub(m.now())))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.token = token
	m.expiry = expiry
	// Overwrite any pending timer: at most one refresh is ever scheduled.
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.schedule(delay, m.timerRefresh)
	m.mu.Unlock()

	m.logger.Debug("app token refreshed", "token", maskToken(token), "expires_at", expiry, "next_refresh_in", delay)
	return nil
}

// timerRefresh runs a timer-driven refresh and reports the outcome through
// OnRefresh. A failure stops the loop: no further refresh is scheduled.
func (m *Manager) timerRefresh() {
	m.mu.Lock()
	ctx := m.ctx
	closed := m.closed
	m.mu.Unlock()
	if closed || ctx == nil || ctx.Err() != nil {
		return
	}

	m.logger.Debug("renewing app token")
	err := m.refresh(ctx)
	if err != nil {
		m.logger.Error("app token refresh failed, refresh loop stopped", "error", err)
	}
	if m.cfg.OnRefresh != nil {
		m.cfg.OnRefresh(err)
	}
}

// maskToken shortens a token for log output.
func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-4:]
}
