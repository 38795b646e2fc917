// ABOUTME: Authenticated outbound dispatch to the consumer conversation endpoints
// ABOUTME: Carries the app bearer token plus the per-consumer on-behalf session token

package ums

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"

	"github.com/2389/liveconnect/internal/csds"
)

// userAgent identifies the connector on outbound requests.
const userAgent = "liveconnect/1.0"

// TransportError reports a network failure or a response that could not be
// interpreted. In-band platform errors (per-event result codes) are not
// transport errors.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result is one per-event entry of a conversation endpoint response. The
// platform reports errors in-band: a BAD_REQUEST code with a message rather
// than a failing HTTP exchange.
type Result struct {
	ReqID string     `json:"reqId,omitempty"`
	Code  string     `json:"code,omitempty"`
	Body  ResultBody `json:"body,omitempty"`
}

// ResultBody is the union of result body fields across event kinds.
type ResultBody struct {
	ConversationID string            `json:"conversationId,omitempty"`
	Msg            string            `json:"msg,omitempty"`
	RelativePath   string            `json:"relativePath,omitempty"`
	QueryParams    map[string]string `json:"queryParams,omitempty"`
}

// UploadParams locates a pre-signed file upload slot, as returned by a
// RequestUploadURL event.
type UploadParams struct {
	RelativePath string            `json:"relativePath"`
	QueryParams  map[string]string `json:"queryParams"`
}

// ClientProperties is the header object describing this integration.
type ClientProperties struct {
	Type               string   `json:"type"`
	AppID              string   `json:"appId"`
	Features           []string `json:"features"`
	Integration        string   `json:"integration"`
	IntegrationVersion string   `json:"integrationVersion"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	AccountID       string
	MessagingDomain string // asyncMessagingEnt service
	SwiftDomain     string // swift file store service
	AppID           string
	Tokens          TokenSource
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// TokenSource yields the current app-level bearer token. It matches
// auth.Manager.
type TokenSource interface {
	Token() (string, error)
}

// Dispatcher issues authenticated requests to the conversation endpoints on
// behalf of a specific consumer identity. It performs no retries; failures
// surface to the caller.
type Dispatcher struct {
	cfg         DispatcherConfig
	httpClient  *http.Client
	logger      *slog.Logger
	clientProps string
}

// NewDispatcher creates a dispatcher bound to the account's messaging
// domains.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	appID := cfg.AppID
	if appID == "" {
		appID = "unspecified"
	}
	props, _ := json.Marshal(ClientProperties{
		Type:               ".ams.headers.ClientProperties",
		AppID:              appID,
		Features:           []string{"AUTO_MESSAGE"},
		Integration:        "liveconnect",
		IntegrationVersion: "1.0",
	})
	return &Dispatcher{
		cfg:         cfg,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger.With("component", "dispatcher"),
		clientProps: string(props),
	}
}

// CreateConversation posts a batch of events to the conversation-creation
// endpoint and returns the per-event results in request order.
func (d *Dispatcher) CreateConversation(ctx context.Context, sessionToken string, events []Event) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/api/account/%s/messaging/consumer/conversation?v=3",
		csds.BaseURL(d.cfg.MessagingDomain), d.cfg.AccountID)

	var results []Result
	if err := d.post(ctx, "create conversation", endpoint, sessionToken, events, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Send posts a single event to the send endpoint of an existing
// conversation.
func (d *Dispatcher) Send(ctx context.Context, sessionToken string, event Event) (*Result, error) {
	endpoint := fmt.Sprintf("%s/api/account/%s/messaging/consumer/conversation/send?v=3",
		csds.BaseURL(d.cfg.MessagingDomain), d.cfg.AccountID)

	var result Result
	if err := d.post(ctx, "send event", endpoint, sessionToken, event, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post issues an authenticated POST and decodes the response into out. The
// body is decoded even on a non-2xx status: the platform reports per-event
// errors in-band (the duplicate-conversation signal arrives this way). Only
// an undecodable response becomes a TransportError.
func (d *Dispatcher) post(ctx context.Context, op, endpoint, sessionToken string, payload, out any) error {
	appToken, err := d.cfg.Tokens.Token()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", appToken)
	req.Header.Set("X-LP-ON-BEHALF", sessionToken)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Client-Properties", d.clientProps)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}

	d.logger.Debug("dispatched", "op", op, "status", resp.StatusCode)
	return nil
}

// UploadFile streams the file at path to the pre-signed Swift upload slot
// with a PUT. The caller owns the returned response and must close its
// body.
func (d *Dispatcher) UploadFile(ctx context.Context, path string, params UploadParams) (*http.Response, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	query := url.Values{}
	for k, v := range params.QueryParams {
		query.Set(k, v)
	}
	endpoint := csds.BaseURL(d.cfg.SwiftDomain) + params.RelativePath + "?" + query.Encode()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		err := writeUploadForm(writer, file)
		writer.Close()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, pr)
	if err != nil {
		// Unblocks the writer goroutine, which closes the file.
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("upload file: creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "upload file", Err: err}
	}

	d.logger.Debug("file uploaded", "path", path, "status", resp.StatusCode)
	return resp, nil
}

// writeUploadForm writes the multipart fields the file store expects.
func writeUploadForm(writer *multipart.Writer, file *os.File) error {
	if err := writer.WriteField("async", "true"); err != nil {
		return err
	}
	if err := writer.WriteField("resources", "{}"); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("application", file.Name())
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
