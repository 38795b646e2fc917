// ABOUTME: Top-level connector orchestrating domains, tokens, sending, and webhooks
// ABOUTME: Starts each capability independently so partial configuration degrades instead of failing

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/liveconnect/internal/accountcfg"
	"github.com/2389/liveconnect/internal/auth"
	"github.com/2389/liveconnect/internal/config"
	"github.com/2389/liveconnect/internal/csds"
	"github.com/2389/liveconnect/internal/history"
	"github.com/2389/liveconnect/internal/ums"
	"github.com/2389/liveconnect/internal/webhook"
)

// ErrUnknownConversation is returned when an operation references a
// conversation id this connector never opened.
var ErrUnknownConversation = errors.New("unknown conversation")

// Connector wires the platform collaborators together. Capabilities come up
// independently during Start: a missing config section disables its
// capability with a warning, and operations that need it return a
// CapabilityError.
type Connector struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client

	broadcaster *Broadcaster
	registry    *Registry

	// Populated by Start; nil means the capability is disabled.
	domains    csds.Directory
	creds      *auth.Manager
	dispatcher *ums.Dispatcher
	history    *history.Client
	listener   *webhook.Listener
}

// New creates a connector. Call Start before using any operation.
func New(cfg *config.Config, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		cfg:         cfg,
		logger:      logger.With("component", "connector"),
		httpClient:  http.DefaultClient,
		broadcaster: NewBroadcaster(logger),
		registry:    NewRegistry(),
	}
}

// Start brings up every capability the configuration enables: service
// directory resolution, the app token refresh loop and dispatcher, the
// history search client, and the webhook listener. Capabilities whose config
// is missing are skipped with a warning rather than failing startup; only a
// capability that is configured but cannot start returns an error.
func (c *Connector) Start(ctx context.Context) error {
	if err := c.startDomains(ctx); err != nil {
		return err
	}
	if err := c.startSender(ctx); err != nil {
		return err
	}
	c.startHistory()
	if err := c.startListener(ctx); err != nil {
		return err
	}

	c.broadcaster.Publish(Event{Kind: KindReady, Message: "connector ready"})
	return nil
}

func (c *Connector) startDomains(ctx context.Context) error {
	if !c.cfg.HasDomains() {
		c.logger.Warn("account id or csds domain not configured, all platform capabilities disabled")
		return nil
	}

	domains, err := csds.NewResolver(c.httpClient, c.logger).Resolve(ctx, c.cfg.Account.ID, c.cfg.Account.CSDSDomain)
	if err != nil {
		return fmt.Errorf("resolving service directory: %w", err)
	}
	c.domains = domains
	c.broadcaster.Publish(Event{Kind: KindDomainsResolved, Message: fmt.Sprintf("%d services resolved", len(domains))})
	return nil
}

func (c *Connector) startSender(ctx context.Context) error {
	if c.domains == nil {
		return nil
	}
	if !c.cfg.HasSender() {
		c.logger.Warn("installation id or secret not configured, send capability disabled")
		return nil
	}

	sentinelDomain, ok := c.domains.Lookup(csds.ServiceSentinel)
	if !ok {
		return fmt.Errorf("service directory has no %s entry", csds.ServiceSentinel)
	}
	messagingDomain, ok := c.domains.Lookup(csds.ServiceAsyncMessaging)
	if !ok {
		return fmt.Errorf("service directory has no %s entry", csds.ServiceAsyncMessaging)
	}
	swiftDomain, _ := c.domains.Lookup(csds.ServiceSwift)

	creds := auth.NewManager(auth.ManagerConfig{
		AccountID:      c.cfg.Account.ID,
		SentinelDomain: sentinelDomain,
		InstallationID: c.cfg.App.InstallationID,
		Secret:         c.cfg.App.Secret,
		HTTPClient:     c.httpClient,
		Logger:         c.logger,
		OnRefresh: func(err error) {
			if err != nil {
				c.broadcaster.Publish(Event{Kind: KindSenderError, Err: err})
				return
			}
			c.broadcaster.Publish(Event{Kind: KindTokenRefreshed})
		},
	})
	if err := creds.Start(ctx); err != nil {
		return fmt.Errorf("obtaining app token: %w", err)
	}
	c.creds = creds

	c.dispatcher = ums.NewDispatcher(ums.DispatcherConfig{
		AccountID:       c.cfg.Account.ID,
		MessagingDomain: messagingDomain,
		SwiftDomain:     swiftDomain,
		AppID:           c.cfg.App.AppID,
		Tokens:          creds,
		HTTPClient:      c.httpClient,
		Logger:          c.logger,
	})
	c.broadcaster.Publish(Event{Kind: KindSenderReady})
	return nil
}

func (c *Connector) startHistory() {
	if c.domains == nil {
		return
	}
	if !c.cfg.HasHistory() {
		c.logger.Warn("oauth credentials not configured, history search disabled")
		return
	}

	historyDomain, ok := c.domains.Lookup(csds.ServiceMessagingHistory)
	if !ok {
		c.logger.Warn("service directory has no history entry, history search disabled", "service", csds.ServiceMessagingHistory)
		return
	}
	c.history = history.NewClient(c.cfg.Account.ID, historyDomain, history.Credentials{
		ConsumerKey:    c.cfg.OAuth.ConsumerKey,
		ConsumerSecret: c.cfg.OAuth.ConsumerSecret,
		Token:          c.cfg.OAuth.Token,
		TokenSecret:    c.cfg.OAuth.TokenSecret,
	}, c.logger)
}

func (c *Connector) startListener(ctx context.Context) error {
	if !c.cfg.HasListener() {
		c.logger.Warn("listener not configured, webhook events disabled")
		return nil
	}

	listener := webhook.NewListener(c.cfg.Listener, c.emitWebhook, c.logger)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("starting webhook listener: %w", err)
	}
	c.listener = listener
	c.broadcaster.Publish(Event{Kind: KindListenerReady, Message: listener.Addr()})
	return nil
}

// emitWebhook forwards one webhook change record to subscribers.
func (c *Connector) emitWebhook(eventType string, change json.RawMessage) {
	c.broadcaster.Publish(Event{Kind: KindWebhook, WebhookType: eventType, Change: change})
}

// Events subscribes to the connector event stream. The subscription ends
// when ctx is cancelled.
func (c *Connector) Events(ctx context.Context) <-chan Event {
	ch, _ := c.broadcaster.Subscribe(ctx)
	return ch
}

// ListenerAddr returns the webhook listener address (empty when disabled).
func (c *Connector) ListenerAddr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr()
}

// Domains returns the resolved service directory (nil when disabled).
func (c *Connector) Domains() csds.Directory {
	return c.domains
}

// Shutdown stops the listener, the token refresh loop, and the event stream.
func (c *Connector) Shutdown(ctx context.Context) error {
	var errs []error
	if c.listener != nil {
		if err := c.listener.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.creds != nil {
		c.creds.Close()
	}
	c.broadcaster.Close()
	if len(errs) > 0 {
		return fmt.Errorf("connector shutdown errors: %v", errs)
	}
	return nil
}

// StartConversation opens a new conversation for the external consumer id,
// attaching the profile. The platform refusing because the consumer already
// has one surfaces as a DuplicateConversationError carrying the extracted
// user id.
func (c *Connector) StartConversation(ctx context.Context, externalConsumerID string, profile ums.UserProfile) (*Conversation, error) {
	return c.StartConversationRouted(ctx, externalConsumerID, profile, "", nil)
}

// StartConversationRouted is StartConversation with optional skill or
// campaign routing.
func (c *Connector) StartConversationRouted(ctx context.Context, externalConsumerID string, profile ums.UserProfile, skillID string, campaign *ums.CampaignInfo) (*Conversation, error) {
	if c.dispatcher == nil {
		return nil, &CapabilityError{Capability: "sender", Missing: "app"}
	}

	conv := newConversation(externalConsumerID, profile)
	c.registry.Append(conv)

	sessionToken, err := c.consumerSession(ctx, externalConsumerID)
	if err != nil {
		return nil, err
	}
	conv.setSessionToken(sessionToken)

	events := []ums.Event{
		ums.SetUserProfile(profile),
		ums.RequestConversationRouted(c.cfg.Account.ID, skillID, campaign),
	}
	results, err := c.dispatcher.CreateConversation(ctx, sessionToken, events)
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		if res.Body.ConversationID != "" {
			conv.open(res.Body.ConversationID)
			c.logger.Info("conversation opened", "conversation_id", res.Body.ConversationID, "consumer", externalConsumerID)
			c.broadcaster.Publish(Event{Kind: KindInfo,
				Message: fmt.Sprintf("conversation %s opened for %s", res.Body.ConversationID, externalConsumerID)})
			return conv, nil
		}
		if res.Code == codeBadRequest {
			if userID, ok := extractUserID(res.Body.Msg); ok {
				conv.markDuplicate(userID)
				return nil, &DuplicateConversationError{Conversation: conv}
			}
		}
	}
	return nil, fmt.Errorf("start conversation: response carried no conversation id")
}

// OpenConversation starts a conversation, falling back to the consumer's
// most recent open one when the platform reports a duplicate. The fallback
// needs the history capability.
func (c *Connector) OpenConversation(ctx context.Context, externalConsumerID string, profile ums.UserProfile) (*Conversation, error) {
	conv, err := c.StartConversation(ctx, externalConsumerID, profile)
	if err == nil {
		return conv, nil
	}

	var dup *DuplicateConversationError
	if !errors.As(err, &dup) {
		return nil, err
	}

	conversationID, err := c.GetOpenConversation(ctx, dup.Conversation.UserID())
	if err != nil {
		return nil, fmt.Errorf("resuming conversation for %s: %w", externalConsumerID, err)
	}
	dup.Conversation.open(conversationID)
	c.logger.Info("conversation resumed", "conversation_id", conversationID, "consumer", externalConsumerID)
	c.broadcaster.Publish(Event{Kind: KindInfo,
		Message: fmt.Sprintf("conversation %s resumed for %s", conversationID, externalConsumerID)})
	return dup.Conversation, nil
}

// GetOpenConversation returns the id of the consumer's most recent open
// conversation from the history service.
func (c *Connector) GetOpenConversation(ctx context.Context, consumerID string) (string, error) {
	if c.history == nil {
		return "", &CapabilityError{Capability: "history", Missing: "oauth"}
	}

	records, count, err := c.history.Search(ctx, consumerID, history.StatusOpen)
	if err != nil {
		return "", err
	}
	if count < 1 {
		return "", fmt.Errorf("no open conversations found for consumer %s", consumerID)
	}
	return history.LatestConversationID(records), nil
}

// SendText sends a plain text message into an open conversation.
func (c *Connector) SendText(ctx context.Context, conversationID, text string) (*ums.Result, error) {
	return c.sendEvent(ctx, conversationID, ums.PublishText(conversationID, text))
}

// SetTyping publishes the consumer's composing state.
func (c *Connector) SetTyping(ctx context.Context, conversationID string, state ums.ChatState) (*ums.Result, error) {
	return c.sendEvent(ctx, conversationID, ums.PublishChatState(conversationID, state))
}

// SetMsgAcceptStatus marks the given message sequence numbers as read.
func (c *Connector) SetMsgAcceptStatus(ctx context.Context, conversationID string, sequenceList []int) (*ums.Result, error) {
	return c.sendEvent(ctx, conversationID, ums.PublishAcceptStatus(conversationID, sequenceList))
}

// CloseConversation asks the platform to close the conversation.
func (c *Connector) CloseConversation(ctx context.Context, conversationID string) (*ums.Result, error) {
	return c.sendEvent(ctx, conversationID, ums.EndConversation(conversationID))
}

// SendImageThumbnail publishes a hosted-file message referencing an uploaded
// image, with a base64 preview supplied by the caller.
func (c *Connector) SendImageThumbnail(ctx context.Context, conversationID, caption string, params ums.UploadParams, fileType, encodedPreview string) (*ums.Result, error) {
	return c.sendEvent(ctx, conversationID, ums.PublishImageThumbnail(conversationID, caption, params, fileType, encodedPreview))
}

// RequestUploadURL asks for a pre-signed file upload slot scoped to the
// conversation's consumer.
func (c *Connector) RequestUploadURL(ctx context.Context, conversationID string, fileSize int64, fileType string) (ums.UploadParams, error) {
	res, err := c.sendEvent(ctx, conversationID, ums.RequestUploadURL(fileSize, fileType))
	if err != nil {
		return ums.UploadParams{}, err
	}
	if res.Body.RelativePath == "" {
		return ums.UploadParams{}, fmt.Errorf("request upload url: response carried no upload path (code %s)", res.Code)
	}
	return ums.UploadParams{RelativePath: res.Body.RelativePath, QueryParams: res.Body.QueryParams}, nil
}

// UploadFile streams a local file to a pre-signed upload slot. The caller
// owns the returned response and must close its body.
func (c *Connector) UploadFile(ctx context.Context, path string, params ums.UploadParams) (*http.Response, error) {
	if c.dispatcher == nil {
		return nil, &CapabilityError{Capability: "sender", Missing: "app"}
	}
	return c.dispatcher.UploadFile(ctx, path, params)
}

// GetAgentNickname looks up the display nickname of an agent by participant
// id.
func (c *Connector) GetAgentNickname(ctx context.Context, participantID string) (string, error) {
	if c.domains == nil {
		return "", &CapabilityError{Capability: "domains", Missing: "account"}
	}
	cdnDomain, ok := c.domains.Lookup(csds.ServiceAccountConfigCDN)
	if !ok {
		return "", fmt.Errorf("service directory has no %s entry", csds.ServiceAccountConfigCDN)
	}
	return accountcfg.AgentNickname(ctx, c.httpClient, c.cfg.Account.ID, cdnDomain, participantID)
}

// sendEvent dispatches one event on behalf of the conversation's consumer.
func (c *Connector) sendEvent(ctx context.Context, conversationID string, event ums.Event) (*ums.Result, error) {
	if c.dispatcher == nil {
		return nil, &CapabilityError{Capability: "sender", Missing: "app"}
	}
	conv, ok := c.registry.FindByConversationID(conversationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	return c.dispatcher.Send(ctx, conv.SessionToken(), event)
}

// consumerSession trades the app token for a session JWS scoped to the
// external consumer id.
func (c *Connector) consumerSession(ctx context.Context, externalConsumerID string) (string, error) {
	idpDomain, ok := c.domains.Lookup(csds.ServiceIDP)
	if !ok {
		return "", fmt.Errorf("service directory has no %s entry", csds.ServiceIDP)
	}
	appToken, err := c.creds.Token()
	if err != nil {
		return "", err
	}
	return auth.FetchConsumerToken(ctx, c.httpClient, c.cfg.Account.ID, idpDomain, appToken, externalConsumerID)
}
