// ABOUTME: OAuth1-signed conversation history search for a consumer
// ABOUTME: Finds ongoing conversations so a duplicate-create can be resumed

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dghubble/oauth1"

	"github.com/2389/liveconnect/internal/csds"
)

// Conversation states accepted by the search endpoint.
const (
	StatusOpen  = "OPEN"
	StatusClose = "CLOSE"
)

// Credentials is the OAuth1 tuple for the messaging interactions API.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// Record is one conversation history entry.
type Record struct {
	Info RecordInfo `json:"info"`
}

// RecordInfo carries the fields of a history record the connector uses.
type RecordInfo struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status,omitempty"`
}

type searchRequest struct {
	Consumer string   `json:"consumer"`
	Status   []string `json:"status"`
}

type searchResponse struct {
	Metadata struct {
		Count int `json:"count"`
	} `json:"_metadata"`
	Records []Record `json:"conversationHistoryRecords"`
}

// Client searches the conversation history of an account. Requests are
// OAuth1-signed.
type Client struct {
	accountID  string
	domain     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a history client for the given msgHist domain.
func NewClient(accountID, domain string, creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	oauthConfig := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.Token, creds.TokenSecret)
	return &Client{
		accountID:  accountID,
		domain:     domain,
		httpClient: oauthConfig.Client(oauth1.NoContext, token),
		logger:     logger.With("component", "history"),
	}
}

// Search returns the consumer's conversations in the given state, in the
// order the platform lists them, along with the reported total count.
func (c *Client) Search(ctx context.Context, consumerID, status string) ([]Record, int, error) {
	endpoint := fmt.Sprintf("%s/messaging_history/api/account/%s/conversations/consumer/search",
		csds.BaseURL(c.domain), c.accountID)

	payload, err := json.Marshal(searchRequest{Consumer: consumerID, Status: []string{status}})
	if err != nil {
		return nil, 0, fmt.Errorf("encoding history search: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("creating history search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("history search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, fmt.Errorf("history search: status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decoding history search response: %w", err)
	}

	c.logger.Debug("history search", "consumer", consumerID, "status", status, "count", body.Metadata.Count)
	return body.Records, body.Metadata.Count, nil
}

// LatestConversationID returns the conversation id of the most recent
// record. The platform lists records oldest first, so the last element is
// authoritative. Empty input yields an empty id.
func LatestConversationID(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	return records[len(records)-1].Info.ConversationID
}
