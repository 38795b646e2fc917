// ABOUTME: Consumer session token (JWS) exchange against the IDP endpoint
// ABOUTME: Trades the app token for a token scoped to one external consumer identity

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/liveconnect/internal/csds"
)

type consumerTokenRequest struct {
	ExtConsumerID string `json:"ext_consumer_id"`
}

type consumerTokenResponse struct {
	Token string `json:"token"`
}

// FetchConsumerToken exchanges the app token for a JWS scoped to the given
// external consumer id. An empty id is replaced with a generated one, so
// anonymous consumers still get a distinct identity.
func FetchConsumerToken(ctx context.Context, client *http.Client, accountID, idpDomain, appToken, externalConsumerID string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if externalConsumerID == "" {
		externalConsumerID = "random_id." + uuid.NewString()
	}

	endpoint := fmt.Sprintf("%s/api/account/%s/consumer?v=1.0", csds.BaseURL(idpDomain), accountID)

	payload, err := json.Marshal(consumerTokenRequest{ExtConsumerID: externalConsumerID})
	if err != nil {
		return "", fmt.Errorf("encoding consumer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating consumer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", appToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching consumer token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching consumer token: status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body consumerTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding consumer token response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("consumer token not obtained for %s", externalConsumerID)
	}
	return body.Token, nil
}
