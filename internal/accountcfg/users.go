// ABOUTME: Account configuration lookups served from the AC CDN
// ABOUTME: Currently only the agent nickname by participant id

package accountcfg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/liveconnect/internal/csds"
)

type userResponse struct {
	Nickname string `json:"nickname"`
}

// AgentNickname returns an agent's display nickname by participant id (PID)
// from the account configuration users endpoint.
func AgentNickname(ctx context.Context, client *http.Client, accountID, cdnDomain, pid string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := fmt.Sprintf("%s/api/account/%s/configuration/le-users/users/%s",
		csds.BaseURL(cdnDomain), accountID, pid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating user request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching user %s: %w", pid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching user %s: status %d %s", pid, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding user response: %w", err)
	}
	return body.Nickname, nil
}
