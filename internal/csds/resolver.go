// ABOUTME: CSDS service directory resolution for a platform account
// ABOUTME: Fetches the service name to base URI mapping once at startup

package csds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Well-known service names in the directory.
const (
	ServiceSentinel         = "sentinel"
	ServiceIDP              = "idp"
	ServiceAsyncMessaging   = "asyncMessagingEnt"
	ServiceMessagingHistory = "msgHist"
	ServiceAccountConfigCDN = "acCdnDomain"
	ServiceSwift            = "swift"
)

// Directory maps platform service names to their base URIs. It is populated
// once at startup and treated as immutable configuration afterwards.
type Directory map[string]string

// Lookup returns the base URI for a service.
func (d Directory) Lookup(service string) (string, bool) {
	uri, ok := d[service]
	return uri, ok
}

// ResolutionError reports a failed or malformed directory response.
type ResolutionError struct {
	URL    string
	Status int
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("resolving service directory %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("resolving service directory %s: %s", e.URL, e.Reason)
}

// BaseURL turns a directory domain into a request base URL. Domains are
// plain hostnames on the real platform; values that already carry a scheme
// (as test servers do) are used verbatim.
func BaseURL(domain string) string {
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

type directoryResponse struct {
	BaseURIs []struct {
		Service string `json:"service"`
		BaseURI string `json:"baseURI"`
	} `json:"baseURIs"`
}

// Resolver fetches the service directory for an account.
type Resolver struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewResolver creates a resolver. Pass nil for defaults.
func NewResolver(httpClient *http.Client, logger *slog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		httpClient: httpClient,
		logger:     logger.With("component", "csds"),
	}
}

// Resolve fetches the service directory for the account. It fails with a
// ResolutionError on a non-2xx response or when the expected baseURIs list
// is absent or empty.
func (r *Resolver) Resolve(ctx context.Context, accountID, csdsDomain string) (Directory, error) {
	url := fmt.Sprintf("%s/api/account/%s/service/baseURI.json?version=1.0", BaseURL(csdsDomain), accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating directory request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching service directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResolutionError{URL: url, Status: resp.StatusCode}
	}

	var body directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ResolutionError{URL: url, Reason: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(body.BaseURIs) == 0 {
		return nil, &ResolutionError{URL: url, Reason: "response missing baseURIs list"}
	}

	domains := make(Directory, len(body.BaseURIs))
	for _, entry := range body.BaseURIs {
		domains[entry.Service] = entry.BaseURI
	}

	r.logger.Debug("service directory resolved", "account_id", accountID, "services", len(domains))
	return domains, nil
}
