package fieldline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// tokenExpirySkew refreshes the cached token slightly before its recorded
	// expiry so in-flight requests don't race the cutoff.
	tokenExpirySkew = 60 * time.Second

	// defaultTokenLifetime is assumed when the auth response omits expires_in.
	defaultTokenLifetime = 900 * time.Second

	// maxPages bounds RequestAllPages against an upstream paging bug.
	maxPages = 20

	// idChunkSize is the largest ids filter the upstream accepts per request.
	idChunkSize = 50

	// errorBodyLimit caps how much of an upstream error body we keep.
	errorBodyLimit = 500
)

// Credentials holds the Fieldline tenant credentials, usually read from env.
type Credentials struct {
	ClientId     string
	ClientSecret string
	TenantId     string
	AppKey       string
	BaseURL      string
	AuthURL      string
}

func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		ClientId:     strings.TrimSpace(os.Getenv("FIELDLINE_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("FIELDLINE_CLIENT_SECRET")),
		TenantId:     strings.TrimSpace(os.Getenv("FIELDLINE_TENANT_ID")),
		AppKey:       strings.TrimSpace(os.Getenv("FIELDLINE_APP_KEY")),
		BaseURL:      strings.TrimSpace(os.Getenv("FIELDLINE_API_BASE_URL")),
		AuthURL:      strings.TrimSpace(os.Getenv("FIELDLINE_AUTH_URL")),
	}
	if creds.BaseURL == "" {
		creds.BaseURL = "https://api.fieldline.io"
	}
	if creds.AuthURL == "" {
		creds.AuthURL = "https://auth.fieldline.io/connect/token"
	}
	if creds.ClientId == "" || creds.ClientSecret == "" {
		return Credentials{}, errors.New("FIELDLINE_CLIENT_ID/FIELDLINE_CLIENT_SECRET not set")
	}
	if creds.TenantId == "" {
		return Credentials{}, errors.New("FIELDLINE_TENANT_ID not set")
	}
	if creds.AppKey == "" {
		return Credentials{}, errors.New("FIELDLINE_APP_KEY not set")
	}
	return creds, nil
}

// APIError is a non-2xx upstream response. Body is truncated; enough to
// diagnose without logging whole payloads.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fieldline api error %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Fieldline REST API for one tenant. Construct once in
// main and inject; the token cache and BU cache live on the instance.
type Client struct {
	creds  Credentials
	http   *http.Client
	logger *logrus.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	buMu    sync.Mutex
	buCache []BusinessUnit
}

func NewClient(creds Credentials, logger *logrus.Logger) *Client {
	return &Client{
		creds:  creds,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// getAccessToken returns the cached bearer token, refreshing via the
// client-credentials grant when within tokenExpirySkew of expiry. The mutex
// guards only the cached fields, not the refresh itself: concurrent callers
// near expiry may each fetch a fresh token. Redundant but harmless; the auth
// endpoint is cheap and every token handed out is valid.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySkew)) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.creds.ClientId)
	form.Set("client_secret", c.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if parsed.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(lifetime)
	c.mu.Unlock()
	return parsed.AccessToken, nil
}

// Request performs one authenticated call. path is relative to the base URL;
// out, when non-nil, receives the decoded JSON response. No automatic retry:
// callers decide whether a failure skips a record or aborts the run.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.creds.BaseURL, "/") + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("FL-App-Key", c.creds.AppKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// ListEnvelope is the upstream paginated list shape.
type ListEnvelope struct {
	Data       []json.RawMessage `json:"data"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount int               `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}

// RequestAllPages walks a paginated list endpoint from page 1, concatenating
// data until hasMore is false. The maxPages limit guards against an upstream
// paging bug; hitting it logs a warning so truncation is never silent.
func (c *Client) RequestAllPages(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	merged := url.Values{}
	for k, vs := range params {
		merged[k] = vs
	}
	if merged.Get("pageSize") == "" {
		merged.Set("pageSize", "200")
	}

	var all []json.RawMessage
	for page := 1; ; page++ {
		if page > maxPages {
			c.logger.WithFields(logrus.Fields{
				"path":     path,
				"maxPages": maxPages,
				"fetched":  len(all),
			}).Warn("page safety limit reached; result set truncated")
			break
		}
		merged.Set("page", strconv.Itoa(page))

		var envelope ListEnvelope
		if err := c.Request(ctx, http.MethodGet, path, merged, nil, &envelope); err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", page, path, err)
		}
		all = append(all, envelope.Data...)
		if !envelope.HasMore {
			break
		}
	}
	return all, nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorBodyLimit {
		return s[:errorBodyLimit]
	}
	return s
}
