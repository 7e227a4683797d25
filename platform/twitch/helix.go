package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	helixBaseURL = "https://api.twitch.tv/helix"
	tokenURL     = "https://id.twitch.tv/oauth2/token"
)

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat; chat requires the bot's user OAuth token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// URL overrides the token endpoint.
	URL string

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second { // 1 min buffer
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	endpoint := ts.URL
	if endpoint == "" {
		endpoint = tokenURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient(ts.HTTPClient).Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("twitch token request failed: %s: %s", resp.Status, string(b))
	}
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", err
	}
	if at.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	ts.token = at.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(at.ExpiresIn) * time.Second)
	return ts.token, nil
}

// Directory resolves channel logins to broadcaster display names through Helix. Results are
// cached for the life of the process.
type Directory struct {
	Tokens     *TokenSource
	ClientID   string
	HTTPClient *http.Client
	// BaseURL overrides the Helix API root.
	BaseURL string

	mu    sync.Mutex
	names map[string]string
}

// NewDirectory returns a directory authenticated with an app token for clientID.
func NewDirectory(clientID, clientSecret string) *Directory {
	return &Directory{
		Tokens:   &TokenSource{ClientID: clientID, ClientSecret: clientSecret},
		ClientID: clientID,
	}
}

// DisplayName returns the display name of the user with the given login.
func (d *Directory) DisplayName(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(strings.TrimPrefix(login, "#"))
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	d.mu.Lock()
	if name, ok := d.names[login]; ok {
		d.mu.Unlock()
		return name, nil
	}
	d.mu.Unlock()

	tok, err := d.Tokens.Get(ctx)
	if err != nil {
		return "", err
	}
	base := d.BaseURL
	if base == "" {
		base = helixBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/users", nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", d.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := httpClient(d.HTTPClient).Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("helix users: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	name := body.Data[0].DisplayName
	if name == "" {
		name = body.Data[0].Login
	}
	d.mu.Lock()
	if d.names == nil {
		d.names = make(map[string]string)
	}
	d.names[login] = name
	d.mu.Unlock()
	return name, nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
