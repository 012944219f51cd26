package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/model"
)

const (
	studioTimeout = 30 * time.Second
	clerkTimeout  = 15 * time.Second

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	studioOrigin     = "https://suno.com"
)

// ErrMissingCookie is returned when the direct client is built without a cookie.
var ErrMissingCookie = fmt.Errorf("%w: SUNO_COOKIE", config.ErrMissingSecret)

// SessionState is the authentication state of a studio session
type SessionState int

const (
	SessionUnauthenticated SessionState = iota
	SessionAuthenticated
	SessionRefreshing
	SessionDenied
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionRefreshing:
		return "refreshing"
	case SessionDenied:
		return "denied"
	default:
		return "unauthenticated"
	}
}

// SessionCredentials identify a browser session on the Suno studio
type SessionCredentials struct {
	Cookie       string
	SessionToken string
	SessionID    string
}

// SunoDirectClient talks to the studio API with a browser session. The
// bearer token is short-lived and refreshed through Clerk on demand.
type SunoDirectClient struct {
	httpClient Doer
	baseURL    string
	clerkURL   string
	jsVersion  string

	mu    sync.Mutex
	creds SessionCredentials
	state SessionState
}

// studioClip is the studio API shape of a clip
type studioClip struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	AudioURL  string `json:"audio_url"`
	ImageURL  string `json:"image_url"`
	VideoURL  string `json:"video_url"`
	Status    string `json:"status"`
	ModelName string `json:"model_name"`
	CreatedAt string `json:"created_at"`
	Metadata  struct {
		Duration *float64 `json:"duration"`
		Tags     string   `json:"tags"`
		Prompt   string   `json:"prompt"`
	} `json:"metadata"`
}

func (c studioClip) toLibraryClip() model.LibraryClip {
	out := model.LibraryClip{
		ID:        c.ID,
		Title:     c.Title,
		AudioURL:  c.AudioURL,
		ImageURL:  c.ImageURL,
		VideoURL:  c.VideoURL,
		Status:    c.Status,
		ModelName: c.ModelName,
		CreatedAt: c.CreatedAt,
		Tags:      c.Metadata.Tags,
		Prompt:    c.Metadata.Prompt,
	}
	if c.Metadata.Duration != nil {
		out.Duration = *c.Metadata.Duration
	}
	return out
}

// feedPage accepts a bare list or a {clips} / {data} envelope
type feedPage []studioClip

func (f *feedPage) UnmarshalJSON(b []byte) error {
	var list []studioClip
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var obj struct {
		Clips []studioClip `json:"clips"`
		Data  []studioClip `json:"data"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("unexpected feed shape: %w", err)
	}
	if obj.Clips != nil {
		*f = obj.Clips
	} else {
		*f = obj.Data
	}
	return nil
}

// NewSunoDirectClient resolves the session ID and obtains a fresh token.
// httpClient may be nil.
func NewSunoDirectClient(ctx context.Context, cfg *config.SunoDirectConfig, httpClient Doer) (*SunoDirectClient, error) {
	if cfg.Cookie == "" {
		return nil, ErrMissingCookie
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: studioTimeout}
	}
	jsVersion := cfg.ClerkJSVersion
	if jsVersion == "" {
		jsVersion = "5.56.0"
	}

	c := &SunoDirectClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clerkURL:   strings.TrimRight(cfg.ClerkURL, "/"),
		jsVersion:  jsVersion,
		creds: SessionCredentials{
			Cookie:       cfg.Cookie,
			SessionToken: cfg.SessionToken,
			SessionID:    sessionIDFromToken(cfg.SessionToken),
		},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// sessionIDFromToken reads the sid claim without verifying the signature.
// The token is only used to locate the session; Clerk validates it.
func sessionIDFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		log.Printf("[Suno Direct] Could not decode session token: %v", err)
		return ""
	}
	sid, _ := claims["sid"].(string)
	return sid
}

// State returns the current session state.
func (c *SunoDirectClient) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credentials returns a copy of the current session credentials.
func (c *SunoDirectClient) Credentials() SessionCredentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Refresh obtains a new bearer token from Clerk.
func (c *SunoDirectClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *SunoDirectClient) refreshLocked(ctx context.Context) error {
	prev := c.state
	c.state = SessionRefreshing

	if c.creds.SessionID == "" {
		sid, err := c.lookupSessionID(ctx)
		if err != nil {
			log.Printf("[Suno Direct] Session lookup failed: %v", err)
		}
		c.creds.SessionID = sid
	}
	if c.creds.SessionID == "" {
		c.state = SessionDenied
		return fmt.Errorf("%w: no session id found, renew SUNO_SESSION", ErrSessionDenied)
	}

	endpoint := fmt.Sprintf("%s/v1/client/sessions/%s/tokens?_clerk_js_version=%s",
		c.clerkURL, url.PathEscape(c.creds.SessionID), url.QueryEscape(c.jsVersion))

	body, status, err := c.clerkCall(ctx, http.MethodPost, endpoint)
	if err != nil {
		c.state = prev
		return err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.state = SessionDenied
		return fmt.Errorf("%w: token refresh rejected (status %d)", ErrSessionDenied, status)
	case status != http.StatusOK:
		c.state = prev
		return &APIError{StatusCode: status, Message: "token refresh failed: " + truncate(string(body), 200)}
	}

	var tok struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.JWT == "" {
		c.state = prev
		return &APIError{StatusCode: status, Message: "token refresh returned no jwt"}
	}

	c.creds.SessionToken = tok.JWT
	c.state = SessionAuthenticated
	log.Printf("[Suno Direct] Token refreshed for session %s", c.creds.SessionID)
	return nil
}

// lookupSessionID asks Clerk for the sessions bound to the cookie, preferring
// an active one.
func (c *SunoDirectClient) lookupSessionID(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/client?_clerk_js_version=%s", c.clerkURL, url.QueryEscape(c.jsVersion))
	body, status, err := c.clerkCall(ctx, http.MethodGet, endpoint)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("client lookup returned status %d", status)
	}

	type session struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	var doc struct {
		Response *struct {
			Sessions []session `json:"sessions"`
		} `json:"response"`
		Sessions []session `json:"sessions"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to unmarshal client: %w", err)
	}
	sessions := doc.Sessions
	if doc.Response != nil {
		sessions = doc.Response.Sessions
	}

	for _, s := range sessions {
		if s.Status == "active" {
			return s.ID, nil
		}
	}
	if len(sessions) > 0 {
		return sessions[0].ID, nil
	}
	return "", nil
}

func (c *SunoDirectClient) clerkCall(ctx context.Context, method, endpoint string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, clerkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cookie", "__client="+c.creds.Cookie)
	req.Header.Set("User-Agent", browserUserAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Origin", studioOrigin)
		req.Header.Set("Referer", studioOrigin+"/")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: clerk: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: clerk: %v", ErrConnection, err)
	}
	return body, resp.StatusCode, nil
}

// do sends an authenticated studio request. On 401/403 the token is
// refreshed and the request retried once; a second rejection denies the
// session for the rest of the process lifetime.
func (c *SunoDirectClient) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == SessionDenied {
		return nil, ErrSessionDenied
	}

	for attempt := 0; ; attempt++ {
		body, status, err := c.studioCall(ctx, method, endpoint)
		if err != nil {
			return nil, err
		}

		switch status {
		case http.StatusOK:
			return body, nil
		case http.StatusUnauthorized, http.StatusForbidden:
			if attempt > 0 {
				c.state = SessionDenied
				log.Printf("[Suno Direct] %s %s — rejected after refresh (status %d)", method, endpoint, status)
				return nil, ErrSessionDenied
			}
			log.Printf("[Suno Direct] %s %s — status %d, refreshing token", method, endpoint, status)
			if err := c.refreshLocked(ctx); err != nil {
				if errors.Is(err, ErrSessionDenied) {
					return nil, ErrSessionDenied
				}
				return nil, err
			}
		case http.StatusServiceUnavailable:
			return nil, ErrServiceUnavailable
		default:
			return nil, &APIError{StatusCode: status, Message: truncate(string(body), 200)}
		}
	}
}

func (c *SunoDirectClient) studioCall(ctx context.Context, method, endpoint string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, studioTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.SessionToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Origin", studioOrigin)
	req.Header.Set("Referer", studioOrigin+"/")
	req.Header.Set("Accept", "*/*")

	log.Printf("[Suno Direct] → %s %s", method, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return body, resp.StatusCode, nil
}

// GetFeed returns one page (about 20 clips) of the user's library. Pages start at 0.
func (c *SunoDirectClient) GetFeed(ctx context.Context, page int) ([]model.LibraryClip, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/feed/?page=%d", page))
	if err != nil {
		return nil, err
	}
	var feed feedPage
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, err
	}
	clips := make([]model.LibraryClip, 0, len(feed))
	for _, sc := range feed {
		clips = append(clips, sc.toLibraryClip())
	}
	return clips, nil
}

// GetClip returns details of a single library clip.
func (c *SunoDirectClient) GetClip(ctx context.Context, clipID string) (*model.LibraryClip, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/clip/"+url.PathEscape(clipID))
	if err != nil {
		return nil, err
	}
	var sc studioClip
	if err := json.Unmarshal(body, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clip: %w", err)
	}
	clip := sc.toLibraryClip()
	return &clip, nil
}
