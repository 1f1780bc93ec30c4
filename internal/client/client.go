// Package client talks to the confprog HTTP API on behalf of the sync engine
// and the command-line tool.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"confprog/internal/bookmark"
	appLog "confprog/internal/log"
	"confprog/internal/model"
	"confprog/internal/syncer"
)

// DefaultCookieName matches the server's default session cookie.
const DefaultCookieName = "confprog_session"

// ErrUnauthorized is matched by APIErrors with status 401.
var ErrUnauthorized = errors.New("not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// UserMessage is the server-provided reason, if any.
func (e *APIError) UserMessage() string { return e.Message }

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// TokenStore keeps the session token between process runs.
type TokenStore interface {
	SessionToken() (string, error)
	SetSessionToken(token string) error
}

// Client is an API client. It carries the session cookie itself so that the
// token can be persisted through a TokenStore.
type Client struct {
	base       *url.URL
	http       *http.Client
	cookieName string
	tokens     TokenStore
	token      string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithCookieName(name string) Option {
	return func(c *Client) { c.cookieName = name }
}

func WithTokenStore(ts TokenStore) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates a client for the server at baseURL (e.g. "http://127.0.0.1:8080").
// Requests have no timeout; a dead server surfaces as a transport error.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:       u,
		http:       &http.Client{},
		cookieName: DefaultCookieName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens != nil {
		tok, err := c.tokens.SessionToken()
		if err != nil {
			return nil, fmt.Errorf("load session token: %w", err)
		}
		c.token = tok
	}
	return c, nil
}

var _ syncer.Remote = (*Client)(nil)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type savedLists struct {
	Username      string   `json:"username,omitempty"`
	SavedSessions []string `json:"saved_sessions"`
	SavedPosters  []string `json:"saved_posters"`
	SavedTalks    []string `json:"saved_talks"`
}

func (s savedLists) snapshot() bookmark.Snapshot {
	return bookmark.Snapshot{
		Sessions: nonNil(s.SavedSessions),
		Posters:  nonNil(s.SavedPosters),
		Talks:    nonNil(s.SavedTalks),
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Me validates the current session.
func (c *Client) Me(ctx context.Context) (syncer.Account, error) {
	var out savedLists
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &out); err != nil {
		return syncer.Account{}, err
	}
	return syncer.Account{Username: out.Username, Saved: out.snapshot()}, nil
}

// Login authenticates and returns the server-side bookmark lists.
func (c *Client) Login(ctx context.Context, username, password string) (bookmark.Snapshot, error) {
	var out savedLists
	if err := c.do(ctx, http.MethodPost, "/api/login", credentials{username, password}, &out); err != nil {
		return bookmark.Snapshot{}, err
	}
	return out.snapshot(), nil
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.do(ctx, http.MethodPost, "/api/register", credentials{username, password}, nil)
}

// Logout ends the server session and forgets the local token, whatever the
// server answers.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	c.setToken("")
	return err
}

// SaveProgram uploads the full bookmark snapshot.
func (c *Client) SaveProgram(ctx context.Context, snap bookmark.Snapshot) error {
	body := bookmark.Snapshot{
		Sessions: nonNil(snap.Sessions),
		Posters:  nonNil(snap.Posters),
		Talks:    nonNil(snap.Talks),
	}
	return c.do(ctx, http.MethodPost, "/api/save_program", body, nil)
}

// Program fetches the schedule document.
func (c *Client) Program(ctx context.Context) (*model.Program, error) {
	var p model.Program
	if err := c.do(ctx, http.MethodGet, "/program.json", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Filters describes the server's slot configuration.
type Filters struct {
	TimeSlots      map[string][]string `json:"time_slots"`
	ExactMatchDays []string            `json:"exact_match_days"`
	TalkTypes      []string            `json:"talk_types"`
	PosterTypes    []string            `json:"poster_types"`
	Timezone       string              `json:"timezone"`
}

func (c *Client) Filters(ctx context.Context) (Filters, error) {
	var f Filters
	err := c.do(ctx, http.MethodGet, "/api/filters", nil, &f)
	return f, err
}

func (c *Client) setToken(tok string) {
	c.token = tok
	if c.tokens == nil {
		return
	}
	if err := c.tokens.SetSessionToken(tok); err != nil {
		appLog.Error("persist session token failed", err)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.captureCookie(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// captureCookie follows Set-Cookie for the session cookie, including deletion.
func (c *Client) captureCookie(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name != c.cookieName {
			continue
		}
		if ck.MaxAge < 0 || ck.Value == "" {
			c.setToken("")
		} else {
			c.setToken(ck.Value)
		}
	}
}
