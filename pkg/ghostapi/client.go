// Package ghostapi is the HTTP client for the PhantomLink backend.
//
// The backend keeps all conversation state in a cookie-based session: the
// login cookie identifies the user, and the server accumulates the running
// conversation and sentiment score between calls. [Client] therefore owns a
// cookie jar, which callers may persist and restore between runs with
// [Client.Cookies] and [WithCookies].
//
// Every method is safe for concurrent use.
package ghostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/MrWong99/phantomlink/internal/resilience"
)

// API is the set of backend operations the client runtime depends on.
// [Client] implements it; ghostapi/mock provides a test double.
type API interface {
	// Me returns the logged-in username, or "" when the session is anonymous.
	Me(ctx context.Context) (string, error)

	// Location returns the location stored in the session, or
	// [ErrLocationNotShared].
	Location(ctx context.Context) (Location, error)

	// ShareLocation sends coordinates for reverse geocoding and returns the
	// resolved location. The location is zero if the confirmation could not be
	// parsed.
	ShareLocation(ctx context.Context, latitude, longitude float64) (Location, error)

	// Ghosts lists catalogued ghosts for loc.
	Ghosts(ctx context.Context, loc Location) ([]Ghost, error)

	// SelectGhost marks the ghost the next conversation should impersonate.
	SelectGhost(ghostID int) error

	// Chat sends one user message and returns the ghost's reply.
	Chat(ctx context.Context, message string) (ChatReply, error)

	// EndConversation asks the backend to persist the running conversation.
	EndConversation(ctx context.Context) (EndResult, error)

	// ResetSession discards the server-side conversation.
	ResetSession(ctx context.Context) error

	// Logout ends the session.
	Logout(ctx context.Context) error

	// Conversations lists the user's saved conversations, newest first.
	Conversations(ctx context.Context) ([]Conversation, error)
}

var _ API = (*Client)(nil)

const defaultTimeout = 30 * time.Second

// Option configures a [Client].
type Option func(*Client)

// WithTransport sets the HTTP round tripper, e.g. an instrumented one.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBreaker guards every call with cb. Transport failures and 5xx responses
// count as failures; client errors do not.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithCookies seeds the jar with previously persisted cookies.
func WithCookies(cookies []*http.Cookie) Option {
	return func(c *Client) { c.seed = cookies }
}

// Client talks to the PhantomLink backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	jar     *cookiejar.Jar
	breaker *resilience.CircuitBreaker
	seed    []*http.Cookie
}

// New returns a client for the backend at baseURL (e.g. "http://localhost:5000").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ghostapi: base URL must not be empty")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ghostapi: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("ghostapi: base URL %q must be http or https", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("ghostapi: cookie jar: %w", err)
	}

	c := &Client{
		base: base,
		jar:  jar,
		http: &http.Client{Jar: jar, Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if len(c.seed) > 0 {
		jar.SetCookies(base, c.seed)
		c.seed = nil
	}
	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.base.String() }

// Cookies returns the session cookies for persistence.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.base)
}

// ClearCookies drops every cookie for the backend.
func (c *Client) ClearCookies() {
	expired := make([]*http.Cookie, 0)
	for _, ck := range c.jar.Cookies(c.base) {
		expired = append(expired, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.base, expired)
}

// ── Endpoints ────────────────────────────────────────────────────────────────

// Me implements [API].
func (c *Client) Me(ctx context.Context) (string, error) {
	var body struct {
		Username *string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, &body); err != nil {
		return "", err
	}
	if body.Username == nil {
		return "", nil
	}
	return *body.Username, nil
}

// Location implements [API].
func (c *Client) Location(ctx context.Context) (Location, error) {
	var loc Location
	err := c.do(ctx, http.MethodGet, "/location", nil, &loc)
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusBadRequest {
		return Location{}, fmt.Errorf("%w: %s", ErrLocationNotShared, re.Message)
	}
	if err != nil {
		return Location{}, err
	}
	if loc.IsZero() {
		return Location{}, ErrLocationNotShared
	}
	return loc, nil
}

var locationMessage = regexp.MustCompile(`city=(.*?), state=(.*)$`)

// ShareLocation implements [API].
func (c *Client) ShareLocation(ctx context.Context, latitude, longitude float64) (Location, error) {
	req := struct {
		Latitude        float64 `json:"latitude"`
		Longitude       float64 `json:"longitude"`
		LocationAllowed bool    `json:"location_allowed"`
	}{latitude, longitude, true}
	var body struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/location", req, &body); err != nil {
		return Location{}, err
	}
	return parseLocationMessage(body.Message), nil
}

// parseLocationMessage extracts city and state from the confirmation text
// "Location received successfully. latitude=…, longitude=…, city=X, state=Y".
func parseLocationMessage(msg string) Location {
	m := locationMessage.FindStringSubmatch(strings.TrimSpace(msg))
	if m == nil {
		return Location{}
	}
	loc := Location{City: strings.TrimSpace(m[1]), State: strings.TrimSpace(m[2])}
	if loc.State == "None" {
		loc.State = ""
	}
	return loc
}

// Ghosts implements [API].
func (c *Client) Ghosts(ctx context.Context, loc Location) ([]Ghost, error) {
	q := url.Values{}
	q.Set("city", loc.City)
	q.Set("state", loc.State)
	var body struct {
		Ghosts []Ghost `json:"ghosts"`
	}
	if err := c.do(ctx, http.MethodGet, "/ghosts?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}
	return body.Ghosts, nil
}

// SelectGhost implements [API]. It only touches the local cookie jar.
func (c *Client) SelectGhost(ghostID int) error {
	if ghostID <= 0 {
		return fmt.Errorf("ghostapi: invalid ghost id %d", ghostID)
	}
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:   SelectedGhostCookie,
		Value:  strconv.Itoa(ghostID),
		Path:   "/",
		MaxAge: int(SelectedGhostMaxAge / time.Second),
	}})
	return nil
}

// Chat implements [API]. A 2xx response without a non-empty reply is reported
// as [ErrMalformedResponse].
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	req := struct {
		Message string `json:"message"`
	}{message}
	var body struct {
		Reply     *string  `json:"reply"`
		Sentiment *float64 `json:"sentiment"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat", req, &body); err != nil {
		return ChatReply{}, err
	}
	if body.Reply == nil || strings.TrimSpace(*body.Reply) == "" {
		return ChatReply{}, fmt.Errorf("%w: POST /chat: missing reply", ErrMalformedResponse)
	}
	reply := ChatReply{Reply: *body.Reply, Sentiment: math.NaN()}
	if body.Sentiment != nil {
		reply.Sentiment = *body.Sentiment
	}
	return reply, nil
}

// EndConversation implements [API]. Check [EndResult.Saved] for the outcome.
func (c *Client) EndConversation(ctx context.Context) (EndResult, error) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/end-conversation", struct{}{}, &body); err != nil {
		return EndResult{}, err
	}
	return EndResult{Message: body.Message}, nil
}

// ResetSession implements [API].
func (c *Client) ResetSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/reset-session", struct{}{}, nil)
}

// Logout implements [API]. Local cookies are cleared even if the call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", struct{}{}, nil)
	c.ClearCookies()
	return err
}

// Conversations implements [API].
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var body struct {
		Conversations []struct {
			Conversation
			Timestamp string `json:"timestamp"`
		} `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &body); err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(body.Conversations))
	for _, w := range body.Conversations {
		conv := w.Conversation
		conv.Timestamp = parseTimestamp(w.Timestamp)
		out = append(out, conv)
	}
	return out, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ── Transport ────────────────────────────────────────────────────────────────

// do performs one JSON request. in is marshalled as the body when non-nil; out
// is decoded from a 2xx body when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + strings.SplitN(path, "?", 2)[0]
	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, op, method, path, in, out)
	}
	if c.breaker == nil {
		return call(ctx)
	}
	err := c.breaker.Do(ctx, call)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &RemoteError{Op: op, Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ghostapi: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("ghostapi: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := &RemoteError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			re.Err = ErrUnauthenticated
		case re.Message != "":
			re.Err = errors.New(re.Message)
		default:
			re.Err = errors.New(http.StatusText(resp.StatusCode))
		}
		return re
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%w: %s: empty body", ErrMalformedResponse, op)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil {
		return e.Error
	}
	return ""
}

// IsBreakerFailure classifies errors returned by [Client] requests for a
// [resilience.CircuitBreaker]. Only transport failures and 5xx responses mean
// the backend is unhealthy; client errors, malformed bodies and cancellations
// do not count.
func IsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.Status == 0 || re.Status >= 500
}
