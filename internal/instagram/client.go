package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"foodmap-backend/internal/logger"
	"foodmap-backend/models"
)

const appID = "936619743392459"

// Client talks to the Instagram web API with a stored session. All requests
// go through a shared rate limiter and circuit breaker because the source
// throttles aggressively and fails silently when hammered.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(baseURL, userAgent string, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "InstagramAPI",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	// Keep a small headroom under the configured budget
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)*0.9/60.0), 3)

	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    limiter,
		breaker:    breaker,
	}
}

// Login authenticates with username/password. When the account has 2FA
// enabled it returns a *TwoFactorRequiredError carrying the challenge
// identifier for TwoFactorLogin.
func (c *Client) Login(ctx context.Context, account, password string) (*models.Session, error) {
	csrf, err := c.fetchCSRF(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", account)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password))

	body, cookies, err := c.postForm(ctx, "/accounts/login/ajax/", csrf, form)
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}

	if resp.TwoFactorRequired {
		return nil, &TwoFactorRequiredError{Identifier: resp.TwoFactorInfo.TwoFactorIdentifier}
	}
	if !resp.Authenticated {
		return nil, &AuthError{Reason: ReasonInvalidCredentials}
	}

	return c.sessionFromCookies(account, cookies)
}

// TwoFactorLogin completes a pending two-factor challenge.
func (c *Client) TwoFactorLogin(ctx context.Context, account, identifier, code string) (*models.Session, error) {
	csrf, err := c.fetchCSRF(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", account)
	form.Set("identifier", identifier)
	form.Set("verificationCode", code)

	body, cookies, err := c.postForm(ctx, "/accounts/login/ajax/two_factor/", csrf, form)
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode two-factor response: %w", err)
	}
	if !resp.Authenticated {
		return nil, &AuthError{Reason: ReasonInvalidCredentials}
	}

	return c.sessionFromCookies(account, cookies)
}

// ListSaved returns an iterator over the account's saved-post shortcodes,
// newest first. Each call re-lists from the start; dedup is identifier-based
// downstream, so no upstream cursor is persisted.
func (c *Client) ListSaved(ctx context.Context, session *models.Session) (*SavedIterator, error) {
	if session == nil {
		return nil, ErrUnauthenticated
	}
	return &SavedIterator{client: c, session: session, more: true}, nil
}

// FetchDetail loads the full detail of one saved post.
func (c *Client) FetchDetail(ctx context.Context, session *models.Session, id string) (*PostDetail, error) {
	tracer := otel.Tracer("instagram-client")
	ctx, span := tracer.Start(ctx, "instagram.fetch_detail")
	defer span.End()
	span.SetAttributes(attribute.String("post.id", id))

	body, err := c.getJSON(ctx, session, "/api/v1/media/"+url.PathEscape(id)+"/info/")
	if err != nil {
		return nil, err
	}

	var resp mediaInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode media info: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("post %s: empty media info", id)
	}

	detail := resp.Items[0].toDetail()
	if detail.ID == "" {
		detail.ID = id
	}
	return detail, nil
}

// FetchProfile loads the public profile of a username. Unknown usernames
// return ErrProfileNotFound.
func (c *Client) FetchProfile(ctx context.Context, session *models.Session, username string) (*models.UserProfile, error) {
	body, err := c.getJSON(ctx, session, "/api/v1/users/web_profile_info/?username="+url.QueryEscape(username))
	if err != nil {
		return nil, err
	}

	var resp webProfileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	user := resp.Data.User
	if user == nil || user.Username == "" {
		return nil, ErrProfileNotFound
	}

	return &models.UserProfile{
		Username:   user.Username,
		FullName:   user.FullName,
		Biography:  user.Biography,
		Followers:  user.EdgeFollowedBy.Count,
		Followees:  user.EdgeFollow.Count,
		MediaCount: user.EdgeOwnerToTimelineMedia.Count,
		IsPrivate:  user.IsPrivate,
	}, nil
}

// FetchMedia downloads one media item by its absolute URL.
func (c *Client) FetchMedia(ctx context.Context, session *models.Session, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, session)
	return c.do(req)
}

// SavedIterator walks the paged saved feed. Usage follows bufio.Scanner:
// Next advances, ID returns the current shortcode, Err reports the terminal
// failure after Next returns false.
type SavedIterator struct {
	client  *Client
	session *models.Session

	buf     []string
	current string
	nextMax string
	more    bool
	err     error
}

func (it *SavedIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for len(it.buf) == 0 {
		if !it.more {
			return false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.current = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *SavedIterator) ID() string { return it.current }

func (it *SavedIterator) Err() error { return it.err }

func (it *SavedIterator) fetchPage(ctx context.Context) error {
	path := "/api/v1/feed/saved/posts/"
	if it.nextMax != "" {
		path += "?max_id=" + url.QueryEscape(it.nextMax)
	}

	body, err := it.client.getJSON(ctx, it.session, path)
	if err != nil {
		return err
	}

	var resp savedFeedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode saved feed: %w", err)
	}

	for _, item := range resp.Items {
		if item.Media.Code != "" {
			it.buf = append(it.buf, item.Media.Code)
		}
	}
	it.nextMax = resp.NextMaxID
	it.more = resp.MoreAvailable && resp.NextMaxID != ""
	return nil
}

func (c *Client) fetchCSRF(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/login/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.execute(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrftoken" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("login page returned no csrf token")
}

func (c *Client) postForm(ctx context.Context, path, csrf string, form url.Values) ([]byte, []*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("X-IG-App-ID", appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrf})

	resp, err := c.execute(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := c.checkResponse(resp)
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Cookies(), nil
}

func (c *Client) getJSON(ctx context.Context, session *models.Session, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, session)
	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request, session *models.Session) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-IG-App-ID", appID)
	if session != nil {
		req.Header.Set("X-CSRFToken", session.CSRFToken)
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: session.SessionID})
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: session.CSRFToken})
	}
}

// do executes the request and returns the response body with source errors
// mapped to the package taxonomy.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.execute(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.checkResponse(resp)
}

// execute runs a request through the limiter and breaker.
func (c *Client) execute(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &RateLimitError{}
		}
		return nil, fmt.Errorf("instagram request: %w", err)
	}
	return result.(*http.Response), nil
}

// maxResponseBytes caps how much of any response body is read. Bodies over
// the cap fail the request instead of being silently truncated.
const maxResponseBytes = 32 << 20

func (c *Client) checkResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("instagram returned status %d", resp.StatusCode)
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func (c *Client) sessionFromCookies(account string, cookies []*http.Cookie) (*models.Session, error) {
	session := &models.Session{
		Account:   account,
		UserAgent: c.userAgent,
		CreatedAt: time.Now().UTC(),
		Valid:     true,
	}
	for _, cookie := range cookies {
		switch cookie.Name {
		case "sessionid":
			session.SessionID = cookie.Value
		case "csrftoken":
			session.CSRFToken = cookie.Value
		}
	}
	if session.SessionID == "" {
		return nil, &AuthError{Reason: ReasonNetwork, Err: fmt.Errorf("login response carried no session cookie")}
	}
	return session, nil
}
