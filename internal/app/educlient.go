package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Endpoints of the e-learning platform's device API, as captured from its
// web client.
const (
	epIndex       = "/nxxzxy/index.html"
	epCaptcha     = "/device/login!get_auth_code.do"
	epLogin       = "/device/login.do"
	epStudyStat   = "/device/user!study_center_stat.do"
	epUserCourses = "/device/userCourse_new!getUserCourse.do"
	epElectives   = "/device/course!optional_course_list.do"
	epSeek        = "/device/study_new!seek.do"
	epScormPlay   = "/device/study_new!scorm_play.do"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:141.0) Gecko/20100101 Firefox/141.0"

// EduClient is the outbound HTTP client for the platform. Cookies live in the
// jar; the token header starts as the fixed bootstrap value and is replaced
// with the server-issued uuid after login.
type EduClient struct {
	logger  zerolog.Logger
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

func NewEduClient(logger zerolog.Logger, baseURL, token string, timeout time.Duration) *EduClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &EduClient{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

func (c *EduClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken swaps the token header value. Called by the session manager after
// a successful login.
func (c *EduClient) SetToken(token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Cookies returns the jar's cookies for the platform origin.
func (c *EduClient) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.client.Jar == nil {
		return nil
	}
	return c.client.Jar.Cookies(u)
}

func (c *EduClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.baseURL+epIndex)
	req.Header.Set("token", c.Token())
	return req, nil
}

// WarmUp fetches the landing page so the server plants its session cookies.
// Best effort; a failure here only matters if the login itself fails too.
func (c *EduClient) WarmUp(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, epIndex, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return asTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchCaptcha retrieves a fresh challenge image. Challenges are single-use
// and expire within seconds.
func (c *EduClient) FetchCaptcha(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, epCaptcha+"?terminal=1&code=88", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// LoginResult is the parsed response of the login form.
type LoginResult struct {
	Status     int    `json:"status"`
	UserID     int64  `json:"user_id"`
	SystemUUID string `json:"system_uuid"`
	Message    string `json:"message"`
	User       struct {
		Realname string `json:"realname"`
		OrgName  string `json:"org_name"`
	} `json:"user"`
}

func (r LoginResult) OK() bool { return r.Status == 1 }

// Login submits the encrypted credentials with the captcha answer.
func (c *EduClient) Login(ctx context.Context, username, encryptedPassword, verifyCode string) (LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", encryptedPassword)
	form.Set("verify_code", verifyCode)
	form.Set("terminal", "1")

	req, err := c.newRequest(ctx, http.MethodPost, epLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return LoginResult{}, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}

	var out LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LoginResult{}, &ProtocolError{Kind: ProtocolMalformedResponse, Message: "login response is not json"}
	}
	return out, nil
}

// CheckSession probes session validity with a cheap authenticated call.
func (c *EduClient) CheckSession(ctx context.Context) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, epStudyStat, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}
	var out struct {
		Status int `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// An HTML login page here means the session is gone.
		return false, nil
	}
	return out.Status == 1, nil
}

// UserCourseRow is one entry of the user's enrolled course list.
type UserCourseRow struct {
	UserCourseID json.Number `json:"user_course_id"`
	CourseID     json.Number `json:"course_id"`
	Name         string      `json:"course_name"`
	DurationMin  float64     `json:"duration"`
	Progress     float64     `json:"process"`
	IsSelect     int         `json:"is_select"`
}

// UserCourses returns the rows the user has actually selected.
func (c *EduClient) UserCourses(ctx context.Context) ([]UserCourseRow, error) {
	req, err := c.newRequest(ctx, http.MethodGet, epUserCourses, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}

	var out struct {
		Rows []UserCourseRow `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{Kind: ProtocolMalformedResponse, Message: "course list is not json"}
	}

	selected := make([]UserCourseRow, 0, len(out.Rows))
	for _, row := range out.Rows {
		if row.IsSelect == 1 {
			selected = append(selected, row)
		}
	}
	return selected, nil
}

// ElectiveCourseIDs returns the course ids of the elective catalogue, used to
// tag enrolled courses by category.
func (c *EduClient) ElectiveCourseIDs(ctx context.Context) (map[string]bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, epElectives+"?course_type=1&current=1&limit=99999&terminal=1", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}

	var out struct {
		Courses []struct {
			CourseID json.Number `json:"course_id"`
		} `json:"courses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{Kind: ProtocolMalformedResponse, Message: "elective list is not json"}
	}
	ids := make(map[string]bool, len(out.Courses))
	for _, course := range out.Courses {
		ids[course.CourseID.String()] = true
	}
	return ids, nil
}

// SubmitProgress posts one encoded progress payload and returns the raw
// response body for the codec to decode.
func (c *EduClient) SubmitProgress(ctx context.Context, userCourseID string, payload url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, epSeek, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", fmt.Sprintf("%s%s?terminal=1&id=%s", c.baseURL, epScormPlay, userCourseID))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, asTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: TransportUnexpectedStatus, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// asTransportError maps client-side HTTP failures onto the transport
// taxonomy. Anything that is neither a timeout nor a reset is still a
// connection-level failure from the caller's point of view.
func asTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TransportError{Kind: TransportConnectionReset, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Kind: TransportConnectionReset, Err: err}
}
