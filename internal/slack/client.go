// Package slack is the conversation-source collaborator: it fetches
// thread messages, posts replies, and maintains the socket-mode
// connection used by the listener.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// Client talks to the Slack Web API. botToken authorizes data calls;
// appToken is only used to open socket-mode connections.
type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

// New creates a Slack client. httpClient may be nil.
func New(httpClient *http.Client, baseURL, botToken, appToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
		appToken: strings.TrimSpace(appToken),
	}
}

// File is an uploaded file reference on a message.
type File struct {
	PermalinkPublic string `json:"permalink_public,omitempty"`
	Permalink       string `json:"permalink,omitempty"`
	URLPrivate      string `json:"url_private,omitempty"`
}

// Attachment is a legacy message attachment.
type Attachment struct {
	Permalink string `json:"permalink,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ThumbURL  string `json:"thumb_url,omitempty"`
}

// ThreadMessage is one message in a conversation thread.
type ThreadMessage struct {
	TS          string       `json:"ts"`
	User        string       `json:"user,omitempty"`
	BotID       string       `json:"bot_id,omitempty"`
	Text        string       `json:"text,omitempty"`
	Files       []File       `json:"files,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Author returns the message author: the user id, falling back to the
// bot id, then "unknown".
func (m ThreadMessage) Author() string {
	if m.User != "" {
		return m.User
	}
	if m.BotID != "" {
		return m.BotID
	}
	return "unknown"
}

// AttachmentURLs extracts the best available URL per file and per
// legacy attachment, in message order.
func (m ThreadMessage) AttachmentURLs() []string {
	var urls []string
	for _, f := range m.Files {
		switch {
		case f.PermalinkPublic != "":
			urls = append(urls, f.PermalinkPublic)
		case f.Permalink != "":
			urls = append(urls, f.Permalink)
		case f.URLPrivate != "":
			urls = append(urls, f.URLPrivate)
		}
	}
	for _, a := range m.Attachments {
		switch {
		case a.Permalink != "":
			urls = append(urls, a.Permalink)
		case a.ImageURL != "":
			urls = append(urls, a.ImageURL)
		case a.ThumbURL != "":
			urls = append(urls, a.ThumbURL)
		}
	}
	return urls
}

type repliesResponse struct {
	OK               bool            `json:"ok"`
	Error            string          `json:"error,omitempty"`
	Messages         []ThreadMessage `json:"messages"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ThreadReplies fetches all messages of a thread, oldest first,
// following pagination cursors.
func (c *Client) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]ThreadMessage, error) {
	var all []ThreadMessage
	cursor := ""

	for {
		params := map[string]string{
			"channel": channelID,
			"ts":      threadTS,
			"limit":   "999",
		}
		if cursor != "" {
			params["cursor"] = cursor
		}
		body, status, _, err := c.getAuth(ctx, "/conversations.replies", params)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("slack conversations.replies http %d", status)
		}
		var out repliesResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("parse conversations.replies: %w", err)
		}
		if !out.OK {
			return nil, fmt.Errorf("slack conversations.replies failed: %s", apiError(out.Error))
		}
		all = append(all, out.Messages...)

		cursor = strings.TrimSpace(out.ResponseMetadata.NextCursor)
		if cursor == "" {
			break
		}
	}
	return all, nil
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// PostMessage posts text to a channel, threaded when threadTS is set.
// Rate limits and 5xx responses are retried up to three attempts.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	if channelID == "" {
		return fmt.Errorf("channel id is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, headers, err := c.postAuthJSON(ctx, c.botToken, "/chat.postMessage", postMessageRequest{
			Channel:  channelID,
			Text:     text,
			ThreadTS: threadTS,
		})
		if err != nil {
			lastErr = err
		} else {
			var out postMessageResponse
			if parseErr := json.Unmarshal(body, &out); parseErr != nil {
				lastErr = parseErr
			} else if status < 200 || status >= 300 {
				lastErr = fmt.Errorf("slack chat.postMessage http %d", status)
			} else if out.OK {
				return nil
			} else {
				lastErr = fmt.Errorf("slack chat.postMessage failed: %s", apiError(out.Error))
			}
		}

		if attempt >= maxAttempts {
			break
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

type authTestResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	Team   string `json:"team,omitempty"`
	User   string `json:"user,omitempty"`
}

// Identity describes the authenticated bot.
type Identity struct {
	TeamID string
	UserID string
	BotID  string
	Team   string
	User   string
}

// AuthTest verifies the bot token and returns the bot's identity.
func (c *Client) AuthTest(ctx context.Context) (Identity, error) {
	body, status, _, err := c.postAuthJSON(ctx, c.botToken, "/auth.test", nil)
	if err != nil {
		return Identity{}, err
	}
	if status < 200 || status >= 300 {
		return Identity{}, fmt.Errorf("slack auth.test http %d", status)
	}
	var out authTestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Identity{}, err
	}
	if !out.OK {
		return Identity{}, fmt.Errorf("slack auth.test failed: %s", apiError(out.Error))
	}
	return Identity{
		TeamID: out.TeamID,
		UserID: out.UserID,
		BotID:  out.BotID,
		Team:   out.Team,
		User:   out.User,
	}, nil
}

type openConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ConnectSocket opens a socket-mode connection using the app token and
// dials the returned websocket URL.
func (c *Client) ConnectSocket(ctx context.Context) (*websocket.Conn, error) {
	if c.appToken == "" {
		return nil, fmt.Errorf("slack app token is required for socket mode")
	}
	body, status, _, err := c.postAuthJSON(ctx, c.appToken, "/apps.connections.open", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("slack apps.connections.open http %d", status)
	}
	var out openConnectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("slack apps.connections.open failed: %s", apiError(out.Error))
	}
	url := strings.TrimSpace(out.URL)
	if url == "" {
		return nil, fmt.Errorf("slack apps.connections.open returned empty url")
	}

	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial socket mode: %w", err)
	}
	return conn, nil
}

func apiError(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown_error"
	}
	return code
}

// retryDelay decides whether a failed call should be retried and after
// how long. 429 honors Retry-After; 5xx backs off by attempt.
func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) getAuth(ctx context.Context, path string, params map[string]string) ([]byte, int, http.Header, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	return c.do(req)
}

func (c *Client) postAuthJSON(ctx context.Context, token, path string, payload any) ([]byte, int, http.Header, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}
