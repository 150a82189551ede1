package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadReplies_Pagination(t *testing.T) {
	var calls []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations.replies", r.URL.Path)
		require.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		require.Equal(t, "C01", r.URL.Query().Get("channel"))
		require.Equal(t, "1700000000.000100", r.URL.Query().Get("ts"))

		cursor := r.URL.Query().Get("cursor")
		calls = append(calls, cursor)
		switch cursor {
		case "":
			fmt.Fprint(w, `{"ok":true,"messages":[{"ts":"1","user":"U01","text":"first"}],"response_metadata":{"next_cursor":"page2"}}`)
		case "page2":
			fmt.Fprint(w, `{"ok":true,"messages":[{"ts":"2","user":"U02","text":"second"}],"response_metadata":{"next_cursor":""}}`)
		default:
			t.Fatalf("unexpected cursor %q", cursor)
		}
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	msgs, err := c.ThreadReplies(context.Background(), "C01", "1700000000.000100")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "page2"}, calls)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "U02", msgs[1].User)
}

func TestThreadReplies_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"thread_not_found"}`)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	_, err := c.ThreadReplies(context.Background(), "C01", "1.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thread_not_found")
}

func TestPostMessage(t *testing.T) {
	var gotReq postMessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		require.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"ok":true,"ts":"1700000000.000500"}`)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	err := c.PostMessage(context.Background(), "C01", "1700000000.000100", "on it")
	require.NoError(t, err)

	assert.Equal(t, "C01", gotReq.Channel)
	assert.Equal(t, "1700000000.000100", gotReq.ThreadTS)
	assert.Equal(t, "on it", gotReq.Text)
}

func TestPostMessage_RetriesServerError(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	err := c.PostMessage(context.Background(), "C01", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestPostMessage_GivesUpAfterThreeAttempts(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	err := c.PostMessage(context.Background(), "C01", "", "hello")
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "http 500")
}

func TestPostMessage_DoesNotRetryAPIError(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	err := c.PostMessage(context.Background(), "C01", "", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "ok=false with http 200 is not retryable")
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestPostMessage_Validation(t *testing.T) {
	c := New(nil, "http://unused.invalid", "xoxb-test", "")

	err := c.PostMessage(context.Background(), "", "", "hello")
	assert.ErrorContains(t, err, "channel id")

	err = c.PostMessage(context.Background(), "C01", "", "")
	assert.ErrorContains(t, err, "text")
}

func TestAuthTest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth.test", r.URL.Path)
		fmt.Fprint(w, `{"ok":true,"team_id":"T01","user_id":"U0BOT","bot_id":"B01","team":"hackclub","user":"triage"}`)
	}))
	defer ts.Close()

	c := New(nil, ts.URL, "xoxb-test", "")
	id, err := c.AuthTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{TeamID: "T01", UserID: "U0BOT", BotID: "B01", Team: "hackclub", User: "triage"}, id)
}

func TestAuthTest_MissingToken(t *testing.T) {
	c := New(nil, "http://unused.invalid", "", "")

	_, err := c.AuthTest(context.Background())
	assert.ErrorContains(t, err, "token is required")
}

func TestMessageAuthor(t *testing.T) {
	assert.Equal(t, "U01", ThreadMessage{User: "U01", BotID: "B01"}.Author())
	assert.Equal(t, "B01", ThreadMessage{BotID: "B01"}.Author())
	assert.Equal(t, "unknown", ThreadMessage{}.Author())
}

func TestAttachmentURLs(t *testing.T) {
	m := ThreadMessage{
		Files: []File{
			{PermalinkPublic: "https://pub", Permalink: "https://perm"},
			{URLPrivate: "https://priv"},
		},
		Attachments: []Attachment{
			{ImageURL: "https://img"},
		},
	}
	assert.Equal(t, []string{"https://pub", "https://priv", "https://img"}, m.AttachmentURLs())

	assert.Nil(t, ThreadMessage{}.AttachmentURLs())
}

func TestRetryDelay(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "7")

	wait, retryable := retryDelay(http.StatusTooManyRequests, headers, 1)
	assert.True(t, retryable)
	assert.Equal(t, 7*time.Second, wait)

	wait, retryable = retryDelay(http.StatusTooManyRequests, http.Header{}, 1)
	assert.True(t, retryable)
	assert.Equal(t, 1*time.Second, wait)

	_, retryable = retryDelay(http.StatusBadGateway, http.Header{}, 1)
	assert.True(t, retryable)

	_, retryable = retryDelay(http.StatusOK, http.Header{}, 1)
	assert.False(t, retryable)

	_, retryable = retryDelay(http.StatusForbidden, http.Header{}, 1)
	assert.False(t, retryable)
}
