package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
)

var testCreds = notify.XCredentials{
	APIKey:            "key",
	APISecret:         "secret",
	AccessToken:       "token",
	AccessTokenSecret: "token-secret",
}

func TestNewXChannel_IncompleteCredentials(t *testing.T) {
	_, err := notify.NewXChannel(notify.XCredentials{APIKey: "key"}, "", nil)
	assert.Error(t, err)
}

func TestXChannel_Send(t *testing.T) {
	var posted map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "), auth)
		assert.Contains(t, auth, `oauth_consumer_key="key"`)
		assert.Contains(t, auth, `oauth_token="token"`)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1867","text":"ok"}}`))
	}))
	defer server.Close()

	x, err := notify.NewXChannel(testCreds, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", x.Name())

	msg := notify.NewMessage(sampleOutage())
	require.NoError(t, x.Send(context.Background(), msg))
	assert.Equal(t, msg.Text, posted["text"])
}

func TestXChannel_Send_TruncatesLongText(t *testing.T) {
	var posted map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer server.Close()

	x, err := notify.NewXChannel(testCreds, server.URL, nil)
	require.NoError(t, err)

	o := sampleOutage()
	o.Title = strings.Repeat("長", 400)
	require.NoError(t, x.Send(context.Background(), notify.NewMessage(o)))
	assert.Equal(t, notify.MaxPostLength, utf8.RuneCountInString(posted["text"]))
	assert.True(t, strings.HasSuffix(posted["text"], "..."))
}

func TestXChannel_Send_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests"}`))
	}))
	defer server.Close()

	x, err := notify.NewXChannel(testCreds, server.URL, nil)
	require.NoError(t, err)

	err = x.Send(context.Background(), notify.NewMessage(sampleOutage()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "Too Many Requests")
}

func TestXChannel_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()
	defer close(release)

	x, err := notify.NewXChannel(testCreds, server.URL, nil, notify.WithXTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = x.Send(context.Background(), notify.NewMessage(sampleOutage()))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestXChannel_Send_AcceptedWithUnreadableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer server.Close()

	x, err := notify.NewXChannel(testCreds, server.URL, nil)
	require.NoError(t, err)

	assert.NoError(t, x.Send(context.Background(), notify.NewMessage(sampleOutage())))
}
