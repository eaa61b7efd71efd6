package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
)

func TestTelegramChannel_Send(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer server.Close()

	tg, err := notify.NewTelegramChannel("123:abc", 42, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "telegram", tg.Name())

	require.NoError(t, tg.Send(context.Background(), notify.NewMessage(sampleOutage())))
	assert.True(t, strings.HasSuffix(path, "/sendMessage"), path)
	assert.Contains(t, body, "インターネット障害")
	assert.Contains(t, body, "42")
}

func TestTelegramChannel_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg, err := notify.NewTelegramChannel("123:abc", 42, server.URL)
	require.NoError(t, err)

	err = tg.Send(context.Background(), notify.NewMessage(sampleOutage()))
	assert.Error(t, err)
}
