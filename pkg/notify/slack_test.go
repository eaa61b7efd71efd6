package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
)

func TestSlackChannel_Name(t *testing.T) {
	n := notify.NewSlackChannel("https://hooks.slack.com/test", "#test")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackChannel_Send(t *testing.T) {
	var received struct {
		Channel     string `json:"channel"`
		Attachments []struct {
			Color string `json:"color"`
			Text  string `json:"text"`
		} `json:"attachments"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := notify.NewSlackChannel(server.URL, "#outages")
	change := model.StatusChange{Outage: sampleOutage(), NewStatus: "復旧"}

	err := n.Send(context.Background(), notify.StatusChangeMessage(change))
	require.NoError(t, err)
	assert.Equal(t, "#outages", received.Channel)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "#36a64f", received.Attachments[0].Color)
	assert.Contains(t, received.Attachments[0].Text, "が復旧しました")
}

func TestSlackChannel_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := notify.NewSlackChannel(server.URL, "#test")
	err := n.Send(context.Background(), notify.NewMessage(sampleOutage()))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
