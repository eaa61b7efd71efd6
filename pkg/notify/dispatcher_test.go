package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func TestDispatcher_NoChannels(t *testing.T) {
	d := notify.NewDispatcher(nil, nil)
	assert.False(t, d.NotifyNew(context.Background(), sampleOutage()))
	assert.False(t, d.NotifyStatusChange(context.Background(), model.StatusChange{Outage: sampleOutage()}))
}

func TestDispatcher_AllSucceed(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	d := notify.NewDispatcher([]notify.Channel{a, b}, nil)

	assert.True(t, d.NotifyNew(context.Background(), sampleOutage()))
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
	assert.Equal(t, []string{"a", "b"}, d.Channels())
}

func TestDispatcher_PartialFailureStillDelivers(t *testing.T) {
	broken := &recordingChannel{name: "broken", err: errors.New("boom")}
	ok := &recordingChannel{name: "ok"}
	d := notify.NewDispatcher([]notify.Channel{broken, ok}, nil)

	change := model.StatusChange{Outage: sampleOutage(), OldStatus: "", NewStatus: "終了"}
	assert.True(t, d.NotifyStatusChange(context.Background(), change))
	assert.Len(t, broken.sent, 1, "failing channel is still attempted")
	assert.Equal(t, model.ChangeStatusChange, ok.sent[0].Kind)
}

func TestDispatcher_AllFail(t *testing.T) {
	d := notify.NewDispatcher([]notify.Channel{
		&recordingChannel{name: "a", err: errors.New("down")},
		&recordingChannel{name: "b", err: errors.New("down")},
	}, nil)
	assert.False(t, d.NotifyNew(context.Background(), sampleOutage()))
}

func TestDryRunChannel(t *testing.T) {
	d := notify.NewDispatcher([]notify.Channel{notify.NewDryRunChannel(nil)}, nil)
	assert.True(t, d.NotifyNew(context.Background(), sampleOutage()))
	assert.Equal(t, []string{"dry-run"}, d.Channels())
}
