package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []message
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return newToken(c.err)
	}
	c.messages = append(c.messages, message{topic: topic, payload: payload.([]byte)})
	return newToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func TestPublishEvent(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "lab/ec", nil)

	e := view.NewEvent(view.EventModeConfirmed, "fan1/mode")
	e.Requested = "curve"
	e.Actual = "auto"
	require.NoError(t, p.Publish(e))

	msgs := client.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lab/ec/events", msgs[0].topic)

	var got view.Event
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "auto", got.Actual)
	assert.False(t, got.Accepted)
}

func TestPublishTelemetry(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "ecfanctl", nil)

	temp := 61
	e := view.NewEvent(view.EventTelemetry, "")
	e.Telemetry = &telemetry.Snapshot{Temperature: &temp, RPM: map[int]int{1: 2400}}
	require.NoError(t, p.Publish(e))

	msgs := client.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ecfanctl/telemetry", msgs[0].topic)
	assert.Contains(t, string(msgs[0].payload), `"temperature_celsius":61`)

	// Telemetry events without a snapshot are skipped.
	require.NoError(t, p.Publish(view.NewEvent(view.EventTelemetry, "")))
	assert.Len(t, client.sent(), 1)
}

func TestPublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := NewPublisher(client, "ecfanctl", nil)

	err := p.Publish(view.NewEvent(view.EventWriteFailed, "fan1/level"))
	assert.ErrorContains(t, err, "not connected")
}

func TestRunForwardsUntilClosed(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "ecfanctl", nil)

	events := make(chan view.Event, 3)
	events <- view.NewEvent(view.EventWriteFailed, "fan1/level")
	events <- view.NewEvent(view.EventReadbackFailed, "fan1/mode")
	close(events)

	require.NoError(t, p.Run(context.Background(), events))
	assert.Len(t, client.sent(), 2)

	p.Close()
	assert.True(t, client.disconnected)
}

func TestRunStopsOnCancel(t *testing.T) {
	p := NewPublisher(&fakeClient{}, "ecfanctl", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx, make(chan view.Event)))
}
