package emitter

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/live-detection-service/models"
	"github.com/Tutortoise/live-detection-service/pipeline"
)

type fakeToken struct {
	err      error
	complete bool
	// hold, when set, blocks WaitTimeout until closed.
	hold chan struct{}
}

func (t *fakeToken) Wait() bool { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool {
	if t.hold != nil {
		<-t.hold
	}
	return t.complete
}
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	token *fakeToken
	sent  []published
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return p.token
}

func newTestEmitter(pub *fakePublisher) *MQTTEmitter {
	l := logrus.New()
	l.SetOutput(io.Discard)
	e := NewMQTTEmitter(Options{Broker: "localhost:1883", Topic: "cams/front", QoS: 1}, logrus.NewEntry(l))
	e.client = pub
	e.connected = true
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

func TestPublishEncodesDetections(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{complete: true}}
	e := newTestEmitter(pub)
	out := pipeline.Output{
		Seq:   42,
		Image: []byte{0xff, 0xd8},
		Stats: &models.InferenceStats{InferenceTimeMs: 12, FramesPerSecond: 9.5, RequestedFramesPerSecond: 15, Acceleration: "Auto (GPU)"},
		Detections: []models.Detection{
			{ID: "0", Label: "person", Confidence: 0.75, Location: models.Rect{Left: 0.1, Top: 0.2, Right: 0.5, Bottom: 0.6}},
		},
	}

	require.NoError(t, e.Publish(out))
	e.wg.Wait()

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "cams/front", pub.sent[0].topic)
	assert.Equal(t, byte(1), pub.sent[0].qos)

	var got Message
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &got))
	want := Message{
		Seq:        42,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Detections: out.Detections,
		Stats:      out.Stats,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	sent, failed := e.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, failed)
}

func TestPublishSkipsPassthrough(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{complete: true}}
	e := newTestEmitter(pub)

	require.NoError(t, e.Publish(pipeline.Output{Seq: 1, Image: []byte{1}}))
	assert.Empty(t, pub.sent)
}

func TestPublishFailures(t *testing.T) {
	stats := &models.InferenceStats{Acceleration: "None"}

	t.Run("not connected", func(t *testing.T) {
		e := newTestEmitter(&fakePublisher{token: &fakeToken{complete: true}})
		e.setConnected(false)
		assert.ErrorIs(t, e.Publish(pipeline.Output{Stats: stats}), ErrNotConnected)
	})

	t.Run("timeout", func(t *testing.T) {
		e := newTestEmitter(&fakePublisher{token: &fakeToken{}})
		require.NoError(t, e.Publish(pipeline.Output{Stats: stats}))
		e.wg.Wait()
		sent, failed := e.Stats()
		assert.Zero(t, sent)
		assert.Equal(t, uint64(1), failed)
	})

	t.Run("broker error", func(t *testing.T) {
		boom := errors.New("not authorized")
		e := newTestEmitter(&fakePublisher{token: &fakeToken{complete: true, err: boom}})
		require.NoError(t, e.Publish(pipeline.Output{Stats: stats}))
		e.wg.Wait()
		_, failed := e.Stats()
		assert.Equal(t, uint64(1), failed)
	})
}

func TestPublishDoesNotWaitForAcknowledgement(t *testing.T) {
	hold := make(chan struct{})
	pub := &fakePublisher{token: &fakeToken{complete: true, hold: hold}}
	e := newTestEmitter(pub)
	stats := &models.InferenceStats{Acceleration: "GPU"}

	for i := 0; i < maxInFlight; i++ {
		require.NoError(t, e.Publish(pipeline.Output{Seq: uint64(i), Stats: stats}))
	}
	assert.ErrorIs(t, e.Publish(pipeline.Output{Seq: maxInFlight, Stats: stats}), ErrBacklog)
	assert.Len(t, pub.sent, maxInFlight)

	close(hold)
	e.wg.Wait()
	sent, failed := e.Stats()
	assert.Equal(t, uint64(maxInFlight), sent)
	assert.Equal(t, uint64(1), failed)

	// Slots are released once acknowledgements arrive.
	require.NoError(t, e.Publish(pipeline.Output{Seq: 99, Stats: stats}))
	e.wg.Wait()
}

func TestDefaultClientID(t *testing.T) {
	e := NewMQTTEmitter(Options{Broker: "b", Topic: "t"}, logrus.NewEntry(logrus.New()))
	assert.Contains(t, e.opts.ClientID, "live-detection-")
}
