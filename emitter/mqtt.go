// Package emitter publishes detection summaries to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/models"
	"github.com/Tutortoise/live-detection-service/pipeline"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second

	// maxInFlight bounds publishes still waiting for broker acknowledgement.
	maxInFlight = 8
)

var (
	ErrNotConnected = errors.New("mqtt not connected")
	ErrBacklog      = errors.New("mqtt publish backlog full")
)

// Publisher is the part of mqtt.Client the emitter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Options struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Message is the JSON payload published for every annotated frame.
type Message struct {
	Seq        uint64                 `json:"seq"`
	Timestamp  time.Time              `json:"timestamp"`
	Detections []models.Detection     `json:"detections"`
	Stats      *models.InferenceStats `json:"stats"`
}

// MQTTEmitter is a pipeline.Sink. Passthrough frames carry no detections and
// are not published. Publish hands the message to the client and returns;
// acknowledgements are awaited in the background, at most maxInFlight at a
// time. Messages beyond that are dropped.
type MQTTEmitter struct {
	opts     Options
	client   Publisher
	log      *logrus.Entry
	now      func() time.Time
	inflight chan struct{}
	wg       sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

var _ pipeline.Sink = (*MQTTEmitter)(nil)

func NewMQTTEmitter(opts Options, log *logrus.Entry) *MQTTEmitter {
	if opts.ClientID == "" {
		opts.ClientID = "live-detection-" + uuid.NewString()
	}
	return &MQTTEmitter{
		opts:     opts,
		log:      log.WithField("component", "emitter"),
		now:      time.Now,
		inflight: make(chan struct{}, maxInFlight),
	}
}

// Connect dials the broker. The client reconnects on its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.WithField("broker", broker).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.WithError(err).Warn("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	e.client = client

	e.log.WithField("broker", broker).Info("connecting to mqtt broker")
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Disconnect waits up to quiesce for in-flight work.
func (e *MQTTEmitter) Disconnect(quiesce time.Duration) {
	acked := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(acked)
	}()
	select {
	case <-acked:
	case <-time.After(quiesce):
	}

	if c, ok := e.client.(mqtt.Client); ok {
		c.Disconnect(uint(quiesce.Milliseconds()))
	}
	e.setConnected(false)
}

func (e *MQTTEmitter) Publish(o pipeline.Output) error {
	if o.Stats == nil {
		return nil
	}
	if !e.isConnected() {
		e.addError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(Message{
		Seq:        o.Seq,
		Timestamp:  e.now().UTC(),
		Detections: o.Detections,
		Stats:      o.Stats,
	})
	if err != nil {
		e.addError()
		return fmt.Errorf("failed to marshal detections: %w", err)
	}

	select {
	case e.inflight <- struct{}{}:
	default:
		e.addError()
		return ErrBacklog
	}

	token := e.client.Publish(e.opts.Topic, e.opts.QoS, false, payload)
	e.wg.Add(1)
	go e.await(token, o.Seq, len(payload))
	return nil
}

func (e *MQTTEmitter) await(token mqtt.Token, seq uint64, size int) {
	defer func() {
		<-e.inflight
		e.wg.Done()
	}()

	log := e.log.WithFields(logrus.Fields{"topic": e.opts.Topic, "seq": seq})
	if !token.WaitTimeout(publishTimeout) {
		e.addError()
		log.Warn("mqtt publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		e.addError()
		log.WithError(err).Warn("mqtt publish failed")
		return
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	log.WithField("size", size).Debug("detections published")
}

// Stats returns published and failed message counts.
func (e *MQTTEmitter) Stats() (published, failed uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected && e.client != nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) addError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
