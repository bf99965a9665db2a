package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the number of retained publishes kept while the broker is unreachable.
const DefaultBufferSize = 100

const ackTimeout = 5 * time.Second

var errAckTimeout = errors.New("timed out waiting for acknowledgement")

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	BufferSize int
	// WillTopic, if set, receives a retained OFFLINE system event when the
	// connection drops without a clean disconnect.
	WillTopic string
}

type subscription struct {
	qos     byte
	handler Handler
}

// RealClient is a Client backed by a paho connection. Retained publishes made
// while disconnected are buffered and replayed on reconnect, and subscriptions
// are restored after every reconnect.
type RealClient struct {
	client paho.Client

	mu     sync.Mutex
	buffer *ringBuffer
	subs   map[string]subscription
}

var _ Client = (*RealClient)(nil)

// NewRealClient connects to the broker. It keeps retrying in the background if
// the first attempt times out, so a missing broker does not stop startup.
func NewRealClient(opts Options) (*RealClient, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	c := &RealClient{
		buffer: newRingBuffer(opts.BufferSize),
		subs:   make(map[string]subscription),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username).SetPassword(opts.Password)
	}
	if opts.WillTopic != "" {
		will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
		if err != nil {
			return nil, fmt.Errorf("format will payload: %w", err)
		}
		po.SetBinaryWill(opts.WillTopic, will, 1, true)
	}

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn().Str("broker", opts.Broker).Msg("mqtt connect timed out, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// onConnect restores subscriptions and replays buffered publishes.
func (c *RealClient) onConnect(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	pending := c.buffer.drainAll()
	c.mu.Unlock()

	log.Info().Int("subscriptions", len(subs)).Int("buffered", len(pending)).Msg("mqtt connected")

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("mqtt resubscribe failed")
		}
	}
	for _, m := range pending {
		if err := waitToken(pc.Publish(m.topic, m.qos, m.retained, m.payload)); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt replay failed")
		}
	}
}

// Publish hands payload to paho and returns without waiting for the broker's
// acknowledgement; a late or failed acknowledgement is logged. While the
// connection is down retained publishes are buffered for replay and anything
// else fails with ErrNotConnected, so a relay command is never replayed late.
func (c *RealClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return c.hold(topic, qos, retained, payload)
	}
	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		if err := waitToken(token); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish not acknowledged")
		}
	}()
	return nil
}

// PublishAndWait publishes and waits for the acknowledgement. Lifecycle
// events use it so they reach the broker before a disconnect.
func (c *RealClient) PublishAndWait(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return c.hold(topic, qos, retained, payload)
	}
	if err := waitToken(c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *RealClient) hold(topic string, qos byte, retained bool, payload []byte) error {
	if !retained {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	c.mu.Unlock()
	return nil
}

func waitToken(token paho.Token) error {
	if !token.WaitTimeout(ackTimeout) {
		return errAckTimeout
	}
	return token.Error()
}

// Subscribe registers handler and remembers it for reconnects. While
// disconnected the subscription is only recorded.
func (c *RealClient) Subscribe(topic string, qos byte, handler Handler) error {
	s := subscription{qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, s)
}

func (c *RealClient) subscribe(topic string, s subscription) error {
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, m paho.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	if err := waitToken(token); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker, allowing one second for in-flight work.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}

// Buffered returns the number of retained publishes waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}
