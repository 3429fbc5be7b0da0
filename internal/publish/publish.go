// Package publish fans detection events out on a ZeroMQ PUB socket.
//
// Each event is a two frame message: the topic, then the payload. Results
// are published under the topic itself and engine errors under
// "<topic>.error", so subscribers can filter either.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/log"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "landmarks"

// Format selects the payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ErrClosed is returned when publishing on a closed Publisher.
var ErrClosed = errors.New("publisher closed")

// Config configures a Publisher.
type Config struct {
	Endpoint string // bind address, e.g. tcp://*:5556
	Topic    string
	Format   Format
}

// errorPayload is the body of an error message.
type errorPayload struct {
	Message string `json:"message" cbor:"message"`
}

// Publisher is a dispatch listener that publishes every event.
// zmq sockets are not safe for concurrent use, so all access goes through mu.
type Publisher struct {
	mu     sync.Mutex
	socket *zmq4.Socket
	topic  string
	format Format
	sent   uint64
}

// New binds a PUB socket to cfg.Endpoint.
func New(cfg Config) (*Publisher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("publish endpoint is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatJSON
	case FormatJSON, FormatCBOR:
	default:
		return nil, fmt.Errorf("unknown publish format %q", cfg.Format)
	}

	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	// Drop unsent messages on close.
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Bind(cfg.Endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("bind %s: %w", cfg.Endpoint, err)
	}

	log.Info("publishing results", "endpoint", cfg.Endpoint, "topic", cfg.Topic, "format", cfg.Format)

	return &Publisher{
		socket: socket,
		topic:  cfg.Topic,
		format: cfg.Format,
	}, nil
}

// Endpoint returns the endpoint the socket is bound to, with any wildcard
// port resolved.
func (p *Publisher) Endpoint() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return "", ErrClosed
	}
	return p.socket.GetLastEndpoint()
}

// OnResults publishes a result.
func (p *Publisher) OnResults(result *detector.DetectionResult) {
	var (
		payload []byte
		err     error
	)
	if p.format == FormatCBOR {
		payload, err = cbor.Marshal(result)
	} else {
		payload, err = result.Encode()
	}
	if err != nil {
		log.Error("failed to encode result", "error", err)
		return
	}

	if err := p.Publish(p.topic, payload); err != nil {
		log.Warn("failed to publish result", "error", err)
	}
}

// OnError publishes an engine error.
func (p *Publisher) OnError(message string) {
	body := errorPayload{Message: message}

	var (
		payload []byte
		err     error
	)
	if p.format == FormatCBOR {
		payload, err = cbor.Marshal(body)
	} else {
		payload, err = json.Marshal(body)
	}
	if err != nil {
		log.Error("failed to encode error", "error", err)
		return
	}

	if err := p.Publish(p.topic+".error", payload); err != nil {
		log.Warn("failed to publish error", "error", err)
	}
}

// Publish sends one message under topic. PUB sockets never block; messages
// for slow or absent subscribers are dropped by zmq.
func (p *Publisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.socket == nil {
		return ErrClosed
	}
	if _, err := p.socket.SendMessage(topic, payload); err != nil {
		return err
	}
	p.sent++
	return nil
}

// Sent returns how many messages were handed to the socket.
func (p *Publisher) Sent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close closes the socket. Closing twice is a no-op.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	return err
}
