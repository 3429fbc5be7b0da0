package publish

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/engine"
)

var endpointSeq atomic.Int32

func newPublisher(t *testing.T, format Format) *Publisher {
	t.Helper()

	endpoint := fmt.Sprintf("inproc://publish-test-%d", endpointSeq.Add(1))
	p, err := New(Config{Endpoint: endpoint, Format: format})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func subscribe(t *testing.T, p *Publisher, topic string) *zmq4.Socket {
	t.Helper()

	endpoint, err := p.Endpoint()
	require.NoError(t, err)

	sub, err := zmq4.NewSocket(zmq4.SUB)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	require.NoError(t, sub.SetRcvtimeo(50*time.Millisecond))
	require.NoError(t, sub.Connect(endpoint))
	require.NoError(t, sub.SetSubscribe(topic))
	return sub
}

// receive publishes with send until sub gets a message. PUB drops messages
// sent before the subscription has propagated.
func receive(t *testing.T, sub *zmq4.Socket, send func()) []string {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		send()
		msg, err := sub.RecvMessage(0)
		if err == nil {
			return msg
		}
	}
	t.Fatal("no message received")
	return nil
}

func sampleResult() *detector.DetectionResult {
	left := true
	return &detector.DetectionResult{
		Delegate:      engine.DelegateGPU,
		InferenceTime: 42,
		Width:         320,
		Height:        240,
		Landmarks:     []detector.Landmark{{Index: 0, X: 0.5, Y: 0.5, Z: 0}},
		IsLeftHand:    &left,
	}
}

func TestPublisher_JSON(t *testing.T) {
	p := newPublisher(t, FormatJSON)
	sub := subscribe(t, p, DefaultTopic)

	res := sampleResult()
	msg := receive(t, sub, func() { p.OnResults(res) })

	require.Len(t, msg, 2)
	assert.Equal(t, DefaultTopic, msg[0])

	want, err := res.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(want), msg[1])
	assert.NotZero(t, p.Sent())
}

func TestPublisher_CBOR(t *testing.T) {
	p := newPublisher(t, FormatCBOR)
	sub := subscribe(t, p, DefaultTopic)

	msg := receive(t, sub, func() { p.OnResults(sampleResult()) })
	require.Len(t, msg, 2)

	var got detector.DetectionResult
	require.NoError(t, cbor.Unmarshal([]byte(msg[1]), &got))
	assert.Equal(t, engine.DelegateGPU, got.Delegate)
	assert.Equal(t, int64(42), got.InferenceTime)
	require.Len(t, got.Landmarks, 1)
	assert.Equal(t, 0.5, got.Landmarks[0].X)
}

func TestPublisher_Errors(t *testing.T) {
	p := newPublisher(t, FormatJSON)
	sub := subscribe(t, p, DefaultTopic+".error")

	msg := receive(t, sub, func() { p.OnError("engine failure") })
	require.Len(t, msg, 2)
	assert.Equal(t, "landmarks.error", msg[0])

	var body errorPayload
	require.NoError(t, json.Unmarshal([]byte(msg[1]), &body))
	assert.Equal(t, "engine failure", body.Message)
}

func TestPublisher_Close(t *testing.T) {
	p := newPublisher(t, "")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish("x", nil), ErrClosed)
	_, err := p.Endpoint()
	assert.ErrorIs(t, err, ErrClosed)

	// Listener calls after close are logged, not fatal.
	p.OnResults(sampleResult())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Endpoint: "inproc://bad-format", Format: "xml"})
	assert.Error(t, err)
}
