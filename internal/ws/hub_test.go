package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := SnapshotPayload{
		Tariff:     "flat-rate",
		Timeslot:   36,
		MinKWh:     10,
		MaxKWh:     40,
		NominalKWh: 25,
		Checksum:   "abc123",
	}

	msg, err := NewEnvelope(TypeSnapshot, payload)
	require.NoError(t, err)

	var env Envelope
	err = json.Unmarshal(msg, &env)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, env.Type)

	var parsed SnapshotPayload
	err = json.Unmarshal(env.Payload, &parsed)
	require.NoError(t, err)
	assert.Equal(t, "flat-rate", parsed.Tariff)
	assert.Equal(t, 36, parsed.Timeslot)
	assert.InDelta(t, 25, parsed.NominalKWh, 1e-9)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 16)}

	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	c1 := &Client{hub: hub, send: make(chan []byte, 16)}
	c2 := &Client{hub: hub, send: make(chan []byte, 16)}
	hub.Register(c1)
	hub.Register(c2)

	msg := []byte(`{"type":"snapshot"}`)
	hub.Broadcast(msg)

	assert.Equal(t, msg, <-c1.send)
	assert.Equal(t, msg, <-c2.send)
}

func TestHub_BroadcastDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast([]byte("first"))
	hub.Broadcast([]byte("second"))

	assert.Equal(t, []byte("first"), <-c.send)
	assert.Equal(t, 0, len(c.send), "second broadcast should have been dropped, not blocked on")
}

func TestMessageTypes(t *testing.T) {
	assert.Equal(t, "snapshot", TypeSnapshot)
	assert.Equal(t, "subscribe", TypeSubscribe)
	assert.Equal(t, "unsubscribe", TypeUnsubscribe)
	assert.Equal(t, "error", TypeError)
}
