package ws

import "encoding/json"

// Envelope wraps every message exchanged over the socket in a typed
// wrapper so handlers can dispatch on Type before decoding Payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeSnapshot    = "snapshot"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeError       = "error"
)

// SnapshotPayload reports one tariff's storage state at a timeslot: the
// feasible usage band from StorageState.GetMinMax plus the boot-record
// checksum a client can use to detect a dropped update.
type SnapshotPayload struct {
	Tariff     string  `json:"tariff"`
	Timeslot   int     `json:"timeslot"`
	MinKWh     float64 `json:"minKWh"`
	MaxKWh     float64 `json:"maxKWh"`
	NominalKWh float64 `json:"nominalKWh"`
	Checksum   string  `json:"checksum"`
}

// SubscribePayload names the tariff a subscribe/unsubscribe message refers
// to (an empty Tariff meaning "all tariffs"). The hub does not filter by
// it: every connected client receives every tariff's snapshots.
type SubscribePayload struct {
	Tariff string `json:"tariff"`
}

// ErrorPayload reports a malformed client message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals payload and wraps it in an Envelope of the given
// type, ready to hand to Hub.Broadcast or Client.send.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
