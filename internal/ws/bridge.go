package ws

import "log"

// Snapshot is the data cmd/server gathers after each timeslot's
// DistributeDemand/GetMinMax phase, independent of the ws wire format.
type Snapshot struct {
	Tariff     string
	Timeslot   int
	MinKWh     float64
	MaxKWh     float64
	NominalKWh float64
	Checksum   string
}

// Bridge adapts engine snapshots into broadcast messages, the way the
// simulator's own bridge adapted its tick callbacks into hub broadcasts.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// OnSnapshot broadcasts one tariff's post-tick storage band to every
// connected client.
func (b *Bridge) OnSnapshot(s Snapshot) {
	msg, err := NewEnvelope(TypeSnapshot, SnapshotPayload{
		Tariff:     s.Tariff,
		Timeslot:   s.Timeslot,
		MinKWh:     s.MinKWh,
		MaxKWh:     s.MaxKWh,
		NominalKWh: s.NominalKWh,
		Checksum:   s.Checksum,
	})
	if err != nil {
		log.Printf("ws: failed to marshal snapshot: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}
