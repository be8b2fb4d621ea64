package signaling

import (
	"encoding/json"

	"relay/internal/models"
	"relay/internal/registry"
)

type Deliverer interface {
	SendTo(identity string, msg models.ServerMessage) registry.Delivery
}

// Relay forwards call negotiation payloads between identities. Payloads are
// opaque and never stored; an unreachable callee just misses them.
type Relay struct {
	sessions Deliverer
}

func NewRelay(sessions Deliverer) *Relay {
	return &Relay{sessions: sessions}
}

func (r *Relay) Offer(from, to string, offer json.RawMessage) registry.Delivery {
	return r.forward(to, models.ServerMessageTypeIncomingCall, models.CallSignal{From: from, Offer: offer})
}

func (r *Relay) Answer(from, to string, answer json.RawMessage) registry.Delivery {
	return r.forward(to, models.ServerMessageTypeCallAnswered, models.CallSignal{From: from, Answer: answer})
}

func (r *Relay) Candidate(from, to string, candidate json.RawMessage) registry.Delivery {
	return r.forward(to, models.ServerMessageTypeICECandidate, models.CallSignal{From: from, Candidate: candidate})
}

func (r *Relay) forward(to string, typ models.ServerMessageType, payload models.CallSignal) registry.Delivery {
	if to == "" || payload.From == "" {
		return registry.Offline
	}
	return r.sessions.SendTo(to, models.ServerMessage{Type: typ, Payload: payload})
}
