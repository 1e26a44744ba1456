package domain

import "encoding/json"

// ClientID identifies one connected signaling client.
type ClientID string

// OfferMessage and AnswerMessage share the same wire shape; Type
// discriminates them.
type OfferMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type AnswerMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// NewAnswerMessage builds an answer for broadcast to all clients.
func NewAnswerMessage(sdp string) AnswerMessage {
	return AnswerMessage{Type: "answer", SDP: sdp}
}

// IceCandidate is both the signaling wire shape and the value handed to the
// coordinator. SDPMid may be null on the wire.
type IceCandidate struct {
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	Candidate     string  `json:"candidate"`
}

// ErrorMessage is sent to clients when handling their message failed.
type ErrorMessage struct {
	Message string `json:"message"`
}

// InboundKind is the routing decision for one inbound signaling message.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundOffer
	InboundCandidate
)

// ClassifyInbound routes a raw signaling message: a "type":"offer" field
// selects offer handling, an sdp "candidate" key selects candidate handling,
// anything else is for the caller to log and ignore. There is no envelope;
// each message is a single JSON object.
func ClassifyInbound(raw []byte) InboundKind {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return InboundUnknown
	}
	if t, ok := probe["type"]; ok {
		var kind string
		if err := json.Unmarshal(t, &kind); err == nil && kind == "offer" {
			return InboundOffer
		}
	}
	if _, ok := probe["candidate"]; ok {
		return InboundCandidate
	}
	return InboundUnknown
}
