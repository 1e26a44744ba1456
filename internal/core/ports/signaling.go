package ports

import (
	"arcast/internal/core/domain"
)

// SignalingBroadcaster fans outbound signaling messages to every connected
// signaling client.
type SignalingBroadcaster interface {
	BroadcastAnswer(sdp string)
	BroadcastCandidate(cand domain.IceCandidate)
	BroadcastError(message string)
}
