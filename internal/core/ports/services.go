package ports

import (
	"arcast/internal/core/domain"
)

// StreamController is the control surface of the streaming session. Start,
// Stop and ChangeMode drive the session lifecycle; SubmitOffer and
// SubmitCandidate feed it remote signaling input. All methods are safe for
// concurrent use.
type StreamController interface {
	Start(mode domain.StreamMode) error
	Stop() error
	ChangeMode(mode domain.StreamMode) error
	SubmitOffer(sdp string) error
	SubmitCandidate(cand domain.IceCandidate) error
}
