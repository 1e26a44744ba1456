package ports

import (
	"context"

	"arcast/internal/core/domain"
)

// TransportEvents carries the callbacks a peer link fires from transport
// goroutines. Handlers must be fast and non-blocking; the session
// coordinator posts them onto its event queue.
type TransportEvents struct {
	LocalCandidate func(cand domain.IceCandidate)
	StateChange    func(state domain.TransportState)
}

type MediaTransport interface {
	NewPeerLink(events TransportEvents) (PeerLink, error)
}

// PeerLink is one peer connection to a client. Tracks and channels may be
// attached before or after negotiation; attaching after the answer is sent
// does not renegotiate, so late additions only take effect for transports
// that accept them mid-session.
type PeerLink interface {
	AddVideoTrack(enc VideoEncoder, kf KeyframeRequester) (VideoSink, error)
	AddAudioTrack(chunks <-chan domain.AudioChunk) (AudioPump, error)
	OpenMetadataChannel(label string) (MetadataChannel, error)
	ApplyRemoteOffer(ctx context.Context, sdp string) (string, error)
	AddRemoteCandidate(cand domain.IceCandidate) error
	Close() error
}
