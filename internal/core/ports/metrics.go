package ports

import "arcast/internal/core/domain"

// MetricsSink receives counters emitted by the session pipeline. The
// monitoring collector implements it; tests pass a no-op.
type MetricsSink interface {
	RecordSessionState(state domain.SessionState)
	RecordNegotiation()
	RecordSessionFailure(reason string)
	RecordVideoFrameDropped()
	RecordTrackingSampleDropped()
	RecordMetadataMessageDropped()
	RecordCandidateDropped()
	RecordConnectedClients(n int)
}
