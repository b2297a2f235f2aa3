package module

import (
	"time"
)

// NotaryMetrics records the activity of the rollup driver and the
// notarization pipeline.
type NotaryMetrics interface {
	// RequestHandled is called once per dispatched request with the status
	// reported back to the rollup server.
	RequestHandled(kind string, status string, duration time.Duration)

	// RequestFailed is called when a handler returns an error.
	RequestFailed(kind string)

	// PollFailed is called for every failed attempt to reach the rollup server.
	PollFailed()

	// ArtifactSynthesized records the size of a rendered artifact and the time
	// it took to render it.
	ArtifactSynthesized(sizeBytes int, duration time.Duration)

	// BlocksVerified records the number of blocks that passed address verification.
	BlocksVerified(count int)

	// BlockRejected is called when a block declares the wrong hash algorithm.
	BlockRejected()

	// NoticeEmitted records a notice sent for a manifest of the given size.
	NoticeEmitted(manifestEntries int)
}
