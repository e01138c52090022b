package dirty

import "context"

// FlushableTracker extends the mem.Tracker recording hook with methods
// for flushing dirty frames to disk. This interface is intended for
// components that need to control when and how modified data is
// persisted (e.g., commit drivers).
type FlushableTracker interface {
	// MarkFrame records a modified frame.
	MarkFrame(fno uint32)

	// FlushDataOnly flushes only the data frames (not header/metadata).
	FlushDataOnly(ctx context.Context) error

	// FlushHeaderAndMeta flushes the header page based on the specified mode.
	FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error
}

var _ FlushableTracker = (*Tracker)(nil)
