package dirty

import (
	"context"
	"sort"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
)

const (
	// defaultFrameCapacity is the pre-allocated capacity for recorded
	// frames. This reduces allocations during typical workloads.
	defaultFrameCapacity = 64
)

// FlushMode controls durability guarantees for commits.
type FlushMode int

const (
	// FlushAuto provides safe defaults for most use cases:
	// - msync() dirty data frames
	// - fdatasync() after header write
	// - On macOS, uses F_FULLFSYNC for maximum durability.
	FlushAuto FlushMode = iota

	// FlushDataOnly only flushes dirty data frames via msync().
	// The caller is responsible for calling fdatasync() later.
	// Use this when batching multiple commits together.
	FlushDataOnly

	// FlushFull provides ultra-safe durability:
	// - msync() dirty data frames
	// - msync() the header page
	// - fdatasync() file descriptor
	// - On macOS, uses F_FULLFSYNC
	// Use this for power-loss sensitive workflows.
	FlushFull
)

// Range represents a dirty byte range (absolute file offsets).
type Range struct {
	Off int64 // Absolute offset in file
	Len int64 // Length in bytes
}

// Tracker accumulates modified frame numbers and flushes them
// efficiently.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	img    *mem.Image
	frames []uint32 // Modified frames (coalesced into ranges at flush time)
}

var _ mem.Tracker = (*Tracker)(nil)

// NewTracker creates a dirty tracker for the given image.
//
// The tracker pre-allocates capacity for 64 frames to minimize
// allocations during typical workloads. It does not install itself;
// call img.SetTracker(t) to start observing.
func NewTracker(img *mem.Image) *Tracker {
	return &Tracker{
		img:    img,
		frames: make([]uint32, 0, defaultFrameCapacity),
	}
}

// MarkFrame records a modified frame.
//
// Duplicates are fine; they collapse at flush time. This method is
// very fast as it only appends to a slice.
func (t *Tracker) MarkFrame(fno uint32) {
	t.frames = append(t.frames, fno)
}

// MarkRange records n consecutive modified frames starting at base.
func (t *Tracker) MarkRange(base, n uint32) {
	for i := uint32(0); i < n; i++ {
		t.frames = append(t.frames, base+i)
	}
}

// Pending returns the number of recorded marks, duplicates included.
func (t *Tracker) Pending() int { return len(t.frames) }

// FlushDataOnly flushes all dirty data frames (not the header) to disk.
//
// This method:
//  1. Coalesces recorded frames into sorted, non-overlapping byte ranges
//  2. Flushes each range using msync() (Unix) or file write-back
//  3. Clears the recorded frames
//
// The header page (offset 0) is NOT flushed.
//
// The context can be used to cancel the flush operation. If cancelled
// during flushing, some ranges may have been flushed while others have
// not.
func (t *Tracker) FlushDataOnly(ctx context.Context) error {
	if len(t.frames) == 0 {
		return nil
	}

	// Check for cancellation before starting
	if err := ctx.Err(); err != nil {
		return err
	}

	// Anonymous images have nothing to persist to.
	if t.img.File() == nil {
		t.frames = t.frames[:0]
		return nil
	}

	data := t.img.Bytes()
	if len(data) == 0 {
		return nil
	}

	// Platform-specific flushing
	if err := t.flushRanges(ctx, data); err != nil {
		return err
	}

	t.frames = t.frames[:0]
	return nil
}

// FlushHeaderAndMeta flushes the header page and optionally syncs the
// file descriptor.
//
// This method:
//  1. Flushes the header page using msync() or file write-back
//  2. Syncs the file descriptor based on the FlushMode:
//     - FlushAuto: fdatasync()
//     - FlushDataOnly: no fdatasync()
//     - FlushFull: fdatasync() + F_FULLFSYNC on macOS
//
// The context can be used to cancel the operation. Note that if
// cancelled after the header is flushed but before the sync completes,
// the header may be inconsistent with the data frames on disk.
func (t *Tracker) FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error {
	// Check for cancellation before starting
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.img.File() == nil {
		return nil
	}

	data := t.img.Bytes()
	if len(data) == 0 {
		return nil
	}

	headerLen := int(layout.HeaderSize)
	if headerLen > len(data) {
		headerLen = len(data)
	}
	if err := t.flushHeader(data[:headerLen]); err != nil {
		return err
	}

	// Check for cancellation before the descriptor sync
	if err := ctx.Err(); err != nil {
		return err
	}

	if mode == FlushDataOnly {
		return nil
	}
	return t.syncFile(mode == FlushFull)
}

// Commit performs a full data-then-header commit:
//
//  1. FlushDataOnly: dirty frames reach the file
//  2. Clear the header's dirty flag (refreshing its checksum)
//  3. FlushHeaderAndMeta: header and descriptor sync per mode
//
// Ordering matters: the clean flag must not land before the data it
// vouches for.
func (t *Tracker) Commit(ctx context.Context, mode FlushMode) error {
	if err := t.FlushDataOnly(ctx); err != nil {
		return err
	}
	if hdr := t.img.Header(); hdr != nil && hdr.Dirty() && !t.img.ReadOnly() {
		hdr.SetDirty(false)
	}
	return t.FlushHeaderAndMeta(ctx, mode)
}

// Reset clears all recorded frames.
//
// This is useful for testing or when abandoning a set of changes that
// will never be committed.
func (t *Tracker) Reset() {
	t.frames = t.frames[:0]
}

// DebugFrames returns the raw recorded frame numbers (for
// testing/debugging), duplicates and all.
func (t *Tracker) DebugFrames() []uint32 {
	// Return a copy to prevent external modification
	result := make([]uint32, len(t.frames))
	copy(result, t.frames)
	return result
}

// DebugCoalescedRanges returns the coalesced dirty ranges (for
// testing/debugging).
//
// These are the sorted, merged byte ranges that a flush would push.
func (t *Tracker) DebugCoalescedRanges() []Range {
	return t.coalesce()
}

// coalesce sorts the recorded frames, drops duplicates, merges runs of
// adjacent frames, and converts each run into an absolute byte range.
//
// Returns a new slice of non-overlapping, sorted ranges.
func (t *Tracker) coalesce() []Range {
	if len(t.frames) == 0 {
		return nil
	}

	sorted := make([]uint32, len(t.frames))
	copy(sorted, t.frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	merged := make([]Range, 0, len(sorted))
	runStart := sorted[0]
	runLen := uint32(1)

	flushRun := func() {
		merged = append(merged, Range{
			Off: layout.HeaderSize + int64(runStart)*layout.PageSize,
			Len: int64(runLen) * layout.PageSize,
		})
	}

	for _, fno := range sorted[1:] {
		switch {
		case fno == runStart+runLen-1:
			// Duplicate mark on the run's last frame
		case fno == runStart+runLen:
			runLen++
		default:
			flushRun()
			runStart = fno
			runLen = 1
		}
	}
	flushRun()

	return merged
}
