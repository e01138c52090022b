// Package dirty provides frame-level dirty tracking for memory images.
//
// # Overview
//
// This package tracks which frames of an image have been modified,
// enabling efficient commits that only push changed frames back to
// disk. Mutating paths in mem, mem/frame and mem/paging report every
// touched frame through the mem.Tracker hook; this package collects
// those reports and turns them into as few flush calls as possible.
//
// # Tracker
//
// The main type provides:
//
//   - MarkFrame(fno): record a modified frame
//   - FlushDataOnly(ctx): flush modified frames (not the header)
//   - FlushHeaderAndMeta(ctx, mode): flush the header page and sync
//   - Commit(ctx, mode): full data-then-header commit
//   - Reset(): drop all recorded frames
//
// # Wiring
//
// A tracker observes an image through mem.(*Image).SetTracker:
//
//	img, _ := mem.Open("machine.pmig")
//	tracker := dirty.NewTracker(img)
//	img.SetTracker(tracker)
//
// From then on every SetWord, ZeroFrame and paging write lands in the
// tracker without further plumbing.
//
// # Range Coalescing
//
// At flush time the recorded frame numbers are sorted, deduplicated
// and merged into runs of adjacent frames:
//
//	Frames: [0, 1, 2, 5, 6] → 2 ranges instead of 5 flush calls
//
// Each run becomes one byte range in the file and one msync (Unix) or
// write-back (other platforms) call.
//
// # Durability Modes
//
// FlushHeaderAndMeta and Commit take a FlushMode. FlushAuto syncs the
// file descriptor after the header write; FlushDataOnly leaves the
// sync to the caller, for batching; FlushFull additionally requests
// F_FULLFSYNC on macOS for power-loss safety.
//
// # Thread Safety
//
// Tracker instances are not thread-safe. Callers must synchronize
// access externally.
//
// # Memory Overhead
//
// Recording costs four bytes per mark until the next flush. A workload
// touching a thousand distinct frames between commits holds 4KB of
// tracking state.
//
// # Related Packages
//
//   - github.com/joshuapare/memkit/mem: the image and the Tracker hook
//   - github.com/joshuapare/memkit/mem/frame: allocator that marks bitmap frames
//   - github.com/joshuapare/memkit/mem/paging: translator that marks table frames
package dirty
