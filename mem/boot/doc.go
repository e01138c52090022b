// Package boot assembles a complete machine from a layout description.
//
// # Overview
//
// A machine is an image, its frame pools, the address translator and
// any allocation windows. Wiring these by hand takes a dozen ordered
// calls; this package drives them from a declarative .memmap layout:
//
//	[image]
//	frames = 4096
//
//	[pool kernel]
//	base = 512
//	frames = 512
//	metadata = self
//
//	[pool process]
//	base = 1024
//	frames = 2MB
//	metadata = kernel
//
//	[paging]
//	directories = kernel
//	pages = process
//	kernel-span = 16MB
//	shared-span = 4MB
//
//	[window heap]
//	space = kernel
//	base = 0x2000000
//	size = 64KB
//	backing = process
//
// # Usage
//
// Parse, validate and assemble:
//
//	layout, err := boot.ParseLayout(f)
//	if err != nil { ... }
//	img, err := mem.Create("machine.pmig", layout.Frames)
//	if err != nil { ... }
//	m, err := boot.Assemble(img, layout)
//	if err != nil { ... }
//	heap := m.Windows["heap"]
//
// Assemble builds pools in declaration order so later pools can borrow
// bitmap frames from earlier ones, punches the declared holes, brings
// up the translator, and opens the windows on the kernel space.
//
// # Reattaching
//
// AttachPools reconstructs the pools of a previously assembled image
// from its persisted bitmaps, without zeroing anything. Inspection
// tools use it to audit an image at rest.
package boot
