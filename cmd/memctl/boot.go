package main

import (
	"context"
	"fmt"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/joshuapare/memkit/mem/dirty"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
	"github.com/joshuapare/memkit/mem/verify"
	"github.com/spf13/cobra"
)

var (
	bootLayout string
	bootCreate bool
	bootFlush  string
)

func init() {
	cmd := newBootCmd()
	cmd.Flags().StringVar(&bootLayout, "layout", "", "Layout file describing the machine (required)")
	cmd.Flags().BoolVar(&bootCreate, "create", false, "Create the image first, sized from the layout")
	cmd.Flags().StringVar(&bootFlush, "flush", "auto", "Durability mode on commit (auto, data, full)")
	_ = cmd.MarkFlagRequired("layout")
	rootCmd.AddCommand(cmd)
}

func newBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot <image>",
		Short: "Assemble a machine on an image and report it",
		Long: `The boot command assembles the machine a layout describes: frame
pools in declaration order, reserved holes, the page translator with its
kernel space, and region windows. It verifies the assembled state, commits
the changes, and clears the dirty flag.

Booting initializes pool bitmaps from scratch. To inspect an already-booted
image without touching it, use "memctl stats".

Flush modes:
  auto - platform default durability
  data - flush data only, skip the final sync
  full - strongest available sync (F_FULLFSYNC where supported)

Example:
  memctl boot machine.pmig --layout machine.memmap
  memctl boot machine.pmig --layout machine.memmap --create
  memctl boot machine.pmig --layout machine.memmap --flush full`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(args)
		},
	}
	return cmd
}

func runBoot(args []string) error {
	path := args[0]

	var mode dirty.FlushMode
	switch bootFlush {
	case "auto":
		mode = dirty.FlushAuto
	case "data":
		mode = dirty.FlushDataOnly
	case "full":
		mode = dirty.FlushFull
	default:
		return fmt.Errorf("unknown flush mode: %s (must be auto, data, or full)", bootFlush)
	}

	l, err := loadLayout(bootLayout)
	if err != nil {
		return err
	}

	var img *mem.Image
	if bootCreate {
		printVerbose("Creating image: %s (%d frames)\n", path, l.Frames)
		img, err = mem.Create(path, l.Frames)
	} else {
		printVerbose("Opening image: %s\n", path)
		img, err = mem.Open(path)
	}
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	tracker := dirty.NewTracker(img)
	img.SetTracker(tracker)
	// Dirty until the commit lands, so a torn boot is visible.
	img.Header().SetDirty(true)

	m, err := boot.Assemble(img, l)
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}

	var spaces []*paging.AddressSpace
	if m.Kernel != nil {
		spaces = append(spaces, m.Kernel)
	}
	windows := make([]*region.Pool, 0, len(m.Windows))
	for _, w := range m.Windows {
		windows = append(windows, w)
	}
	// A failed verification leaves the image dirty on purpose.
	verifyErr := verify.AllInvariants(img, m.Registry, spaces, windows)
	if verifyErr == nil {
		printVerbose("Committing (%s)\n", bootFlush)
		if err := tracker.Commit(context.Background(), mode); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
	}

	if jsonOut {
		pools := make([]map[string]interface{}, 0, len(l.Pools))
		for _, spec := range l.Pools {
			p := m.Pool(spec.Name)
			pools = append(pools, map[string]interface{}{
				"name":   p.Name(),
				"base":   p.Base(),
				"frames": p.Frames(),
				"free":   p.FreeFrames(),
			})
		}
		out := map[string]interface{}{
			"file":    path,
			"layout":  bootLayout,
			"pools":   pools,
			"paging":  m.System != nil,
			"windows": len(m.Windows),
			"valid":   verifyErr == nil,
		}
		if verifyErr != nil {
			out["error"] = verifyErr.Error()
		}
		return printJSON(out)
	}

	printInfo("\nBooted %s from %s\n", path, bootLayout)

	printInfo("\nPools:\n")
	printInfo("  %-10s %8s %8s %8s\n", "NAME", "BASE", "FRAMES", "FREE")
	for _, spec := range l.Pools {
		p := m.Pool(spec.Name)
		printInfo("  %-10s %8d %8d %8d\n", p.Name(), p.Base(), p.Frames(), p.FreeFrames())
	}

	if m.System != nil {
		printInfo("\nPaging:\n")
		printInfo("  Kernel span: %s\n", formatBytes(int64(m.System.KernelSpan())))
		printInfo("  Shared span: %s\n", formatBytes(int64(m.System.SharedSpan())))
		printInfo("  Recursive base: 0x%X\n", m.System.RecursiveBase())
	}

	if len(m.Windows) > 0 {
		printInfo("\nWindows:\n")
		printInfo("  %-10s %12s %10s %10s\n", "NAME", "BASE", "SIZE", "BACKING")
		for _, spec := range l.Windows {
			printInfo("  %-10s %#12x %10s %10s\n",
				spec.Name, spec.Base, formatBytes(int64(spec.Size)), spec.Backing)
		}
	}

	printInfo("\nVerification:\n")
	if verifyErr != nil {
		printInfo("  ✗ %v\n", verifyErr)
		return verifyErr
	}
	printInfo("  ✓ All invariants hold\n")

	return nil
}
