package main

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/mem"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Validate an image header and report its geometry",
		Long: `The info command opens a memory image read-only, validates the
header, and displays geometry and state: page size, frame count, the dirty
flag, and checksum status.

Example:
  memctl info machine.pmig
  memctl info machine.pmig --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

func runInfo(args []string) error {
	path := args[0]

	printVerbose("Opening image: %s\n", path)

	img, err := mem.OpenReadOnly(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	hdr := img.Header()

	if jsonOut {
		return printJSON(map[string]interface{}{
			"file":       path,
			"version":    hdr.Version(),
			"pagesize":   hdr.PageSize(),
			"frames":     hdr.FrameCount(),
			"size":       img.Size(),
			"dirty":      hdr.Dirty(),
			"checksumOK": hdr.ChecksumOK(),
			"mapped":     img.Mapped(),
		})
	}

	printInfo("\nImage Information:\n")
	printInfo("  File: %s\n", path)
	if stat, err := os.Stat(path); err == nil {
		printInfo("  Size: %s\n", formatBytes(stat.Size()))
	}
	printInfo("  Version: %d\n", hdr.Version())
	printInfo("  Page size: %d\n", hdr.PageSize())
	printInfo("  Frames: %d\n", hdr.FrameCount())
	printInfo("  Mapped: %v\n", img.Mapped())

	printInfo("\nState:\n")
	if hdr.Dirty() {
		printInfo("  ✗ Dirty flag set (unflushed changes)\n")
	} else {
		printInfo("  ✓ Clean\n")
	}
	if hdr.ChecksumOK() {
		printInfo("  ✓ Header checksum valid\n")
	} else {
		printInfo("  ✗ Header checksum mismatch\n")
	}

	return nil
}
