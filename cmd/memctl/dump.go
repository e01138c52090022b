package main

import (
	"encoding/hex"
	"fmt"

	"github.com/joshuapare/memkit/mem"
	"github.com/spf13/cobra"
)

var (
	dumpFrame int64
	dumpCount uint32
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().Int64Var(&dumpFrame, "frame", -1, "First frame to dump (-1 = header page)")
	cmd.Flags().Uint32Var(&dumpCount, "count", 1, "Number of frames to dump")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <image>",
		Short: "Hexdump frames of an image",
		Long: `The dump command hexdumps frames from a memory image. Without
--frame it dumps the header page.

Example:
  memctl dump machine.pmig
  memctl dump machine.pmig --frame 512
  memctl dump machine.pmig --frame 1024 --count 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

func runDump(args []string) error {
	path := args[0]

	img, err := mem.OpenReadOnly(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	if dumpFrame < 0 {
		raw := img.Header().Raw()
		printInfo("header page @ 0x0 (%d bytes):\n", len(raw))
		printInfo("%s", hex.Dump(raw))
		return nil
	}

	if dumpFrame >= int64(img.Frames()) {
		return fmt.Errorf("frame %d out of range (image has %d frames)", dumpFrame, img.Frames())
	}
	headerLen := int64(len(img.Header().Raw()))
	pageSize := int64(img.Header().PageSize())
	for i := uint32(0); i < dumpCount; i++ {
		fno := uint32(dumpFrame) + i
		data, err := img.Frame(fno)
		if err != nil {
			return err
		}
		printInfo("frame %d @ 0x%X:\n", fno, headerLen+int64(fno)*pageSize)
		printInfo("%s", hex.Dump(data))
	}
	return nil
}
