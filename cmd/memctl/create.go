package main

import (
	"fmt"

	"github.com/joshuapare/memkit/mem"
	"github.com/spf13/cobra"
)

var createFrames uint32

func init() {
	cmd := newCreateCmd()
	cmd.Flags().Uint32Var(&createFrames, "frames", 0, "Number of 4 KiB frames (required)")
	_ = cmd.MarkFlagRequired("frames")
	rootCmd.AddCommand(cmd)
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <image>",
		Short: "Write a fresh zero-filled memory image",
		Long: `The create command writes a new memory image file: a header page
followed by the requested number of zeroed 4 KiB frames. The file must not
already exist.

Example:
  memctl create machine.pmig --frames 4096
  memctl create machine.pmig --frames 1024 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args)
		},
	}
	return cmd
}

func runCreate(args []string) error {
	path := args[0]

	printVerbose("Creating image: %s (%d frames)\n", path, createFrames)

	img, err := mem.Create(path, createFrames)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	size := img.Size()
	if err := img.Close(); err != nil {
		return fmt.Errorf("failed to close image: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"file":   path,
			"frames": createFrames,
			"size":   size,
		})
	}

	printInfo("Created %s: %d frames, %s\n", path, createFrames, formatBytes(size))
	return nil
}
