package main

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/spf13/cobra"
)

var statsLayout string

func init() {
	cmd := newStatsCmd()
	cmd.Flags().StringVar(&statsLayout, "layout", "", "Layout file describing the machine (required)")
	_ = cmd.MarkFlagRequired("layout")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <image>",
		Short: "Show pool occupancy for a booted image",
		Long: `The stats command attaches a layout's pools to an image read-only
and reports per-pool occupancy: managed frames, free frames, and where each
pool's bitmap lives. The image is not modified.

Example:
  memctl stats machine.pmig --layout machine.memmap
  memctl stats machine.pmig --layout machine.memmap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
	return cmd
}

func runStats(args []string) error {
	path := args[0]

	l, err := loadLayout(statsLayout)
	if err != nil {
		return err
	}

	printVerbose("Opening image: %s\n", path)

	img, err := mem.OpenReadOnly(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	_, pools, err := boot.AttachPools(img, l)
	if err != nil {
		return fmt.Errorf("failed to attach pools: %w", err)
	}

	if jsonOut {
		rows := make([]map[string]interface{}, 0, len(l.Pools))
		for _, spec := range l.Pools {
			p := pools[spec.Name]
			rows = append(rows, map[string]interface{}{
				"name":       p.Name(),
				"base":       p.Base(),
				"frames":     p.Frames(),
				"free":       p.FreeFrames(),
				"used":       p.Frames() - p.FreeFrames(),
				"selfHosted": p.SelfHosted(),
				"bitmapBase": p.MetadataBase(),
			})
		}
		return printJSON(map[string]interface{}{
			"file":   path,
			"frames": img.Frames(),
			"pools":  rows,
		})
	}

	printInfo("\nImage: %s\n", path)
	if stat, err := os.Stat(path); err == nil {
		printInfo("  Size: %s\n", formatBytes(stat.Size()))
	}
	printInfo("  Frames: %d\n", img.Frames())

	printInfo("\nPools:\n")
	printInfo("  %-10s %8s %8s %8s %8s %7s  %s\n",
		"NAME", "BASE", "FRAMES", "FREE", "USED", "UTIL", "BITMAP")
	for _, spec := range l.Pools {
		p := pools[spec.Name]
		used := p.Frames() - p.FreeFrames()
		util := 100 * float64(used) / float64(p.Frames())
		bitmap := fmt.Sprintf("@%d", p.MetadataBase())
		if p.SelfHosted() {
			bitmap += " (self)"
		}
		printInfo("  %-10s %8d %8d %8d %8d %6.1f%%  %s\n",
			p.Name(), p.Base(), p.Frames(), p.FreeFrames(), used, util, bitmap)
	}

	return nil
}
