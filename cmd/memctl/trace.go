package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/joshuapare/memkit/mem/dirty"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/spf13/cobra"
)

var (
	traceLayout string
	traceScript string
)

func init() {
	cmd := newTraceCmd()
	cmd.Flags().StringVar(&traceLayout, "layout", "", "Layout file describing the machine (required)")
	cmd.Flags().StringVar(&traceScript, "script", "", "Operation script to run (required)")
	_ = cmd.MarkFlagRequired("layout")
	_ = cmd.MarkFlagRequired("script")
	rootCmd.AddCommand(cmd)
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace [image]",
		Short: "Run an allocation script through a booted machine",
		Long: `The trace command boots a machine from a layout and runs a script of
allocation, touch, and translation operations against it, printing each
step. With an image argument the machine boots on that file and the result
is committed; without one it runs on a throwaway in-memory image.

Script operations, one per line (';' and '#' start comments):

  alloc <window> <size> [name]   allocate, optionally binding a name
  free <window> <addr>           release a region by address
  touch <addr>                   fault the page in
  write <addr> <text>            write bytes through translation
  read <addr> <len>              read bytes back
  translate <addr>               report the physical address

Addresses are names bound by alloc, decimal, or 0x hex, with an optional
+offset (for example a+64).

Example:
  memctl trace --layout machine.memmap --script ops.txt
  memctl trace machine.pmig --layout machine.memmap --script ops.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(args)
		},
	}
	return cmd
}

type traceStep struct {
	Line   int    `json:"line"`
	Op     string `json:"op"`
	Result string `json:"result"`
}

func runTrace(args []string) error {
	l, err := loadLayout(traceLayout)
	if err != nil {
		return err
	}

	var (
		img     *mem.Image
		tracker *dirty.Tracker
	)
	if len(args) == 1 {
		printVerbose("Opening image: %s\n", args[0])
		img, err = mem.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open image: %w", err)
		}
		tracker = dirty.NewTracker(img)
		img.SetTracker(tracker)
		img.Header().SetDirty(true)
	} else {
		printVerbose("Booting in-memory machine (%d frames)\n", l.Frames)
		img, err = mem.NewAnonymous(l.Frames)
		if err != nil {
			return err
		}
	}
	defer img.Close()

	m, err := boot.Assemble(img, l)
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}

	f, err := os.Open(traceScript)
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	steps, err := runScript(m, f)
	if err != nil {
		return err
	}

	if tracker != nil {
		if err := tracker.Commit(context.Background(), dirty.FlushAuto); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
	}

	if jsonOut {
		out := map[string]interface{}{
			"layout": traceLayout,
			"script": traceScript,
			"steps":  steps,
		}
		if m.System != nil {
			out["faults"] = m.System.Stats().Faults
		}
		return printJSON(out)
	}

	for _, s := range steps {
		printInfo("%3d  %-32s -> %s\n", s.Line, s.Op, s.Result)
	}
	if m.System != nil {
		st := m.System.Stats()
		printInfo("\nFaults: %d (%d tables, %d pages)\n",
			st.Faults, st.TableFaults, st.PageFaults)
	}
	return nil
}

// runScript executes the operation script against a booted machine.
func runScript(m *boot.Machine, r io.Reader) ([]traceStep, error) {
	vars := make(map[string]uint32)
	var steps []traceStep

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		result, err := runOp(m, vars, strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %s: %w", lineno, line, err)
		}
		steps = append(steps, traceStep{Line: lineno, Op: line, Result: result})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: read script: %w", err)
	}
	return steps, nil
}

func runOp(m *boot.Machine, vars map[string]uint32, fields []string) (string, error) {
	switch fields[0] {
	case "alloc":
		if len(fields) < 3 || len(fields) > 4 {
			return "", fmt.Errorf("usage: alloc <window> <size> [name]")
		}
		w := m.Window(fields[1])
		if w == nil {
			return "", fmt.Errorf("unknown window %q", fields[1])
		}
		size, err := parseNum(fields[2])
		if err != nil {
			return "", err
		}
		addr, err := w.Allocate(size)
		if err != nil {
			return "", err
		}
		if len(fields) == 4 {
			vars[fields[3]] = addr
			return fmt.Sprintf("0x%X (%s)", addr, fields[3]), nil
		}
		return fmt.Sprintf("0x%X", addr), nil

	case "free":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: free <window> <addr>")
		}
		w := m.Window(fields[1])
		if w == nil {
			return "", fmt.Errorf("unknown window %q", fields[1])
		}
		addr, err := parseAddr(vars, fields[2])
		if err != nil {
			return "", err
		}
		if err := w.Release(addr); err != nil {
			return "", err
		}
		return "ok", nil

	case "touch":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: touch <addr>")
		}
		addr, err := parseAddr(vars, fields[1])
		if err != nil {
			return "", err
		}
		if m.System == nil {
			return "", fmt.Errorf("layout has no paging")
		}
		var b [1]byte
		if _, err := m.System.ReadAt(b[:], int64(addr)); err != nil {
			return "", err
		}
		phys, err := m.System.Translate(addr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("frame %d", phys/m.Image.Header().PageSize()), nil

	case "write":
		if len(fields) < 3 {
			return "", fmt.Errorf("usage: write <addr> <text>")
		}
		addr, err := parseAddr(vars, fields[1])
		if err != nil {
			return "", err
		}
		if m.System == nil {
			return "", fmt.Errorf("layout has no paging")
		}
		text := strings.Join(fields[2:], " ")
		n, err := m.System.WriteAt([]byte(text), int64(addr))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d bytes", n), nil

	case "read":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: read <addr> <len>")
		}
		addr, err := parseAddr(vars, fields[1])
		if err != nil {
			return "", err
		}
		count, err := parseNum(fields[2])
		if err != nil {
			return "", err
		}
		if m.System == nil {
			return "", fmt.Errorf("layout has no paging")
		}
		buf := make([]byte, count)
		if _, err := m.System.ReadAt(buf, int64(addr)); err != nil {
			return "", err
		}
		return fmt.Sprintf("%q", buf), nil

	case "translate":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: translate <addr>")
		}
		addr, err := parseAddr(vars, fields[1])
		if err != nil {
			return "", err
		}
		if m.System == nil {
			return "", fmt.Errorf("layout has no paging")
		}
		phys, err := m.System.Translate(addr)
		if errors.Is(err, paging.ErrNotMapped) {
			return "not mapped", nil
		}
		if err != nil {
			return "", err
		}
		ps := m.Image.Header().PageSize()
		return fmt.Sprintf("0x%X (frame %d, offset 0x%X)", phys, phys/ps, phys%ps), nil

	default:
		return "", fmt.Errorf("unknown operation %q", fields[0])
	}
}

// parseAddr resolves a script address: a name bound by alloc, decimal,
// or 0x hex, with an optional +offset.
func parseAddr(vars map[string]uint32, s string) (uint32, error) {
	base := s
	var off uint32
	if i := strings.IndexByte(s, '+'); i >= 0 {
		base = s[:i]
		n, err := parseNum(s[i+1:])
		if err != nil {
			return 0, fmt.Errorf("bad offset in %q: %w", s, err)
		}
		off = n
	}
	if v, ok := vars[base]; ok {
		return v + off, nil
	}
	n, err := parseNum(base)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return n + off, nil
}

func parseNum(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
