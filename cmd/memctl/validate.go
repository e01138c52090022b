package main

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/joshuapare/memkit/mem/verify"
	"github.com/spf13/cobra"
)

var validateLayout string

func init() {
	cmd := newValidateCmd()
	cmd.Flags().StringVar(&validateLayout, "layout", "", "Layout file; enables pool bitmap checks")
	rootCmd.AddCommand(cmd)
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <image>",
		Short: "Validate image structure and pool invariants",
		Long: `The validate command checks a memory image for structural integrity:
header signature, checksum, geometry against the file size, and the dirty
flag. With --layout it also attaches the layout's pools and cross-checks
every bitmap against its pool's free accounting.

Window and ownership invariants need live translation state, so they are
checked by "memctl boot", not here.

Example:
  memctl validate machine.pmig
  memctl validate machine.pmig --layout machine.memmap
  memctl validate machine.pmig --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args)
		},
	}
	return cmd
}

func runValidate(args []string) error {
	path := args[0]

	printVerbose("Validating image: %s\n", path)

	// Read raw bytes so structural checks still run on images too
	// corrupt to open.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	result := map[string]interface{}{
		"file":  path,
		"valid": true,
	}
	var failure error

	structErr := verify.Image(data)
	cleanErr := verify.Clean(data)
	if structErr != nil {
		failure = structErr
	} else if cleanErr != nil {
		failure = cleanErr
	}

	var bitmapErr error
	bitmapChecked := false
	if structErr == nil && validateLayout != "" {
		bitmapChecked = true
		bitmapErr = validateBitmaps(path)
		if failure == nil && bitmapErr != nil {
			failure = bitmapErr
		}
	}

	if failure != nil {
		result["valid"] = false
		result["error"] = failure.Error()
	}

	if jsonOut {
		return printJSON(result)
	}

	printInfo("\nValidating %s...\n\n", path)

	printInfo("Structure Validation:\n")
	if structErr != nil {
		printInfo("  ✗ %v\n", structErr)
	} else {
		printInfo("  ✓ Header valid\n")
		printInfo("  ✓ Checksum valid\n")
		printInfo("  ✓ Geometry matches file size\n")
	}

	printInfo("\nState Validation:\n")
	if cleanErr != nil {
		printInfo("  ✗ %v\n", cleanErr)
	} else {
		printInfo("  ✓ Image is clean\n")
	}

	if bitmapChecked {
		printInfo("\nPool Validation (%s):\n", validateLayout)
		if bitmapErr != nil {
			printInfo("  ✗ %v\n", bitmapErr)
		} else {
			printInfo("  ✓ All bitmaps consistent\n")
		}
	}

	if failure != nil {
		printInfo("\nResult: ✗ INVALID\n")
		return failure
	}
	printInfo("\nResult: ✓ VALID\n")
	return nil
}

// validateBitmaps attaches the layout's pools read-only and runs the
// bitmap invariant over every pool.
func validateBitmaps(path string) error {
	l, err := loadLayout(validateLayout)
	if err != nil {
		return err
	}

	img, err := mem.OpenReadOnly(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	reg, _, err := boot.AttachPools(img, l)
	if err != nil {
		return err
	}
	return verify.Bitmaps(reg)
}

// loadLayout parses a .memmap layout file.
func loadLayout(path string) (*boot.Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layout: %w", err)
	}
	defer f.Close()

	l, err := boot.ParseLayout(f)
	if err != nil {
		return nil, err
	}
	return l, nil
}
