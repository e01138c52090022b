package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testLayout describes the machine the command tests boot: two pools,
// a reserved hole, paging, and one window.
const testLayout = `[image]
frames = 4096

[pool kernel]
base = 512
frames = 512
metadata = self

[pool process]
base = 1024
frames = 2MB
metadata = kernel

[hole]
pool = process
base = 1100
frames = 16

[paging]
directories = kernel
pages = process
kernel-span = 16MB
shared-span = 4MB

[window heap]
space = kernel
base = 0x2000000
size = 32KB
backing = process
`

// resetFlags restores global and command flag state between tests
func resetFlags() {
	verbose = false
	quiet = false
	jsonOut = false
	noColor = false
}

// writeTestLayout writes the standard test layout and returns its path
func writeTestLayout(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "machine.memmap")
	if err := os.WriteFile(path, []byte(testLayout), 0o644); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}
	return path
}

// writeGarbageFile writes a file that is not a memory image
func writeGarbageFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	// Read captured output
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
