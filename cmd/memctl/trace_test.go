package main

import (
	"os"
	"path/filepath"
	"testing"
)

const testScript = `; exercise the heap window
alloc heap 8192 a
touch a
write a+16 hello
read a+16 5
translate a+16
free heap a
translate a
`

func TestTraceScript(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	traceLayout = writeTestLayout(t, dir)
	traceScript = filepath.Join(dir, "ops.txt")
	if err := os.WriteFile(traceScript, []byte(testScript), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	// No image argument: the machine boots on a throwaway buffer.
	out, err := captureOutput(t, func() error { return runTrace(nil) })
	if err != nil {
		t.Fatalf("trace failed: %v", err)
	}
	assertContains(t, out, []string{
		// First user region sits past the two descriptor pages.
		"0x2002000 (a)",
		"5 bytes",
		`"hello"`,
		"not mapped",
		"Faults:",
	})
}

func TestTraceOnImagePersists(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	traceLayout = writeTestLayout(t, dir)
	traceScript = filepath.Join(dir, "ops.txt")
	script := "alloc heap 4096 a\nwrite a stays\n"
	if err := os.WriteFile(traceScript, []byte(script), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	imagePath := filepath.Join(dir, "machine.pmig")
	createFrames = 4096
	if _, err := captureOutput(t, func() error { return runCreate([]string{imagePath}) }); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := captureOutput(t, func() error { return runTrace([]string{imagePath}) }); err != nil {
		t.Fatalf("trace failed: %v", err)
	}

	// The committed image still validates.
	validateLayout = traceLayout
	out, err := captureOutput(t, func() error { return runValidate([]string{imagePath}) })
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	assertContains(t, out, []string{"Result: ✓ VALID"})
}

func TestTraceRejectsUnknownOp(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	traceLayout = writeTestLayout(t, dir)
	traceScript = filepath.Join(dir, "ops.txt")
	if err := os.WriteFile(traceScript, []byte("explode heap\n"), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	_, err := captureOutput(t, func() error { return runTrace(nil) })
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
}
