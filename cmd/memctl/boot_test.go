package main

import (
	"path/filepath"
	"testing"
)

func TestBootValidateStats(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	layoutPath := writeTestLayout(t, dir)
	imagePath := filepath.Join(dir, "machine.pmig")

	bootLayout = layoutPath
	bootCreate = true
	bootFlush = "auto"
	out, err := captureOutput(t, func() error { return runBoot([]string{imagePath}) })
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	assertContains(t, out, []string{
		"Booted",
		"kernel",
		"process",
		"heap",
		"Kernel span: 16.0 MB",
		"✓ All invariants hold",
	})

	// The committed image validates clean, bitmaps included.
	validateLayout = layoutPath
	out, err = captureOutput(t, func() error { return runValidate([]string{imagePath}) })
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	assertContains(t, out, []string{
		"✓ Image is clean",
		"✓ All bitmaps consistent",
		"Result: ✓ VALID",
	})

	statsLayout = layoutPath
	out, err = captureOutput(t, func() error { return runStats([]string{imagePath}) })
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	assertContains(t, out, []string{"kernel", "(self)", "@513"})
}

func TestBootRejectsBadFlushMode(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	layoutPath := writeTestLayout(t, dir)

	bootLayout = layoutPath
	bootCreate = true
	bootFlush = "sometimes"
	_, err := captureOutput(t, func() error {
		return runBoot([]string{filepath.Join(dir, "m.pmig")})
	})
	if err == nil {
		t.Fatal("expected error for unknown flush mode")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.pmig")
	writeGarbageFile(t, path)

	validateLayout = ""
	out, err := captureOutput(t, func() error { return runValidate([]string{path}) })
	if err == nil {
		t.Fatal("expected validation failure")
	}
	assertContains(t, out, []string{"Result: ✗ INVALID"})
}
