package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDeviceIDConfiguredWins(t *testing.T) {
	dir := t.TempDir()
	id, err := resolveDeviceID(dir, "dev-configured")
	if err != nil {
		t.Fatalf("resolveDeviceID failed: %v", err)
	}
	if id != "dev-configured" {
		t.Errorf("Expected configured id, got %q", id)
	}
	if _, err := os.Stat(filepath.Join(dir, deviceIDFileName)); !os.IsNotExist(err) {
		t.Error("A configured id must not be persisted to the state dir")
	}
}

func TestResolveDeviceIDGeneratesAndPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	id, err := resolveDeviceID(dir, "")
	if err != nil {
		t.Fatalf("resolveDeviceID failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a generated device id")
	}

	data, err := os.ReadFile(filepath.Join(dir, deviceIDFileName))
	if err != nil {
		t.Fatalf("Expected persisted device id file: %v", err)
	}
	if got := string(data); got != id+"\n" {
		t.Errorf("Persisted file content %q does not match id %q", got, id)
	}

	// A second resolve keeps the same identity across restarts.
	again, err := resolveDeviceID(dir, "")
	if err != nil {
		t.Fatalf("Second resolveDeviceID failed: %v", err)
	}
	if again != id {
		t.Errorf("Expected stable id %q, got %q", id, again)
	}
}
