package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dg645-sim/internal/config"
)

func TestSetupConsoleOnly(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	var console bytes.Buffer
	closer := setup(config.LoggingConfig{MaxSizeMB: 1}, &console)
	log.Printf("console line")

	if !strings.Contains(console.String(), "console line") {
		t.Errorf("Expected console output, got %q", console.String())
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSetupWithFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "dg645sim.log")
	var console bytes.Buffer
	closer := setup(config.LoggingConfig{File: path, MaxSizeMB: 1, MaxBackups: 1}, &console)
	log.Printf("file line")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "file line") {
		t.Errorf("Expected log file to contain line, got %q", string(data))
	}
	if !strings.Contains(console.String(), "file line") {
		t.Errorf("Expected console to mirror file output, got %q", console.String())
	}
}
