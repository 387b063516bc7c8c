package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{50 * 1024 * 1024, "50.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.5 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TiB", 1024 * 1024 * 1024 * 1024},
		{" 50 MiB ", 50 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
		{"1gb", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "", "MB", "-5MB"} {
		if _, err := ParseBytes(input); err == nil {
			t.Errorf("ParseBytes(%q): expected error", input)
		}
	}
}

func TestReporterItemTracking(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{Output: &out})
	reporter.Begin(Task{Action: "Downloading", Name: "dataset.7z", TotalSize: 1024, TotalItems: 4, Workers: 2})

	// Test item tracking without starting the display loop
	reporter.ItemStarted()
	if reporter.inProgress.Load() != 1 {
		t.Errorf("expected 1 in-progress, got %d", reporter.inProgress.Load())
	}

	reporter.BytesWritten(256)
	reporter.ItemCompleted()
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after complete, got %d", reporter.inProgress.Load())
	}
	if reporter.completedItems.Load() != 1 {
		t.Errorf("expected 1 completed, got %d", reporter.completedItems.Load())
	}
	if reporter.completedBytes.Load() != 256 {
		t.Errorf("expected 256 bytes, got %d", reporter.completedBytes.Load())
	}

	reporter.ItemStarted()
	reporter.BytesWritten(100)
	reporter.ItemFailed(100)
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after fail, got %d", reporter.inProgress.Load())
	}
	if reporter.completedBytes.Load() != 256 {
		t.Errorf("failed bytes should be discarded, got %d", reporter.completedBytes.Load())
	}

	reporter.End()
	if !strings.Contains(out.String(), "[haul] Downloading: dataset.7z") {
		t.Errorf("missing header in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "1 failed") {
		t.Errorf("missing failure count in output:\n%s", out.String())
	}
}

func TestReporterBeginResets(t *testing.T) {
	reporter := NewReporter(Options{Output: &bytes.Buffer{}})
	reporter.Begin(Task{Action: "Downloading", Name: "a.7z", TotalItems: 1})
	reporter.ItemStarted()
	reporter.BytesWritten(10)
	reporter.ItemCompleted()
	reporter.End()

	reporter.Begin(Task{Action: "Uploading", Name: "raw/a/", TotalItems: 3})
	if reporter.completedItems.Load() != 0 || reporter.completedBytes.Load() != 0 {
		t.Error("expected counters to be reset by Begin")
	}
}

func TestReporterStartStop(t *testing.T) {
	var out syncBuffer
	reporter := NewReporter(Options{
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
	})

	reporter.Start()
	reporter.Begin(Task{
		Action:     "Downloading",
		Name:       "https://example.com/file.7z",
		TotalSize:  1024 * 1024,
		TotalItems: 4,
		ItemSize:   256 * 1024,
		Workers:    2,
	})

	// Simulate part progress
	reporter.ItemStarted()
	reporter.BytesWritten(256 * 1024)
	reporter.ItemCompleted()

	reporter.ItemStarted()
	reporter.BytesWritten(256 * 1024)
	reporter.ItemCompleted()

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.End()
	reporter.Stop()
	reporter.Stop() // idempotent

	// Verify state
	if reporter.completedItems.Load() != 2 {
		t.Errorf("expected 2 completed items, got %d", reporter.completedItems.Load())
	}
	if reporter.completedBytes.Load() != 512*1024 {
		t.Errorf("expected 512KiB completed, got %d", reporter.completedBytes.Load())
	}
	if !strings.Contains(out.String(), "Items: 4 x 256 KiB | Workers: 2") {
		t.Errorf("unexpected header:\n%s", out.String())
	}
}
