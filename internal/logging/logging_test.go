package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebill.log")
	l, err := New(Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("tariff updated")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"tariff updated"`) {
		t.Fatalf("unexpected log output: %s", data)
	}
}

func TestL_DefaultsToNop(t *testing.T) {
	if L() == nil {
		t.Fatalf("expected non-nil default logger")
	}
}
