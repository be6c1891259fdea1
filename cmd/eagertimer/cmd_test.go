package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eagertimer/internal/storage"
	logx "eagertimer/pkg/logx"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"eagertimer"}, args...))
	return out.String(), err
}

func TestConvertCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"90", "s", "min"}, want: "1.5 minutes"},
		{args: []string{"2", "hours", "ms"}, want: "7.2e+06 milliseconds"},
		{args: []string{"1", "days", "h"}, want: "24 hours"},
	}
	for _, tt := range tests {
		out, err := runCLI(t, append([]string{"convert"}, tt.args...)...)
		if err != nil {
			t.Fatalf("convert %v: %v", tt.args, err)
		}
		if strings.TrimSpace(out) != tt.want {
			t.Fatalf("convert %v = %q, want %q", tt.args, out, tt.want)
		}
	}
}

func TestConvertCommandErrors(t *testing.T) {
	for _, args := range [][]string{
		{"convert", "1", "s"},
		{"convert", "x", "s", "ms"},
		{"convert", "1", "weeks", "ms"},
	} {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("%v: expected an error", args)
		}
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	body := `
scheduler:
  minimum_interval: 50ms
events:
  - name: report
    every: "0 9 * * 1"
    times: 4
  - name: ping
    every: 15s
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "check", "--config", p)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	for _, want := range []string{"ok", "minimum_interval=50ms", "report", "0 9 * * 1", "every 15s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("check output missing %q:\n%s", want, out)
		}
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"scheduler":{"time_unit":"weeks"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "check", "-c", bad); err == nil || !strings.Contains(err.Error(), "scheduler.time_unit") {
		t.Fatalf("check bad config: err = %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	p := filepath.Join(dir, "config.json")
	body := `{"storage": {"driver": "sqlite", "path": "` + filepath.ToSlash(dbPath) + `"}}`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: dbPath}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	for i, name := range []string{"alpha", "beta", "alpha"} {
		r := storage.FireRecord{At: at.Add(time.Duration(i) * time.Second), Name: name, Kind: storage.KindFired, TimesFired: i + 1, PlannedAt: at}
		if err := st.AppendFire(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = st.Close()

	out, err := runCLI(t, "history", "--config", p, "--name", "alpha", "--limit", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "alpha") || !strings.Contains(lines[1], "2s") {
		t.Fatalf("history output:\n%s", out)
	}
}

func TestHistoryCommandDisabled(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	historyName, historyLimit = "", 20
	if _, err := runCLI(t, "history", "-c", p); err != storage.ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
