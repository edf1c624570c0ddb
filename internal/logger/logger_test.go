package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ohnitiel/upsql/internal/config"
)

func TestMultiHandler_LevelsPerHandler(t *testing.T) {
	t.Parallel()

	var info, debug bytes.Buffer
	log := slog.New(NewMultiHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)).With("cursor", "c1")

	log.DebugContext(context.Background(), "Result not ready yet")
	log.InfoContext(context.Background(), "Query submitted")

	if strings.Contains(info.String(), "Result not ready yet") {
		t.Fatal("info handler received a debug record")
	}
	if !strings.Contains(info.String(), "Query submitted") || !strings.Contains(info.String(), "cursor=c1") {
		t.Fatalf("info handler output: %q", info.String())
	}
	if strings.Count(debug.String(), "cursor=c1") != 2 {
		t.Fatalf("debug handler output: %q", debug.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_FileOutput(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "upsql.log")
	closer, err := Setup(config.LoggerConfigs{
		ConsoleLevel: "error",
		FileLevel:    "debug",
		FileOutput:   path,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	slog.Debug("written to file only", "profile", "eu")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "written to file only") || !strings.Contains(string(b), "source=") {
		t.Fatalf("log file content: %q", b)
	}
}
