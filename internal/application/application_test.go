package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/configcache"
	"github.com/eugenenazirov/configcache/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func baseTestConfig(dir string) config.Config {
	return config.Config{
		BaseName:         filepath.Join(dir, "app.json"),
		EnvVar:           "CONFIGCACHE_APPLICATION_TEST_ENV",
		LogLevel:         "debug",
		StatWarnInterval: time.Minute,
	}
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunPrintsDefaultDocument(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "app.json", `{"name":"svc","port":8080}`)

	var out bytes.Buffer
	app := New(baseTestConfig(dir), zaptest.NewLogger(t), &out)

	if err := app.Run(context.Background(), Request{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var printed map[string]any
	if err := json.Unmarshal(out.Bytes(), &printed); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if printed["name"] != "svc" {
		t.Fatalf("expected name svc, got %v", printed["name"])
	}
	if printed[configcache.KeyConfigFile] != filepath.Join(dir, "app.json") {
		t.Fatalf("expected configfile to be printed, got %v", printed[configcache.KeyConfigFile])
	}
	if app.Cache().Len() != 1 {
		t.Fatalf("expected one cached document, got %d", app.Cache().Len())
	}
}

func TestSnapshotKeepsFileOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeConfig(t, dir, "a.json", `{"id":"a"}`),
		writeConfig(t, dir, "b.yaml", "id: b\n"),
		writeConfig(t, dir, "c.json", `{"id":"c"}`),
	}

	app := New(baseTestConfig(dir), zaptest.NewLogger(t), &bytes.Buffer{})
	docs, err := app.Snapshot(context.Background(), Request{Files: files})
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	for i, want := range []string{"a", "b", "c"} {
		if id, _ := docs[i].String("id"); id != want {
			t.Fatalf("document %d: expected id %s, got %s", i, want, id)
		}
	}
}

func TestSnapshotWithShapeAndSubkey(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, "svc.json", `{"db":{"host":"localhost","port":5432}}`)
	shapeFile := writeConfig(t, dir, "shape.json", `{"host":"","port":0}`)
	narrowShape := writeConfig(t, dir, "narrow.json", `{"host":""}`)

	app := New(baseTestConfig(dir), zaptest.NewLogger(t), &bytes.Buffer{})

	docs, err := app.Snapshot(context.Background(), Request{Files: []string{file}, ShapeFile: shapeFile, Subkey: "db"})
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if !docs[0].Checked() {
		t.Fatalf("expected subkey document to be checked")
	}

	other := New(baseTestConfig(dir), zaptest.NewLogger(t), &bytes.Buffer{})
	_, err = other.Snapshot(context.Background(), Request{Files: []string{file}, ShapeFile: narrowShape, Subkey: "db"})
	if !errors.Is(err, configcache.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestSnapshotMissingFile(t *testing.T) {
	dir := t.TempDir()
	app := New(baseTestConfig(dir), zaptest.NewLogger(t), &bytes.Buffer{})

	_, err := app.Snapshot(context.Background(), Request{Files: []string{filepath.Join(dir, "missing.json")}})
	if !errors.Is(err, configcache.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestRunWatchPrintsReloads(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, "app.json", `{"version":1}`)

	cfg := baseTestConfig(dir)
	cfg.WatchInterval = 5 * time.Millisecond

	out := &syncBuffer{}
	app := New(cfg, zaptest.NewLogger(t), out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx, Request{Files: []string{file}})
	}()

	waitFor(t, func() bool { return strings.Contains(out.String(), `"version": 1`) })

	writeConfig(t, dir, "app.json", `{"version":2}`)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	waitFor(t, func() bool { return strings.Contains(out.String(), `"version": 2`) })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected Run to stop after cancellation")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
