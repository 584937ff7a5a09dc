package session

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// freePort grabs an ephemeral port for the test server.
func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probing for a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return uint16(port)
}

func TestServeSessionEndToEnd(t *testing.T) {
	dir := t.TempDir()
	manifest := `{
        "name": "e2e",
        "tree": {"$className": "Folder", "$path": "src"}
    }`
	if err := os.WriteFile(filepath.Join(dir, "default.project.json5"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "mod.luau"), []byte("return 1"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	s, err := Start(Options{
		ProjectPath:   dir,
		Port:          freePort(t),
		ServerVersion: "test",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/rojo", s.Address()))
	if err != nil {
		t.Fatalf("GET /api/rojo: %v", err)
	}
	defer resp.Body.Close()

	var info struct {
		SessionID   string `json:"sessionId"`
		ProjectName string `json:"projectName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	if info.SessionID != s.ID {
		t.Errorf("sessionId = %q, want %q", info.SessionID, s.ID)
	}
	if info.ProjectName != "e2e" {
		t.Errorf("projectName = %q", info.ProjectName)
	}
}

func TestStartRejectsMissingProject(t *testing.T) {
	dir := t.TempDir()
	if _, err := Start(Options{ProjectPath: dir, Port: freePort(t)}); err == nil {
		t.Errorf("directories without a project file must be rejected")
	}
}
