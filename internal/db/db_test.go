package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathDefaultsWorkspace(t *testing.T) {
	if got, want := Path(""), filepath.Join(".", ".duckpond", "duckpond.db"); got != want {
		t.Fatalf("Path = %s, want %s", got, want)
	}
	if got := Path("/tmp/pond"); got != filepath.Join("/tmp/pond", ".duckpond", "duckpond.db") {
		t.Fatalf("Path = %s", got)
	}
}

func TestOpenCreatesWorkspaceDir(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()
	if _, err := os.Stat(filepath.Join(ws, ".duckpond")); err != nil {
		t.Fatalf("workspace dir missing: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
