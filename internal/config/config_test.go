package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_RequiresAtLeastOneBackend(t *testing.T) {
	if _, err := Parse([]string{}); err == nil {
		t.Fatal("expected error with no --server or --server-file")
	}
}

func TestParse_SingleServerFlag(t *testing.T) {
	cfg, err := Parse([]string{"--server", "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(cfg.Servers))
	}
	if cfg.Listen != DefaultListen {
		t.Fatalf("expected default listen address, got %s", cfg.Listen)
	}
	if cfg.SilenceTimeout != DefaultSilenceTimeoutSecs*time.Second {
		t.Fatalf("expected default silence timeout, got %s", cfg.SilenceTimeout)
	}
}

func TestParse_RepeatableServerFlag(t *testing.T) {
	cfg, err := Parse([]string{
		"--server", "http://a:11434",
		"--server", "http://b:11434",
	})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}
}

func TestParse_ServerFileMergesWithServerFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.txt")
	contents := "# comment\nhttp://file-a:11434\n\nhttp://file-b:11434\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing server file: %v", err)
	}

	cfg, err := Parse([]string{"--server", "http://flag:11434", "--server-file", path})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.Servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(cfg.Servers))
	}
}

func TestParse_InvalidServerURL(t *testing.T) {
	if _, err := Parse([]string{"--server", "not-a-url"}); err == nil {
		t.Fatal("expected error for a URL missing scheme/host")
	}
}

func TestParse_NegativeTimeoutRejected(t *testing.T) {
	if _, err := Parse([]string{"--server", "http://a:11434", "--timeout", "-1"}); err == nil {
		t.Fatal("expected error for a negative --timeout")
	}
}

func TestParse_ZeroTimeoutDisablesSilenceWatchdog(t *testing.T) {
	cfg, err := Parse([]string{"--server", "http://a:11434", "--timeout", "0"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.SilenceTimeout != 0 {
		t.Fatalf("expected SilenceTimeout 0, got %s", cfg.SilenceTimeout)
	}
}

func TestParse_VersionShortCircuits(t *testing.T) {
	cfg, err := Parse([]string{"--version"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !cfg.ShowVersion {
		t.Fatal("expected ShowVersion true")
	}
	if len(cfg.Servers) != 0 {
		t.Fatal("expected no server validation when --version is set")
	}
}

func TestParse_CustomListenAddress(t *testing.T) {
	cfg, err := Parse([]string{"--server", "http://a:11434", "--listen", "127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Fatalf("expected custom listen address, got %s", cfg.Listen)
	}
}
