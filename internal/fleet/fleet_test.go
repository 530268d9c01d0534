package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(f) != 0 {
		t.Fatalf("expected empty fleet, got %v", f)
	}
}

func TestLoadMixedEntries(t *testing.T) {
	doc := `
backends:
  - name: local-dev
    userId: dev
  - name: staging
    type: remote
    userId: ci
    host: staging.example.com
    port: 2222
    auth:
      type: key
      privateKeyPath: /etc/ci/id_ed25519
    preventDangerous: false
`
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(f) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(f))
	}

	dev, ok := f["local-dev"]
	if !ok || dev.Kind != KindLocal {
		t.Fatalf("local-dev entry = %+v", dev)
	}
	if dev.Local.UserID != "dev" {
		t.Errorf("unexpected local entry: %+v", dev.Local)
	}
	if !dev.Local.PreventDangerous {
		t.Errorf("expected PreventDangerous to default to true")
	}

	staging, ok := f["staging"]
	if !ok || staging.Kind != KindRemote {
		t.Fatalf("staging entry = %+v", staging)
	}
	if staging.Remote.Host != "staging.example.com" || staging.Remote.Port != 2222 {
		t.Errorf("unexpected remote entry: %+v", staging.Remote)
	}
	if staging.Remote.Auth.Type != "key" || staging.Remote.Auth.PrivateKeyPath != "/etc/ci/id_ed25519" {
		t.Errorf("unexpected auth: %+v", staging.Remote.Auth)
	}
	if staging.Remote.PreventDangerous {
		t.Errorf("expected PreventDangerous override to false")
	}
}

func TestLoadRejectsUnknownType(t *testing.T) {
	doc := "backends:\n  - name: bad\n    type: docker\n    userId: x\n"
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}
