package constellationfs

import (
	"encoding/json"
	"testing"
)

func TestBackendConfigDefaultsToLocal(t *testing.T) {
	var cfg BackendConfig
	if err := json.Unmarshal([]byte(`{"userId":"u1"}`), &cfg); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if cfg.Kind != BackendLocal {
		t.Fatalf("Kind = %q, want local", cfg.Kind)
	}
	if cfg.Local.Shell != ShellAuto {
		t.Errorf("Shell = %q, want auto", cfg.Local.Shell)
	}
	if !cfg.Local.PreventDangerous {
		t.Error("PreventDangerous should default to true")
	}
}

func TestBackendConfigRemote(t *testing.T) {
	raw := `{
		"type":"remote",
		"userId":"u1",
		"host":"example.com",
		"port":2222,
		"auth":{"type":"password","credentials":{"password":"hunter2"}}
	}`
	var cfg BackendConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if cfg.Kind != BackendRemote {
		t.Fatalf("Kind = %q, want remote", cfg.Kind)
	}
	if cfg.Remote.Host != "example.com" || cfg.Remote.Port != 2222 {
		t.Errorf("unexpected remote config: %+v", cfg.Remote)
	}
	if cfg.Remote.Auth.Type != AuthPassword || cfg.Remote.Auth.Password != "hunter2" {
		t.Errorf("unexpected auth: %+v", cfg.Remote.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestBackendConfigRejectsUnknownType(t *testing.T) {
	var cfg BackendConfig
	err := json.Unmarshal([]byte(`{"type":"docker","userId":"u1"}`), &cfg)
	if err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		userID string
		ok     bool
	}{
		{"alice", true},
		{"alice.bob-123_x", true},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"a b", false},
		{"a\x00b", false},
	}
	for _, tc := range cases {
		err := validateUserID(tc.userID)
		if tc.ok && err != nil {
			t.Errorf("validateUserID(%q) = %v, want nil", tc.userID, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("validateUserID(%q) = nil, want error", tc.userID)
		}
	}
}

func TestBackendConfigRemoteRejectsMissingHost(t *testing.T) {
	cfg := BackendConfig{Kind: BackendRemote, Remote: &RemoteConfig{
		UserID: "u1",
		Auth:   AuthConfig{Type: AuthKey},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing host")
	}
}
