package envbuild

import (
	"strings"
	"testing"
)

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

func TestBuildBaseVars(t *testing.T) {
	res, err := Build("/ws", "bash", nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	m := envMap(res.Env)
	if m["HOME"] != "/ws" || m["PWD"] != "/ws" {
		t.Errorf("HOME/PWD not rooted at workspace: %+v", m)
	}
	if m["TMPDIR"] != "/ws/.tmp" {
		t.Errorf("TMPDIR = %q, want /ws/.tmp", m["TMPDIR"])
	}
	if m["SHELL"] != "bash" {
		t.Errorf("SHELL = %q, want bash", m["SHELL"])
	}
	if m["LANG"] != "C" || m["LC_ALL"] != "C" {
		t.Errorf("LANG/LC_ALL not forced to C: %+v", m)
	}
}

func TestBuildAlwaysClearsDangerousVars(t *testing.T) {
	custom := map[string]string{
		"LD_PRELOAD":            "/evil.so",
		"LD_LIBRARY_PATH":       "/evil",
		"DYLD_INSERT_LIBRARIES": "/evil.dylib",
		"DYLD_LIBRARY_PATH":     "/evil",
		"IFS":                   ";",
		"BASH_ENV":              "/evil.sh",
		"ENV":                   "/evil.sh",
	}
	res, err := Build("/ws", "bash", custom)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	m := envMap(res.Env)
	for k := range custom {
		if _, present := m[k]; present {
			t.Errorf("cleared var %q leaked into env", k)
		}
	}
	if len(res.Warnings) != len(custom) {
		t.Errorf("expected %d warnings, got %d: %v", len(custom), len(res.Warnings), res.Warnings)
	}
}

func TestBuildCustomEnvMerge(t *testing.T) {
	res, err := Build("/ws", "bash", map[string]string{"MY_VAR": "hello"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	m := envMap(res.Env)
	if m["MY_VAR"] != "hello" {
		t.Errorf("MY_VAR = %q, want hello", m["MY_VAR"])
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestBuildOverrideWarns(t *testing.T) {
	res, err := Build("/ws", "bash", map[string]string{"PATH": "/custom/bin"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	m := envMap(res.Env)
	if m["PATH"] != "/custom/bin" {
		t.Errorf("PATH override not applied: %q", m["PATH"])
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected 1 warning for PATH override, got %v", res.Warnings)
	}
}

func TestBuildRejectsNulByte(t *testing.T) {
	_, err := Build("/ws", "bash", map[string]string{"X": "a\x00b"})
	if err == nil {
		t.Fatal("expected error for NUL byte in customEnv value")
	}
}
