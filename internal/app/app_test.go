package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_RequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "")

	var buf bytes.Buffer
	if _, err := Init(&buf); err == nil {
		t.Error("BACKEND_URL未設定でInitが成功してはいけない")
	}
}

func TestInit_LoadsConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.example.com")
	t.Setenv("COLLECTION", "socios")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if cfg.BackendURL != "https://backend.example.com" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.Collection != "socios" {
		t.Errorf("Collection = %q", cfg.Collection)
	}
}

func TestRun_FailsWithoutBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Error("必須設定なしでRunが成功してはいけない")
	}
}

func TestPromptCredentials(t *testing.T) {
	in := strings.NewReader("user@example.com\nsecreto\n")
	var out bytes.Buffer

	email, password, err := promptCredentials(in, &out)
	if err != nil {
		t.Fatalf("promptCredentials() error = %v", err)
	}
	if email != "user@example.com" || password != "secreto" {
		t.Errorf("email = %q, password = %q", email, password)
	}
	if !strings.Contains(out.String(), "Email:") || !strings.Contains(out.String(), "Password:") {
		t.Errorf("プロンプトが出力されていない: %q", out.String())
	}
}

func TestPromptCredentials_EmptyRejected(t *testing.T) {
	in := strings.NewReader("\nsecreto\n")
	var out bytes.Buffer

	if _, _, err := promptCredentials(in, &out); err == nil {
		t.Error("空のメールアドレスはエラーになるはず")
	}
}
