package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/batch/repository"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestJobsPrintsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_users.json")
	reg := repository.NewRegistry(path)
	if err := reg.Create(domain.BatchJob{ID: "j1", Kind: domain.KindBatch, UserID: 42, ChannelRef: "news", StartMessageID: 10, Total: 5}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out, err := execute(t, "", "jobs", "--registry", path)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "42") || !strings.Contains(out, "news") || !strings.Contains(out, "0/5") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestJobsEmptyRegistry(t *testing.T) {
	out, err := execute(t, "", "jobs", "--registry", filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if strings.TrimSpace(out) != "no batches" {
		t.Fatalf("got %q", out)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	viper.Set("vault.master_key", "master")
	viper.Set("vault.salt", "salt")
	t.Cleanup(func() {
		viper.Set("vault.master_key", "")
		viper.Set("vault.salt", "")
	})

	encrypted, err := execute(t, "", "vault", "encrypt", "123:token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	encrypted = strings.TrimSpace(encrypted)
	if encrypted == "" || encrypted == "123:token" {
		t.Fatalf("encrypt returned %q", encrypted)
	}

	plain, err := execute(t, encrypted+"\n", "vault", "decrypt")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if strings.TrimSpace(plain) != "123:token" {
		t.Fatalf("decrypt returned %q", plain)
	}
}

func TestVaultRequiresMasterKey(t *testing.T) {
	viper.Set("vault.master_key", "")
	if _, err := execute(t, "", "vault", "encrypt", "x"); err == nil {
		t.Fatal("expected error without master key")
	}
}
