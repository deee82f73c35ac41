package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vision-wallet/go-backend/internal/backup"
	"vision-wallet/go-backend/internal/storage"
)

const (
	zeroVectorPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	zeroVectorAddr   = "0x8d6eaa727051ab561d891790b88e085f05b7db84"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return out
}

func TestCreateUnlockStatus(t *testing.T) {
	dir := t.TempDir()

	res := runCLI(t, "", "create", "-data-dir", dir)
	if res.code != exitOK {
		t.Fatalf("create exit %d: %s", res.code, res.stderr)
	}
	created := decodeJSON(t, res.stdout)
	address, _ := created["address"].(string)
	if address == "" {
		t.Fatalf("create printed no address: %s", res.stdout)
	}

	res = runCLI(t, "", "unlock", "-data-dir", dir)
	if res.code != exitOK || strings.Contains(res.stdout, "privateKeyHex") {
		t.Fatalf("unlock without -reveal must hide secrets: %d %s", res.code, res.stdout)
	}
	res = runCLI(t, "", "unlock", "-data-dir", dir, "-reveal")
	if res.code != exitOK || !strings.Contains(res.stdout, "privateKeyHex") {
		t.Fatalf("unlock -reveal: %d %s", res.code, res.stdout)
	}

	res = runCLI(t, "", "status", "-data-dir", dir)
	if res.code != exitOK || !strings.Contains(res.stdout, "state=provisioned") || !strings.Contains(res.stdout, address) {
		t.Fatalf("status: %d %s", res.code, res.stdout)
	}

	res = runCLI(t, "", "create", "-data-dir", dir)
	if res.code != exitRequestRefused || !strings.Contains(res.stderr, "wallet_exists") {
		t.Fatalf("second create: %d %s", res.code, res.stderr)
	}
}

func TestImportFromStdin(t *testing.T) {
	dir := t.TempDir()
	res := runCLI(t, strings.ToUpper(zeroVectorPhrase)+"\n", "import", "-data-dir", dir, "-backend", "bolt")
	if res.code != exitOK {
		t.Fatalf("import exit %d: %s", res.code, res.stderr)
	}
	if got := decodeJSON(t, res.stdout)["address"]; got != zeroVectorAddr {
		t.Fatalf("unexpected address %v", got)
	}

	res = runCLI(t, "abandon abandon\n", "import", "-data-dir", t.TempDir())
	if res.code != exitInvalidInput || !strings.Contains(res.stderr, "invalid_mnemonic") {
		t.Fatalf("invalid import: %d %s", res.code, res.stderr)
	}
	res = runCLI(t, "", "import", "-data-dir", t.TempDir())
	if res.code != exitInvalidInput {
		t.Fatalf("empty stdin: %d %s", res.code, res.stderr)
	}
}

func TestUnlockAfterSecretLossExitsWithDecryptFailure(t *testing.T) {
	dir := t.TempDir()
	if res := runCLI(t, zeroVectorPhrase, "import", "-data-dir", dir); res.code != exitOK {
		t.Fatalf("import exit %d: %s", res.code, res.stderr)
	}

	store, err := storage.NewFileStore(filepath.Join(dir, "keystore.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Delete(context.Background(), "vision.device.secret"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = store.Close()

	res := runCLI(t, "", "unlock", "-data-dir", dir)
	if res.code != exitDecryptFailed || !strings.Contains(res.stderr, "decryption_failure") {
		t.Fatalf("unlock: %d %s", res.code, res.stderr)
	}
	res = runCLI(t, "", "status", "-data-dir", dir, "-json")
	if res.code != exitOK || decodeJSON(t, res.stdout)["state"] != "corrupted" {
		t.Fatalf("status: %d %s", res.code, res.stdout)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	if res := runCLI(t, zeroVectorPhrase, "import", "-data-dir", dir); res.code != exitOK {
		t.Fatalf("import exit %d: %s", res.code, res.stderr)
	}
	if res := runCLI(t, "", "reset", "-data-dir", dir); res.code != exitInvalidInput {
		t.Fatalf("reset without -yes: %d", res.code)
	}
	if res := runCLI(t, "", "reset", "-data-dir", dir, "-yes"); res.code != exitOK {
		t.Fatalf("reset: %d %s", res.code, res.stderr)
	}
	res := runCLI(t, "", "unlock", "-data-dir", dir)
	if res.code != exitOK || decodeJSON(t, res.stdout)["unlocked"] != false {
		t.Fatalf("unlock after reset: %d %s", res.code, res.stdout)
	}
}

func TestExportRestore(t *testing.T) {
	prev := backup.DefaultKDFParams
	backup.DefaultKDFParams = backup.KDFParams{Time: 1, MemoryKB: 64, Threads: 1}
	t.Cleanup(func() { backup.DefaultKDFParams = prev })
	t.Setenv(backupPassphraseEnv, "correct horse battery")

	src := t.TempDir()
	blobPath := filepath.Join(t.TempDir(), "wallet.vwbak")
	if res := runCLI(t, "", "export", "-data-dir", src, "-out", blobPath); res.code != exitRequestRefused {
		t.Fatalf("export without wallet: %d %s", res.code, res.stderr)
	}
	if res := runCLI(t, zeroVectorPhrase, "import", "-data-dir", src); res.code != exitOK {
		t.Fatalf("import exit %d: %s", res.code, res.stderr)
	}
	if res := runCLI(t, "", "export", "-data-dir", src, "-out", blobPath); res.code != exitOK {
		t.Fatalf("export: %d %s", res.code, res.stderr)
	}

	dst := t.TempDir()
	res := runCLI(t, "", "restore", "-data-dir", dst, "-in", blobPath)
	if res.code != exitOK || decodeJSON(t, res.stdout)["address"] != zeroVectorAddr {
		t.Fatalf("restore: %d %s %s", res.code, res.stdout, res.stderr)
	}

	t.Setenv(backupPassphraseEnv, "not the passphrase")
	res = runCLI(t, "", "restore", "-data-dir", t.TempDir(), "-in", blobPath)
	if res.code != exitRequestRefused || !strings.Contains(res.stderr, "backup_rejected") {
		t.Fatalf("restore with wrong passphrase: %d %s", res.code, res.stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	if res := runCLI(t, ""); res.code != exitInvalidInput || !strings.Contains(res.stdout, "vision-keystore") {
		t.Fatalf("no args: %d %s", res.code, res.stdout)
	}
	if res := runCLI(t, "", "frobnicate"); res.code != exitInvalidInput {
		t.Fatalf("unknown command: %d", res.code)
	}
	if res := runCLI(t, "", "status", "-no-such-flag"); res.code != exitInvalidInput {
		t.Fatalf("bad flag: %d", res.code)
	}
	if res := runCLI(t, "", "status", "-data-dir", t.TempDir(), "-backend", "etcd"); res.code != exitInvalidInput {
		t.Fatalf("bad backend: %d", res.code)
	}
	if res := runCLI(t, "", "export", "-data-dir", t.TempDir()); res.code != exitInvalidInput {
		t.Fatalf("export without -out: %d", res.code)
	}
}

func TestStorageOpenFailureExitsWithStorageCode(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	dataDir := filepath.Join(blocker, "data")
	for _, backend := range []string{"file", "bolt"} {
		res := runCLI(t, "", "status", "-data-dir", dataDir, "-backend", backend)
		if res.code != exitStorageFailed || !strings.Contains(res.stderr, "persistence_unavailable") {
			t.Fatalf("%s: expected storage exit, got %d %s", backend, res.code, res.stderr)
		}
	}
}
