package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"vision-wallet/go-backend/internal/envelope"
)

var cheapParams = KDFParams{Time: 1, MemoryKB: 64, Threads: 1}

func testPayload() *envelope.Payload {
	return &envelope.Payload{
		Mnemonic:      strings.Fields("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"),
		PrivateKeyHex: "c557eec878dfd852ba3f88087c4f350f09c55537ab5e549c3cd14320ec3cef38",
	}
}

func exportCheap(t *testing.T, passphrase string) []byte {
	t.Helper()
	data, err := ExportWithParams(passphrase, testPayload(), cheapParams)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	return data
}

func TestExportImportRoundtrip(t *testing.T) {
	data := exportCheap(t, "correct horse")
	if !bytes.HasPrefix(data, []byte(filePrefix)) {
		t.Fatalf("missing file prefix: %q", data[:8])
	}
	if bytes.Contains(data, []byte("abandon")) {
		t.Fatal("backup blob leaks the mnemonic")
	}
	got, err := Import("correct horse", data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	want := testPayload()
	if strings.Join(got.Mnemonic, " ") != strings.Join(want.Mnemonic, " ") || got.PrivateKeyHex != want.PrivateKeyHex {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestImportWrongPassphraseFails(t *testing.T) {
	data := exportCheap(t, "correct horse")
	if _, err := Import("battery staple", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestImportDetectsTampering(t *testing.T) {
	data := exportCheap(t, "correct horse")
	var blob Blob
	if err := json.Unmarshal(data[len(filePrefix):], &blob); err != nil {
		t.Fatalf("decode blob: %v", err)
	}

	reencode := func(b Blob) []byte {
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode blob: %v", err)
		}
		return append([]byte(filePrefix), raw...)
	}

	flipped := blob
	flipped.Ciphertext = bytes.Clone(blob.Ciphertext)
	flipped.Ciphertext[0] ^= 0x80
	if _, err := Import("correct horse", reencode(flipped)); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("ciphertext flip: expected ErrAuthFailed, got %v", err)
	}

	downgraded := blob
	downgraded.KDFTime = 2
	if _, err := Import("correct horse", reencode(downgraded)); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("kdf header change: expected ErrAuthFailed, got %v", err)
	}
}

func TestImportRejectsMalformedBlobs(t *testing.T) {
	good := exportCheap(t, "correct horse")
	var blob Blob
	if err := json.Unmarshal(good[len(filePrefix):], &blob); err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	encode := func(b Blob) []byte {
		raw, _ := json.Marshal(b)
		return append([]byte(filePrefix), raw...)
	}

	hugeMemory := blob
	hugeMemory.KDFMemoryKB = 4 * 1024 * 1024
	badVersion := blob
	badVersion.Version = 9
	shortSalt := blob
	shortSalt.Salt = blob.Salt[:4]

	cases := map[string][]byte{
		"no prefix":     good[len(filePrefix):],
		"not json":      []byte(filePrefix + "{"),
		"huge memory":   encode(hugeMemory),
		"bad version":   encode(badVersion),
		"short salt":    encode(shortSalt),
		"empty":         nil,
		"legacy prefix": append([]byte("AIMENC1\n"), good[len(filePrefix):]...),
	}
	for name, data := range cases {
		if _, err := Import("correct horse", data); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestExportRejectsWeakInput(t *testing.T) {
	if _, err := ExportWithParams("short", testPayload(), cheapParams); !errors.Is(err, ErrWeakPassphrase) {
		t.Fatalf("expected ErrWeakPassphrase, got %v", err)
	}
	bad := testPayload()
	bad.PrivateKeyHex = "zz"
	if _, err := ExportWithParams("correct horse", bad, cheapParams); !errors.Is(err, envelope.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := ExportWithParams("correct horse", testPayload(), KDFParams{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero params, got %v", err)
	}
}

func TestExportUsesFreshSaltAndNonce(t *testing.T) {
	a := exportCheap(t, "correct horse")
	b := exportCheap(t, "correct horse")
	if bytes.Equal(a, b) {
		t.Fatal("two exports must differ")
	}

	prev := randReader
	randReader = iotest.ErrReader(errors.New("no entropy"))
	defer func() { randReader = prev }()
	if _, err := ExportWithParams("correct horse", testPayload(), cheapParams); err == nil {
		t.Fatal("expected entropy failure")
	}
}
