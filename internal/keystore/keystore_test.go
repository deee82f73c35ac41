package keystore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"vision-wallet/go-backend/internal/envelope"
	"vision-wallet/go-backend/internal/storage"
)

func newTestKeystore(t *testing.T) (*Keystore, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ks, err := New(store, "")
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	return ks, store
}

func TestGetOrCreateDeviceSecretPersistsHex(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeystore(t)

	first, err := ks.GetOrCreateDeviceSecret(ctx)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first == (DeviceSecret{}) {
		t.Fatal("device secret must not be all zero")
	}
	raw, ok, err := store.Get(ctx, "vision.device.secret")
	if err != nil || !ok {
		t.Fatalf("expected persisted secret, ok=%v err=%v", ok, err)
	}
	if string(raw) != hex.EncodeToString(first[:]) {
		t.Fatalf("unexpected persisted encoding: %q", raw)
	}

	second, err := ks.GetOrCreateDeviceSecret(ctx)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second != first {
		t.Fatal("device secret must not be rotated")
	}
}

func TestGetOrCreateDeviceSecretConcurrentFirstRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	keystores := make([]*Keystore, 4)
	for i := range keystores {
		ks, err := New(store, "vision")
		if err != nil {
			t.Fatalf("new keystore: %v", err)
		}
		keystores[i] = ks
	}

	const callers = 32
	results := make([]DeviceSecret, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			secret, err := keystores[i%len(keystores)].GetOrCreateDeviceSecret(ctx)
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			results[i] = secret
		}(i)
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d observed a different device secret", i)
		}
	}
}

// racingStore plants a competing secret right before the first put-if-absent.
type racingStore struct {
	storage.Store
	once   sync.Once
	winner string
}

func (r *racingStore) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	r.once.Do(func() {
		_ = r.Store.Put(ctx, key, []byte(r.winner))
	})
	return r.Store.PutIfAbsent(ctx, key, value)
}

func TestGetOrCreateDeviceSecretAdoptsConcurrentWinner(t *testing.T) {
	winner := strings.Repeat("ab", DeviceSecretSize)
	ks, err := New(&racingStore{Store: storage.NewMemoryStore(), winner: winner}, "vision")
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	secret, err := ks.GetOrCreateDeviceSecret(context.Background())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if hex.EncodeToString(secret[:]) != winner {
		t.Fatalf("expected to adopt the stored secret, got %x", secret[:])
	}
}

func TestGetOrCreateDeviceSecretRefusesMalformedRecord(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeystore(t)
	if err := store.Put(ctx, "vision.device.secret", []byte("not-hex")); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	if _, err := ks.GetOrCreateDeviceSecret(ctx); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	raw, _, _ := store.Get(ctx, "vision.device.secret")
	if string(raw) != "not-hex" {
		t.Fatal("malformed secret must not be overwritten")
	}
}

func TestGetOrCreateDeviceSecretEntropyFailure(t *testing.T) {
	ks, store := newTestKeystore(t)
	ks.rand = iotest.ErrReader(errors.New("no entropy"))
	if _, err := ks.GetOrCreateDeviceSecret(context.Background()); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "vision.device.secret"); ok {
		t.Fatal("no secret should be persisted when entropy fails")
	}
}

func TestLoadDeviceSecretDoesNotCreate(t *testing.T) {
	ks, store := newTestKeystore(t)
	if _, ok, err := ks.LoadDeviceSecret(context.Background()); ok || err != nil {
		t.Fatalf("expected absent secret, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.Get(context.Background(), "vision.device.secret"); ok {
		t.Fatal("load must not create a secret")
	}
}

func TestEnvelopeSaveLoad(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeystore(t)

	env, err := ks.LoadEnvelope(ctx)
	if err != nil || env != nil {
		t.Fatalf("expected no envelope, got env=%v err=%v", env, err)
	}

	saved := &envelope.Envelope{
		IV:         make([]byte, envelope.IVSize),
		Ciphertext: []byte(strings.Repeat("x", envelope.TagSize+4)),
	}
	if err := ks.SaveEnvelope(ctx, saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	raw, _, _ := store.Get(ctx, "vision.keystore")
	var record map[string]string
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("record must be json: %v", err)
	}
	if record["iv"] != strings.Repeat("0", 24) || record["ciphertext"] != hex.EncodeToString(saved.Ciphertext) {
		t.Fatalf("unexpected record: %s", raw)
	}

	loaded, err := ks.LoadEnvelope(ctx)
	if err != nil || loaded == nil {
		t.Fatalf("load failed: env=%v err=%v", loaded, err)
	}
	if string(loaded.Ciphertext) != string(saved.Ciphertext) {
		t.Fatal("loaded envelope differs from saved one")
	}
}

func TestLoadEnvelopeMalformedRecord(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeystore(t)
	if err := store.Put(ctx, "vision.keystore", []byte(`{"iv":"00","ciphertext":"00"}`)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	if _, err := ks.LoadEnvelope(ctx); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestResetRemovesBothRecords(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeystore(t)
	if _, err := ks.GetOrCreateDeviceSecret(ctx); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ks.SaveEnvelope(ctx, &envelope.Envelope{IV: make([]byte, envelope.IVSize), Ciphertext: make([]byte, envelope.TagSize)}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := ks.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	for _, key := range []string{"vision.keystore", "vision.device.secret"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Fatalf("expected %s to be deleted", key)
		}
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a, _ := New(store, "alpha")
	b, _ := New(store, "beta")
	sa, err := a.GetOrCreateDeviceSecret(ctx)
	if err != nil {
		t.Fatalf("alpha create: %v", err)
	}
	sb, err := b.GetOrCreateDeviceSecret(ctx)
	if err != nil {
		t.Fatalf("beta create: %v", err)
	}
	if sa == sb {
		t.Fatal("namespaces must not share a device secret")
	}
	if _, err := New(store, "bad name"); err == nil {
		t.Fatal("expected error for namespace with whitespace")
	}
}
