package keystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"vision-wallet/go-backend/internal/envelope"
	"vision-wallet/go-backend/internal/storage"
)

const (
	DefaultNamespace   = "vision"
	RecordDeviceSecret = "device.secret"
	RecordEnvelope     = "keystore"
	DeviceSecretSize   = 32
)

var (
	ErrMalformedRecord = errors.New("keystore record is malformed")
	ErrEntropy         = errors.New("device secret entropy unavailable")
)

// DeviceSecret is the symmetric key protecting the envelope. It lives in
// the store unencrypted and is only as safe as the store itself.
type DeviceSecret [DeviceSecretSize]byte

func (d *DeviceSecret) Wipe() {
	for i := range d {
		d[i] = 0
	}
}

// Keystore owns the device secret and envelope records of one namespace.
type Keystore struct {
	store     storage.Store
	namespace string
	createMu  sync.Mutex
	rand      io.Reader
}

func New(store storage.Store, namespace string) (*Keystore, error) {
	if store == nil {
		return nil, errors.New("keystore requires a store")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if strings.ContainsAny(namespace, " \t\n") {
		return nil, fmt.Errorf("invalid keystore namespace %q", namespace)
	}
	return &Keystore{store: store, namespace: namespace, rand: rand.Reader}, nil
}

func (k *Keystore) Namespace() string {
	return k.namespace
}

// GetOrCreateDeviceSecret returns the namespace's device secret, creating
// it on first use. Creation is serialized in-process by createMu and across
// processes by the store's put-if-absent, so a losing writer adopts the
// winner's secret instead of overwriting it.
func (k *Keystore) GetOrCreateDeviceSecret(ctx context.Context) (DeviceSecret, error) {
	k.createMu.Lock()
	defer k.createMu.Unlock()

	secret, ok, err := k.LoadDeviceSecret(ctx)
	if err != nil {
		return DeviceSecret{}, err
	}
	if ok {
		return secret, nil
	}

	var fresh DeviceSecret
	if _, err := io.ReadFull(k.rand, fresh[:]); err != nil {
		return DeviceSecret{}, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	stored, created, err := k.store.PutIfAbsent(ctx, k.recordKey(RecordDeviceSecret), []byte(hex.EncodeToString(fresh[:])))
	if err != nil {
		fresh.Wipe()
		return DeviceSecret{}, err
	}
	if created {
		return fresh, nil
	}
	fresh.Wipe()
	return decodeDeviceSecret(stored)
}

// LoadDeviceSecret never creates a secret.
func (k *Keystore) LoadDeviceSecret(ctx context.Context) (DeviceSecret, bool, error) {
	raw, ok, err := k.store.Get(ctx, k.recordKey(RecordDeviceSecret))
	if err != nil || !ok {
		return DeviceSecret{}, false, err
	}
	secret, err := decodeDeviceSecret(raw)
	if err != nil {
		return DeviceSecret{}, false, err
	}
	return secret, true, nil
}

func (k *Keystore) SaveEnvelope(ctx context.Context, env *envelope.Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrMalformedRecord)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return k.store.Put(ctx, k.recordKey(RecordEnvelope), raw)
}

// HasEnvelope reports whether an envelope record exists, without decoding it.
func (k *Keystore) HasEnvelope(ctx context.Context) (bool, error) {
	_, ok, err := k.store.Get(ctx, k.recordKey(RecordEnvelope))
	return ok, err
}

// LoadEnvelope returns nil, nil when no envelope has been saved.
func (k *Keystore) LoadEnvelope(ctx context.Context) (*envelope.Envelope, error) {
	raw, ok, err := k.store.Get(ctx, k.recordKey(RecordEnvelope))
	if err != nil || !ok {
		return nil, err
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, RecordEnvelope, err)
	}
	return &env, nil
}

// Reset destroys both records. The envelope goes first so an interrupted
// reset never leaves an envelope without its secret.
func (k *Keystore) Reset(ctx context.Context) error {
	k.createMu.Lock()
	defer k.createMu.Unlock()
	if err := k.store.Delete(ctx, k.recordKey(RecordEnvelope)); err != nil {
		return err
	}
	return k.store.Delete(ctx, k.recordKey(RecordDeviceSecret))
}

func (k *Keystore) recordKey(record string) string {
	return k.namespace + "." + record
}

func decodeDeviceSecret(raw []byte) (DeviceSecret, error) {
	var out DeviceSecret
	text := strings.TrimSpace(string(raw))
	if len(text) != 2*DeviceSecretSize {
		return DeviceSecret{}, fmt.Errorf("%w: %s: expected %d hex chars, got %d", ErrMalformedRecord, RecordDeviceSecret, 2*DeviceSecretSize, len(text))
	}
	if _, err := hex.Decode(out[:], []byte(text)); err != nil {
		return DeviceSecret{}, fmt.Errorf("%w: %s: not hex", ErrMalformedRecord, RecordDeviceSecret)
	}
	return out, nil
}
