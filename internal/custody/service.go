package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vision-wallet/go-backend/internal/backup"
	"vision-wallet/go-backend/internal/envelope"
	"vision-wallet/go-backend/internal/keystore"
	"vision-wallet/go-backend/internal/platform/privacylog"
	"vision-wallet/go-backend/internal/wallet"
)

const (
	opGenerate = "generate_mnemonic"
	opDerive   = "derive_keys"
	opCreate   = "create"
	opImport   = "import"
	opSave     = "encrypt_and_save"
	opUnlock   = "unlock"
	opStatus   = "status"
	opReset    = "reset"
	opExport   = "export_backup"
	opRestore  = "import_backup"
)

const (
	stepGuard        = "guard"
	stepGenerate     = "generate"
	stepDerive       = "derive"
	stepDeviceSecret = "device_secret"
	stepEncrypt      = "encrypt"
	stepSave         = "save"
	stepLoad         = "load"
	stepDecrypt      = "decrypt"
	stepVerify       = "verify"
	stepReset        = "reset"
	stepBackup       = "backup"
)

// Service is the custody facade. Every operation runs its steps strictly in
// order and is detached from caller cancellation: a caller may stop waiting,
// but writes already issued are neither aborted nor rolled back.
type Service struct {
	// writeMu serializes operations that write the envelope so two
	// concurrent creates cannot both pass the provisioning guard.
	writeMu  sync.Mutex
	keystore *keystore.Keystore
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(ks *keystore.Keystore, opts ...Option) (*Service, error) {
	if ks == nil {
		return nil, errors.New("custody service requires a keystore")
	}
	s := &Service{keystore: ks, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.logger.Handler().(*privacylog.SanitizingHandler); !ok {
		s.logger = slog.New(privacylog.WrapHandler(s.logger.Handler()))
	}
	return s, nil
}

func (s *Service) Namespace() string {
	return s.keystore.Namespace()
}

// GenerateMnemonic returns a fresh 12-word phrase without touching storage.
func (s *Service) GenerateMnemonic() (wallet.Mnemonic, error) {
	started := time.Now()
	m, err := wallet.GenerateMnemonic()
	s.metrics.observe(opGenerate, started, outcomeOf(err))
	return m, opError(opGenerate, stepGenerate, err)
}

// DeriveKeys is a pure function of the phrase. The caller owns the returned
// private key.
func (s *Service) DeriveKeys(m wallet.Mnemonic) (*wallet.DerivedKeys, error) {
	started := time.Now()
	keys, err := wallet.DeriveKeys(m)
	s.metrics.observe(opDerive, started, outcomeOf(err))
	return keys, opError(opDerive, stepDerive, err)
}

// CreateWallet provisions a new wallet: generate → derive → device secret →
// encrypt → save. A failure after the device secret was created leaves it in
// place; retrying reuses it.
func (s *Service) CreateWallet(ctx context.Context) (created *CreatedWallet, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opCreate, started, outcomeOf(err), createdAddress(created), err) }()

	if err := s.ensureUnprovisioned(ctx, opCreate); err != nil {
		return nil, err
	}
	m, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, opError(opCreate, stepGenerate, err)
	}
	return s.provision(ctx, opCreate, m)
}

// ImportWallet restores a wallet from a backup phrase.
func (s *Service) ImportWallet(ctx context.Context, words []string) (created *CreatedWallet, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opImport, started, outcomeOf(err), createdAddress(created), err) }()

	if !wallet.ValidateMnemonic(words) {
		return nil, opError(opImport, stepDerive, ErrInvalidMnemonic)
	}
	if err := s.ensureUnprovisioned(ctx, opImport); err != nil {
		return nil, err
	}
	return s.provision(ctx, opImport, append(wallet.Mnemonic(nil), words...))
}

// EncryptAndSave seals an externally supplied payload under the device
// secret, replacing any stored envelope. The phrase must be valid and match
// the private key.
func (s *Service) EncryptAndSave(ctx context.Context, payload *envelope.Payload) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opSave, started, outcomeOf(err), "", err) }()

	if err := payload.Validate(); err != nil {
		return opError(opSave, stepVerify, err)
	}
	if err := verifyPayload(payload); err != nil {
		return opError(opSave, stepVerify, err)
	}
	return s.seal(ctx, opSave, payload)
}

// UnlockWallet returns nil, nil when no wallet is provisioned. A provisioned
// wallet that cannot be decrypted, including one whose device secret is
// gone, fails with ErrDecryptionFailure.
func (s *Service) UnlockWallet(ctx context.Context) (unlocked *UnlockedWallet, err error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		if err == nil && unlocked == nil {
			outcome = outcomeAbsent
		}
		address := ""
		if unlocked != nil {
			address = unlocked.Address
		}
		s.finish(opUnlock, started, outcome, address, err)
	}()

	payload, err := s.open(ctx, opUnlock)
	if err != nil || payload == nil {
		return nil, err
	}
	keys, err := wallet.DeriveKeys(payload.Mnemonic)
	if err != nil {
		return nil, opError(opUnlock, stepVerify, fmt.Errorf("%w: stored mnemonic: %v", ErrDecryptionFailure, err))
	}
	defer keys.Wipe()
	return &UnlockedWallet{
		Mnemonic:      wallet.Mnemonic(payload.Mnemonic),
		PrivateKeyHex: payload.PrivateKeyHex,
		Address:       keys.Address,
	}, nil
}

// LoadAndDecrypt is UnlockWallet returning the raw payload shape.
func (s *Service) LoadAndDecrypt(ctx context.Context) (*envelope.Payload, error) {
	unlocked, err := s.UnlockWallet(ctx)
	if err != nil || unlocked == nil {
		return nil, err
	}
	return &envelope.Payload{
		Mnemonic:      []string(unlocked.Mnemonic),
		PrivateKeyHex: unlocked.PrivateKeyHex,
	}, nil
}

// Status reports the namespace state without returning secret material.
func (s *Service) Status(ctx context.Context) (Status, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	st := Status{State: StateUninitialized, Namespace: s.keystore.Namespace()}

	payload, err := s.open(ctx, opStatus)
	switch {
	case IsFatal(err):
		st.State = StateCorrupted
		st.Reason = ClassDecryptionFailure
		s.metrics.observe(opStatus, started, outcomeOK)
		return st, nil
	case err != nil:
		s.metrics.observe(opStatus, started, outcomeOf(err))
		return Status{}, err
	case payload == nil:
		// A malformed secret blocks every provisioning path until Reset.
		secret, _, secretErr := s.keystore.LoadDeviceSecret(ctx)
		secret.Wipe()
		if isUnreadable(secretErr) {
			st.State = StateCorrupted
			st.Reason = ClassDecryptionFailure
			s.metrics.observe(opStatus, started, outcomeOK)
			return st, nil
		}
		s.metrics.observe(opStatus, started, outcomeAbsent)
		return st, nil
	}
	defer payload.Wipe()
	keys, err := wallet.DeriveKeys(payload.Mnemonic)
	if err != nil {
		st.State = StateCorrupted
		st.Reason = ClassDecryptionFailure
		s.metrics.observe(opStatus, started, outcomeOK)
		return st, nil
	}
	defer keys.Wipe()
	st.State = StateProvisioned
	st.Address = keys.Address
	st.WalletID = wallet.WalletID(keys.PublicKey)
	s.metrics.observe(opStatus, started, outcomeOK)
	return st, nil
}

// Reset destroys the envelope and the device secret. Without the backup
// phrase the wallet is unrecoverable afterwards.
func (s *Service) Reset(ctx context.Context) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opReset, started, outcomeOf(err), "", err) }()

	return opError(opReset, stepReset, s.keystore.Reset(ctx))
}

// ExportBackup returns the unlocked wallet sealed under passphrase. The device
// keystore is left untouched. With no wallet provisioned it returns nil, nil.
func (s *Service) ExportBackup(ctx context.Context, passphrase string) (blob []byte, err error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opExport, started, outcomeOf(err), "", err) }()

	payload, err := s.open(ctx, opExport)
	if err != nil || payload == nil {
		return nil, err
	}
	defer payload.Wipe()
	blob, err = backup.Export(passphrase, payload)
	return blob, opError(opExport, stepBackup, err)
}

// ImportBackup restores a wallet from a blob written by ExportBackup, on this
// or any other device.
func (s *Service) ImportBackup(ctx context.Context, passphrase string, blob []byte) (created *CreatedWallet, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { s.finish(opRestore, started, outcomeOf(err), createdAddress(created), err) }()

	payload, err := backup.Import(passphrase, blob)
	if err != nil {
		return nil, opError(opRestore, stepBackup, err)
	}
	defer payload.Wipe()
	if err := verifyPayload(payload); err != nil {
		return nil, opError(opRestore, stepVerify, err)
	}
	if err := s.ensureUnprovisioned(ctx, opRestore); err != nil {
		return nil, err
	}
	return s.provision(ctx, opRestore, append(wallet.Mnemonic(nil), payload.Mnemonic...))
}

func (s *Service) ensureUnprovisioned(ctx context.Context, op string) error {
	exists, err := s.keystore.HasEnvelope(ctx)
	if err != nil {
		return opError(op, stepGuard, asDecryptionFailure(err))
	}
	if exists {
		return opError(op, stepGuard, ErrWalletExists)
	}
	return nil
}

func (s *Service) provision(ctx context.Context, op string, m wallet.Mnemonic) (*CreatedWallet, error) {
	keys, err := wallet.DeriveKeys(m)
	if err != nil {
		return nil, opError(op, stepDerive, err)
	}
	defer keys.Wipe()

	payload := &envelope.Payload{Mnemonic: []string(m), PrivateKeyHex: keys.PrivateKeyHex()}
	if err := s.seal(ctx, op, payload); err != nil {
		return nil, err
	}
	return &CreatedWallet{
		Mnemonic: m,
		Address:  keys.Address,
		WalletID: wallet.WalletID(keys.PublicKey),
	}, nil
}

func (s *Service) seal(ctx context.Context, op string, payload *envelope.Payload) error {
	secret, err := s.keystore.GetOrCreateDeviceSecret(ctx)
	if err != nil {
		return opError(op, stepDeviceSecret, asDecryptionFailure(err))
	}
	defer secret.Wipe()
	s.metrics.deviceSecretLoaded()

	env, err := envelope.Encrypt(secret[:], payload)
	if err != nil {
		return opError(op, stepEncrypt, err)
	}
	return opError(op, stepSave, s.keystore.SaveEnvelope(ctx, env))
}

// open loads the device secret and the envelope, then decrypts and verifies
// the payload. It returns nil, nil only when no envelope is stored.
func (s *Service) open(ctx context.Context, op string) (*envelope.Payload, error) {
	secret, haveSecret, secretErr := s.keystore.LoadDeviceSecret(ctx)
	defer secret.Wipe()
	if secretErr != nil && !isUnreadable(secretErr) {
		return nil, opError(op, stepLoad, secretErr)
	}

	env, err := s.keystore.LoadEnvelope(ctx)
	if err != nil {
		return nil, opError(op, stepLoad, asDecryptionFailure(err))
	}
	if env == nil {
		return nil, nil
	}
	if secretErr != nil {
		return nil, opError(op, stepLoad, asDecryptionFailure(secretErr))
	}
	if !haveSecret {
		return nil, opError(op, stepLoad, fmt.Errorf("%w: device secret is missing", ErrDecryptionFailure))
	}

	payload, err := envelope.Decrypt(secret[:], env)
	if err != nil {
		return nil, opError(op, stepDecrypt, err)
	}
	if err := verifyPayload(payload); err != nil {
		payload.Wipe()
		return nil, opError(op, stepVerify, fmt.Errorf("%w: %v", ErrDecryptionFailure, err))
	}
	return payload, nil
}

// verifyPayload rejects payloads whose private key was not derived from
// their phrase, so a mismatched pair is never handed out as a usable key.
func verifyPayload(p *envelope.Payload) error {
	keys, err := wallet.DeriveKeys(p.Mnemonic)
	if err != nil {
		return err
	}
	defer keys.Wipe()
	if keys.PrivateKeyHex() != p.PrivateKeyHex {
		return fmt.Errorf("%w: private key does not match mnemonic", ErrInvalidPayload)
	}
	return nil
}

func (s *Service) finish(op string, started time.Time, outcome, address string, err error) {
	s.metrics.observe(op, started, outcome)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		level := slog.LevelWarn
		if IsFatal(err) {
			level = slog.LevelError
		}
		s.logger.Log(context.Background(), level, "custody operation failed",
			"op", op, "reason", Classify(err), "error", err.Error(), "latency_ms", latency, "namespace", s.keystore.Namespace())
		return
	}
	args := []any{"op", op, "outcome", outcome, "latency_ms", latency, "namespace", s.keystore.Namespace()}
	if address != "" {
		args = append(args, "address", address)
	}
	s.logger.Info("custody operation", args...)
}

func createdAddress(c *CreatedWallet) string {
	if c == nil {
		return ""
	}
	return c.Address
}
