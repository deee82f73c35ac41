package custody

import (
	"errors"
	"fmt"

	"vision-wallet/go-backend/internal/backup"
	"vision-wallet/go-backend/internal/envelope"
	"vision-wallet/go-backend/internal/keystore"
	"vision-wallet/go-backend/internal/storage"
	"vision-wallet/go-backend/internal/wallet"
)

// Error taxonomy exposed to callers. The custody layer classifies failures;
// callers decide how to present them.
var (
	ErrInvalidMnemonic        = wallet.ErrInvalidMnemonic
	ErrInvalidPayload         = envelope.ErrInvalidPayload
	ErrEncryptionFailure      = envelope.ErrEncryptionFailure
	ErrDecryptionFailure      = envelope.ErrDecryptionFailure
	ErrPersistenceUnavailable = storage.ErrUnavailable
	ErrWalletExists           = errors.New("wallet already provisioned")
	ErrBackupAuthFailed       = backup.ErrAuthFailed
	ErrBackupInvalid          = backup.ErrInvalid
	ErrWeakPassphrase         = backup.ErrWeakPassphrase
)

const (
	ClassInvalidMnemonic        = "invalid_mnemonic"
	ClassInvalidPayload         = "invalid_payload"
	ClassEncryptionFailure      = "encryption_failure"
	ClassDecryptionFailure      = "decryption_failure"
	ClassPersistenceUnavailable = "persistence_unavailable"
	ClassWalletExists           = "wallet_exists"
	ClassBackupRejected         = "backup_rejected"
	ClassInternal               = "internal"
)

// OpError records which step of a custody operation failed.
type OpError struct {
	Op   string
	Step string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto the taxonomy above.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecryptionFailure):
		return ClassDecryptionFailure
	case errors.Is(err, ErrInvalidMnemonic):
		return ClassInvalidMnemonic
	case errors.Is(err, ErrInvalidPayload):
		return ClassInvalidPayload
	case errors.Is(err, ErrEncryptionFailure), errors.Is(err, keystore.ErrEntropy), errors.Is(err, wallet.ErrEntropy):
		return ClassEncryptionFailure
	case errors.Is(err, ErrPersistenceUnavailable):
		return ClassPersistenceUnavailable
	case errors.Is(err, ErrWalletExists):
		return ClassWalletExists
	case errors.Is(err, ErrBackupAuthFailed), errors.Is(err, ErrBackupInvalid), errors.Is(err, ErrWeakPassphrase):
		return ClassBackupRejected
	default:
		return ClassInternal
	}
}

// IsFatal reports whether err means the provisioned wallet is unreadable.
// There is no automatic recovery from this state; only the backup phrase
// can restore the keys.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDecryptionFailure)
}

func opError(op, step string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Step: step, Err: err}
}

// asDecryptionFailure folds unreadable persisted state into
// ErrDecryptionFailure while leaving storage outages untouched.
func asDecryptionFailure(err error) error {
	if err == nil || errors.Is(err, ErrDecryptionFailure) {
		return err
	}
	if isUnreadable(err) {
		return fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return err
}

// isUnreadable reports persisted state that exists but cannot be decoded.
func isUnreadable(err error) bool {
	return errors.Is(err, keystore.ErrMalformedRecord) || errors.Is(err, storage.ErrCorrupt)
}
