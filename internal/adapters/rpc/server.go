package rpc

import (
	"context"

	"vision-wallet/go-backend/internal/custody"
	"vision-wallet/go-backend/internal/wallet"
)

// WalletService is the custody surface exposed over JSON-RPC.
type WalletService interface {
	GenerateMnemonic() (wallet.Mnemonic, error)
	DeriveKeys(m wallet.Mnemonic) (*wallet.DerivedKeys, error)
	CreateWallet(ctx context.Context) (*custody.CreatedWallet, error)
	ImportWallet(ctx context.Context, words []string) (*custody.CreatedWallet, error)
	UnlockWallet(ctx context.Context) (*custody.UnlockedWallet, error)
	Status(ctx context.Context) (custody.Status, error)
	Reset(ctx context.Context) error
	ExportBackup(ctx context.Context, passphrase string) ([]byte, error)
	ImportBackup(ctx context.Context, passphrase string, blob []byte) (*custody.CreatedWallet, error)
}

var _ WalletService = (*custody.Service)(nil)
