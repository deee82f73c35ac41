package custody

import "vision-wallet/go-backend/internal/wallet"

type CreatedWallet struct {
	Mnemonic wallet.Mnemonic `json:"mnemonic"`
	Address  string          `json:"address"`
	WalletID string          `json:"wallet_id"`
}

// UnlockedWallet holds decrypted secrets. Callers own it and should call
// Wipe once done.
type UnlockedWallet struct {
	Mnemonic      wallet.Mnemonic `json:"mnemonic"`
	PrivateKeyHex string          `json:"privateKeyHex"`
	Address       string          `json:"address"`
}

func (u *UnlockedWallet) Wipe() {
	if u == nil {
		return
	}
	for i := range u.Mnemonic {
		u.Mnemonic[i] = ""
	}
	u.Mnemonic = nil
	u.PrivateKeyHex = ""
}

type State string

const (
	StateUninitialized State = "uninitialized"
	StateProvisioned   State = "provisioned"
	StateCorrupted     State = "corrupted"
)

type Status struct {
	State     State  `json:"state"`
	Namespace string `json:"namespace"`
	Address   string `json:"address,omitempty"`
	WalletID  string `json:"wallet_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
