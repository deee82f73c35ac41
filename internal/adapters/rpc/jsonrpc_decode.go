package rpc

import (
	"encoding/json"

	"vision-wallet/go-backend/internal/wallet"
)

// decodeMnemonicParams accepts ["word word ..."], [["word", ...]] or
// {"mnemonic": "word word ..."} / {"mnemonic": ["word", ...]}.
func decodeMnemonicParams(raw json.RawMessage) (wallet.Mnemonic, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 1 {
			return nil, errInvalidParams
		}
		return decodeMnemonicValue(arr[0])
	}
	var wrapper struct {
		Mnemonic json.RawMessage `json:"mnemonic"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.Mnemonic) == 0 {
		return nil, errInvalidParams
	}
	return decodeMnemonicValue(wrapper.Mnemonic)
}

func decodeMnemonicValue(raw json.RawMessage) (wallet.Mnemonic, error) {
	var phrase string
	if err := json.Unmarshal(raw, &phrase); err == nil {
		m, err := wallet.ParseMnemonic(phrase)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	var words []string
	if err := json.Unmarshal(raw, &words); err != nil || len(words) == 0 {
		return nil, errInvalidParams
	}
	return wallet.Mnemonic(words), nil
}

func decodeSingleStringParam(raw json.RawMessage) (string, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 && arr[0] != "" {
		return arr[0], nil
	}
	return "", errInvalidParams
}

func decodeTwoStringParams(raw json.RawMessage) (string, string, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 2 && arr[0] != "" && arr[1] != "" {
		return arr[0], arr[1], nil
	}
	return "", "", errInvalidParams
}

// decodeConfirmParams requires {"confirm": true} for destructive calls.
func decodeConfirmParams(raw json.RawMessage) bool {
	var p struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	return p.Confirm
}
