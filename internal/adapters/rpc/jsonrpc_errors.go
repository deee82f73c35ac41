package rpc

import (
	"errors"

	"vision-wallet/go-backend/internal/custody"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	codeInternal               = -32000
	codeInvalidMnemonic        = -32010
	codeInvalidPayload         = -32011
	codeEncryptionFailure      = -32020
	codeDecryptionFailure      = -32021
	codePersistenceUnavailable = -32030
	codeWalletExists           = -32040
	codeBackupRejected         = -32050
)

var errInvalidParams = errors.New("invalid params")

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

// mapParamsError keeps domain validation failures, such as a phrase that is
// not BIP-39, distinguishable from malformed params.
func mapParamsError(err error) *rpcError {
	if errors.Is(err, errInvalidParams) {
		return rpcInvalidParams()
	}
	return mapServiceError(err)
}

// mapServiceError turns a custody failure into a stable code and a fixed
// message. Underlying error text is never sent to the client.
func mapServiceError(err error) *rpcError {
	class := custody.Classify(err)
	e := &rpcError{Data: &rpcErrorData{Reason: class}}
	switch class {
	case custody.ClassInvalidMnemonic:
		e.Code, e.Message = codeInvalidMnemonic, "mnemonic is not a valid 12-word phrase"
	case custody.ClassInvalidPayload:
		e.Code, e.Message = codeInvalidPayload, "wallet payload is invalid"
	case custody.ClassEncryptionFailure:
		e.Code, e.Message = codeEncryptionFailure, "wallet could not be encrypted"
	case custody.ClassDecryptionFailure:
		e.Code, e.Message = codeDecryptionFailure, "stored wallet cannot be decrypted; restore from the backup phrase"
	case custody.ClassPersistenceUnavailable:
		e.Code, e.Message = codePersistenceUnavailable, "wallet storage is unavailable"
	case custody.ClassWalletExists:
		e.Code, e.Message = codeWalletExists, "a wallet is already provisioned"
	case custody.ClassBackupRejected:
		e.Code, e.Message = codeBackupRejected, "backup was rejected"
	default:
		e.Code, e.Message = codeInternal, "internal error"
		e.Data.Reason = custody.ClassInternal
	}
	return e
}
