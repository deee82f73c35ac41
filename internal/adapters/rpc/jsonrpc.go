package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"vision-wallet/go-backend/internal/wallet"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *rpcErrorData `json:"data,omitempty"`
}

type rpcErrorData struct {
	Reason string `json:"reason"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 64 << 10

const (
	methodGenerateMnemonic = "wallet.generate_mnemonic"
	methodDeriveKeys       = "wallet.derive_keys"
	methodCreate           = "wallet.create"
	methodImport           = "wallet.import"
	methodUnlock           = "wallet.unlock"
	methodStatus           = "wallet.status"
	methodReset            = "wallet.reset"
	methodExportBackup     = "wallet.export_backup"
	methodImportBackup     = "wallet.import_backup"
	methodValidateAddress  = "wallet.validate_address"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorizeRPC(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ok, wait := s.limiter.Check(rpcRateLimitKey(r, extractRPCToken(r)), time.Now()); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	s.logger.Info("rpc request", "request_id", reqID, "method", req.Method, "client", rpcRateLimitKey(r, ""))

	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	latency := time.Since(started).Milliseconds()
	if rpcErr != nil {
		s.logger.Warn("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", latency)
	} else {
		s.logger.Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", latency)
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, raw json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case methodGenerateMnemonic:
		m, err := s.service.GenerateMnemonic()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]any{"mnemonic": m}, nil
	case methodDeriveKeys:
		words, err := decodeMnemonicParams(raw)
		if err != nil {
			return nil, mapParamsError(err)
		}
		keys, err := s.service.DeriveKeys(words)
		if err != nil {
			return nil, mapServiceError(err)
		}
		defer keys.Wipe()
		return map[string]string{
			"privateKeyHex": keys.PrivateKeyHex(),
			"publicKeyHex":  keys.PublicKeyHex(),
			"address":       keys.Address,
		}, nil
	case methodCreate:
		created, err := s.service.CreateWallet(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return created, nil
	case methodImport:
		words, err := decodeMnemonicParams(raw)
		if err != nil {
			return nil, mapParamsError(err)
		}
		created, err := s.service.ImportWallet(ctx, words)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return created, nil
	case methodUnlock:
		unlocked, err := s.service.UnlockWallet(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		if unlocked == nil {
			return map[string]any{"wallet": nil}, nil
		}
		return map[string]any{"wallet": unlocked}, nil
	case methodStatus:
		st, err := s.service.Status(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return st, nil
	case methodReset:
		if !decodeConfirmParams(raw) {
			return nil, rpcInvalidParams()
		}
		if err := s.service.Reset(ctx); err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]bool{"reset": true}, nil
	case methodExportBackup:
		passphrase, err := decodeSingleStringParam(raw)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		blob, err := s.service.ExportBackup(ctx, passphrase)
		if err != nil {
			return nil, mapServiceError(err)
		}
		if blob == nil {
			return map[string]any{"backup": nil}, nil
		}
		return map[string]string{"backup": base64.StdEncoding.EncodeToString(blob)}, nil
	case methodImportBackup:
		passphrase, encoded, err := decodeTwoStringParams(raw)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		created, err := s.service.ImportBackup(ctx, passphrase, blob)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return created, nil
	case methodValidateAddress:
		address, err := decodeSingleStringParam(raw)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		return map[string]bool{"valid": wallet.IsValidAddress(address)}, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
	})
}
