package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const redactedValue = "[REDACTED]"

type action uint8

const (
	keep action = iota
	redact
	fingerprint
)

// walletAttrs names the attributes the custody stack emits that need
// treatment. Keys are matched case-insensitively.
var walletAttrs = map[string]action{
	"mnemonic":      redact,
	"privatekeyhex": redact,
	"device_secret": redact,
	"passphrase":    redact,
	"ciphertext":    redact,
	"address":       fingerprint,
	"wallet_id":     fingerprint,
	"client":        fingerprint,
}

// secretFragments catch derived names such as rpc_token or backup_passphrase.
var secretFragments = []string{
	"mnemonic",
	"phrase",
	"private",
	"secret",
	"seed",
	"password",
	"token",
	"authorization",
}

// processSalt makes fingerprints unlinkable across restarts.
var processSalt = rand.Text()

// SanitizingHandler rewrites records before they reach next: secret-bearing
// attributes are redacted, account identifiers become fingerprints, and
// string values shaped like key material or a backup phrase are redacted
// whatever their key.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(scrubAll(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// FingerprintID is stable within one process and ignores case, so checksum
// and lowercase spellings of one address share a fingerprint.
func FingerprintID(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(processSalt + "|" + v))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func scrub(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch classify(a.Key) {
	case redact:
		return slog.String(a.Key, redactedValue)
	case fingerprint:
		name := a.Key
		if !strings.HasSuffix(name, "_fp") {
			name += "_fp"
		}
		return slog.String(name, FingerprintID(a.Value.String()))
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubAll(a.Value.Group())...)}
	case slog.KindString:
		if looksSecret(a.Value.String()) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

func scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = scrub(a)
	}
	return out
}

func classify(key string) action {
	k := strings.ToLower(strings.TrimSpace(key))
	if act, ok := walletAttrs[k]; ok {
		return act
	}
	for _, frag := range secretFragments {
		if strings.Contains(k, frag) {
			return redact
		}
	}
	return keep
}

// looksSecret matches 32-byte hex (private keys, device secrets) and runs of
// twelve or more wordlist words.
func looksSecret(s string) bool {
	s = strings.TrimSpace(s)
	if h := strings.TrimPrefix(s, "0x"); len(h) == 64 {
		if _, err := hex.DecodeString(h); err == nil {
			return true
		}
	}
	words := strings.Fields(strings.ToLower(s))
	if len(words) < 12 {
		return false
	}
	for _, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return false
		}
	}
	return true
}
