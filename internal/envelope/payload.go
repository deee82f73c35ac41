package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

const (
	payloadWords         = 12
	payloadPrivateKeyHex = 64
)

var ErrInvalidPayload = errors.New("envelope payload is invalid")

var privateKeyHexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Payload is the only shape ever sealed into an envelope.
type Payload struct {
	Mnemonic      []string `json:"mnemonic"`
	PrivateKeyHex string   `json:"privateKeyHex"`
}

func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if len(p.Mnemonic) != payloadWords {
		return fmt.Errorf("%w: mnemonic must have %d words, got %d", ErrInvalidPayload, payloadWords, len(p.Mnemonic))
	}
	for _, w := range p.Mnemonic {
		if w == "" {
			return fmt.Errorf("%w: empty mnemonic word", ErrInvalidPayload)
		}
	}
	if len(p.PrivateKeyHex) != payloadPrivateKeyHex || !privateKeyHexPattern.MatchString(p.PrivateKeyHex) {
		return fmt.Errorf("%w: privateKeyHex must be %d lowercase hex chars", ErrInvalidPayload, payloadPrivateKeyHex)
	}
	return nil
}

// MarshalPayload produces the canonical byte form that gets encrypted.
func MarshalPayload(p *Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// UnmarshalPayload accepts exactly one JSON object with the two known fields.
func UnmarshalPayload(raw []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Wipe clears the payload's secret fields. Go strings cannot be zeroed, so
// this only drops references.
func (p *Payload) Wipe() {
	if p == nil {
		return
	}
	for i := range p.Mnemonic {
		p.Mnemonic[i] = ""
	}
	p.Mnemonic = nil
	p.PrivateKeyHex = ""
}
