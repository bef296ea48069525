package abi

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is the 4-byte routing key of a function.
type Selector [4]byte

// SentinelSelector is used for constructor, fallback and receive, which are never routed.
var SentinelSelector = Selector{}

func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

func (s Selector) IsSentinel() bool {
	return s == SentinelSelector
}

func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSelector accepts "0x" followed by exactly 8 hex characters.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	s = strings.TrimSpace(s)
	if len(s) != 10 || !strings.HasPrefix(s, "0x") {
		return sel, fmt.Errorf("invalid selector %q", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return sel, fmt.Errorf("invalid selector %q: %w", s, err)
	}
	copy(sel[:], b)
	return sel, nil
}

// SelectorFromSignature returns the first 4 bytes of keccak256 over the ABI
// form of signature. tuple(...) groups are hashed as (...), so the canonical
// and the on-chain spelling of a struct parameter give the same selector.
func SelectorFromSignature(signature string) Selector {
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(SolcForm(signature)))[:4])
	return sel
}

// EventTopic returns the full keccak256 of an event signature, hashed like
// SelectorFromSignature.
func EventTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(SolcForm(signature)))
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Signature builds name(t1,t2,...). Parameter names and return types never take part.
func Signature(name string, params []Type) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("%w: invalid function name %q", ErrMalformedType, name)
	}
	parts := make([]string, 0, len(params))
	for i, p := range params {
		s, err := Canonical(p)
		if err != nil {
			return "", fmt.Errorf("%s parameter %d: %w", name, i, err)
		}
		parts = append(parts, s)
	}
	return name + "(" + strings.Join(parts, ",") + ")", nil
}

// FunctionSelector is Signature followed by SelectorFromSignature.
func FunctionSelector(name string, params []Type) (string, Selector, error) {
	sig, err := Signature(name, params)
	if err != nil {
		return "", Selector{}, err
	}
	return sig, SelectorFromSignature(sig), nil
}

// SolcForm rewrites tuple(...) groups to the bare (...) form of the ABI
// specification. solc keys methodIdentifiers and gasEstimates by it and
// dispatchers hash it.
func SolcForm(signature string) string {
	const marker = "tuple("
	var sb strings.Builder
	for i := 0; i < len(signature); {
		if strings.HasPrefix(signature[i:], marker) && i > 0 && (signature[i-1] == '(' || signature[i-1] == ',') {
			sb.WriteByte('(')
			i += len(marker)
			continue
		}
		sb.WriteByte(signature[i])
		i++
	}
	return sb.String()
}
