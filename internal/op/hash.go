package op

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainOp     = "sluice/op/v1"
	DomainAction = "sluice/action/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashOp computes the content-addressed hash of an op.
//
// The hash covers the op's logical content: type, action, dependency
// (omitted when empty so no-dependency ops hash identically regardless
// of how they were constructed), and origin. It deliberately excludes
// lifecycle fields (seq, validation state, integration watermark):
// identity is "what the op asserts", not "where it is in the pipeline".
func HashOp(typ Type, action, dependency, origin string) (string, error) {
	content := map[string]any{
		"type":   string(typ),
		"action": action,
		"origin": origin,
	}
	if dependency != "" {
		content["dependency"] = dependency
	}

	canonical, err := MarshalCanonical(content)
	if err != nil {
		return "", fmt.Errorf("HashOp: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainOp, canonical), nil
}

// HashAction computes a content-addressed logical action reference.
// Callers that mint new actions (e.g. test fixtures, ingest tooling)
// use this to derive the reference other ops point at.
func HashAction(kind string, fields map[string]any) (string, error) {
	content := map[string]any{"kind": kind}
	for k, v := range fields {
		content[k] = v
	}

	canonical, err := MarshalCanonical(content)
	if err != nil {
		return "", fmt.Errorf("HashAction: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainAction, canonical), nil
}

// MustHashOp is like HashOp but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashOp(typ Type, action, dependency, origin string) string {
	hash, err := HashOp(typ, action, dependency, origin)
	if err != nil {
		panic(err)
	}
	return hash
}
