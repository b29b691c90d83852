package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// ScriptHash is the keccak-256 digest of a settlement destination script.
// Withdrawal requests store the hash instead of the raw script so a later
// finalize call can be checked against the destination the redeemer asked
// for without the engine interpreting the script itself.
type ScriptHash [32]byte

// HashScript digests a raw destination script.
func HashScript(script []byte) ScriptHash {
	h := sha3.NewLegacyKeccak256()
	h.Write(script)
	var out ScriptHash
	copy(out[:], h.Sum(nil))
	return out
}

// ParseScriptHash decodes a 64-character hex digest.
func ParseScriptHash(s string) (ScriptHash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ScriptHash{}, fmt.Errorf("invalid script hash: %w", err)
	}
	if len(raw) != 32 {
		return ScriptHash{}, fmt.Errorf("script hash must be 32 bytes, got %d", len(raw))
	}
	var out ScriptHash
	copy(out[:], raw)
	return out, nil
}

// String returns the lowercase hex form of the hash.
func (h ScriptHash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal reports whether two hashes are identical.
func (h ScriptHash) Equal(other ScriptHash) bool {
	return bytes.Equal(h[:], other[:])
}

// IsNil returns true for the zero hash.
func (h ScriptHash) IsNil() bool {
	return h == ScriptHash{}
}
