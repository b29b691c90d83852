package domain

import (
	"strings"
	"testing"
)

// FuzzParseAccountID checks that parsing never panics on arbitrary input
// and never returns both a usable value and an error.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("acct-alice")
	f.Add("  acct-alice  ")
	f.Add("'; DROP TABLE vault_balances;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil && !id.IsNil() {
			t.Fatalf("ParseAccountID(%q) returned both id %q and error %v", input, id, err)
		}
		if err == nil && id.IsNil() {
			t.Fatalf("ParseAccountID(%q) returned nil id without error", input)
		}
	})
}

// FuzzParseScriptHash checks that hex decoding never panics and accepted
// values round-trip exactly.
func FuzzParseScriptHash(f *testing.F) {
	f.Add("")
	f.Add(HashScript([]byte{0x01}).String())
	f.Add("deadbeef")

	f.Fuzz(func(t *testing.T, input string) {
		h, err := ParseScriptHash(input)
		if err != nil {
			return
		}
		if !strings.EqualFold(h.String(), input) {
			t.Fatalf("ParseScriptHash(%q) does not round trip: %q", input, h.String())
		}
	})
}
