package queue

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
)

// SettlementPayload is the canonical settlement instruction handed to the
// bridging network at finalize time. The reserved field is a 32-byte
// zero-filled slot kept for settlement-format compatibility; decoders
// reject anything else.
type SettlementPayload struct {
	Redeemer          domain.AccountID
	DestinationScript []byte
	AssetAmount       domain.Sats
}

type payloadJSON struct {
	Redeemer          string `json:"redeemer"`
	Reserved          string `json:"reserved"`
	DestinationScript string `json:"destination_script"`
	AssetAmount       uint64 `json:"asset_amount"`
}

var zeroReserved = make([]byte, 32)

// Encode produces the canonical JSON form of the payload.
func (p SettlementPayload) Encode() ([]byte, error) {
	if p.Redeemer.IsNil() {
		return nil, fmt.Errorf("settlement payload requires a redeemer")
	}
	if len(p.DestinationScript) == 0 {
		return nil, fmt.Errorf("settlement payload requires a destination script")
	}
	return json.Marshal(payloadJSON{
		Redeemer:          string(p.Redeemer),
		Reserved:          hex.EncodeToString(zeroReserved),
		DestinationScript: hex.EncodeToString(p.DestinationScript),
		AssetAmount:       uint64(p.AssetAmount),
	})
}

// DecodePayload parses and validates a settlement payload. Every decode
// failure maps to payload_mismatch: a payload the engine cannot read is
// treated the same as one naming the wrong destination.
func DecodePayload(raw []byte) (SettlementPayload, error) {
	var pj payloadJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return SettlementPayload{}, dErrors.New(dErrors.CodePayloadMismatch, "settlement payload is not valid JSON")
	}
	redeemer, err := domain.ParseAccountID(pj.Redeemer)
	if err != nil {
		return SettlementPayload{}, dErrors.New(dErrors.CodePayloadMismatch, "settlement payload has an invalid redeemer")
	}
	reserved, err := hex.DecodeString(pj.Reserved)
	if err != nil || len(reserved) != 32 {
		return SettlementPayload{}, dErrors.New(dErrors.CodePayloadMismatch, "settlement payload reserved field is malformed")
	}
	for _, b := range reserved {
		if b != 0 {
			return SettlementPayload{}, dErrors.New(dErrors.CodePayloadMismatch, "settlement payload reserved field must be zero")
		}
	}
	script, err := hex.DecodeString(pj.DestinationScript)
	if err != nil || len(script) == 0 {
		return SettlementPayload{}, dErrors.New(dErrors.CodePayloadMismatch, "settlement payload destination script is malformed")
	}
	return SettlementPayload{
		Redeemer:          redeemer,
		DestinationScript: script,
		AssetAmount:       domain.Sats(pj.AssetAmount),
	}, nil
}

// VerifyAgainst checks the payload names exactly the redeemer and
// destination recorded at request time. This is the defense against a
// maintainer substituting a different destination at finalize time.
func (p SettlementPayload) VerifyAgainst(req WithdrawalRequest) error {
	if p.Redeemer != req.Redeemer {
		return dErrors.New(dErrors.CodePayloadMismatch, "settlement payload redeemer does not match request")
	}
	if !domain.HashScript(p.DestinationScript).Equal(req.DestinationHash) {
		return dErrors.New(dErrors.CodePayloadMismatch, "settlement payload destination does not match request")
	}
	return nil
}
