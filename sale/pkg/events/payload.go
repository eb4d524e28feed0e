package events

import (
	"encoding/json"
	"fmt"
)

var payloadDecoders = map[Kind]func([]byte) (any, error){
	KindStageStarted:         decode[StageStarted],
	KindStageStopped:         decode[StageStopped],
	KindTimeLockGrantCreated: decode[TimeLockGrantCreated],
	KindTimeLockReleased:     decode[TimeLockReleased],
	KindReferralCreated:      decode[ReferralCreated],
	KindReferralRemoved:      decode[ReferralRemoved],
	KindReferralRewarded:     decode[ReferralRewarded],
	KindTokensPurchased:      decode[TokensPurchased],
	KindFinalized:            decode[Finalized],
	KindDeposited:            decode[Deposited],
	KindWithdrawn:            decode[Withdrawn],
	KindRefundsEnabled:       decode[RefundsEnabled],
	KindRefundsClosed:        decode[RefundsClosed],
	KindVaultClaimed:         decode[VaultClaimed],
}

func decode[T any](raw []byte) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodePayload parses a stored payload into the struct value that kind
// carries. Unknown kinds come back as json.RawMessage.
func DecodePayload(kind Kind, raw []byte) (any, error) {
	dec, ok := payloadDecoders[kind]
	if !ok {
		return json.RawMessage(raw), nil
	}
	p, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}

// Typed returns s with a json.RawMessage payload decoded by kind. Other
// payloads pass through.
func (s Signal) Typed() (Signal, error) {
	raw, ok := s.Payload.(json.RawMessage)
	if !ok {
		return s, nil
	}
	p, err := DecodePayload(s.Kind, raw)
	if err != nil {
		return s, err
	}
	s.Payload = p
	return s, nil
}
