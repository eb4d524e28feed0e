package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Kind names a signal.
type Kind string

const (
	KindStageStarted         Kind = "StageStarted"
	KindStageStopped         Kind = "StageStopped"
	KindTimeLockGrantCreated Kind = "TimeLockGrantCreated"
	KindTimeLockReleased     Kind = "TimeLockReleased"
	KindReferralCreated      Kind = "ReferralCreated"
	KindReferralRemoved      Kind = "ReferralRemoved"
	KindReferralRewarded     Kind = "ReferralRewarded"
	KindTokensPurchased      Kind = "TokensPurchased"
	KindFinalized            Kind = "Finalized"
	KindDeposited            Kind = "Deposited"
	KindWithdrawn            Kind = "Withdrawn"
	KindRefundsEnabled       Kind = "RefundsEnabled"
	KindRefundsClosed        Kind = "RefundsClosed"
	KindVaultClaimed         Kind = "VaultClaimed"
)

// Signal is a committed event. Seq is contiguous across the life of a host.
type Signal struct {
	Seq     uint64    `json:"seq"`
	ID      uuid.UUID `json:"id"`
	Op      string    `json:"op"`
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

type StageStarted struct {
	OpeningTime time.Time `json:"opening_time"`
	ClosingTime time.Time `json:"closing_time"`
	Rate        uint64    `json:"rate"`
	Limit       uint64    `json:"limit"`
}

type StageStopped struct {
	Rate uint64 `json:"rate"`
}

type TimeLockGrantCreated struct {
	Beneficiary solana.PublicKey `json:"beneficiary"`
	Address     solana.PublicKey `json:"address"`
	ReleaseTime time.Time        `json:"release_time"`
	Amount      uint64           `json:"amount"`
}

type TimeLockReleased struct {
	Address     solana.PublicKey `json:"address"`
	Beneficiary solana.PublicKey `json:"beneficiary"`
	Amount      uint64           `json:"amount"`
}

type ReferralCreated struct {
	Advertiser   solana.PublicKey `json:"advertiser"`
	Channel      solana.PublicKey `json:"channel"`
	BonusPercent uint64           `json:"bonus_percent"`
}

type ReferralRemoved struct {
	Advertiser solana.PublicKey `json:"advertiser"`
	Channel    solana.PublicKey `json:"channel"`
}

type ReferralRewarded struct {
	Advertiser solana.PublicKey `json:"advertiser"`
	Channel    solana.PublicKey `json:"channel"`
	Amount     uint64           `json:"amount"`
}

type TokensPurchased struct {
	Purchaser   solana.PublicKey `json:"purchaser"`
	Beneficiary solana.PublicKey `json:"beneficiary"`
	Value       uint64           `json:"value"`
	Amount      uint64           `json:"amount"`
	Rate        uint64           `json:"rate"`
}

type Finalized struct {
	GoalReached bool   `json:"goal_reached"`
	TotalIssued uint64 `json:"total_issued"`
	WeiRaised   uint64 `json:"wei_raised"`
}

type Deposited struct {
	Contributor solana.PublicKey `json:"contributor"`
	Amount      uint64           `json:"amount"`
}

type Withdrawn struct {
	Payee  solana.PublicKey `json:"payee"`
	Amount uint64           `json:"amount"`
}

type RefundsEnabled struct{}

type RefundsClosed struct{}

type VaultClaimed struct {
	Wallet solana.PublicKey `json:"wallet"`
	Amount uint64           `json:"amount"`
}
