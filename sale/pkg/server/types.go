package server

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/referral"
)

// CallerHeader carries the base58 identity of the caller. The daemon trusts
// whatever gateway sits in front of it to authenticate and set it.
const CallerHeader = "X-Caller"

type PurchaseRequest struct {
	Beneficiary solana.PublicKey  `json:"beneficiary"`
	Value       uint64            `json:"value"`
	Channel     *solana.PublicKey `json:"channel,omitempty"`
}

type TransferRequest struct {
	To    solana.PublicKey `json:"to"`
	Value uint64           `json:"value"`
}

type StageRequest struct {
	OpeningTime time.Time `json:"opening_time"`
	ClosingTime time.Time `json:"closing_time"`
	Rate        uint64    `json:"rate"`
	Limit       uint64    `json:"limit"`
}

type MintRequest struct {
	To     solana.PublicKey `json:"to"`
	Amount uint64           `json:"amount"`
}

type TimelockMintRequest struct {
	To          solana.PublicKey `json:"to"`
	Amount      uint64           `json:"amount"`
	ReleaseTime time.Time        `json:"release_time"`
}

type ReferralRequest struct {
	Advertiser   solana.PublicKey `json:"advertiser"`
	BonusPercent uint64           `json:"bonus_percent"`
}

// OwnershipRequest transfers admin control to NewOwner, or renounces it when
// NewOwner is absent. Both are always refused.
type OwnershipRequest struct {
	NewOwner *solana.PublicKey `json:"new_owner,omitempty"`
}

type CreditRequest struct {
	Account solana.PublicKey `json:"account"`
	Amount  uint64           `json:"amount"`
}

type AmountResponse struct {
	Amount uint64 `json:"amount"`
}

type GrantResponse struct {
	Grant solana.PublicKey `json:"grant"`
}

type ReferralResponse struct {
	Advertiser solana.PublicKey `json:"advertiser"`
	Channel    solana.PublicKey `json:"channel"`
}

// ChannelResponse is a channel and whether it still accepts contributions.
type ChannelResponse struct {
	referral.ChannelInfo
	Valid bool `json:"valid"`
}

type EventsResponse struct {
	Signals []events.Signal `json:"signals"`
	// Next is the cursor for the following page.
	Next uint64 `json:"next"`
}

type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Op         string `json:"op,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
