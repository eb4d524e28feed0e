package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/malbeclabs/stagesale/sale/pkg/campaign"
	"github.com/malbeclabs/stagesale/sale/pkg/clickhouse"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/referral"
	"github.com/malbeclabs/stagesale/sale/pkg/server"
	"github.com/malbeclabs/stagesale/sale/pkg/timelock"
)

// Signal is a committed event as served over the API. Payload is left raw;
// decode it into the events type named by Kind.
type Signal struct {
	Seq     uint64          `json:"seq"`
	ID      uuid.UUID       `json:"id"`
	Op      string          `json:"op"`
	Kind    events.Kind     `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

type EventsPage struct {
	Signals []Signal `json:"signals"`
	Next    uint64   `json:"next"`
}

func (c *Client) Version(ctx context.Context) (server.VersionResponse, error) {
	var v server.VersionResponse
	err := c.get(ctx, "/version", nil, &v)
	return v, err
}

// Ready returns nil when every readiness check on the server passes.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func (c *Client) Status(ctx context.Context) (campaign.Status, error) {
	var st campaign.Status
	err := c.get(ctx, "/api/campaign", nil, &st)
	return st, err
}

func (c *Client) Balances(ctx context.Context, account solana.PublicKey) (campaign.Balances, error) {
	var b campaign.Balances
	err := c.get(ctx, "/api/balances/"+account.String(), nil, &b)
	return b, err
}

// ReferralAddress returns the active channel of advertiser.
func (c *Client) ReferralAddress(ctx context.Context, advertiser solana.PublicKey) (solana.PublicKey, error) {
	var resp server.ReferralResponse
	if err := c.get(ctx, "/api/referrals/"+advertiser.String(), nil, &resp); err != nil {
		return solana.PublicKey{}, err
	}
	return resp.Channel, nil
}

func (c *Client) Channels(ctx context.Context) ([]referral.ChannelInfo, error) {
	var out []referral.ChannelInfo
	err := c.get(ctx, "/api/channels", nil, &out)
	return out, err
}

func (c *Client) Channel(ctx context.Context, channel solana.PublicKey) (server.ChannelResponse, error) {
	var out server.ChannelResponse
	err := c.get(ctx, "/api/channels/"+channel.String(), nil, &out)
	return out, err
}

func (c *Client) Grants(ctx context.Context) ([]timelock.Grant, error) {
	var out []timelock.Grant
	err := c.get(ctx, "/api/timelocks", nil, &out)
	return out, err
}

func (c *Client) Grant(ctx context.Context, grant solana.PublicKey) (timelock.Grant, error) {
	var out timelock.Grant
	err := c.get(ctx, "/api/timelocks/"+grant.String(), nil, &out)
	return out, err
}

// Events returns up to limit signals with a sequence number above after.
// A zero limit uses the server default.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (EventsPage, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page EventsPage
	err := c.get(ctx, "/api/events", q, &page)
	return page, err
}

func (c *Client) Activity(ctx context.Context) ([]clickhouse.KindTotal, error) {
	var out []clickhouse.KindTotal
	err := c.get(ctx, "/api/stats/activity", nil, &out)
	return out, err
}

// BuyTokens contributes value for beneficiary, through channel when it is
// not nil, and returns the beneficiary's balances.
func (c *Client) BuyTokens(ctx context.Context, beneficiary solana.PublicKey, value uint64, channel *solana.PublicKey) (campaign.Balances, error) {
	var b campaign.Balances
	err := c.send(ctx, http.MethodPost, "/api/purchases", server.PurchaseRequest{
		Beneficiary: beneficiary,
		Value:       value,
		Channel:     channel,
	}, &b)
	return b, err
}

// Transfer sends value to the campaign or a channel address and returns the
// caller's balances.
func (c *Client) Transfer(ctx context.Context, to solana.PublicKey, value uint64) (campaign.Balances, error) {
	var b campaign.Balances
	err := c.send(ctx, http.MethodPost, "/api/transfers", server.TransferRequest{To: to, Value: value}, &b)
	return b, err
}

func (c *Client) ClaimRefund(ctx context.Context) (uint64, error) {
	var resp server.AmountResponse
	err := c.send(ctx, http.MethodPost, "/api/refunds", nil, &resp)
	return resp.Amount, err
}

func (c *Client) ReleaseTimeLock(ctx context.Context, grant solana.PublicKey) (uint64, error) {
	var resp server.AmountResponse
	err := c.send(ctx, http.MethodPost, fmt.Sprintf("/api/timelocks/%s/release", grant), nil, &resp)
	return resp.Amount, err
}

func (c *Client) StartStage(ctx context.Context, p campaign.StageParams) (campaign.Stage, error) {
	var st campaign.Stage
	err := c.send(ctx, http.MethodPost, "/api/admin/stages", server.StageRequest{
		OpeningTime: p.OpeningTime,
		ClosingTime: p.ClosingTime,
		Rate:        p.Rate,
		Limit:       p.Limit,
	}, &st)
	return st, err
}

func (c *Client) StopStage(ctx context.Context) error {
	return c.send(ctx, http.MethodDelete, "/api/admin/stages/current", nil, nil)
}

func (c *Client) MintTokens(ctx context.Context, to solana.PublicKey, amount uint64) (campaign.Balances, error) {
	var b campaign.Balances
	err := c.send(ctx, http.MethodPost, "/api/admin/mints", server.MintRequest{To: to, Amount: amount}, &b)
	return b, err
}

func (c *Client) MintTokensToTimelock(ctx context.Context, to solana.PublicKey, amount uint64, releaseTime time.Time) (solana.PublicKey, error) {
	var resp server.GrantResponse
	err := c.send(ctx, http.MethodPost, "/api/admin/timelock-mints", server.TimelockMintRequest{
		To:          to,
		Amount:      amount,
		ReleaseTime: releaseTime,
	}, &resp)
	return resp.Grant, err
}

func (c *Client) CreateReferral(ctx context.Context, advertiser solana.PublicKey, bonusPercent uint64) (solana.PublicKey, error) {
	var resp server.ReferralResponse
	err := c.send(ctx, http.MethodPost, "/api/admin/referrals", server.ReferralRequest{
		Advertiser:   advertiser,
		BonusPercent: bonusPercent,
	}, &resp)
	return resp.Channel, err
}

func (c *Client) RemoveReferral(ctx context.Context, advertiser solana.PublicKey) error {
	return c.send(ctx, http.MethodDelete, "/api/admin/referrals/"+advertiser.String(), nil, nil)
}

func (c *Client) RemoveReferralByChannel(ctx context.Context, channel solana.PublicKey) error {
	return c.send(ctx, http.MethodDelete, "/api/admin/channels/"+channel.String(), nil, nil)
}

func (c *Client) ClaimVault(ctx context.Context) (uint64, error) {
	var resp server.AmountResponse
	err := c.send(ctx, http.MethodPost, "/api/admin/vault/claim", nil, &resp)
	return resp.Amount, err
}

func (c *Client) Finalize(ctx context.Context) (campaign.Status, error) {
	var st campaign.Status
	err := c.send(ctx, http.MethodPost, "/api/admin/finalize", nil, &st)
	return st, err
}

// TransferOwnership asks the server to hand admin control to newOwner. The
// server always refuses.
func (c *Client) TransferOwnership(ctx context.Context, newOwner solana.PublicKey) error {
	return c.send(ctx, http.MethodPost, "/api/admin/ownership", server.OwnershipRequest{NewOwner: &newOwner}, nil)
}

func (c *Client) RenounceOwnership(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/admin/ownership", server.OwnershipRequest{}, nil)
}

func (c *Client) Credit(ctx context.Context, account solana.PublicKey, amount uint64) (campaign.Balances, error) {
	var b campaign.Balances
	err := c.send(ctx, http.MethodPost, "/api/admin/credits", server.CreditRequest{Account: account, Amount: amount}, &b)
	return b, err
}
