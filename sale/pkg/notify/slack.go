// Package notify posts campaign milestones to a Slack incoming webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
)

// DefaultKinds are the signals worth telling people about. Purchases and
// escrow movements are too frequent.
var DefaultKinds = []events.Kind{
	events.KindStageStarted,
	events.KindStageStopped,
	events.KindReferralCreated,
	events.KindReferralRemoved,
	events.KindRefundsEnabled,
	events.KindVaultClaimed,
	events.KindFinalized,
}

type Config struct {
	Logger     *slog.Logger
	WebhookURL string
	Campaign   string
	Kinds      []events.Kind
	HTTPClient *http.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.WebhookURL == "" {
		return errors.New("webhook url is required")
	}
	if cfg.Campaign == "" {
		cfg.Campaign = "sale"
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = DefaultKinds
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return nil
}

// SlackSink is an events.Sink that posts one message per batch with a block
// per notable signal.
type SlackSink struct {
	log   *slog.Logger
	cfg   Config
	kinds map[events.Kind]bool
}

func NewSlackSink(cfg Config) (*SlackSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kinds := make(map[events.Kind]bool, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kinds[k] = true
	}
	return &SlackSink{log: cfg.Logger, cfg: cfg, kinds: kinds}, nil
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Write(ctx context.Context, signals []events.Signal) error {
	var lines []string
	for _, sig := range signals {
		if s.kinds[sig.Kind] {
			lines = append(lines, Describe(sig))
		}
	}
	if len(lines) == 0 {
		return nil
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("%s: %s", s.cfg.Campaign, strings.Join(lines, "; ")),
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, s.cfg.Campaign, true, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "• "+strings.Join(lines, "\n• "), false, false), nil, nil),
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.cfg.WebhookURL, s.cfg.HTTPClient, msg); err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	s.log.Debug("notify: posted to slack", "signals", len(lines))
	return nil
}

// Describe renders a signal as one mrkdwn line.
func Describe(sig events.Signal) string {
	switch p := sig.Payload.(type) {
	case events.StageStarted:
		return fmt.Sprintf("*Stage started* at rate %d, limit %d, %s to %s",
			p.Rate, p.Limit, p.OpeningTime.UTC().Format(time.RFC3339), p.ClosingTime.UTC().Format(time.RFC3339))
	case events.StageStopped:
		return fmt.Sprintf("*Stage stopped*, rate reset to %d", p.Rate)
	case events.ReferralCreated:
		return fmt.Sprintf("*Referral created* for `%s` at `%s` with %d%% bonus", p.Advertiser, p.Channel, p.BonusPercent)
	case events.ReferralRemoved:
		return fmt.Sprintf("*Referral removed* for `%s`", p.Advertiser)
	case events.RefundsEnabled:
		return "*Refunds enabled*: the soft goal was missed"
	case events.VaultClaimed:
		return fmt.Sprintf("*Vault claimed*: %d sent to `%s`", p.Amount, p.Wallet)
	case events.Finalized:
		outcome := "goal missed"
		if p.GoalReached {
			outcome = "goal reached"
		}
		return fmt.Sprintf("*Finalized* (%s): %d units issued, %d raised", outcome, p.TotalIssued, p.WeiRaised)
	default:
		return fmt.Sprintf("*%s* (seq %d)", sig.Kind, sig.Seq)
	}
}
