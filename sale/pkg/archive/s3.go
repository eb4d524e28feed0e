// Package archive stores a report of the campaign in S3 when it is finalized.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/stagesale/sale/pkg/events"
)

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Report is the archived document. Finalized carries the figures as
// committed; StatusAtArchive is read when the report is written and may
// already include later refunds.
type Report struct {
	Campaign        string        `json:"campaign"`
	ArchivedAt      time.Time     `json:"archived_at"`
	Finalized       events.Signal `json:"finalized"`
	StatusAtArchive any           `json:"status_at_archive,omitempty"`
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Client   ObjectPutter
	Bucket   string
	Prefix   string
	Campaign string
	// Snapshot returns the campaign state at archive time.
	Snapshot func() any
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Campaign == "" {
		cfg.Campaign = "sale"
	}
	return nil
}

// Sink is an events.Sink that uploads a Report for every Finalized signal.
type Sink struct {
	log *slog.Logger
	cfg Config
}

func NewSink(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Sink) Name() string { return "s3" }

func (s *Sink) Write(ctx context.Context, signals []events.Signal) error {
	for _, sig := range signals {
		if sig.Kind != events.KindFinalized {
			continue
		}
		if err := s.upload(ctx, sig); err != nil {
			return err
		}
	}
	return nil
}

// Key returns the object key for the report of a Finalized signal.
func (s *Sink) Key(sig events.Signal) string {
	return path.Join(s.cfg.Prefix, s.cfg.Campaign, fmt.Sprintf("finalized-%020d.json", sig.Seq))
}

func (s *Sink) upload(ctx context.Context, sig events.Signal) error {
	report := Report{
		Campaign:   s.cfg.Campaign,
		ArchivedAt: s.cfg.Clock.Now().UTC(),
		Finalized:  sig,
	}
	if s.cfg.Snapshot != nil {
		report.StatusAtArchive = s.cfg.Snapshot()
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	key := s.Key(sig)
	_, err = s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	s.log.Info("archive: stored finalization report", "bucket", s.cfg.Bucket, "key", key)
	return nil
}

// NewS3Client builds a client from the default credential chain. A non-empty
// endpoint targets an S3-compatible store with path-style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
