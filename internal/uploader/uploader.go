// Package uploader pushes one target device's readings to a ThingSpeak-style
// cloud endpoint on a fixed interval. It consumes the store's aggregate
// contract; network retries and backoff beyond the interval floor are the
// endpoint's own rate-limit discipline.
package uploader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"ruuviair/internal/store"
)

// minUpdateInterval is the free-tier ThingSpeak floor between updates.
const minUpdateInterval = 15 * time.Second

// Reader is the slice of the store the uploader reads from.
type Reader interface {
	Latest(ctx context.Context, deviceID string) (*store.Record, error)
	AggregateDevice(ctx context.Context, deviceID string, from, to time.Time) (*store.Aggregate, error)
}

// Options configures the uploader.
type Options struct {
	APIKey    string
	BaseURL   string
	TargetMAC string
	Interval  time.Duration
}

// Uploader periodically uploads aggregated readings for one device.
type Uploader struct {
	reader       Reader
	client       *resty.Client
	opts         Options
	logger       *zap.Logger
	lastSequence *uint32
	uploads      int
	errors       int
}

// New creates an uploader. The interval is clamped to the endpoint's
// 15 s floor.
func New(reader Reader, opts Options, logger *zap.Logger) *Uploader {
	if opts.Interval < minUpdateInterval {
		logger.Warn("upload interval below endpoint floor, clamping",
			zap.Duration("requested", opts.Interval),
			zap.Duration("floor", minUpdateInterval),
		)
		opts.Interval = minUpdateInterval
	}

	client := resty.New().
		SetTimeout(10 * time.Second)

	return &Uploader{
		reader: reader,
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// Run uploads on the configured interval until the context is cancelled.
func (u *Uploader) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.logger.Info("uploader stopped",
				zap.Int("uploads", u.uploads),
				zap.Int("errors", u.errors),
			)
			return ctx.Err()
		case <-ticker.C:
			if err := u.UploadOnce(ctx); err != nil {
				u.errors++
				u.logger.Warn("upload failed", zap.Error(err))
			}
		}
	}
}

// UploadOnce uploads the current values for the target device. A sample
// whose measurement sequence has not advanced since the previous upload is
// skipped: the device has produced nothing new.
func (u *Uploader) UploadOnce(ctx context.Context) error {
	latest, err := u.reader.Latest(ctx, u.opts.TargetMAC)
	if err != nil {
		return fmt.Errorf("failed to read latest measurement: %w", err)
	}
	if latest == nil {
		u.logger.Debug("no data for target device",
			zap.String("device_id", u.opts.TargetMAC))
		return nil
	}

	if u.lastSequence != nil && latest.Sequence != nil && *latest.Sequence == *u.lastSequence {
		u.logger.Debug("skipping upload, sequence unchanged",
			zap.Uint32("sequence", *latest.Sequence))
		return nil
	}

	// Averages over the last interval smooth out single-sample noise.
	to := time.Now().UTC()
	agg, err := u.reader.AggregateDevice(ctx, u.opts.TargetMAC, to.Add(-u.opts.Interval), to)
	if err != nil {
		return fmt.Errorf("failed to aggregate window: %w", err)
	}

	params := map[string]string{"api_key": u.opts.APIKey}
	setField(params, "field1", pick(agg.Temperature, latest.Temperature))
	setField(params, "field2", pick(agg.Humidity, latest.Humidity))
	if agg.Pressure != nil {
		params["field3"] = strconv.FormatFloat(*agg.Pressure, 'f', 0, 64)
	} else if latest.Pressure != nil {
		params["field3"] = strconv.FormatUint(uint64(*latest.Pressure), 10)
	}
	setField(params, "field4", pick(agg.PM25, latest.PM25))
	setField(params, "field5", pick(agg.CO2, nil))

	if len(params) <= 1 {
		u.logger.Debug("no valid fields to upload")
		return nil
	}

	resp, err := u.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(u.opts.BaseURL)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload rejected: HTTP %d", resp.StatusCode())
	}
	// ThingSpeak answers the new entry ID, or "0" when rate limited.
	if string(resp.Body()) == "0" {
		return fmt.Errorf("endpoint rejected update (rate limit)")
	}

	u.uploads++
	u.lastSequence = latest.Sequence
	u.logger.Info("uploaded measurement",
		zap.String("device_id", u.opts.TargetMAC),
		zap.Int("uploads", u.uploads),
		zap.String("entry_id", string(resp.Body())),
	)
	return nil
}

func pick(avg *float64, fallback *float64) *float64 {
	if avg != nil {
		return avg
	}
	return fallback
}

func setField(params map[string]string, name string, v *float64) {
	if v != nil {
		params[name] = strconv.FormatFloat(*v, 'f', 2, 64)
	}
}
