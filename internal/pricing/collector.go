// SPDX-License-Identifier: Apache-2.0

// Package pricing collects EC2 spot price history and persists it for
// capacity cost reporting. Collection is paced against the AWS API and
// deduplicated so a chatty market does not flood the store.
package pricing

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/metrics"
	"github.com/clusterman/clusterman/internal/store"
)

// Only Linux spot prices matter for the pools clusterman manages.
const productDescription = "Linux/UNIX (Amazon VPC)"

// SpotPriceAPI is the slice of the EC2 API the collector uses.
type SpotPriceAPI interface {
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// PriceWriter persists price observations; satisfied by *store.Store.
type PriceWriter interface {
	PutPrices(ctx context.Context, recs []store.PriceRecord) error
}

// Collector periodically pulls spot price history and writes the newest
// observation per market.
type Collector struct {
	api    SpotPriceAPI
	writer PriceWriter
	cfg    config.Config
	logger zerolog.Logger

	// limiter paces DescribeSpotPriceHistory pagination; the API throttles
	// aggressively across the whole account.
	limiter *rate.Limiter

	mu          sync.Mutex
	lastWritten map[markets.InstanceMarket]time.Time
	lastRun     time.Time
	lastError   string
}

// NewCollector builds a collector over the given EC2 client and writer.
func NewCollector(api SpotPriceAPI, writer PriceWriter, cfg config.Config) *Collector {
	return &Collector{
		api:         api,
		writer:      writer,
		cfg:         cfg,
		logger:      log.WithPool("spot-price-collector", cfg.Cluster, cfg.Pool),
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		lastWritten: make(map[markets.InstanceMarket]time.Time),
	}
}

// Run executes the collection loop until the context is cancelled. Like
// the autoscaler, start times are splayed so many collectors do not hit
// the API at the same instant.
func (c *Collector) Run(ctx context.Context) error {
	interval := c.cfg.PriceCollectorRunInterval
	offset := splayOffset(c.cfg.Cluster+"-prices", interval)
	c.logger.Info().
		Str("event", "pricing.start").
		Dur("interval", interval).
		Dur("splay", offset).
		Msg("starting spot price collection loop")

	timer := time.NewTimer(untilNextRun(time.Now(), interval, offset))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := c.RunOnce(ctx, time.Now().UTC()); err != nil {
				// A failed collection is not fatal; prices arrive again on
				// the next tick.
				metrics.IncSpotPriceCollectionError()
				c.logger.Warn().
					Str("event", "pricing.run_failed").
					Err(err).
					Msg("spot price collection failed")
			}
			timer.Reset(untilNextRun(time.Now(), interval, offset))
		}
	}
}

// RunOnce collects all spot prices between the previous run and endTime
// and writes the deduplicated batch.
func (c *Collector) RunOnce(ctx context.Context, endTime time.Time) error {
	err := c.runOnce(ctx, endTime)
	c.mu.Lock()
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
	c.mu.Unlock()
	return err
}

// LastRun reports when the collector last completed successfully and the
// most recent error, for readiness reporting.
func (c *Collector) LastRun() (time.Time, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastError
}

func (c *Collector) runOnce(ctx context.Context, endTime time.Time) error {
	c.mu.Lock()
	startTime := c.lastRun
	if startTime.IsZero() {
		startTime = endTime.Add(-c.cfg.PriceCollectorRunInterval)
	}
	c.mu.Unlock()

	prices, err := c.fetchPrices(ctx, startTime, endTime)
	if err != nil {
		return err
	}

	records := c.dedupe(prices, endTime)
	if len(records) > 0 {
		if err := c.writer.PutPrices(ctx, records); err != nil {
			return fmt.Errorf("write spot prices: %w", err)
		}
	}
	metrics.AddSpotPricesCollected(len(records))

	c.mu.Lock()
	c.lastRun = endTime
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "pricing.collected").
		Int("observed", len(prices)).
		Int("written", len(records)).
		Msg("collected spot prices")
	return nil
}

func (c *Collector) fetchPrices(ctx context.Context, startTime, endTime time.Time) ([]ec2types.SpotPrice, error) {
	input := &ec2.DescribeSpotPriceHistoryInput{
		StartTime:           aws.Time(startTime),
		EndTime:             aws.Time(endTime),
		ProductDescriptions: []string{productDescription},
	}

	var out []ec2types.SpotPrice
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.api.DescribeSpotPriceHistory(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe spot price history: %w", err)
		}
		out = append(out, resp.SpotPriceHistory...)
		if resp.NextToken == nil || *resp.NextToken == "" {
			return out, nil
		}
		input.NextToken = resp.NextToken
	}
}

// dedupe keeps the newest observation per market and drops markets whose
// last written price is fresher than the dedupe interval. Observation
// timestamps later than endTime are clamped to it so a run never writes
// into the future.
func (c *Collector) dedupe(prices []ec2types.SpotPrice, endTime time.Time) []store.PriceRecord {
	newest := make(map[markets.InstanceMarket]store.PriceRecord)
	for _, sp := range prices {
		market, err := markets.New(string(sp.InstanceType), aws.ToString(sp.AvailabilityZone))
		if err != nil {
			// Catalog miss; not a market any managed pool can run in.
			continue
		}
		price, err := strconv.ParseFloat(aws.ToString(sp.SpotPrice), 64)
		if err != nil {
			c.logger.Warn().
				Str("event", "pricing.bad_price").
				Str("market", market.String()).
				Err(err).
				Msg("unparseable spot price")
			continue
		}

		ts := aws.ToTime(sp.Timestamp)
		if ts.After(endTime) {
			ts = endTime
		}
		if existing, ok := newest[market]; ok && !ts.After(existing.Timestamp) {
			continue
		}
		newest[market] = store.PriceRecord{Market: market, Price: price, Timestamp: ts}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]store.PriceRecord, 0, len(newest))
	for market, rec := range newest {
		if last, ok := c.lastWritten[market]; ok && rec.Timestamp.Sub(last) < c.cfg.PriceCollectorDedupeInterval {
			continue
		}
		c.lastWritten[market] = rec.Timestamp
		records = append(records, rec)
	}
	return records
}

func splayOffset(key string, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return time.Duration(h.Sum32()) % interval
}

func untilNextRun(now time.Time, interval, offset time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	next := now.Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next.Sub(now)
}
