// SPDX-License-Identifier: Apache-2.0

package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/store"
)

type fakeSpotPriceAPI struct {
	pages [][]ec2types.SpotPrice
	calls int
	err   error
}

func (f *fakeSpotPriceAPI) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, _ ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.calls
	f.calls++
	out := &ec2.DescribeSpotPriceHistoryOutput{SpotPriceHistory: f.pages[page]}
	if page < len(f.pages)-1 {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

type fakePriceWriter struct {
	batches [][]store.PriceRecord
	err     error
}

func (w *fakePriceWriter) PutPrices(ctx context.Context, recs []store.PriceRecord) error {
	if w.err != nil {
		return w.err
	}
	batch := make([]store.PriceRecord, len(recs))
	copy(batch, recs)
	w.batches = append(w.batches, batch)
	return nil
}

func spotPrice(instanceType, az, price string, ts time.Time) ec2types.SpotPrice {
	return ec2types.SpotPrice{
		InstanceType:     ec2types.InstanceType(instanceType),
		AvailabilityZone: aws.String(az),
		SpotPrice:        aws.String(price),
		Timestamp:        aws.Time(ts),
	}
}

func collectorConfig() config.Config {
	return config.Config{
		Cluster:                      "mesos-test",
		Pool:                         "bar",
		PriceCollectorRunInterval:    2 * time.Minute,
		PriceCollectorDedupeInterval: time.Minute,
	}
}

func TestRunOnceWritesPrices(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-time.Minute)),
		spotPrice("c3.4xlarge", "us-west-2b", "0.55", end.Add(-30*time.Second)),
	}}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, collectorConfig())

	require.NoError(t, c.RunOnce(context.Background(), end))
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0], 2)
}

func TestRunOncePaginates(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{
		{spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-time.Minute))},
		{spotPrice("c3.4xlarge", "us-west-2b", "0.55", end.Add(-time.Minute))},
	}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, collectorConfig())

	require.NoError(t, c.RunOnce(context.Background(), end))
	assert.Equal(t, 2, api.calls)
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0], 2)
}

func TestDedupeKeepsNewestPerMarket(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-3*time.Minute)),
		spotPrice("m5.large", "us-west-2a", "0.12", end.Add(-time.Minute)),
		spotPrice("m5.large", "us-west-2a", "0.11", end.Add(-2*time.Minute)),
	}}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, collectorConfig())

	require.NoError(t, c.RunOnce(context.Background(), end))
	require.Len(t, writer.batches, 1)
	require.Len(t, writer.batches[0], 1)
	assert.Equal(t, 0.12, writer.batches[0][0].Price)
}

func TestDedupeAcrossRuns(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := collectorConfig()
	cfg.PriceCollectorDedupeInterval = 10 * time.Minute

	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-time.Minute)),
	}}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, cfg)
	require.NoError(t, c.RunOnce(context.Background(), end))

	// The same market again, two minutes later: inside the dedupe window,
	// so nothing is written.
	api.pages = [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.13", end.Add(time.Minute)),
	}}
	api.calls = 0
	require.NoError(t, c.RunOnce(context.Background(), end.Add(2*time.Minute)))
	assert.Len(t, writer.batches, 1)
}

func TestFutureTimestampsClampedToEndTime(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(time.Hour)),
	}}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, collectorConfig())

	require.NoError(t, c.RunOnce(context.Background(), end))
	require.Len(t, writer.batches, 1)
	assert.True(t, writer.batches[0][0].Timestamp.Equal(end))
}

func TestUnknownMarketsSkipped(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("mystery.9xlarge", "us-west-2a", "0.10", end.Add(-time.Minute)),
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-time.Minute)),
	}}}
	writer := &fakePriceWriter{}
	c := NewCollector(api, writer, collectorConfig())

	require.NoError(t, c.RunOnce(context.Background(), end))
	require.Len(t, writer.batches, 1)
	require.Len(t, writer.batches[0], 1)
	market, _ := markets.New("m5.large", "us-west-2a")
	assert.Equal(t, market, writer.batches[0][0].Market)
}

func TestAPIErrorPropagates(t *testing.T) {
	api := &fakeSpotPriceAPI{err: errors.New("throttled")}
	c := NewCollector(api, &fakePriceWriter{}, collectorConfig())
	err := c.RunOnce(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe spot price history")
}

func TestLastRunTracksOutcomes(t *testing.T) {
	end := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSpotPriceAPI{pages: [][]ec2types.SpotPrice{{
		spotPrice("m5.large", "us-west-2a", "0.10", end.Add(-time.Minute)),
	}}}
	c := NewCollector(api, &fakePriceWriter{}, collectorConfig())

	lastRun, lastErr := c.LastRun()
	assert.True(t, lastRun.IsZero())
	assert.Empty(t, lastErr)

	require.NoError(t, c.RunOnce(context.Background(), end))
	lastRun, lastErr = c.LastRun()
	assert.True(t, lastRun.Equal(end))
	assert.Empty(t, lastErr)

	api.err = errors.New("throttled")
	require.Error(t, c.RunOnce(context.Background(), end.Add(time.Minute)))
	lastRun, lastErr = c.LastRun()
	assert.True(t, lastRun.Equal(end))
	assert.Contains(t, lastErr, "throttled")
}
