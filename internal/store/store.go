// SPDX-License-Identifier: Apache-2.0

// Package store persists spot price observations and capacity snapshots in
// an embedded badger database. Keys are time-ordered so range reads walk a
// prefix:
//   - prices:   "price:<market>:<ts>" (JSON)
//   - capacity: "capacity:<cluster>:<pool>:<ts>" (JSON)
//
// Both record kinds carry a TTL so the database stays bounded without a
// separate retention job.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/clusterman/clusterman/internal/markets"
)

// ErrNotFound is returned when no record matches a point query.
var ErrNotFound = errors.New("record not found")

// PriceRecord is one spot price observation for a market.
type PriceRecord struct {
	Market    markets.InstanceMarket `json:"market"`
	Price     float64                `json:"price"`
	Timestamp time.Time              `json:"timestamp"`
}

// CapacityRecord is one snapshot of a pool's capacity and utilization.
type CapacityRecord struct {
	Cluster           string    `json:"cluster"`
	Pool              string    `json:"pool"`
	TargetCapacity    float64   `json:"target_capacity"`
	FulfilledCapacity float64   `json:"fulfilled_capacity"`
	NonOrphanCapacity float64   `json:"non_orphan_capacity"`
	CPUAllocation     float64   `json:"cpu_allocation"`
	Timestamp         time.Time `json:"timestamp"`
}

// Store wraps a badger database.
type Store struct {
	db          *badger.DB
	priceTTL    time.Duration
	capacityTTL time.Duration
}

// Option adjusts store behavior.
type Option func(*Store)

// WithPriceTTL overrides the retention for price records.
func WithPriceTTL(ttl time.Duration) Option {
	return func(s *Store) { s.priceTTL = ttl }
}

// WithCapacityTTL overrides the retention for capacity records.
func WithCapacityTTL(ttl time.Duration) Option {
	return func(s *Store) { s.capacityTTL = ttl }
}

// Open opens (or creates) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	s := &Store{
		db:          db,
		priceTTL:    14 * 24 * time.Hour,
		capacityTTL: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// tsKey renders a timestamp so lexical order matches time order.
func tsKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func priceKey(market markets.InstanceMarket, t time.Time) []byte {
	return []byte("price:" + market.String() + ":" + tsKey(t))
}

func capacityPrefix(cluster, pool string) []byte {
	return []byte("capacity:" + cluster + ":" + pool + ":")
}

// PutPrice stores one price observation.
func (s *Store) PutPrice(ctx context.Context, rec PriceRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(priceKey(rec.Market, rec.Timestamp), buf).WithTTL(s.priceTTL)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

// PutPrices stores a batch of observations in one transaction.
func (s *Store) PutPrices(ctx context.Context, recs []PriceRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			entry := badger.NewEntry(priceKey(rec.Market, rec.Timestamp), buf).WithTTL(s.priceTTL)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestPrice returns the most recent observation for a market.
func (s *Store) LatestPrice(ctx context.Context, market markets.InstanceMarket) (PriceRecord, error) {
	prefix := []byte("price:" + market.String() + ":")
	var out PriceRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse-seek just past the prefix so the first valid item is the
		// newest key under it.
		seek := append(append([]byte{}, prefix...), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return PriceRecord{}, err
	}
	if !found {
		return PriceRecord{}, fmt.Errorf("%w: no price for %s", ErrNotFound, market)
	}
	return out, nil
}

// PricesSince returns all observations for a market at or after the given
// time, oldest first.
func (s *Store) PricesSince(ctx context.Context, market markets.InstanceMarket, since time.Time) ([]PriceRecord, error) {
	prefix := []byte("price:" + market.String() + ":")
	var out []PriceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		seek := append(append([]byte{}, prefix...), tsKey(since)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec PriceRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// PutCapacity stores one capacity snapshot.
func (s *Store) PutCapacity(ctx context.Context, rec CapacityRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := append(capacityPrefix(rec.Cluster, rec.Pool), tsKey(rec.Timestamp)...)
	entry := badger.NewEntry(key, buf).WithTTL(s.capacityTTL)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

// LatestCapacity returns the most recent snapshot for a pool.
func (s *Store) LatestCapacity(ctx context.Context, cluster, pool string) (CapacityRecord, error) {
	prefix := capacityPrefix(cluster, pool)
	var out CapacityRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return CapacityRecord{}, err
	}
	if !found {
		return CapacityRecord{}, fmt.Errorf("%w: no capacity for %s/%s", ErrNotFound, cluster, pool)
	}
	return out, nil
}

// CapacitiesSince returns all snapshots for a pool at or after the given
// time, oldest first.
func (s *Store) CapacitiesSince(ctx context.Context, cluster, pool string, since time.Time) ([]CapacityRecord, error) {
	prefix := capacityPrefix(cluster, pool)
	var out []CapacityRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		seek := append(append([]byte{}, prefix...), tsKey(since)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec CapacityRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}
