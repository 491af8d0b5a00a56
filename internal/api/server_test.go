// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterman/clusterman/internal/audit"
	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/health"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/pool"
	"github.com/clusterman/clusterman/internal/store"
)

type stubConnector struct {
	allocated connector.Resources
	total     connector.Resources
}

func (c *stubConnector) ReloadState(context.Context) error { return nil }

func (c *stubConnector) AgentMetadataByIP(string) connector.AgentMetadata {
	return connector.AgentMetadata{}
}

func (c *stubConnector) AllocatedResources() connector.Resources { return c.allocated }

func (c *stubConnector) TotalResources() connector.Resources { return c.total }

func (c *stubConnector) FreezeAgent(context.Context, string) error { return nil }

type fakeManager struct {
	target    float64
	fulfilled float64
	statuses  []pool.GroupStatus
	conn      stubConnector

	modifyErr     error
	lastDesired   float64
	lastDryRun    bool
	lastForce     bool
	modifiedCalls int

	staleErr     error
	staleGroupID string
}

func (m *fakeManager) TargetCapacity() float64 { return m.target }

func (m *fakeManager) FulfilledCapacity() float64 { return m.fulfilled }

func (m *fakeManager) GroupStatuses() []pool.GroupStatus { return m.statuses }

func (m *fakeManager) Connector() connector.ClusterConnector { return &m.conn }

func (m *fakeManager) MarkGroupStale(_ context.Context, groupID string) error {
	if m.staleErr != nil {
		return m.staleErr
	}
	m.staleGroupID = groupID
	return nil
}

func (m *fakeManager) ModifyTargetCapacity(_ context.Context, desired float64, dryRun, force bool) (float64, error) {
	if m.modifyErr != nil {
		return 0, m.modifyErr
	}
	m.modifiedCalls++
	m.lastDesired = desired
	m.lastDryRun = dryRun
	m.lastForce = force
	return desired, nil
}

type fakeReloader struct {
	calls int
	err   error
}

func (r *fakeReloader) Reload(_ context.Context) error {
	r.calls++
	return r.err
}

type fakeStore struct {
	prices     map[markets.InstanceMarket]store.PriceRecord
	capacities []store.CapacityRecord
}

func (s *fakeStore) LatestPrice(_ context.Context, market markets.InstanceMarket) (store.PriceRecord, error) {
	rec, ok := s.prices[market]
	if !ok {
		return store.PriceRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) PricesSince(_ context.Context, market markets.InstanceMarket, since time.Time) ([]store.PriceRecord, error) {
	var out []store.PriceRecord
	if rec, ok := s.prices[market]; ok && !rec.Timestamp.Before(since) {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) LatestCapacity(_ context.Context, _, _ string) (store.CapacityRecord, error) {
	if len(s.capacities) == 0 {
		return store.CapacityRecord{}, store.ErrNotFound
	}
	return s.capacities[len(s.capacities)-1], nil
}

func (s *fakeStore) CapacitiesSince(_ context.Context, _, _ string, since time.Time) ([]store.CapacityRecord, error) {
	var out []store.CapacityRecord
	for _, rec := range s.capacities {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, manager *fakeManager, reloader *fakeReloader, st StateStore) *Server {
	t.Helper()
	cfg := config.Config{
		Cluster:       "mesos-test",
		Pool:          "bar",
		Scheduler:     config.SchedulerMesos,
		APIListenAddr: ":0",
	}
	return NewServer(cfg, manager, reloader, st, health.NewManager("test"), audit.NewLogger())
}

func TestHandleState(t *testing.T) {
	manager := &fakeManager{
		target:    10,
		fulfilled: 8,
		statuses: []pool.GroupStatus{
			{ID: "sfr-1", TargetCapacity: 10, FulfilledCapacity: 8, Status: "active"},
		},
		conn: stubConnector{
			allocated: connector.Resources{CPUs: 56, Mem: 448},
			total:     connector.Resources{CPUs: 80, Mem: 640},
		},
	}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mesos-test", resp.Cluster)
	assert.Equal(t, "bar", resp.Pool)
	assert.Equal(t, 10.0, resp.TargetCapacity)
	assert.Equal(t, 8.0, resp.FulfilledCapacity)
	assert.Equal(t, 56.0, resp.AllocatedResources.CPUs)
	assert.Equal(t, 80.0, resp.TotalResources.CPUs)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "sfr-1", resp.Groups[0].ID)
}

func TestHandleSetCapacity(t *testing.T) {
	manager := &fakeManager{}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	body, _ := json.Marshal(capacityRequest{DesiredCapacity: 15, DryRun: true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/capacity", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp capacityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 15.0, resp.AppliedCapacity)
	assert.True(t, resp.DryRun)
	assert.Equal(t, 15.0, manager.lastDesired)
	assert.True(t, manager.lastDryRun)
	assert.False(t, manager.lastForce)
}

func TestHandleSetCapacityRejectsNegative(t *testing.T) {
	manager := &fakeManager{}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	body, _ := json.Marshal(capacityRequest{DesiredCapacity: -1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/capacity", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, manager.modifiedCalls)
}

func TestHandleSetCapacityBadBody(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/capacity", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetCapacityNoGroups(t *testing.T) {
	manager := &fakeManager{modifyErr: pool.ErrNoResourceGroups}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	body, _ := json.Marshal(capacityRequest{DesiredCapacity: 5})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/capacity", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMarkGroupStale(t *testing.T) {
	manager := &fakeManager{}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/sfr-123/stale", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sfr-123", manager.staleGroupID)
}

func TestHandleMarkGroupStaleUnknownGroup(t *testing.T) {
	manager := &fakeManager{staleErr: pool.ErrUnknownGroup}
	srv := newTestServer(t, manager, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/sfr-missing/stale", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReload(t *testing.T) {
	reloader := &fakeReloader{}
	srv := newTestServer(t, &fakeManager{}, reloader, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reloader.calls)
}

func TestHandleReloadFailure(t *testing.T) {
	reloader := &fakeReloader{err: errors.New("yaml: bad indentation")}
	srv := newTestServer(t, &fakeManager{}, reloader, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrices(t *testing.T) {
	market, err := markets.New("m5.large", "us-west-2a")
	require.NoError(t, err)
	st := &fakeStore{prices: map[markets.InstanceMarket]store.PriceRecord{
		market: {Market: market, Price: 0.12, Timestamp: time.Now()},
	}}
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, st)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices?instance_type=m5.large&az=us-west-2a", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.12, resp.Price)
	assert.Equal(t, market.String(), resp.Market)
}

func TestHandlePricesUnknownMarket(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices?instance_type=mystery.9xlarge&az=us-west-2a", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePricesNoObservation(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices?instance_type=m5.large&az=us-west-2a", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePricesStoreDisabled(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices?instance_type=m5.large&az=us-west-2a", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCapacityHistory(t *testing.T) {
	now := time.Now()
	st := &fakeStore{capacities: []store.CapacityRecord{
		{Cluster: "mesos-test", Pool: "bar", TargetCapacity: 5, Timestamp: now.Add(-time.Hour)},
		{Cluster: "mesos-test", Pool: "bar", TargetCapacity: 10, Timestamp: now},
	}}
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, st)

	// Latest record without a since parameter.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/capacity/history", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var latest store.CapacityRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 10.0, latest.TargetCapacity)

	// Full history with since.
	since := now.Add(-2 * time.Hour).Format(time.RFC3339)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/capacity/history?since="+since, nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var recs []store.CapacityRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	assert.Len(t, recs, 2)
}

func TestHandleCapacityHistoryBadSince(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capacity/history?since=yesterday", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	// A missing request ID is generated.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMutationRateLimit(t *testing.T) {
	srv := newTestServer(t, &fakeManager{}, &fakeReloader{}, nil)
	router := srv.Router()

	var lastCode int
	for i := 0; i < 15; i++ {
		body, _ := json.Marshal(capacityRequest{DesiredCapacity: 1})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/capacity", bytes.NewReader(body))
		req.RemoteAddr = "10.0.0.9:4242"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
