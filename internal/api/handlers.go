// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/pool"
	"github.com/clusterman/clusterman/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

type stateResponse struct {
	Cluster            string              `json:"cluster"`
	Pool               string              `json:"pool"`
	Scheduler          string              `json:"scheduler"`
	TargetCapacity     float64             `json:"target_capacity"`
	FulfilledCapacity  float64             `json:"fulfilled_capacity"`
	AllocatedResources connector.Resources `json:"allocated_resources"`
	TotalResources     connector.Resources `json:"total_resources"`
	Groups             []pool.GroupStatus  `json:"resource_groups"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	conn := s.manager.Connector()
	writeJSON(w, http.StatusOK, stateResponse{
		Cluster:            s.cfg.Cluster,
		Pool:               s.cfg.Pool,
		Scheduler:          s.cfg.Scheduler,
		TargetCapacity:     s.manager.TargetCapacity(),
		FulfilledCapacity:  s.manager.FulfilledCapacity(),
		AllocatedResources: conn.AllocatedResources(),
		TotalResources:     conn.TotalResources(),
		Groups:             s.manager.GroupStatuses(),
	})
}

type capacityRequest struct {
	DesiredCapacity float64 `json:"desired_capacity"`
	DryRun          bool    `json:"dry_run"`
	Force           bool    `json:"force"`
}

type capacityResponse struct {
	RequestedCapacity float64 `json:"requested_capacity"`
	AppliedCapacity   float64 `json:"applied_capacity"`
	DryRun            bool    `json:"dry_run"`
}

func (s *Server) handleSetCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DesiredCapacity < 0 {
		writeError(w, http.StatusBadRequest, "desired capacity must be non-negative")
		return
	}

	applied, err := s.manager.ModifyTargetCapacity(r.Context(), req.DesiredCapacity, req.DryRun, req.Force)
	if err != nil {
		if errors.Is(err, pool.ErrNoResourceGroups) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error().
			Str("event", "api.capacity_failed").
			Err(err).
			Msg("capacity change failed")
		writeError(w, http.StatusInternalServerError, "capacity change failed")
		return
	}

	s.auditor.TargetChanged(r.RemoteAddr, s.cfg.Cluster+"/"+s.cfg.Pool, req.DesiredCapacity, applied, req.DryRun)
	writeJSON(w, http.StatusOK, capacityResponse{
		RequestedCapacity: req.DesiredCapacity,
		AppliedCapacity:   applied,
		DryRun:            req.DryRun,
	})
}

func (s *Server) handleMarkGroupStale(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	if err := s.manager.MarkGroupStale(r.Context(), groupID); err != nil {
		if errors.Is(err, pool.ErrUnknownGroup) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error().
			Str("event", "api.mark_stale_failed").
			Str("group_id", groupID).
			Err(err).
			Msg("could not mark group stale")
		writeError(w, http.StatusInternalServerError, "mark stale failed")
		return
	}

	s.auditor.GroupMarkedStale(r.RemoteAddr, s.cfg.Cluster+"/"+s.cfg.Pool, groupID)
	writeJSON(w, http.StatusOK, map[string]string{"group_id": groupID, "status": "stale"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.holder.Reload(r.Context()); err != nil {
		s.auditor.ConfigReload(r.RemoteAddr, "failure", map[string]string{"error": err.Error()})
		writeError(w, http.StatusBadRequest, "config reload failed")
		return
	}
	s.auditor.ConfigReload(r.RemoteAddr, "success", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

type priceResponse struct {
	Market    string    `json:"market"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "price store not enabled")
		return
	}

	market, err := markets.New(r.URL.Query().Get("instance_type"), r.URL.Query().Get("az"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		recs, err := s.store.PricesSince(r.Context(), market, since)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "price query failed")
			return
		}
		out := make([]priceResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, priceResponse{Market: rec.Market.String(), Price: rec.Price, Timestamp: rec.Timestamp})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	rec, err := s.store.LatestPrice(r.Context(), market)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no price observed for market")
			return
		}
		writeError(w, http.StatusInternalServerError, "price query failed")
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Market: rec.Market.String(), Price: rec.Price, Timestamp: rec.Timestamp})
}

func (s *Server) handleCapacityHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "capacity store not enabled")
		return
	}

	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		recs, err := s.store.CapacitiesSince(r.Context(), s.cfg.Cluster, s.cfg.Pool, since)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "capacity query failed")
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}

	rec, err := s.store.LatestCapacity(r.Context(), s.cfg.Cluster, s.cfg.Pool)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no capacity recorded yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "capacity query failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
