// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestPoolAttributes(t *testing.T) {
	tests := []struct {
		name      string
		cluster   string
		pool      string
		scheduler string
		wantLen   int
	}{
		{
			name:      "all fields",
			cluster:   "mesos-test",
			pool:      "bar",
			scheduler: "kubernetes",
			wantLen:   3,
		},
		{
			name:    "only cluster",
			cluster: "mesos-test",
			wantLen: 1,
		},
		{
			name:    "empty fields",
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := PoolAttributes(tt.cluster, tt.pool, tt.scheduler)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			if tt.cluster != "" {
				verifyStringAttribute(t, attrs, ClusterKey, tt.cluster)
			}
			if tt.pool != "" {
				verifyStringAttribute(t, attrs, PoolKey, tt.pool)
			}
			if tt.scheduler != "" {
				verifyStringAttribute(t, attrs, SchedulerKey, tt.scheduler)
			}
		})
	}
}

func TestScaleAttributes(t *testing.T) {
	attrs := ScaleAttributes(20.0, 15.0, 3, true)

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyFloat64Attribute(t, attrs, ScaleRequestedKey, 20.0)
	verifyFloat64Attribute(t, attrs, ScaleAppliedKey, 15.0)
	verifyInt64Attribute(t, attrs, ScaleGroupsKey, 3)
	verifyBoolAttribute(t, attrs, ScaleDryRunKey, true)
}

func TestGroupAttributes(t *testing.T) {
	attrs := GroupAttributes("sfr-123", "spot_fleet_request")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyStringAttribute(t, attrs, GroupIDKey, "sfr-123")
	verifyStringAttribute(t, attrs, GroupTypeKey, "spot_fleet_request")
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "aws_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyStringAttribute(t, attrs, ErrorTypeKey, "aws_error")
}

// Helper functions for attribute verification

func verifyStringAttribute(t *testing.T, attrs []attribute.KeyValue, key attribute.Key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if attr.Key == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key attribute.Key, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if attr.Key == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyFloat64Attribute(t *testing.T, attrs []attribute.KeyValue, key attribute.Key, expectedValue float64) {
	t.Helper()
	for _, attr := range attrs {
		if attr.Key == key {
			if attr.Value.AsFloat64() != expectedValue {
				t.Errorf("Expected %s=%f, got %f", key, expectedValue, attr.Value.AsFloat64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key attribute.Key, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if attr.Key == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
