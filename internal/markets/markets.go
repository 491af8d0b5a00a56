// SPDX-License-Identifier: Apache-2.0

// Package markets models EC2 instance markets: the pairing of an instance
// type with an availability zone. Capacity weights, spot prices, and scale
// up/down options are all keyed by market.
package markets

import (
	"fmt"
	"strings"
)

// InstanceResources describes the resources offered by one instance of a
// given type. DiskGiB is nil for EBS-only instance types.
type InstanceResources struct {
	CPUs    float64
	MemGiB  float64
	DiskGiB *float64
	GPUs    int
}

// InstanceMarket identifies an instance type in an availability zone. The
// zone may be empty for markets without placement information.
type InstanceMarket struct {
	InstanceType     string
	AvailabilityZone string
}

// New validates the instance type and zone against the known catalog and
// returns the market.
func New(instanceType, az string) (InstanceMarket, error) {
	if _, ok := instanceTypes[instanceType]; !ok {
		return InstanceMarket{}, fmt.Errorf("invalid market: unknown instance type %q", instanceType)
	}
	if !knownAZs[az] {
		return InstanceMarket{}, fmt.Errorf("invalid market: unknown availability zone %q", az)
	}
	return InstanceMarket{InstanceType: instanceType, AvailabilityZone: az}, nil
}

// String renders the market in the canonical "<type, az>" form.
func (m InstanceMarket) String() string {
	return fmt.Sprintf("<%s, %s>", m.InstanceType, m.AvailabilityZone)
}

// Parse reads a market back from its String form.
func Parse(s string) (InstanceMarket, error) {
	if len(s) < 2 || s[0] != '<' || s[len(s)-1] != '>' {
		return InstanceMarket{}, fmt.Errorf("malformed market string %q", s)
	}
	parts := strings.SplitN(s[1:len(s)-1], ", ", 2)
	if len(parts) != 2 {
		return InstanceMarket{}, fmt.Errorf("malformed market string %q", s)
	}
	return New(parts[0], parts[1])
}

// Resources returns the per-instance resources for the market's type.
func (m InstanceMarket) Resources() (InstanceResources, bool) {
	r, ok := instanceTypes[m.InstanceType]
	return r, ok
}

// Weight returns the capacity weight of one instance in this market. The
// convention from the original fleet configs is one weight unit per
// instance unless a resource group overrides it.
func (m InstanceMarket) Weight() float64 {
	return 1
}

// KnownInstanceType reports whether the catalog knows the given type.
func KnownInstanceType(instanceType string) bool {
	_, ok := instanceTypes[instanceType]
	return ok
}
