// SPDX-License-Identifier: Apache-2.0

package markets

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/clusterman/clusterman/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarketValidates(t *testing.T) {
	m, err := New("c3.4xlarge", "us-west-2a")
	require.NoError(t, err)
	assert.Equal(t, "c3.4xlarge", m.InstanceType)

	_, err = New("quantum.64xlarge", "us-west-2a")
	assert.Error(t, err)

	_, err = New("c3.4xlarge", "mars-east-1a")
	assert.Error(t, err)
}

func TestMarketEmptyZoneAllowed(t *testing.T) {
	_, err := New("m5.large", "")
	assert.NoError(t, err)
}

func TestMarketStringRoundTrip(t *testing.T) {
	m, err := New("r5.2xlarge", "us-east-1b")
	require.NoError(t, err)
	assert.Equal(t, "<r5.2xlarge, us-east-1b>", m.String())

	parsed, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "<>", "r5.2xlarge, us-east-1b", "<r5.2xlarge>"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestMarketResources(t *testing.T) {
	m, err := New("c3.4xlarge", "us-west-2a")
	require.NoError(t, err)

	res, ok := m.Resources()
	require.True(t, ok)
	assert.Equal(t, 16.0, res.CPUs)
	assert.Equal(t, 30.0, res.MemGiB)
	require.NotNil(t, res.DiskGiB)
	assert.Equal(t, 320.0, *res.DiskGiB)
	assert.Equal(t, 0, res.GPUs)
}

func TestCatalogCoversManagedFamilies(t *testing.T) {
	// One representative per family, including the sizes that only some
	// generations offer.
	for _, tc := range []struct {
		instanceType string
		cpus         float64
		mem          float64
	}{
		{"m6a.48xlarge", 192, 768},
		{"m6id.12xlarge", 48, 192},
		{"m5ad.24xlarge", 96, 384},
		{"m5dn.8xlarge", 32, 128},
		{"m5n.16xlarge", 64, 256},
		{"m5zn.3xlarge", 12, 48},
		{"c5a.12xlarge", 48, 96},
		{"c5ad.24xlarge", 96, 192},
		{"c5n.18xlarge", 72, 144},
		{"c6id.32xlarge", 128, 256},
		{"r6i.32xlarge", 128, 1024},
		{"r6id.4xlarge", 16, 128},
		{"r5a.24xlarge", 96, 768},
		{"r5b.8xlarge", 32, 256},
		{"r5ad.12xlarge", 48, 384},
		{"r5dn.16xlarge", 64, 512},
		{"r5n.2xlarge", 8, 64},
		{"r3.8xlarge", 32, 244},
		{"i3en.24xlarge", 96, 768},
		{"z1d.12xlarge", 48, 384},
		{"p3dn.24xlarge", 96, 768},
	} {
		m, err := New(tc.instanceType, "us-west-2a")
		require.NoError(t, err, tc.instanceType)
		res, ok := m.Resources()
		require.True(t, ok, tc.instanceType)
		assert.Equal(t, tc.cpus, res.CPUs, tc.instanceType)
		assert.Equal(t, tc.mem, res.MemGiB, tc.instanceType)
	}
}

func TestGPUCatalog(t *testing.T) {
	m, err := New("p3.8xlarge", "us-west-2b")
	require.NoError(t, err)
	res, ok := m.Resources()
	require.True(t, ok)
	assert.Equal(t, 4, res.GPUs)
	assert.Nil(t, res.DiskGiB)
}

type fakeSubnetAPI struct {
	calls int
	az    string
}

func (f *fakeSubnetAPI) DescribeSubnets(_ context.Context, _ *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	f.calls++
	return &ec2.DescribeSubnetsOutput{
		Subnets: []ec2types.Subnet{{AvailabilityZone: aws.String(f.az)}},
	}, nil
}

func TestSubnetToAZCaches(t *testing.T) {
	api := &fakeSubnetAPI{az: "us-west-2a"}
	c := cache.NewMemoryCache(0)
	defer func() { _ = c.Close() }()
	r := NewResolver(api, c)

	for i := 0; i < 3; i++ {
		az, err := r.SubnetToAZ(context.Background(), "subnet-1")
		require.NoError(t, err)
		assert.Equal(t, "us-west-2a", az)
	}
	assert.Equal(t, 1, api.calls)
}

func TestFromInstancePrefersSubnet(t *testing.T) {
	api := &fakeSubnetAPI{az: "us-west-2a"}
	c := cache.NewMemoryCache(time.Minute)
	defer func() { _ = c.Close() }()
	r := NewResolver(api, c)

	inst := ec2types.Instance{
		InstanceType: ec2types.InstanceTypeC34xlarge,
		SubnetId:     aws.String("subnet-1"),
		Placement:    &ec2types.Placement{AvailabilityZone: aws.String("us-west-2c")},
	}
	m, err := r.FromInstance(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2a", m.AvailabilityZone)
}

func TestFromInstanceFallsBackToPlacement(t *testing.T) {
	api := &fakeSubnetAPI{az: "unused"}
	c := cache.NewMemoryCache(0)
	defer func() { _ = c.Close() }()
	r := NewResolver(api, c)

	inst := ec2types.Instance{
		InstanceType: ec2types.InstanceTypeM5Large,
		Placement:    &ec2types.Placement{AvailabilityZone: aws.String("us-west-2c")},
	}
	m, err := r.FromInstance(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2c", m.AvailabilityZone)
	assert.Equal(t, 0, api.calls)
}
