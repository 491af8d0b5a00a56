// SPDX-License-Identifier: Apache-2.0

package markets

func disk(gib float64) *float64 { return &gib }

// instanceTypes maps EC2 instance types to their resources. Values match
// the published EC2 shapes for the families our pools run on.
var instanceTypes = map[string]InstanceResources{
	"t2.nano":    {CPUs: 1, MemGiB: 0.5},
	"t2.micro":   {CPUs: 1, MemGiB: 1},
	"t2.small":   {CPUs: 1, MemGiB: 2},
	"t2.medium":  {CPUs: 2, MemGiB: 4},
	"t2.large":   {CPUs: 2, MemGiB: 8},
	"t2.xlarge":  {CPUs: 4, MemGiB: 16},
	"t2.2xlarge": {CPUs: 8, MemGiB: 32},

	"m6a.large":    {CPUs: 2, MemGiB: 8},
	"m6a.xlarge":   {CPUs: 4, MemGiB: 16},
	"m6a.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m6a.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m6a.8xlarge":  {CPUs: 32, MemGiB: 128},
	"m6a.12xlarge": {CPUs: 48, MemGiB: 192},
	"m6a.16xlarge": {CPUs: 64, MemGiB: 256},
	"m6a.24xlarge": {CPUs: 96, MemGiB: 384},
	"m6a.32xlarge": {CPUs: 128, MemGiB: 512},
	"m6a.48xlarge": {CPUs: 192, MemGiB: 768},

	"m6i.large":    {CPUs: 2, MemGiB: 8},
	"m6i.xlarge":   {CPUs: 4, MemGiB: 16},
	"m6i.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m6i.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m6i.8xlarge":  {CPUs: 32, MemGiB: 128},
	"m6i.12xlarge": {CPUs: 48, MemGiB: 192},
	"m6i.16xlarge": {CPUs: 64, MemGiB: 256},
	"m6i.24xlarge": {CPUs: 96, MemGiB: 384},
	"m6i.32xlarge": {CPUs: 128, MemGiB: 512},

	"m6id.large":    {CPUs: 2, MemGiB: 8, DiskGiB: disk(118)},
	"m6id.xlarge":   {CPUs: 4, MemGiB: 16, DiskGiB: disk(237)},
	"m6id.2xlarge":  {CPUs: 8, MemGiB: 32, DiskGiB: disk(474)},
	"m6id.4xlarge":  {CPUs: 16, MemGiB: 64, DiskGiB: disk(950)},
	"m6id.8xlarge":  {CPUs: 32, MemGiB: 128, DiskGiB: disk(1900)},
	"m6id.12xlarge": {CPUs: 48, MemGiB: 192, DiskGiB: disk(2850)},
	"m6id.16xlarge": {CPUs: 64, MemGiB: 256, DiskGiB: disk(3800)},
	"m6id.24xlarge": {CPUs: 96, MemGiB: 384, DiskGiB: disk(5700)},
	"m6id.32xlarge": {CPUs: 128, MemGiB: 512, DiskGiB: disk(7600)},

	"m5.large":    {CPUs: 2, MemGiB: 8},
	"m5.xlarge":   {CPUs: 4, MemGiB: 16},
	"m5.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m5.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m5.8xlarge":  {CPUs: 32, MemGiB: 128},
	"m5.12xlarge": {CPUs: 48, MemGiB: 192},
	"m5.16xlarge": {CPUs: 64, MemGiB: 256},
	"m5.24xlarge": {CPUs: 96, MemGiB: 384},

	"m5a.large":    {CPUs: 2, MemGiB: 8},
	"m5a.xlarge":   {CPUs: 4, MemGiB: 16},
	"m5a.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m5a.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m5a.8xlarge":  {CPUs: 32, MemGiB: 128},
	"m5a.12xlarge": {CPUs: 48, MemGiB: 192},
	"m5a.16xlarge": {CPUs: 64, MemGiB: 256},
	"m5a.24xlarge": {CPUs: 96, MemGiB: 384},

	"m5ad.large":    {CPUs: 2, MemGiB: 8, DiskGiB: disk(75)},
	"m5ad.xlarge":   {CPUs: 4, MemGiB: 16, DiskGiB: disk(150)},
	"m5ad.2xlarge":  {CPUs: 8, MemGiB: 32, DiskGiB: disk(300)},
	"m5ad.4xlarge":  {CPUs: 16, MemGiB: 64, DiskGiB: disk(600)},
	"m5ad.8xlarge":  {CPUs: 32, MemGiB: 128, DiskGiB: disk(1200)},
	"m5ad.12xlarge": {CPUs: 48, MemGiB: 192, DiskGiB: disk(1800)},
	"m5ad.16xlarge": {CPUs: 64, MemGiB: 256, DiskGiB: disk(2400)},
	"m5ad.24xlarge": {CPUs: 96, MemGiB: 384, DiskGiB: disk(3600)},

	"m5d.large":    {CPUs: 2, MemGiB: 8, DiskGiB: disk(75)},
	"m5d.xlarge":   {CPUs: 4, MemGiB: 16, DiskGiB: disk(150)},
	"m5d.2xlarge":  {CPUs: 8, MemGiB: 32, DiskGiB: disk(300)},
	"m5d.4xlarge":  {CPUs: 16, MemGiB: 64, DiskGiB: disk(600)},
	"m5d.8xlarge":  {CPUs: 32, MemGiB: 128, DiskGiB: disk(1200)},
	"m5d.12xlarge": {CPUs: 48, MemGiB: 192, DiskGiB: disk(1800)},
	"m5d.16xlarge": {CPUs: 64, MemGiB: 256, DiskGiB: disk(2400)},
	"m5d.24xlarge": {CPUs: 96, MemGiB: 384, DiskGiB: disk(3600)},

	"m5dn.large":    {CPUs: 2, MemGiB: 8, DiskGiB: disk(75)},
	"m5dn.xlarge":   {CPUs: 4, MemGiB: 16, DiskGiB: disk(150)},
	"m5dn.2xlarge":  {CPUs: 8, MemGiB: 32, DiskGiB: disk(300)},
	"m5dn.4xlarge":  {CPUs: 16, MemGiB: 64, DiskGiB: disk(600)},
	"m5dn.8xlarge":  {CPUs: 32, MemGiB: 128, DiskGiB: disk(1200)},
	"m5dn.12xlarge": {CPUs: 48, MemGiB: 192, DiskGiB: disk(1800)},
	"m5dn.16xlarge": {CPUs: 64, MemGiB: 256, DiskGiB: disk(2400)},
	"m5dn.24xlarge": {CPUs: 96, MemGiB: 384, DiskGiB: disk(3600)},

	"m5n.large":    {CPUs: 2, MemGiB: 8},
	"m5n.xlarge":   {CPUs: 4, MemGiB: 16},
	"m5n.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m5n.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m5n.8xlarge":  {CPUs: 32, MemGiB: 128},
	"m5n.12xlarge": {CPUs: 48, MemGiB: 192},
	"m5n.16xlarge": {CPUs: 64, MemGiB: 256},
	"m5n.24xlarge": {CPUs: 96, MemGiB: 384},

	"m5zn.large":    {CPUs: 2, MemGiB: 8},
	"m5zn.xlarge":   {CPUs: 4, MemGiB: 16},
	"m5zn.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m5zn.3xlarge":  {CPUs: 12, MemGiB: 48},
	"m5zn.6xlarge":  {CPUs: 24, MemGiB: 96},
	"m5zn.12xlarge": {CPUs: 48, MemGiB: 192},

	"m4.large":    {CPUs: 2, MemGiB: 8},
	"m4.xlarge":   {CPUs: 4, MemGiB: 16},
	"m4.2xlarge":  {CPUs: 8, MemGiB: 32},
	"m4.4xlarge":  {CPUs: 16, MemGiB: 64},
	"m4.10xlarge": {CPUs: 40, MemGiB: 160},
	"m4.16xlarge": {CPUs: 64, MemGiB: 256},

	"m3.medium":  {CPUs: 1, MemGiB: 3.75, DiskGiB: disk(4)},
	"m3.large":   {CPUs: 2, MemGiB: 7.5, DiskGiB: disk(32)},
	"m3.xlarge":  {CPUs: 4, MemGiB: 15, DiskGiB: disk(80)},
	"m3.2xlarge": {CPUs: 8, MemGiB: 30, DiskGiB: disk(160)},

	"c6i.large":    {CPUs: 2, MemGiB: 4},
	"c6i.xlarge":   {CPUs: 4, MemGiB: 8},
	"c6i.2xlarge":  {CPUs: 8, MemGiB: 16},
	"c6i.4xlarge":  {CPUs: 16, MemGiB: 32},
	"c6i.8xlarge":  {CPUs: 32, MemGiB: 64},
	"c6i.12xlarge": {CPUs: 48, MemGiB: 96},
	"c6i.16xlarge": {CPUs: 64, MemGiB: 128},
	"c6i.24xlarge": {CPUs: 96, MemGiB: 192},
	"c6i.32xlarge": {CPUs: 128, MemGiB: 256},

	"c6id.large":    {CPUs: 2, MemGiB: 4, DiskGiB: disk(118)},
	"c6id.xlarge":   {CPUs: 4, MemGiB: 8, DiskGiB: disk(237)},
	"c6id.2xlarge":  {CPUs: 8, MemGiB: 16, DiskGiB: disk(474)},
	"c6id.4xlarge":  {CPUs: 16, MemGiB: 32, DiskGiB: disk(950)},
	"c6id.8xlarge":  {CPUs: 32, MemGiB: 64, DiskGiB: disk(1900)},
	"c6id.12xlarge": {CPUs: 48, MemGiB: 96, DiskGiB: disk(2850)},
	"c6id.16xlarge": {CPUs: 64, MemGiB: 128, DiskGiB: disk(3800)},
	"c6id.24xlarge": {CPUs: 96, MemGiB: 192, DiskGiB: disk(5700)},
	"c6id.32xlarge": {CPUs: 128, MemGiB: 256, DiskGiB: disk(7600)},

	"c5.large":    {CPUs: 2, MemGiB: 4},
	"c5.xlarge":   {CPUs: 4, MemGiB: 8},
	"c5.2xlarge":  {CPUs: 8, MemGiB: 16},
	"c5.4xlarge":  {CPUs: 16, MemGiB: 32},
	"c5.9xlarge":  {CPUs: 36, MemGiB: 72},
	"c5.12xlarge": {CPUs: 48, MemGiB: 96},
	"c5.18xlarge": {CPUs: 72, MemGiB: 144},
	"c5.24xlarge": {CPUs: 96, MemGiB: 192},

	"c5a.large":    {CPUs: 2, MemGiB: 4},
	"c5a.xlarge":   {CPUs: 4, MemGiB: 8},
	"c5a.2xlarge":  {CPUs: 8, MemGiB: 16},
	"c5a.4xlarge":  {CPUs: 16, MemGiB: 32},
	"c5a.8xlarge":  {CPUs: 32, MemGiB: 64},
	"c5a.12xlarge": {CPUs: 48, MemGiB: 96},
	"c5a.16xlarge": {CPUs: 64, MemGiB: 128},
	"c5a.24xlarge": {CPUs: 96, MemGiB: 192},

	"c5ad.large":    {CPUs: 2, MemGiB: 4, DiskGiB: disk(75)},
	"c5ad.xlarge":   {CPUs: 4, MemGiB: 8, DiskGiB: disk(150)},
	"c5ad.2xlarge":  {CPUs: 8, MemGiB: 16, DiskGiB: disk(300)},
	"c5ad.4xlarge":  {CPUs: 16, MemGiB: 32, DiskGiB: disk(600)},
	"c5ad.8xlarge":  {CPUs: 32, MemGiB: 64, DiskGiB: disk(1200)},
	"c5ad.12xlarge": {CPUs: 48, MemGiB: 96, DiskGiB: disk(1800)},
	"c5ad.16xlarge": {CPUs: 64, MemGiB: 128, DiskGiB: disk(2400)},
	"c5ad.24xlarge": {CPUs: 96, MemGiB: 192, DiskGiB: disk(3800)},

	"c5d.large":    {CPUs: 2, MemGiB: 4, DiskGiB: disk(50)},
	"c5d.xlarge":   {CPUs: 4, MemGiB: 8, DiskGiB: disk(100)},
	"c5d.2xlarge":  {CPUs: 8, MemGiB: 16, DiskGiB: disk(200)},
	"c5d.4xlarge":  {CPUs: 16, MemGiB: 32, DiskGiB: disk(400)},
	"c5d.9xlarge":  {CPUs: 36, MemGiB: 72, DiskGiB: disk(900)},
	"c5d.12xlarge": {CPUs: 48, MemGiB: 96, DiskGiB: disk(1800)},
	"c5d.18xlarge": {CPUs: 72, MemGiB: 144, DiskGiB: disk(1800)},
	"c5d.24xlarge": {CPUs: 96, MemGiB: 192, DiskGiB: disk(3600)},

	"c5n.large":    {CPUs: 2, MemGiB: 4},
	"c5n.xlarge":   {CPUs: 4, MemGiB: 8},
	"c5n.2xlarge":  {CPUs: 8, MemGiB: 16},
	"c5n.4xlarge":  {CPUs: 16, MemGiB: 32},
	"c5n.9xlarge":  {CPUs: 36, MemGiB: 72},
	"c5n.12xlarge": {CPUs: 48, MemGiB: 96},
	"c5n.18xlarge": {CPUs: 72, MemGiB: 144},
	"c5n.24xlarge": {CPUs: 96, MemGiB: 192},

	"c4.large":   {CPUs: 2, MemGiB: 3.75},
	"c4.xlarge":  {CPUs: 4, MemGiB: 7.5},
	"c4.2xlarge": {CPUs: 8, MemGiB: 15},
	"c4.4xlarge": {CPUs: 16, MemGiB: 30},
	"c4.8xlarge": {CPUs: 36, MemGiB: 60},

	"c3.large":   {CPUs: 2, MemGiB: 3.75, DiskGiB: disk(32)},
	"c3.xlarge":  {CPUs: 4, MemGiB: 7.5, DiskGiB: disk(80)},
	"c3.2xlarge": {CPUs: 8, MemGiB: 15, DiskGiB: disk(160)},
	"c3.4xlarge": {CPUs: 16, MemGiB: 30, DiskGiB: disk(320)},
	"c3.8xlarge": {CPUs: 32, MemGiB: 60, DiskGiB: disk(640)},

	"x1.16xlarge": {CPUs: 64, MemGiB: 976, DiskGiB: disk(1920)},
	"x1.32xlarge": {CPUs: 128, MemGiB: 1952, DiskGiB: disk(3840)},

	"r6i.large":    {CPUs: 2, MemGiB: 16},
	"r6i.xlarge":   {CPUs: 4, MemGiB: 32},
	"r6i.2xlarge":  {CPUs: 8, MemGiB: 64},
	"r6i.4xlarge":  {CPUs: 16, MemGiB: 128},
	"r6i.8xlarge":  {CPUs: 32, MemGiB: 256},
	"r6i.12xlarge": {CPUs: 48, MemGiB: 384},
	"r6i.16xlarge": {CPUs: 64, MemGiB: 512},
	"r6i.24xlarge": {CPUs: 96, MemGiB: 768},
	"r6i.32xlarge": {CPUs: 128, MemGiB: 1024},

	"r6id.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(118)},
	"r6id.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(237)},
	"r6id.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(474)},
	"r6id.4xlarge":  {CPUs: 16, MemGiB: 128, DiskGiB: disk(950)},
	"r6id.8xlarge":  {CPUs: 32, MemGiB: 256, DiskGiB: disk(1900)},
	"r6id.12xlarge": {CPUs: 48, MemGiB: 384, DiskGiB: disk(2850)},
	"r6id.16xlarge": {CPUs: 64, MemGiB: 512, DiskGiB: disk(3800)},
	"r6id.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(5700)},
	"r6id.32xlarge": {CPUs: 128, MemGiB: 1024, DiskGiB: disk(7600)},

	"r5.large":    {CPUs: 2, MemGiB: 16},
	"r5.xlarge":   {CPUs: 4, MemGiB: 32},
	"r5.2xlarge":  {CPUs: 8, MemGiB: 64},
	"r5.4xlarge":  {CPUs: 16, MemGiB: 128},
	"r5.8xlarge":  {CPUs: 32, MemGiB: 256},
	"r5.12xlarge": {CPUs: 48, MemGiB: 384},
	"r5.16xlarge": {CPUs: 64, MemGiB: 512},
	"r5.24xlarge": {CPUs: 96, MemGiB: 768},

	"r5a.large":    {CPUs: 2, MemGiB: 16},
	"r5a.xlarge":   {CPUs: 4, MemGiB: 32},
	"r5a.2xlarge":  {CPUs: 8, MemGiB: 64},
	"r5a.4xlarge":  {CPUs: 16, MemGiB: 128},
	"r5a.8xlarge":  {CPUs: 32, MemGiB: 256},
	"r5a.12xlarge": {CPUs: 48, MemGiB: 384},
	"r5a.16xlarge": {CPUs: 64, MemGiB: 512},
	"r5a.24xlarge": {CPUs: 96, MemGiB: 768},

	"r5b.large":    {CPUs: 2, MemGiB: 16},
	"r5b.xlarge":   {CPUs: 4, MemGiB: 32},
	"r5b.2xlarge":  {CPUs: 8, MemGiB: 64},
	"r5b.4xlarge":  {CPUs: 16, MemGiB: 128},
	"r5b.8xlarge":  {CPUs: 32, MemGiB: 256},
	"r5b.12xlarge": {CPUs: 48, MemGiB: 384},
	"r5b.16xlarge": {CPUs: 64, MemGiB: 512},
	"r5b.24xlarge": {CPUs: 96, MemGiB: 768},

	"r5ad.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(75)},
	"r5ad.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(150)},
	"r5ad.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(300)},
	"r5ad.4xlarge":  {CPUs: 16, MemGiB: 128, DiskGiB: disk(600)},
	"r5ad.8xlarge":  {CPUs: 32, MemGiB: 256, DiskGiB: disk(1200)},
	"r5ad.12xlarge": {CPUs: 48, MemGiB: 384, DiskGiB: disk(1800)},
	"r5ad.16xlarge": {CPUs: 64, MemGiB: 512, DiskGiB: disk(2400)},
	"r5ad.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(3600)},

	"r5d.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(75)},
	"r5d.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(150)},
	"r5d.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(300)},
	"r5d.4xlarge":  {CPUs: 16, MemGiB: 128, DiskGiB: disk(600)},
	"r5d.8xlarge":  {CPUs: 32, MemGiB: 256, DiskGiB: disk(1200)},
	"r5d.12xlarge": {CPUs: 48, MemGiB: 384, DiskGiB: disk(1800)},
	"r5d.16xlarge": {CPUs: 64, MemGiB: 512, DiskGiB: disk(2400)},
	"r5d.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(3600)},

	"r5dn.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(75)},
	"r5dn.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(150)},
	"r5dn.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(300)},
	"r5dn.4xlarge":  {CPUs: 16, MemGiB: 128, DiskGiB: disk(600)},
	"r5dn.8xlarge":  {CPUs: 32, MemGiB: 256, DiskGiB: disk(1200)},
	"r5dn.12xlarge": {CPUs: 48, MemGiB: 384, DiskGiB: disk(1800)},
	"r5dn.16xlarge": {CPUs: 64, MemGiB: 512, DiskGiB: disk(2400)},
	"r5dn.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(3600)},

	"r5n.large":    {CPUs: 2, MemGiB: 16},
	"r5n.xlarge":   {CPUs: 4, MemGiB: 32},
	"r5n.2xlarge":  {CPUs: 8, MemGiB: 64},
	"r5n.4xlarge":  {CPUs: 16, MemGiB: 128},
	"r5n.8xlarge":  {CPUs: 32, MemGiB: 256},
	"r5n.12xlarge": {CPUs: 48, MemGiB: 384},
	"r5n.16xlarge": {CPUs: 64, MemGiB: 512},
	"r5n.24xlarge": {CPUs: 96, MemGiB: 768},

	"r4.large":    {CPUs: 2, MemGiB: 15.25},
	"r4.xlarge":   {CPUs: 4, MemGiB: 30.5},
	"r4.2xlarge":  {CPUs: 8, MemGiB: 61},
	"r4.4xlarge":  {CPUs: 16, MemGiB: 122},
	"r4.8xlarge":  {CPUs: 32, MemGiB: 244},
	"r4.16xlarge": {CPUs: 64, MemGiB: 488},

	"r3.large":   {CPUs: 2, MemGiB: 15.25, DiskGiB: disk(32)},
	"r3.xlarge":  {CPUs: 4, MemGiB: 30.5, DiskGiB: disk(80)},
	"r3.2xlarge": {CPUs: 8, MemGiB: 61, DiskGiB: disk(160)},
	"r3.4xlarge": {CPUs: 16, MemGiB: 122, DiskGiB: disk(320)},
	"r3.8xlarge": {CPUs: 32, MemGiB: 244, DiskGiB: disk(320)},

	"i2.xlarge":  {CPUs: 4, MemGiB: 30.5, DiskGiB: disk(800)},
	"i2.2xlarge": {CPUs: 8, MemGiB: 61, DiskGiB: disk(1600)},
	"i2.4xlarge": {CPUs: 16, MemGiB: 122, DiskGiB: disk(3200)},
	"i2.8xlarge": {CPUs: 32, MemGiB: 244, DiskGiB: disk(6400)},

	"i3.large":    {CPUs: 2, MemGiB: 15.25, DiskGiB: disk(0.475)},
	"i3.xlarge":   {CPUs: 4, MemGiB: 30.5, DiskGiB: disk(0.95)},
	"i3.2xlarge":  {CPUs: 8, MemGiB: 61, DiskGiB: disk(1.9)},
	"i3.4xlarge":  {CPUs: 16, MemGiB: 122, DiskGiB: disk(3.8)},
	"i3.8xlarge":  {CPUs: 32, MemGiB: 244, DiskGiB: disk(7.6)},
	"i3.16xlarge": {CPUs: 64, MemGiB: 488, DiskGiB: disk(15.2)},

	"i3en.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(1250)},
	"i3en.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(2500)},
	"i3en.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(5000)},
	"i3en.3xlarge":  {CPUs: 12, MemGiB: 96, DiskGiB: disk(7500)},
	"i3en.6xlarge":  {CPUs: 24, MemGiB: 192, DiskGiB: disk(15000)},
	"i3en.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(60000)},

	"d2.xlarge":  {CPUs: 4, MemGiB: 30.5, DiskGiB: disk(6000)},
	"d2.2xlarge": {CPUs: 8, MemGiB: 61, DiskGiB: disk(12000)},
	"d2.4xlarge": {CPUs: 16, MemGiB: 122, DiskGiB: disk(24000)},
	"d2.8xlarge": {CPUs: 36, MemGiB: 244, DiskGiB: disk(48000)},

	"z1d.large":    {CPUs: 2, MemGiB: 16, DiskGiB: disk(75)},
	"z1d.xlarge":   {CPUs: 4, MemGiB: 32, DiskGiB: disk(150)},
	"z1d.2xlarge":  {CPUs: 8, MemGiB: 64, DiskGiB: disk(300)},
	"z1d.3xlarge":  {CPUs: 12, MemGiB: 96, DiskGiB: disk(450)},
	"z1d.6xlarge":  {CPUs: 24, MemGiB: 192, DiskGiB: disk(900)},
	"z1d.12xlarge": {CPUs: 48, MemGiB: 384, DiskGiB: disk(1800)},

	"g2.2xlarge": {CPUs: 8, MemGiB: 15, DiskGiB: disk(60), GPUs: 1},
	"g2.8xlarge": {CPUs: 32, MemGiB: 60, DiskGiB: disk(240), GPUs: 4},

	"g3.4xlarge":  {CPUs: 16, MemGiB: 122, GPUs: 1},
	"g3.8xlarge":  {CPUs: 32, MemGiB: 244, GPUs: 2},
	"g3.16xlarge": {CPUs: 64, MemGiB: 488, GPUs: 4},
	"g3s.xlarge":  {CPUs: 4, MemGiB: 30.5, GPUs: 1},

	"p2.xlarge":   {CPUs: 4, MemGiB: 61, GPUs: 1},
	"p2.8xlarge":  {CPUs: 32, MemGiB: 488, GPUs: 8},
	"p2.16xlarge": {CPUs: 64, MemGiB: 768, GPUs: 16},

	"p3.2xlarge":    {CPUs: 8, MemGiB: 61, GPUs: 1},
	"p3.8xlarge":    {CPUs: 32, MemGiB: 244, GPUs: 4},
	"p3.16xlarge":   {CPUs: 64, MemGiB: 488, GPUs: 8},
	"p3dn.24xlarge": {CPUs: 96, MemGiB: 768, DiskGiB: disk(1800), GPUs: 8},
}

// knownAZs lists the zones our clusters run in. The empty zone is allowed
// for markets without placement information.
var knownAZs = map[string]bool{
	"":           true,
	"us-east-1a": true,
	"us-east-1b": true,
	"us-east-1c": true,
	"us-west-1a": true,
	"us-west-1b": true,
	"us-west-1c": true,
	"us-west-2a": true,
	"us-west-2b": true,
	"us-west-2c": true,
}
