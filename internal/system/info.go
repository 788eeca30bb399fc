// Package system reports what an fbrs service knows about its own process,
// its host and the filesystem it browses.
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
)

// Collector gathers Info for one service instance
type Collector struct {
	home    string
	pid     int
	started time.Time
	now     func() time.Time
}

// NewCollector creates a collector for a service browsing home. The
// service start time is taken as the moment of the call.
func NewCollector(home string) *Collector {
	return &Collector{
		home:    home,
		pid:     os.Getpid(),
		started: time.Now(),
		now:     time.Now,
	}
}

// Collect reports the service, its host and the home filesystem
func (c *Collector) Collect(ctx context.Context) (*Info, error) {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	home, err := c.homeUsage(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	return &Info{
		Timestamp: now,
		Service: Service{
			PID:       c.pid,
			StartedAt: c.started,
			Uptime:    now.Sub(c.started).Round(time.Second).String(),
		},
		Host: Host{
			Hostname:   h.Hostname,
			OS:         h.OS,
			Platform:   h.Platform,
			KernelArch: h.KernelArch,
			BootTime:   time.Unix(int64(h.BootTime), 0).UTC(),
		},
		Home: *home,
	}, nil
}

func (c *Collector) homeUsage(ctx context.Context) (*Home, error) {
	usage, err := disk.UsageWithContext(ctx, c.home)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage for %s: %w", c.home, err)
	}

	home := &Home{
		Path:        c.home,
		Fstype:      usage.Fstype,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
		InodesTotal: usage.InodesTotal,
		InodesFree:  usage.InodesFree,
	}

	// Partition data is best effort; containers often hide the mount table.
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return home, nil
	}
	if p, ok := mountOf(c.home, parts); ok {
		home.Mountpoint = p.Mountpoint
		home.Device = p.Device
		home.ReadOnly = slices.Contains(p.Opts, "ro")
	}
	return home, nil
}

// mountOf returns the partition with the longest mountpoint containing path
func mountOf(path string, parts []disk.PartitionStat) (disk.PartitionStat, bool) {
	var best disk.PartitionStat
	found := false
	for _, p := range parts {
		if !within(path, p.Mountpoint) {
			continue
		}
		if !found || len(p.Mountpoint) > len(best.Mountpoint) {
			best, found = p, true
		}
	}
	return best, found
}

func within(path, mount string) bool {
	path, mount = filepath.Clean(path), filepath.Clean(mount)
	if mount == "/" || path == mount {
		return true
	}
	return strings.HasPrefix(path, mount+string(filepath.Separator))
}
