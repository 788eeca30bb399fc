package system

import "time"

// Info is the payload served by the info endpoint
type Info struct {
	Timestamp time.Time `json:"timestamp"`
	Service   Service   `json:"service"`
	Host      Host      `json:"host"`
	Home      Home      `json:"home"`
}

// Service describes the running fbrs process
type Service struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

// Host identifies the machine the service runs on
type Host struct {
	Hostname   string    `json:"hostname"`
	OS         string    `json:"os"`
	Platform   string    `json:"platform"`
	KernelArch string    `json:"kernel_arch"`
	BootTime   time.Time `json:"boot_time"`
}

// Home is the filesystem holding the browsed home directory
type Home struct {
	Path        string  `json:"path"`
	Mountpoint  string  `json:"mountpoint,omitempty"`
	Device      string  `json:"device,omitempty"`
	Fstype      string  `json:"fstype"`
	ReadOnly    bool    `json:"read_only"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
	InodesTotal uint64  `json:"inodes_total"`
	InodesFree  uint64  `json:"inodes_free"`
}
