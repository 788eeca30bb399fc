package descriptor

import (
	"io/fs"
	"time"
)

// Kind is the type of filesystem object a descriptor refers to
type Kind int

const (
	// KindUnknown marks entries that were not stat'ed
	KindUnknown Kind = iota
	KindFile
	KindDirectory
	KindBlockDevice
	KindCharDevice
	KindSymlink
	KindFIFO
	KindSocket
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindFile:        "file",
	KindDirectory:   "directory",
	KindBlockDevice: "blockDevice",
	KindCharDevice:  "characterDevice",
	KindSymlink:     "symbolicLink",
	KindFIFO:        "fifo",
	KindSocket:      "socket",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// KindOf maps the type bits of a file mode to a Kind
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDirectory
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode&fs.ModeNamedPipe != 0:
		return KindFIFO
	case mode&fs.ModeSocket != 0:
		return KindSocket
	case mode&fs.ModeCharDevice != 0:
		return KindCharDevice
	case mode&fs.ModeDevice != 0:
		return KindBlockDevice
	}
	return KindUnknown
}

// Options controls how a path is described. The zero value describes
// with every entry stat'ed and both synthetic entries present.
type Options struct {
	Path           string
	IgnoreDotFiles bool
	IgnoreUpDir    bool
	IgnoreCurDir   bool
	// StatEach defaults to true when nil
	StatEach *bool
}

// Bool returns a pointer to v, for Options.StatEach
func Bool(v bool) *bool {
	return &v
}

// ShouldStatEach reports whether directory entries get stat metadata
func (o Options) ShouldStatEach() bool {
	return o.StatEach == nil || *o.StatEach
}

// WithDefaults returns a copy of o with an empty path replaced by home
func (o Options) WithDefaults(home string) Options {
	if o.Path == "" {
		o.Path = home
	}
	return o
}

// Stat is the metadata captured from a single lstat call
type Stat struct {
	Mode       uint32    `json:"mode"`
	ModeString string    `json:"modeString"`
	Size       int64     `json:"size"`
	Mtime      time.Time `json:"mtime"`
	*SysStat
}

// SysStat holds platform fields that are only available on some systems
type SysStat struct {
	Dev     uint64    `json:"dev"`
	Ino     uint64    `json:"ino"`
	Nlink   uint64    `json:"nlink"`
	UID     uint32    `json:"uid"`
	GID     uint32    `json:"gid"`
	Rdev    uint64    `json:"rdev"`
	Blksize int64     `json:"blksize"`
	Blocks  int64     `json:"blocks"`
	Atime   time.Time `json:"atime"`
	Ctime   time.Time `json:"ctime"`
}

// Descriptor describes one path. At most one of Data and Entries is set:
// Data for regular files, Entries for directories.
type Descriptor struct {
	Path     string
	Filename string
	Kind     Kind
	MIME     string
	Stat     *Stat
	Data     []byte
	Entries  []*Descriptor
}

// HasStat reports whether the descriptor carries stat metadata
func (d *Descriptor) HasStat() bool {
	return d.Stat != nil
}

// Entry returns the first directory entry with the given filename
func (d *Descriptor) Entry(name string) (*Descriptor, bool) {
	for _, e := range d.Entries {
		if e.Filename == name {
			return e, true
		}
	}
	return nil, false
}
