//go:build linux

package descriptor

import (
	"io/fs"
	"syscall"
	"time"
)

func sysStat(info fs.FileInfo) *SysStat {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	return &SysStat{
		Dev:     uint64(st.Dev),
		Ino:     uint64(st.Ino),
		Nlink:   uint64(st.Nlink),
		UID:     st.Uid,
		GID:     st.Gid,
		Rdev:    uint64(st.Rdev),
		Blksize: int64(st.Blksize),
		Blocks:  int64(st.Blocks),
		Atime:   time.Unix(st.Atim.Unix()),
		Ctime:   time.Unix(st.Ctim.Unix()),
	}
}
