//go:build !linux

package descriptor

import "io/fs"

func sysStat(fs.FileInfo) *SysStat {
	return nil
}
