package descriptor

import (
	"io/fs"
	"os"
)

// FS is the set of read-only filesystem primitives the engine relies on
type FS interface {
	Lstat(name string) (fs.FileInfo, error)
	// ReadDirNames returns entry names in directory order, without "." and ".."
	ReadDirNames(name string) ([]string, error)
	ReadFile(name string) ([]byte, error)
}

// OSFS is the FS backed by the host operating system
type OSFS struct{}

func (OSFS) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

func (OSFS) ReadDirNames(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.Readdirnames(-1)
}

func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}
