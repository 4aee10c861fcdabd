//go:build linux || darwin

package filemgr

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the file read-only. The partition runtime never mutates
// column data files in place through this path; writers go through the
// header/mask rewrite path instead, so PROT_READ + MAP_SHARED is enough.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
