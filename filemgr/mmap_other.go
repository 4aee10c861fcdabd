//go:build !linux && !darwin

package filemgr

import "os"

// mmapFile has no portable implementation outside unix/darwin; callers
// fall back to buffered reads.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	return nil, nil
}

func munmapFile(data []byte) error {
	return nil
}
