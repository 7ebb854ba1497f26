package logfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// VerifyTail mmaps the current head data file and confirms that the bytes at
// [offset, offset+len(want)) match want, without doing a second disk read
// through the os.File path. offset is relative to the head data file, and
// want is compared with the bytes as stored (compressed, if the table was
// opened with compression).
func (f *File) VerifyTail(offset uint64, want []byte) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.head == nil {
		return false, ErrClosed
	}
	ext := "cdat"
	if f.noCompression {
		ext = "rdat"
	}
	path := filepath.Join(f.path, fmt.Sprintf("%s.%d.%s", f.name, f.id, ext))
	fh, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return false, err
	}
	defer fh.Close()

	m, err := mmap.Map(fh, mmap.RDONLY, 0)
	if err != nil {
		return false, err
	}
	defer m.Unmap()

	end := offset + uint64(len(want))
	if end > uint64(len(m)) {
		return false, nil
	}
	return bytes.Equal(m[offset:end], want), nil
}
