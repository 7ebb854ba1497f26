// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package logfile holds the engine's local append-only page log (File) and
// the single-file destination the Log Page Replicator downloads into
// (Writer). File keeps a chain of data files, starting a new one when the
// current one would exceed its size bound, plus a fixed-width index file,
// one index entry per page, written with O_APPEND. Index entries record a
// (fileNum, endOffset) pair so a page's byte range is "previous entry's
// offset .. this entry's offset".
package logfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/emberstore/kernel/internal/xerrors"
	"github.com/emberstore/kernel/internal/xlog"
	"github.com/emberstore/kernel/internal/xmetrics"
)

// ErrClosed is returned by any operation on a File after Close.
var ErrClosed = fmt.Errorf("logfile: closed")

// ErrOutOfBounds is returned by Retrieve for a page index beyond the
// currently written range.
var ErrOutOfBounds = fmt.Errorf("logfile: page out of bounds")

type pageIndex struct {
	fileNum uint16
	offset  uint64
}

const indexEntrySize = 12

func (i *pageIndex) unmarshal(b []byte) {
	i.fileNum = binary.BigEndian.Uint16(b[:2])
	i.offset = binary.BigEndian.Uint64(b[2:10])
}

func (i *pageIndex) marshal() []byte {
	b := make([]byte, indexEntrySize)
	binary.BigEndian.PutUint16(b[:2], i.fileNum)
	binary.BigEndian.PutUint64(b[2:10], i.offset)
	return b
}

// File is a single chained log table: a data file (optionally
// snappy-compressed page blobs) and an index file (fixed-width offsets into
// the data file). Retrieve calls may run concurrently; Append takes the
// write lock, so appends are serialized.
type File struct {
	mu    sync.RWMutex
	head  *os.File
	files map[uint16]*os.File
	id    uint16

	index *os.File

	name           string
	path           string
	noCompression  bool
	maxContentSize uint64

	pages uint64
	bytes uint64

	log *xlog.Logger

	ReadMeter  xmetrics.Meter
	WriteMeter xmetrics.Meter
}

// Open opens (or creates) a log file table under dir, repairing any
// crash-induced inconsistency between the data and index files before
// returning.
func Open(dir, name string, maxContentSize uint64, noCompression bool) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	idxName := fmt.Sprintf("%s.cidx", name)
	if noCompression {
		idxName = fmt.Sprintf("%s.ridx", name)
	}
	idx, err := os.OpenFile(filepath.Join(dir, idxName), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	f := &File{
		index:          idx,
		files:          make(map[uint16]*os.File),
		name:           name,
		path:           dir,
		noCompression:  noCompression,
		maxContentSize: maxContentSize,
		log:            xlog.New("component", "logfile.File", "name", name),
	}
	if err := f.repair(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// repair cross-checks the head data file against the index file and
// truncates whichever ran ahead, so both agree on the same page boundary
// after an unclean shutdown. Grounded on freezer_table.go's repair pass.
func (f *File) repair() error {
	entry := make([]byte, indexEntrySize)

	stat, err := f.index.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		if _, err := f.index.Write(entry); err != nil {
			return err
		}
	}
	if overflow := stat.Size() % indexEntrySize; overflow != 0 {
		if err := f.index.Truncate(stat.Size() - overflow); err != nil {
			return err
		}
	}
	if stat, err = f.index.Stat(); err != nil {
		return err
	}
	indexSize := stat.Size()

	var last pageIndex
	if _, err := f.index.ReadAt(entry, indexSize-indexEntrySize); err != nil {
		return err
	}
	last.unmarshal(entry)

	f.head, err = f.getFile(last.fileNum, os.O_RDWR|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return err
	}
	f.id = last.fileNum
	stat, err = f.head.Stat()
	if err != nil {
		return err
	}
	haveSize := uint64(stat.Size())
	wantSize := last.offset

	for wantSize != haveSize {
		if wantSize < haveSize {
			f.log.Warn("truncating dangling head", "indexed", wantSize, "stored", haveSize)
			if err := f.head.Truncate(int64(wantSize)); err != nil {
				return err
			}
			haveSize = wantSize
			continue
		}
		f.log.Warn("truncating dangling index entry", "indexed", wantSize, "stored", haveSize)
		if err := f.index.Truncate(indexSize - indexEntrySize); err != nil {
			return err
		}
		indexSize -= indexEntrySize
		if _, err := f.index.ReadAt(entry, indexSize-indexEntrySize); err != nil {
			return err
		}
		var prior pageIndex
		prior.unmarshal(entry)
		if prior.fileNum != last.fileNum {
			f.head, err = f.getFile(prior.fileNum, os.O_RDWR|os.O_CREATE|os.O_APPEND)
			if err != nil {
				return err
			}
			if stat, err = f.head.Stat(); err != nil {
				return err
			}
			haveSize = uint64(stat.Size())
		}
		last = prior
		wantSize = last.offset
	}
	if err := f.index.Sync(); err != nil {
		return err
	}
	if err := f.head.Sync(); err != nil {
		return err
	}
	f.pages = uint64(indexSize/indexEntrySize - 1)
	f.bytes = haveSize
	f.log.Debug("log table opened", "pages", f.pages, "bytes", f.bytes)
	return nil
}

func (f *File) getFile(num uint16, flag int) (*os.File, error) {
	if existing, ok := f.files[num]; ok {
		return existing, nil
	}
	ext := "cdat"
	if f.noCompression {
		ext = "rdat"
	}
	fh, err := os.OpenFile(filepath.Join(f.path, fmt.Sprintf("%s.%d.%s", f.name, num, ext)), flag, 0644)
	if err != nil {
		return nil, err
	}
	f.files[num] = fh
	return fh, nil
}

// Append writes blob as the next page, matching page against the current
// page count as a write-ordering guard: a caller racing ahead or behind is
// an invariant breach (Append panics), not a recoverable error.
func (f *File) Append(page uint64, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index == nil || f.head == nil {
		return ErrClosed
	}
	if f.pages != page {
		panic(xerrors.Breach("logfile: out-of-order append: want page %d, have %d", f.pages, page))
	}
	if !f.noCompression {
		blob = snappy.Encode(nil, blob)
	}
	blen := uint64(len(blob))
	if f.bytes+blen > f.maxContentSize {
		nextID := f.id + 1
		fh, err := f.getFile(nextID, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		f.head = fh
		f.bytes = 0
		f.id = nextID
	}
	if _, err := f.head.Write(blob); err != nil {
		return err
	}
	f.bytes += blen
	idx := pageIndex{fileNum: f.id, offset: f.bytes}
	if _, err := f.index.Write(idx.marshal()); err != nil {
		return err
	}
	f.WriteMeter.Mark(int64(blen + indexEntrySize))
	f.pages++
	return nil
}

func (f *File) offsetsFor(page uint64) (*pageIndex, *pageIndex, error) {
	buf := make([]byte, indexEntrySize)
	var start, end pageIndex
	if _, err := f.index.ReadAt(buf, int64(page*indexEntrySize)); err != nil {
		return nil, nil, err
	}
	start.unmarshal(buf)
	if _, err := f.index.ReadAt(buf, int64((page+1)*indexEntrySize)); err != nil {
		return nil, nil, err
	}
	end.unmarshal(buf)
	if start.fileNum != end.fileNum {
		start = pageIndex{fileNum: end.fileNum, offset: 0}
	}
	return &start, &end, nil
}

// Retrieve reads back the page at the given index, decompressing it if the
// table was opened with compression enabled.
func (f *File) Retrieve(page uint64) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.index == nil || f.head == nil {
		return nil, ErrClosed
	}
	if page >= f.pages {
		return nil, ErrOutOfBounds
	}
	start, end, err := f.offsetsFor(page)
	if err != nil {
		return nil, err
	}
	dataFile, err := f.getFile(start.fileNum, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, end.offset-start.offset)
	if _, err := dataFile.ReadAt(blob, int64(start.offset)); err != nil {
		return nil, err
	}
	f.ReadMeter.Mark(int64(len(blob) + 2*indexEntrySize))
	if f.noCompression {
		return blob, nil
	}
	return snappy.Decode(nil, blob)
}

// Pages returns the number of pages currently durable in the table.
func (f *File) Pages() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pages
}

// Sync flushes the data and index files to stable storage.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.index.Sync(); err != nil {
		return err
	}
	return f.head.Sync()
}

// Close releases every open file descriptor.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	if f.index != nil {
		if err := f.index.Close(); err != nil {
			errs = append(errs, err)
		}
		f.index = nil
	}
	for _, fh := range f.files {
		if err := fh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.head = nil
	if len(errs) != 0 {
		return fmt.Errorf("logfile: close errors: %v", errs)
	}
	return nil
}
