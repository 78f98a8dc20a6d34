// Package util holds small helpers shared by the index and sequence
// packages: read-only memory mapping, little-endian integer blobs, and
// file checksums.
package util

import (
	"encoding/binary"
	"io/ioutil"
	"os"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"
)

// Mapping is a read-only view of a file, memory-mapped when possible.
type Mapping struct {
	Data   []byte
	mapped bool
}

// MapFile maps the named file read-only.  Empty files yield an empty,
// unmapped view, since mmap of length 0 fails.
func MapFile(name string) (*Mapping, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return &Mapping{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()),
		unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		// Fall back to a plain read, e.g. for filesystems without mmap.
		buf, rerr := ioutil.ReadFile(name)
		if rerr != nil {
			return nil, errors.E(err, "util: can't map file "+name)
		}
		return &Mapping{Data: buf}, nil
	}
	return &Mapping{Data: data, mapped: true}, nil
}

// Close releases the mapping.
func (m *Mapping) Close() error {
	if !m.mapped || m.Data == nil {
		return nil
	}
	data := m.Data
	m.Data = nil
	m.mapped = false
	return unix.Munmap(data)
}

// Checksum returns the seahash of the data, as recorded in index
// manifests.
func Checksum(data []byte) uint64 {
	return seahash.Sum64(data)
}

// WriteUint64s writes values little-endian to the named file.
func WriteUint64s(name string, values []uint64) error {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return ioutil.WriteFile(name, buf, 0666)
}

// Uint64s interprets data as little-endian 64-bit values.
func Uint64s(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, errors.New("util: truncated integer file")
	}
	out := make([]uint64, len(data)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return out, nil
}
