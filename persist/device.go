package persist

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// eraseByte is what a freshly erased flash cell reads as: all ones.
const eraseByte = 0xFF

// Device is the minimal raw-flash primitive the store needs: a block-
// erasable, AND-only-write address space. Erasing a block sets every byte
// to 0xFF; writing ANDs the new bytes into the existing ones, so a write
// can only clear bits, never set them — the property §4.1 and §9 rely on
// to make segment invalidation a single write and segment validation
// require a prior erase.
type Device interface {
	BlockSize() int
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	EraseBlock(blockIndex int) error
	Close() error
}

// ErrOutOfRange is returned when an access falls outside the device.
var ErrOutOfRange = errors.New("persist: access out of device range")

// MemDevice is an in-memory Device, used for tests and for hosts without
// a raw flash device (the store degrades to best-effort durability).
type MemDevice struct {
	blockSize int
	data      []byte
}

// NewMemDevice allocates an in-memory device of the given size, erased.
func NewMemDevice(size int, blockSize int) *MemDevice {
	d := &MemDevice{blockSize: blockSize, data: make([]byte, size)}
	for i := range d.data {
		d.data[i] = eraseByte
	}
	return d
}

func (d *MemDevice) BlockSize() int { return d.blockSize }
func (d *MemDevice) Size() int64    { return int64(len(d.data)) }

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, ErrOutOfRange
	}
	copy(p, d.data[off:off+int64(len(p))])
	return len(p), nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, ErrOutOfRange
	}
	for i, b := range p {
		d.data[off+int64(i)] &= b
	}
	return len(p), nil
}

func (d *MemDevice) EraseBlock(idx int) error {
	start := idx * d.blockSize
	end := start + d.blockSize
	if start < 0 || end > len(d.data) {
		return ErrOutOfRange
	}
	for i := start; i < end; i++ {
		d.data[i] = eraseByte
	}
	return nil
}

func (d *MemDevice) Close() error { return nil }

// FileDevice backs the store with a regular file, memory-mapped with
// golang.org/x/sys/unix so reads are page-cache-backed and writes are
// flushed with Msync. OpenFileDevice truncates the file to the requested
// size, and EraseBlock writes 0xFF bytes through the mapping; no flash
// erase command is issued. AND-only write semantics are emulated in
// software: a regular file does not behave like flash, so WriteAt ANDs
// explicitly to keep the same invariant.
type FileDevice struct {
	f         *os.File
	mapping   []byte
	blockSize int
}

// OpenFileDevice opens (creating if necessary) path as the backing store,
// truncating/extending it to size bytes and mapping it MAP_SHARED.
func OpenFileDevice(path string, size int, blockSize int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	mapping, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, mapping: mapping, blockSize: blockSize}, nil
}

func (d *FileDevice) BlockSize() int { return d.blockSize }
func (d *FileDevice) Size() int64    { return int64(len(d.mapping)) }

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.mapping)) {
		return 0, ErrOutOfRange
	}
	copy(p, d.mapping[off:off+int64(len(p))])
	return len(p), nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.mapping)) {
		return 0, ErrOutOfRange
	}
	for i, b := range p {
		d.mapping[off+int64(i)] &= b
	}
	return len(p), unix.Msync(d.mapping, unix.MS_SYNC)
}

func (d *FileDevice) EraseBlock(idx int) error {
	start := idx * d.blockSize
	end := start + d.blockSize
	if start < 0 || end > len(d.mapping) {
		return ErrOutOfRange
	}
	for i := start; i < end; i++ {
		d.mapping[i] = eraseByte
	}
	return unix.Msync(d.mapping, unix.MS_SYNC)
}

func (d *FileDevice) Close() error {
	if err := unix.Munmap(d.mapping); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
