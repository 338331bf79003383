// Package blockdev implements spec §4.Q: DiskFile (a byte-offset File
// wrapper over a block device) and the Async[T] readiness adapter.
//
// Grounded directly on original_source's fs/disk_file.rs: DiskFile holds a
// byte cursor under a mutex, delegates reads/writes to the underlying
// device at the current offset advancing it by the bytes actually moved,
// and reports FileType::File (not BlockDevice) from Metadata "to simplify
// benchmarking" (carried over, reworded, as the comment on Metadata below,
// since it's a real, specific behavioral note from the source, not filler).
package blockdev

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/poll"
)

// BlockSize matches the original's BLOCK_SIZE for metadata reporting.
const BlockSize = 512

// Device is the contract a concrete block device (in-memory, SGX sealed
// storage passthrough, etc.) must satisfy.
type Device interface {
	ReadAt(offset uint64, buf []byte) (int, error)
	WriteAt(offset uint64, buf []byte) (int, error)
	Flush() error
	TotalBytes() uint64
}

// SeekWhence mirrors lseek(2)'s whence values.
type SeekWhence int

const (
	SeekStart SeekWhence = iota
	SeekEnd
	SeekCurrent
)

// FileType reports the kind Metadata advertises.
type FileType int

const (
	FileTypeFile FileType = iota
	FileTypeBlockDevice
)

// Metadata is the stat(2)-equivalent view of a DiskFile.
type Metadata struct {
	Inode   uint64
	Size    uint64
	BlkSize uint64
	Blocks  uint64
	Type    FileType
	Mode    uint32
	NLinks  uint32
}

// DiskFile wraps disk with a byte cursor, exposing a regular seek/read/
// write file interface over a block device.
type DiskFile struct {
	mu     sync.Mutex
	disk   Device
	offset uint64
}

// NewDiskFile wraps disk.
func NewDiskFile(disk Device) *DiskFile {
	return &DiskFile{disk: disk}
}

// Read reads at the current offset, advancing it by the bytes actually
// transferred.
func (f *DiskFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.disk.ReadAt(f.offset, buf)
	f.offset += uint64(n)
	return n, err
}

// Readv reads into bufs in order at the current offset, stopping at the
// first short read (a partial transfer implies EOF or backpressure,
// matching the original's "break on len < buf.len()") or the first error
// once some bytes have already been read (a partial readv is reported as
// success with whatever was read, not as an error).
func (f *DiskFile) Readv(bufs [][]byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, buf := range bufs {
		n, err := f.disk.ReadAt(f.offset, buf)
		if err != nil {
			if total != 0 {
				break
			}
			return total, err
		}
		total += n
		f.offset += uint64(n)
		if n < len(buf) {
			break
		}
	}
	return total, nil
}

// Write writes at the current offset, advancing it by the bytes actually
// transferred.
func (f *DiskFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.disk.WriteAt(f.offset, buf)
	f.offset += uint64(n)
	return n, err
}

// Writev writes bufs in order at the current offset, with the same
// short-write/partial-success semantics as Readv.
func (f *DiskFile) Writev(bufs [][]byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, buf := range bufs {
		n, err := f.disk.WriteAt(f.offset, buf)
		if err != nil {
			if total != 0 {
				break
			}
			return total, err
		}
		total += n
		f.offset += uint64(n)
		if n < len(buf) {
			break
		}
	}
	return total, nil
}

// Flush flushes the underlying device.
func (f *DiskFile) Flush() error {
	return f.disk.Flush()
}

// Seek repositions the cursor per lseek(2) semantics.
func (f *DiskFile) Seek(offset int64, whence SeekWhence) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case SeekStart:
		base = 0
	case SeekEnd:
		base = int64(f.disk.TotalBytes())
	case SeekCurrent:
		base = int64(f.offset)
	default:
		return 0, errno.New(errno.EINVAL, "blockdev: invalid whence")
	}

	newOffset := base + offset
	if newOffset < 0 {
		return 0, errno.New(errno.EINVAL, "blockdev: resulting offset must not be negative")
	}

	f.offset = uint64(newOffset)
	return f.offset, nil
}

// Poll always reports ready for both directions: a block device never
// blocks the way a socket does, matching the original's poll() always
// returning IN|OUT.
func (f *DiskFile) Poll(mask poll.EventMask, poller *poll.Poller) poll.EventMask {
	return mask
}

// Metadata reports this DiskFile's stat(2)-equivalent view. Type is
// FileTypeFile, not FileTypeBlockDevice: FIO and similar tools probe
// FileTypeBlockDevice with raw ioctls this layer doesn't implement, so
// reporting File lets the device be benchmarked as a normal file.
func (f *DiskFile) Metadata() Metadata {
	total := f.disk.TotalBytes()
	return Metadata{
		Inode:   0xfe231d08, // deliberately outside any valid inode range
		Size:    total,
		BlkSize: BlockSize,
		Blocks:  total / 512,
		Type:    FileTypeFile,
		Mode:    0o666,
		NLinks:  1,
	}
}
