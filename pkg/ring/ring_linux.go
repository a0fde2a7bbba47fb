//go:build linux

package ring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapImpl backs a Buffer with a single physical region, anonymous and
// memory-file-backed, mapped twice consecutively into one virtual window.
//
// Construction follows the classic "magic ring buffer" recipe: reserve a
// PROT_NONE region of 2*size, then overlay two MAP_FIXED|MAP_SHARED
// mappings of the same memfd onto the first and second halves of that
// reservation. memfd_create supplies the physical extent since the ring
// is pure scratch space, never reopened or shared across processes.
type mmapImpl struct {
	region []byte // length 2*sz, backed by fd at both halves
	fd     int
	sz     uint64
}

func newImpl(reqSize uint64) (impl, error) {
	pageSize := uint64(unix.Getpagesize())

	sz := reqSize
	if rem := sz % pageSize; rem != 0 {
		sz += pageSize - rem
	}

	fd, err := unix.MemfdCreate("fortsort-ring", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(sz)); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	// Reserve a 2*sz virtual region with no backing, so we control exactly
	// where the two real mappings land.
	region, err := unix.Mmap(-1, 0, int(2*sz), unix.PROT_NONE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("reserve region: %w", err)
	}

	base := uintptr(unsafe.Pointer(&region[0]))

	if err := mmapFixed(base, sz, fd); err != nil {
		_ = unix.Munmap(region)
		_ = unix.Close(fd)

		return nil, fmt.Errorf("map first image: %w", err)
	}

	if err := mmapFixed(base+uintptr(sz), sz, fd); err != nil {
		_ = unix.Munmap(region)
		_ = unix.Close(fd)

		return nil, fmt.Errorf("map second image: %w", err)
	}

	return &mmapImpl{region: region, fd: fd, sz: sz}, nil
}

// mmapFixed maps fd's full extent, read-write and shared, at the fixed
// address addr. unix.Mmap does not expose MAP_FIXED with an explicit
// address, so this drops to the raw syscall.
func mmapFixed(addr uintptr, length uint64, fd int) error {
	ret, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_FIXED|unix.MAP_SHARED),
		uintptr(fd),
		0,
	)
	if errno != 0 {
		return errno
	}

	if ret != addr {
		return fmt.Errorf("mmap returned %#x, expected fixed address %#x", ret, addr)
	}

	return nil
}

func (m *mmapImpl) base() []byte    { return m.region }
func (m *mmapImpl) size() uint64    { return m.sz }
func (m *mmapImpl) mirror(_, _ uint64) {}

func (m *mmapImpl) Close() error {
	err := unix.Munmap(m.region)
	if cerr := unix.Close(m.fd); err == nil {
		err = cerr
	}

	return err
}
