// Package config implements spec §6's init-config file: a small JSON
// document enumerating kernel stack size, kernel heap size, max thread
// count, user-space size, and a metadata block (product id, svn,
// debuggable), with byte sizes written as B/KB/MB/GB/TB-suffixed strings.
//
// The unit-suffix parsing discipline is grounded on the teacher's
// floater/unitsnanos.go: explicit, overflow-checked bounds on every
// numeric conversion rather than a bare strconv.ParseInt/multiply (style
// only — floater itself parses rational time units, not byte sizes, so it
// isn't imported; see DESIGN.md).
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joeycumines/libos-core/internal/errno"
)

// ByteSize is a quantity of bytes parsed from a unit-suffixed JSON string
// (e.g. "256MB") and marshaled back the same way.
type ByteSize uint64

const (
	unitB  uint64 = 1
	unitKB        = unitB << 10
	unitMB        = unitKB << 10
	unitGB        = unitMB << 10
	unitTB        = unitGB << 10
)

var suffixes = []struct {
	suffix string
	scale  uint64
}{
	// Longest suffixes first so "KB" isn't matched by the plain "B" entry
	// before "KB" gets a chance.
	{"TB", unitTB},
	{"GB", unitGB},
	{"MB", unitMB},
	{"KB", unitKB},
	{"B", unitB},
}

// ParseByteSize parses a string like "256MB" or "4096B" into a byte count,
// bounds-checking the multiply against uint64 overflow rather than letting
// it wrap silently.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	for _, u := range suffixes {
		if !strings.HasSuffix(trimmed, u.suffix) {
			continue
		}
		numPart := strings.TrimSpace(strings.TrimSuffix(trimmed, u.suffix))
		if numPart == "" {
			return 0, errno.New(errno.EINVAL, fmt.Sprintf("config: missing numeric part in %q", s))
		}
		n, err := strconv.ParseUint(numPart, 10, 64)
		if err != nil {
			return 0, errno.Wrap(errno.EINVAL, fmt.Sprintf("config: invalid numeric part in %q", s), err)
		}
		if n != 0 && n > (^uint64(0))/u.scale {
			return 0, errno.New(errno.ERANGE, fmt.Sprintf("config: %q overflows uint64 bytes", s))
		}
		return ByteSize(n * u.scale), nil
	}
	return 0, errno.New(errno.EINVAL, fmt.Sprintf("config: unrecognized unit suffix in %q (want B/KB/MB/GB/TB)", s))
}

// String renders the largest suffix that divides the value evenly, falling
// back to plain bytes.
func (b ByteSize) String() string {
	v := uint64(b)
	for _, u := range suffixes {
		if u.scale > 1 && v != 0 && v%u.scale == 0 {
			return fmt.Sprintf("%d%s", v/u.scale, u.suffix)
		}
	}
	return fmt.Sprintf("%dB", v)
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Metadata is the small product-identity block persisted alongside sizing.
type Metadata struct {
	ProductID  uint32 `json:"product_id"`
	SVN        uint32 `json:"svn"`
	Debuggable bool   `json:"debuggable"`
}

// Init is the full init-config document, per spec §6.
type Init struct {
	KernelStackSize ByteSize `json:"kernel_stack_size"`
	KernelHeapSize  ByteSize `json:"kernel_heap_size"`
	MaxThreadCount  uint32   `json:"max_thread_count"`
	UserSpaceSize   ByteSize `json:"user_space_size"`
	Metadata        Metadata `json:"metadata"`
}

// Parse decodes an Init document from data.
func Parse(data []byte) (*Init, error) {
	var cfg Init
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errno.Wrap(errno.EINVAL, "config: malformed init config", err)
	}
	if cfg.MaxThreadCount == 0 {
		return nil, errno.New(errno.EINVAL, "config: max_thread_count must be nonzero")
	}
	if cfg.KernelStackSize == 0 || cfg.KernelHeapSize == 0 || cfg.UserSpaceSize == 0 {
		return nil, errno.New(errno.EINVAL, "config: size fields must be nonzero")
	}
	return &cfg, nil
}

// Marshal encodes cfg back to JSON, for round-tripping or writing a
// generated default config.
func Marshal(cfg *Init) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}
