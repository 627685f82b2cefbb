package tifflike

import (
	"fmt"
	"io"
	"math"
	"sync"
)

// itemState is the publish-once materialization state of an Item's value.
// Transitions: offset -> materializing -> ready. A mutex guards the
// transition, and every read takes that mutex, including reads made after
// the state is ready.
type itemState int

const (
	stateOffset itemState = iota
	stateMaterializing
	stateReady
)

// Item is one TIFF directory entry: a tag, its declared type and count,
// and either an inline value or the file offset of an out-of-line value.
// Out-of-line values are not read until first accessed.
type Item struct {
	Tag   uint16
	Type  uint16
	Count uint64

	inline bool
	raw    []byte // inline bytes, set only when inline
	offset int64  // out-of-line file offset, valid when !inline

	mu    sync.Mutex
	state itemState

	uints   []uint64
	ints    []int64
	doubles []float64
	buf     []byte // null-terminated / ASCII / UNDEFINED view

	err error
}

// elementSize returns typeSize(Type) for one element, or an error for unknown
// types (spec.md §4.2 "unknown type -> fail").
func (it *Item) elementSize() (int, error) {
	sz := typeSize(it.Type)
	if sz == 0 {
		return 0, fmt.Errorf("tifflike: tag %d: unknown type %d", it.Tag, it.Type)
	}
	return sz, nil
}

// ensureMaterialized reads the out-of-line value (if any) and populates the
// typed views. Safe for concurrent callers: only the first caller does the
// I/O, the rest block on the mutex and then observe the ready state.
func (it *Item) ensureMaterialized(r io.ReaderAt, bo ByteOrder) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.state == stateReady {
		return it.err
	}
	it.state = stateMaterializing

	data := it.raw
	if !it.inline {
		sz, err := it.elementSize()
		if err != nil {
			it.err = err
			it.state = stateReady
			return err
		}
		total := it.Count * uint64(sz)
		if sz != 0 && total/uint64(sz) != it.Count {
			it.err = fmt.Errorf("tifflike: tag %d: count overflow", it.Tag)
			it.state = stateReady
			return it.err
		}
		if it.offset <= 0 {
			it.err = fmt.Errorf("tifflike: tag %d: non-positive offset %d", it.Tag, it.offset)
			it.state = stateReady
			return it.err
		}
		buf := make([]byte, total)
		if _, err := r.ReadAt(buf, it.offset); err != nil {
			it.err = fmt.Errorf("tifflike: tag %d: reading %d bytes at %d: %w", it.Tag, total, it.offset, err)
			it.state = stateReady
			return it.err
		}
		data = buf
	}

	if err := it.decode(data, bo); err != nil {
		it.err = err
	}
	it.state = stateReady
	return it.err
}

// decode byte-swaps data into the typed views appropriate for Type.
func (it *Item) decode(data []byte, bo ByteOrder) error {
	n := int(it.Count)
	switch it.Type {
	case TypeByte, TypeSByte, TypeUndefined:
		it.buf = data
		it.uints = make([]uint64, n)
		it.ints = make([]int64, n)
		for i := 0; i < n && i < len(data); i++ {
			it.uints[i] = uint64(data[i])
			it.ints[i] = int64(int8(data[i]))
		}
	case TypeASCII:
		it.buf = data
	case TypeShort:
		it.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			it.uints[i] = uint64(bo.Uint16(data[i*2:]))
		}
	case TypeSShort:
		it.ints = make([]int64, n)
		for i := 0; i < n; i++ {
			it.ints[i] = int64(int16(bo.Uint16(data[i*2:])))
		}
	case TypeLong, TypeIFD:
		it.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			it.uints[i] = uint64(bo.Uint32(data[i*4:]))
		}
	case TypeSLong:
		it.ints = make([]int64, n)
		for i := 0; i < n; i++ {
			it.ints[i] = int64(int32(bo.Uint32(data[i*4:])))
		}
	case TypeLong8, TypeIFD8:
		it.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			it.uints[i] = bo.Uint64(data[i*8:])
		}
	case TypeSLong8:
		it.ints = make([]int64, n)
		for i := 0; i < n; i++ {
			it.ints[i] = int64(bo.Uint64(data[i*8:]))
		}
	case TypeFloat:
		it.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			it.doubles[i] = float64(math.Float32frombits(bo.Uint32(data[i*4:])))
		}
	case TypeDouble:
		it.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			it.doubles[i] = math.Float64frombits(bo.Uint64(data[i*8:]))
		}
	case TypeRational:
		it.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			num := bo.Uint32(data[i*8:])
			den := bo.Uint32(data[i*8+4:])
			if den == 0 {
				it.doubles[i] = 0
			} else {
				it.doubles[i] = float64(num) / float64(den)
			}
		}
	case TypeSRational:
		it.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			num := int32(bo.Uint32(data[i*8:]))
			den := int32(bo.Uint32(data[i*8+4:]))
			if den == 0 {
				it.doubles[i] = 0
			} else {
				it.doubles[i] = float64(num) / float64(den)
			}
		}
	default:
		return fmt.Errorf("tifflike: tag %d: unknown type %d", it.Tag, it.Type)
	}
	return nil
}

// Uint64s returns the item's value as an unsigned 64-bit array, lazily
// materializing it on first call.
func (it *Item) Uint64s(r io.ReaderAt, bo ByteOrder) ([]uint64, error) {
	if err := it.ensureMaterialized(r, bo); err != nil {
		return nil, err
	}
	return it.uints, nil
}

// Int64s returns the item's value as a signed 64-bit array.
func (it *Item) Int64s(r io.ReaderAt, bo ByteOrder) ([]int64, error) {
	if err := it.ensureMaterialized(r, bo); err != nil {
		return nil, err
	}
	return it.ints, nil
}

// Doubles returns the item's value as a float64 array, converting RATIONAL
// types via numerator/denominator division per spec.md §4.2.
func (it *Item) Doubles(r io.ReaderAt, bo ByteOrder) ([]float64, error) {
	if err := it.ensureMaterialized(r, bo); err != nil {
		return nil, err
	}
	if it.doubles != nil {
		return it.doubles, nil
	}
	// Integral types can still be read as doubles.
	out := make([]float64, len(it.uints))
	for i, v := range it.uints {
		out[i] = float64(v)
	}
	return out, nil
}

// Buffer returns the item's value as a raw byte buffer (for ASCII,
// UNDEFINED, or BYTE typed tags).
func (it *Item) Buffer(r io.ReaderAt, bo ByteOrder) ([]byte, error) {
	if err := it.ensureMaterialized(r, bo); err != nil {
		return nil, err
	}
	return it.buf, nil
}

// String returns an ASCII item's value with any trailing NUL stripped.
func (it *Item) String(r io.ReaderAt, bo ByteOrder) (string, error) {
	buf, err := it.Buffer(r, bo)
	if err != nil {
		return "", err
	}
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}

// Uint32 returns the first element of the item's value as a uint32.
func (it *Item) Uint32(r io.ReaderAt, bo ByteOrder) (uint32, error) {
	vals, err := it.Uint64s(r, bo)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("tifflike: tag %d: no value", it.Tag)
	}
	return uint32(vals[0]), nil
}
