// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package bio reads and writes .bio signal container files.
//
// A container holds heterogeneous multi-channel time series: each signal
// has its own sampling rate, channel count, and element type, alongside a
// shared timestamp column and an optional trigger column sampled at the
// container's base rate. All multi-byte fields on disk are little-endian.
package bio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Reserved entry names. User signals must not use either of them.
const (
	TimestampName = "timestamp"
	TriggerName   = "trigger"
)

var (
	// ErrMalformedHeader indicates a truncated or structurally
	// inconsistent header. The file is unusable.
	ErrMalformedHeader = errors.New("bio: malformed header")

	// ErrUnknownType indicates a type tag outside the supported set,
	// usually a format version mismatch or corruption.
	ErrUnknownType = errors.New("bio: unknown type tag")

	// ErrTruncatedPayload indicates fewer payload bytes than the header
	// declared, e.g. a file cut short by a crashed acquisition.
	ErrTruncatedPayload = errors.New("bio: truncated payload")

	// ErrInvalidSignal indicates a container that violates the encoder
	// contract. Nothing is written when it is returned.
	ErrInvalidSignal = errors.New("bio: invalid signal")
)

// SampleType identifies the element type of a signal matrix. The value
// is the one-byte tag stored in the file header.
type SampleType byte

const (
	Bool    SampleType = '?'
	Int8    SampleType = 'b'
	Uint8   SampleType = 'B'
	Int16   SampleType = 'h'
	Uint16  SampleType = 'H'
	Int32   SampleType = 'i'
	Uint32  SampleType = 'I'
	Int64   SampleType = 'q'
	Uint64  SampleType = 'Q'
	Float32 SampleType = 'f'
	Float64 SampleType = 'd'
)

// SampleKind is the broad interpretation category of a SampleType.
type SampleKind uint8

const (
	KindBool SampleKind = iota
	KindSigned
	KindUnsigned
	KindFloat
)

// ParseSampleType validates a tag byte read from a header. Tags outside
// the enumeration fail with ErrUnknownType; there is no default.
func ParseSampleType(tag byte) (SampleType, error) {
	switch t := SampleType(tag); t {
	case Bool, Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float32, Float64:
		return t, nil
	}
	return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownType, tag)
}

// Size returns the element width in bytes, or 0 for an invalid type.
func (t SampleType) Size() int {
	switch t {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Kind returns the interpretation category of the type.
func (t SampleType) Kind() SampleKind {
	switch t {
	case Bool:
		return KindBool
	case Int8, Int16, Int32, Int64:
		return KindSigned
	case Float32, Float64:
		return KindFloat
	}
	return KindUnsigned
}

// Tag returns the on-disk tag byte.
func (t SampleType) Tag() byte { return byte(t) }

func (t SampleType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("invalid(0x%02x)", byte(t))
}

func (t SampleType) valid() bool {
	return t.Size() != 0
}

// Element constrains the Go types that can populate a signal matrix,
// one per SampleType tag.
type Element interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// elemType maps a concrete element type to its SampleType.
func elemType[T Element]() SampleType {
	var z T
	switch any(z).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// Matrix is a dense two-dimensional sample block: rows are time samples,
// columns are channels. Elements are kept sample-major as little-endian
// bytes, so values written to a file and read back are identical bit for
// bit, including NaN payloads.
type Matrix struct {
	typ  SampleType
	rows int
	cols int
	data []byte
}

// NewMatrix returns a zero-filled matrix of the given shape.
func NewMatrix(typ SampleType, rows, cols int) (*Matrix, error) {
	if !typ.valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(typ))
	}
	if rows < 0 || cols < 1 {
		return nil, fmt.Errorf("bio: invalid matrix shape %dx%d", rows, cols)
	}
	return &Matrix{
		typ:  typ,
		rows: rows,
		cols: cols,
		data: make([]byte, rows*cols*typ.Size()),
	}, nil
}

// MatrixOf builds a matrix from row-major values: values[r*cols+c] is
// the sample of channel c at row r. len(values) must be a multiple of
// cols.
func MatrixOf[T Element](cols int, values []T) (*Matrix, error) {
	if cols < 1 {
		return nil, fmt.Errorf("bio: invalid channel count %d", cols)
	}
	if len(values)%cols != 0 {
		return nil, fmt.Errorf("bio: %d values do not fill whole rows of %d channels", len(values), cols)
	}
	typ := elemType[T]()
	m := &Matrix{
		typ:  typ,
		rows: len(values) / cols,
		cols: cols,
		data: make([]byte, len(values)*typ.Size()),
	}
	esize := typ.Size()
	for i, v := range values {
		putElement(m.data[i*esize:], v)
	}
	return m, nil
}

// Type returns the element type of the matrix.
func (m *Matrix) Type() SampleType { return m.typ }

// Rows returns the number of time samples.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of channels.
func (m *Matrix) Cols() int { return m.cols }

// At returns the element at (row, col) as its natural Go type.
func (m *Matrix) At(row, col int) any {
	b := m.data[m.offset(row, col):]
	switch m.typ {
	case Bool:
		return b[0] != 0
	case Int8:
		return int8(b[0])
	case Uint8:
		return b[0]
	case Int16:
		return int16(binary.LittleEndian.Uint16(b))
	case Uint16:
		return binary.LittleEndian.Uint16(b)
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case Uint32:
		return binary.LittleEndian.Uint32(b)
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case Uint64:
		return binary.LittleEndian.Uint64(b)
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

// Float64At returns the element at (row, col) converted to float64.
// Booleans convert to 0 and 1. Values outside float64's exact integer
// range lose precision, as with any such conversion.
func (m *Matrix) Float64At(row, col int) float64 {
	b := m.data[m.offset(row, col):]
	switch m.typ {
	case Bool:
		if b[0] != 0 {
			return 1
		}
		return 0
	case Int8:
		return float64(int8(b[0]))
	case Uint8:
		return float64(b[0])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

func (m *Matrix) offset(row, col int) int {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("bio: index (%d,%d) out of range for %dx%d matrix", row, col, m.rows, m.cols))
	}
	return (row*m.cols + col) * m.typ.Size()
}

// Append adds the rows of other to m. Element types and channel counts
// must match. Matrices obtained from a decoded container should be
// treated as read-only; Append is meant for matrices the caller built.
func (m *Matrix) Append(other *Matrix) error {
	if other == nil {
		return errors.New("bio: append of nil matrix")
	}
	if other.typ != m.typ {
		return fmt.Errorf("bio: append of %s rows to %s matrix", other.typ, m.typ)
	}
	if other.cols != m.cols {
		return fmt.Errorf("bio: append of %d-channel rows to %d-channel matrix", other.cols, m.cols)
	}
	m.data = append(m.data, other.data...)
	m.rows += other.rows
	return nil
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		typ:  m.typ,
		rows: m.rows,
		cols: m.cols,
		data: append([]byte(nil), m.data...),
	}
}

// Equal reports whether two matrices have the same type, shape, and
// element bytes. Comparison is bitwise, so NaN equals NaN.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil {
		return m == nil
	}
	if m.typ != other.typ || m.rows != other.rows || m.cols != other.cols {
		return false
	}
	return string(m.data) == string(other.data)
}

// Values returns a row-major copy of all elements. The requested type
// must match the matrix element type.
func Values[T Element](m *Matrix) ([]T, error) {
	if typ := elemType[T](); typ != m.typ {
		return nil, fmt.Errorf("bio: requested %s values from %s matrix", typ, m.typ)
	}
	out := make([]T, m.rows*m.cols)
	esize := m.typ.Size()
	for i := range out {
		out[i] = getElement[T](m.data[i*esize:])
	}
	return out, nil
}

// Column returns a copy of one channel. The requested type must match
// the matrix element type.
func Column[T Element](m *Matrix, col int) ([]T, error) {
	if typ := elemType[T](); typ != m.typ {
		return nil, fmt.Errorf("bio: requested %s column from %s matrix", typ, m.typ)
	}
	if col < 0 || col >= m.cols {
		return nil, fmt.Errorf("bio: column %d out of range for %d channels", col, m.cols)
	}
	out := make([]T, m.rows)
	esize := m.typ.Size()
	for row := 0; row < m.rows; row++ {
		out[row] = getElement[T](m.data[(row*m.cols+col)*esize:])
	}
	return out, nil
}

func putElement[T Element](b []byte, v T) {
	switch v := any(v).(type) {
	case bool:
		if v {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case int8:
		b[0] = byte(v)
	case uint8:
		b[0] = v
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case uint16:
		binary.LittleEndian.PutUint16(b, v)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case uint32:
		binary.LittleEndian.PutUint32(b, v)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	case uint64:
		binary.LittleEndian.PutUint64(b, v)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func getElement[T Element](b []byte) T {
	var z T
	switch p := any(&z).(type) {
	case *bool:
		*p = b[0] != 0
	case *int8:
		*p = int8(b[0])
	case *uint8:
		*p = b[0]
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b))
	case *uint16:
		*p = binary.LittleEndian.Uint16(b)
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return z
}

// Entry is one named series of a container: a sampling rate and a
// sample matrix. The reserved timestamp and trigger entries carry
// single-column float64 and uint32 matrices at the base rate.
type Entry struct {
	Name string
	Rate float32
	Data *Matrix
}

// Container is the decoded form of one signal file: an ordered set of
// named signals plus the shared timestamp column and, when recorded,
// the trigger column. Signals keep the order they were added in, which
// matches header order after a decode.
type Container struct {
	baseRate   float32
	timestamps []float64
	trigger    []uint32
	hasTrigger bool
	index      map[string]int
	signals    []Entry
}

// NewContainer builds a container around a timestamp column sampled at
// baseRate. An empty timestamp slice is allowed; the rate must be a
// positive finite value.
func NewContainer(baseRate float32, timestamps []float64) (*Container, error) {
	if !validRate(baseRate) {
		return nil, fmt.Errorf("bio: base sampling rate %v is not a positive finite value", baseRate)
	}
	return &Container{
		baseRate:   baseRate,
		timestamps: timestamps,
		index:      make(map[string]int),
	}, nil
}

// Add appends a named signal. Names must be non-empty and unique; the
// rate must be positive and finite; the matrix must be non-nil. A name
// that collides with a reserved entry is accepted here and rejected by
// Encode, which owns that part of the contract.
func (c *Container) Add(name string, rate float32, data *Matrix) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSignal)
	}
	if _, dup := c.index[name]; dup {
		return fmt.Errorf("%w: duplicate name %q", ErrInvalidSignal, name)
	}
	if !validRate(rate) {
		return fmt.Errorf("%w: %q sampling rate %v is not a positive finite value", ErrInvalidSignal, name, rate)
	}
	if data == nil {
		return fmt.Errorf("%w: %q has no data", ErrInvalidSignal, name)
	}
	c.index[name] = len(c.signals)
	c.signals = append(c.signals, Entry{Name: name, Rate: rate, Data: data})
	return nil
}

// SetTrigger attaches the trigger column. Its length must match the
// timestamp column.
func (c *Container) SetTrigger(values []uint32) error {
	if len(values) != len(c.timestamps) {
		return fmt.Errorf("bio: trigger length %d does not match %d timestamps", len(values), len(c.timestamps))
	}
	c.trigger = values
	c.hasTrigger = true
	return nil
}

// BaseRate returns the sampling rate of the timestamp and trigger
// columns.
func (c *Container) BaseRate() float32 { return c.baseRate }

// Timestamps returns the timestamp column. Callers must not modify it.
func (c *Container) Timestamps() []float64 { return c.timestamps }

// Trigger returns the trigger column and whether one is present.
func (c *Container) Trigger() ([]uint32, bool) { return c.trigger, c.hasTrigger }

// Len returns the number of user signals, excluding the reserved
// entries.
func (c *Container) Len() int { return len(c.signals) }

// Get returns the entry with the given name. The reserved names resolve
// to entries synthesized from the timestamp and trigger columns.
func (c *Container) Get(name string) (Entry, bool) {
	switch name {
	case TimestampName:
		return c.timestampEntry(), true
	case TriggerName:
		if !c.hasTrigger {
			return Entry{}, false
		}
		return c.triggerEntry(), true
	}
	i, ok := c.index[name]
	if !ok {
		return Entry{}, false
	}
	return c.signals[i], true
}

// Entries returns every entry in iteration order: timestamp first, user
// signals in the order they were added, trigger last when present.
func (c *Container) Entries() []Entry {
	out := make([]Entry, 0, len(c.signals)+2)
	out = append(out, c.timestampEntry())
	out = append(out, c.signals...)
	if c.hasTrigger {
		out = append(out, c.triggerEntry())
	}
	return out
}

func (c *Container) timestampEntry() Entry {
	m, _ := MatrixOf(1, c.timestamps)
	return Entry{Name: TimestampName, Rate: c.baseRate, Data: m}
}

func (c *Container) triggerEntry() Entry {
	m, _ := MatrixOf(1, c.trigger)
	return Entry{Name: TriggerName, Rate: c.baseRate, Data: m}
}

// Equal reports whether two containers hold the same entries in the
// same order with bit-identical values.
func (c *Container) Equal(other *Container) bool {
	if other == nil {
		return c == nil
	}
	if math.Float32bits(c.baseRate) != math.Float32bits(other.baseRate) {
		return false
	}
	if len(c.timestamps) != len(other.timestamps) {
		return false
	}
	for i, ts := range c.timestamps {
		if math.Float64bits(ts) != math.Float64bits(other.timestamps[i]) {
			return false
		}
	}
	if c.hasTrigger != other.hasTrigger || len(c.trigger) != len(other.trigger) {
		return false
	}
	for i, v := range c.trigger {
		if v != other.trigger[i] {
			return false
		}
	}
	if len(c.signals) != len(other.signals) {
		return false
	}
	for i, e := range c.signals {
		o := other.signals[i]
		if e.Name != o.Name || math.Float32bits(e.Rate) != math.Float32bits(o.Rate) || !e.Data.Equal(o.Data) {
			return false
		}
	}
	return true
}

func validRate(f float32) bool {
	return f > 0 && !math.IsInf(float64(f), 0)
}
