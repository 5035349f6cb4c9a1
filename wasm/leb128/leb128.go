// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leb128 implements the variable-length integer encoding used
// throughout the WebAssembly binary format. Writers emit the shortest
// form; readers reject over-long encodings and values that exceed the
// declared bit width.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when an encoding is longer than the target
// width allows or sets bits beyond it.
var ErrOverflow = errors.New("leb128: integer representation too long")

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadVarUint32 reads an unsigned integer of up to 32 bits.
func ReadVarUint32(r io.Reader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0xf0 != 0 {
			return 0, ErrOverflow
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

// ReadVarUint64 reads an unsigned integer of up to 64 bits.
func ReadVarUint64(r io.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift == 63 && b&0xfe != 0 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, ErrOverflow
		}
	}
}

// ReadVarint32 reads a signed integer of up to 32 bits.
func ReadVarint32(r io.Reader) (int32, error) {
	var result int32
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift == 28 {
			// The final byte carries 4 value bits; the rest must be
			// sign extension.
			if b&0x80 != 0 {
				return 0, ErrOverflow
			}
			if high := b & 0x78; high != 0 && high != 0x78 {
				return 0, ErrOverflow
			}
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

// ReadVarint64 reads a signed integer of up to 64 bits.
func ReadVarint64(r io.Reader) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift == 63 {
			if b&0x80 != 0 {
				return 0, ErrOverflow
			}
			if high := b & 0x7e; high != 0 && high != 0x7e {
				return 0, ErrOverflow
			}
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 70 {
			return 0, ErrOverflow
		}
	}
}

// GetVarUint32 decodes from a byte slice and reports the number of
// bytes consumed.
func GetVarUint32(buf []byte) (uint32, int, error) {
	r := sliceReader{buf: buf}
	v, err := ReadVarUint32(&r)
	return v, r.pos, err
}

// GetVarint64 decodes from a byte slice and reports the number of
// bytes consumed.
func GetVarint64(buf []byte) (int64, int, error) {
	r := sliceReader{buf: buf}
	v, err := ReadVarint64(&r)
	return v, r.pos, err
}

type sliceReader struct {
	buf []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *sliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// WriteVarUint32 writes an unsigned integer in the shortest form and
// returns the number of bytes written.
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	return WriteVarUint64(w, uint64(v))
}

// WriteVarUint64 writes an unsigned integer in the shortest form and
// returns the number of bytes written.
func WriteVarUint64(w io.Writer, v uint64) (int, error) {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	return w.Write(buf[:n])
}

// WriteVarint32 writes a signed integer in the shortest form.
func WriteVarint32(w io.Writer, v int32) (int, error) {
	return WriteVarint64(w, int64(v))
}

// WriteVarint64 writes a signed integer in the shortest form and
// returns the number of bytes written.
func WriteVarint64(w io.Writer, v int64) (int, error) {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		buf[n] = b
		n++
		if done {
			break
		}
	}
	return w.Write(buf[:n])
}
