// Package npy reads and writes NumPy .npy arrays of uint8 and int64.
//
// Reading goes through github.com/sbinet/npyio. Writing emits the version 1.0
// header directly because the shapes stored here are N-dimensional views over
// flat slices, which npyio can only express for 1-d slices and 2-d matrices.
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npy"

	"github.com/menta2k/tako/internal/utils"
)

const (
	descrUint8 = "|u1"
	descrInt64 = "<i8"

	headerAlign = 64
)

var magic = []byte("\x93NUMPY")

// Len returns the number of elements described by shape.
func Len(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// WriteUint8 encodes data with the given shape.
func WriteUint8(w io.Writer, shape []int, data []uint8) error {
	if Len(shape) != len(data) {
		return fmt.Errorf("npy: shape %v does not hold %d elements", shape, len(data))
	}
	if err := writeHeader(w, descrUint8, shape); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// WriteInt64 encodes data with the given shape in little-endian order.
func WriteInt64(w io.Writer, shape []int, data []int64) error {
	if Len(shape) != len(data) {
		return fmt.Errorf("npy: shape %v does not hold %d elements", shape, len(data))
	}
	if err := writeHeader(w, descrInt64, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

func writeHeader(w io.Writer, descr string, shape []int) error {
	dims := make([]string, len(shape))
	for k, d := range shape {
		dims[k] = strconv.Itoa(d)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, tuple)

	// magic + version + uint16 header length + dict + padding + newline
	pre := len(magic) + 2 + 2
	pad := headerAlign - (pre+len(dict)+1)%headerAlign
	if pad == headerAlign {
		pad = 0
	}
	header := dict + strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	buf.WriteString(header)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadUint8 decodes a uint8 array and returns its shape and samples.
func ReadUint8(r io.Reader) ([]int, []uint8, error) {
	nr, err := open(r, descrUint8)
	if err != nil {
		return nil, nil, err
	}
	shape := nr.Header.Descr.Shape
	data := make([]uint8, Len(shape))
	if err := nr.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("npy: failed to read uint8 data: %w", err)
	}
	return shape, data, nil
}

// ReadInt64 decodes an int64 array and returns its shape and values.
func ReadInt64(r io.Reader) ([]int, []int64, error) {
	nr, err := open(r, descrInt64)
	if err != nil {
		return nil, nil, err
	}
	shape := nr.Header.Descr.Shape
	data := make([]int64, Len(shape))
	if err := nr.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("npy: failed to read int64 data: %w", err)
	}
	return shape, data, nil
}

func open(r io.Reader, descr string) (*npy.Reader, error) {
	nr, err := npy.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("npy: failed to read header: %w", err)
	}
	if nr.Header.Descr.Fortran {
		return nil, fmt.Errorf("npy: fortran ordered arrays are not supported")
	}
	if got := nr.Header.Descr.Type; !sameType(got, descr) {
		return nil, fmt.Errorf("npy: unexpected dtype %q, want %q", got, descr)
	}
	return nr, nil
}

// sameType ignores the byte-order mark of single byte types
func sameType(got, want string) bool {
	if got == want {
		return true
	}
	return len(got) == 3 && len(want) == 3 && got[1:] == "u1" && want[1:] == "u1"
}

// SaveUint8 atomically replaces path with an encoded uint8 array.
func SaveUint8(path string, shape []int, data []uint8) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteUint8(w, shape, data)
	})
}

// SaveInt64 atomically replaces path with an encoded int64 array.
func SaveInt64(path string, shape []int, data []int64) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteInt64(w, shape, data)
	})
}

// LoadUint8 reads a uint8 array from path.
func LoadUint8(path string) ([]int, []uint8, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadUint8(bufio.NewReader(f))
}

// LoadInt64 reads an int64 array from path.
func LoadInt64(path string) ([]int, []int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadInt64(bufio.NewReader(f))
}
