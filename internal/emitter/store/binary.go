package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/banshee-data/decode/internal/emitter"
	"github.com/banshee-data/decode/internal/units"
)

const (
	// MagicNumber identifies binary emitter files (ASCII: "DCEM").
	MagicNumber = 0x4443454D
	// Version is the current binary format version.
	Version = 1

	dtypeF64 = 1
	dtypeI64 = 2
)

// FileHeader is the fixed 40-byte header of a binary emitter file. Checksum
// is the CRC32 of the uncompressed body.
type FileHeader struct {
	Magic       uint32
	Version     uint32
	Compression Compression
	Padding1    [3]byte
	BodySize    uint64
	PayloadSize uint64
	Checksum    uint32
	Padding2    [4]byte
}

// SaveBinary writes s as a binary tensor container.
func SaveBinary(path string, s *emitter.Set, c Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteBinary(f, s, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadBinary reads a binary tensor container.
func LoadBinary(path string) (*emitter.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadBinary(f)
}

// WriteBinary encodes s to w.
func WriteBinary(w io.Writer, s *emitter.Set, c Compression) error {
	body := encodeBody(s)
	payload, compressed, err := compress(body, c)
	if err != nil {
		return fmt.Errorf("compress body: %w", err)
	}
	if !compressed {
		c = CompressionNone
	}

	hdr := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: c,
		BodySize:    uint64(len(body)),
		PayloadSize: uint64(len(payload)),
		Checksum:    crc32.ChecksumIEEE(body),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadBinary decodes a set from r.
func ReadBinary(r io.Reader) (*emitter.Set, error) {
	var hdr FileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrFormat, err)
	}
	if hdr.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: invalid magic number %#x", ErrFormat, hdr.Magic)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, hdr.Version)
	}

	payload, err := io.ReadAll(io.LimitReader(r, int64(hdr.PayloadSize)))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFormat, err)
	}
	if uint64(len(payload)) != hdr.PayloadSize {
		return nil, fmt.Errorf("%w: truncated body, %d of %d bytes", ErrFormat, len(payload), hdr.PayloadSize)
	}
	body, err := decompress(payload, hdr.Compression, int(hdr.BodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s body: %w", ErrFormat, hdr.Compression, err)
	}
	if sum := crc32.ChecksumIEEE(body); sum != hdr.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: expected %#x, got %#x", ErrFormat, hdr.Checksum, sum)
	}
	return decodeBody(body)
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func encodeBody(s *emitter.Set) []byte {
	var buf bytes.Buffer
	m := s.Meta()
	writeString(&buf, string(m.XYUnit))
	if m.PxSize != nil {
		buf.WriteByte(1)
		_ = binary.Write(&buf, binary.LittleEndian, m.PxSize[:])
	} else {
		buf.WriteByte(0)
	}

	f := s.Fields()
	used := s.UsedFields()
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(used)))
	for _, name := range used {
		v, _ := f.Get(name)
		writeString(&buf, name)
		switch t := v.(type) {
		case []float64:
			writeTensorHeader(&buf, dtypeF64, len(t), 1)
			_ = binary.Write(&buf, binary.LittleEndian, t)
		case []int64:
			writeTensorHeader(&buf, dtypeI64, len(t), 1)
			_ = binary.Write(&buf, binary.LittleEndian, t)
		case [][]float64:
			writeTensorHeader(&buf, dtypeF64, len(t), 3)
			flat := make([]float64, 0, 3*len(t))
			for _, row := range t {
				flat = append(flat, row...)
			}
			_ = binary.Write(&buf, binary.LittleEndian, flat)
		}
	}
	return buf.Bytes()
}

func writeTensorHeader(buf *bytes.Buffer, dtype uint8, rows, cols int) {
	buf.WriteByte(dtype)
	buf.WriteByte(uint8(cols))
	_ = binary.Write(buf, binary.LittleEndian, uint64(rows))
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeBody(body []byte) (*emitter.Set, error) {
	r := bytes.NewReader(body)
	fail := func(what string, err error) error {
		return fmt.Errorf("%w: %s: %w", ErrFormat, what, err)
	}

	unit, err := readString(r)
	if err != nil {
		return nil, fail("xy_unit", err)
	}
	xyUnit, err := units.Parse(unit)
	if err != nil {
		return nil, fail("xy_unit", err)
	}
	opts := []emitter.Option{emitter.WithXYUnit(xyUnit)}

	hasPx, err := r.ReadByte()
	if err != nil {
		return nil, fail("px_size", err)
	}
	if hasPx == 1 {
		var px [2]float64
		if err := binary.Read(r, binary.LittleEndian, px[:]); err != nil {
			return nil, fail("px_size", err)
		}
		opts = append(opts, emitter.WithPxSize(px[0], px[1]))
	}

	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fail("tensor count", err)
	}
	var f emitter.Fields
	for i := 0; i < int(count); i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fail("tensor name", err)
		}
		v, err := readTensor(r)
		if err != nil {
			return nil, fail("tensor "+name, err)
		}
		if err := f.Set(name, v); err != nil {
			return nil, err
		}
	}
	return emitter.New(f, opts...)
}

func readTensor(r *bytes.Reader) (any, error) {
	dtype, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	cols, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var rows uint64
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, err
	}
	if cols != 1 && cols != 3 {
		return nil, fmt.Errorf("unsupported tensor width %d", cols)
	}
	n := rows * uint64(cols)
	if n*8 > uint64(r.Len()) {
		return nil, fmt.Errorf("tensor of %d elements exceeds remaining %d bytes", n, r.Len())
	}

	switch {
	case dtype == dtypeI64 && cols == 1:
		v := make([]int64, n)
		err := binary.Read(r, binary.LittleEndian, v)
		return v, err
	case dtype == dtypeF64 && cols == 1:
		v := make([]float64, n)
		err := binary.Read(r, binary.LittleEndian, v)
		return v, err
	case dtype == dtypeF64 && cols == 3:
		flat := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
			return nil, err
		}
		v := make([][]float64, rows)
		for i := range v {
			v[i] = flat[3*i : 3*i+3 : 3*i+3]
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported dtype %d with width %d", dtype, cols)
}
