package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"

	"github.com/sha1n/snipsearch/internal/domain"
)

const (
	indexMagic   = "SNIPIDX\x00"
	indexVersion = uint32(1)
	indexHeader  = len(indexMagic) + 3*4

	npyMagic     = "\x93NUMPY"
	npyAlignment = 64
)

var npyHeaderPattern = regexp.MustCompile(
	`^\{\s*'descr':\s*'([^']*)',\s*'fortran_order':\s*(True|False),\s*'shape':\s*\((\d+),\s*(\d*)\),?\s*\}`,
)

// EncodeIndex serializes an index and its row map.
//
// Layout, little endian:
//
//	magic   [8]byte  "SNIPIDX\0"
//	version uint32
//	dim     uint32
//	rows    uint32
//	owners  [rows]uint32
//	vectors [rows*dim]float32
func EncodeIndex(idx *FlatIndex, rows RowMap) ([]byte, error) {
	if idx.Len() != rows.Len() {
		return nil, fmt.Errorf("index has %d rows, row map has %d", idx.Len(), rows.Len())
	}

	n := idx.Len()
	buf := make([]byte, 0, indexHeader+4*n+4*len(idx.data))
	buf = append(buf, indexMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, indexVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(idx.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	for _, owner := range rows.owners {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(owner))
	}
	return appendFloats(buf, idx.data), nil
}

// DecodeIndex parses data produced by EncodeIndex.
// snippetCount sizes the reverse row map.
func DecodeIndex(data []byte, snippetCount int) (*FlatIndex, RowMap, error) {
	if len(data) < indexHeader || string(data[:len(indexMagic)]) != indexMagic {
		return nil, RowMap{}, corrupt("index: bad header")
	}

	le := binary.LittleEndian
	version := le.Uint32(data[8:])
	dim := int(le.Uint32(data[12:]))
	n := int(le.Uint32(data[16:]))

	if version != indexVersion {
		return nil, RowMap{}, corrupt("index: unsupported version %d", version)
	}
	if want := indexHeader + 4*n + 4*n*dim; len(data) != want {
		return nil, RowMap{}, corrupt("index: size %d, expected %d", len(data), want)
	}

	owners := make([]int, n)
	off := indexHeader
	for i := range owners {
		owners[i] = int(le.Uint32(data[off:]))
		off += 4
	}

	idx := &FlatIndex{dim: dim, data: readFloats(data[off:], n*dim)}
	return idx, NewRowMap(owners, snippetCount), nil
}

// EncodeNPY serializes a row-major float32 matrix in NumPy .npy v1.0 format.
func EncodeNPY(rows, dim int, data []float32) ([]byte, error) {
	if len(data) != rows*dim {
		return nil, fmt.Errorf("matrix has %d values, expected %d", len(data), rows*dim)
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, dim)
	// Pad with spaces so the data starts on an aligned offset, then terminate with a newline.
	prefix := len(npyMagic) + 2 + 2
	total := prefix + len(header) + 1
	if rem := total % npyAlignment; rem != 0 {
		header += string(bytes.Repeat([]byte{' '}, npyAlignment-rem))
	}
	header += "\n"

	buf := make([]byte, 0, prefix+len(header)+4*len(data))
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	return appendFloats(buf, data), nil
}

// DecodeNPY parses a 2-D little-endian float32 .npy matrix.
func DecodeNPY(data []byte) (rows, dim int, values []float32, err error) {
	if len(data) < len(npyMagic)+4 || string(data[:len(npyMagic)]) != npyMagic {
		return 0, 0, nil, corrupt("npy: bad magic")
	}

	major := data[6]
	var headerLen, off int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:]))
		off = 10
	case 2, 3:
		if len(data) < 12 {
			return 0, 0, nil, corrupt("npy: truncated header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:]))
		off = 12
	default:
		return 0, 0, nil, corrupt("npy: unsupported version %d", major)
	}
	if len(data) < off+headerLen {
		return 0, 0, nil, corrupt("npy: truncated header")
	}

	m := npyHeaderPattern.FindSubmatch(data[off : off+headerLen])
	if m == nil {
		return 0, 0, nil, corrupt("npy: unrecognized header")
	}
	if string(m[1]) != "<f4" {
		return 0, 0, nil, corrupt("npy: dtype %s, expected <f4", m[1])
	}
	if string(m[2]) != "False" {
		return 0, 0, nil, corrupt("npy: fortran order not supported")
	}
	rows, _ = strconv.Atoi(string(m[3]))
	if len(m[4]) == 0 {
		return 0, 0, nil, corrupt("npy: expected a 2-D matrix")
	}
	dim, _ = strconv.Atoi(string(m[4]))

	body := data[off+headerLen:]
	if len(body) != 4*rows*dim {
		return 0, 0, nil, corrupt("npy: %d data bytes, expected %d", len(body), 4*rows*dim)
	}
	return rows, dim, readFloats(body, rows*dim), nil
}

func appendFloats(buf []byte, values []float32) []byte {
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func readFloats(data []byte, n int) []float32 {
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return values
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCacheCorrupt, fmt.Sprintf(format, args...))
}

// writeFileAtomic writes to a temp file next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", tempPath, err)
	}
	return nil
}
