package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Matrix is a dense row-major float32 matrix, the in-memory form of the
// persisted embedding matrix.
type Matrix struct {
	Rows [][]float32
	Cols int
}

// .npy format constants (NumPy format version 1.0).
const (
	npyMagic     = "\x93NUMPY"
	npyAlignment = 64
)

// ErrBadNPY reports a file that is not a supported .npy matrix.
var ErrBadNPY = errors.New("unsupported .npy file")

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']+)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// WriteMatrix encodes m as a little-endian float32 .npy array of shape
// (len(Rows), Cols).
func WriteMatrix(w io.Writer, m Matrix) error {
	if err := checkDims(m.Cols, m.Rows...); err != nil {
		return err
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(m.Rows), m.Cols)
	// magic + version + uint16 length + header + '\n', padded to the alignment.
	preamble := len(npyMagic) + 2 + 2
	total := preamble + len(header) + 1
	if pad := total % npyAlignment; pad != 0 {
		header += strings.Repeat(" ", npyAlignment-pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(npyMagic); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	buf := make([]byte, 4*m.Cols)
	for _, row := range m.Rows {
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMatrix decodes a 2-D C-order .npy array of '<f4' or '<f8' values.
func ReadMatrix(r io.Reader) (Matrix, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return Matrix{}, fmt.Errorf("%w: read magic: %v", ErrBadNPY, err)
	}
	if string(magic[:len(npyMagic)]) != npyMagic {
		return Matrix{}, fmt.Errorf("%w: bad magic", ErrBadNPY)
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("%w: header length: %v", ErrBadNPY, err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("%w: header length: %v", ErrBadNPY, err)
		}
		headerLen = int(n)
	default:
		return Matrix{}, fmt.Errorf("%w: format version %d", ErrBadNPY, major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return Matrix{}, fmt.Errorf("%w: read header: %v", ErrBadNPY, err)
	}

	descr, rows, cols, err := parseNPYHeader(header)
	if err != nil {
		return Matrix{}, err
	}

	width := 4
	if descr == "<f8" {
		width = 8
	}

	flat := make([]float32, rows*cols)
	buf := make([]byte, width*cols)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return Matrix{}, fmt.Errorf("%w: row %d: %v", ErrBadNPY, i, err)
		}
		row := flat[i*cols : (i+1)*cols]
		for j := range row {
			if width == 4 {
				row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
			} else {
				row[j] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[8*j:])))
			}
		}
	}

	m := Matrix{Rows: make([][]float32, rows), Cols: cols}
	for i := range m.Rows {
		m.Rows[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m, nil
}

func parseNPYHeader(header []byte) (descr string, rows, cols int, err error) {
	header = bytes.TrimSpace(header)

	d := descrRe.FindSubmatch(header)
	if d == nil {
		return "", 0, 0, fmt.Errorf("%w: missing descr", ErrBadNPY)
	}
	descr = string(d[1])
	if descr != "<f4" && descr != "<f8" {
		return "", 0, 0, fmt.Errorf("%w: dtype %s (want <f4)", ErrBadNPY, descr)
	}

	if f := fortranRe.FindSubmatch(header); f == nil || string(f[1]) != "False" {
		return "", 0, 0, fmt.Errorf("%w: fortran order is not supported", ErrBadNPY)
	}

	s := shapeRe.FindSubmatch(header)
	if s == nil {
		return "", 0, 0, fmt.Errorf("%w: missing shape", ErrBadNPY)
	}
	var dims []int
	for _, part := range strings.Split(string(s[1]), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, perr := strconv.Atoi(part)
		if perr != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: shape %q", ErrBadNPY, s[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return "", 0, 0, fmt.Errorf("%w: expected a 2-D matrix, got shape (%s)", ErrBadNPY, s[1])
	}
	return descr, dims[0], dims[1], nil
}

// SaveMatrix writes m to path atomically (temp file + rename).
func SaveMatrix(path string, m Matrix) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return WriteMatrix(w, m)
	})
}

// LoadMatrix reads a matrix saved with SaveMatrix or numpy.save.
func LoadMatrix(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matrix{}, err
	}
	defer func() { _ = f.Close() }()

	m, err := ReadMatrix(f)
	if err != nil {
		return Matrix{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteFileAtomic writes to path+".tmp", syncs it and renames it into
// place, so readers see either the old file or the complete new one.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
