// Package vectorstore reads and writes float32 vectors for the command line
// tool. Two encodings are supported: a text format whose first token is the
// element count followed by that many values, and raw little-endian float32.
// Either may be wrapped in zstd or lz4 compression, selected by file
// extension.
package vectorstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrFormat reports malformed vector data
var ErrFormat = errors.New("malformed vector data")

// maxPrealloc bounds the capacity reserved from a text header count
const maxPrealloc = 1 << 20

// Format is the element encoding of a vector file
type Format int

const (
	FormatText Format = iota
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatRaw:
		return "raw"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Detect derives the format and compression of a file from its name.
// Compression suffixes are stripped first, so a.raw.zst is zstd-compressed
// raw data.
func Detect(path string) (Format, Compression) {
	name := strings.ToLower(filepath.Base(path))
	compression := CompressionNone
	switch filepath.Ext(name) {
	case ".zst", ".zstd":
		compression = CompressionZSTD
		name = strings.TrimSuffix(name, filepath.Ext(name))
	case ".lz4":
		compression = CompressionLZ4
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	switch filepath.Ext(name) {
	case ".raw", ".bin":
		return FormatRaw, compression
	}
	return FormatText, compression
}

// Import loads the vector stored at path
func Import(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, compression := Detect(path)
	r, err := decompress(f, compression)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	v, err := Read(r, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Export writes v to path in the encoding implied by its name
func Export(path string, v []float32) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	format, compression := Detect(path)
	w, err := compress(f, compression)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err = Write(w, v, format); err != nil {
		w.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return w.Close()
}

// Read decodes a vector from r
func Read(r io.Reader, format Format) ([]float32, error) {
	switch format {
	case FormatText:
		return readText(r)
	case FormatRaw:
		return readRaw(r)
	default:
		return nil, fmt.Errorf("unknown vector format %v", format)
	}
}

// Write encodes v to w
func Write(w io.Writer, v []float32, format Format) error {
	switch format {
	case FormatText:
		return writeText(w, v)
	case FormatRaw:
		return writeRaw(w, v)
	default:
		return fmt.Errorf("unknown vector format %v", format)
	}
}

func readText(r io.Reader) ([]float32, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: missing element count", ErrFormat)
	}
	count, err := strconv.Atoi(sc.Text())
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: invalid element count %q", ErrFormat, sc.Text())
	}

	// The header is untrusted; append grows past the initial guess
	v := make([]float32, 0, min(count, maxPrealloc))
	for sc.Scan() {
		if len(v) == count {
			return nil, fmt.Errorf("%w: more than %d values", ErrFormat, count)
		}
		f, err := strconv.ParseFloat(sc.Text(), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %q is not a number", ErrFormat, len(v), sc.Text())
		}
		v = append(v, float32(f))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(v) != count {
		return nil, fmt.Errorf("%w: header declares %d values, found %d", ErrFormat, count, len(v))
	}
	return v, nil
}

func writeText(w io.Writer, v []float32) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(v))
	for _, x := range v {
		bw.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func readRaw(r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: raw data is %d bytes, not a whole number of float32 values", ErrFormat, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

func writeRaw(w io.Writer, v []float32) error {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	_, err := w.Write(buf)
	return err
}
