package corpus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// NumPy dtype descriptors accepted for the vector array.
const (
	dtypeFloat32 = "<f4"
	dtypeFloat64 = "<f8"
)

// ReadVectors reads the 2-D embedding array at path.
func ReadVectors(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: vector array %s not found", ErrDataUnavailable, path)
		}
		return nil, fmt.Errorf("%w: opening vector array: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	vectors, err := DecodeVectors(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vectors, nil
}

// DecodeVectors decodes a .npy stream holding a 2-D float32 or float64 array.
// Rows become vectors; float64 values are narrowed to float32.
func DecodeVectors(r io.Reader) ([][]float32, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading npy header: %v", ErrDataIntegrity, err)
	}

	descr := nr.Header.Descr
	if len(descr.Shape) != 2 {
		return nil, fmt.Errorf("%w: vector array must be 2-D, got shape %v", ErrDataIntegrity, descr.Shape)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]
	if rows == 0 {
		return [][]float32{}, nil
	}
	if cols == 0 {
		return nil, fmt.Errorf("%w: vector array has zero columns", ErrDataIntegrity)
	}

	var flat []float32
	switch descr.Type {
	case dtypeFloat32:
		if err := nr.Read(&flat); err != nil {
			return nil, fmt.Errorf("%w: reading vectors: %v", ErrDataIntegrity, err)
		}
	case dtypeFloat64:
		var wide []float64
		if err := nr.Read(&wide); err != nil {
			return nil, fmt.Errorf("%w: reading vectors: %v", ErrDataIntegrity, err)
		}
		flat = make([]float32, len(wide))
		for i, v := range wide {
			flat[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported vector dtype %q", ErrDataIntegrity, descr.Type)
	}

	if len(flat) != rows*cols {
		return nil, fmt.Errorf("%w: vector array holds %d values, shape %v needs %d",
			ErrDataIntegrity, len(flat), descr.Shape, rows*cols)
	}

	vectors := make([][]float32, rows)
	for i := range vectors {
		vec := make([]float32, cols)
		for j := range vec {
			if descr.Fortran {
				vec[j] = flat[j*rows+i]
			} else {
				vec[j] = flat[i*cols+j]
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// WriteVectors writes vectors as a 2-D float64 .npy array. The file is
// written to a temporary name and renamed into place. Returns the number of
// bytes written.
func WriteVectors(path string, vectors [][]float32) (int64, error) {
	if len(vectors) == 0 {
		return 0, errors.New("no vectors to write")
	}
	dims := len(vectors[0])
	if dims == 0 {
		return 0, errors.New("vectors have zero dimensions")
	}

	data := make([]float64, 0, len(vectors)*dims)
	for i, v := range vectors {
		if len(v) != dims {
			return 0, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dims)
		}
		for _, x := range v {
			data = append(data, float64(x))
		}
	}
	m := mat.NewDense(len(vectors), dims, data)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vectors-*.npy")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after successful rename

	if err := npyio.Write(tmp, m); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("encoding vectors: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("stat temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming vectors file: %w", err)
	}
	return info.Size(), nil
}
