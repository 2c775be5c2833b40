package grid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

const (
	// Extension is the file extension of an uncompressed grid.
	Extension = ".pineappl"

	// CompressedExtension is the file extension of an LZ4-compressed grid.
	CompressedExtension = ".pineappl.lz4"
)

// IsCompressed reports whether path names an LZ4-compressed grid.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".lz4")
}

// ReadFile reads a grid from path, decompressing it if the name ends in .lz4.
func ReadFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if IsCompressed(path) {
		r = lz4.NewReader(r)
	}
	g, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// WriteFile writes the grid to path, compressing it if the name ends in .lz4.
//
// The grid is written to a temporary file in the same directory and renamed
// into place, so a failed write never leaves a partial file at path.
func (g *Grid) WriteFile(path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		if !IsCompressed(path) {
			return g.Write(w)
		}
		zw := lz4.NewWriter(w)
		if err := g.Write(zw); err != nil {
			return err
		}
		return zw.Close()
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write grid: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	return nil
}

// Compress writes an LZ4-compressed copy of the grid file at path next to it
// and returns the new path. The original file is left untouched.
func Compress(path string) (string, error) {
	if IsCompressed(path) {
		return "", fmt.Errorf("compress %s: already compressed", path)
	}
	dst := path + ".lz4"
	err := copyThrough(path, dst, func(w io.Writer) (io.WriteCloser, error) {
		return lz4.NewWriter(w), nil
	}, nil)
	return dst, err
}

// Decompress writes an uncompressed copy of the LZ4 grid file at path next to
// it and returns the new path. The compressed file is left untouched.
func Decompress(path string) (string, error) {
	if !IsCompressed(path) {
		return "", fmt.Errorf("decompress %s: not an .lz4 file", path)
	}
	dst := strings.TrimSuffix(path, ".lz4")
	err := copyThrough(path, dst, nil, func(r io.Reader) io.Reader {
		return lz4.NewReader(r)
	})
	return dst, err
}

func copyThrough(src, dst string, wrapW func(io.Writer) (io.WriteCloser, error), wrapR func(io.Reader) io.Reader) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader = in
	if wrapR != nil {
		r = wrapR(r)
	}
	return writeAtomic(dst, func(w io.Writer) error {
		if wrapW == nil {
			_, err := io.Copy(w, r)
			return err
		}
		zw, err := wrapW(w)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			return err
		}
		return zw.Close()
	})
}
