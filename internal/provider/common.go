package provider

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/provenance"
	"github.com/nnpdf/pinefarm/internal/results"
)

// Files read from the runcard folder during postprocessing.
const (
	MetadataFile = "metadata.txt"
	PostrunFile  = "postrun.sh"
)

// Annotate records versions and run information in the grid metadata:
// the given versions plus pinefarm, the packed runcard folder, the grid
// library, the results PDF, the results log and digests of both.
func (b *base) Annotate(ctx context.Context, versions map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries := make(map[string]string, len(versions)+8)
	for k, v := range versions {
		entries[k] = v
	}
	entries["pinefarm"] = b.env.Version
	pinecard, err := packRuncard(b.source())
	if err != nil {
		return err
	}
	entries["pinecard"] = pinecard
	entries["pineappl"] = grid.LibraryVersion

	digest, err := provenance.VersionsDigest(entries)
	if err != nil {
		return err
	}
	files, err := readRuncardFiles(b.source())
	if err != nil {
		return err
	}
	runcardDigest, err := provenance.RuncardDigest(files)
	if err != nil {
		return err
	}

	entries["versions_digest"] = digest
	entries["runcard_digest"] = runcardDigest
	entries["lumi_id_types"] = "pdg_mc_ids"
	entries["results_pdf"] = b.env.PDF

	if log, err := os.ReadFile(filepath.Join(b.dest, results.LogFile)); err == nil {
		entries["results"] = string(log)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return b.updateMetadata(entries)
}

// Postprocess adds metadata.txt entries, runs an executable postrun.sh with
// GRID set, then compresses the grid and removes the uncompressed file.
func (b *base) Postprocess(ctx context.Context) error {
	entries, err := readMetadataFile(filepath.Join(b.source(), MetadataFile))
	if err != nil {
		return err
	}
	if err := b.updateMetadata(entries); err != nil {
		return err
	}

	if err := b.runPostrun(ctx); err != nil {
		return err
	}

	compressed, err := grid.Compress(b.GridPath())
	if err != nil {
		return err
	}
	if _, err := os.Stat(compressed); err == nil {
		if err := os.Remove(b.GridPath()); err != nil {
			return err
		}
	}
	b.log.Info("compressed grid", zap.String("path", compressed))
	return nil
}

func (b *base) updateMetadata(entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	g, err := grid.ReadFile(b.GridPath())
	if err != nil {
		return err
	}
	for k, v := range entries {
		g.SetKeyValue(k, v)
	}
	return g.WriteFile(b.GridPath())
}

func (b *base) runPostrun(ctx context.Context) error {
	src := filepath.Join(b.source(), PostrunFile)
	info, err := os.Stat(src)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.Mode()&0o111 == 0) {
		return nil
	}
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	dst := filepath.Join(b.dest, PostrunFile)
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "./"+PostrunFile)
	cmd.Dir = b.dest
	cmd.Env = append(os.Environ(), "GRID="+b.GridPath())
	return runLogged(cmd, filepath.Join(b.dest, "postrun.log"), b.log)
}

// readMetadataFile parses key=value lines. A missing file yields no entries.
func readMetadataFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make(map[string]string)
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s: line %d: expected key=value", path, n)
		}
		entries[k] = v
	}
	return entries, sc.Err()
}

// packRuncard returns the runcard folder as a base64 encoded tar.gz.
func packRuncard(dir string) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = "./"
		if rel != "." {
			hdr.Name += filepath.ToSlash(rel)
			if d.IsDir() {
				hdr.Name += "/"
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("pack runcard %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// readRuncardFiles returns the regular files of the runcard folder keyed by
// slash separated relative path.
func readRuncardFiles(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	return files, err
}

// runLogged runs cmd with stdout and stderr written to logPath. On failure
// the tail of the log is included in the error.
func runLogged(cmd *exec.Cmd, logPath string, log *zap.Logger) error {
	f, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var tail tailBuffer
	w := io.MultiWriter(f, &tail)
	cmd.Stdout = w
	cmd.Stderr = w

	log.Debug("running", zap.Strings("argv", cmd.Args), zap.String("dir", cmd.Dir), zap.String("log", logPath))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (see %s): %s", filepath.Base(cmd.Path), err, logPath, tail.String())
	}
	return nil
}

// tailBuffer keeps the last few hundred bytes written to it.
type tailBuffer struct {
	buf []byte
}

const tailSize = 512

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailSize {
		t.buf = t.buf[len(t.buf)-tailSize:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }
