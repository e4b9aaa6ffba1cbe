// Copyright (C) 2025 Zinc Labs Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package fixtures discovers and opens raw log fixture files used to drive
// benchmark runs. A fixture is immutable once on disk; the loader only ever
// reads. Scans are restartable so every iteration of a run sees the same
// sequence of fixtures.
package fixtures

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrNoFixtures is returned by Scan when the filter matches no files.
var ErrNoFixtures = errors.New("fixtures: filter matched no files")

// Fixture identifies one raw log sample on disk.
type Fixture struct {
	// Name is the file stem with compression suffix stripped, used to
	// attribute benchmark samples.
	Name string

	// Path is the absolute file path.
	Path string

	// Size is the on-disk size in bytes (compressed size for .gz files).
	Size int64
}

// Loader lists and opens fixtures under one directory.
type Loader struct {
	dir    string
	filter string
}

// NewLoader creates a loader for the given directory. filter is a glob
// pattern matched against file base names; empty means all regular files.
func NewLoader(dir, filter string) *Loader {
	if filter == "" {
		filter = "*"
	}
	return &Loader{dir: dir, filter: filter}
}

// Scan walks the directory and returns the matching fixtures in name order.
// Each call re-walks the directory, so the sequence is restartable.
func (l *Loader) Scan() ([]Fixture, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir %s: %w", l.dir, err)
	}

	var out []Fixture
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := filepath.Match(l.filter, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("bad fixture filter %q: %w", l.filter, err)
		}
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat fixture %s: %w", entry.Name(), err)
		}
		out = append(out, Fixture{
			Name: stemName(entry.Name()),
			Path: filepath.Join(l.dir, entry.Name()),
			Size: info.Size(),
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w (dir=%s filter=%s)", ErrNoFixtures, l.dir, l.filter)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open returns a reader over the fixture contents, transparently
// decompressing gzip files. The caller owns the returned closer.
func (l *Loader) Open(f Fixture) (io.ReadCloser, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open fixture %s: %w", f.Path, err)
	}
	if !strings.HasSuffix(f.Path, ".gz") {
		return fh, nil
	}
	gz, err := gzip.NewReader(fh)
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("open gzip fixture %s: %w", f.Path, err)
	}
	return &gzipReadCloser{gz: gz, file: fh}, nil
}

// ReadAll loads the full decompressed fixture contents into memory.
// Benchmark fixtures are sized to fit; loading once up front keeps disk
// reads out of the measured path.
func (l *Loader) ReadAll(f Fixture) ([]byte, error) {
	rc, err := l.Open(f)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", f.Path, err)
	}
	return buf, nil
}

// Fingerprint returns a stable xxhash64 of the decompressed fixture
// contents, recorded in result logs so runs over different inputs are
// never compared as equals.
func (l *Loader) Fingerprint(f Fixture) (uint64, error) {
	rc, err := l.Open(f)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, rc); err != nil {
		return 0, fmt.Errorf("fingerprint fixture %s: %w", f.Path, err)
	}
	return h.Sum64(), nil
}

func stemName(name string) string {
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gz.Read(p)
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fileErr := g.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}
