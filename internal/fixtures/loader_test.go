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

package fixtures

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzipFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	fh, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(fh)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, fh.Close())
	return path
}

func TestScanEmptyDirReturnsErrNoFixtures(t *testing.T) {
	loader := NewLoader(t.TempDir(), "*")
	_, err := loader.Scan()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoFixtures))
}

func TestScanFilterMatchesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.jsonl", "{}")

	loader := NewLoader(dir, "*.csv")
	_, err := loader.Scan()
	assert.True(t, errors.Is(err, ErrNoFixtures))
}

func TestScanMissingDirIsIOError(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope"), "*")
	_, err := loader.Scan()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFixtures))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestScanIsSortedAndRestartable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.jsonl", "{}")
	writeFile(t, dir, "a.jsonl", "{}")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	loader := NewLoader(dir, "*.jsonl")

	first, err := loader.Scan()
	require.NoError(t, err)
	second, err := loader.Scan()
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].Name)
	assert.Equal(t, "b", first[1].Name)
	assert.Equal(t, first, second, "rescans must produce the same sequence")
}

func TestOpenPlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.jsonl", "hello\n")
	writeGzipFile(t, dir, "packed.jsonl.gz", "hello\n")

	loader := NewLoader(dir, "*")
	fxs, err := loader.Scan()
	require.NoError(t, err)
	require.Len(t, fxs, 2)

	for _, f := range fxs {
		rc, err := loader.Open(f)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "hello\n", string(data))
	}

	// gz suffix stripped before the extension
	assert.Equal(t, "packed", fxs[0].Name)
	assert.Equal(t, "plain", fxs[1].Name)
}

func TestFingerprintStableAcrossEncodings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", "same content\n")
	writeGzipFile(t, dir, "b.jsonl.gz", "same content\n")

	loader := NewLoader(dir, "*")
	fxs, err := loader.Scan()
	require.NoError(t, err)
	require.Len(t, fxs, 2)

	fp1, err := loader.Fingerprint(fxs[0])
	require.NoError(t, err)
	fp2, err := loader.Fingerprint(fxs[1])
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "fingerprint is over decompressed contents")
	assert.NotZero(t, fp1)
}

func TestReadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", "line1\nline2\n")

	loader := NewLoader(dir, "*")
	fxs, err := loader.Scan()
	require.NoError(t, err)

	data, err := loader.ReadAll(fxs[0])
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))
}
