package adapters

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoforge/internal/types"
)

func helloSHA512() string {
	sum := sha512.Sum512([]byte("hello\n"))
	return hex.EncodeToString(sum[:])
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))
	return path
}

func TestBinaryFileStoragePutCopiesIntoLayout(t *testing.T) {
	root := t.TempDir()
	source := writeSource(t, "ceph-0.80.11-0.el7.x86_64.rpm")
	storage := NewBinaryFileStorage(root)

	binary, err := storage.Put(context.Background(), types.Binary{
		Project:       "ceph",
		Ref:           "firefly",
		Distro:        "centos",
		DistroVersion: "7",
		Arch:          "x86_64",
	}, source)
	require.NoError(t, err)

	want := filepath.Join(root, "ceph", "firefly", "HEAD", "centos", "7", "x86_64", "default", "ceph-0.80.11-0.el7.x86_64.rpm")
	assert.Equal(t, want, binary.Path)
	assert.Equal(t, "ceph-0.80.11-0.el7.x86_64.rpm", binary.Name)
	assert.Equal(t, int64(6), binary.Size)
	assert.Equal(t, helloSHA512(), binary.Checksum)
	assert.True(t, storage.Exists(context.Background(), want))

	// the source is left untouched
	_, err = os.Stat(source)
	require.NoError(t, err)
}

func TestBinaryFileStoragePutInPlace(t *testing.T) {
	source := writeSource(t, "ceph.tar.gz")
	binary, err := NewBinaryFileStorage("").Put(context.Background(), types.Binary{Name: "ceph.tar.gz"}, source)
	require.NoError(t, err)
	assert.Equal(t, source, binary.Path)
	assert.Equal(t, helloSHA512(), binary.Checksum)
}

func TestBinaryFileStoragePutMissingSource(t *testing.T) {
	_, err := NewBinaryFileStorage(t.TempDir()).Put(context.Background(), types.Binary{}, filepath.Join(t.TempDir(), "missing.rpm"))
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = NewBinaryFileStorage(t.TempDir()).Put(context.Background(), types.Binary{}, t.TempDir())
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestBinaryFileStorageRemove(t *testing.T) {
	storage := NewBinaryFileStorage("")
	source := writeSource(t, "a.deb")
	require.NoError(t, storage.Remove(context.Background(), source))
	assert.False(t, storage.Exists(context.Background(), source))

	// already gone is fine
	require.NoError(t, storage.Remove(context.Background(), source))
	require.NoError(t, storage.Remove(context.Background(), ""))
}
