package adapters

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

// BinaryFileStorage lays binaries out as
// <root>/<project>/<ref>/<sha1>/<distro>/<distro_version>/<arch>/<flavor>/<name>.
// With an empty root files are registered where they are.
type BinaryFileStorage struct {
	Root string
}

func NewBinaryFileStorage(root string) BinaryFileStorage {
	return BinaryFileStorage{Root: root}
}

func (s BinaryFileStorage) Put(ctx context.Context, binary types.Binary, source string) (types.Binary, error) {
	if err := ctx.Err(); err != nil {
		return types.Binary{}, err
	}
	info, err := os.Stat(source)
	if err != nil {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("binary source file not found").
			WithCause(err)
	}
	if info.IsDir() {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("binary source is a directory")
	}
	if strings.TrimSpace(binary.Name) == "" {
		binary.Name = filepath.Base(source)
	}

	destination, err := filepath.Abs(source)
	if err != nil {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to resolve binary path").
			WithCause(err)
	}
	if strings.TrimSpace(s.Root) != "" {
		destination = s.destination(binary)
		if err := copyFile(source, destination); err != nil {
			return types.Binary{}, err
		}
	}
	checksum, err := FileChecksum(destination)
	if err != nil {
		return types.Binary{}, err
	}
	stored, err := os.Stat(destination)
	if err != nil {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to stat stored binary").
			WithCause(err)
	}
	binary.Path = destination
	binary.Size = stored.Size()
	binary.Checksum = checksum
	log.Ctx(ctx).Debug().Str("binary", binary.Name).Str("path", destination).Msg("binary stored")
	return binary, nil
}

func (s BinaryFileStorage) destination(binary types.Binary) string {
	key := binary.RepoKey()
	arch := binary.Arch
	if arch == "" {
		arch = "noarch"
	}
	return filepath.Join(s.Root, key.Project, key.Ref, key.SHA1, key.Distro, key.DistroVersion, arch, key.Flavor, binary.Name)
}

func (s BinaryFileStorage) Exists(ctx context.Context, path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (s BinaryFileStorage) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to remove binary file").
			WithCause(err)
	}
	return nil
}

// FileChecksum returns the hex sha512 digest of the file at path.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open binary for checksum").
			WithCause(err)
	}
	defer file.Close()
	hash := sha512.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to checksum binary").
			WithCause(err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func copyFile(source string, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create binary directory").
			WithCause(err)
	}
	in, err := os.Open(source)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open binary source").
			WithCause(err)
	}
	defer in.Close()
	tmp, err := os.CreateTemp(filepath.Dir(destination), ".upload-*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create binary file").
			WithCause(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write binary file").
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write binary file").
			WithCause(err)
	}
	if err := os.Rename(tmp.Name(), destination); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to move binary into place").
			WithCause(err)
	}
	return nil
}

var _ ports.BinaryStoragePort = BinaryFileStorage{}
