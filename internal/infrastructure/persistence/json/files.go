package json

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// checksumSuffix names the sidecar holding a file's SHA-256 digest.
const checksumSuffix = ".sha256"

// writeAtomic writes data to a temporary file in the destination directory
// and renames it into place, so readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, constants.DefaultFilePerm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// writeWithChecksum writes data atomically followed by its sidecar in
// sha256sum format.
func writeWithChecksum(path string, data []byte) error {
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	line := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), filepath.Base(path))
	if err := writeAtomic(path+checksumSuffix, []byte(line)); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// VerifyChecksum compares path against its sidecar. A missing sidecar is
// reported as an error.
func VerifyChecksum(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return verifyData(path, data)
}

func verifyData(path string, data []byte) error {
	raw, err := os.ReadFile(path + checksumSuffix)
	if err != nil {
		return fmt.Errorf("read checksum of %s: %w", filepath.Base(path), err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty checksum file for %s", sharedErrors.ErrChecksumMismatch, filepath.Base(path))
	}
	sum := sha256.Sum256(data)
	if !strings.EqualFold(fields[0], hex.EncodeToString(sum[:])) {
		return fmt.Errorf("%w: %s", sharedErrors.ErrChecksumMismatch, filepath.Base(path))
	}
	return nil
}
