package updater

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/panic-button/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ChecksumSuffix is appended to the staged file name to find its checksum.
	ChecksumSuffix = ".sha512"

	// DefaultFileMode is applied to the replaced executable.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to verify staged files.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var (
	errHashUnavailable = errors.New("hash function unavailable")
	errEmptyTarget     = errors.New("update target is empty")
)

// ApplyStaged replaces target with the staged binary when one exists and
// reports whether it did. The checksum file is optional; when present the
// staged binary must match it. Applied files are removed.
func ApplyStaged(ctx context.Context, target, staged string) (bool, error) {
	if staged == "" {
		return false, nil
	}

	if target == "" {
		return false, errEmptyTarget
	}

	data, err := os.ReadFile(filepath.Clean(staged))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("read staged update: %w", err)
	}

	checksum, err := readChecksum(staged + ChecksumSuffix)
	if err != nil {
		return false, err
	}

	logger.InfoKV(ctx, "Applying staged update", "target", target, "staged", staged, "verified", checksum != nil)

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return false, fmt.Errorf("apply staged update: %w", err)
	}

	oldFileName := target + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	_ = os.Remove(staged)
	_ = os.Remove(staged + ChecksumSuffix)

	return true, nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// WriteChecksum stores the base64 checksum of path next to it.
func WriteChecksum(path string) error {
	checksum, err := GetFileChecksum(path)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(checksum)

	if err = os.WriteFile(path+ChecksumSuffix, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}

	return nil
}

// readChecksum decodes a base64 checksum file; a missing file yields nil.
func readChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read checksum: %w", err)
	}

	checksum, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(contents)))
	if err != nil {
		return nil, fmt.Errorf("decode checksum: %w", err)
	}

	return checksum, nil
}
