package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// VerifyNonEmpty checks that path exists and is a non-empty regular file.
// Encoder exit codes alone are not trusted; a missing or zero-byte output is a
// failure even when the process reported success.
func VerifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("output file missing: %s", path)
		}
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("output path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty: %s", path)
	}
	return nil
}
