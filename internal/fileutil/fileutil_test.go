package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.bin")
	dst := filepath.Join(tmpDir, "dst.bin")

	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("copied content = %q", data)
	}
}

func TestVerifyNonEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	missing := filepath.Join(tmpDir, "missing.mp4")
	if err := VerifyNonEmpty(missing); err == nil {
		t.Error("missing file should fail verification")
	}

	empty := filepath.Join(tmpDir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if err := VerifyNonEmpty(empty); err == nil {
		t.Error("zero-byte file should fail verification")
	}

	ok := filepath.Join(tmpDir, "ok.mp4")
	if err := os.WriteFile(ok, []byte{0x00, 0x01}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := VerifyNonEmpty(ok); err != nil {
		t.Errorf("non-empty file failed verification: %v", err)
	}

	if err := VerifyNonEmpty(tmpDir); err == nil {
		t.Error("directory should fail verification")
	}
}
