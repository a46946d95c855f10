package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirLoaderReadsClassFile(t *testing.T) {
	root := t.TempDir()
	want := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x01}
	classPath := filepath.Join(root, "com", "example")
	if err := os.MkdirAll(classPath, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(classPath, "Hello.class"), want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := NewDirLoader(root, nil)
	got, err := l.LoadBytes("com/example/Hello")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("LoadBytes returned %v, want %v", got, want)
	}
}

func TestDirLoaderMissingClass(t *testing.T) {
	l := NewDirLoader(t.TempDir(), nil)
	if _, err := l.LoadBytes("does/not/Exist"); err == nil {
		t.Fatal("expected an error for a missing class file")
	}
}
