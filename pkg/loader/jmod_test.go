package loader

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func buildJmod(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip.Create(%s): %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "java.base.jmod")
	var file bytes.Buffer
	file.WriteString("JM\x01\x00")
	file.Write(zipBuf.Bytes())
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestJmodLoaderReadsClass(t *testing.T) {
	want := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x02}
	path := buildJmod(t, map[string][]byte{
		"classes/java/lang/Object.class": want,
	})

	l := NewJmodLoader(path, nil)
	got, err := l.LoadBytes("java/lang/Object")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("LoadBytes returned %v, want %v", got, want)
	}

	// Second call should be served from the cache without reopening the
	// archive; exercising it again ensures the cached path returns the
	// identical bytes.
	got2, err := l.LoadBytes("java/lang/Object")
	if err != nil {
		t.Fatalf("cached LoadBytes: %v", err)
	}
	if string(got2) != string(want) {
		t.Errorf("cached LoadBytes returned %v, want %v", got2, want)
	}
}

func TestJmodLoaderMissingClass(t *testing.T) {
	path := buildJmod(t, map[string][]byte{
		"classes/java/lang/Object.class": {0x01},
	})
	l := NewJmodLoader(path, nil)
	if _, err := l.LoadBytes("java/lang/String"); err == nil {
		t.Fatal("expected an error for a class absent from the jmod")
	}
}
