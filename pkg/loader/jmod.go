// Package loader provides heap.ByteLoader implementations: a jmod/zip-based
// reader for the JDK's own module archives and a directory-based reader for
// a user classpath, both returning raw class bytes for the heap to parse
// (§6's external byte-loader boundary).
package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// jmodHeaderLen is the length of the 4-byte header every jmod file carries
// ahead of its embedded zip archive.
const jmodHeaderLen = 4

// JmodLoader reads classes out of a JDK jmod archive (java.base.jmod and
// friends): a zip file prefixed by a "JM\x01\x00" header, with each class
// stored under "classes/<name>.class". Generalizes
// daimatz-gojvm/pkg/vm/classloader.go's JmodClassLoader to return raw bytes
// instead of an already-parsed classfile, since parsing is the heap's job
// here, not the loader's.
type JmodLoader struct {
	Path string
	Log  *logrus.Logger

	mu        sync.Mutex
	zipReader *zip.Reader
	cache     map[string][]byte
}

// NewJmodLoader returns a JmodLoader reading from path, lazily opened on
// first LoadBytes call.
func NewJmodLoader(path string, log *logrus.Logger) *JmodLoader {
	return &JmodLoader{Path: path, Log: log, cache: make(map[string][]byte)}
}

func (l *JmodLoader) LoadBytes(name string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if data, ok := l.cache[name]; ok {
		return data, nil
	}
	if err := l.ensureZipReaderLocked(); err != nil {
		return nil, err
	}

	target := "classes/" + name + ".class"
	for _, f := range l.zipReader.File {
		if f.Name != target {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("jmod: opening %s in %s: %w", target, l.Path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("jmod: reading %s in %s: %w", target, l.Path, err)
		}
		l.cache[name] = data
		if l.Log != nil {
			l.Log.WithField("class", name).Debug("loaded class from jmod")
		}
		return data, nil
	}
	return nil, fmt.Errorf("jmod: class %s not found in %s", name, l.Path)
}

func (l *JmodLoader) ensureZipReaderLocked() error {
	if l.zipReader != nil {
		return nil
	}

	f, err := os.Open(l.Path)
	if err != nil {
		return fmt.Errorf("jmod: opening %s: %w", l.Path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("jmod: stat %s: %w", l.Path, err)
	}
	if stat.Size() < jmodHeaderLen {
		return fmt.Errorf("jmod: %s too short to carry a jmod header", l.Path)
	}

	raw := make([]byte, stat.Size())
	if _, err := io.ReadFull(f, raw); err != nil {
		return fmt.Errorf("jmod: reading %s: %w", l.Path, err)
	}

	zipData := raw[jmodHeaderLen:] // skip "JM\x01\x00"
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("jmod: opening embedded zip in %s: %w", l.Path, err)
	}
	l.zipReader = zr
	return nil
}
