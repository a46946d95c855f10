package loader

import (
	"fmt"
	"os"
	"path/filepath"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"
)

// DirLoader reads classes out of a user classpath directory. Each .class
// file is memory-mapped (saferwall-pe's file.go mapping idiom) instead of
// read with os.ReadFile, and its whole contents are then copied into a
// fresh slice, which is what LoadBytes returns; the mapping does not
// outlive the call. Generalizes
// daimatz-gojvm/pkg/vm/classloader.go's UserClassLoader to the raw-bytes
// ByteLoader contract.
type DirLoader struct {
	Root string
	Log  *logrus.Logger
}

// NewDirLoader returns a DirLoader rooted at root.
func NewDirLoader(root string, log *logrus.Logger) *DirLoader {
	return &DirLoader{Root: root, Log: log}
}

func (l *DirLoader) LoadBytes(name string) ([]byte, error) {
	path := filepath.Join(l.Root, filepath.FromSlash(name)+".class")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: opening %s: %w", path, err)
	}
	defer f.Close()

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("classpath: mapping %s: %w", path, err)
	}
	defer mapped.Unmap()

	// The mapping is unmapped before this function returns, so the bytes
	// are copied out rather than handed back as a live view into it.
	out := make([]byte, len(mapped))
	copy(out, mapped)

	if l.Log != nil {
		l.Log.WithField("class", name).Debug("loaded class from classpath")
	}
	return out, nil
}
