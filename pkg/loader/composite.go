package loader

import "fmt"

// CompositeLoader tries each of its sources in order, returning the first
// one that finds the class. Generalizes
// daimatz-gojvm/pkg/vm/classloader.go's UserClassLoader.LoadClass's
// delegate-to-parent-then-self two-level chain into an ordered list, so the
// single "bootstrap" loader name pkg/interp resolves everything under can
// still be backed by more than one physical source (a jmod archive plus a
// user classpath directory).
type CompositeLoader struct {
	Sources []ByteLoaderNamed
}

// ByteLoaderNamed pairs a source with a label for error messages; avoids
// importing pkg/heap just for its ByteLoader interface (which this already
// satisfies structurally).
type ByteLoaderNamed struct {
	Name   string
	Loader interface{ LoadBytes(name string) ([]byte, error) }
}

func NewCompositeLoader(sources ...ByteLoaderNamed) *CompositeLoader {
	return &CompositeLoader{Sources: sources}
}

func (c *CompositeLoader) LoadBytes(name string) ([]byte, error) {
	var errs []error
	for _, src := range c.Sources {
		data, err := src.Loader.LoadBytes(name)
		if err == nil {
			return data, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}
	return nil, fmt.Errorf("class %s not found in any of %d sources: %v", name, len(c.Sources), errs)
}
