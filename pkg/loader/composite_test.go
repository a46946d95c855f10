package loader

import "testing"

type fakeByteLoader struct {
	data map[string][]byte
}

func (f fakeByteLoader) LoadBytes(name string) ([]byte, error) {
	if b, ok := f.data[name]; ok {
		return b, nil
	}
	return nil, errNotFound(name)
}

type errNotFound string

func (e errNotFound) Error() string { return "not found: " + string(e) }

func TestCompositeLoaderTriesSourcesInOrder(t *testing.T) {
	first := fakeByteLoader{data: map[string][]byte{"a/A": {1}}}
	second := fakeByteLoader{data: map[string][]byte{"a/A": {2}, "b/B": {3}}}

	c := NewCompositeLoader(
		ByteLoaderNamed{Name: "first", Loader: first},
		ByteLoaderNamed{Name: "second", Loader: second},
	)

	got, err := c.LoadBytes("a/A")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected the first source's bytes to win, got %v", got)
	}

	got, err = c.LoadBytes("b/B")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("expected to fall through to the second source, got %v", got)
	}
}

func TestCompositeLoaderAllSourcesMiss(t *testing.T) {
	c := NewCompositeLoader(ByteLoaderNamed{Name: "only", Loader: fakeByteLoader{data: map[string][]byte{}}})
	if _, err := c.LoadBytes("missing/Class"); err == nil {
		t.Fatal("expected an error when no source has the class")
	}
}
