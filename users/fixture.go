package users

import (
	"fmt"
	"io"
	"os"

	"github.com/go-chi/render"
)

// LoadFixture decodes a json-server style database: {"users": [...]}
func LoadFixture(r io.Reader) (Directory, error) {
	var d Directory
	if err := render.DecodeJSON(r, &d); err != nil {
		return Directory{}, fmt.Errorf("decode fixture: %w", err)
	}
	return d, nil
}

// LoadFixtureFile opens path and decodes it with LoadFixture
func LoadFixtureFile(path string) (Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return Directory{}, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(f)
}
