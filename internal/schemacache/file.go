package schemacache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

// File keeps the artifact at a fixed path. Writes go to a temporary file in
// the same directory and are renamed into place, so readers never see a
// partial artifact; concurrent writers race and the last rename wins.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Name() string { return "file" }
func (f *File) Path() string { return f.path }

func (f *File) Load(ctx context.Context) (*ast.SchemaDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "schemacache: read %s", f.path)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "schemacache: %s", f.path)
	}
	return doc, true, nil
}

func (f *File) Store(ctx context.Context, doc *ast.SchemaDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "schemacache: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "schemacache: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "schemacache: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "schemacache: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "schemacache: rename to %s", f.path)
	}
	return nil
}

func (f *File) Clear(ctx context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "schemacache: remove %s", f.path)
	}
	return nil
}
