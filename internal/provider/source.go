package provider

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// Source yields SDL text.
type Source interface {
	Name() string
	Read(ctx context.Context) (string, error)
}

// FileSource reads SDL from a file on every Read.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", errors.Wrapf(err, "read schema source %s", s.Path)
	}
	return string(b), nil
}

// StringSource serves SDL held in memory.
type StringSource struct {
	SourceName string
	SDL        string
}

func (s StringSource) Name() string {
	if s.SourceName == "" {
		return "schema.graphql"
	}
	return s.SourceName
}

func (s StringSource) Read(context.Context) (string, error) { return s.SDL, nil }
