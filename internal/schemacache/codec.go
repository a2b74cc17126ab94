// Package schemacache stores parsed SDL documents so that an endpoint can skip
// parsing on startup. Artifacts are JSON encodings of the gqlparser document,
// without comments, compressed with zstd.
package schemacache

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

// Cache is the storage port used by the schema provider. Load reports ok=false
// when nothing is stored. Invalidation is by presence only: a stored artifact
// is used until it is cleared.
type Cache interface {
	Name() string
	Load(ctx context.Context) (doc *ast.SchemaDocument, ok bool, err error)
	Store(ctx context.Context, doc *ast.SchemaDocument) error
	Clear(ctx context.Context) error
}

// ErrCorrupt is returned when an artifact cannot be decoded.
var ErrCorrupt = errors.New("schemacache: corrupt artifact")

// magic prefixes every artifact; the trailing byte is the format version.
var magic = []byte("GQLS\x01")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode serializes doc. Comment nodes are dropped from doc in place.
func Encode(doc *ast.SchemaDocument) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("schemacache: nil document")
	}
	stripComments(doc)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "schemacache: marshal document")
	}
	out := make([]byte, len(magic), len(magic)+len(raw)/4)
	copy(out, magic)
	return encoder.EncodeAll(raw, out), nil
}

// Decode restores a document produced by Encode. Every call returns a fresh
// document, so callers may mutate it during validation.
func Decode(data []byte) (*ast.SchemaDocument, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, errors.WithStack(ErrCorrupt)
	}
	raw, err := decoder.DecodeAll(data[len(magic):], nil)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "decompress: %v", err)
	}
	var doc ast.SchemaDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "unmarshal: %v", err)
	}
	restorePositions(&doc, &ast.Position{Src: &ast.Source{Name: SourceName}})
	return &doc, nil
}

// SourceName names the source of decoded documents in validation errors.
const SourceName = "schema cache"

// restorePositions points every node that gqlparser dereferences at pos, as
// positions are not part of the artifact.
func restorePositions(doc *ast.SchemaDocument, pos *ast.Position) {
	doc.Position = pos
	for _, list := range []ast.SchemaDefinitionList{doc.Schema, doc.SchemaExtension} {
		for _, s := range list {
			s.Position = pos
			for _, ot := range s.OperationTypes {
				ot.Position = pos
			}
			positionDirectives(s.Directives, pos)
		}
	}
	for _, d := range doc.Directives {
		d.Position = pos
		positionArguments(d.Arguments, pos)
	}
	for _, list := range []ast.DefinitionList{doc.Definitions, doc.Extensions} {
		for _, def := range list {
			def.Position = pos
			positionDirectives(def.Directives, pos)
			for _, f := range def.Fields {
				f.Position = pos
				if f.Type != nil {
					f.Type.Position = pos
				}
				positionArguments(f.Arguments, pos)
				positionDirectives(f.Directives, pos)
			}
			for _, ev := range def.EnumValues {
				ev.Position = pos
				positionDirectives(ev.Directives, pos)
			}
		}
	}
}

func positionArguments(args ast.ArgumentDefinitionList, pos *ast.Position) {
	for _, a := range args {
		a.Position = pos
		if a.Type != nil {
			a.Type.Position = pos
		}
		positionDirectives(a.Directives, pos)
	}
}

func positionDirectives(dirs ast.DirectiveList, pos *ast.Position) {
	for _, d := range dirs {
		d.Position = pos
		for _, a := range d.Arguments {
			a.Position = pos
		}
	}
}

func stripComments(doc *ast.SchemaDocument) {
	doc.Comment = nil
	for _, list := range []ast.SchemaDefinitionList{doc.Schema, doc.SchemaExtension} {
		for _, s := range list {
			s.BeforeDescriptionComment = nil
			s.AfterDescriptionComment = nil
			s.EndOfDefinitionComment = nil
			for _, ot := range s.OperationTypes {
				ot.Comment = nil
			}
			stripDirectiveComments(s.Directives)
		}
	}
	for _, d := range doc.Directives {
		d.BeforeDescriptionComment = nil
		d.AfterDescriptionComment = nil
		stripArgumentComments(d.Arguments)
	}
	for _, list := range []ast.DefinitionList{doc.Definitions, doc.Extensions} {
		for _, def := range list {
			stripDefinitionComments(def)
		}
	}
}

func stripDefinitionComments(def *ast.Definition) {
	def.BeforeDescriptionComment = nil
	def.AfterDescriptionComment = nil
	def.EndOfDefinitionComment = nil
	stripDirectiveComments(def.Directives)
	for _, f := range def.Fields {
		f.BeforeDescriptionComment = nil
		f.AfterDescriptionComment = nil
		stripValueComments(f.DefaultValue)
		stripArgumentComments(f.Arguments)
		stripDirectiveComments(f.Directives)
	}
	for _, ev := range def.EnumValues {
		ev.BeforeDescriptionComment = nil
		ev.AfterDescriptionComment = nil
		stripDirectiveComments(ev.Directives)
	}
}

func stripArgumentComments(args ast.ArgumentDefinitionList) {
	for _, a := range args {
		a.BeforeDescriptionComment = nil
		a.AfterDescriptionComment = nil
		stripValueComments(a.DefaultValue)
		stripDirectiveComments(a.Directives)
	}
}

func stripDirectiveComments(dirs ast.DirectiveList) {
	for _, d := range dirs {
		for _, a := range d.Arguments {
			a.Comment = nil
			stripValueComments(a.Value)
		}
	}
}

func stripValueComments(v *ast.Value) {
	if v == nil {
		return
	}
	v.Comment = nil
	for _, c := range v.Children {
		c.Comment = nil
		stripValueComments(c.Value)
	}
}
