package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. Syntax errors are returned as
// *gqlerror.Error carrying the offending location.
func ParseQuery(query string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchema parses SDL without validating it.
func ParseSchema(name, sdl string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseQueryLimit is ParseQuery with a cap on lexer tokens; zero means no cap.
func ParseQueryLimit(query string, maxTokens int) (*QueryDocument, error) {
	if maxTokens <= 0 {
		return ParseQuery(query)
	}
	doc, err := parser.ParseQueryWithTokenLimit(&ast.Source{Name: "query", Input: query}, maxTokens)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
