// Package parser turns raw source documents into RawTrade records.
package parser

import (
	"fmt"

	"insidertrack/internal/ingestor/dto"
)

// Parser converts one source document into raw trades. A malformed entry
// is skipped and counted, never fatal for the rest of the document.
type Parser interface {
	Parse(doc dto.RawDocument) dto.ParseResult
	GetKind() string
}

// Registry resolves the parser for a source kind.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry holding every built-in parser.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		NewForm4Parser(),
		NewOpenInsiderParser(),
		NewFinvizParser(),
		NewMarketBeatParser(),
		NewMarketWatchParser(),
		NewNasdaqParser(),
	} {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the parser for its kind.
func (r *Registry) Register(p Parser) {
	r.parsers[p.GetKind()] = p
}

// Get returns the parser for kind.
func (r *Registry) Get(kind string) (Parser, error) {
	p, ok := r.parsers[kind]
	if !ok {
		return nil, fmt.Errorf("no parser registered for source kind %q", kind)
	}
	return p, nil
}
