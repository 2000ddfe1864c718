package upsert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jsonload/jsonload/pkg/storage"
)

// Line is one raw input record and its zero-based position in the input.
type Line struct {
	Index int
	Text  string
}

// Chunk is a batch of documents compiled into a single transaction.
type Chunk struct {
	// Query is the query block declaring every lookup variable of the chunk, or the
	// empty string when no document carried a deduplication key.
	Query string
	// Mutations holds every conditional mutation in document order, followed by one
	// set mutation carrying all residual payloads.
	Mutations []storage.Mutation
	// Docs is the number of documents in the chunk.
	Docs int
	// NQuads is the estimated number of N-Quads, used for progress reporting only.
	NQuads uint64
	// First is the input position of the first document.
	First int
}

// CompileChunk parses and compiles every line of the chunk. Any document that cannot
// be compiled fails the whole chunk with a *StructuralError.
func (c *Compiler) CompileChunk(lines []Line) (*Chunk, error) {
	chunk := &Chunk{Docs: len(lines)}
	if len(lines) > 0 {
		chunk.First = lines[0].Index
	}

	var queryLines []string
	var residual []map[string]any

	for _, line := range lines {
		doc, err := parseDocument(line.Text)
		if err != nil {
			return nil, newStructuralError(line.Index, line.Text, err)
		}

		chunk.NQuads += c.classifier.CountLeaves(doc)

		compiled, err := c.Compile(line.Index, doc)
		if err != nil {
			return nil, newStructuralError(line.Index, line.Text, err)
		}

		queryLines = append(queryLines, compiled.QueryLines...)
		chunk.Mutations = append(chunk.Mutations, compiled.Conditional...)
		residual = append(residual, compiled.Residual...)
	}

	if len(queryLines) > 0 {
		var b strings.Builder
		b.WriteString("{\n")
		for _, l := range queryLines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		b.WriteString("}")
		chunk.Query = b.String()
	}

	if len(residual) > 0 {
		set, err := encodeJSON(residual)
		if err != nil {
			return nil, fmt.Errorf("encoding residual set: %w", err)
		}
		chunk.Mutations = append(chunk.Mutations, storage.Mutation{SetJSON: set})
	}

	return chunk, nil
}

func parseDocument(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("malformed JSON: unexpected data after document")
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return doc, nil
}
