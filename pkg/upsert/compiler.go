package upsert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jsonload/jsonload/pkg/storage"
)

// IdentityField is the predicate holding a node's identity. Input documents may not set it.
const IdentityField = "uid"

// Compiled is the output of compiling one document.
type Compiled struct {
	// QueryLines are the variable declarations to place inside the chunk query block.
	QueryLines []string
	// Conditional holds one guarded mutation per deduplication key, in document order.
	Conditional []storage.Mutation
	// Residual holds, per node with fields left after key extraction, those fields plus
	// the node's identity. Children come before their parents.
	Residual []map[string]any
	// Identity is the reference assigned to the document root.
	Identity string
}

// Compiler turns documents into upserts. It holds no per-document state and may be
// used from several goroutines.
type Compiler struct {
	keys       KeyMatcher
	classifier *Classifier
}

func NewCompiler(keys KeyMatcher, classifier *Classifier) *Compiler {
	if keys == nil {
		keys = noKeys{}
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Compiler{keys: keys, classifier: classifier}
}

// Classifier returns the node classifier shared by compilation and leaf estimation.
func (c *Compiler) Classifier() *Classifier {
	return c.classifier
}

// docState numbers the variables of one document. Names are v_<index>_<n>, so two
// documents compiled into the same chunk never collide.
type docState struct {
	index  int
	offset int
	out    *Compiled
}

func (s *docState) nextVar() string {
	s.offset++
	return fmt.Sprintf("v_%d_%d", s.index, s.offset)
}

type keyVar struct {
	name  string
	field string
	value any
}

// Compile compiles the document found at position index of the input. The document
// is not modified.
func (c *Compiler) Compile(index int, doc map[string]any) (*Compiled, error) {
	s := &docState{index: index, out: &Compiled{}}
	ref, err := c.compileNode(s, doc, "$")
	if err != nil {
		return nil, err
	}
	s.out.Identity = ref
	return s.out, nil
}

func (c *Compiler) compileNode(s *docState, node map[string]any, path string) (string, error) {
	if _, ok := node[IdentityField]; ok {
		return "", fmt.Errorf("%w at %s", ErrReservedField, path)
	}

	fields := make([]string, 0, len(node))
	for field := range node {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var vars []keyVar
	for _, field := range fields {
		if !c.keys.Match(field) {
			continue
		}
		if !isScalar(node[field]) {
			return "", fmt.Errorf("%w at %s.%s", ErrNonScalarKey, path, field)
		}
		vars = append(vars, keyVar{name: s.nextVar(), field: field, value: node[field]})
	}

	var ref, union string
	switch len(vars) {
	case 0:
		ref = "_:" + s.nextVar()
	case 1:
		ref = "uid(" + vars[0].name + ")"
	default:
		union = s.nextVar()
		ref = "uid(" + union + ")"
	}

	for _, v := range vars {
		literal, err := encodeJSON(v.value)
		if err != nil {
			return "", err
		}
		s.out.QueryLines = append(s.out.QueryLines,
			fmt.Sprintf("%s as var(func: eq(<%s>, %s), first: 1)", v.name, v.field, literal))

		set, err := encodeJSON([]map[string]any{{IdentityField: ref, v.field: v.value}})
		if err != nil {
			return "", err
		}
		s.out.Conditional = append(s.out.Conditional, storage.Mutation{
			SetJSON: set,
			Cond:    fmt.Sprintf("@if(eq(len(%s), 0))", v.name),
		})
	}

	if union != "" {
		names := make([]string, len(vars))
		for i, v := range vars {
			names[i] = v.name
		}
		s.out.QueryLines = append(s.out.QueryLines,
			fmt.Sprintf("%s as var(func: uid(%s), first: 1)", union, strings.Join(names, ",")))
	}

	rest := make(map[string]any, len(node)-len(vars)+1)
	for _, field := range fields {
		if slices.ContainsFunc(vars, func(v keyVar) bool { return v.field == field }) {
			continue
		}
		value, err := c.compileValue(s, node[field], path+"."+field)
		if err != nil {
			return "", err
		}
		rest[field] = value
	}

	if len(rest) > 0 {
		rest[IdentityField] = ref
		s.out.Residual = append(s.out.Residual, rest)
	}

	return ref, nil
}

// compileValue returns what the parent stores for v: a uid stub for a node, a list
// of stubs for a node list, and v itself otherwise.
func (c *Compiler) compileValue(s *docState, v any, path string) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if !c.classifier.IsNode(val) {
			return val, nil
		}
		ref, err := c.compileNode(s, val, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{IdentityField: ref}, nil
	case []any:
		if !c.classifier.IsNodeList(val) {
			return val, nil
		}
		stubs := make([]any, len(val))
		for i, item := range val {
			ref, err := c.compileNode(s, item.(map[string]any), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			stubs[i] = map[string]any{IdentityField: ref}
		}
		return stubs, nil
	default:
		return v, nil
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, json.Number, float64, bool:
		return true
	default:
		return false
	}
}

// encodeJSON marshals v without HTML escaping, so string literals reach the query
// exactly as they appeared in the input.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
