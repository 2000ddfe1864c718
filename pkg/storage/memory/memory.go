// Package memory implements storage.Upserter with an in-process graph. It evaluates
// the subset of the upsert dialect produced by the compiler: eq lookups, uid unions,
// len guards, uid(var) references and blank nodes.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jsonload/jsonload/pkg/storage"
	"github.com/jsonload/jsonload/pkg/telemetry"
)

var tracer = otel.Tracer("jsonload/pkg/storage/memory")

const identityField = "uid"

var (
	eqLineRe    = regexp.MustCompile(`^(\w+) as var\(func: eq\(<([^>]+)>, (.+)\), first: 1\)$`)
	unionLineRe = regexp.MustCompile(`^(\w+) as var\(func: uid\(([\w,]+)\), first: 1\)$`)
	condRe      = regexp.MustCompile(`^@if\(eq\(len\((\w+)\), (\d+)\)\)$`)
	uidVarRe    = regexp.MustCompile(`^uid\((\w+)\)$`)
)

// Edge is a stored reference to another node.
type Edge struct {
	UID uint64
}

// Node is a snapshot of one stored node. Predicates hold scalars, opaque JSON values,
// an Edge or a []Edge.
type Node struct {
	UID        uint64
	Predicates map[string]any
}

// MemoryBackend serializes every upsert behind a single lock, so transactions never
// conflict on their own. Conflicts can be injected with WithFaults.
type MemoryBackend struct {
	mu      sync.Mutex
	nextUID uint64
	nodes   map[uint64]map[string]any
	faults  []error
	calls   int
	commits int
}

var _ storage.Upserter = (*MemoryBackend)(nil)

// StorageOption defines a function type used for configuring a MemoryBackend instance.
type StorageOption func(*MemoryBackend)

// WithFaults makes the first len(errs) calls to Upsert fail with the given errors, in
// order, without touching the graph. A nil entry lets that call through.
func WithFaults(errs ...error) StorageOption {
	return func(b *MemoryBackend) {
		b.faults = append(b.faults, errs...)
	}
}

func New(opts ...StorageOption) *MemoryBackend {
	b := &MemoryBackend{
		nodes: make(map[uint64]map[string]any),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Upsert see [storage.Upserter].Upsert.
func (b *MemoryBackend) Upsert(ctx context.Context, query string, mutations []storage.Mutation) error {
	_, span := tracer.Start(ctx, "memory.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("mutations", len(mutations)))

	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if len(b.faults) > 0 {
		fault := b.faults[0]
		b.faults = b.faults[1:]
		if fault != nil {
			telemetry.TraceError(span, fault)
			return fault
		}
	}

	vars, err := b.evalQuery(query)
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}

	txn := &txn{
		backend: b,
		vars:    vars,
		fresh:   map[string]uint64{},
		writes:  map[uint64]map[string]any{},
		nextUID: b.nextUID,
	}

	for i, m := range mutations {
		ok, err := evalCond(m.Cond, vars)
		if err != nil {
			return fmt.Errorf("mutation %d: %w", i, err)
		}
		if !ok {
			continue
		}
		if err := txn.apply(m.SetJSON); err != nil {
			err = fmt.Errorf("mutation %d: %w", i, err)
			telemetry.TraceError(span, err)
			return err
		}
	}

	maps.Copy(b.nodes, txn.writes)
	b.nextUID = txn.nextUID
	b.commits++
	return nil
}

// Close see [storage.Upserter].Close.
func (b *MemoryBackend) Close() error { return nil }

// Calls returns how many times Upsert was invoked, including failed attempts.
func (b *MemoryBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Commits returns how many upserts were applied.
func (b *MemoryBackend) Commits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commits
}

// Nodes returns a snapshot of every stored node ordered by uid.
func (b *MemoryBackend) Nodes() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	uids := slices.Sorted(maps.Keys(b.nodes))
	out := make([]Node, 0, len(uids))
	for _, uid := range uids {
		out = append(out, Node{UID: uid, Predicates: clonePredicates(b.nodes[uid])})
	}
	return out
}

// Node returns the node with the given uid.
func (b *MemoryBackend) Node(uid uint64) (Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	preds, ok := b.nodes[uid]
	if !ok {
		return Node{}, false
	}
	return Node{UID: uid, Predicates: clonePredicates(preds)}, true
}

// Find returns the nodes whose predicate equals value, ordered by uid.
func (b *MemoryBackend) Find(predicate string, value any) []Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Node
	for _, uid := range b.lookup(predicate, canonical(value)) {
		out = append(out, Node{UID: uid, Predicates: clonePredicates(b.nodes[uid])})
	}
	return out
}

func (b *MemoryBackend) lookup(predicate string, value any) []uint64 {
	var uids []uint64
	for uid, preds := range b.nodes {
		if v, ok := preds[predicate]; ok && scalarEqual(v, value) {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	return uids
}

func (b *MemoryBackend) evalQuery(query string) (map[string][]uint64, error) {
	vars := map[string][]uint64{}

	query = strings.TrimSpace(query)
	if query == "" {
		return vars, nil
	}
	if !strings.HasPrefix(query, "{") || !strings.HasSuffix(query, "}") {
		return nil, fmt.Errorf("malformed query block")
	}

	for _, line := range strings.Split(query[1:len(query)-1], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := eqLineRe.FindStringSubmatch(line); m != nil {
			literal, err := decodeLiteral(m[3])
			if err != nil {
				return nil, fmt.Errorf("query line %q: %w", line, err)
			}
			vars[m[1]] = first(b.lookup(m[2], literal))
			continue
		}

		if m := unionLineRe.FindStringSubmatch(line); m != nil {
			var uids []uint64
			for _, name := range strings.Split(m[2], ",") {
				bound, ok := vars[name]
				if !ok {
					return nil, fmt.Errorf("query line %q: undefined variable %s", line, name)
				}
				uids = append(uids, bound...)
			}
			slices.Sort(uids)
			vars[m[1]] = first(slices.Compact(uids))
			continue
		}

		return nil, fmt.Errorf("unsupported query line %q", line)
	}

	return vars, nil
}

func evalCond(cond string, vars map[string][]uint64) (bool, error) {
	if cond == "" {
		return true, nil
	}
	m := condRe.FindStringSubmatch(cond)
	if m == nil {
		return false, fmt.Errorf("unsupported condition %q", cond)
	}
	bound, ok := vars[m[1]]
	if !ok {
		return false, fmt.Errorf("undefined variable %s in condition", m[1])
	}
	want, err := strconv.Atoi(m[2])
	if err != nil {
		return false, err
	}
	return len(bound) == want, nil
}

// txn stages the writes of one upsert so a failing mutation leaves the graph untouched.
type txn struct {
	backend *MemoryBackend
	vars    map[string][]uint64
	// fresh maps blank nodes and uid() references over empty variables to the node
	// allocated for them, so every mutation of the request sees the same node.
	fresh   map[string]uint64
	writes  map[uint64]map[string]any
	nextUID uint64
}

func (t *txn) apply(setJSON []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(setJSON)))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("malformed set payload: %w", err)
	}

	switch p := payload.(type) {
	case []any:
		for _, item := range p {
			obj, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("set payload entries must be objects")
			}
			if _, err := t.setObject(obj); err != nil {
				return err
			}
		}
	case map[string]any:
		if _, err := t.setObject(p); err != nil {
			return err
		}
	default:
		return fmt.Errorf("set payload must be an object or an array of objects")
	}
	return nil
}

func (t *txn) setObject(obj map[string]any) (uint64, error) {
	uid, err := t.resolve(obj[identityField])
	if err != nil {
		return 0, err
	}
	preds := t.node(uid)

	for field, v := range obj {
		if field == identityField {
			continue
		}
		value, err := t.value(v)
		if err != nil {
			return 0, err
		}
		if edges, ok := value.([]Edge); ok {
			if existing, ok := preds[field].([]Edge); ok {
				for _, e := range edges {
					if !slices.Contains(existing, e) {
						existing = append(existing, e)
					}
				}
				edges = existing
			}
			preds[field] = edges
			continue
		}
		preds[field] = value
	}
	return uid, nil
}

func (t *txn) value(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val[identityField]; !ok {
			return val, nil
		}
		uid, err := t.setObject(val)
		if err != nil {
			return nil, err
		}
		return Edge{UID: uid}, nil
	case []any:
		if len(val) == 0 {
			return val, nil
		}
		for _, item := range val {
			obj, ok := item.(map[string]any)
			if !ok {
				return val, nil
			}
			if _, ok := obj[identityField]; !ok {
				return val, nil
			}
		}
		edges := make([]Edge, 0, len(val))
		for _, item := range val {
			uid, err := t.setObject(item.(map[string]any))
			if err != nil {
				return nil, err
			}
			edges = append(edges, Edge{UID: uid})
		}
		return edges, nil
	default:
		return canonical(v), nil
	}
}

func (t *txn) resolve(ref any) (uint64, error) {
	if ref == nil {
		return t.allocate(), nil
	}

	s, ok := ref.(string)
	if !ok {
		return 0, fmt.Errorf("uid must be a string, got %T", ref)
	}

	if m := uidVarRe.FindStringSubmatch(s); m != nil {
		bound, ok := t.vars[m[1]]
		if !ok {
			return 0, fmt.Errorf("undefined variable %s in uid reference", m[1])
		}
		if len(bound) > 0 {
			return bound[0], nil
		}
		return t.blank(s), nil
	}

	if strings.HasPrefix(s, "_:") {
		return t.blank(s), nil
	}

	if strings.HasPrefix(s, "0x") {
		uid, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid uid %q: %w", s, err)
		}
		if _, ok := t.writes[uid]; ok {
			return uid, nil
		}
		if _, ok := t.backend.nodes[uid]; !ok {
			return 0, fmt.Errorf("uid %s does not exist", s)
		}
		return uid, nil
	}

	return 0, fmt.Errorf("invalid uid reference %q", s)
}

func (t *txn) blank(name string) uint64 {
	if uid, ok := t.fresh[name]; ok {
		return uid
	}
	uid := t.allocate()
	t.fresh[name] = uid
	return uid
}

func (t *txn) allocate() uint64 {
	t.nextUID++
	uid := t.nextUID
	t.writes[uid] = map[string]any{}
	return uid
}

// node returns the staged predicates of uid, copying the committed ones on first write.
func (t *txn) node(uid uint64) map[string]any {
	if preds, ok := t.writes[uid]; ok {
		return preds
	}
	preds := clonePredicates(t.backend.nodes[uid])
	t.writes[uid] = preds
	return preds
}

func first(uids []uint64) []uint64 {
	if len(uids) == 0 {
		return nil
	}
	return uids[:1]
}

func decodeLiteral(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid literal: %w", err)
	}
	return canonical(v), nil
}

// canonical maps JSON numbers to int64 when integral and float64 otherwise, so that
// 7 and 7.0 compare equal.
func canonical(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return canonical(f)
		}
		return n.String()
	case int:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	default:
		return v
	}
}

func scalarEqual(stored, literal any) bool {
	switch stored.(type) {
	case string, int64, float64, bool:
	default:
		return false
	}
	return canonical(stored) == literal
}

func clonePredicates(preds map[string]any) map[string]any {
	out := make(map[string]any, len(preds))
	for k, v := range preds {
		if edges, ok := v.([]Edge); ok {
			v = slices.Clone(edges)
		}
		out[k] = v
	}
	return out
}
