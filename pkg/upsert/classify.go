package upsert

// DefaultOpaqueTypes are the values of a `type` field that mark an object as a GeoJSON
// value to store inline rather than as a node of its own.
var DefaultOpaqueTypes = []string{
	"Point",
	"LineString",
	"Polygon",
	"MultiPoint",
	"MultiLineString",
	"MultiPolygon",
	"GeometryCollection",
	"Feature",
	"FeatureCollection",
}

// Classifier decides which JSON values are graph nodes. It is immutable once built
// and may be shared between goroutines.
type Classifier struct {
	opaqueTypes map[string]struct{}
}

// NewClassifier returns a Classifier recognizing DefaultOpaqueTypes plus any extra
// type names given.
func NewClassifier(extraOpaqueTypes ...string) *Classifier {
	types := make(map[string]struct{}, len(DefaultOpaqueTypes)+len(extraOpaqueTypes))
	for _, t := range DefaultOpaqueTypes {
		types[t] = struct{}{}
	}
	for _, t := range extraOpaqueTypes {
		types[t] = struct{}{}
	}
	return &Classifier{opaqueTypes: types}
}

// IsNode reports whether v is an object that is not an opaque structured value.
func (c *Classifier) IsNode(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return true
	}
	_, opaque := c.opaqueTypes[typ]
	return !opaque
}

// IsNodeList reports whether items is a non-empty array made only of nodes. Mixed and
// empty arrays are stored inline.
func (c *Classifier) IsNodeList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !c.IsNode(item) {
			return false
		}
	}
	return true
}

// CountLeaves estimates the number of N-Quads a document produces: every field of
// every node except the identity field, with each non-node value counting as one.
func (c *Classifier) CountLeaves(doc map[string]any) uint64 {
	var n uint64
	for field, v := range doc {
		if field == IdentityField {
			continue
		}
		n += c.countValue(v)
	}
	return n
}

func (c *Classifier) countValue(v any) uint64 {
	switch val := v.(type) {
	case map[string]any:
		if c.IsNode(val) {
			return c.CountLeaves(val)
		}
	case []any:
		if c.IsNodeList(val) {
			var n uint64
			for _, item := range val {
				n += c.CountLeaves(item.(map[string]any))
			}
			return n
		}
	}
	return 1
}
