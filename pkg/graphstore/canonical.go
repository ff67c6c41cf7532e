package graphstore

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// propertied is anything node-like: nodes and relationships both qualify.
type propertied interface {
	GetProperties() map[string]any
}

// Canonicalize converts a value returned by the store into plain scalars,
// lists and maps fit for JSON or table display. Node-like values collapse to
// their properties; temporal and spatial values become strings.
func Canonicalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case dbtype.Path:
		nodes := make([]any, 0, len(val.Nodes))
		for _, n := range val.Nodes {
			nodes = append(nodes, Canonicalize(n))
		}
		return nodes
	case propertied:
		return canonicalMap(val.GetProperties())
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case dbtype.Date, dbtype.LocalDateTime, dbtype.LocalTime, dbtype.Time,
		dbtype.Duration, dbtype.Point2D, dbtype.Point3D:
		return fmt.Sprint(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Canonicalize(item)
		}
		return out
	case map[string]any:
		return canonicalMap(val)
	default:
		return val
	}
}

func canonicalMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Canonicalize(v)
	}
	return out
}
