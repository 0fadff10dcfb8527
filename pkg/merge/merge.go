// Package merge provides the map merge utilities used to combine plugin
// default configuration with user overrides.
//
// Conflict policy for Deep:
//   - both sides are maps: merge recursively
//   - anything else (scalars, slices, nil, mismatched kinds): override wins
//
// Slices are never merged element by element; an override slice replaces the
// base slice entirely.
package merge

// Deep returns a new map holding base with override merged on top.
// Neither input is modified and the result shares no maps or slices with
// either input.
func Deep(base, override map[string]any) map[string]any {
	out := Clone(base)
	if out == nil {
		out = make(map[string]any, len(override))
	}
	for key, ov := range override {
		bv, exists := out[key]
		if !exists {
			out[key] = CloneValue(ov)
			continue
		}

		bm, baseIsMap := AsMap(bv)
		om, overIsMap := AsMap(ov)
		if baseIsMap && overIsMap {
			out[key] = Deep(bm, om)
			continue
		}
		out[key] = CloneValue(ov)
	}
	return out
}

// Shallow returns a new map with the top-level keys of override replacing
// those of base. Nested values are shared, not copied.
func Shallow(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of m. A nil map clones to nil.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices; other values are returned as is.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return Clone(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out
	default:
		return v
	}
}

// AsMap reports whether v is a string-keyed map and returns it.
// YAML decoders may produce map[any]any for nested documents; those are
// converted when every key is a string.
func AsMap(v any) (map[string]any, bool) {
	switch tv := v.(type) {
	case map[string]any:
		return tv, true
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = e
		}
		return out, true
	default:
		return nil, false
	}
}

// Get walks m along path and returns the value found there.
func Get(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, p := range path {
		cm, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = cm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value in m at path, creating intermediate maps as needed.
// An intermediate value that is not a map is replaced.
func Set(m map[string]any, value any, path ...string) {
	if m == nil || len(path) == 0 {
		return
	}
	cur := m
	for _, p := range path[:len(path)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}
