package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func TestDeep(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]any
		override map[string]any
		want     map[string]any
	}{
		{
			name:     "nested override is right-biased",
			base:     map[string]any{"a": map[string]any{"b": 1, "c": 2}},
			override: map[string]any{"a": map[string]any{"b": 9}},
			want:     map[string]any{"a": map[string]any{"b": 9, "c": 2}},
		},
		{
			name:     "slices are replaced whole",
			base:     map[string]any{"hosts": []any{"a", "b", "c"}},
			override: map[string]any{"hosts": []any{"z"}},
			want:     map[string]any{"hosts": []any{"z"}},
		},
		{
			name:     "scalar replaces map",
			base:     map[string]any{"a": map[string]any{"b": 1}},
			override: map[string]any{"a": false},
			want:     map[string]any{"a": false},
		},
		{
			name:     "map replaces scalar",
			base:     map[string]any{"a": "x"},
			override: map[string]any{"a": map[string]any{"b": 1}},
			want:     map[string]any{"a": map[string]any{"b": 1}},
		},
		{
			name:     "explicit nil wins",
			base:     map[string]any{"a": 1},
			override: map[string]any{"a": nil},
			want:     map[string]any{"a": nil},
		},
		{
			name:     "nil base",
			override: map[string]any{"a": 1},
			want:     map[string]any{"a": 1},
		},
		{
			name: "nil override",
			base: map[string]any{"a": 1},
			want: map[string]any{"a": 1},
		},
		{
			name: "both nil",
			want: map[string]any{},
		},
		{
			name:     "yaml style nested map",
			base:     map[string]any{"a": map[string]any{"b": 1, "c": 2}},
			override: map[string]any{"a": map[any]any{"c": 3}},
			want:     map[string]any{"a": map[string]any{"b": 1, "c": 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deep(tt.base, tt.override)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Deep() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeepDoesNotAlias(t *testing.T) {
	base := map[string]any{"a": map[string]any{"b": 1}, "list": []any{1}}
	override := map[string]any{"c": map[string]any{"d": 2}}

	got := Deep(base, override)
	got["a"].(map[string]any)["b"] = 100
	got["c"].(map[string]any)["d"] = 200
	got["list"].([]any)[0] = 300

	if base["a"].(map[string]any)["b"] != 1 {
		t.Error("Deep() result aliases base map")
	}
	if override["c"].(map[string]any)["d"] != 2 {
		t.Error("Deep() result aliases override map")
	}
	if base["list"].([]any)[0] != 1 {
		t.Error("Deep() result aliases base slice")
	}
}

func TestShallow(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 1}
	override := map[string]any{"a": map[string]any{"x": 3}}

	got := Shallow(base, override)
	want := map[string]any{"a": map[string]any{"x": 3}, "b": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Shallow() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSet(t *testing.T) {
	m := map[string]any{}
	Set(m, "v", "users", "content-types", "user", "schema")

	got, ok := Get(m, "users", "content-types", "user", "schema")
	if !ok || got != "v" {
		t.Fatalf("Get() = %v, %v; want v, true", got, ok)
	}
	if _, ok := Get(m, "users", "strapi-server"); ok {
		t.Error("Get() found a missing path")
	}
	if _, ok := Get(m, "users", "content-types", "user", "schema", "deeper"); ok {
		t.Error("Get() walked through a non-map value")
	}
}

var propKeys = []string{"a", "b", "c", "d"}

func drawValue(t *rapid.T, depth int, label string) any {
	kind := rapid.IntRange(0, 3).Draw(t, label+".kind")
	if depth == 0 && kind == 3 {
		kind = 0
	}
	switch kind {
	case 0:
		return rapid.IntRange(-5, 5).Draw(t, label+".int")
	case 1:
		return rapid.SampledFrom([]string{"x", "y", "z"}).Draw(t, label+".str")
	case 2:
		return []any{rapid.Bool().Draw(t, label+".elem")}
	default:
		return drawMap(t, depth-1, label)
	}
}

func drawMap(t *rapid.T, depth int, label string) map[string]any {
	n := rapid.IntRange(0, 3).Draw(t, label+".len")
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		k := rapid.SampledFrom(propKeys).Draw(t, label+".key")
		m[k] = drawValue(t, depth, label+"."+k)
	}
	return m
}

type leaf struct {
	path  []string
	value any
}

func leaves(m map[string]any, prefix []string) []leaf {
	var out []leaf
	for k, v := range m {
		p := append(append([]string(nil), prefix...), k)
		if sub, ok := v.(map[string]any); ok {
			out = append(out, leaves(sub, p)...)
			continue
		}
		out = append(out, leaf{path: p, value: v})
	}
	return out
}

func TestDeepOverrideLeavesWin(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := drawMap(t, 2, "base")
		override := drawMap(t, 2, "override")

		got := Deep(base, override)
		for _, l := range leaves(override, nil) {
			v, ok := Get(got, l.path...)
			if !ok {
				t.Fatalf("path %v missing from result", l.path)
			}
			if diff := cmp.Diff(l.value, v); diff != "" {
				t.Fatalf("path %v mismatch (-override +got):\n%s", l.path, diff)
			}
		}
	})
}

func TestDeepIdentities(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := drawMap(t, 2, "m")
		before := Clone(m)

		if diff := cmp.Diff(m, Deep(m, nil)); diff != "" {
			t.Fatalf("Deep(m, nil) != m:\n%s", diff)
		}
		if diff := cmp.Diff(m, Deep(nil, m)); diff != "" {
			t.Fatalf("Deep(nil, m) != m:\n%s", diff)
		}
		if diff := cmp.Diff(m, Deep(m, m)); diff != "" {
			t.Fatalf("Deep(m, m) != m:\n%s", diff)
		}
		if diff := cmp.Diff(before, m); diff != "" {
			t.Fatalf("input mutated:\n%s", diff)
		}
	})
}
