package contenttype

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStripFields(t *testing.T) {
	article := Schema{
		"options": map[string]any{"timestamps": []any{"createdAt", "updatedAt"}},
		"attributes": map[string]any{
			"title":  map[string]any{"type": "string"},
			"seo":    map[string]any{"type": "component", "component": "shared.seo"},
			"quotes": map[string]any{"type": "component", "component": "shared.quote", "repeatable": true},
			"body":   map[string]any{"type": "dynamiczone", "components": []any{"shared.quote", "shared.seo"}},
		},
	}
	components := map[string]Schema{
		"shared.seo": {"attributes": map[string]any{
			"metaTitle": map[string]any{"type": "string"},
		}},
		"shared.quote": {"attributes": map[string]any{
			"text": map[string]any{"type": "text"},
		}},
	}

	data := map[string]any{
		"id":        7,
		"title":     "Hello",
		"createdAt": "2024-01-01",
		"createdBy": map[string]any{"id": 1},
		"seo":       map[string]any{"id": 3, "metaTitle": "meta"},
		"quotes":    []any{map[string]any{"id": 4, "text": "a"}, map[string]any{"id": 5, "text": "b"}},
		"body": []any{
			map[string]any{"__component": "shared.quote", "id": 8, "text": "c"},
			map[string]any{"__component": "shared.seo", "id": 9, "metaTitle": "m"},
		},
	}

	got := StripFields(data, article, components)
	want := map[string]any{
		"title":  "Hello",
		"seo":    map[string]any{"metaTitle": "meta"},
		"quotes": []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}},
		"body": []any{
			map[string]any{"__component": "shared.quote", "text": "c"},
			map[string]any{"__component": "shared.seo", "metaTitle": "m"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StripFields() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := data["id"]; !ok {
		t.Error("StripFields() modified its input")
	}
}

func TestStripFieldsCustomList(t *testing.T) {
	schema := Schema{"attributes": map[string]any{"title": map[string]any{"type": "string"}}}
	got := StripFields(map[string]any{"id": 1, "title": "t", "secret": "s"}, schema, nil, "secret")
	want := map[string]any{"id": 1, "title": "t"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StripFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestStripFieldsKeepsFalsyValues(t *testing.T) {
	schema := Schema{"attributes": map[string]any{
		"seo": map[string]any{"type": "component", "component": "shared.seo"},
	}}
	got := StripFields(map[string]any{"seo": nil, "count": 0}, schema, nil)
	want := map[string]any{"seo": nil, "count": 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StripFields() mismatch (-want +got):\n%s", diff)
	}
}
