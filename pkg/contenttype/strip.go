package contenttype

import "github.com/HerbHall/strata/pkg/merge"

// DefaultSystemFields are removed by StripFields when no field list is given.
var DefaultSystemFields = []string{"createdBy", "updatedBy", "publishedAt", "id", "_id"}

// StripFields returns a copy of data without system-managed fields, walking
// into component and dynamic-zone values. components maps component UIDs to
// their schemas. The schema's options.timestamps names are always stripped
// in addition to fields (DefaultSystemFields when fields is empty).
func StripFields(data map[string]any, schema Schema, components map[string]Schema, fields ...string) map[string]any {
	if len(fields) == 0 {
		fields = DefaultSystemFields
	}
	return stripFields(data, schema, components, fields)
}

func stripFields(data map[string]any, schema Schema, components map[string]Schema, fields []string) map[string]any {
	drop := make(map[string]bool, len(fields))
	for _, f := range fields {
		drop[f] = true
	}
	for _, f := range schema.TimestampFields() {
		drop[f] = true
	}

	out := make(map[string]any, len(data))
	for key, value := range data {
		if drop[key] {
			continue
		}
		out[key] = value
		if isFalsy(value) {
			continue
		}

		attr, ok, err := schema.Attribute(key)
		if !ok || err != nil {
			continue
		}

		switch attr.Type {
		case TypeDynamicZone:
			list, isList := value.([]any)
			if !isList {
				continue
			}
			cleaned := make([]any, len(list))
			for i, item := range list {
				m, isMap := merge.AsMap(item)
				if !isMap {
					cleaned[i] = item
					continue
				}
				uid, _ := m["__component"].(string)
				cleaned[i] = stripFields(m, components[uid], components, fields)
			}
			out[key] = cleaned
		case TypeComponent:
			compSchema := components[attr.Component]
			if list, isList := value.([]any); attr.Repeatable && isList {
				cleaned := make([]any, len(list))
				for i, item := range list {
					if m, isMap := merge.AsMap(item); isMap {
						cleaned[i] = stripFields(m, compSchema, components, fields)
					} else {
						cleaned[i] = item
					}
				}
				out[key] = cleaned
				continue
			}
			if m, isMap := merge.AsMap(value); isMap {
				out[key] = stripFields(m, compSchema, components, fields)
			}
		}
	}
	return out
}

func isFalsy(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case bool:
		return !tv
	case string:
		return tv == ""
	case int:
		return tv == 0
	case int64:
		return tv == 0
	case float64:
		return tv == 0
	default:
		return false
	}
}
