// Package contenttype models content-type schemas contributed by plugins and
// the user overlays applied on top of them.
package contenttype

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/HerbHall/strata/pkg/merge"
)

// Attribute type tags.
const (
	TypeString      = "string"
	TypeText        = "text"
	TypeRichText    = "richtext"
	TypeBlocks      = "blocks"
	TypeEmail       = "email"
	TypePassword    = "password"
	TypeUID         = "uid"
	TypeEnumeration = "enumeration"
	TypeInteger     = "integer"
	TypeBigInteger  = "biginteger"
	TypeFloat       = "float"
	TypeDecimal     = "decimal"
	TypeDate        = "date"
	TypeTime        = "time"
	TypeDateTime    = "datetime"
	TypeTimestamp   = "timestamp"
	TypeBoolean     = "boolean"
	TypeJSON        = "json"
	TypeMedia       = "media"
	TypeRelation    = "relation"
	TypeComponent   = "component"
	TypeDynamicZone = "dynamiczone"
	TypeCustomField = "customField"
)

// Schema kinds.
const (
	KindCollectionType = "collectionType"
	KindSingleType     = "singleType"
)

// Schema is a content-type schema document as read from schema.json or
// declared by a plugin entry. Top-level keys include kind, collectionName,
// info, options, pluginOptions and attributes.
type Schema map[string]any

// Attribute is the typed view of one schema attribute.
type Attribute struct {
	Type         string         `mapstructure:"type"`
	Required     bool           `mapstructure:"required"`
	Unique       bool           `mapstructure:"unique"`
	Private      bool           `mapstructure:"private"`
	Configurable *bool          `mapstructure:"configurable"`
	Default      any            `mapstructure:"default"`
	Min          *float64       `mapstructure:"min"`
	Max          *float64       `mapstructure:"max"`
	MinLength    *int           `mapstructure:"minLength"`
	MaxLength    *int           `mapstructure:"maxLength"`
	Enum         []string       `mapstructure:"enum"`
	Repeatable   bool           `mapstructure:"repeatable"`
	Component    string         `mapstructure:"component"`
	Components   []string       `mapstructure:"components"`
	Relation     string         `mapstructure:"relation"`
	Target       string         `mapstructure:"target"`
	Extra        map[string]any `mapstructure:",remain"`
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	return Schema(merge.Clone(s))
}

// Kind returns the schema kind, or "" when unset.
func (s Schema) Kind() string {
	k, _ := s["kind"].(string)
	return k
}

// Attributes returns the raw attribute map. The returned map is the schema's
// own; callers that mutate it mutate the schema.
func (s Schema) Attributes() map[string]any {
	attrs, _ := merge.AsMap(s["attributes"])
	return attrs
}

// AttributeNames returns the attribute names in sorted order.
func (s Schema) AttributeNames() []string {
	attrs := s.Attributes()
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attribute decodes the named attribute.
func (s Schema) Attribute(name string) (Attribute, bool, error) {
	raw, ok := s.Attributes()[name]
	if !ok {
		return Attribute{}, false, nil
	}
	attr, err := DecodeAttribute(raw)
	if err != nil {
		return Attribute{}, true, fmt.Errorf("attribute %q: %w", name, err)
	}
	return attr, true, nil
}

// TimestampFields returns options.timestamps when it is a list of names.
func (s Schema) TimestampFields() []string {
	raw, ok := merge.Get(s, "options", "timestamps")
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if name, ok := v.(string); ok {
			out = append(out, name)
		}
	}
	return out
}

// DecodeAttribute converts a raw attribute definition into an Attribute.
func DecodeAttribute(raw any) (Attribute, error) {
	var attr Attribute
	m, ok := merge.AsMap(raw)
	if !ok {
		return attr, fmt.Errorf("expected an object, got %T", raw)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &attr,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return attr, err
	}
	if err := dec.Decode(m); err != nil {
		return attr, err
	}
	return attr, nil
}

// Overlay applies a user schema fragment on top of base and returns the
// result. Top-level fragment keys replace the base keys. The attributes map
// is merged per attribute: an attribute named in the fragment replaces the
// base attribute as a whole, attributes the fragment does not mention are
// kept. Neither input is modified.
func Overlay(base, fragment Schema) Schema {
	out := base.Clone()
	if out == nil {
		out = Schema{}
	}
	for key, val := range fragment {
		if key != "attributes" {
			out[key] = merge.CloneValue(val)
			continue
		}
		fragAttrs, ok := merge.AsMap(val)
		if !ok {
			out[key] = merge.CloneValue(val)
			continue
		}
		attrs := out.Attributes()
		if attrs == nil {
			attrs = make(map[string]any, len(fragAttrs))
		}
		for name, def := range fragAttrs {
			attrs[name] = merge.CloneValue(def)
		}
		out[key] = attrs
	}
	return out
}
