package contenttype

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidSchema is wrapped by every problem Validate reports.
var ErrInvalidSchema = errors.New("invalid content-type schema")

var knownTypes = map[string]bool{
	TypeString:      true,
	TypeText:        true,
	TypeRichText:    true,
	TypeBlocks:      true,
	TypeEmail:       true,
	TypePassword:    true,
	TypeUID:         true,
	TypeEnumeration: true,
	TypeInteger:     true,
	TypeBigInteger:  true,
	TypeFloat:       true,
	TypeDecimal:     true,
	TypeDate:        true,
	TypeTime:        true,
	TypeDateTime:    true,
	TypeTimestamp:   true,
	TypeBoolean:     true,
	TypeJSON:        true,
	TypeMedia:       true,
	TypeRelation:    true,
	TypeComponent:   true,
	TypeDynamicZone: true,
	TypeCustomField: true,
}

// Validate checks the structural soundness of a schema and returns every
// problem found, combined with multierr.
func Validate(s Schema) error {
	var errs error

	switch k := s.Kind(); k {
	case "", KindCollectionType, KindSingleType:
	default:
		errs = multierr.Append(errs, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchema, k))
	}

	if raw, ok := s["attributes"]; ok && s.Attributes() == nil && raw != nil {
		return multierr.Append(errs, fmt.Errorf("%w: attributes must be an object", ErrInvalidSchema))
	}

	for _, name := range s.AttributeNames() {
		attr, _, err := s.Attribute(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %v", ErrInvalidSchema, err))
			continue
		}
		errs = multierr.Append(errs, validateAttribute(name, attr))
	}
	return errs
}

func validateAttribute(name string, attr Attribute) error {
	var errs error
	fail := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		errs = multierr.Append(errs, fmt.Errorf("%w: attribute %q: %s", ErrInvalidSchema, name, msg))
	}

	if attr.Type == "" {
		fail("missing type")
		return errs
	}
	if !knownTypes[attr.Type] {
		fail("unknown type %q", attr.Type)
	}

	switch attr.Type {
	case TypeComponent:
		if attr.Component == "" {
			fail("component attribute needs a component target")
		}
	case TypeDynamicZone:
		if len(attr.Components) == 0 {
			fail("dynamiczone attribute needs at least one component")
		}
	case TypeEnumeration:
		if len(attr.Enum) == 0 {
			fail("enumeration attribute needs enum values")
		}
	case TypeRelation:
		if attr.Relation == "" {
			fail("relation attribute needs a relation kind")
		}
	}

	if attr.Repeatable && attr.Type != TypeComponent {
		fail("repeatable is only valid on component attributes")
	}
	if attr.Min != nil && attr.Max != nil && *attr.Min > *attr.Max {
		fail("min %v is greater than max %v", *attr.Min, *attr.Max)
	}
	if attr.MinLength != nil && attr.MaxLength != nil && *attr.MinLength > *attr.MaxLength {
		fail("minLength %d is greater than maxLength %d", *attr.MinLength, *attr.MaxLength)
	}
	return errs
}
