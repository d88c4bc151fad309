package registry

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// TypeSignature identifies the capability type a resource is requested as.
// The zero value matches no type.
type TypeSignature struct {
	t reflect.Type
}

// TypeOf returns the signature of T.
func TypeOf[T any]() TypeSignature {
	return TypeSignature{t: reflect.TypeFor[T]()}
}

// Type returns the underlying reflect type, or nil for the zero signature.
func (s TypeSignature) Type() reflect.Type {
	return s.t
}

// String returns the package-qualified type name.
func (s TypeSignature) String() string {
	if s.t == nil {
		return "<nil>"
	}
	return qualifiedName(s.t)
}

func qualifiedName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	if t.Kind() == reflect.Pointer {
		return "*" + qualifiedName(t.Elem())
	}
	return t.String()
}

// Attr is a qualifier attribute beyond name and config node.
type Attr struct {
	Name  string
	Value string
}

// Key identifies one shared instance. Keys are comparable and may be used as
// map keys; build them with NewKey so attributes are canonical.
type Key struct {
	Type       TypeSignature
	Name       string
	ConfigNode string

	// Attrs is the canonical encoding of the extra qualifier attributes.
	Attrs string
}

// NewKey builds a key. Attributes may be given in any order; two keys with
// pairwise equal attributes are equal.
func NewKey(t TypeSignature, name, configNode string, attrs ...Attr) Key {
	return Key{
		Type:       t,
		Name:       name,
		ConfigNode: configNode,
		Attrs:      encodeAttrs(attrs),
	}
}

func encodeAttrs(attrs []Attr) string {
	if len(attrs) == 0 {
		return ""
	}
	sorted := append([]Attr(nil), attrs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Value < sorted[j].Value
	})

	var b strings.Builder
	for i, a := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(a.Name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(a.Value))
	}
	return b.String()
}

// flightKey encodes k without ambiguity. String is for logs only: a name or
// node containing '@' or '{' can make two keys print alike.
func (k Key) flightKey() string {
	return strconv.Quote(k.Type.String()) + " " +
		strconv.Quote(k.Name) + " " +
		strconv.Quote(k.ConfigNode) + " " +
		strconv.Quote(k.Attrs)
}

func (k Key) String() string {
	s := k.Type.String() + "/" + k.Name + "@" + k.ConfigNode
	if k.Attrs != "" {
		s += "{" + k.Attrs + "}"
	}
	return s
}
