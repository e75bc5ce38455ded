package logging

import (
	"log/slog"
	"slices"
	"strings"
)

const moduleKey = "module"

// field is one attribute with its groups folded into a dotted key.
type field struct {
	key   string
	value slog.Value
}

// attrSet is the WithAttrs/WithGroup state of the buffer and journal
// handlers. Attributes are flattened when added, so a group opened later
// does not rename them.
type attrSet struct {
	fields []field
	groups []string
}

func (s attrSet) withAttrs(attrs []slog.Attr) attrSet {
	out := attrSet{fields: slices.Clone(s.fields), groups: s.groups}
	for _, a := range attrs {
		out.fields = appendField(out.fields, s.groups, a)
	}
	return out
}

func (s attrSet) withGroup(name string) attrSet {
	if name == "" {
		return s
	}
	return attrSet{fields: s.fields, groups: append(slices.Clone(s.groups), name)}
}

// record returns the handler's fields followed by those of r.
func (s attrSet) record(r slog.Record) []field {
	out := make([]field, len(s.fields), len(s.fields)+r.NumAttrs())
	copy(out, s.fields)
	r.Attrs(func(a slog.Attr) bool {
		out = appendField(out, s.groups, a)
		return true
	})
	return out
}

func appendField(dst []field, groups []string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = appendField(dst, inner, ga)
		}
		return dst
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: a.Value})
}
