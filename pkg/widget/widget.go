// Package widget maps item fields onto the parts of a rendered search
// result. Which field feeds which part is declared in configuration; nothing
// is guessed from field names.
package widget

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/core"
)

type BindingKind int

const (
	// Text renders the value as text content.
	Text BindingKind = iota
	// Href uses the value as a link target.
	Href
	// ImageSrc uses the value as an image source.
	ImageSrc
)

func (k BindingKind) String() string {
	switch k {
	case Text:
		return "text"
	case Href:
		return "href"
	case ImageSrc:
		return "image"
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// ParseBindingKind accepts "text", "href" and "image", in any case.
func ParseBindingKind(s string) (BindingKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return Text, nil
	case "href":
		return Href, nil
	case "image":
		return ImageSrc, nil
	}
	return 0, &core.ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown binding kind %q", s)}
}

// Binding ties a field of an item's field data to a display role.
type Binding struct {
	Field string
	Kind  BindingKind
	Label string
}

// DefaultBindings is used when no bindings are configured.
var DefaultBindings = []Binding{{Field: "name", Kind: Text}}

// FromConfig converts configured bindings, falling back to DefaultBindings
// when none are declared.
func FromConfig(cfg []config.BindingConfig) ([]Binding, error) {
	if len(cfg) == 0 {
		return DefaultBindings, nil
	}
	out := make([]Binding, 0, len(cfg))
	for _, b := range cfg {
		kind, err := ParseBindingKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("binding for field %q: %w", b.Field, err)
		}
		out = append(out, Binding{Field: b.Field, Kind: kind, Label: b.Label})
	}
	return out, nil
}

// Bound is a binding resolved against one result.
type Bound struct {
	Binding
	Value string
	// Alt is the image alt text when the CMS provides one.
	Alt string
}

// Bind resolves each binding against r. Bindings whose field is missing or
// has no usable value for its kind are left out.
func Bind(r core.Result, bindings []Binding) []Bound {
	out := make([]Bound, 0, len(bindings))
	for _, b := range bindings {
		raw, ok := r.FieldData.Get(b.Field)
		if !ok {
			continue
		}
		bound := Bound{Binding: b}
		switch b.Kind {
		case Text:
			bound.Value = textValue(raw)
		case Href:
			bound.Value = urlValue(raw)
		case ImageSrc:
			bound.Value = urlValue(raw)
			if m, ok := raw.(map[string]any); ok {
				bound.Alt, _ = m["alt"].(string)
			}
		}
		if bound.Value == "" {
			continue
		}
		out = append(out, bound)
	}
	return out
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// urlValue accepts a plain string or a CMS asset object carrying "url".
func urlValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if u, ok := t["url"].(string); ok {
			return u
		}
	}
	return ""
}
