// Package blocks holds the block template catalog and the per-type content
// schemas used to render and edit block content on the canvas.
package blocks

import (
	"fmt"
	"reflect"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ucdcanvas/internal/apperr"
)

// Type is the key identifying a block template.
type Type string

// Supported block types, in palette order.
const (
	FunctionalReq    Type = "FUNCTIONAL_REQ"
	NonFunctionalReq Type = "NON_FUNCTIONAL_REQ"
	UserStory        Type = "USER_STORY"
	UseCase          Type = "USE_CASE"
	Constraints      Type = "CONSTRAINTS"
	Notes            Type = "NOTES"
	Dependencies     Type = "DEPENDENCIES"
)

// Content is the polymorphic content record of a block. Its recognised keys
// are fixed per block type by the type's Schema.
type Content map[string]any

// Clone returns a copy of c. Values are scalars, so a map copy is deep.
func (c Content) Clone() Content {
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Template is an immutable catalog entry.
type Template struct {
	Type           Type    `json:"type"`
	Title          string  `json:"title"`
	Icon           string  `json:"icon"`
	DefaultContent Content `json:"defaultContent"`
}

// DefaultTemplates returns the built-in catalog in palette order.
func DefaultTemplates() []Template {
	return []Template{
		{
			Type:  FunctionalReq,
			Title: "Functional Requirements",
			Icon:  "layout",
			DefaultContent: Content{
				"description": "",
				"priority":    "medium",
				"category":    "",
			},
		},
		{
			Type:  NonFunctionalReq,
			Title: "Non-Functional Requirements",
			Icon:  "settings",
			DefaultContent: Content{
				"description": "",
				"type":        "performance",
			},
		},
		{
			Type:  UserStory,
			Title: "User Story",
			Icon:  "users",
			DefaultContent: Content{
				"story":      "",
				"acceptance": "",
				"points":     0,
			},
		},
		{
			Type:  UseCase,
			Title: "Use Case",
			Icon:  "file-text",
			DefaultContent: Content{
				"title":      "",
				"actor":      "",
				"steps":      "",
				"conditions": "",
			},
		},
		{
			Type:  Constraints,
			Title: "Constraints",
			Icon:  "layers",
			DefaultContent: Content{
				"text":   "",
				"impact": "medium",
			},
		},
		{
			Type:  Notes,
			Title: "Notes",
			Icon:  "message-square",
			DefaultContent: Content{
				"text": "",
			},
		},
		{
			Type:  Dependencies,
			Title: "Dependencies",
			Icon:  "link-2",
			DefaultContent: Content{
				"text": "",
				"type": "internal",
			},
		},
	}
}

// Registry is a read-only, ordered catalog of block templates.
type Registry struct {
	order  []Type
	byType map[Type]Template
}

// NewRegistry builds a registry from templates, preserving their order.
// Every template must have an explicit schema and a default content record
// that matches it.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{byType: make(map[Type]Template, len(templates))}
	for _, t := range templates {
		if err := validateTemplate(t); err != nil {
			return nil, err
		}
		if _, dup := r.byType[t.Type]; dup {
			return nil, fmt.Errorf("blocks: duplicate template %q", t.Type)
		}
		t.DefaultContent = t.DefaultContent.Clone()
		r.byType[t.Type] = t
		r.order = append(r.order, t.Type)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(templates ...Template) *Registry {
	r, err := NewRegistry(templates...)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return MustNewRegistry(DefaultTemplates()...)
})

// Default returns the process-wide registry built from DefaultTemplates.
func Default() *Registry {
	return defaultRegistry()
}

// Lookup returns the template for t. The returned default content is a copy.
func (r *Registry) Lookup(t Type) (Template, error) {
	tpl, ok := r.byType[t]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", apperr.ErrUnknownBlockType, t)
	}
	tpl.DefaultContent = tpl.DefaultContent.Clone()
	return tpl, nil
}

// Has reports whether t is registered.
func (r *Registry) Has(t Type) bool {
	_, ok := r.byType[t]
	return ok
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []Template {
	out := make([]Template, 0, len(r.order))
	for _, t := range r.order {
		tpl := r.byType[t]
		tpl.DefaultContent = tpl.DefaultContent.Clone()
		out = append(out, tpl)
	}
	return out
}

func validateTemplate(t Template) error {
	if err := validation.ValidateStruct(&t,
		validation.Field(&t.Type, validation.Required),
		validation.Field(&t.Title, validation.Required),
		validation.Field(&t.Icon, validation.Required),
	); err != nil {
		return fmt.Errorf("blocks: template %q: %w", t.Type, err)
	}
	schema, ok := schemas[t.Type]
	if !ok {
		return fmt.Errorf("blocks: template %q has no field schema", t.Type)
	}
	if len(t.DefaultContent) != len(schema.Fields) {
		return fmt.Errorf("blocks: template %q default content does not match its schema", t.Type)
	}
	if !reflect.DeepEqual(Normalize(t.Type, t.DefaultContent), t.DefaultContent) {
		return fmt.Errorf("blocks: template %q default content does not match its schema", t.Type)
	}
	return nil
}
