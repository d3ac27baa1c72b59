package blocks

// FieldKind selects how a field is rendered and coerced.
type FieldKind string

const (
	KindText      FieldKind = "text"
	KindMultiline FieldKind = "multiline"
	KindEnum      FieldKind = "enum"
	KindInteger   FieldKind = "integer"
)

// Field describes one editable key of a block's content.
type Field struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Kind        FieldKind `json:"kind"`
	Options     []string  `json:"options,omitempty"`
	Default     any       `json:"default"`
	Min         int       `json:"min,omitempty"`
	Max         int       `json:"max,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Schema is the ordered field list of a block type.
type Schema struct {
	Type   Type    `json:"type"`
	Fields []Field `json:"fields"`
}

// Field returns the field named key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// MaxStoryPoints is the upper bound for user story estimates.
const MaxStoryPoints = 13

var levels = []string{"high", "medium", "low"}

var schemas = map[Type]Schema{
	FunctionalReq: {Type: FunctionalReq, Fields: []Field{
		{Key: "description", Label: "Description", Kind: KindMultiline, Default: "", Placeholder: "Describe the functional requirement..."},
		{Key: "priority", Label: "Priority", Kind: KindEnum, Options: levels, Default: "medium"},
		{Key: "category", Label: "Category", Kind: KindText, Default: "", Placeholder: "Category"},
	}},
	NonFunctionalReq: {Type: NonFunctionalReq, Fields: []Field{
		{Key: "description", Label: "Description", Kind: KindMultiline, Default: "", Placeholder: "Describe the non-functional requirement..."},
		{Key: "type", Label: "Type", Kind: KindEnum, Options: []string{"performance", "security", "usability", "reliability", "maintainability"}, Default: "performance"},
	}},
	UserStory: {Type: UserStory, Fields: []Field{
		{Key: "story", Label: "Story", Kind: KindMultiline, Default: "", Placeholder: "As a [user], I want [goal] so that [benefit]"},
		{Key: "acceptance", Label: "Acceptance Criteria", Kind: KindText, Default: "", Placeholder: "Acceptance criteria"},
		{Key: "points", Label: "Story Points", Kind: KindInteger, Default: 0, Min: 0, Max: MaxStoryPoints},
	}},
	UseCase: {Type: UseCase, Fields: []Field{
		{Key: "title", Label: "Title", Kind: KindText, Default: "", Placeholder: "Use case title"},
		{Key: "actor", Label: "Actor", Kind: KindText, Default: "", Placeholder: "Primary actor"},
		{Key: "steps", Label: "Steps", Kind: KindMultiline, Default: "", Placeholder: "One step per line"},
		{Key: "conditions", Label: "Conditions", Kind: KindMultiline, Default: "", Placeholder: "Pre- and post-conditions"},
	}},
	Constraints: {Type: Constraints, Fields: []Field{
		{Key: "text", Label: "Constraint", Kind: KindMultiline, Default: "", Placeholder: "Describe the constraint..."},
		{Key: "impact", Label: "Impact", Kind: KindEnum, Options: levels, Default: "medium"},
	}},
	Notes: {Type: Notes, Fields: []Field{
		{Key: "text", Label: "Notes", Kind: KindMultiline, Default: "", Placeholder: "Add notes..."},
	}},
	Dependencies: {Type: Dependencies, Fields: []Field{
		{Key: "text", Label: "Dependency", Kind: KindMultiline, Default: "", Placeholder: "Describe the dependency..."},
		{Key: "type", Label: "Type", Kind: KindEnum, Options: []string{"internal", "external", "technical", "business"}, Default: "internal"},
	}},
}

// SchemaFor returns the field schema for t. Unrecognised types get the
// free-text notes schema.
func SchemaFor(t Type) Schema {
	if s, ok := schemas[t]; ok {
		return s
	}
	s := schemas[Notes]
	s.Type = t
	return s
}

// Schemas returns the schemas of every registered template, in order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, SchemaFor(t))
	}
	return out
}
