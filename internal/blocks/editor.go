package blocks

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ucdcanvas/internal/apperr"
)

// RenderedField is one field ready for display: its schema plus the value
// currently shown.
type RenderedField struct {
	Field
	Value any `json:"value"`
}

// Render lays out content according to the schema of t. Missing or
// wrongly-typed values render as the field default.
func Render(t Type, c Content) []RenderedField {
	schema := SchemaFor(t)
	out := make([]RenderedField, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := c[f.Key]
		val := f.Default
		if ok {
			if coerced, err := coerce(f, v); err == nil {
				val = coerced
			}
		}
		out = append(out, RenderedField{Field: f, Value: val})
	}
	return out
}

// OnFieldChange validates and coerces a single field edit and returns the
// patch to merge into the node content.
func OnFieldChange(t Type, key string, raw any) (Content, error) {
	f, ok := SchemaFor(t).Field(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", apperr.ErrUnknownField, key, t)
	}
	v, err := coerce(f, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", apperr.ErrInvalidValue, t, key, err)
	}
	return Content{key: v}, nil
}

// ValidatePatch runs every key of patch through OnFieldChange and returns
// the coerced patch.
func ValidatePatch(t Type, patch Content) (Content, error) {
	out := make(Content, len(patch))
	for k, v := range patch {
		p, err := OnFieldChange(t, k, v)
		if err != nil {
			return nil, err
		}
		out[k] = p[k]
	}
	return out, nil
}

// Normalize reshapes decoded content to the schema of t: values are coerced
// (float64 to int for integer fields), invalid or missing values fall back
// to their default and unknown keys are dropped.
func Normalize(t Type, c Content) Content {
	schema := SchemaFor(t)
	out := make(Content, len(schema.Fields))
	for _, f := range schema.Fields {
		out[f.Key] = f.Default
		if v, ok := c[f.Key]; ok {
			if coerced, err := coerce(f, v); err == nil {
				out[f.Key] = coerced
			}
		}
	}
	return out
}

func coerce(f Field, v any) (any, error) {
	switch f.Kind {
	case KindInteger:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		return min(max(n, f.Min), f.Max), nil
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		opts := make([]any, len(f.Options))
		for i, o := range f.Options {
			opts[i] = o
		}
		if err := validation.Validate(s, validation.Required, validation.In(opts...)); err != nil {
			return nil, err
		}
		return s, nil
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case nil:
			return "", nil
		default:
			return nil, fmt.Errorf("expected string, got %T", v)
		}
	}
}

func toInt(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		p, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		f = p
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	if f < math.MinInt32 {
		return math.MinInt32, nil
	}
	return int(f), nil
}
