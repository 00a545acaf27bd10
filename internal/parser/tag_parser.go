package parser

import (
	"fmt"
	"strings"

	"github.com/eleven-am/squall/internal/schema"
)

// TagName is the struct tag read by the parser.
const TagName = "squall"

// Entity level attributes, read from the tag on the embedded marker or parent.
var entityAttributes = map[string]bool{
	"table": true, "database": true, "role": true, "abstract": true, "passive": true,
	"hidden": true, "secured": true, "fillable": true, "index": true, "unique": true,
	"message": true,
}

// Column attributes.
var columnAttributes = map[string]bool{
	"column": true, "type": true, "nullable": true, "primary": true, "default": true,
	"hidden": true, "secured": true, "fillable": true, "index": true, "unique": true,
	"validate": true, schema.MutatorGetter: true, schema.MutatorSetter: true, schema.MutatorAccessor: true,
}

// TagParser handles parsing of squall struct tags
type TagParser struct{}

// NewTagParser creates a new tag parser instance
func NewTagParser() *TagParser {
	return &TagParser{}
}

// Parse splits a tag into attributes.
// Format: "type:string(64);nullable;default:'guest'"
// Returns: map[string]string{"type": "string(64)", "nullable": "", "default": "'guest'"}
// Repeated keys are joined with ";".
func (p *TagParser) Parse(tagValue string) map[string]string {
	attributes := make(map[string]string)

	if tagValue == "" {
		return attributes
	}

	for _, part := range strings.Split(tagValue, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if !ok {
			attributes[key] = ""
			continue
		}
		value = strings.TrimSpace(value)
		if existing, exists := attributes[key]; exists {
			attributes[key] = existing + ";" + value
		} else {
			attributes[key] = value
		}
	}

	return attributes
}

// IsRelation reports whether the attributes declare a relation.
func (p *TagParser) IsRelation(attrs map[string]string) bool {
	_, ok := attrs["relation"]
	return ok
}

// ValidateEntity checks entity level attributes.
func (p *TagParser) ValidateEntity(attrs map[string]string) error {
	for key, value := range attrs {
		if !entityAttributes[key] {
			return fmt.Errorf("unknown entity attribute '%s'", key)
		}
		switch key {
		case "abstract", "passive":
			if value != "" {
				return fmt.Errorf("flag attribute '%s' should not have a value", key)
			}
		case "index", "unique":
			if value == "" {
				return fmt.Errorf("%s requires a column list", key)
			}
		case "message":
			for _, m := range strings.Split(value, ";") {
				if _, _, ok := strings.Cut(m, "="); !ok {
					return fmt.Errorf("message '%s' must be rule=text", m)
				}
			}
		}
	}
	return nil
}

// ValidateColumn checks column attributes.
func (p *TagParser) ValidateColumn(attrs map[string]string) error {
	for key, value := range attrs {
		if !columnAttributes[key] {
			return fmt.Errorf("unknown column attribute '%s'", key)
		}
		switch key {
		case "nullable", "primary", "hidden", "secured", "fillable", "index", "unique":
			if value != "" {
				return fmt.Errorf("flag attribute '%s' should not have a value", key)
			}
		case "type", "column":
			if value == "" {
				return fmt.Errorf("%s cannot be empty", key)
			}
		case schema.MutatorGetter, schema.MutatorSetter, schema.MutatorAccessor:
			if value == "" {
				return fmt.Errorf("%s requires a handler", key)
			}
		}
	}
	return nil
}

// ValidateRelation checks a relation declaration.
func (p *TagParser) ValidateRelation(attrs map[string]string) error {
	switch attrs["relation"] {
	case schema.BelongsTo, schema.BelongsToMorphed, schema.HasOne, schema.HasMany,
		schema.ManyToMany, schema.ManyToMorphed, schema.ManyThrough:
	case "":
		return fmt.Errorf("relation type cannot be empty")
	default:
		return fmt.Errorf("unknown relation type '%s'", attrs["relation"])
	}
	return nil
}

// Definition builds a relation definition. Every attribute other than
// relation and target becomes an option.
func (p *TagParser) Definition(attrs map[string]string, fallbackTarget string) schema.Definition {
	def := schema.Definition{Type: attrs["relation"], Target: attrs["target"], Options: make(map[string]string)}
	if def.Target == "" {
		def.Target = fallbackTarget
	}
	for key, value := range attrs {
		if key == "relation" || key == "target" {
			continue
		}
		if value == "" {
			value = "true"
		}
		def.Options[key] = value
	}
	return def
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
