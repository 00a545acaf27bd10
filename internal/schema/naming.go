package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// shortName drops any package qualifier from a class name.
func shortName(class string) string {
	if idx := strings.LastIndex(class, "."); idx != -1 {
		return class[idx+1:]
	}
	return class
}

// defaultRole is the singular snake-case class name.
func defaultRole(class string) string {
	return inflect.Singularize(inflect.Underscore(shortName(class)))
}

// defaultTable is the plural snake-case class name.
func defaultTable(class string) string {
	return inflect.Pluralize(inflect.Underscore(shortName(class)))
}

func keyName(parts ...string) string {
	return strings.Join(parts, "_")
}
