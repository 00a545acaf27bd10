package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/logger"
	"github.com/eleven-am/squall/internal/schema"
)

// FieldDefinition represents a struct field and its squall tag
type FieldDefinition struct {
	Name       string
	Type       string
	IsPointer  bool
	IsArray    bool
	Embedded   bool
	Tag        string
	Attributes map[string]string
}

// StructDefinition represents one parsed struct
type StructDefinition struct {
	Name     string
	Embeds   []FieldDefinition
	Fields   []FieldDefinition
	Entity   map[string]string
	IsMarked bool
}

// StructParser handles parsing Go struct definitions
type StructParser struct {
	fileSet   *token.FileSet
	tagParser *TagParser
}

func NewStructParser() *StructParser {
	return &StructParser{
		fileSet:   token.NewFileSet(),
		tagParser: NewTagParser(),
	}
}

func (p *StructParser) ParseDirectory(dir string) ([]StructDefinition, error) {
	pattern := filepath.Join(dir, "*.go")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob directory %s: %w", dir, err)
	}

	var all []StructDefinition

	for _, file := range matches {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}

		structs, err := p.ParseFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse file %s: %w", file, err)
		}

		all = append(all, structs...)
	}

	return all, nil
}

func (p *StructParser) ParseFile(filename string) ([]StructDefinition, error) {
	src, err := parser.ParseFile(p.fileSet, filename, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	var structs []StructDefinition

	ast.Inspect(src, func(n ast.Node) bool {
		node, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		structType, ok := node.Type.(*ast.StructType)
		if !ok {
			return true
		}
		structs = append(structs, p.parseStruct(node.Name.Name, structType))
		return true
	})

	return structs, nil
}

func (p *StructParser) parseStruct(name string, structType *ast.StructType) StructDefinition {
	def := StructDefinition{Name: name, Entity: make(map[string]string)}

	for _, field := range structType.Fields.List {
		typ, isPointer, isArray := p.parseFieldType(field.Type)
		tag := ""
		if field.Tag != nil {
			tag = p.extractTag(strings.Trim(field.Tag.Value, "`"), TagName)
		}

		if len(field.Names) == 0 {
			embed := FieldDefinition{Name: typ, Type: typ, IsPointer: isPointer, Embedded: true, Tag: tag}
			if typ == schema.EntityMarker {
				def.IsMarked = true
			} else {
				def.Embeds = append(def.Embeds, embed)
			}
			for k, v := range p.tagParser.Parse(tag) {
				def.Entity[k] = v
			}
			continue
		}

		for _, ident := range field.Names {
			if ident.Name == "_" {
				for k, v := range p.tagParser.Parse(tag) {
					def.Entity[k] = v
				}
				continue
			}
			if !ast.IsExported(ident.Name) || tag == "-" {
				continue
			}
			def.Fields = append(def.Fields, FieldDefinition{
				Name:       ident.Name,
				Type:       typ,
				IsPointer:  isPointer,
				IsArray:    isArray,
				Tag:        tag,
				Attributes: p.tagParser.Parse(tag),
			})
		}
	}

	return def
}

func (p *StructParser) parseFieldType(expr ast.Expr) (string, bool, bool) {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name, false, false

	case *ast.StarExpr:
		innerType, _, isArray := p.parseFieldType(t.X)
		return innerType, true, isArray

	case *ast.ArrayType:
		innerType, isPointer, _ := p.parseFieldType(t.Elt)
		return innerType, isPointer, true

	case *ast.SelectorExpr:
		return p.exprToString(t.X) + "." + t.Sel.Name, false, false

	case *ast.MapType:
		return "map", false, false
	}
	return "", false, false
}

func (p *StructParser) extractTag(tagString, tagName string) string {
	tag := reflect.StructTag(tagString)
	return tag.Get(tagName)
}

// toSnakeCase converts a field name into a column name, keeping acronyms
// together.
func (p *StructParser) toSnakeCase(s string) string {
	var result strings.Builder

	for i, r := range s {
		isUpper := r >= 'A' && r <= 'Z'

		if i > 0 {
			prevIsLower := s[i-1] >= 'a' && s[i-1] <= 'z'
			prevIsDigit := s[i-1] >= '0' && s[i-1] <= '9'
			prevIsUpper := s[i-1] >= 'A' && s[i-1] <= 'Z'

			if isUpper && (prevIsLower || prevIsDigit) {
				result.WriteRune('_')
			} else if isUpper && prevIsUpper && i+1 < len(s) {
				nextIsLower := s[i+1] >= 'a' && s[i+1] <= 'z'
				if nextIsLower {
					result.WriteRune('_')
				}
			}
		}

		if isUpper {
			result.WriteRune(r - 'A' + 'a')
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}

func (p *StructParser) exprToString(expr ast.Expr) string {
	switch v := expr.(type) {
	case *ast.Ident:
		return v.Name
	case *ast.SelectorExpr:
		return p.exprToString(v.X) + "." + v.Sel.Name
	default:
		return ""
	}
}

// Discovery finds entity classes in Go source directories. A class is an
// entity when it embeds squall.Entity or another entity.
type Discovery struct {
	dirs   []string
	parser *StructParser
}

// NewDiscovery returns a discovery over the given directories.
func NewDiscovery(dirs ...string) *Discovery {
	return &Discovery{dirs: dirs, parser: NewStructParser()}
}

// ClassesImplementing parses every directory and returns entity metadata.
func (d *Discovery) ClassesImplementing(marker string) (map[string]*schema.ClassMetadata, error) {
	structs := make(map[string]StructDefinition)
	for _, dir := range d.dirs {
		parsed, err := d.parser.ParseDirectory(dir)
		if err != nil {
			return nil, err
		}
		for _, s := range parsed {
			if _, exists := structs[s.Name]; exists {
				return nil, fmt.Errorf("struct %s declared twice", s.Name)
			}
			structs[s.Name] = s
		}
	}

	names := make([]string, 0, len(structs))
	for name := range structs {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make(map[string]*schema.ClassMetadata)
	for _, name := range names {
		s := structs[name]
		parent, ok := entityParent(s, structs, marker, make(map[string]bool))
		if !ok {
			continue
		}
		meta, err := d.parser.classMetadata(s, parent, structs)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		classes[name] = meta
	}

	logger.Parser().Debug("Discovered entities", "count", len(classes), "dirs", strings.Join(d.dirs, ","))
	return classes, nil
}

// entityParent resolves the class's parent. The result is the marker for
// root entities.
func entityParent(s StructDefinition, structs map[string]StructDefinition, marker string, visiting map[string]bool) (string, bool) {
	if s.IsMarked {
		return marker, true
	}
	if visiting[s.Name] {
		return "", false
	}
	visiting[s.Name] = true
	for _, embed := range s.Embeds {
		name := localName(embed.Type)
		parent, ok := structs[name]
		if !ok {
			continue
		}
		if _, ok := entityParent(parent, structs, marker, visiting); ok {
			return name, true
		}
	}
	return "", false
}

func localName(typ string) string {
	if idx := strings.LastIndex(typ, "."); idx >= 0 {
		return typ[idx+1:]
	}
	return typ
}

func (p *StructParser) classMetadata(s StructDefinition, parent string, structs map[string]StructDefinition) (*schema.ClassMetadata, error) {
	if err := p.tagParser.ValidateEntity(s.Entity); err != nil {
		return nil, err
	}

	meta := &schema.ClassMetadata{
		Name:      s.Name,
		Parent:    parent,
		Table:     s.Entity["table"],
		Database:  s.Entity["database"],
		Role:      s.Entity["role"],
		Hidden:    splitList(s.Entity["hidden"]),
		Secured:   splitList(s.Entity["secured"]),
		Fillable:  splitList(s.Entity["fillable"]),
		Mutators:  make(map[string]map[string]string),
		Validates: make(map[string][]string),
		Messages:  make(map[string]string),
	}
	_, meta.Abstract = s.Entity["abstract"]
	_, meta.Passive = s.Entity["passive"]

	for _, unique := range []bool{false, true} {
		key := "index"
		if unique {
			key = "unique"
		}
		if raw, ok := s.Entity[key]; ok {
			for _, cols := range strings.Split(raw, ";") {
				meta.Indexes = append(meta.Indexes, schema.IndexMetadata{Columns: splitList(cols), Unique: unique})
			}
		}
	}
	if raw, ok := s.Entity["message"]; ok {
		for _, m := range strings.Split(raw, ";") {
			rule, text, _ := strings.Cut(m, "=")
			meta.Messages[strings.TrimSpace(rule)] = strings.TrimSpace(text)
		}
	}

	for _, field := range s.Fields {
		if p.tagParser.IsRelation(field.Attributes) {
			if err := p.tagParser.ValidateRelation(field.Attributes); err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			// only local structs can stand in for an omitted target
			var fallback string
			if isStruct(field, structs) {
				fallback = localName(field.Type)
			}
			meta.Relations = append(meta.Relations, schema.RelationMetadata{
				Name:       p.toSnakeCase(field.Name),
				Definition: p.tagParser.Definition(field.Attributes, fallback),
			})
			continue
		}
		if field.Tag == "" && isStruct(field, structs) {
			continue
		}
		if err := p.addColumn(meta, field); err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	return meta, nil
}

func isStruct(field FieldDefinition, structs map[string]StructDefinition) bool {
	_, ok := structs[localName(field.Type)]
	return ok
}

func (p *StructParser) addColumn(meta *schema.ClassMetadata, field FieldDefinition) error {
	attrs := field.Attributes
	if err := p.tagParser.ValidateColumn(attrs); err != nil {
		return err
	}

	name := attrs["column"]
	if name == "" {
		name = p.toSnakeCase(field.Name)
	}
	_, primary := attrs["primary"]
	_, nullable := attrs["nullable"]

	typ := attrs["type"]
	if typ == "" {
		inferred, ok := inferType(field, primary)
		if !ok {
			return fmt.Errorf("cannot infer a column type from %s", field.Type)
		}
		typ = inferred
	}

	col := schema.ColumnMetadata{
		Name:     name,
		Type:     typ,
		Nullable: nullable || (field.IsPointer && !primary),
		Primary:  primary,
	}
	if def, ok := attrs["default"]; ok {
		col.Default = &def
	}
	meta.Columns = append(meta.Columns, col)

	for _, flag := range []struct {
		key  string
		list *[]string
	}{{"hidden", &meta.Hidden}, {"secured", &meta.Secured}, {"fillable", &meta.Fillable}} {
		if _, ok := attrs[flag.key]; ok {
			*flag.list = append(*flag.list, name)
		}
	}
	if _, ok := attrs["index"]; ok {
		meta.Indexes = append(meta.Indexes, schema.IndexMetadata{Columns: []string{name}})
	}
	if _, ok := attrs["unique"]; ok {
		meta.Indexes = append(meta.Indexes, schema.IndexMetadata{Columns: []string{name}, Unique: true})
	}
	if rules, ok := attrs["validate"]; ok {
		meta.Validates[name] = splitList(rules)
	}
	for _, kind := range []string{schema.MutatorGetter, schema.MutatorSetter, schema.MutatorAccessor} {
		handler, ok := attrs[kind]
		if !ok {
			continue
		}
		if meta.Mutators[kind] == nil {
			meta.Mutators[kind] = make(map[string]string)
		}
		meta.Mutators[kind][name] = handler
	}
	return nil
}

// inferType maps a Go field type onto an abstract column type.
func inferType(field FieldDefinition, primary bool) (string, bool) {
	if field.IsArray {
		if field.Type == "byte" {
			return dbal.TypeBinary, true
		}
		return dbal.TypeJSON, true
	}

	switch field.Type {
	case "int", "int32", "uint", "uint32":
		if primary {
			return dbal.TypePrimary, true
		}
		return dbal.TypeInteger, true
	case "int64", "uint64":
		if primary {
			return dbal.TypeBigPrimary, true
		}
		return dbal.TypeBigInteger, true
	case "int8", "int16", "uint8", "uint16":
		return dbal.TypeTinyInteger, true
	case "bool":
		return dbal.TypeBoolean, true
	case "string":
		return dbal.TypeString, true
	case "float32":
		return dbal.TypeFloat, true
	case "float64":
		return dbal.TypeDouble, true
	case "time.Time":
		return dbal.TypeDatetime, true
	case "json.RawMessage", "map":
		return dbal.TypeJSON, true
	case "uuid.UUID":
		return dbal.TypeUUID, true
	}
	return "", false
}
