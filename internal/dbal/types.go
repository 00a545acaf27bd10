package dbal

import (
	"fmt"
	"strconv"
	"strings"

	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
)

// Abstract column types understood by the table declarations.
const (
	TypePrimary     = "primary"
	TypeBigPrimary  = "bigPrimary"
	TypeBoolean     = "boolean"
	TypeInteger     = "integer"
	TypeTinyInteger = "tinyInteger"
	TypeBigInteger  = "bigInteger"
	TypeString      = "string"
	TypeText        = "text"
	TypeLongText    = "longText"
	TypeFloat       = "float"
	TypeDouble      = "double"
	TypeDecimal     = "decimal"
	TypeDatetime    = "datetime"
	TypeTimestamp   = "timestamp"
	TypeDate        = "date"
	TypeTime        = "time"
	TypeJSON        = "json"
	TypeBinary      = "binary"
	TypeUUID        = "uuid"
	TypeEnum        = "enum"
)

const defaultStringSize = 255

// ColumnType is a parsed abstract column type such as string(64) or decimal(10,2).
type ColumnType struct {
	Name      string
	Size      int
	Precision int
	Scale     int
	Values    []string
}

// String renders the type back into its declaration form.
func (t ColumnType) String() string {
	switch t.Name {
	case TypeString:
		if t.Size > 0 && t.Size != defaultStringSize {
			return fmt.Sprintf("%s(%d)", t.Name, t.Size)
		}
	case TypeDecimal:
		return fmt.Sprintf("%s(%d,%d)", t.Name, t.Precision, t.Scale)
	case TypeEnum:
		return fmt.Sprintf("%s(%s)", t.Name, strings.Join(t.Values, ","))
	}
	return t.Name
}

// IsPrimary reports whether the type is an auto-incrementing primary key.
func (t ColumnType) IsPrimary() bool {
	return t.Name == TypePrimary || t.Name == TypeBigPrimary
}

// ReferenceType is the type a foreign key column pointing at this column must have.
func (t ColumnType) ReferenceType() ColumnType {
	switch t.Name {
	case TypePrimary:
		return ColumnType{Name: TypeInteger}
	case TypeBigPrimary:
		return ColumnType{Name: TypeBigInteger}
	}
	return t
}

var knownTypes = map[string]bool{
	TypePrimary: true, TypeBigPrimary: true, TypeBoolean: true,
	TypeInteger: true, TypeTinyInteger: true, TypeBigInteger: true,
	TypeString: true, TypeText: true, TypeLongText: true,
	TypeFloat: true, TypeDouble: true, TypeDecimal: true,
	TypeDatetime: true, TypeTimestamp: true, TypeDate: true, TypeTime: true,
	TypeJSON: true, TypeBinary: true, TypeUUID: true, TypeEnum: true,
}

// ParseColumnType parses an abstract type declaration.
func ParseColumnType(decl string) (ColumnType, error) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return ColumnType{}, fmt.Errorf("%w: empty type", ErrInvalidType)
	}

	name, args := decl, ""
	if idx := strings.Index(decl, "("); idx != -1 {
		if !strings.HasSuffix(decl, ")") {
			return ColumnType{}, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidType, decl)
		}
		name = strings.TrimSpace(decl[:idx])
		args = decl[idx+1 : len(decl)-1]
	}

	if !knownTypes[name] {
		return ColumnType{}, fmt.Errorf("%w: unknown type %q", ErrInvalidType, name)
	}

	t := ColumnType{Name: name}
	switch name {
	case TypeString:
		t.Size = defaultStringSize
		if args != "" {
			size, err := strconv.Atoi(strings.TrimSpace(args))
			if err != nil || size <= 0 {
				return ColumnType{}, fmt.Errorf("%w: invalid string size in %q", ErrInvalidType, decl)
			}
			t.Size = size
		}
	case TypeDecimal:
		t.Precision, t.Scale = 10, 0
		if args != "" {
			parts := strings.Split(args, ",")
			if len(parts) > 2 {
				return ColumnType{}, fmt.Errorf("%w: invalid decimal arguments in %q", ErrInvalidType, decl)
			}
			p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err != nil {
				return ColumnType{}, fmt.Errorf("%w: invalid precision in %q", ErrInvalidType, decl)
			}
			t.Precision = p
			if len(parts) == 2 {
				s, err := strconv.Atoi(strings.TrimSpace(parts[1]))
				if err != nil {
					return ColumnType{}, fmt.Errorf("%w: invalid scale in %q", ErrInvalidType, decl)
				}
				t.Scale = s
			}
		}
	case TypeEnum:
		for _, v := range strings.Split(args, ",") {
			if v = strings.TrimSpace(v); v != "" {
				t.Values = append(t.Values, v)
			}
		}
		if len(t.Values) == 0 {
			return ColumnType{}, fmt.Errorf("%w: enum requires values", ErrInvalidType)
		}
	default:
		if args != "" {
			return ColumnType{}, fmt.Errorf("%w: type %q takes no arguments", ErrInvalidType, name)
		}
	}

	return t, nil
}

// atlasType maps the abstract type onto a postgres column type.
func (t ColumnType) atlasType(enumName string, s *schema.Schema) schema.Type {
	switch t.Name {
	case TypePrimary:
		return &postgres.SerialType{T: postgres.TypeSerial}
	case TypeBigPrimary:
		return &postgres.SerialType{T: postgres.TypeBigSerial}
	case TypeBoolean:
		return &schema.BoolType{T: postgres.TypeBoolean}
	case TypeInteger:
		return &schema.IntegerType{T: postgres.TypeInteger}
	case TypeTinyInteger:
		return &schema.IntegerType{T: postgres.TypeSmallInt}
	case TypeBigInteger:
		return &schema.IntegerType{T: postgres.TypeBigInt}
	case TypeString:
		return &schema.StringType{T: postgres.TypeCharVar, Size: t.Size}
	case TypeText, TypeLongText:
		return &schema.StringType{T: postgres.TypeText}
	case TypeFloat:
		return &schema.FloatType{T: postgres.TypeReal}
	case TypeDouble:
		return &schema.FloatType{T: postgres.TypeDouble}
	case TypeDecimal:
		return &schema.DecimalType{T: postgres.TypeNumeric, Precision: t.Precision, Scale: t.Scale}
	case TypeDatetime:
		return &schema.TimeType{T: postgres.TypeTimestamp}
	case TypeTimestamp:
		return &schema.TimeType{T: postgres.TypeTimestampTZ}
	case TypeDate:
		return &schema.TimeType{T: postgres.TypeDate}
	case TypeTime:
		return &schema.TimeType{T: postgres.TypeTime}
	case TypeJSON:
		return &schema.JSONType{T: postgres.TypeJSONB}
	case TypeBinary:
		return &schema.BinaryType{T: postgres.TypeBytea}
	case TypeUUID:
		return &schema.UUIDType{T: postgres.TypeUUID}
	case TypeEnum:
		return &schema.EnumType{T: enumName, Values: t.Values, Schema: s}
	}
	return &schema.UnsupportedType{T: t.Name}
}
