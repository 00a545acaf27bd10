package dbal

import (
	"errors"
	"testing"

	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		decl string
		want ColumnType
	}{
		{"primary", ColumnType{Name: TypePrimary}},
		{"bigPrimary", ColumnType{Name: TypeBigPrimary}},
		{"string", ColumnType{Name: TypeString, Size: 255}},
		{"string(32)", ColumnType{Name: TypeString, Size: 32}},
		{" integer ", ColumnType{Name: TypeInteger}},
		{"decimal", ColumnType{Name: TypeDecimal, Precision: 10, Scale: 0}},
		{"decimal(8, 2)", ColumnType{Name: TypeDecimal, Precision: 8, Scale: 2}},
		{"enum(draft, published)", ColumnType{Name: TypeEnum, Values: []string{"draft", "published"}}},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, err := ParseColumnType(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseColumnType_Invalid(t *testing.T) {
	for _, decl := range []string{"", "varchar", "string(abc)", "string(0)", "string(10", "enum()", "integer(4)", "decimal(1,2,3)"} {
		t.Run(decl, func(t *testing.T) {
			_, err := ParseColumnType(decl)
			if !errors.Is(err, ErrInvalidType) {
				t.Errorf("expected ErrInvalidType for %q, got %v", decl, err)
			}
		})
	}
}

func TestColumnType_String(t *testing.T) {
	assert.Equal(t, "string", ColumnType{Name: TypeString, Size: 255}.String())
	assert.Equal(t, "string(32)", ColumnType{Name: TypeString, Size: 32}.String())
	assert.Equal(t, "decimal(8,2)", ColumnType{Name: TypeDecimal, Precision: 8, Scale: 2}.String())
	assert.Equal(t, "enum(a,b)", ColumnType{Name: TypeEnum, Values: []string{"a", "b"}}.String())
	assert.Equal(t, "json", ColumnType{Name: TypeJSON}.String())
}

func TestColumnType_ReferenceType(t *testing.T) {
	assert.Equal(t, TypeInteger, ColumnType{Name: TypePrimary}.ReferenceType().Name)
	assert.Equal(t, TypeBigInteger, ColumnType{Name: TypeBigPrimary}.ReferenceType().Name)
	assert.Equal(t, TypeUUID, ColumnType{Name: TypeUUID}.ReferenceType().Name)
	assert.True(t, ColumnType{Name: TypePrimary}.IsPrimary())
	assert.False(t, ColumnType{Name: TypeInteger}.IsPrimary())
}

func TestColumnType_AtlasType(t *testing.T) {
	s := &schema.Schema{Name: "public"}

	serial, ok := ColumnType{Name: TypePrimary}.atlasType("", s).(*postgres.SerialType)
	require.True(t, ok)
	assert.Equal(t, postgres.TypeSerial, serial.T)

	str, ok := ColumnType{Name: TypeString, Size: 32}.atlasType("", s).(*schema.StringType)
	require.True(t, ok)
	assert.Equal(t, 32, str.Size)

	enum, ok := ColumnType{Name: TypeEnum, Values: []string{"a"}}.atlasType("posts_status", s).(*schema.EnumType)
	require.True(t, ok)
	assert.Equal(t, "posts_status", enum.T)
	assert.Same(t, s, enum.Schema)

	_, ok = ColumnType{Name: "mystery"}.atlasType("", s).(*schema.UnsupportedType)
	assert.True(t, ok)
}
