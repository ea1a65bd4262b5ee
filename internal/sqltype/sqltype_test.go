package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name     string
		sqlTypes []string
		want     Category
	}{
		{
			name:     "integers",
			sqlTypes: []string{"TINYINT", "smallint", "MEDIUMINT", "int", "INTEGER", "bigint", "serial", "bit", "int(11)", "bigint(20) unsigned"},
			want:     CategoryInt,
		},
		{
			name:     "decimals",
			sqlTypes: []string{"FLOAT", "double", "real", "DECIMAL", "numeric", "decimal(10,2)"},
			want:     CategoryDecimal,
		},
		{
			name:     "booleans",
			sqlTypes: []string{"BOOL", "boolean", "tinyint(1)", "TINYINT(1)"},
			want:     CategoryBool,
		},
		{
			name:     "dates",
			sqlTypes: []string{"DATE", "datetime", "timestamp", "time", "YEAR", "datetime(6)"},
			want:     CategoryDate,
		},
		{
			name:     "json",
			sqlTypes: []string{"JSON", "json"},
			want:     CategoryJSON,
		},
		{
			name:     "text and unknown",
			sqlTypes: []string{"varchar(255)", "TEXT", "blob", "enum('a','b')", "set", "geometry", ""},
			want:     CategoryText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, sqlType := range tt.sqlTypes {
				assert.Equal(t, tt.want, Map(sqlType), "sql type %q", sqlType)
			}
		})
	}
}

func TestCategory_IsNumeric(t *testing.T) {
	assert.True(t, CategoryInt.IsNumeric())
	assert.True(t, CategoryDecimal.IsNumeric())
	assert.False(t, CategoryBool.IsNumeric())
	assert.False(t, CategoryText.IsNumeric())
	assert.False(t, CategoryDate.IsNumeric())
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "int", CategoryInt.String())
	assert.Equal(t, "decimal", CategoryDecimal.String())
	assert.Equal(t, "bool", CategoryBool.String())
	assert.Equal(t, "date", CategoryDate.String())
	assert.Equal(t, "json", CategoryJSON.String())
	assert.Equal(t, "text", CategoryText.String())
}
