package value

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/internal/sqltype"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		want  bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Int(0), false},
		{"negative", Int(-2), true},
		{"empty text", Text(""), false},
		{"text", Text("x"), true},
		{"date", Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input.Truthy())
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "", Null().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "1.5", Float(1.5).String())
	assert.Equal(t, "2024-01-02", Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "2024-01-02 03:04:05", Date(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)).String())
	assert.Equal(t, "TOTALS", Label("TOTALS").String())
	assert.Equal(t, "4.00", Number(decimal.New(400, -2)).String())
	assert.Equal(t, "1.50", Number(decimal.RequireFromString("1.50")).String())
	assert.Equal(t, "300", Number(decimal.New(3, 2)).String())
}

func TestFromAny(t *testing.T) {
	now := time.Now()

	assert.True(t, FromAny(nil).IsNull())
	assert.Equal(t, KindNumber, FromAny(7).Kind())
	assert.Equal(t, KindNumber, FromAny(uint64(18446744073709551615)).Kind())
	assert.Equal(t, "18446744073709551615", FromAny(uint64(18446744073709551615)).String())
	assert.Equal(t, KindBool, FromAny(true).Kind())
	assert.Equal(t, KindText, FromAny([]byte("abc")).Kind())
	assert.Equal(t, KindDate, FromAny(now).Kind())
	assert.True(t, FromAny((*time.Time)(nil)).IsNull())
	assert.True(t, Float(0).Equal(FromAny(0.0)))
	assert.True(t, FromAny(Text("x")).Equal(Text("x")))
}

func TestFromSQL(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		category sqltype.Category
		want     Value
	}{
		{"nil", nil, sqltype.CategoryInt, Null()},
		{"int bytes", []byte("42"), sqltype.CategoryInt, Int(42)},
		{"decimal bytes", []byte("10.25"), sqltype.CategoryDecimal, Number(decimal.RequireFromString("10.25"))},
		{"bool bytes", []byte("1"), sqltype.CategoryBool, Bool(true)},
		{"bool int64", int64(0), sqltype.CategoryBool, Bool(false)},
		{"date bytes", []byte("2024-03-01"), sqltype.CategoryDate, Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"datetime bytes", []byte("2024-03-01 10:11:12"), sqltype.CategoryDate, Date(time.Date(2024, 3, 1, 10, 11, 12, 0, time.UTC))},
		{"text", []byte("hello"), sqltype.CategoryText, Text("hello")},
		{"unparseable int kept as text", []byte("n/a"), sqltype.CategoryInt, Text("n/a")},
		{"native int64", int64(9), sqltype.CategoryInt, Int(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromSQL(tt.raw, tt.category)
			assert.True(t, tt.want.Equal(got), "got %v (%s)", got, got.Kind())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	row := []Value{Null(), Int(3), Bool(false), Text("a\"b"), Number(decimal.RequireFromString("1.50"))}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 3, false, "a\"b", 1.5]`, string(data))
}
