package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "user_name"},
		{"created_at", "created_at"},
		{"odd__name", "odd_name"},
		{"___triple___", "triple"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.FieldName(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"analysis", "analyses"},
		{"orderItem", "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := namer.Pluralize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
		{"analyses", "analysis"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := namer.Singularize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: map[string]string{
			"staff": "staff", // Same singular/plural
		},
		SingularOverrides: make(map[string]string),
	}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user")) // Falls back to library
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: make(map[string]string),
		SingularOverrides: map[string]string{
			"data": "datum",
		},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "user", namer.Singularize("users")) // Falls back to library
}

func TestManyToOneFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		fkColumn string
		expected string
	}{
		{"author_id", "author"},
		{"user_id", "user"},
		{"created_by_user_id", "created_by_user"},
		{"owner_fk", "owner"},
		{"DEPT_ID", "DEPT"},
		{"simple", "simple"}, // No suffix to strip
	}

	for _, tt := range tests {
		t.Run(tt.fkColumn, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ManyToOneFieldName(tt.fkColumn))
		})
	}
}

func TestOneToManyFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		sourceTable string
		fkColumn    string
		isOnlyFK    bool
		expected    string
	}{
		{"comment", "user_id", true, "comments"},
		{"posts", "author_id", false, "author_posts"},
		{"posts", "editor_id", false, "editor_posts"},
		{"order_item", "order_id", true, "order_items"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceTable+"_"+tt.fkColumn, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.OneToManyFieldName(tt.sourceTable, tt.fkColumn, tt.isOnlyFK))
		})
	}
}

func TestLabel(t *testing.T) {
	namer := New(Config{LabelOverrides: map[string]string{"dob": "Date of birth"}}, nil)

	assert.Equal(t, "Created at", namer.Label("created_at"))
	assert.Equal(t, "Name", namer.Label("name"))
	assert.Equal(t, "Date of birth", namer.Label("dob"))
	assert.Equal(t, "", namer.Label(""))
}

func TestEntityLabel(t *testing.T) {
	namer := Default()

	assert.Equal(t, "Order item", namer.EntityLabel("order_items"))
	assert.Equal(t, "Person", namer.EntityLabel("people"))
	assert.Equal(t, "Department", namer.EntityLabel("department"))
}

func TestReservedWordSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	tests := []struct {
		input    string
		expected string
	}{
		{"pk", "pk_"},
		{"PK", "PK_"},
		{"sum", "sum_"},
		{"count", "count_"},
		{"total", "total"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			namer.Reset()
			assert.Equal(t, tt.expected, namer.RegisterColumnField("orders", tt.input))
		})
	}
	assert.Contains(t, buf.String(), "reserved word")
}

func TestCollision_TableToTable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "user_profile", namer.RegisterEntity("user_profile"))
	// "user__profile" collapses to the same entity name
	assert.Equal(t, "user_profile2", namer.RegisterEntity("user__profile"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestCollision_ColumnToColumn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "user_id", namer.RegisterColumnField("users", "user_id"))
	assert.Equal(t, "user_id2", namer.RegisterColumnField("users", "user__id"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestCollision_RelationshipToColumn(t *testing.T) {
	namer := Default()

	namer.RegisterColumnField("orders", "author")

	assert.Equal(t, "author_ref", namer.RegisterRelationshipField("orders", "author", "users", true))
	assert.Equal(t, "lines", namer.RegisterRelationshipField("orders", "lines", "order_lines", false))
	namer.RegisterColumnField("orders", "notes")
	assert.Equal(t, "notes_rel", namer.RegisterRelationshipField("orders", "notes", "order_notes", false))
}

func TestRegisterExtraField(t *testing.T) {
	namer := Default()

	namer.RegisterColumnField("employees", "name")
	assert.Equal(t, "full_name", namer.RegisterExtraField("employees", "full_name", "property:full_name"))
	assert.Equal(t, "name2", namer.RegisterExtraField("employees", "name", "custom:name"))
}

func TestReset(t *testing.T) {
	namer := Default()

	namer.RegisterEntity("users")
	namer.Reset()

	assert.Equal(t, "users", namer.RegisterEntity("users"))
}
