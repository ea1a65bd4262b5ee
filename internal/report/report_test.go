package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

var alice = User{ID: "alice"}

func TestToListFlatRowsInFetchOrder(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann"), value.Int(100)),
		vals(value.Int(2), value.Text("Bob"), value.Int(200)),
		vals(value.Int(3), value.Text("Cy"), value.Int(300)),
	}}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "salary"}), alice, nil)
	require.NoError(t, err)

	assert.Equal(t, "", res.Message)
	assert.Equal(t, []string{"pk", "name", "salary"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Ann", "100"}, strs(res.Rows[0]))
	assert.Equal(t, []string{"Bob", "200"}, strs(res.Rows[1]))
	assert.Equal(t, []string{"Cy", "300"}, strs(res.Rows[2]))
	assert.Zero(t, src.byKeyCalls, "flat-only reports never load entities")
}

func TestToListColumnPositions(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Int(100), value.Text("Ann")),
	}}
	columns := []Column{
		{Path: "name", Position: 7},
		{Path: "salary", Position: 2},
	}

	res, err := ToList(context.Background(), src, columns, alice, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pk", "salary", "name"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"100", "Ann"}, strs(res.Rows[0]))
}

func TestToListDropsInvalidColumns(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "nope", "dept__nope"}), alice, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pk", "name"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 1)
	assert.Len(t, res.Rows[0], 1)
	assert.Empty(t, res.Message)
}

func TestToListRootDenied(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "dept__name"}), alice, denyTypes("employee", "department"))
	require.NoError(t, err)

	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.Equal(t, "Permission Denied", res.Message)
	assert.Nil(t, src.gotFlat, "nothing is fetched when the root is denied")
}

func TestToListSuppressesDeniedColumns(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "dept__name"}), alice, denyTypes("department"))
	require.NoError(t, err)

	assert.Equal(t, "You don't have permission to Department", res.Message)
	assert.Equal(t, 1, res.DeniedColumns)
	assert.Equal(t, []string{"pk", "name"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"Ann"}, strs(res.Rows[0]))
}

func TestToListDeniedColumnsCountedByColumn(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}
	columns := []Column{
		{Path: "name", Position: 0},
		{Path: "dept__name", Name: "Dept; Region", Position: 1},
		{Path: "skills__title", Position: 2},
	}

	res, err := ToList(context.Background(), src, columns, alice, denyTypes("department", "skill"))
	require.NoError(t, err)

	assert.Equal(t, "You don't have permission to Dept; Region; You don't have permission to Title", res.Message)
	assert.Equal(t, 2, res.DeniedColumns)
	require.Len(t, res.Columns, 1)
}

func TestToListTotals(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Int(1)),
		vals(value.Int(2), value.Int(2)),
		vals(value.Int(3), value.Null()),
		vals(value.Int(4), value.Text("x")),
	}}

	res, err := ToList(context.Background(), src, []Column{{Path: "salary", Total: true}}, alice, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 6)
	assert.Equal(t, value.Label("TOTALS"), res.Rows[4][0])
	total, ok := res.Rows[5][0].AsNumber()
	require.True(t, ok)
	assert.True(t, total.Equal(decimal.NewFromInt(4)), "got %s", total)
}

func TestToListTotalsKeepTwoDecimals(t *testing.T) {
	employee, _, _ := hrTypes()
	data := [][]value.Value{
		vals(value.Int(1), value.Int(1)),
		vals(value.Int(2), value.Int(3)),
	}

	for _, format := range []string{"", "{}"} {
		t.Run("format "+format, func(t *testing.T) {
			src := &memSource{root: employee, flat: data}
			res, err := ToList(context.Background(), src, []Column{{Path: "salary", Total: true, DisplayFormat: format}}, alice, nil)
			require.NoError(t, err)

			require.Len(t, res.Rows, 4)
			assert.Equal(t, "1", res.Rows[0][0].String())
			assert.Equal(t, "4.00", res.Rows[3][0].String())
		})
	}
}

func TestToListTotalsAddSignedValues(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Int(5)),
		vals(value.Int(2), value.Int(-2)),
		vals(value.Int(3), value.Float(-0.5)),
	}}

	res, err := ToList(context.Background(), src, []Column{{Path: "salary", Total: true}}, alice, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 5)
	assert.Equal(t, "2.50", res.Rows[4][0].String())
}

func TestToListTotalsRowLayout(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann"), value.Int(3)),
		vals(value.Int(2), value.Text("Bob"), value.Float(1.5)),
	}}
	columns := []Column{
		{Path: "name", Position: 0},
		{Path: "salary", Position: 1, Total: true, DisplayFormat: "{:.2f}"},
	}

	res, err := ToList(context.Background(), src, columns, alice, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 4)
	assert.Equal(t, []string{"Ann", "3.00"}, strs(res.Rows[0]))
	assert.Equal(t, []string{"Bob", "1.50"}, strs(res.Rows[1]))
	assert.Equal(t, []string{"TOTALS", ""}, strs(res.Rows[2]))
	assert.Equal(t, []string{"", "4.50"}, strs(res.Rows[3]))
}

func TestToListSortPriorities(t *testing.T) {
	employee, _, _ := hrTypes()
	data := [][]value.Value{
		vals(value.Int(1), value.Text("bob"), value.Text("Sales")),
		vals(value.Int(2), value.Text("Ann"), value.Text("eng")),
		vals(value.Int(3), value.Text("cy"), value.Text("Sales")),
		vals(value.Int(4), value.Text("al"), value.Text("Eng")),
		vals(value.Int(5), value.Text("Dan"), value.Text("eng")),
	}
	src := &memSource{root: employee, flat: data}
	columns := []Column{
		{Path: "name", Position: 0, Sort: 1},
		{Path: "dept__name", Position: 1, Sort: 2},
	}

	res, err := ToList(context.Background(), src, columns, alice, nil)
	require.NoError(t, err)

	// One stable sort keyed on dept first and name second must agree.
	want := make([][]value.Value, len(data))
	copy(want, data)
	sort.SliceStable(want, func(i, j int) bool {
		di, dj := strings.ToLower(want[i][2].String()), strings.ToLower(want[j][2].String())
		if di != dj {
			return di < dj
		}
		return strings.ToLower(want[i][1].String()) < strings.ToLower(want[j][1].String())
	})

	require.Len(t, res.Rows, len(want))
	for i := range want {
		assert.Equal(t, []string{want[i][1].String(), want[i][2].String()}, strs(res.Rows[i]), "row %d", i)
	}
	assert.Equal(t, "al", res.Rows[0][0].String())
	assert.Equal(t, "cy", res.Rows[4][0].String())
}

func TestToListSortReverseIsStable(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("a"), value.Int(10)),
		vals(value.Int(2), value.Text("b"), value.Int(20)),
		vals(value.Int(3), value.Text("c"), value.Int(10)),
	}}
	columns := []Column{
		{Path: "name", Position: 0},
		{Path: "salary", Position: 1, Sort: 1, SortReverse: true},
	}

	res, err := ToList(context.Background(), src, columns, alice, nil)
	require.NoError(t, err)

	var names []string
	for _, r := range res.Rows {
		names = append(names, r[0].String())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestToListSortNullFallbacks(t *testing.T) {
	employee, _, _ := hrTypes()
	jan := value.Date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := value.Date(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name    string
		path    string
		reverse bool
		cells   []value.Value
		want    []string
	}{
		{
			name:  "text nulls sort as empty",
			path:  "name",
			cells: []value.Value{value.Text("b"), value.Null(), value.Text("A")},
			want:  []string{"r2", "r3", "r1"},
		},
		{
			name:  "date nulls sort earliest",
			path:  "hired",
			cells: []value.Value{feb, value.Null(), jan},
			want:  []string{"r2", "r3", "r1"},
		},
		{
			name:    "number nulls sort as zero",
			path:    "salary",
			reverse: true,
			cells:   []value.Value{value.Int(5), value.Null(), value.Int(-3)},
			want:    []string{"r1", "r2", "r3"},
		},
		{
			name:  "mixed types leave order alone",
			path:  "salary",
			cells: []value.Value{value.Int(5), value.Text("x"), value.Int(1)},
			want:  []string{"r1", "r2", "r3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data [][]value.Value
			for i, c := range tt.cells {
				data = append(data, vals(value.Int(int64(i+1)), value.Text(fmt.Sprintf("r%d", i+1)), c))
			}
			src := &memSource{root: employee, flat: data}
			columns := []Column{
				{Path: "status", Position: 0},
				{Path: tt.path, Position: 1, Sort: 1, SortReverse: tt.reverse},
			}

			res, err := ToList(context.Background(), src, columns, alice, nil)
			require.NoError(t, err)

			var got []string
			for _, r := range res.Rows {
				got = append(got, r[0].String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToListDisplayFormat(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Number(decimal.RequireFromString("3"))),
		vals(value.Int(2), value.Text("abc")),
		vals(value.Int(3), value.Null()),
	}}

	res, err := ToList(context.Background(), src, []Column{{Path: "salary", DisplayFormat: "{:.2f}"}}, alice, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, value.Label("3.00"), res.Rows[0][0])
	assert.Equal(t, value.Text("abc"), res.Rows[1][0])
	assert.True(t, res.Rows[2][0].IsNull())
}

func TestToListChoices(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("a")),
		vals(value.Int(2), value.Null()),
		vals(value.Int(3), value.Text("z")),
		vals(value.Int(4), value.Text("")),
		vals(value.Int(5), value.Text("i")),
	}}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"status"}), alice, nil)
	require.NoError(t, err)

	want := []value.Value{
		value.Label("Active"),
		value.Label(""),
		value.Text("z"),
		value.Label(""),
		value.Label("Inactive"),
	}
	require.Len(t, res.Rows, len(want))
	for i, w := range want {
		assert.Equal(t, w, res.Rows[i][0], "row %d", i)
	}
}

func TestToListPreview(t *testing.T) {
	employee, _, _ := hrTypes()
	var data [][]value.Value
	for i := 0; i < 100; i++ {
		data = append(data, vals(value.Int(int64(i)), value.Text(fmt.Sprintf("n%d", i))))
	}
	src := &memSource{root: employee, flat: data}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name"}), alice, nil, WithPreview(true))
	require.NoError(t, err)

	require.Len(t, res.Rows, PreviewLimit)
	assert.Equal(t, "n0", res.Rows[0][0].String())
	assert.Equal(t, "n49", res.Rows[49][0].String())
	assert.Equal(t, PreviewLimit, src.rows.Consumed(), "no rows are read past the cap")
}

func TestToListPropertyFilter(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
		vals(value.Int(2), value.Text("Bob")),
		vals(value.Int(3), value.Text("Cy")),
	}}
	bonuses := []value.Value{value.Int(5), value.Null(), value.Int(7)}
	for i, b := range bonuses {
		src.add(&memEntity{typ: employee, key: value.Int(int64(i + 1)), attrs: map[string]value.Value{"bonus": b}})
	}
	filter := PropertyFilter{Path: "bonus", Exclude: func(v value.Value) bool { return v.IsNull() }}

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "bonus"}), alice, nil,
		WithPropertyFilters(filter))
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"Ann", "5"}, strs(res.Rows[0]))
	assert.Equal(t, []string{"Cy", "7"}, strs(res.Rows[1]))
	assert.Equal(t, 3, src.byKeyCalls, "each row loads its entity once for filter and property")
}

func TestToListFilterRunsBeforeTotals(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Int(10)),
		vals(value.Int(2), value.Int(20)),
	}}
	src.add(&memEntity{typ: employee, key: value.Int(1), attrs: map[string]value.Value{"name": value.Text("keep")}})
	src.add(&memEntity{typ: employee, key: value.Int(2), attrs: map[string]value.Value{"name": value.Text("drop")}})
	filter, err := NewFilter("name", OpEq, []value.Value{value.Text("drop")}, true)
	require.NoError(t, err)

	res, err := ToList(context.Background(), src, []Column{{Path: "salary", Total: true}}, alice, nil,
		WithPropertyFilters(filter))
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	total, ok := res.Rows[2][0].AsNumber()
	require.True(t, ok)
	assert.True(t, total.Equal(decimal.NewFromInt(10)))
}

func TestToListToManySubKey(t *testing.T) {
	employee, department, _ := hrTypes()
	src := &memSource{root: department, flat: [][]value.Value{
		vals(value.Int(1), value.Int(10), value.Text("Eng")),
		vals(value.Int(1), value.Int(11), value.Text("Eng")),
		vals(value.Int(2), value.Null(), value.Text("Ops")),
	}}
	e10 := &memEntity{typ: employee, key: value.Int(10), attrs: map[string]value.Value{"bonus": value.Int(5)}}
	e11 := &memEntity{typ: employee, key: value.Int(11), attrs: map[string]value.Value{"bonus": value.Int(7)}}
	src.add(&memEntity{typ: department, key: value.Int(1), related: map[string][]*memEntity{"employees": {e10, e11}}})
	src.add(&memEntity{typ: department, key: value.Int(2)})

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "employees__bonus"}), alice, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pk", "employees__pk", "name"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Eng", "5"}, strs(res.Rows[0]))
	assert.Equal(t, []string{"Eng", "7"}, strs(res.Rows[1]))
	assert.True(t, res.Rows[2][1].IsNull())
}

func TestToListMissingRelationResolvesNull(t *testing.T) {
	employee, department, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1)),
		vals(value.Int(2)),
		vals(value.Int(3)),
	}}
	eng := &memEntity{typ: department, key: value.Int(9), attrs: map[string]value.Value{"headcount": value.Int(12)}}
	src.add(&memEntity{typ: employee, key: value.Int(1), related: map[string][]*memEntity{"dept": {eng}}})
	src.add(&memEntity{typ: employee, key: value.Int(2)})

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"dept__headcount"}), alice, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, "12", res.Rows[0][0].String())
	assert.True(t, res.Rows[1][0].IsNull(), "no related department")
	assert.True(t, res.Rows[2][0].IsNull(), "no entity at all")
}

func TestToListCustomFields(t *testing.T) {
	employee, department, _ := hrTypes()
	registry := customFields{
		"employee":   {{Name: "nickname", Label: "Nickname"}},
		"department": {{Name: "code", Label: "Code"}},
	}
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}
	ops := &memEntity{typ: department, key: value.Int(4), custom: map[string]value.Value{"code": value.Text("OPS")}}
	src.add(&memEntity{
		typ:     employee,
		key:     value.Int(1),
		custom:  map[string]value.Value{"nickname": value.Text("Annie")},
		related: map[string][]*memEntity{"dept": {ops}},
	})

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name", "nickname", "dept__code"}), alice, nil,
		WithCustomFields(registry))
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"Ann", "Annie", "OPS"}, strs(res.Rows[0]))
	assert.Equal(t, 1, src.byKeyCalls)
}

func TestToListGrouped(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, groups: [][]value.Value{
		vals(value.Text("Eng"), value.Int(300)),
		vals(value.Text("Ops"), value.Int(100)),
	}}
	columns := []Column{
		{Path: "dept__name", Group: true, Position: 0},
		{Path: "salary", Aggregate: AggregateSum, Total: true, Position: 1},
	}

	res, err := ToList(context.Background(), src, columns, alice, nil)
	require.NoError(t, err)

	assert.Equal(t, "dept__name", src.gotGroup)
	assert.Equal(t, []string{"dept__name", "salary__sum"}, flatKeys(src.gotGrouped))
	assert.Nil(t, src.gotFlat)
	require.Len(t, res.Rows, 4)
	assert.Equal(t, []string{"Eng", "300"}, strs(res.Rows[0]))
	assert.Equal(t, []string{"Ops", "100"}, strs(res.Rows[1]))
	assert.Equal(t, []string{"TOTALS", ""}, strs(res.Rows[2]))
	assert.Equal(t, "400.00", res.Rows[3][1].String())
}

func TestToListConfigErrors(t *testing.T) {
	employee, _, _ := hrTypes()

	tests := []struct {
		name    string
		columns []Column
		filters []PropertyFilter
		wantErr error
	}{
		{
			name: "two group columns",
			columns: []Column{
				{Path: "name", Group: true, Position: 0},
				{Path: "dept__name", Group: true, Position: 1},
			},
			wantErr: ErrMultipleGroups,
		},
		{
			name: "group with property",
			columns: []Column{
				{Path: "dept__name", Group: true, Position: 0},
				{Path: "bonus", Position: 1},
			},
			wantErr: ErrUnsupportedGrouping,
		},
		{
			name: "group with filter",
			columns: []Column{
				{Path: "dept__name", Group: true, Position: 0},
				{Path: "salary", Aggregate: AggregateSum, Position: 1},
			},
			filters: []PropertyFilter{{Path: "name", Exclude: func(value.Value) bool { return false }}},
			wantErr: ErrUnsupportedGrouping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &memSource{root: employee}
			_, err := ToList(context.Background(), src, tt.columns, alice, nil, WithPropertyFilters(tt.filters...))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Nil(t, src.gotFlat)
		})
	}
}

func TestToListFetchErrorPropagates(t *testing.T) {
	employee, _, _ := hrTypes()
	boom := errors.New("connection reset")
	src := &memSource{root: employee, fetchErr: boom}

	_, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name"}), alice, nil)
	assert.Equal(t, boom, err)
}

func TestToListRowShapeMismatch(t *testing.T) {
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1)),
	}}

	_, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name"}), alice, nil)
	assert.ErrorIs(t, err, ErrRowShape)
}

func TestBuildPlanFromPathsMatchesColumns(t *testing.T) {
	employee, _, _ := hrTypes()
	ctx := context.Background()

	for _, perms := range []Permissions{nil, denyTypes("department")} {
		fromPaths, err := NormalizeColumns(ctx, employee, ColumnsFromPaths([]string{"name", "dept__name"}), nil)
		require.NoError(t, err)
		fromColumns, err := NormalizeColumns(ctx, employee, []Column{
			{Path: "name", Position: 0},
			{Path: "dept__name", Position: 1},
		}, nil)
		require.NoError(t, err)

		planA, err := BuildPlan(ctx, employee, fromPaths, ComputeAllowed(ctx, employee, fromPaths, alice, perms), nil)
		require.NoError(t, err)
		planB, err := BuildPlan(ctx, employee, fromColumns, ComputeAllowed(ctx, employee, fromColumns, alice, perms), nil)
		require.NoError(t, err)

		assert.Equal(t, planA.FlatPaths, planB.FlatPaths)
		assert.Equal(t, planA.Columns, planB.Columns)
		assert.Equal(t, planA.Message, planB.Message)
	}
}

func TestBuildPlanFiltersAddNoSubKeys(t *testing.T) {
	_, department, _ := hrTypes()
	ctx := context.Background()
	columns, err := NormalizeColumns(ctx, department, ColumnsFromPaths([]string{"name"}), nil)
	require.NoError(t, err)
	filters := []PropertyFilter{
		{Path: "employees__name", Kind: schema.FieldDirect},
		{Path: "name", Kind: schema.FieldDirect},
	}

	plan, err := BuildPlan(ctx, department, columns, AllowAll(), filters)
	require.NoError(t, err)

	assert.Empty(t, plan.SubKeys)
	assert.Equal(t, []string{"pk", "name"}, plan.FlatPaths)
	assert.Equal(t, []int{-1, 0}, plan.FlatSlots)
}

func TestBuildPlanSubKeysFromProperties(t *testing.T) {
	_, department, _ := hrTypes()
	ctx := context.Background()
	columns, err := NormalizeColumns(ctx, department, ColumnsFromPaths([]string{"name", "employees__bonus"}), nil)
	require.NoError(t, err)

	plan, err := BuildPlan(ctx, department, columns, AllowAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"employees"}, plan.SubKeys)
	assert.Equal(t, []string{"pk", "employees__pk", "name"}, plan.FlatPaths)
	assert.Equal(t, []int{-1, -1, 0}, plan.FlatSlots)
	assert.Equal(t, map[int]string{1: "employees__bonus"}, plan.Properties)
}

func TestToListToManyFilterKeepsOneRowPerRecord(t *testing.T) {
	employee, department, _ := hrTypes()
	src := &memSource{root: department, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Eng")),
		vals(value.Int(2), value.Text("Ops")),
	}}
	ann := &memEntity{typ: employee, key: value.Int(10), attrs: map[string]value.Value{"name": value.Text("Ann")}}
	bob := &memEntity{typ: employee, key: value.Int(11), attrs: map[string]value.Value{"name": value.Text("Bob")}}
	cy := &memEntity{typ: employee, key: value.Int(12), attrs: map[string]value.Value{"name": value.Text("Cy")}}
	src.add(&memEntity{typ: department, key: value.Int(1), related: map[string][]*memEntity{"employees": {ann, bob}}})
	src.add(&memEntity{typ: department, key: value.Int(2), related: map[string][]*memEntity{"employees": {cy}}})
	filter, err := NewFilter("employees__name", OpEq, []value.Value{value.Text("Cy")}, true)
	require.NoError(t, err)

	res, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name"}), alice, nil,
		WithPropertyFilters(filter))
	require.NoError(t, err)

	assert.Equal(t, []string{"pk", "name"}, flatKeys(src.gotFlat))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"Eng"}, strs(res.Rows[0]))
}
