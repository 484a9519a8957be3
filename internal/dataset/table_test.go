package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("acs", []Field{
		{Name: "GEOID", Type: TypeString},
		{Name: "B17001e2", Type: TypeString},
	})
	require.NoError(t, tbl.Append([]any{"05000US17019", "31500"}))
	require.NoError(t, tbl.Append([]any{"05000US17031", ""}))
	return tbl
}

func TestFieldIndex_CaseInsensitive(t *testing.T) {
	tbl := sampleTable(t)
	assert.Equal(t, 0, tbl.FieldIndex("geoid"))
	assert.Equal(t, 1, tbl.FieldIndex("b17001E2"))
	assert.Equal(t, -1, tbl.FieldIndex("missing"))
}

func TestAddField_ExtendsRows(t *testing.T) {
	tbl := sampleTable(t)
	i, err := tbl.AddField(Field{Name: "GEOID_TRUE", Type: TypeString})
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	for _, row := range tbl.Rows {
		assert.Len(t, row, 3)
		assert.Nil(t, row[2])
	}
}

func TestAddField_ReuseSameType(t *testing.T) {
	tbl := sampleTable(t)
	i, err := tbl.AddField(Field{Name: "geoid", Type: TypeString})
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Len(t, tbl.Fields, 2)
}

func TestAddField_ConflictingType(t *testing.T) {
	tbl := sampleTable(t)
	_, err := tbl.AddField(Field{Name: "GEOID", Type: TypeFloat})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldExists)
}

func TestUniqueName(t *testing.T) {
	tbl := sampleTable(t)
	assert.Equal(t, "NAME", tbl.UniqueName("NAME"))
	assert.Equal(t, "GEOID_1", tbl.UniqueName("GEOID"))

	_, err := tbl.AddField(Field{Name: "GEOID_1", Type: TypeString})
	require.NoError(t, err)
	assert.Equal(t, "GEOID_2", tbl.UniqueName("GEOID"))
}

func TestAppend_WrongArity(t *testing.T) {
	tbl := sampleTable(t)
	err := tbl.Append([]any{"only one"})
	assert.Error(t, err)
}

func TestConvertField(t *testing.T) {
	tbl := sampleTable(t)
	require.NoError(t, tbl.ConvertField("B17001e2", TypeFloat))

	assert.Equal(t, TypeFloat, tbl.Fields[1].Type)
	assert.Equal(t, 31500.0, tbl.Rows[0][1])
	assert.Nil(t, tbl.Rows[1][1])
}

func TestConvertField_NonNumeric(t *testing.T) {
	tbl := sampleTable(t)
	err := tbl.ConvertField("GEOID", TypeFloat)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonNumeric)

	err = tbl.ConvertField("B99999", TypeFloat)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
		errs   bool
	}{
		{"nil", nil, 0, false, false},
		{"float", 2.5, 2.5, true, false},
		{"int64", int64(7), 7, true, false},
		{"string", " 18.2 ", 18.2, true, false},
		{"blank", "  ", 0, false, false},
		{"garbage", "N/A", 0, false, true},
		{"bool", true, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Float(tt.in)
			if tt.errs {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLayerSubset(t *testing.T) {
	l := NewLayer("counties", KindPoint, []Field{{Name: "NAME", Type: TypeString}})
	require.NoError(t, l.AppendFeature([]any{"a"}, geom.NewPointFlat(geom.XY, []float64{0, 0})))
	require.NoError(t, l.AppendFeature([]any{"b"}, geom.NewPointFlat(geom.XY, []float64{1, 1})))
	require.NoError(t, l.AppendFeature([]any{"c"}, geom.NewPointFlat(geom.XY, []float64{2, 2})))
	l.PRJ = "GEOGCS[]"

	sub := l.Subset("picked", []int{2, 0})
	require.NoError(t, sub.Validate())
	assert.Equal(t, "picked", sub.Name)
	assert.Equal(t, "GEOGCS[]", sub.PRJ)
	assert.Equal(t, []any{"c"}, sub.Rows[0])
	assert.Equal(t, []float64{2, 2}, sub.Geometries[0].FlatCoords())

	sub.Rows[0][0] = "changed"
	assert.Equal(t, "c", l.Rows[2][0])
}
