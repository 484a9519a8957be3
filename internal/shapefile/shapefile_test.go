package shapefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

const nad83 = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

func square(minX, minY, size float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	// Counter-clockwise input; the writer must flip it to clockwise.
	_ = mp.Push(geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		minX + size, minY,
		minX + size, minY + size,
		minX, minY + size,
		minX, minY,
	}, []int{10}))
	return mp
}

func TestWriteRead_PolygonRoundTrip(t *testing.T) {
	layer := dataset.NewLayer("counties", dataset.KindPolygon, []dataset.Field{
		{Name: "GEOID", Type: dataset.TypeString},
		{Name: "EVAL", Type: dataset.TypeFloat, Width: 18, Decimals: 6},
		{Name: "POP", Type: dataset.TypeInteger, Width: 10},
	})
	layer.PRJ = nad83
	require.NoError(t, layer.AppendFeature([]any{"17019", 0.315, int64(201081)}, square(-88.5, 40.0, 0.5)))
	require.NoError(t, layer.AppendFeature([]any{"17031", nil, int64(5275541)}, square(-88.0, 41.5, 0.5)))

	path := filepath.Join(t.TempDir(), "Threshold_Counties.shp")
	require.NoError(t, Write(path, layer))

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		_, err := os.Stat(sidecar(path, ext))
		assert.NoError(t, err, "missing %s", ext)
	}

	got, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	assert.Equal(t, "Threshold_Counties", got.Name)
	assert.Equal(t, dataset.KindPolygon, got.Kind)
	assert.Equal(t, nad83, got.PRJ)
	require.Len(t, got.Fields, 3)
	assert.Equal(t, dataset.TypeString, got.Fields[0].Type)
	assert.Equal(t, dataset.TypeFloat, got.Fields[1].Type)
	assert.Equal(t, dataset.TypeInteger, got.Fields[2].Type)

	require.Equal(t, 2, got.Len())
	assert.Equal(t, "17019", got.Rows[0][0])
	assert.InDelta(t, 0.315, got.Rows[0][1], 1e-9)
	assert.Equal(t, int64(201081), got.Rows[0][2])
	assert.Nil(t, got.Rows[1][1])

	mp, ok := got.Geometries[0].(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	b := mp.Bounds()
	assert.InDelta(t, -88.5, b.Min(0), 1e-9)
	assert.InDelta(t, 40.5, b.Max(1), 1e-9)
}

func TestWriteRead_Points(t *testing.T) {
	layer := dataset.NewLayer("sites", dataset.KindPoint, []dataset.Field{
		{Name: "SITE_NAME", Type: dataset.TypeString},
	})
	require.NoError(t, layer.AppendFeature([]any{"Velsicol Chemical"}, geom.NewPointFlat(geom.XY, []float64{-88.2, 40.1})))
	require.NoError(t, layer.AppendFeature([]any{"Null shape"}, nil))

	path := filepath.Join(t.TempDir(), "sites.shp")
	require.NoError(t, Write(path, layer))

	got, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, dataset.KindPoint, got.Kind)
	assert.Empty(t, got.PRJ)

	pt, ok := got.Geometries[0].(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, -88.2, pt.X(), 1e-9)
	assert.InDelta(t, 40.1, pt.Y(), 1e-9)
	assert.Nil(t, got.Geometries[1])
}

func TestWrite_LongFieldNamesAreTruncatedAndUnique(t *testing.T) {
	layer := dataset.NewLayer("wide", dataset.KindPoint, []dataset.Field{
		{Name: "B17001e2_estimate", Type: dataset.TypeFloat},
		{Name: "B17001e2_estimate_moe", Type: dataset.TypeFloat},
	})
	require.NoError(t, layer.AppendFeature([]any{1.0, 2.0}, geom.NewPointFlat(geom.XY, []float64{0, 0})))

	path := filepath.Join(t.TempDir(), "wide.shp")
	require.NoError(t, Write(path, layer))

	fields, count, err := Fields(path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, fields, 2)
	assert.Equal(t, "B17001e2_e", fields[0].Name)
	assert.Equal(t, "B17001e2_1", fields[1].Name)
}

func TestToGeom_PolygonWithHole(t *testing.T) {
	// Shell clockwise, hole counter-clockwise, as shapefiles store them.
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
			{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2},
		},
	}

	g, err := ToGeom(poly)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
}

func TestToGeom_TwoShells(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
			{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}, {X: 5, Y: 5},
		},
	}

	g, err := ToGeom(poly)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestToGeom_NullAndEmpty(t *testing.T) {
	g, err := ToGeom(nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = ToGeom(&shp.Null{})
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = ToGeom(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFromGeom_MultiPoint(t *testing.T) {
	mp := geom.NewMultiPointFlat(geom.XY, []float64{1, 2, 3, 4})
	shape, err := FromGeom(mp)
	require.NoError(t, err)
	m, ok := shape.(*shp.MultiPoint)
	require.True(t, ok)
	assert.Equal(t, int32(2), m.NumPoints)
	assert.Equal(t, 1.0, m.Box.MinX)
	assert.Equal(t, 4.0, m.Box.MaxY)
}

func TestDecoder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.shp")

	dec, err := decoder(path, "")
	require.NoError(t, err)
	assert.Nil(t, dec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.cpg"), []byte("1252"), 0o644))
	dec, err = decoder(path, "")
	require.NoError(t, err)
	require.NotNil(t, dec)
	s, err := dec.String("Ca\xf1on")
	require.NoError(t, err)
	assert.Equal(t, "Cañon", s)

	_, err = decoder(path, "not-a-charset")
	assert.Error(t, err)
}
