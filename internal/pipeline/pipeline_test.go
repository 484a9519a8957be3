package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
	"github.com/owlmanandy/superfund-counties/internal/geo"
	"github.com/owlmanandy/superfund-counties/internal/monitoring"
	"github.com/owlmanandy/superfund-counties/internal/shapefile"
)

const nad83 = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

func square(minX, minY, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		minX + size, minY,
		minX + size, minY + size,
		minX, minY + size,
		minX, minY,
	}, []int{10})
}

// fixture writes three counties, three sites and an ACS table into dir.
// Rates are 18.2, 31.5 and 40.0; one site sits inside the 31.5 county, one
// inside the 18.2 county and one far away.
func fixture(t *testing.T, dir string) (sites, counties, table string) {
	t.Helper()

	cl := dataset.NewLayer("counties", dataset.KindPolygon, []dataset.Field{
		{Name: "GEOID", Type: dataset.TypeString},
		{Name: "NAME", Type: dataset.TypeString},
	})
	cl.PRJ = nad83
	require.NoError(t, cl.AppendFeature([]any{"17001", "Adams"}, square(-89.0, 40.0, 0.1)))
	require.NoError(t, cl.AppendFeature([]any{"17003", "Alexander"}, square(-88.5, 40.0, 0.1)))
	require.NoError(t, cl.AppendFeature([]any{"17005", "Bond"}, square(-88.0, 40.0, 0.1)))
	counties = filepath.Join(dir, "counties.shp")
	require.NoError(t, shapefile.Write(counties, cl))

	sl := dataset.NewLayer("sites", dataset.KindPoint, []dataset.Field{
		{Name: "SITE_NAME", Type: dataset.TypeString},
	})
	sl.PRJ = nad83
	require.NoError(t, sl.AppendFeature([]any{"Near Alexander"}, geom.NewPointFlat(geom.XY, []float64{-88.45, 40.05})))
	require.NoError(t, sl.AppendFeature([]any{"Inside Adams"}, geom.NewPointFlat(geom.XY, []float64{-88.95, 40.05})))
	require.NoError(t, sl.AppendFeature([]any{"Far away"}, geom.NewPointFlat(geom.XY, []float64{-80.0, 35.0})))
	sites = filepath.Join(dir, "sites.shp")
	require.NoError(t, shapefile.Write(sites, sl))

	table = filepath.Join(dir, "acs.csv")
	csv := strings.Join([]string{
		"GEOID,NAME,POV,TOT,RATE",
		"05000US17001,Adams County,182,1000,18.2",
		"05000US17003,Alexander County,315,1000,31.5",
		"05000US17005,Bond County,400,1000,40.0",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(table, []byte(csv), 0o644))
	return sites, counties, table
}

type recordingPublisher struct {
	layers []string
}

func (r *recordingPublisher) Publish(_ context.Context, layers ...*dataset.Layer) error {
	for _, l := range layers {
		r.layers = append(r.layers, l.Name)
	}
	return nil
}

func TestRun_EndToEnd(t *testing.T) {
	in := t.TempDir()
	ws := filepath.Join(t.TempDir(), "workspace")
	sites, counties, table := fixture(t, in)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	metrics := monitoring.NewMetrics()
	pub := &recordingPublisher{}
	opts := DefaultOptions()
	opts.Formats = []string{FormatShapefile, FormatGeoJSON}
	p := New(opts,
		WithClock(clockwork.NewFakeClockAt(start)),
		WithMetrics(metrics),
		WithPublisher(pub),
	)

	res, err := p.Run(context.Background(), Params{
		Workspace: ws,
		Sites:     sites,
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "RATE"},
		Compare:   Greater,
		Threshold: 25.0,
		Distance:  geo.Distance{Value: 1, Unit: geo.Kilometers},
	})
	require.NoError(t, err)
	require.Len(t, res.Layers, 3)

	threshold, err := shapefile.Read(filepath.Join(ws, ThresholdLayer+".shp"), shapefile.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, threshold.Len())
	geoids := []any{threshold.Rows[0][0], threshold.Rows[1][0]}
	assert.ElementsMatch(t, []any{"17003", "17005"}, geoids)
	assert.Equal(t, nad83, threshold.PRJ)
	ev, ok := threshold.Get(0, "EVAL")
	require.True(t, ok)
	assert.InDelta(t, 31.5, ev, 1e-9)

	near, err := shapefile.Read(filepath.Join(ws, CountiesNearLayer+".shp"), shapefile.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, near.Len())
	assert.Equal(t, "17003", near.Rows[0][0])

	sitesNear, err := shapefile.Read(filepath.Join(ws, SitesNearLayer+".shp"), shapefile.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, sitesNear.Len())
	assert.Equal(t, "Near Alexander", sitesNear.Rows[0][0])

	for _, name := range OutputLayers {
		_, err := os.Stat(filepath.Join(ws, name+".geojson"))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, OutputLayers, pub.layers)

	report, err := ReadReport(filepath.Join(ws, ReportFile))
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.True(t, start.Equal(report.StartedAt))
	assert.Equal(t, "1 Kilometers", report.Parameters.Distance)
	assert.Equal(t, 7, report.Parameters.PrefixLength)
	require.Len(t, report.Outputs, 3)
	assert.Equal(t, 2, report.Outputs[0].Rows)
	assert.Contains(t, report.Outputs[0].Files, ThresholdLayer+".prj")
	require.NotNil(t, report.Step(StepJoin))
	assert.Equal(t, 3, report.Step(StepJoin).Counts["matched"])
	require.NotNil(t, report.Step(StepPublish))
	require.Len(t, report.Inputs, 3)
	assert.Equal(t, 3, report.Inputs[2].Rows)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RowsJoined))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.NullEvaluations))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.OutputRows.WithLabelValues(ThresholdLayer)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LastRunSuccess))

	// Inputs are left untouched.
	fields, _, err := shapefile.Fields(counties)
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestRun_TwoCodesWithOperator(t *testing.T) {
	in := t.TempDir()
	ws := t.TempDir()
	sites, counties, table := fixture(t, in)

	p := New(DefaultOptions(), WithClock(clockwork.NewFakeClock()))
	res, err := p.Run(context.Background(), Params{
		Workspace: ws,
		Sites:     sites,
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "POV", Code2: "TOT"},
		Operator:  OpDiv,
		Compare:   GreaterEqual,
		Threshold: 0.315,
		Distance:  geo.Distance{Value: 50, Unit: geo.Miles},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Layers[0].Len())
	// 50 miles reaches across from the Alexander site to Adams and Bond, but
	// Adams fails the threshold.
	assert.Equal(t, 2, res.Layers[1].Len())
	assert.Equal(t, 2, res.Layers[2].Len())

	_, err = os.Stat(filepath.Join(ws, ThresholdLayer+".geojson"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SkippedCode2(t *testing.T) {
	in := t.TempDir()
	sites, counties, table := fixture(t, in)
	metrics := monitoring.NewMetrics()

	_, err := New(DefaultOptions(), WithMetrics(metrics)).Run(context.Background(), Params{
		Workspace: t.TempDir(),
		Sites:     sites,
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "POV", Code3: "TOT"},
		Operator:  OpAdd,
		Compare:   Greater,
		Threshold: 0,
		Distance:  geo.Distance{Value: 1, Unit: geo.Miles},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSkippedCode2))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("failure")))
}

func TestRun_MissingCode(t *testing.T) {
	in := t.TempDir()
	sites, counties, table := fixture(t, in)

	_, err := New(DefaultOptions()).Run(context.Background(), Params{
		Workspace: t.TempDir(),
		Sites:     sites,
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "B17001e2"},
		Compare:   Greater,
		Threshold: 0,
		Distance:  geo.Distance{Value: 1, Unit: geo.Miles},
	})
	assert.True(t, errors.Is(err, dataset.ErrFieldNotFound))
}

func TestRun_MissingInput(t *testing.T) {
	in := t.TempDir()
	_, counties, table := fixture(t, in)

	_, err := New(DefaultOptions()).Run(context.Background(), Params{
		Workspace: t.TempDir(),
		Sites:     filepath.Join(in, "nope.shp"),
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "RATE"},
		Compare:   Greater,
		Threshold: 0,
		Distance:  geo.Distance{Value: 1, Unit: geo.Miles},
	})
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.validate())

	o.Formats = []string{"kml"}
	assert.Error(t, o.validate())

	o = DefaultOptions()
	o.PrefixLength = -2
	assert.Error(t, o.validate())

	o = DefaultOptions()
	o.EvalField = " "
	assert.Error(t, o.validate())
}

func TestLoadOutputs(t *testing.T) {
	in := t.TempDir()
	ws := t.TempDir()
	sites, counties, table := fixture(t, in)

	_, err := LoadOutputs(ws)
	assert.Error(t, err)

	_, err = New(DefaultOptions()).Run(context.Background(), Params{
		Workspace: ws,
		Sites:     sites,
		Counties:  counties,
		Table:     table,
		Codes:     Codes{Code1: "RATE"},
		Compare:   Greater,
		Threshold: 25,
		Distance:  geo.Distance{Value: 1, Unit: geo.Kilometers},
	})
	require.NoError(t, err)

	layers, err := LoadOutputs(ws)
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, SitesNearLayer, layers[2].Name)
	assert.Equal(t, 1, layers[2].Len())
}

// zipFiles packs the named files of dir into one archive, in order.
func zipFiles(t *testing.T, dir, name string, files ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err)
		fw, err := w.Create("data/" + file)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestRun_CountiesAndTableInOneArchive(t *testing.T) {
	in := t.TempDir()
	ws := t.TempDir()
	sites, _, _ := fixture(t, in)
	archive := zipFiles(t, in, "illinois.zip",
		"acs.csv", "counties.shp", "counties.shx", "counties.dbf", "counties.prj")

	res, err := New(DefaultOptions()).Run(context.Background(), Params{
		Workspace: ws,
		Sites:     sites,
		Counties:  archive,
		Table:     archive,
		Codes:     Codes{Code1: "RATE"},
		Compare:   Greater,
		Threshold: 25,
		Distance:  geo.Distance{Value: 1, Unit: geo.Kilometers},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Layers[0].Len())
	assert.Equal(t, 1, res.Layers[1].Len())
	assert.Equal(t, 1, res.Layers[2].Len())

	extracted, err := filepath.Glob(filepath.Join(ws, fetcher.DownloadDir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(ws, fetcher.DownloadDir, "illinois")}, extracted)

	require.Len(t, res.Report.Inputs, 3)
	assert.Equal(t, filepath.Join(ws, fetcher.DownloadDir, "illinois", "data", "counties.shp"), res.Report.Inputs[1].Path)
	assert.Equal(t, filepath.Join(ws, fetcher.DownloadDir, "illinois", "data", "acs.csv"), res.Report.Inputs[2].Path)
}
