// Package pipeline runs the county screening: identifier cleaning, attribute
// join, evaluation, threshold selection, and the two proximity queries against
// hazardous sites.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
	"github.com/owlmanandy/superfund-counties/internal/export"
	"github.com/owlmanandy/superfund-counties/internal/fetcher"
	"github.com/owlmanandy/superfund-counties/internal/geo"
	"github.com/owlmanandy/superfund-counties/internal/monitoring"
	"github.com/owlmanandy/superfund-counties/internal/shapefile"
	"github.com/owlmanandy/superfund-counties/internal/tabular"
)

// Output layer names.
const (
	ThresholdLayer    = "Threshold_Counties"
	CountiesNearLayer = "Counties_with_Superfund"
	SitesNearLayer    = "Superfund_near_Counties"
)

// OutputLayers lists the layers a run writes, in order.
var OutputLayers = []string{ThresholdLayer, CountiesNearLayer, SitesNearLayer}

// Output formats.
const (
	FormatShapefile = "shp"
	FormatGeoJSON   = "geojson"
)

// Step names used in logs, metrics and the run report.
const (
	StepLoad      = "load"
	StepClean     = "clean_identifiers"
	StepProvision = "add_field"
	StepJoin      = "join"
	StepCompute   = "compute"
	StepSelect    = "select"
	StepProximity = "proximity"
	StepWrite     = "write"
	StepPublish   = "publish"
)

// Options tunes a run beyond its positional parameters.
type Options struct {
	PrefixLength    int
	KeyField        string
	NormalizedField string
	EvalField       string
	EvalWidth       int
	EvalDecimals    int
	// Encoding names the text encoding of DBF and CSV inputs.
	Encoding string
	Formats  []string
	HTTP     fetcher.HTTPOptions
	FTP      fetcher.FTPOptions
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PrefixLength:    DefaultPrefixLength,
		KeyField:        "GEOID",
		NormalizedField: "GEOID_TRUE",
		EvalField:       "EVAL",
		EvalWidth:       18,
		EvalDecimals:    6,
		Formats:         []string{FormatShapefile},
	}
}

func (o Options) validate() error {
	if o.PrefixLength < 0 {
		return eris.Errorf("pipeline: invalid identifier prefix length %d", o.PrefixLength)
	}
	for _, name := range []string{o.KeyField, o.NormalizedField, o.EvalField} {
		if strings.TrimSpace(name) == "" {
			return eris.New("pipeline: key, normalized and evaluation field names are required")
		}
	}
	if len(o.Formats) == 0 {
		return eris.New("pipeline: no output format")
	}
	for _, f := range o.Formats {
		if f != FormatShapefile && f != FormatGeoJSON {
			return eris.Errorf("pipeline: unknown output format %q", f)
		}
	}
	return nil
}

// Publisher stores output layers somewhere beyond the workspace.
type Publisher interface {
	Publish(ctx context.Context, layers ...*dataset.Layer) error
}

// Pipeline runs the county screening.
type Pipeline struct {
	opts      Options
	clock     clockwork.Clock
	metrics   *monitoring.Metrics
	publisher Publisher
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for report timestamps and step timings.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics records the run on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPublisher publishes the output layers once they are written.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// New creates a Pipeline.
func New(opts Options, options ...Option) *Pipeline {
	p := &Pipeline{opts: opts, clock: clockwork.NewRealClock()}
	for _, o := range options {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = monitoring.NewMetrics()
	}
	return p
}

// Metrics returns the metrics the pipeline records into.
func (p *Pipeline) Metrics() *monitoring.Metrics { return p.metrics }

// Result is the outcome of a successful run.
type Result struct {
	Report *Report
	// Layers holds the output layers in OutputLayers order.
	Layers []*dataset.Layer
}

type inputs struct {
	sites    *dataset.Layer
	counties *dataset.Layer
	table    *dataset.Table
}

// Run executes every step and writes the outputs and run report into the
// workspace. Any failing step aborts the run.
func (p *Pipeline) Run(ctx context.Context, params Params) (res *Result, err error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	defer func() { p.metrics.Finish(err, p.clock.Now()) }()

	if err := p.opts.validate(); err != nil {
		return nil, err
	}
	if _, err := params.Codes.List(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(params.Workspace, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create workspace %s", params.Workspace)
	}

	report := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  p.clock.Now().UTC(),
		Parameters: p.reportParams(params),
	}
	log = log.With(zap.String("run_id", report.RunID))
	log.Info("pipeline: starting run", zap.String("workspace", params.Workspace))

	trackStep := func(name string, fn func() (map[string]int, error)) error {
		start := p.clock.Now()
		counts, fnErr := fn()
		d := p.clock.Since(start)
		report.Steps = append(report.Steps, StepResult{Name: name, DurationMS: d.Milliseconds(), Counts: counts})
		p.metrics.ObserveStep(name, d)

		if fnErr != nil {
			log.Error("pipeline: step failed",
				zap.String("step", name),
				zap.Int64("duration_ms", d.Milliseconds()),
				zap.Error(fnErr),
			)
			return fnErr
		}
		fields := []zap.Field{zap.String("step", name), zap.Int64("duration_ms", d.Milliseconds())}
		for k, v := range counts {
			fields = append(fields, zap.Int(k, v))
		}
		log.Info("pipeline: step complete", fields...)
		return nil
	}

	var in *inputs
	if err := trackStep(StepLoad, func() (map[string]int, error) {
		var loadErr error
		in, loadErr = p.load(ctx, params, report)
		if loadErr != nil {
			return nil, loadErr
		}
		return map[string]int{"sites": in.sites.Len(), "counties": in.counties.Len(), "table": in.table.Len()}, nil
	}); err != nil {
		return nil, err
	}
	counties := in.counties

	if err := trackStep(StepClean, func() (map[string]int, error) {
		n, err := CleanIdentifiers(in.table, p.opts.KeyField, p.opts.NormalizedField, p.opts.PrefixLength)
		return map[string]int{"normalized": n}, err
	}); err != nil {
		return nil, err
	}

	if err := trackStep(StepProvision, func() (map[string]int, error) {
		_, err := ProvisionEval(counties.Table, p.opts.EvalField, p.opts.EvalWidth, p.opts.EvalDecimals)
		return nil, err
	}); err != nil {
		return nil, err
	}

	var joined Codes
	if err := trackStep(StepJoin, func() (map[string]int, error) {
		jr, err := Join(counties.Table, p.opts.KeyField, in.table, p.opts.NormalizedField, params.Codes)
		if err != nil {
			return nil, err
		}
		joined = jr.Codes
		p.metrics.RowsJoined.Set(float64(jr.Matched))
		return map[string]int{"matched": jr.Matched, "unmatched": counties.Len() - jr.Matched}, nil
	}); err != nil {
		return nil, err
	}

	if err := trackStep(StepCompute, func() (map[string]int, error) {
		er, err := Compute(counties.Table, p.opts.EvalField, joined, params.Operator)
		if err != nil {
			return nil, err
		}
		p.metrics.NullEvaluations.Set(float64(er.Nulls()))
		return map[string]int{"computed": er.Computed, "null": er.Nulls()}, nil
	}); err != nil {
		return nil, err
	}

	var threshold *dataset.Layer
	if err := trackStep(StepSelect, func() (map[string]int, error) {
		rows, err := Select(counties.Table, p.opts.EvalField, params.Compare, params.Threshold)
		if err != nil {
			return nil, err
		}
		threshold = counties.Subset(ThresholdLayer, rows)
		return map[string]int{"selected": len(rows)}, nil
	}); err != nil {
		return nil, err
	}

	var countiesNear, sitesNear *dataset.Layer
	if err := trackStep(StepProximity, func() (map[string]int, error) {
		rows, err := geo.WithinDistance(threshold, in.sites, params.Distance)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: counties near sites")
		}
		countiesNear = threshold.Subset(CountiesNearLayer, rows)

		rows, err = geo.WithinDistance(in.sites, threshold, params.Distance)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: sites near counties")
		}
		sitesNear = in.sites.Subset(SitesNearLayer, rows)
		return map[string]int{"counties": countiesNear.Len(), "sites": sitesNear.Len()}, nil
	}); err != nil {
		return nil, err
	}

	layers := []*dataset.Layer{threshold, countiesNear, sitesNear}
	if err := trackStep(StepWrite, func() (map[string]int, error) {
		counts := make(map[string]int, len(layers))
		for _, l := range layers {
			files, err := p.write(params.Workspace, l)
			if err != nil {
				return nil, err
			}
			report.Outputs = append(report.Outputs, Output{Layer: l.Name, Rows: l.Len(), Files: files})
			p.metrics.OutputRows.WithLabelValues(l.Name).Set(float64(l.Len()))
			counts[l.Name] = l.Len()
		}
		return counts, nil
	}); err != nil {
		return nil, err
	}

	if p.publisher != nil {
		if err := trackStep(StepPublish, func() (map[string]int, error) {
			return nil, p.publisher.Publish(ctx, layers...)
		}); err != nil {
			return nil, err
		}
	}

	report.FinishedAt = p.clock.Now().UTC()
	if err := report.Write(filepath.Join(params.Workspace, ReportFile)); err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete",
		zap.Int("threshold_counties", threshold.Len()),
		zap.Int("counties_with_sites", countiesNear.Len()),
		zap.Int("sites_near_counties", sitesNear.Len()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return &Result{Report: report, Layers: layers}, nil
}

// load resolves and reads the three inputs concurrently.
func (p *Pipeline) load(ctx context.Context, params Params, report *Report) (*inputs, error) {
	resolver := fetcher.NewResolver(params.Workspace, p.opts.HTTP, p.opts.FTP)
	in := &inputs{}
	paths := make([]string, 3)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		path, err := resolver.Resolve(gCtx, params.Sites, ".shp")
		if err != nil {
			return eris.Wrap(err, "pipeline: resolve sites")
		}
		paths[0] = path
		in.sites, err = shapefile.Read(path, shapefile.ReadOptions{Encoding: p.opts.Encoding})
		return err
	})
	g.Go(func() error {
		path, err := resolver.Resolve(gCtx, params.Counties, ".shp")
		if err != nil {
			return eris.Wrap(err, "pipeline: resolve counties")
		}
		paths[1] = path
		l, err := shapefile.Read(path, shapefile.ReadOptions{Encoding: p.opts.Encoding})
		if err != nil {
			return err
		}
		// Numeric GEOID columns are compared as text during the join.
		if err := l.ConvertField(p.opts.KeyField, dataset.TypeString); err != nil {
			return eris.Wrapf(err, "pipeline: county key in %s", path)
		}
		in.counties = l
		return nil
	})
	g.Go(func() error {
		ref, table := tabular.SplitRef(params.Table)
		path, err := resolver.Resolve(gCtx, ref, tabular.Extensions...)
		if err != nil {
			return eris.Wrap(err, "pipeline: resolve table")
		}
		paths[2] = path
		in.table, err = tabular.Load(gCtx, path, tabular.Options{
			Table:    table,
			Encoding: p.opts.Encoding,
			Text:     []string{p.opts.KeyField},
			Numeric:  params.Codes.Names(),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, s := range []struct {
		name string
		rows int
	}{
		{"sites", in.sites.Len()},
		{"counties", in.counties.Len()},
		{"table", in.table.Len()},
	} {
		report.Inputs = append(report.Inputs, InputStat{Name: s.name, Path: paths[i], Rows: s.rows})
		p.metrics.RowsLoaded.WithLabelValues(s.name).Set(float64(s.rows))
	}
	return in, nil
}

// write stores a layer in every configured format and returns the file names
// relative to the workspace.
func (p *Pipeline) write(workspace string, l *dataset.Layer) ([]string, error) {
	var files []string
	for _, format := range p.opts.Formats {
		switch format {
		case FormatShapefile:
			if err := shapefile.Write(filepath.Join(workspace, l.Name+".shp"), l); err != nil {
				return nil, eris.Wrapf(err, "pipeline: write %s", l.Name)
			}
			files = append(files, l.Name+".shp", l.Name+".shx", l.Name+".dbf", l.Name+".cpg")
			if l.PRJ != "" {
				files = append(files, l.Name+".prj")
			}
		case FormatGeoJSON:
			if err := export.WriteGeoJSON(filepath.Join(workspace, l.Name+".geojson"), l); err != nil {
				return nil, eris.Wrapf(err, "pipeline: write %s", l.Name)
			}
			files = append(files, l.Name+".geojson")
		}
	}
	return files, nil
}

func (p *Pipeline) reportParams(params Params) ReportParams {
	return ReportParams{
		Workspace:    params.Workspace,
		Sites:        params.Sites,
		Counties:     params.Counties,
		Table:        params.Table,
		Codes:        params.Codes,
		Operator:     string(params.Operator),
		Comparison:   string(params.Compare),
		Threshold:    params.Threshold,
		Distance:     params.Distance.String(),
		PrefixLength: p.opts.PrefixLength,
	}
}

// LoadOutputs reads the output shapefiles of a finished run back from the
// workspace.
func LoadOutputs(workspace string) ([]*dataset.Layer, error) {
	layers := make([]*dataset.Layer, 0, len(OutputLayers))
	for _, name := range OutputLayers {
		l, err := shapefile.Read(filepath.Join(workspace, name+".shp"), shapefile.ReadOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load output %s", name)
		}
		layers = append(layers, l)
	}
	return layers, nil
}
