package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ReportFile is the run report written into the workspace.
const ReportFile = "run_report.yaml"

// Report describes one run: its parameters, per-step timings and counts, and the
// files it produced.
type Report struct {
	RunID      string       `yaml:"run_id"`
	StartedAt  time.Time    `yaml:"started_at"`
	FinishedAt time.Time    `yaml:"finished_at"`
	Parameters ReportParams `yaml:"parameters"`
	Inputs     []InputStat  `yaml:"inputs"`
	Steps      []StepResult `yaml:"steps"`
	Outputs    []Output     `yaml:"outputs"`
}

// ReportParams echoes the run parameters.
type ReportParams struct {
	Workspace    string  `yaml:"workspace"`
	Sites        string  `yaml:"sites"`
	Counties     string  `yaml:"counties"`
	Table        string  `yaml:"table"`
	Codes        Codes   `yaml:"codes"`
	Operator     string  `yaml:"operator,omitempty"`
	Comparison   string  `yaml:"comparison"`
	Threshold    float64 `yaml:"threshold"`
	Distance     string  `yaml:"distance"`
	PrefixLength int     `yaml:"prefix_length"`
}

// InputStat records where an input came from and how many rows it held.
type InputStat struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	Rows int    `yaml:"rows"`
}

// StepResult records one pipeline step.
type StepResult struct {
	Name       string         `yaml:"name"`
	DurationMS int64          `yaml:"duration_ms"`
	Counts     map[string]int `yaml:"counts,omitempty"`
}

// Output is a layer written by the run.
type Output struct {
	Layer string   `yaml:"layer"`
	Rows  int      `yaml:"rows"`
	Files []string `yaml:"files"`
}

// Step returns the named step, or nil.
func (r *Report) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Write stores the report as YAML.
func (r *Report) Write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write report %s", path)
	}
	return nil
}

// ReadReport loads a report written by Write.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read report %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse report %s", path)
	}
	return &r, nil
}
