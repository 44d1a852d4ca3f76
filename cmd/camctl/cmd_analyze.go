package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-cam/internal/application/analyses"
	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/report"
)

// errIssuesFound is returned when --fail-on matches a finding
var errIssuesFound = errors.New("issues at or above the --fail-on severity")

type analyzeOptions struct {
	format       string
	rulesFile    string
	project      string
	board        string
	output       string
	failOn       string
	timeout      time.Duration
	maxExpanded  int64
	parseWorkers int

	minTraceWidth  float64
	minSpacing     float64
	minAnnularRing float64
	minDrillSize   float64
}

func newAnalyzeCmd() *cobra.Command {
	var o analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <file|dir>...",
		Short: "Analyse a Gerber file set or an ODB++ job",
		Long: `Analyse fabrication files and print a report.

Arguments are files or directories. Directories are read recursively and
hidden entries are skipped. Archives (.zip, .tgz, .tar.gz) are expanded.

Usage:
  camctl analyze board.zip
  camctl analyze job.tgz --format narrative
  camctl analyze gerbers/ --min-trace-width 0.075 --fail-on critical`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.format, "format", "f", "structured", "Report format: structured or narrative")
	f.StringVar(&o.rulesFile, "rules", "", "YAML file of threshold overrides (see `camctl rules`)")
	f.StringVar(&o.project, "project", "local", "Project name shown in the report")
	f.StringVar(&o.board, "board", "", "Board name shown in the report")
	f.StringVarP(&o.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.StringVar(&o.failOn, "fail-on", "none", "Exit with status 2 when an issue of this severity or worse is found: critical, warning, info or none")
	f.DurationVar(&o.timeout, "timeout", 5*time.Minute, "Give up after this long")
	f.Int64Var(&o.maxExpanded, "max-expanded-bytes", 500<<20, "Limit on bytes expanded from archives")
	f.IntVar(&o.parseWorkers, "parse-workers", 4, "Files parsed concurrently")
	f.Float64Var(&o.minTraceWidth, "min-trace-width", 0, "Minimum trace width in mm")
	f.Float64Var(&o.minSpacing, "min-spacing", 0, "Minimum copper spacing in mm")
	f.Float64Var(&o.minAnnularRing, "min-annular-ring", 0, "Minimum annular ring in mm")
	f.Float64Var(&o.minDrillSize, "min-drill-size", 0, "Minimum drill diameter in mm")
	return cmd
}

// thresholds layers the --rules file then the individual flags over the defaults
func thresholds(cmd *cobra.Command, o analyzeOptions) (camrules.Thresholds, error) {
	var ov camrules.Overrides
	if o.rulesFile != "" {
		data, err := os.ReadFile(o.rulesFile)
		if err != nil {
			return camrules.Thresholds{}, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
			return camrules.Thresholds{}, fmt.Errorf("%s: %w", o.rulesFile, err)
		}
	}
	flags := map[string]**float64{
		"min-trace-width":  &ov.MinTraceWidth,
		"min-spacing":      &ov.MinSpacing,
		"min-annular-ring": &ov.MinAnnularRing,
		"min-drill-size":   &ov.MinDrillSize,
	}
	values := map[string]float64{
		"min-trace-width":  o.minTraceWidth,
		"min-spacing":      o.minSpacing,
		"min-annular-ring": o.minAnnularRing,
		"min-drill-size":   o.minDrillSize,
	}
	for name, dst := range flags {
		if cmd.Flags().Changed(name) {
			v := values[name]
			*dst = &v
		}
	}
	if err := ov.Validate(); err != nil {
		return camrules.Thresholds{}, fmt.Errorf("rules: %w", err)
	}
	th := camrules.Defaults().With(ov)
	return th, th.Validate()
}

// readInputs loads every argument, walking directories
func readInputs(args []string) ([]design.File, error) {
	var files []design.File
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, design.File{Name: filepath.Base(arg), Content: data})
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != arg && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(arg, p)
			if err != nil {
				return err
			}
			files = append(files, design.File{Name: filepath.ToSlash(rel), Content: data})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in %s", strings.Join(args, ", "))
	}
	return files, nil
}

func severityAtLeast(issues []camrules.Issue, failOn string) (bool, error) {
	order := map[camrules.Severity]int{
		camrules.SeverityInfo:     1,
		camrules.SeverityWarning:  2,
		camrules.SeverityCritical: 3,
	}
	if failOn == "" || failOn == "none" {
		return false, nil
	}
	floor, ok := order[camrules.Severity(failOn)]
	if !ok {
		return false, fmt.Errorf("--fail-on %q: want critical, warning, info or none", failOn)
	}
	for _, is := range issues {
		if order[is.Severity] >= floor {
			return true, nil
		}
	}
	return false, nil
}

func runAnalyze(cmd *cobra.Command, o analyzeOptions, args []string) error {
	format, err := report.ParseFormat(o.format)
	if err != nil {
		return err
	}
	// checked before the pipeline runs so a typo does not cost a full analysis
	if _, err := severityAtLeast(nil, o.failOn); err != nil {
		return err
	}
	th, err := thresholds(cmd, o)
	if err != nil {
		return err
	}
	files, err := readInputs(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	out, err := analyses.NewPipeline(o.maxExpanded, o.parseWorkers).Run(ctx, files, th)
	if err != nil {
		return fmt.Errorf("%s: %w", analysis.KindOf(err), err)
	}

	now := time.Now().UTC()
	a := &analysis.Analysis{
		ID:          analysis.NewID(),
		ProjectName: o.project,
		BoardName:   o.board,
		Status:      analysis.StatusCompleted,
		Format:      out.Format,
		Issues:      out.Issues,
		Warnings:    out.Model.Warnings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := analysis.NewResult(out.Summary, out.Issues, now)
	a.Result = &res
	for _, f := range files {
		a.Files = append(a.Files, design.FileRef{Name: f.Name, Role: f.Role, Size: f.Size()})
	}

	body, err := report.Render(a, format)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if o.output != "" {
		if err := os.WriteFile(o.output, body, 0o644); err != nil {
			return err
		}
	} else if _, err := w.Write(body); err != nil {
		return err
	}
	if format == report.FormatNarrative && !strings.HasSuffix(string(body), "\n") && o.output == "" {
		fmt.Fprintln(w)
	}

	hit, err := severityAtLeast(out.Issues, o.failOn)
	if err != nil {
		return err
	}
	if hit {
		return fmt.Errorf("%w (%s)", errIssuesFound, o.failOn)
	}
	return nil
}
