package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VectorBits/facetsplit/src/internal/config"
	"github.com/VectorBits/facetsplit/src/internal/logger"
	"github.com/VectorBits/facetsplit/src/internal/manifest"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/pipeline"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/report"
	"github.com/VectorBits/facetsplit/src/internal/ui"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// run is the outcome of analysing every input file. Results[i] is nil when
// Paths[i] failed; its error is in Failures.
type run struct {
	Paths    []string
	Results  []*pipeline.Result
	Failures map[string]error
	Err      error
	Elapsed  time.Duration
}

func (r *run) succeeded() []*pipeline.Result {
	out := make([]*pipeline.Result, 0, len(r.Results))
	for _, res := range r.Results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

func (c *CLIConfig) analyse(cmd *cobra.Command, cfg *config.AppConfig, args []string) (*run, error) {
	paths, err := c.inputs(args)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(paths); err != nil {
		return nil, err
	}

	r := &run{Paths: paths, Failures: make(map[string]error)}
	var mu sync.Mutex
	var bar *ui.ProgressBar
	if len(paths) > 1 {
		bar = ui.NewProgressBar(cmd.ErrOrStderr(), len(paths), "Analysing")
	}
	progress := func(path string, err error) {
		if err != nil {
			mu.Lock()
			r.Failures[path] = err
			mu.Unlock()
		}
		if bar != nil {
			bar.Done(path, err)
		}
	}

	p, err := c.newPipeline(cfg, progress)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	r.Results, r.Err = p.RunFiles(cmd.Context(), paths, c.Concurrency)
	if bar != nil {
		bar.Finish()
	}
	r.Elapsed = time.Since(start)
	logger.Debug("analysed %d files in %s", len(paths), r.Elapsed)
	return r, nil
}

func hasErrors(results []*pipeline.Result) bool {
	for _, res := range results {
		if !res.Validation.Valid() {
			return true
		}
	}
	return false
}

// outcome picks the command error: analysis failures first, then findings.
func outcome(r *run, findings bool) error {
	if r.Err != nil {
		return r.Err
	}
	if findings {
		return ErrFindings
	}
	return nil
}

func formatFlag(cmd *cobra.Command, allowed ...string) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	for _, a := range allowed {
		if format == a {
			return format, nil
		}
	}
	return "", usageErrorf("unsupported format %q (supported: %s)", format, strings.Join(allowed, ", "))
}

func writeJSON(w io.Writer, v any) error {
	data, err := manifest.Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func printHeader(w io.Writer, res *pipeline.Result) {
	m := res.Model
	fmt.Fprintf(w, "\n%s📄 %s%s  %s\n", ui.Bold, m.Name, ui.Reset, res.File)
	fmt.Fprintf(w, "%sfunctions: %d (%d routable) | estimated size: %d bytes | %s%s\n",
		ui.Gray, len(m.Functions), len(m.Routable()), m.TotalSizeEstimate, analysisMode(m), ui.Reset)
}

func analysisMode(m *model.ContractModel) string {
	switch {
	case m.Compiled && m.CompilerVersion != "":
		return "compiled with solc " + m.CompilerVersion
	case m.Compiled:
		return "compiled"
	case m.Scanned:
		return "source scan"
	}
	return "AST"
}

func newAnalyzeCmd(c *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Extract functions, selectors and the storage layout of a contract",
		Args:  c.requireFiles,
		RunE:  c.runAnalyze,
	}
	cmd.Flags().StringP("format", "f", formatTable, "output format: table | json")
	return cmd
}

func (c *CLIConfig) runAnalyze(cmd *cobra.Command, args []string) error {
	format, err := formatFlag(cmd, formatTable, formatJSON)
	if err != nil {
		return err
	}
	cfg, err := c.settings(cmd)
	if err != nil {
		return err
	}
	r, err := c.analyse(cmd, cfg, args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	results := r.succeeded()
	if format == formatJSON {
		models := make([]*model.ContractModel, len(results))
		for i, res := range results {
			models[i] = res.Model
		}
		var v any = models
		if len(r.Paths) == 1 && len(models) == 1 {
			v = models[0]
		}
		if err := writeJSON(w, v); err != nil {
			return err
		}
		return outcome(r, false)
	}

	for _, res := range results {
		printHeader(w, res)
		ui.FunctionTable(w, res.Model)
		if len(res.Model.Variables) > 0 {
			ui.VariableTable(w, res.Model.Variables)
		}
		if c.Verbose {
			fmt.Fprintln(w, ui.Cyan+"Call tree"+ui.Reset)
			fmt.Fprint(w, res.Graph.Tree())
		}
	}
	return outcome(r, false)
}

// chunkOutput is the JSON shape of one chunk result.
type chunkOutput struct {
	File       string            `json:"file"`
	Contract   string            `json:"contract"`
	Plan       *planner.Plan     `json:"plan"`
	Routes     []model.Route     `json:"routes"`
	MerkleRoot string            `json:"merkleRoot"`
	Validation *validator.Report `json:"validation"`
	PlanErrors []string          `json:"planErrors,omitempty"`
}

func newChunkCmd(c *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk <file>...",
		Short: "Partition a contract into facet chunks and build its route table",
		Args:  c.requireFiles,
		RunE:  c.runChunk,
	}
	addPlanFlags(cmd, c)
	cmd.Flags().StringP("format", "f", formatTable, "output format: table | json")
	return cmd
}

func (c *CLIConfig) runChunk(cmd *cobra.Command, args []string) error {
	format, err := formatFlag(cmd, formatTable, formatJSON)
	if err != nil {
		return err
	}
	cfg, err := c.settings(cmd)
	if err != nil {
		return err
	}
	r, err := c.analyse(cmd, cfg, args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	results := r.succeeded()
	if format == formatJSON {
		out := make([]chunkOutput, 0, len(results))
		for _, res := range results {
			o := chunkOutput{
				File:       res.File,
				Contract:   res.Model.Name,
				Plan:       res.Plan,
				Routes:     res.Routes,
				MerkleRoot: res.MerkleRoot().Hex(),
				Validation: res.Validation,
			}
			for _, e := range res.Plan.Errors {
				o.PlanErrors = append(o.PlanErrors, e.Error())
			}
			out = append(out, o)
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
		return outcome(r, hasErrors(results))
	}

	for _, res := range results {
		printHeader(w, res)
		ui.ChunkTable(w, res.Model, res.Plan)
		met := res.Plan.Metrics
		fmt.Fprintf(w, "strategy: %s | cross-chunk edges: %d (score %.2f) | size efficiency: %.1f%%\n",
			res.Plan.Strategy, met.CrossChunkEdges, met.CrossChunkScore, met.SizeEfficiency*100)
		for _, rec := range met.Recommendations {
			fmt.Fprintf(w, "%s💡 %s%s\n", ui.Yellow, rec, ui.Reset)
		}
		if len(res.Routes) > 0 {
			ui.RouteTable(w, res.Routes)
		}
		fmt.Fprintf(w, "merkle root: %s\n", res.MerkleRoot().Hex())
		if len(res.Validation.Errors)+len(res.Validation.Warnings) > 0 {
			ui.FindingTable(w, res.Validation)
		}
	}
	if len(results) > 1 {
		valid := 0
		findings := 0
		for _, res := range results {
			if res.Validation.Valid() {
				valid++
			}
			findings += len(res.Validation.Errors) + len(res.Validation.Warnings)
		}
		ui.PrintStats(w, len(r.Paths), valid, len(r.Failures), findings, r.Elapsed)
	}
	return outcome(r, hasErrors(results))
}

func newManifestCmd(c *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <file>",
		Short: "Write deployment.json, facets.json and proofs.json for a contract",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || c.From != "" {
				return usageErrorf("manifest takes exactly one source file, got %d", len(args))
			}
			return nil
		},
		RunE: c.runManifest,
	}
	addPlanFlags(cmd, c)
	cmd.Flags().StringVar(&c.Network, "network", "", "network recorded in the deployment manifest")
	cmd.Flags().StringVar(&c.Factory, "factory", "", "factory address")
	cmd.Flags().StringVar(&c.Dispatcher, "dispatcher", "", "dispatcher address")
	cmd.Flags().StringVarP(&c.OutDir, "out", "o", "", "output directory (default from settings, manifests)")
	return cmd
}

func (c *CLIConfig) runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := c.settings(cmd)
	if err != nil {
		return err
	}
	r, err := c.analyse(cmd, cfg, args)
	if err != nil {
		return err
	}
	if r.Err != nil {
		return r.Err
	}
	res := r.Results[0]
	w := cmd.OutOrStdout()

	if !res.Validation.Valid() {
		ui.FindingTable(w, res.Validation)
		ui.LogError("%s has %d validation errors, no manifest written", res.Model.Name, len(res.Validation.Errors))
		return ErrFindings
	}
	for _, f := range res.Validation.Warnings {
		ui.LogWarn("%s: %s", f.Check, f.Message)
	}

	m := cfg.Manifest
	files, err := manifest.Files(res.ManifestInput(), manifest.Settings{
		Version:    m.Version,
		Network:    m.Network,
		Creator:    m.Creator,
		Factory:    m.Factory,
		Dispatcher: m.Dispatcher,
		Deployer:   m.Deployer,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build manifests: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	storage := report.NewFileStorage(m.OutputDir)
	for _, name := range names {
		path, err := storage.Save(name, string(files[name]))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, path)
	}
	ui.LogSuccess("%s: %d facets, %d routes, merkle root %s", res.Model.Name, len(res.Facets), len(res.Routes), res.MerkleRoot().Hex())
	return nil
}

func newReportCmd(c *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <file>...",
		Short: "Render a markdown or JSON report of the analysis, chunks, routes and findings",
		Args:  c.requireFiles,
		RunE:  c.runReport,
	}
	addPlanFlags(cmd, c)
	cmd.Flags().StringP("format", "f", string(report.FormatMarkdown), "report format: markdown | json")
	cmd.Flags().StringVarP(&c.Output, "output", "o", "", "write to this file, or a timestamped file inside this directory (default: stdout)")
	return cmd
}

func (c *CLIConfig) runReport(cmd *cobra.Command, args []string) error {
	format, err := formatFlag(cmd, string(report.FormatMarkdown), "md", string(report.FormatJSON))
	if err != nil {
		return err
	}
	generator, err := report.NewGenerator(format)
	if err != nil {
		return &UsageError{Err: err}
	}
	cfg, err := c.settings(cmd)
	if err != nil {
		return err
	}
	r, err := c.analyse(cmd, cfg, args)
	if err != nil {
		return err
	}

	now := time.Now()
	rep := report.NewReport(cfg.Planner.Strategy, cfg.Planner.MaxSize, now)
	for i, res := range r.Results {
		if res == nil {
			rep.AddFailure(r.Paths[i], r.Failures[r.Paths[i]])
			continue
		}
		rep.AddResult(res)
	}

	var reportErr error
	if rep.HasErrors() {
		reportErr = ErrFindings
	}

	if c.Output == "" {
		content, err := generator.Generate(rep)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(cmd.OutOrStdout(), content); err != nil {
			return err
		}
		return reportErr
	}

	dir, name := filepath.Split(c.Output)
	if info, err := os.Stat(c.Output); err == nil && info.IsDir() {
		contract := "report"
		if len(rep.Contracts) == 1 {
			contract = rep.Contracts[0].Contract
		}
		dir, name = c.Output, report.DefaultName(contract, report.Format(format), now)
	}
	if dir == "" {
		dir = "."
	}
	path, err := report.NewReporter(generator, report.NewFileStorage(dir)).GenerateAndSave(rep, name)
	if err != nil {
		return err
	}
	ui.LogSuccess("report written to %s", path)
	return reportErr
}

func newInitCmd(c *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			return initConfigFile(cmd.OutOrStdout(), path, c.Force)
		},
	}
	cmd.Flags().String("path", filepath.Join("config", "settings.yaml"), "where to write the settings file")
	cmd.Flags().BoolVar(&c.Force, "force", false, "overwrite an existing file")
	return cmd
}

func initConfigFile(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return usageErrorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	saved, err := report.NewFileStorage(filepath.Dir(path)).Save(filepath.Base(path), string(config.ExampleSettings()))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, ui.Green+"✅ Created default config file: %s"+ui.Reset+"\n", saved)
	return nil
}
