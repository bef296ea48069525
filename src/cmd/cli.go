package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/VectorBits/facetsplit/src/internal/astparser"
	"github.com/VectorBits/facetsplit/src/internal/config"
	"github.com/VectorBits/facetsplit/src/internal/extractor"
	"github.com/VectorBits/facetsplit/src/internal/logger"
	"github.com/VectorBits/facetsplit/src/internal/manifest"
	"github.com/VectorBits/facetsplit/src/internal/pipeline"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/solc"
	"github.com/VectorBits/facetsplit/src/internal/ui"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/spf13/cobra"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrFindings is returned when a run completed but validation reported errors.
var ErrFindings = errors.New("validation reported errors")

// UsageError marks bad arguments or missing input files.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, a ...interface{}) error {
	return &UsageError{Err: fmt.Errorf(format, a...)}
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var uerr *UsageError
	if errors.As(err, &uerr) || strings.HasPrefix(err.Error(), "unknown command") {
		return ExitUsage
	}
	return ExitFailure
}

// CLIConfig holds the flag values. Only flags the user actually set override
// the settings file.
type CLIConfig struct {
	ConfigPath      string
	LogFile         string
	Verbose         bool
	ContractName    string
	Light           bool
	RequireCompiler bool
	SolcPath        string
	Soft            bool
	Concurrency     int
	From            string

	Strategy string
	MaxSize  uint64
	GasLimit uint64

	Network    string
	Factory    string
	Dispatcher string
	OutDir     string

	Output string
	Force  bool
}

// MergeConfigs applies the flags for which changed reports true onto a copy
// of appConfig.
func (c *CLIConfig) MergeConfigs(appConfig *config.AppConfig, changed func(name string) bool) *config.AppConfig {
	cfg := config.Default()
	if appConfig != nil {
		merged := *appConfig
		cfg = &merged
	}

	if changed("light") {
		cfg.Analysis.Light = c.Light
	}
	if changed("require-compiler") {
		cfg.Analysis.RequireCompiler = c.RequireCompiler
	}
	if changed("solc") {
		cfg.Analysis.SolcPath = c.SolcPath
	}
	if changed("soft") {
		cfg.Validation.Soft = c.Soft
	}
	if changed("strategy") {
		cfg.Planner.Strategy = c.Strategy
	}
	if changed("max-size") {
		cfg.Planner.MaxSize = c.MaxSize
	}
	if changed("gas-limit") {
		cfg.Planner.GasLimit = c.GasLimit
	}
	if changed("network") {
		cfg.Manifest.Network = c.Network
	}
	if changed("factory") {
		cfg.Manifest.Factory = c.Factory
	}
	if changed("dispatcher") {
		cfg.Manifest.Dispatcher = c.Dispatcher
	}
	if changed("out") {
		cfg.Manifest.OutputDir = c.OutDir
	}
	return cfg
}

// settings loads the settings file and applies the flags of cmd.
func (c *CLIConfig) settings(cmd *cobra.Command) (*config.AppConfig, error) {
	appConfig, err := config.LoadConfig(c.ConfigPath)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	if appConfig.Path != "" {
		logger.Debug("loaded settings from %s", appConfig.Path)
	}
	cfg := c.MergeConfigs(appConfig, cmd.Flags().Changed)
	if err := cfg.Validate(); err != nil {
		return nil, &UsageError{Err: err}
	}
	return cfg, nil
}

func (c *CLIConfig) newPipeline(cfg *config.AppConfig, progress func(string, error)) (*pipeline.Pipeline, error) {
	a := cfg.Analysis
	var parser astparser.Parser
	var compiler solc.Compiler
	if solc.BackendType(a.Backend) != solc.BackendNoOp {
		manager := solc.NewManager(a.SolcPath)
		parser = astparser.NewSolcParser(manager, a.SolcPath, a.CompileTimeout)
		var err error
		compiler, err = solc.NewCompiler(solc.CompilerConfig{
			Backend:  solc.BackendType(a.Backend),
			SolcPath: a.SolcPath,
			Timeout:  a.CompileTimeout,
			Enabled:  !a.Light,
		}, manager)
		if err != nil {
			return nil, err
		}
	}

	strategy, err := planner.ParseStrategy(cfg.Planner.Strategy)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	p, err := pipeline.New(extractor.New(parser, compiler), pipeline.Options{
		Extract: extractor.Options{
			ContractName:    c.ContractName,
			Light:           a.Light,
			RequireCompiler: a.RequireCompiler,
		},
		Plan: planner.Options{
			Strategy: strategy,
			MaxSize:  cfg.Planner.MaxSize,
			GasLimit: cfg.Planner.GasLimit,
		},
		Validate: validator.Options{
			Soft:             cfg.Validation.Soft,
			PrivilegedFacets: cfg.Validation.PrivilegedFacets,
			ExtraBanned:      cfg.Validation.ExtraBannedSignatures,
		},
		Identities: manifest.Identities{
			Addresses:  cfg.Manifest.FacetAddresses,
			Codehashes: cfg.Manifest.Codehashes,
		},
		Progress: progress,
	})
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	return p, nil
}

// checkInputs turns a missing input file into a usage error before any work
// starts.
func checkInputs(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return usageErrorf("input %s: %w", path, err)
		}
		if info.IsDir() {
			return usageErrorf("input %s is a directory", path)
		}
	}
	return nil
}

// NewRootCmd builds the command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	c := &CLIConfig{}
	root := &cobra.Command{
		Use:   "facetsplit [command] [flags]",
		Short: "Split a Solidity contract into facets with Merkle-proven routes.",
		Long: `facetsplit analyses a Solidity contract, partitions its external functions into
facet chunks under the EIP-170 size limit, builds the selector routing table with a
Merkle commitment, validates the layout and writes deployment manifests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.InitLogger(logger.Options{Verbose: c.Verbose, File: c.LogFile})
		},
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&c.ConfigPath, "config", "c", "", "settings file (default: first of config/settings.yaml, settings.yaml, src/config/settings.yaml)")
	pf.BoolVarP(&c.Verbose, "verbose", "v", false, "debug logging; analyze also prints the call tree")
	pf.StringVar(&c.LogFile, "log-file", "", "also write JSON logs to this file")
	pf.StringVar(&c.ContractName, "contract-name", "", "contract to analyse when the source declares several (default: the last one)")
	pf.BoolVar(&c.Light, "light", false, "lightweight mode: AST only, no compiler")
	pf.BoolVar(&c.RequireCompiler, "require-compiler", false, "fail instead of degrading when the compiler fails")
	pf.StringVar(&c.SolcPath, "solc", "", "solc binary (default: resolved from the pragma)")
	pf.BoolVar(&c.Soft, "soft", false, "report selector/storage collisions and banned selectors as warnings")
	pf.IntVar(&c.Concurrency, "concurrency", 0, "files analysed in parallel (default: GOMAXPROCS)")
	pf.StringVar(&c.From, "from", "", "read more source paths from a list file (.txt, or .yaml with a list or sources:)")

	root.AddCommand(
		newAnalyzeCmd(c),
		newChunkCmd(c),
		newManifestCmd(c),
		newReportCmd(c),
		newInitCmd(c),
	)
	return root
}

func addPlanFlags(cmd *cobra.Command, c *CLIConfig) {
	cmd.Flags().StringVarP(&c.Strategy, "strategy", "s", "", "chunking strategy: domain | callgraph | sizegas")
	cmd.Flags().Uint64Var(&c.MaxSize, "max-size", 0, fmt.Sprintf("per-facet bytecode ceiling in bytes (default %d)", planner.DefaultMaxSize))
	cmd.Flags().Uint64Var(&c.GasLimit, "gas-limit", 0, "per-facet estimated gas ceiling, 0 disables")
}

// Run executes the command line. The first interrupt cancels the running
// analysis, the second exits immediately.
func Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()

	go func() {
		count := 0
		for range sigChan {
			count++
			if count == 1 {
				fmt.Fprintln(os.Stderr, "\nInterrupt received, stopping... (press Ctrl+C again to force exit)")
				cancel()
				continue
			}
			fmt.Fprintln(os.Stderr, "\nForce exiting...")
			os.Exit(130)
		}
	}()

	defer logger.Close()
	return NewRootCmd(os.Stdout).ExecuteContext(ctx)
}

func PrintFatal(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		os.Exit(ExitFailure)
	}

	fmt.Fprintln(os.Stderr, ui.Red+"Error:"+ui.Reset, err)
	os.Exit(ExitCode(err))
}
