package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

//go:embed settings.example.yaml
var exampleSettings []byte

type AnalysisConfig struct {
	SolcPath        string        `yaml:"solc_path"`
	Backend         string        `yaml:"backend"`
	CompileTimeout  time.Duration `yaml:"compile_timeout"`
	Light           bool          `yaml:"light"`
	RequireCompiler bool          `yaml:"require_compiler"`
}

type PlannerConfig struct {
	Strategy string `yaml:"strategy"`
	MaxSize  uint64 `yaml:"max_size"`
	GasLimit uint64 `yaml:"gas_limit"`
}

type ValidationConfig struct {
	Soft                  bool     `yaml:"soft"`
	PrivilegedFacets      []string `yaml:"privileged_facets"`
	ExtraBannedSignatures []string `yaml:"extra_banned_signatures"`
}

type ManifestConfig struct {
	Version        string            `yaml:"version"`
	Network        string            `yaml:"network"`
	Creator        string            `yaml:"creator"`
	Factory        string            `yaml:"factory"`
	Dispatcher     string            `yaml:"dispatcher"`
	Deployer       string            `yaml:"deployer"`
	OutputDir      string            `yaml:"output_dir"`
	FacetAddresses map[string]string `yaml:"facet_addresses"`
	Codehashes     map[string]string `yaml:"codehashes"`
}

type AppConfig struct {
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Planner    PlannerConfig    `yaml:"planner"`
	Validation ValidationConfig `yaml:"validation"`
	Manifest   ManifestConfig   `yaml:"manifest"`

	// Path is the file the settings were read from; empty for defaults.
	Path string `yaml:"-"`
}

// ExampleSettings returns the commented default settings file.
func ExampleSettings() []byte {
	return append([]byte(nil), exampleSettings...)
}

// Default returns the settings of the bundled example file.
func Default() *AppConfig {
	var cfg AppConfig
	if err := yaml.Unmarshal(exampleSettings, &cfg); err != nil {
		panic(fmt.Sprintf("config: bundled settings are invalid: %v", err))
	}
	return &cfg
}

// LoadConfig reads path, or the first settings.yaml on the search path when
// path is empty. No file found means defaults. Keys present in the file
// override the defaults; absent keys keep them.
func LoadConfig(path string) (*AppConfig, error) {
	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration file %s: %w", path, err)
	}
	return cfg, nil
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"src/config/settings.yaml",
		"../config/settings.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func GetConfigPath() string {
	return findConfigFile()
}

func GetConfigDir() string {
	configPath := findConfigFile()
	if configPath == "" {
		return "config"
	}
	return filepath.Dir(configPath)
}

// Validate checks values the rest of the pipeline would otherwise reject late.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Analysis.Backend {
	case "", "solc", "noop":
	default:
		errs = append(errs, fmt.Errorf("analysis.backend %q is not one of solc, noop", c.Analysis.Backend))
	}
	if c.Analysis.CompileTimeout < 0 {
		errs = append(errs, errors.New("analysis.compile_timeout must not be negative"))
	}

	switch strings.ToLower(c.Planner.Strategy) {
	case "", "domain", "callgraph", "sizegas":
	default:
		errs = append(errs, fmt.Errorf("planner.strategy %q is not one of domain, callgraph, sizegas", c.Planner.Strategy))
	}
	if c.Planner.MaxSize == 0 {
		errs = append(errs, errors.New("planner.max_size must be positive"))
	}

	if _, err := semver.StrictNewVersion(c.Manifest.Version); err != nil {
		errs = append(errs, fmt.Errorf("manifest.version %q: %w", c.Manifest.Version, err))
	}
	for _, field := range []struct{ key, addr string }{
		{"manifest.factory", c.Manifest.Factory},
		{"manifest.dispatcher", c.Manifest.Dispatcher},
		{"manifest.deployer", c.Manifest.Deployer},
	} {
		if field.addr != "" && !common.IsHexAddress(field.addr) {
			errs = append(errs, fmt.Errorf("%s %q is not a hex address", field.key, field.addr))
		}
	}
	for _, facet := range sortedKeys(c.Manifest.FacetAddresses) {
		if addr := c.Manifest.FacetAddresses[facet]; !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("manifest.facet_addresses.%s %q is not a hex address", facet, addr))
		}
	}
	for _, facet := range sortedKeys(c.Manifest.Codehashes) {
		hash := c.Manifest.Codehashes[facet]
		if b, err := hexutil.Decode(hash); err != nil || len(b) != common.HashLength {
			errs = append(errs, fmt.Errorf("manifest.codehashes.%s %q is not a 32-byte hex hash", facet, hash))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
