package solc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/singleflight"
)

// Manager resolves solc binaries per compiler version.
type Manager struct {
	mu           sync.RWMutex
	versionCache map[string]string // version -> solc path
	group        singleflight.Group

	// Fallback is used when no versioned binary is found. Empty means "solc" on PATH.
	Fallback string
}

func NewManager(fallback string) *Manager {
	return &Manager{
		versionCache: make(map[string]string),
		Fallback:     fallback,
	}
}

var (
	pragmaRe  = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	versionRe = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// ExtractPragmaVersion returns the highest x.y.z literal found in the pragma solidity
// directives, which is the version most likely to satisfy all of them.
func ExtractPragmaVersion(source string) string {
	matches := pragmaRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return ""
	}

	var versions []*semver.Version
	for _, match := range matches {
		for _, lit := range versionRe.FindAllString(match[1], -1) {
			v, err := semver.NewVersion(lit)
			if err != nil {
				continue
			}
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return ""
	}

	sort.Sort(sort.Reverse(semver.Collection(versions)))
	if c, err := PragmaConstraint(source); err == nil && c != nil {
		for _, v := range versions {
			if c.Check(v) {
				return v.String()
			}
		}
	}
	return versions[0].String()
}

// PragmaConstraint parses every pragma solidity directive into one constraint set.
// Returns nil when the source carries no pragma.
func PragmaConstraint(source string) (*semver.Constraints, error) {
	matches := pragmaRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		// solidity separates conjunctions with spaces, semver wants commas
		alts := strings.Split(m[1], "||")
		for i, alt := range alts {
			alts[i] = strings.Join(strings.Fields(alt), ", ")
		}
		parts = append(parts, strings.Join(alts, " || "))
	}
	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid pragma %q: %w", strings.Join(parts, " "), err)
	}
	return c, nil
}

// GetSolcPath returns a solc binary for version. Concurrent lookups for the same
// version share one resolution.
func (m *Manager) GetSolcPath(version string) (string, error) {
	version = normalizeVersion(version)
	if version == "" {
		return m.fallbackPath()
	}

	m.mu.RLock()
	path, ok := m.versionCache[version]
	m.mu.RUnlock()
	if ok && fileExists(path) {
		return path, nil
	}

	v, err, _ := m.group.Do(version, func() (interface{}, error) {
		if path, err := m.trySolcSelect(version); err == nil {
			return path, nil
		}
		if path, err := m.trySolcx(version); err == nil {
			return path, nil
		}
		return m.fallbackPath()
	})
	if err != nil {
		return "", fmt.Errorf("failed to get solc %s: %w", version, err)
	}

	path = v.(string)
	m.cachePath(version, path)
	return path, nil
}

func normalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	for _, prefix := range []string{"^", ">=", "<=", ">", "<", "~", "="} {
		version = strings.TrimPrefix(version, prefix)
	}
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return ""
	}
	if v, err := semver.NewVersion(version); err == nil {
		return v.String()
	}
	return version
}

func (m *Manager) cachePath(version, path string) {
	m.mu.Lock()
	m.versionCache[version] = path
	m.mu.Unlock()
}

func (m *Manager) fallbackPath() (string, error) {
	name := m.Fallback
	if name == "" {
		name = "solc"
	}
	if filepath.IsAbs(name) {
		if fileExists(name) {
			return name, nil
		}
		return "", fmt.Errorf("solc binary %s not found", name)
	}
	return exec.LookPath(name)
}

// trySolcSelect looks for a binary already installed by solc-select:
// ~/.solc-select/artifacts/solc-{version}/solc-{version}
func (m *Manager) trySolcSelect(version string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(homeDir, ".solc-select", "artifacts", fmt.Sprintf("solc-%s", version))
	var candidates []string
	if runtime.GOOS == "windows" {
		candidates = []string{
			filepath.Join(dir, fmt.Sprintf("solc-%s.exe", version)),
			filepath.Join(dir, "solc.exe"),
		}
	} else {
		candidates = []string{
			filepath.Join(dir, fmt.Sprintf("solc-%s", version)),
			filepath.Join(homeDir, ".solc-select", "artifacts", version, fmt.Sprintf("solc-%s", version)),
		}
	}

	for _, path := range candidates {
		if fileExists(path) && isExecutable(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("solc-select version %s not installed", version)
}

// trySolcx looks in the py-solc-x install directory.
func (m *Manager) trySolcx(version string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	solcxDir := filepath.Join(homeDir, ".solcx")
	candidates := []string{
		filepath.Join(solcxDir, fmt.Sprintf("solc-v%s", version)),
		filepath.Join(solcxDir, fmt.Sprintf("solc-%s", version)),
	}
	if runtime.GOOS == "darwin" {
		candidates = append(candidates, filepath.Join(solcxDir, fmt.Sprintf("solc-v%s", version), "bin", "solc"))
	}

	for _, path := range candidates {
		if fileExists(path) && isExecutable(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("solcx version %s not found", version)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return !info.IsDir()
	}
	return info.Mode()&0111 != 0
}
