package solc

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPragmaVersion(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"pragma solidity ^0.8.20;", "0.8.20"},
		{"pragma solidity >=0.8.0 <0.9.0;", "0.8.0"},
		{"pragma solidity ^0.8.0;\npragma solidity ^0.8.19;", "0.8.19"},
		{"pragma solidity 0.7.6;", "0.7.6"},
		{"contract A {}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractPragmaVersion(tt.source), tt.source)
	}
}

func TestPragmaConstraint(t *testing.T) {
	c, err := PragmaConstraint("pragma solidity ^0.8.0 || ^0.7.6;")
	require.NoError(t, err)
	assert.True(t, c.Check(semver.MustParse("0.7.6")))
	assert.True(t, c.Check(semver.MustParse("0.8.24")))
	assert.False(t, c.Check(semver.MustParse("0.6.12")))

	c, err = PragmaConstraint("pragma solidity >=0.6.0 <0.8.0;")
	require.NoError(t, err)
	assert.False(t, c.Check(semver.MustParse("0.8.0")))

	c, err = PragmaConstraint("contract A {}")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = PragmaConstraint("pragma solidity banana;")
	assert.Error(t, err)
}

func TestFlattenJSONSource(t *testing.T) {
	bundle := `{"language":"Solidity","sources":{
"b/B.sol":{"content":"// SPDX-License-Identifier: MIT\npragma solidity ^0.8.19;\nimport \"../a/A.sol\";\ncontract B is A {}\n"},
"a/A.sol":{"content":"// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\ncontract A {}"}
}}`
	require.True(t, IsJSONSource(bundle))

	flat, err := FlattenJSONSource(bundle)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(flat, "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.19;\n"), flat)
	assert.Equal(t, 1, strings.Count(flat, "pragma solidity"))
	assert.Equal(t, 1, strings.Count(flat, "SPDX-License-Identifier"))
	assert.NotContains(t, flat, "import")
	assert.Less(t, strings.Index(flat, "// File: a/A.sol"), strings.Index(flat, "// File: b/B.sol"))

	plain := "contract A {}"
	out, err := FlattenJSONSource(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = FlattenJSONSource(`{"content": 1}`)
	assert.Error(t, err)
}

func TestParseSourcesDoubleBraces(t *testing.T) {
	sources, err := ParseSources(`{{"sources":{"A.sol":{"content":"contract A {}"}}}}`)
	require.NoError(t, err)
	assert.Equal(t, "contract A {}", sources["A.sol"].Content)

	sources, err = ParseSources(`{"A.sol":{"content":"contract A {}"}}`)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestManagerSolcSelect(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("layout differs on windows")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".solc-select", "artifacts", "solc-0.8.20")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	bin := filepath.Join(dir, "solc-0.8.20")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	m := NewManager(filepath.Join(home, "missing-solc"))

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = m.GetSolcPath("^0.8.20")
		}(i)
	}
	wg.Wait()
	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, bin, paths[i])
	}

	_, err := m.GetSolcPath("0.4.26")
	assert.ErrorContains(t, err, "failed to get solc 0.4.26")
}

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "0.8.20", normalizeVersion(" ^0.8.20 "))
	assert.Equal(t, "0.8.0", normalizeVersion(">=v0.8"))
	assert.Equal(t, "", normalizeVersion("^"))
}
