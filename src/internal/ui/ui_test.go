package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *model.ContractModel {
	fn := func(id int, name, sig string, size uint64) model.FunctionDescriptor {
		return model.FunctionDescriptor{
			ID: model.FunctionID(id), Name: name, Kind: model.KindFunction, CanonicalSignature: sig,
			Selector: abi.SelectorFromSignature(sig), Visibility: "external",
			Mutability: model.MutabilityNonPayable, EstimatedCodeSize: size, EstimatedGas: 30000,
		}
	}
	return &model.ContractModel{
		Name: "Vault",
		Functions: []model.FunctionDescriptor{
			fn(0, "pause", "pause()", 150),
			fn(1, "transfer", "transfer(address,uint256)", 400),
		},
		Variables: []model.VariableDescriptor{
			{Name: "owner", CanonicalType: "address", Slot: 0, SizeBytes: 20},
			{Name: "FEE", CanonicalType: "uint256", Constant: true, Slot: model.NoSlot, SizeBytes: 32},
		},
		TotalSizeEstimate: 550,
	}
}

func TestTables(t *testing.T) {
	m := sampleModel()
	plan, err := planner.Build(m, planner.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	FunctionTable(&buf, m)
	out := buf.String()
	assert.Contains(t, out, "transfer(address,uint256)")
	assert.Contains(t, out, "0xa9059cbb")
	assert.Contains(t, out, "550")

	buf.Reset()
	ChunkTable(&buf, m, plan)
	out = buf.String()
	assert.Contains(t, out, "Admin")
	assert.Contains(t, out, "Core")
	assert.Contains(t, out, "2 chunks")

	buf.Reset()
	RouteTable(&buf, []model.Route{{Selector: abi.SelectorFromSignature("pause()"), Signature: "pause()", Facet: "Admin"}})
	assert.Contains(t, buf.String(), "0x8456cb59")

	buf.Reset()
	VariableTable(&buf, m.Variables)
	out = buf.String()
	assert.Contains(t, out, "owner")
	assert.Contains(t, out, "constant")

	buf.Reset()
	FindingTable(&buf, &validator.Report{
		Errors:   []validator.Finding{{Check: validator.CheckSize, Severity: validator.SeverityError, Message: "chunk 0 too large"}},
		Warnings: []validator.Finding{{Check: validator.CheckStorageIsolation, Severity: validator.SeverityWarning, Message: "no storage library"}},
	})
	out = buf.String()
	assert.Contains(t, out, "chunk 0 too large")
	assert.Contains(t, out, "storage-isolation")
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, 4, "Analysing")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i == 3 {
				err = errors.New("boom")
			}
			pb.Done("c"+string(rune('0'+i))+".sol", err)
		}(i)
	}
	wg.Wait()
	pb.Finish()

	out := buf.String()
	assert.Contains(t, out, "❌ c3.sol")
	assert.Contains(t, out, "4/4")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "Failed: "+Red+"1")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestLogAndBanner(t *testing.T) {
	var buf bytes.Buffer
	prev := Status
	Status = &buf
	t.Cleanup(func() { Status = prev })

	LogInfo("analysed %d files", 3)
	LogError("failed: %s", "a.sol")
	assert.Contains(t, buf.String(), "[INFO] "+Reset+"analysed 3 files\n")
	assert.Contains(t, buf.String(), "[ERROR] "+Reset+"failed: a.sol\n")

	buf.Reset()
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "v"+Version)

	buf.Reset()
	PrintStats(&buf, 3, 2, 1, 4, 1500*time.Millisecond)
	assert.Contains(t, buf.String(), "Total: 3 | ✅ Valid: 2 | ❌ Failed: 1")
	assert.Contains(t, buf.String(), "1.5s")
}
