package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CheckSelectorCollision = "selector-collision"
	CheckStorageCollision  = "storage-collision"
	CheckStorageIsolation  = "storage-isolation"
	CheckBannedSelector    = "banned-selector"
	CheckSize              = "size"
)

type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Err is the typed error behind the finding, if any.
	Err error `json:"-"`
}

// Report collects every finding of one run.
type Report struct {
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// Err joins the typed errors of all error findings, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Errors {
		if f.Err != nil {
			errs = append(errs, f.Err)
		} else {
			errs = append(errs, errors.New(f.Message))
		}
	}
	return errors.Join(errs...)
}

func (r *Report) add(sev Severity, check string, err error) {
	f := Finding{Check: check, Severity: sev, Message: err.Error(), Err: err}
	if sev == SeverityError {
		r.Errors = append(r.Errors, f)
	} else {
		r.Warnings = append(r.Warnings, f)
	}
}

// DefaultBannedSignatures are the introspection and administration entry
// points served by the dispatcher itself.
func DefaultBannedSignatures() []string {
	return []string{
		"supportsInterface(bytes4)",
		"facets()",
		"facetFunctionSelectors(address)",
		"facetAddresses()",
		"facetAddress(bytes4)",
		"diamondCut((address,uint8,bytes4[])[],address,bytes)",
		"owner()",
		"transferOwnership(address)",
	}
}

// DefaultPrivilegedFacets may route banned selectors.
func DefaultPrivilegedFacets() []string {
	return []string{planner.DomainAdmin}
}

type Options struct {
	// Soft downgrades collision and banned-selector findings to warnings.
	Soft bool
	// PrivilegedFacets defaults to DefaultPrivilegedFacets when nil.
	PrivilegedFacets []string
	// ExtraBanned adds signatures or 0x-prefixed selectors to the banned set.
	ExtraBanned []string
	// MaxSize is the per-chunk ceiling; zero uses the plan's own.
	MaxSize uint64
}

// Validator checks a plan and its routes. Its tables are fixed at construction.
type Validator struct {
	soft       bool
	maxSize    uint64
	banned     map[abi.Selector]string
	privileged map[string]bool
}

func New(opts Options) (*Validator, error) {
	v := &Validator{
		soft:       opts.Soft,
		maxSize:    opts.MaxSize,
		banned:     make(map[abi.Selector]string),
		privileged: make(map[string]bool),
	}
	for _, sig := range DefaultBannedSignatures() {
		v.banned[abi.SelectorFromSignature(sig)] = sig
	}
	for _, entry := range opts.ExtraBanned {
		entry = strings.TrimSpace(entry)
		if strings.HasPrefix(entry, "0x") {
			sel, err := abi.ParseSelector(entry)
			if err != nil {
				return nil, fmt.Errorf("banned selector %q: %w", entry, err)
			}
			v.banned[sel] = entry
			continue
		}
		if !strings.HasSuffix(entry, ")") || !strings.Contains(entry, "(") {
			return nil, fmt.Errorf("banned signature %q is not of the form name(types)", entry)
		}
		v.banned[abi.SelectorFromSignature(entry)] = entry
	}
	privileged := opts.PrivilegedFacets
	if privileged == nil {
		privileged = DefaultPrivilegedFacets()
	}
	for _, name := range privileged {
		v.privileged[name] = true
	}
	return v, nil
}

// Validate runs every check and returns the collected findings. It never stops
// at the first failure.
func (v *Validator) Validate(m *model.ContractModel, plan *planner.Plan, routes []model.Route) *Report {
	r := &Report{Errors: []Finding{}, Warnings: []Finding{}}
	v.selectors(r, routes)
	v.storage(r, m)
	v.bannedSelectors(r, plan, routes)
	v.sizes(r, plan)
	return r
}

func (v *Validator) softSeverity() Severity {
	if v.soft {
		return SeverityWarning
	}
	return SeverityError
}

func (v *Validator) selectors(r *Report, routes []model.Route) {
	owners := make(map[abi.Selector][]string)
	var order []abi.Selector
	for _, rt := range routes {
		if _, ok := owners[rt.Selector]; !ok {
			order = append(order, rt.Selector)
		}
		owners[rt.Selector] = append(owners[rt.Selector], rt.Facet+":"+rt.Signature)
	}
	for _, sel := range order {
		if len(owners[sel]) > 1 {
			r.add(v.softSeverity(), CheckSelectorCollision, &SelectorCollisionError{Selector: sel, Owners: owners[sel]})
		}
	}
}

type extent struct {
	name       string
	slot       int64
	start, end uint64
}

func (v *Validator) storage(r *Report, m *model.ContractModel) {
	var (
		extents  []extent
		isolated bool
		negative []string
	)
	for _, vd := range m.Variables {
		if containsStorage(vd.Name) || containsStorage(vd.CanonicalType) {
			isolated = true
		}
		if !vd.InStorage() {
			continue
		}
		if vd.Slot < 0 || vd.Offset < 0 {
			negative = append(negative, vd.Name)
			continue
		}
		start := uint64(vd.Slot)*32 + uint64(vd.Offset)
		extents = append(extents, extent{name: vd.Name, slot: vd.Slot, start: start, end: start + max(vd.SizeBytes, 1)})
	}
	for _, f := range m.Functions {
		if containsStorage(f.Name) {
			isolated = true
		}
	}

	sort.SliceStable(extents, func(i, j int) bool { return extents[i].start < extents[j].start })
	for i := 0; i < len(extents); {
		group := []string{extents[i].name}
		end := extents[i].end
		j := i + 1
		for ; j < len(extents) && extents[j].start < end; j++ {
			group = append(group, extents[j].name)
			end = max(end, extents[j].end)
		}
		if len(group) > 1 {
			r.add(v.softSeverity(), CheckStorageCollision, &StorageCollisionError{Slot: extents[i].slot, Variables: group})
		}
		i = j
	}

	if len(negative) > 0 {
		r.add(SeverityWarning, CheckStorageIsolation, fmt.Errorf("negative slot or offset for %s; storage layout is not isolated", strings.Join(negative, ", ")))
	} else if len(extents) > 0 && !isolated {
		r.add(SeverityWarning, CheckStorageIsolation, fmt.Errorf("contract %s keeps %d state variables outside an isolated storage struct; facets sharing the dispatcher's storage must agree on this layout", m.Name, len(extents)))
	}
}

func containsStorage(s string) bool {
	return strings.Contains(strings.ToLower(s), "storage")
}

// privilegedRoute reports whether rt lands in a facet that may serve banned
// selectors: one whose name or whose chunk domain is privileged. Split domain
// chunks (Admin2) keep their domain; callgraph and sizegas chunks carry one
// only when every member shares it.
func (v *Validator) privilegedRoute(plan *planner.Plan, rt model.Route) bool {
	if v.privileged[rt.Facet] {
		return true
	}
	if rt.ChunkID < 0 || rt.ChunkID >= len(plan.Chunks) {
		return false
	}
	d := plan.Chunks[rt.ChunkID].Domain
	return d != "" && v.privileged[d]
}

func (v *Validator) bannedSelectors(r *Report, plan *planner.Plan, routes []model.Route) {
	for _, rt := range routes {
		sig, ok := v.banned[rt.Selector]
		if !ok || v.privilegedRoute(plan, rt) {
			continue
		}
		r.add(v.softSeverity(), CheckBannedSelector, &BannedSelectorError{Selector: rt.Selector, Signature: sig, Facet: rt.Facet})
	}
}

func (v *Validator) sizes(r *Report, plan *planner.Plan) {
	limit := v.maxSize
	if limit == 0 {
		limit = plan.MaxSize
	}
	for _, c := range plan.Chunks {
		if c.AggregateSize > limit {
			r.add(SeverityError, CheckSize, &SizeExceededError{ChunkID: c.ID, Facet: c.Name, Size: c.AggregateSize, Limit: limit})
		}
	}
}
