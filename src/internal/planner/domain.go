package planner

import (
	"regexp"
	"strconv"

	"github.com/VectorBits/facetsplit/src/internal/model"
)

const (
	DomainAdmin      = "Admin"
	DomainGovernance = "Governance"
	DomainView       = "View"
	DomainCore       = "Core"
)

// Domains lists the categories in priority order.
var Domains = []string{DomainAdmin, DomainGovernance, DomainView, DomainCore}

type domainRule struct {
	domain string
	name   *regexp.Regexp
	// readOnly matches view and pure functions regardless of name.
	readOnly bool
}

var domainRules = []domainRule{
	{domain: DomainAdmin, name: regexp.MustCompile(`^(?i:pause|unpause|initialize|reinitialize|upgrade\w*|transferOwnership|renounceOwnership|acceptOwnership|grantRole|revokeRole|renounceRole|rescue\w*|emergency\w*)$`)},
	{domain: DomainAdmin, name: regexp.MustCompile(`^set[A-Z_]`)},
	{domain: DomainGovernance, name: regexp.MustCompile(`^(?i:propose|castVote\w*|vote\w*|execute|queue|cancel|delegate\w*)$`)},
	{domain: DomainGovernance, name: regexp.MustCompile(`(?i)(proposal|quorum)`)},
	{domain: DomainView, readOnly: true},
}

// Classify returns the domain of f. The first matching rule wins; anything
// unmatched is Core.
func Classify(f *model.FunctionDescriptor) string {
	for _, r := range domainRules {
		if r.readOnly {
			if f.Mutability == model.MutabilityView || f.Mutability == model.MutabilityPure {
				return r.domain
			}
			continue
		}
		if r.name.MatchString(f.Name) {
			return r.domain
		}
	}
	return DomainCore
}

func (p *planner) domain() {
	groups := make(map[string][]model.FunctionID)
	for _, id := range p.m.Routable() {
		d := Classify(p.m.Function(id))
		groups[d] = append(groups[d], id)
	}
	for _, d := range Domains {
		if len(groups[d]) == 0 {
			continue
		}
		start := len(p.plan.Chunks)
		p.greedy(groups[d])
		for i := start; i < len(p.plan.Chunks); i++ {
			c := &p.plan.Chunks[i]
			c.Domain = d
			c.Name = d
			if n := i - start + 1; n > 1 {
				c.Name = d + strconv.Itoa(n)
			}
		}
	}
}
