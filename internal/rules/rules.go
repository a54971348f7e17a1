// Package rules selects the transformer chain for a module identifier.
//
// Rules are evaluated in declaration order within three enforce tiers. The chain
// for an identifier is the concatenation of every matching rule's transformers,
// pre tier first, then normal, then post. Rules whose exclusion matches are
// skipped. An identifier no rule matches gets an empty chain and is passed
// through untransformed.
package rules

import (
	"fmt"
	"path/filepath"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// TransformerSpec is an entry of a chain.
type TransformerSpec = config.TransformerSpec

// Chain is an ordered list of transformer specs. Output i feeds input i+1.
type Chain []TransformerSpec

// Names lists the transformer names of the chain.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// Tier is an enforce tier.
type Tier int

const (
	TierPre Tier = iota
	TierNormal
	TierPost
)

func (t Tier) String() string {
	switch t {
	case TierPre:
		return config.EnforcePre
	case TierPost:
		return config.EnforcePost
	default:
		return config.EnforceNormal
	}
}

func parseTier(s string) (Tier, error) {
	switch s {
	case config.EnforcePre:
		return TierPre, nil
	case "", config.EnforceNormal:
		return TierNormal, nil
	case config.EnforcePost:
		return TierPost, nil
	default:
		return TierNormal, fmt.Errorf("unknown enforce tier %q", s)
	}
}

// Rule is a compiled rule.
type Rule struct {
	Index   int
	Test    *regexp.Regexp
	Exclude *regexp.Regexp
	Use     Chain
	Tier    Tier
}

// Matches reports whether the rule applies to a normalized identifier.
func (r *Rule) Matches(id string) bool {
	if !r.Test.MatchString(id) {
		return false
	}
	return r.Exclude == nil || !r.Exclude.MatchString(id)
}

// Set is an immutable, compiled rule list. It is safe for concurrent use.
type Set struct {
	rules []*Rule
}

// Compile compiles rule configurations. An invalid pattern is a configuration
// error naming the rule index.
func Compile(cfgs []config.RuleConfig) (*Set, error) {
	set := &Set{rules: make([]*Rule, 0, len(cfgs))}
	for i, rc := range cfgs {
		test, err := regexp.Compile(rc.Test)
		if err != nil {
			return nil, ruleError(i, "invalid test pattern", err)
		}
		var exclude *regexp.Regexp
		if rc.Exclude != "" {
			if exclude, err = regexp.Compile(rc.Exclude); err != nil {
				return nil, ruleError(i, "invalid exclude pattern", err)
			}
		}
		tier, err := parseTier(rc.Enforce)
		if err != nil {
			return nil, ruleError(i, "invalid enforce value", err)
		}
		set.rules = append(set.rules, &Rule{
			Index:   i,
			Test:    test,
			Exclude: exclude,
			Use:     append(Chain(nil), rc.Use...),
			Tier:    tier,
		})
	}
	return set, nil
}

func ruleError(index int, msg string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("rule %d: %s", index, msg)).
		Fatal().WithContext("rule", index).Build()
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the compiled rules in declaration order.
func (s *Set) Rules() []*Rule {
	if s == nil {
		return nil
	}
	return append([]*Rule(nil), s.rules...)
}

// Match returns the merged chain for id. It never returns an error; no match
// yields an empty chain.
func (s *Set) Match(id string) Chain {
	tiers := s.tiers(Normalize(id))
	return Merge(tiers[TierPre], tiers[TierNormal], tiers[TierPost])
}

// MatchedRules returns the indices of the rules contributing to id's chain, in
// chain order.
func (s *Set) MatchedRules(id string) []int {
	if s == nil {
		return nil
	}
	nid := Normalize(id)
	var out []int
	for _, tier := range []Tier{TierPre, TierNormal, TierPost} {
		for _, r := range s.rules {
			if r.Tier == tier && r.Matches(nid) {
				out = append(out, r.Index)
			}
		}
	}
	return out
}

// tiers groups the chains of matching rules per tier, in declaration order.
func (s *Set) tiers(nid string) [3][]Chain {
	var out [3][]Chain
	if s == nil {
		return out
	}
	for _, r := range s.rules {
		if r.Matches(nid) {
			out[r.Tier] = append(out[r.Tier], r.Use)
		}
	}
	return out
}

// Merge concatenates the tier chains: every pre chain, then every normal chain,
// then every post chain, each in the order given.
func Merge(pre, normal, post []Chain) Chain {
	var out Chain
	for _, tier := range [][]Chain{pre, normal, post} {
		for _, c := range tier {
			out = append(out, c...)
		}
	}
	if out == nil {
		return Chain{}
	}
	return out
}

// Normalize converts an identifier to the form rules are matched against:
// NFC-composed and slash-separated.
func Normalize(id string) string {
	return filepath.ToSlash(norm.NFC.String(id))
}
