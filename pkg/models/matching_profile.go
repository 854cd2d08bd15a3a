package models

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// MatchingProfile declares which entity types may link and under which conditions.
// A profile is satisfied when ANY of its rulesets is satisfied.
type MatchingProfile struct {
	Name          string            `json:"name" yaml:"name" validate:"required"`
	SourceType    string            `json:"sourceType" yaml:"sourceType" validate:"required"`
	CandidateType string            `json:"candidateType" yaml:"candidateType" validate:"required"`
	LinkType      string            `json:"linkType" yaml:"linkType" validate:"required"`
	Rules         []MatchingRuleset `json:"rules" yaml:"rules" validate:"required,min=1,dive"`
}

// MatchingRuleset is satisfied when ALL of its criteria are satisfied.
type MatchingRuleset struct {
	Name     string              `json:"name" yaml:"name"`
	Criteria []MatchingCriterion `json:"criteria" yaml:"criteria" validate:"required,min=1,dive"`
}

type MatchingCriterion struct {
	SourceAttribute    string `json:"sourceAttribute" yaml:"sourceAttribute" validate:"required"`
	CandidateAttribute string `json:"candidateAttribute" yaml:"candidateAttribute" validate:"required"`
	MatchNulls         bool   `json:"matchNulls" yaml:"matchNulls"`
	// Normalize names transforms from the normalizers package, applied in order to both
	// present values before comparing. Empty means exact comparison.
	Normalize []string `json:"normalize,omitempty" yaml:"normalize,omitempty"`
}

// Validate reports structural problems without the struct-tag validator so the
// engine can check profiles that were built in code.
func (p MatchingProfile) Validate() error {
	if p.Name == "" || p.SourceType == "" || p.CandidateType == "" || p.LinkType == "" {
		return fmt.Errorf("profile %q requires name, sourceType, candidateType and linkType", p.Name)
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("profile %q has no rulesets", p.Name)
	}
	for i, rs := range p.Rules {
		if len(rs.Criteria) == 0 {
			return fmt.Errorf("profile %q ruleset %d (%s) has no criteria", p.Name, i, rs.Name)
		}
		for j, c := range rs.Criteria {
			if c.SourceAttribute == "" || c.CandidateAttribute == "" {
				return fmt.Errorf("profile %q ruleset %d criterion %d is missing an attribute", p.Name, i, j)
			}
			if _, err := normalizers.Chain(c.Normalize...); err != nil {
				return fmt.Errorf("profile %q ruleset %d criterion %d: %w", p.Name, i, j, err)
			}
		}
	}
	return nil
}

// Symmetric reports whether swapping the source and candidate roles can never change
// the outcome: both roles have the same type and every criterion compares an attribute
// with itself.
func (p MatchingProfile) Symmetric() bool {
	if p.SourceType != p.CandidateType {
		return false
	}
	for _, rs := range p.Rules {
		for _, c := range rs.Criteria {
			if c.SourceAttribute != c.CandidateAttribute {
				return false
			}
		}
	}
	return true
}

// Match returns the first satisfied ruleset, evaluated in order.
func (p MatchingProfile) Match(source, candidate RegisteredEntity) (*MatchingRuleset, bool) {
	for i := range p.Rules {
		if p.Rules[i].Satisfied(source, candidate) {
			return &p.Rules[i], true
		}
	}
	return nil, false
}

func (rs MatchingRuleset) Satisfied(source, candidate RegisteredEntity) bool {
	if len(rs.Criteria) == 0 {
		return false
	}
	for _, c := range rs.Criteria {
		if !c.Satisfied(source, candidate) {
			return false
		}
	}
	return true
}

// Satisfied compares the two attributes with case-sensitive equality, after the
// criterion's normalizers when it has any. Two absent values only match when MatchNulls
// is set; one absent side never matches.
func (c MatchingCriterion) Satisfied(source, candidate RegisteredEntity) bool {
	sv, sok := source.Value(c.SourceAttribute)
	cv, cok := candidate.Value(c.CandidateAttribute)
	switch {
	case sok && cok:
		if len(c.Normalize) > 0 {
			normalize, err := normalizers.Chain(c.Normalize...)
			if err != nil {
				return false
			}
			sv, cv = normalize(sv), normalize(cv)
		}
		return sv == cv
	case !sok && !cok:
		return c.MatchNulls
	default:
		return false
	}
}
