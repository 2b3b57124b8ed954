package spec

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/osforge/internal/errors"
)

// Validator normalizes and validates incoming build specifications.
// It is stateless and side-effect free.
type Validator struct{}

// NewValidator creates a specification validator.
func NewValidator() *Validator { return &Validator{} }

// ValidateJSON decodes a raw JSON document and validates it.
func (v *Validator) ValidateJSON(raw []byte) (*BuildSpecification, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	var s BuildSpecification
	if err := dec.Decode(&s); err != nil {
		return nil, errors.ValidationError("malformed build specification").
			WithContext("decode_error", err.Error())
	}
	return v.Validate(&s)
}

// Validate checks required fields, the package category closure, system
// defaults ranges, and enum values. It returns a normalized copy; the
// input is not modified.
func (v *Validator) Validate(in *BuildSpecification) (*BuildSpecification, error) {
	if in == nil {
		return nil, errors.ValidationError("specification is required")
	}

	s := *in

	s.Base = BaseDistribution(strings.ToLower(strings.TrimSpace(string(s.Base))))
	s.Architecture = Architecture(strings.TrimSpace(string(s.Architecture)))
	s.Kernel = strings.TrimSpace(s.Kernel)
	s.Init = strings.TrimSpace(s.Init)

	if s.Base == "" {
		return nil, errors.ValidationError("base distribution is required")
	}
	if !baseSupported(s.Base) {
		return nil, errors.ValidationError("unsupported base distribution").
			WithContext("base", string(s.Base)).
			WithContext("supported", baseNames())
	}
	if s.Kernel == "" {
		return nil, errors.ValidationError("kernel is required")
	}
	if s.Init == "" {
		return nil, errors.ValidationError("init system is required")
	}
	if s.Architecture == "" {
		return nil, errors.ValidationError("architecture is required")
	}
	if !archSupported(s.Architecture) {
		return nil, errors.ValidationError("unsupported architecture").
			WithContext("architecture", string(s.Architecture)).
			WithContext("supported", archNames())
	}

	normalized, err := normalizePackages(s.Packages)
	if err != nil {
		return nil, err
	}
	s.Packages = normalized

	if s.Defaults.Swappiness < 0 || s.Defaults.Swappiness > 100 {
		return nil, errors.ValidationError("defaults.swappiness must be in [0,100]").
			WithContext("swappiness", s.Defaults.Swappiness)
	}

	if s.SecurityFeatures == nil {
		s.SecurityFeatures = []string{}
	}

	return &s, nil
}

// normalizePackages enforces the closed category set: every recognized
// category is present (empty if omitted), unknown categories are rejected,
// and package names are trimmed with empties dropped.
func normalizePackages(in map[string][]string) (map[string][]string, error) {
	known := make(map[string]bool, len(PackageCategories))
	for _, c := range PackageCategories {
		known[c] = true
	}

	for category := range in {
		if !known[category] {
			return nil, errors.ValidationError("unknown package category").
				WithContext("category", category).
				WithContext("recognized", PackageCategories)
		}
	}

	out := make(map[string][]string, len(PackageCategories))
	for _, category := range PackageCategories {
		pkgs := in[category]
		cleaned := make([]string, 0, len(pkgs))
		for _, p := range pkgs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if strings.ContainsAny(p, " \t") {
				return nil, errors.ValidationError("package name must not contain whitespace").
					WithContext("category", category).
					WithContext("package", p)
			}
			cleaned = append(cleaned, p)
		}
		out[category] = cleaned
	}
	return out, nil
}

func baseSupported(b BaseDistribution) bool {
	for _, s := range SupportedBases {
		if s == b {
			return true
		}
	}
	return false
}

func archSupported(a Architecture) bool {
	for _, s := range SupportedArchitectures {
		if s == a {
			return true
		}
	}
	return false
}

func baseNames() string {
	names := make([]string, len(SupportedBases))
	for i, b := range SupportedBases {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

func archNames() string {
	names := make([]string, len(SupportedArchitectures))
	for i, a := range SupportedArchitectures {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// String renders a short human-readable summary, used in logs.
func (s *BuildSpecification) String() string {
	return fmt.Sprintf("%s/%s kernel=%s init=%s packages=%d", s.Base, s.Architecture, s.Kernel, s.Init, s.PackageCount())
}
