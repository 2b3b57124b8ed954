package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/osforge/internal/errors"
)

func validSpec() *BuildSpecification {
	return &BuildSpecification{
		Base:         BaseArch,
		Kernel:       "linux-zen",
		Init:         "systemd",
		Architecture: ArchX8664,
		Display: DisplayStack{
			Server:        "wayland",
			Compositor:    "sway",
			Bar:           "waybar",
			Launcher:      "rofi-wayland",
			Terminal:      "foot",
			Notifications: "mako",
			Lockscreen:    "swaylock-effects",
		},
		Packages: map[string][]string{
			"system":   {"btop"},
			"dev":      {"git"},
			"security": {},
			"utils":    {},
			"media":    {},
			"browsers": {},
		},
		SecurityFeatures: []string{"LUKS encryption", "AppArmor profiles"},
		Defaults: SystemDefaults{
			Swappiness:       10,
			Trim:             true,
			KernelParams:     "mitigations=auto,nosmt",
			DNSOverHTTPS:     true,
			MACRandomization: true,
		},
	}
}

func TestValidateAcceptsFullSpec(t *testing.T) {
	v := NewValidator()
	s, err := v.Validate(validSpec())
	require.NoError(t, err)
	assert.Equal(t, BaseArch, s.Base)
	assert.Equal(t, 2, s.PackageCount())
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Base = "ARCH "
	delete(in.Packages, "media")

	out, err := v.Validate(in)
	require.NoError(t, err)

	assert.Equal(t, BaseDistribution("ARCH "), in.Base, "input must stay untouched")
	assert.Equal(t, BaseArch, out.Base)
	assert.NotContains(t, in.Packages, "media")
	assert.Contains(t, out.Packages, "media")
}

func TestValidateFillsMissingCategories(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Packages = map[string][]string{"system": {"btop"}}

	out, err := v.Validate(in)
	require.NoError(t, err)
	require.Len(t, out.Packages, len(PackageCategories))
	for _, category := range PackageCategories {
		assert.Contains(t, out.Packages, category)
	}
	assert.Empty(t, out.Packages["browsers"])
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Packages["games"] = []string{"doom"}

	_, err := v.Validate(in)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestValidateRejectsUnsupportedArchitecture(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Architecture = "riscv128"

	_, err := v.Validate(in)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestValidateRejectsUnsupportedBase(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Base = "gentoo"

	_, err := v.Validate(in)
	assert.Error(t, err)
}

func TestValidateSwappinessRange(t *testing.T) {
	v := NewValidator()

	for _, bad := range []int{-1, 101, 250} {
		in := validSpec()
		in.Defaults.Swappiness = bad
		_, err := v.Validate(in)
		assert.Error(t, err, "swappiness %d should be rejected", bad)
	}

	for _, ok := range []int{0, 50, 100} {
		in := validSpec()
		in.Defaults.Swappiness = ok
		_, err := v.Validate(in)
		assert.NoError(t, err, "swappiness %d should be accepted", ok)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name   string
		mutate func(*BuildSpecification)
	}{
		{"missing base", func(s *BuildSpecification) { s.Base = "" }},
		{"missing kernel", func(s *BuildSpecification) { s.Kernel = "  " }},
		{"missing init", func(s *BuildSpecification) { s.Init = "" }},
		{"missing architecture", func(s *BuildSpecification) { s.Architecture = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validSpec()
			tc.mutate(in)
			_, err := v.Validate(in)
			assert.Error(t, err)
		})
	}
}

func TestValidateTrimsPackageNames(t *testing.T) {
	v := NewValidator()
	in := validSpec()
	in.Packages["system"] = []string{" btop ", "", "zsh"}

	out, err := v.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"btop", "zsh"}, out.Packages["system"])
}

func TestValidateJSONRejectsUnknownFields(t *testing.T) {
	v := NewValidator()
	_, err := v.ValidateJSON([]byte(`{"base":"arch","bogus":true}`))
	assert.Error(t, err)
}

func TestValidateJSONFullDocument(t *testing.T) {
	v := NewValidator()
	raw := []byte(`{
		"base": "arch",
		"kernel": "linux-zen",
		"init": "systemd",
		"architecture": "x86_64",
		"display": {
			"server": "wayland", "compositor": "sway", "bar": "waybar",
			"launcher": "rofi-wayland", "terminal": "foot",
			"notifications": "mako", "lockscreen": "swaylock-effects"
		},
		"packages": {
			"system": ["btop"], "dev": ["git"], "security": [],
			"utils": [], "media": [], "browsers": []
		},
		"securityFeatures": ["LUKS encryption"],
		"defaults": {
			"swappiness": 10, "trim": true,
			"kernelParams": "mitigations=auto,nosmt",
			"dnsOverHttps": true, "macRandomization": true
		}
	}`)

	s, err := v.ValidateJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "sway", s.Display.Compositor)
	assert.Equal(t, 10, s.Defaults.Swappiness)
}
