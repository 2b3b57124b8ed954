// Package spec defines the declarative distribution specification submitted
// to the build API and its validation rules.
package spec

// BaseDistribution enumerates supported base distributions.
type BaseDistribution string

const (
	BaseArch   BaseDistribution = "arch"
	BaseDebian BaseDistribution = "debian"
	BaseAlpine BaseDistribution = "alpine"
)

// SupportedBases lists all accepted base distributions.
var SupportedBases = []BaseDistribution{BaseArch, BaseDebian, BaseAlpine}

// Architecture enumerates supported target CPU architectures.
type Architecture string

const (
	ArchX8664   Architecture = "x86_64"
	ArchAarch64 Architecture = "aarch64"
)

// SupportedArchitectures lists all accepted target architectures.
var SupportedArchitectures = []Architecture{ArchX8664, ArchAarch64}

// PackageCategories is the closed set of recognized package category keys.
// Missing categories are normalized to empty lists; unknown keys are rejected.
var PackageCategories = []string{"system", "dev", "security", "utils", "media", "browsers"}

// DisplayStack names the chosen desktop components. Values are free-form
// identifiers; the display stage records them into the root filesystem.
type DisplayStack struct {
	Server        string `json:"server"`
	Compositor    string `json:"compositor"`
	Bar           string `json:"bar"`
	Launcher      string `json:"launcher"`
	Terminal      string `json:"terminal"`
	Notifications string `json:"notifications"`
	Lockscreen    string `json:"lockscreen"`
}

// SystemDefaults carries low-level system tuning applied during the
// configuration stage.
type SystemDefaults struct {
	Swappiness       int    `json:"swappiness"`
	Trim             bool   `json:"trim"`
	KernelParams     string `json:"kernelParams"`
	DNSOverHTTPS     bool   `json:"dnsOverHttps"`
	MACRandomization bool   `json:"macRandomization"`
}

// BuildSpecification is the immutable input document for one build.
// It is validated once at submission and never mutated by any stage.
type BuildSpecification struct {
	Base             BaseDistribution    `json:"base"`
	Kernel           string              `json:"kernel"`
	Init             string              `json:"init"`
	Architecture     Architecture        `json:"architecture"`
	Display          DisplayStack        `json:"display"`
	Packages         map[string][]string `json:"packages"`
	SecurityFeatures []string            `json:"securityFeatures"`
	Defaults         SystemDefaults      `json:"defaults"`
}

// PackageCount returns the total number of requested packages across all categories.
func (s *BuildSpecification) PackageCount() int {
	n := 0
	for _, pkgs := range s.Packages {
		n += len(pkgs)
	}
	return n
}
