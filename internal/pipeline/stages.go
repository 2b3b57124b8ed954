package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

// Canonical stage names, in execution order.
const (
	StageResolve       = "resolve"
	StageBootstrap     = "bootstrap"
	StageSystemConfig  = "system-config"
	StageDisplayConfig = "display-config"
	StageISO           = "iso"
	StageContainer     = "container-image"
	StageFinalize      = "finalize"
)

// defaultSequence builds the full stage list for one run.
func defaultSequence() []Stage {
	return []Stage{
		resolveStage{},
		bootstrapStage{},
		systemConfigStage{},
		displayConfigStage{},
		isoStage{},
		containerStage{},
		finalizeStage{},
	}
}

type resolveStage struct{}

func (resolveStage) Name() string { return StageResolve }

func (resolveStage) Run(ctx context.Context, sc *StageContext) error {
	set, err := sc.Tools.Resolver.Resolve(ctx, sc.Spec, sc.Logf)
	if err != nil {
		return err
	}
	sc.Resolved = set
	return nil
}

type bootstrapStage struct{}

func (bootstrapStage) Name() string { return StageBootstrap }

func (bootstrapStage) Run(ctx context.Context, sc *StageContext) error {
	if sc.Resolved == nil {
		return fmt.Errorf("no resolved package set available")
	}
	rootfs, err := sc.Tools.Bootstrapper.Bootstrap(ctx, sc.Resolved, sc.Spec, sc.StagingDir, sc.Logf)
	if err != nil {
		return err
	}
	sc.RootFS = rootfs
	return nil
}

type systemConfigStage struct{}

func (systemConfigStage) Name() string { return StageSystemConfig }

func (systemConfigStage) Run(ctx context.Context, sc *StageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.RootFS == nil {
		return fmt.Errorf("no root filesystem available")
	}
	rootfs := sc.RootFS
	defaults := sc.Spec.Defaults

	if err := rootfs.WriteFile("etc/osforge/init", sc.Spec.Init+"\n"); err != nil {
		return err
	}
	sc.Logf("Configured init system: %s", sc.Spec.Init)

	sysctl := fmt.Sprintf("vm.swappiness=%d\n", defaults.Swappiness)
	if err := rootfs.WriteFile("etc/sysctl.d/99-osforge.conf", sysctl); err != nil {
		return err
	}
	sc.Logf("Set vm.swappiness=%d", defaults.Swappiness)

	if defaults.Trim {
		if err := rootfs.WriteFile("etc/osforge/trim.conf", "enabled=true\n"); err != nil {
			return err
		}
		sc.Logf("Enabled periodic filesystem trim")
	}

	if params := strings.TrimSpace(defaults.KernelParams); params != "" {
		if err := rootfs.WriteFile("etc/default/kernel-cmdline", params+"\n"); err != nil {
			return err
		}
		sc.Logf("Applied kernel parameters: %s", params)
	}

	dnsMode := "plain"
	if defaults.DNSOverHTTPS {
		dnsMode = "doh"
	}
	if err := rootfs.WriteFile("etc/osforge/dns.conf", "mode="+dnsMode+"\n"); err != nil {
		return err
	}
	sc.Logf("Configured DNS resolution mode: %s", dnsMode)

	network := fmt.Sprintf("mac_randomization=%t\n", defaults.MACRandomization)
	if err := rootfs.WriteFile("etc/osforge/network.conf", network); err != nil {
		return err
	}
	sc.Logf("MAC address randomization: %t", defaults.MACRandomization)

	if len(sc.Spec.SecurityFeatures) > 0 {
		features := strings.Join(sc.Spec.SecurityFeatures, "\n") + "\n"
		if err := rootfs.WriteFile("etc/osforge/security.features", features); err != nil {
			return err
		}
		for _, f := range sc.Spec.SecurityFeatures {
			sc.Logf("Enabled security feature: %s", f)
		}
	}

	return nil
}

type displayConfigStage struct{}

func (displayConfigStage) Name() string { return StageDisplayConfig }

func (displayConfigStage) Run(ctx context.Context, sc *StageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.RootFS == nil {
		return fmt.Errorf("no root filesystem available")
	}

	d := sc.Spec.Display
	components := []struct{ key, value string }{
		{"server", d.Server},
		{"compositor", d.Compositor},
		{"bar", d.Bar},
		{"launcher", d.Launcher},
		{"terminal", d.Terminal},
		{"notifications", d.Notifications},
		{"lockscreen", d.Lockscreen},
	}

	var b strings.Builder
	configured := 0
	for _, c := range components {
		if c.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", c.key, c.value)
		sc.Logf("Configured display %s: %s", c.key, c.value)
		configured++
	}

	if configured == 0 {
		sc.Logf("No display stack requested, skipping desktop configuration")
		return nil
	}

	if err := sc.RootFS.WriteFile("etc/osforge/display.conf", b.String()); err != nil {
		return err
	}
	sc.Logf("Display stack configured with %d component(s)", configured)
	return nil
}

type isoStage struct{}

func (isoStage) Name() string { return StageISO }

func (isoStage) Run(ctx context.Context, sc *StageContext) error {
	if sc.RootFS == nil {
		return fmt.Errorf("no root filesystem available")
	}

	fileName := fmt.Sprintf("osforge-%s-%s.iso", sc.Spec.Base, shortID(sc.BuildID))
	outPath := filepath.Join(sc.OutputDir, fileName)
	label := toolchain.SanitizeVolumeLabel(string(sc.Spec.Base), string(sc.Spec.Architecture))

	path, err := sc.Tools.IsoMaster.MasterISO(ctx, sc.RootFS, outPath, label, sc.Logf)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return sc.RegisterArtifact(store.Artifact{
		FileType: store.ArtifactISO,
		FileName: filepath.Base(path),
		URL:      "file://" + abs,
	})
}

type containerStage struct{}

func (containerStage) Name() string { return StageContainer }

func (containerStage) Run(ctx context.Context, sc *StageContext) error {
	if sc.RootFS == nil {
		return fmt.Errorf("no root filesystem available")
	}

	tag := shortID(sc.BuildID)
	imageRef := "osforge:" + tag
	if sc.RegistryPrefix != "" {
		imageRef = fmt.Sprintf("%s/osforge:%s", strings.TrimSuffix(sc.RegistryPrefix, "/"), tag)
	}

	fileName := fmt.Sprintf("osforge-image-%s.tar", tag)
	outPath := filepath.Join(sc.OutputDir, fileName)

	ref, err := sc.Tools.ImageBuilder.BuildImage(ctx, sc.RootFS, outPath, imageRef, sc.Logf)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(outPath)
	if err != nil {
		abs = outPath
	}
	if err := sc.RegisterArtifact(store.Artifact{
		FileType: store.ArtifactDockerImage,
		FileName: fileName,
		URL:      "file://" + abs,
	}); err != nil {
		return err
	}

	if sc.RegistryPrefix != "" {
		if err := sc.RegisterArtifact(store.Artifact{
			FileType: store.ArtifactDockerImageRef,
			FileName: ref,
			URL:      ref,
		}); err != nil {
			return err
		}
	}
	return nil
}

type finalizeStage struct{}

func (finalizeStage) Name() string { return StageFinalize }

// buildSummary is written beside the artifacts as a machine-readable
// record of what the build produced.
type buildSummary struct {
	BuildID      string           `json:"buildId"`
	Base         string           `json:"base"`
	Architecture string           `json:"architecture"`
	Packages     int              `json:"packages"`
	Artifacts    []store.Artifact `json:"artifacts"`
	FinalizedAt  time.Time        `json:"finalizedAt"`
}

func (finalizeStage) Run(ctx context.Context, sc *StageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	packages := 0
	if sc.RootFS != nil {
		packages = sc.RootFS.Packages
	}
	summary := buildSummary{
		BuildID:      sc.BuildID,
		Base:         string(sc.Spec.Base),
		Architecture: string(sc.Spec.Architecture),
		Packages:     packages,
		Artifacts:    sc.Artifacts(),
		FinalizedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build summary: %w", err)
	}

	summaryFS := &toolchain.RootFS{Path: sc.OutputDir}
	if err := summaryFS.WriteFile("osforge-build.json", string(data)+"\n"); err != nil {
		return err
	}

	sc.Logf("Registered %d artifact(s)", len(sc.Artifacts()))
	return nil
}
