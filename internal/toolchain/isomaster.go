package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
)

// Iso9660Master writes a bootable ISO-9660 volume from a staged root
// filesystem directory.
type Iso9660Master struct{}

// NewIso9660Master creates the default image mastering collaborator.
func NewIso9660Master() *Iso9660Master { return &Iso9660Master{} }

// MasterISO stages the rootfs into an ISO-9660 image at outPath.
func (m *Iso9660Master) MasterISO(ctx context.Context, rootfs *RootFS, outPath, volumeLabel string, logf LogFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rootfs == nil || rootfs.Path == "" {
		return "", fmt.Errorf("rootfs handle is required")
	}
	info, err := os.Stat(rootfs.Path)
	if err != nil {
		return "", fmt.Errorf("stat rootfs %q: %w", rootfs.Path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("rootfs path %q is not a directory", rootfs.Path)
	}

	label := SanitizeVolumeLabel(volumeLabel)
	logf("Mastering ISO image (label %s)", label)

	writer, err := iso9660.NewWriter()
	if err != nil {
		return "", fmt.Errorf("create iso writer: %w", err)
	}
	defer writer.Cleanup()

	if err := writer.AddLocalDirectory(rootfs.Path, "/"); err != nil {
		return "", fmt.Errorf("stage rootfs directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure image directory: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}

	if err := writer.WriteTo(out, label); err != nil {
		_ = out.Close()
		_ = os.Remove(outPath)
		return "", fmt.Errorf("write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("finalize iso: %w", err)
	}

	if st, err := os.Stat(outPath); err == nil {
		logf("ISO image written: %s (%d bytes)", filepath.Base(outPath), st.Size())
	}
	return outPath, nil
}

// SanitizeVolumeLabel maps arbitrary input onto the ISO-9660 D-string
// character set, uppercased and capped at 32 characters.
func SanitizeVolumeLabel(parts ...string) string {
	const maxLen = 32

	label := strings.Join(parts, "_")
	if label == "" {
		label = "OSFORGE"
	}

	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= maxLen {
			break
		}
	}

	result := b.String()
	if result == "" {
		return "OSFORGE"
	}
	return result
}
