package toolchain

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// TarballImageBuilder produces a docker-save layout image tarball from a
// staged root filesystem: one gzip-compressed layer plus image config and
// manifest, loadable with `docker load`.
type TarballImageBuilder struct{}

// NewTarballImageBuilder creates the default container image collaborator.
func NewTarballImageBuilder() *TarballImageBuilder { return &TarballImageBuilder{} }

type imageManifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

type imageConfig struct {
	Architecture string          `json:"architecture"`
	OS           string          `json:"os"`
	Created      time.Time       `json:"created"`
	Config       struct{}        `json:"config"`
	RootFS       imageRootFSMeta `json:"rootfs"`
}

type imageRootFSMeta struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

// BuildImage writes the image tarball to outPath and returns imageRef.
func (b *TarballImageBuilder) BuildImage(ctx context.Context, rootfs *RootFS, outPath, imageRef string, logf LogFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rootfs == nil || rootfs.Path == "" {
		return "", fmt.Errorf("rootfs handle is required")
	}
	if imageRef == "" {
		return "", fmt.Errorf("image reference is required")
	}

	logf("Building container image %s", imageRef)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure image directory: %w", err)
	}

	// Compress the rootfs into the layer, hashing the uncompressed stream
	// on the way through for the diff_id.
	layerPath := outPath + ".layer.tmp"
	diffID, err := writeCompressedLayer(rootfs.Path, layerPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(layerPath)

	logf("Layer written (diff %s)", diffID[:19])

	cfg := imageConfig{
		Architecture: "amd64",
		OS:           "linux",
		Created:      time.Now().UTC(),
		RootFS:       imageRootFSMeta{Type: "layers", DiffIDs: []string{diffID}},
	}
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal image config: %w", err)
	}
	cfgDigest := sha256.Sum256(cfgBytes)
	cfgName := hex.EncodeToString(cfgDigest[:]) + ".json"

	manifest := []imageManifestEntry{{
		Config:   cfgName,
		RepoTags: []string{imageRef},
		Layers:   []string{"layer.tar.gz"},
	}}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal image manifest: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image tarball: %w", err)
	}

	tw := tar.NewWriter(out)
	if err := writeTarBytes(tw, cfgName, cfgBytes); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := writeTarBytes(tw, "manifest.json", manifestBytes); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := writeTarFile(tw, "layer.tar.gz", layerPath); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := tw.Close(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("finalize image tarball: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close image tarball: %w", err)
	}

	if st, err := os.Stat(outPath); err == nil {
		logf("Container image written: %s (%d bytes)", filepath.Base(outPath), st.Size())
	}
	return imageRef, nil
}

// writeCompressedLayer tars the rootfs into a gzip stream at layerPath and
// returns the sha256 diff_id of the uncompressed tar.
func writeCompressedLayer(rootDir, layerPath string) (string, error) {
	out, err := os.OpenFile(layerPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create layer file: %w", err)
	}

	gz := gzip.NewWriter(out)
	hasher := sha256.New()
	tw := tar.NewWriter(io.MultiWriter(gz, hasher))

	walkErr := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(layerPath)
		return "", fmt.Errorf("tar rootfs: %w", walkErr)
	}

	if err := tw.Close(); err != nil {
		_ = gz.Close()
		_ = out.Close()
		return "", fmt.Errorf("finalize layer tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("finalize layer gzip: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close layer file: %w", err)
	}

	return "sha256:" + hex.EncodeToString(hasher.Sum(nil)), nil
}

func writeTarBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar entry %s: %w", name, err)
	}
	return nil
}

func writeTarFile(tw *tar.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write tar entry %s: %w", name, err)
	}
	return nil
}
