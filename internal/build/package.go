package build

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/xxh3"

	"quill/internal/project"
)

// StageManifestName is the file inside the staging directory that records
// what was staged last time.
const StageManifestName = ".quill-stage"

// Bump when stageManifest changes shape; older manifests are ignored.
const stageSchemaVersion uint16 = 1

// PackageFile is one file to ship, with the contents the program holds.
type PackageFile struct {
	Src      string
	Dest     string
	Contents []byte
}

// PackageResult summarizes a packaging run.
type PackageResult struct {
	OutFile string
	Written int
	Skipped int
	Removed int
}

// Packager stages files and produces the package archive.
type Packager interface {
	Package(ctx context.Context, cfg *project.Config, files []PackageFile) (PackageResult, error)
}

type stageManifest struct {
	Schema uint16
	Hashes map[string]uint64
}

// ZipPackager copies files into cfg.StagingDir, skipping those whose content
// hash matches the previous staging, then zips the staging directory into
// cfg.OutFile.
type ZipPackager struct{}

func (ZipPackager) Package(ctx context.Context, cfg *project.Config, files []PackageFile) (PackageResult, error) {
	res := PackageResult{OutFile: cfg.OutFile}
	staging := cfg.StagingDir
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return res, fmt.Errorf("create staging dir: %w", err)
	}
	prev := readStageManifest(staging)
	next := stageManifest{Schema: stageSchemaVersion, Hashes: make(map[string]uint64, len(files))}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hash := xxh3.Hash(f.Contents)
		next.Hashes[f.Dest] = hash
		target := filepath.Join(staging, filepath.FromSlash(f.Dest))
		if old, ok := prev.Hashes[f.Dest]; ok && old == hash {
			if _, err := os.Stat(target); err == nil {
				res.Skipped++
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return res, fmt.Errorf("stage %s: %w", f.Dest, err)
		}
		if err := os.WriteFile(target, f.Contents, 0o644); err != nil {
			return res, fmt.Errorf("stage %s: %w", f.Dest, err)
		}
		res.Written++
	}
	for dest := range prev.Hashes {
		if _, ok := next.Hashes[dest]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(staging, filepath.FromSlash(dest))); err == nil {
			res.Removed++
		}
	}
	if err := writeStageManifest(staging, next); err != nil {
		return res, err
	}

	dests := make([]string, 0, len(next.Hashes))
	for dest := range next.Hashes {
		dests = append(dests, dest)
	}
	sort.Strings(dests)
	if err := writeZip(cfg.OutFile, staging, dests); err != nil {
		return res, err
	}
	if !cfg.RetainStaging {
		if err := os.RemoveAll(staging); err != nil {
			return res, fmt.Errorf("remove staging dir: %w", err)
		}
	}
	return res, nil
}

func readStageManifest(staging string) stageManifest {
	empty := stageManifest{Hashes: map[string]uint64{}}
	f, err := os.Open(filepath.Join(staging, StageManifestName))
	if err != nil {
		return empty
	}
	defer f.Close()
	var m stageManifest
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil || m.Schema != stageSchemaVersion || m.Hashes == nil {
		return empty
	}
	return m
}

func writeStageManifest(staging string, m stageManifest) error {
	f, err := os.CreateTemp(staging, "stage-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := msgpack.NewEncoder(f).Encode(&m); err != nil {
		f.Close()
		return fmt.Errorf("encode staging manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), filepath.Join(staging, StageManifestName))
}

func writeZip(outFile, staging string, dests []string) (err error) {
	if err := os.MkdirAll(filepath.Dir(outFile), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outFile), "package-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	zw := zip.NewWriter(tmp)
	for _, dest := range dests {
		data, err := os.ReadFile(filepath.Join(staging, filepath.FromSlash(dest)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		w, err := zw.Create(dest)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), outFile)
}
