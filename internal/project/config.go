package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidManifest indicates quill.toml exists but is not valid TOML.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrExtendsCycle indicates an extends chain that loops back on itself.
	ErrExtendsCycle = errors.New("extends cycle")
)

// DefaultWatchDebounce is the per-file quiet period used by watch loops.
const DefaultWatchDebounce = 100 * time.Millisecond

// DeployConfig describes where a built package is delivered.
type DeployConfig struct {
	Dir      string
	Host     string
	Password string
}

// Config is a fully resolved project configuration.
type Config struct {
	// Path is the manifest the config was loaded from; empty for defaults.
	Path              string
	RootDir           string
	Files             []FileEntry
	StagingDir        string
	OutFile           string
	RetainStaging     bool
	DiagnosticFilters []any
	IgnoreErrorCodes  []any
	Deploy            DeployConfig
	WatchDebounce     time.Duration
}

// Problem is a non-fatal issue found while loading a manifest. The config is
// still usable; the problem is reported as a diagnostic on Path.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Path, p.Message)
}

type rawDeploy struct {
	Dir      *string `toml:"dir"`
	Host     *string `toml:"host"`
	Password *string `toml:"password"`
}

type rawConfig struct {
	Extends           *string   `toml:"extends"`
	RootDir           *string   `toml:"root_dir"`
	Files             []any     `toml:"files"`
	StagingDir        *string   `toml:"staging_dir"`
	OutFile           *string   `toml:"out_file"`
	RetainStaging     *bool     `toml:"retain_staging"`
	DiagnosticFilters []any     `toml:"diagnostic_filters"`
	IgnoreErrorCodes  []any     `toml:"ignore_error_codes"`
	Deploy            rawDeploy `toml:"deploy"`
	WatchDebounceMS   *int64    `toml:"watch_debounce_ms"`

	filesSet   bool
	filtersSet bool
	ignoreSet  bool
}

// Default returns the configuration used for a root without a manifest.
func Default(root string) *Config {
	root = CanonicalPath(root)
	return &Config{
		RootDir:       root,
		Files:         append([]FileEntry(nil), DefaultFiles...),
		StagingDir:    filepath.Join(root, "out", ".staging"),
		OutFile:       filepath.Join(root, "out", "package.zip"),
		WatchDebounce: DefaultWatchDebounce,
	}
}

// Load reads the manifest at path, resolving extends chains. Syntax errors
// anywhere in the chain are fatal and wrap ErrInvalidManifest; everything
// else is returned as problems alongside a usable config.
func Load(path string) (*Config, []Problem, error) {
	path = CanonicalPath(path)
	var problems []Problem
	raw, err := loadChain(path, map[string]bool{}, &problems)
	if err != nil {
		return nil, problems, err
	}
	cfg := Default(filepath.Dir(path))
	cfg.Path = path
	problems = append(problems, apply(cfg, raw, path)...)
	return cfg, problems, nil
}

// LoadForRoot loads root's manifest when present, defaults otherwise.
func LoadForRoot(root string) (*Config, []Problem, error) {
	manifest := filepath.Join(root, ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(root), nil, nil
		}
		return nil, nil, fmt.Errorf("failed to stat %q: %w", manifest, err)
	}
	return Load(manifest)
}

// Standalone builds the config of a single-file project: settings are seeded
// from the nearest ancestor manifest, then the root and file list are
// narrowed to filePath alone.
func Standalone(filePath string) (*Config, []Problem, error) {
	filePath = CanonicalPath(filePath)
	dir := filepath.Dir(filePath)
	var (
		cfg      *Config
		problems []Problem
	)
	manifest, ok, err := FindManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		cfg, problems, err = Load(manifest)
		if err != nil {
			// A broken ancestor manifest must not keep a loose file from
			// being checked.
			cfg, problems = Default(dir), nil
		}
	} else {
		cfg = Default(dir)
	}
	cfg.Path = ""
	cfg.RootDir = dir
	cfg.Files = []FileEntry{{Src: []string{EscapeGlob(filepath.Base(filePath))}}}
	return cfg, problems, nil
}

func loadChain(path string, visiting map[string]bool, problems *[]Problem) (*rawConfig, error) {
	if visiting[path] {
		return nil, fmt.Errorf("%s: %w", path, ErrExtendsCycle)
	}
	visiting[path] = true
	defer delete(visiting, path)

	var raw rawConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", path, ErrInvalidManifest, err)
	}
	raw.filesSet = meta.IsDefined("files")
	raw.filtersSet = meta.IsDefined("diagnostic_filters")
	raw.ignoreSet = meta.IsDefined("ignore_error_codes")
	resolveRelative(&raw, filepath.Dir(path))

	if raw.Extends == nil || strings.TrimSpace(*raw.Extends) == "" {
		return &raw, nil
	}
	parentPath := strings.TrimSpace(*raw.Extends)
	if !filepath.IsAbs(parentPath) {
		parentPath = filepath.Join(filepath.Dir(path), parentPath)
	}
	parentPath = CanonicalPath(parentPath)
	parent, err := loadChain(parentPath, visiting, problems)
	if err != nil {
		if errors.Is(err, ErrInvalidManifest) {
			return nil, err
		}
		*problems = append(*problems, Problem{
			Path:    path,
			Message: fmt.Sprintf("cannot extend %q: %v", *raw.Extends, err),
		})
		return &raw, nil
	}
	return merge(parent, &raw), nil
}

func resolveRelative(raw *rawConfig, dir string) {
	abs := func(p *string) {
		if p == nil || *p == "" || filepath.IsAbs(*p) {
			return
		}
		joined := filepath.Join(dir, *p)
		*p = joined
	}
	abs(raw.RootDir)
	abs(raw.StagingDir)
	abs(raw.OutFile)
	abs(raw.Deploy.Dir)
}

// merge overlays child on parent; keys the child defines win.
func merge(parent, child *rawConfig) *rawConfig {
	out := *parent
	out.Extends = nil
	if child.RootDir != nil {
		out.RootDir = child.RootDir
	}
	if child.filesSet {
		out.Files, out.filesSet = child.Files, true
	}
	if child.StagingDir != nil {
		out.StagingDir = child.StagingDir
	}
	if child.OutFile != nil {
		out.OutFile = child.OutFile
	}
	if child.RetainStaging != nil {
		out.RetainStaging = child.RetainStaging
	}
	if child.filtersSet {
		out.DiagnosticFilters, out.filtersSet = child.DiagnosticFilters, true
	}
	if child.ignoreSet {
		out.IgnoreErrorCodes, out.ignoreSet = child.IgnoreErrorCodes, true
	}
	if child.Deploy.Dir != nil {
		out.Deploy.Dir = child.Deploy.Dir
	}
	if child.Deploy.Host != nil {
		out.Deploy.Host = child.Deploy.Host
	}
	if child.Deploy.Password != nil {
		out.Deploy.Password = child.Deploy.Password
	}
	if child.WatchDebounceMS != nil {
		out.WatchDebounceMS = child.WatchDebounceMS
	}
	return &out
}

func apply(cfg *Config, raw *rawConfig, path string) []Problem {
	var problems []Problem
	if raw.RootDir != nil && *raw.RootDir != "" {
		cfg.RootDir = CanonicalPath(*raw.RootDir)
	}
	if raw.filesSet {
		cfg.Files = cfg.Files[:0]
		for i, entry := range raw.Files {
			fe, ok := fileEntryFrom(entry)
			if !ok {
				problems = append(problems, Problem{
					Path:    path,
					Message: fmt.Sprintf("files[%d]: expected a glob string or a {src, dest} table", i),
				})
				continue
			}
			cfg.Files = append(cfg.Files, fe)
		}
	}
	if raw.StagingDir != nil && *raw.StagingDir != "" {
		cfg.StagingDir = *raw.StagingDir
	}
	if raw.OutFile != nil && *raw.OutFile != "" {
		cfg.OutFile = *raw.OutFile
	}
	if raw.RetainStaging != nil {
		cfg.RetainStaging = *raw.RetainStaging
	}
	if raw.filtersSet {
		cfg.DiagnosticFilters = raw.DiagnosticFilters
	}
	if raw.ignoreSet {
		cfg.IgnoreErrorCodes = raw.IgnoreErrorCodes
	}
	if raw.Deploy.Dir != nil {
		cfg.Deploy.Dir = *raw.Deploy.Dir
	}
	if raw.Deploy.Host != nil {
		cfg.Deploy.Host = *raw.Deploy.Host
	}
	if raw.Deploy.Password != nil {
		cfg.Deploy.Password = *raw.Deploy.Password
	}
	if raw.WatchDebounceMS != nil {
		if *raw.WatchDebounceMS < 0 {
			problems = append(problems, Problem{Path: path, Message: "watch_debounce_ms must not be negative"})
		} else {
			cfg.WatchDebounce = time.Duration(*raw.WatchDebounceMS) * time.Millisecond
		}
	}
	return problems
}

func fileEntryFrom(v any) (FileEntry, bool) {
	switch e := v.(type) {
	case string:
		if strings.TrimSpace(e) == "" {
			return FileEntry{}, false
		}
		return FileEntry{Src: []string{e}}, true
	case map[string]any:
		var fe FileEntry
		switch src := e["src"].(type) {
		case string:
			fe.Src = []string{src}
		case []any:
			for _, s := range src {
				str, ok := s.(string)
				if !ok {
					return FileEntry{}, false
				}
				fe.Src = append(fe.Src, str)
			}
		default:
			return FileEntry{}, false
		}
		if dest, ok := e["dest"]; ok {
			str, isStr := dest.(string)
			if !isStr {
				return FileEntry{}, false
			}
			fe.Dest = str
		}
		return fe, len(fe.Src) > 0
	}
	return FileEntry{}, false
}

// Includes reports whether path belongs to the project per its files list.
func (c *Config) Includes(path string, m Matcher) bool {
	return DestPath(c.Files, c.RootDir, path, m) != ""
}
