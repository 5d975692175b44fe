// Package bundle reads plugin bundles from a file system.
//
// A bundle is a directory holding a manifest (config.toml or plugin.yaml) and
// the Lua entry point main.lua. Other Lua files in the directory are reachable
// with require when the reader knows the directory's path on disk.
package bundle

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/infrastructure/parser"
)

// ManifestFiles lists the manifest names tried in a bundle directory, in order.
var ManifestFiles = []string{"config.toml", "plugin.yaml", "plugin.yml"}

// EntryPoint is the Lua source executed when a plugin loads.
const EntryPoint = "main.lua"

// ManifestLoader turns a manifest file into a manifest.
// *host.Loader implements it and validates as well.
type ManifestLoader interface {
	LoadFile(name string, raw []byte) (*entities.PluginManifest, error)
}

// parseOnly decodes manifests without validating them.
type parseOnly struct{}

func (parseOnly) LoadFile(name string, raw []byte) (*entities.PluginManifest, error) {
	return parser.ForFile(name).Parse(raw)
}

type readerConfig struct {
	logger  *slog.Logger
	loader  ManifestLoader
	baseDir string
}

// Option configures a Reader.
type Option func(*readerConfig)

// WithBaseDir sets the on-disk path the file system is rooted at. Bundles then
// carry their directory so require resolves plugin-local modules.
func WithBaseDir(dir string) Option {
	return func(c *readerConfig) {
		c.baseDir = dir
	}
}

// WithManifestLoader sets how manifest files are decoded. The default only
// parses them; passing a host.Loader rejects invalid manifests while reading.
func WithManifestLoader(l ManifestLoader) Option {
	return func(c *readerConfig) {
		if l != nil {
			c.loader = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *readerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Reader reads bundles from an fs.FS.
type Reader struct {
	fsys fs.FS
	cfg  readerConfig
}

// NewReader returns a Reader over fsys.
func NewReader(fsys fs.FS, opts ...Option) *Reader {
	cfg := readerConfig{logger: slog.Default(), loader: parseOnly{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reader{fsys: fsys, cfg: cfg}
}

// Read reads the bundle in dir. A missing or malformed manifest is a
// ConfigError.
func (r *Reader) Read(dir string) (entities.Bundle, error) {
	manifest, err := r.readManifest(dir)
	if err != nil {
		return entities.Bundle{}, err
	}

	source, err := fs.ReadFile(r.fsys, path.Join(dir, EntryPoint))
	if err != nil {
		return entities.Bundle{}, &errors.ConfigError{
			Plugin: manifest.Name,
			Err:    fmt.Errorf("failed to read %s: %w", EntryPoint, err),
		}
	}

	b := entities.Bundle{
		Manifest:  manifest,
		Source:    string(source),
		ChunkName: path.Join(dir, EntryPoint),
	}
	if r.cfg.baseDir != "" {
		b.Dir = filepath.Join(r.cfg.baseDir, filepath.FromSlash(dir))
	}
	return b, nil
}

func (r *Reader) readManifest(dir string) (*entities.PluginManifest, error) {
	for _, name := range ManifestFiles {
		data, err := fs.ReadFile(r.fsys, path.Join(dir, name))
		if stdErrors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &errors.ConfigError{Err: fmt.Errorf("failed to read %s: %w", name, err)}
		}
		return r.cfg.loader.LoadFile(name, data)
	}
	return nil, &errors.ConfigError{Err: fmt.Errorf("no manifest in %q", dir)}
}

// ReadAll reads every top-level directory of the file system that holds a
// manifest, sorted by directory name. Directories without a manifest are
// skipped; a bundle that fails to read stops the scan.
func (r *Reader) ReadAll() ([]entities.Bundle, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var bundles []entities.Bundle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !r.hasManifest(entry.Name()) {
			r.cfg.logger.Debug("skipping directory without manifest", "dir", entry.Name())
			continue
		}
		b, err := r.Read(entry.Name())
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

func (r *Reader) hasManifest(dir string) bool {
	for _, name := range ManifestFiles {
		if _, err := fs.Stat(r.fsys, path.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
