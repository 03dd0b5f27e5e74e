package configcache

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Resolver picks the physical configuration file for a base name and an
// environment tag. It never caches and never fails.
type Resolver struct {
	fs       FileSystem
	logger   *zap.Logger
	baseName string
}

// NewResolver returns a Resolver probing fsys. An empty baseName selects
// DefaultBaseName.
func NewResolver(fsys FileSystem, logger *zap.Logger, baseName string) *Resolver {
	if fsys == nil {
		fsys = OSFS{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseName == "" {
		baseName = DefaultBaseName
	}
	return &Resolver{fs: fsys, logger: logger, baseName: baseName}
}

// Resolve returns the environment variant of name when env is set and the
// variant exists as a regular file, and name otherwise. An empty name selects
// the resolver's base name.
func (r *Resolver) Resolve(name, env string) string {
	if name == "" {
		name = r.baseName
	}
	if env == "" {
		return name
	}

	candidate := EnvironmentName(name, env)
	r.logger.Debug("trying environment config file", zap.String("file", candidate))

	info, err := r.fs.Stat(candidate)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Debug("environment config file not found", zap.String("file", candidate))
		return name
	case err != nil:
		r.logger.Error("environment config file probe failed", zap.String("file", candidate), zap.Error(err))
		return name
	case !info.Mode().IsRegular():
		r.logger.Debug("environment config file is not a regular file", zap.String("file", candidate))
		return name
	}
	return candidate
}

// EnvironmentName splices "_<env>" in front of the extension of name:
// "config/app.json" with env "test" becomes "config/app_test.json".
func EnvironmentName(name, env string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name + "_" + env
	}
	return strings.TrimSuffix(name, ext) + "_" + env + ext
}
