package secret

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret
// values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// FileProvider reads secrets from files, trimming one trailing newline.
// References are paths within its filesystem.
type FileProvider struct {
	fs billy.Filesystem
}

// NewFileProvider creates a provider over fs. A nil fs reads the host
// filesystem from its root.
func NewFileProvider(fs billy.Filesystem) *FileProvider {
	if fs == nil {
		fs = osfs.New("/")
	}
	return &FileProvider{fs: fs}
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Resolve reads the file at ref.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := util.ReadFile(p.fs, ref)
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// EnvProvider resolves a reference as an environment variable name.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates a provider over the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: lookupEnv}
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// Resolve returns the variable named ref, which must be set.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

var (
	_ Provider = (*FileProvider)(nil)
	_ Provider = (*EnvProvider)(nil)
)
