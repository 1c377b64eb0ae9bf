package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Sandbox confines payload files to a root directory and decides which process
// environment variables templates may read.
type Sandbox struct {
	root       string
	allowEnv   bool
	allowedEnv []string
}

// NewSandbox initializes a sandbox rooted at the provided directory. When
// allowEnv is false templates see no environment at all; otherwise only the
// names in allowedEnv are exposed.
func NewSandbox(root string, allowEnv bool, allowedEnv []string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("templates: sandbox root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("templates: resolve root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("templates: eval root symlinks: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("templates: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates: root %q is not a directory", abs)
	}
	allowed := make([]string, 0, len(allowedEnv))
	for _, name := range allowedEnv {
		if trimmed := strings.TrimSpace(name); trimmed != "" && !slices.Contains(allowed, trimmed) {
			allowed = append(allowed, trimmed)
		}
	}
	return &Sandbox{root: abs, allowEnv: allowEnv, allowedEnv: allowed}, nil
}

// Root returns the canonical sandbox directory.
func (s *Sandbox) Root() string { return s.root }

// AllowedEnv lists the environment variable names templates may read.
func (s *Sandbox) AllowedEnv() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.allowedEnv)
}

// Environment snapshots the allowed environment variables. Unset variables are
// omitted.
func (s *Sandbox) Environment() map[string]string {
	env := make(map[string]string)
	if s == nil || !s.allowEnv {
		return env
	}
	for _, name := range s.allowedEnv {
		if value, ok := os.LookupEnv(name); ok {
			env[name] = value
		}
	}
	return env
}

// Resolve normalizes path and ensures it stays inside the sandbox root.
// Relative paths are joined onto the root.
func (s *Sandbox) Resolve(path string) (string, error) {
	if s == nil {
		return "", errors.New("templates: sandbox is nil")
	}
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == "" {
		return s.root, nil
	}
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(s.root, cleaned)
	}
	cleaned = filepath.Clean(cleaned)
	evaluated, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		if !s.contains(cleaned) {
			return "", fmt.Errorf("templates: path %q escapes sandbox", path)
		}
		return "", fmt.Errorf("templates: resolve %q: %w", path, err)
	}
	if !s.contains(evaluated) {
		return "", fmt.Errorf("templates: path %q escapes sandbox", path)
	}
	return evaluated, nil
}

func (s *Sandbox) contains(candidate string) bool {
	root := s.root
	if runtime.GOOS == "windows" {
		root = strings.ToLower(root)
		candidate = strings.ToLower(candidate)
	}
	if root == candidate {
		return true
	}
	if !strings.HasSuffix(root, string(os.PathSeparator)) {
		root += string(os.PathSeparator)
	}
	return strings.HasPrefix(candidate, root)
}
