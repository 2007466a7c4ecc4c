package internal

import (
	"os"
	"path/filepath"
)

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

// Scope binds the engine to one repository. Project scope anchors memories
// to the host repository's own history; global scope keeps a private
// repository under the home directory for memories with no project.
type Scope struct {
	Type       ScopeType
	Path       string // worktree root
	EngramPath string // .engram directory (index, locks, config)
	GitPath    string // git directory holding commits and notes refs
}

func (s Scope) IndexPath() string {
	return filepath.Join(s.EngramPath, "index.db")
}

func (s Scope) LocksPath() string {
	return filepath.Join(s.EngramPath, "locks")
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.EngramPath, "config.yaml")
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	engramPath := filepath.Join(r.homeDir, ".engram")
	return Scope{
		Type:       ScopeGlobal,
		Path:       r.homeDir,
		EngramPath: engramPath,
		GitPath:    filepath.Join(engramPath, "git"),
	}
}

// Project walks up from the working directory looking for a git repository.
func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		gitPath := filepath.Join(dir, ".git")
		info, err := os.Stat(gitPath)
		if err == nil && info.IsDir() {
			return Scope{
				Type:       ScopeProject,
				Path:       dir,
				EngramPath: filepath.Join(dir, ".engram"),
				GitPath:    gitPath,
			}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

// Resolve picks a scope from an explicit hint, falling back from project to
// global.
func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}
