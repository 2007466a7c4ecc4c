package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	DefaultBranch = "main"
	DefaultAuthor = "engram"
	DefaultEmail  = "engram@local"

	// CurrentRef is the symbolic commit reference resolved to HEAD.
	CurrentRef = "current"
)

// GitRepository wraps the host repository that memories anchor to.
type GitRepository struct {
	repo     *git.Repository
	rootPath string
	gitPath  string
}

// NewGitRepository opens the repository described by the scope.
func NewGitRepository(scope Scope) (*GitRepository, error) {
	gitPath := scope.GitPath
	rootPath := scope.Path

	if _, err := os.Stat(gitPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("repository not initialized: %s", gitPath)
	}

	fs := osfs.New(gitPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	wt := osfs.New(rootPath)

	repo, err := git.Open(storage, wt)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &GitRepository{
		repo:     repo,
		rootPath: rootPath,
		gitPath:  gitPath,
	}, nil
}

// InitRepository creates a fresh repository with one anchor commit so that
// captures have a commit to attach to from the start.
func InitRepository(scope Scope) error {
	gitPath := scope.GitPath
	rootPath := scope.Path

	if err := os.MkdirAll(gitPath, 0755); err != nil {
		return fmt.Errorf("create git directory: %w", err)
	}

	fs := osfs.New(gitPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	wt := osfs.New(rootPath)

	repo, err := git.Init(storage, wt)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	cfg.Init.DefaultBranch = DefaultBranch
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("set config: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	markerPath := filepath.Join(rootPath, ".engram-init")
	if err := os.WriteFile(markerPath, []byte("engram repository initialized\n"), 0644); err != nil {
		return fmt.Errorf("write init file: %w", err)
	}

	if _, err := worktree.Add(".engram-init"); err != nil {
		return fmt.Errorf("stage init file: %w", err)
	}

	_, err = worktree.Commit("init: initialize engram repository", &git.CommitOptions{
		Author: &object.Signature{
			Name:  DefaultAuthor,
			Email: DefaultEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	return nil
}

// ResolveCommit turns a user-facing reference into a full commit hash.
// The empty string and CurrentRef both resolve to HEAD.
func (r *GitRepository) ResolveCommit(ref string) (string, error) {
	if ref == "" || strings.EqualFold(ref, CurrentRef) || strings.EqualFold(ref, "HEAD") {
		head, err := r.repo.Head()
		if err != nil {
			return "", &StorageError{Op: "resolve HEAD", Err: err}
		}
		return head.Hash().String(), nil
	}

	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", &StorageError{Op: fmt.Sprintf("resolve ref %q", ref), Err: err}
	}
	return resolved.String(), nil
}

// Commit describes one commit of the host repository.
type Commit struct {
	Hash      string
	Message   string
	Author    string
	Timestamp time.Time
}

// Show returns commit metadata for a reference.
func (r *GitRepository) Show(ref string) (*Commit, error) {
	hash, err := r.ResolveCommit(ref)
	if err != nil {
		return nil, err
	}

	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, &StorageError{Op: "get commit", Err: err}
	}

	return &Commit{
		Hash:      commit.Hash.String(),
		Message:   strings.TrimSpace(commit.Message),
		Author:    commit.Author.Name,
		Timestamp: commit.Author.When,
	}, nil
}

// CurrentBranch reports the checked-out branch name and head hash.
func (r *GitRepository) CurrentBranch() (name, head string, err error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", "", &StorageError{Op: "get HEAD", Err: err}
	}
	return ref.Name().Short(), ref.Hash().String(), nil
}

// ChangedFiles snapshots the files touched by a commit, diffed against its
// first parent. Root commits list their whole tree. The result is capped at
// maxFiles entries and maxFileBytes per file; overflow is reported, not
// dropped silently.
func (r *GitRepository) ChangedFiles(commitRef string, maxFiles, maxFileBytes int) (map[string]FileSnapshot, int, error) {
	hash, err := r.ResolveCommit(commitRef)
	if err != nil {
		return nil, 0, err
	}

	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, 0, &StorageError{Op: "get commit", Err: err}
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, 0, &StorageError{Op: "get tree", Err: err}
	}

	paths, err := changedPaths(commit, tree)
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(paths)

	omitted := 0
	if maxFiles > 0 && len(paths) > maxFiles {
		omitted = len(paths) - maxFiles
		paths = paths[:maxFiles]
	}

	files := make(map[string]FileSnapshot, len(paths))
	for _, path := range paths {
		f, err := tree.File(path)
		if err != nil {
			// Deleted in this commit; nothing to snapshot.
			continue
		}
		content, err := f.Contents()
		if err != nil {
			return nil, 0, &StorageError{Op: "read file " + path, Err: err}
		}

		truncated := false
		if maxFileBytes > 0 && len(content) > maxFileBytes {
			content = content[:maxFileBytes]
			truncated = true
		}
		files[path] = FileSnapshot{Content: content, Truncated: truncated}
	}

	return files, omitted, nil
}

func changedPaths(commit *object.Commit, tree *object.Tree) ([]string, error) {
	parent, err := commit.Parent(0)
	if errors.Is(err, object.ErrParentNotFound) {
		var paths []string
		walkErr := tree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if walkErr != nil {
			return nil, &StorageError{Op: "walk root tree", Err: walkErr}
		}
		return paths, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get parent", Err: err}
	}

	parentTree, err := parent.Tree()
	if err != nil {
		return nil, &StorageError{Op: "get parent tree", Err: err}
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, &StorageError{Op: "diff trees", Err: err}
	}

	seen := make(map[string]struct{}, len(changes))
	var paths []string
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			paths = append(paths, name)
		}
	}
	return paths, nil
}

// Underlying exposes the go-git repository for the note store.
func (r *GitRepository) Underlying() *git.Repository {
	return r.repo
}

// GitDir reports the repository's git directory. The note store keeps its
// namespace lock files there so every process writing the same refs sees
// them.
func (r *GitRepository) GitDir() string {
	return r.gitPath
}
