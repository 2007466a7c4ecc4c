package internal

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
)

// NotesRefPrefix namespaces the engine's notes refs away from plain
// `refs/notes/commits` so ordinary git notes remain untouched.
const NotesRefPrefix = "refs/notes/engram/"

// NoteRecord is one (commit, content) pair of a namespace.
type NoteRecord struct {
	CommitRef string
	Content   string
}

// NoteStore is the append-only canonical log. Writes serialize internally
// per namespace; reads are safe from any number of processes.
type NoteStore interface {
	Append(ns Namespace, commitRef, content string) error
	Show(ns Namespace, commitRef string) (string, bool, error)
	List(ns Namespace) ([]NoteRecord, error)
	Remove(ns Namespace, commitRef string) error
}

var _ NoteStore = (*GitNoteStore)(nil)

// GitNoteStore keeps one notes ref per namespace
// (refs/notes/engram/<namespace>). Each ref points at a chain of note
// commits whose tree maps annotated commit hashes to note blobs, which is
// the layout `git notes` itself writes, so notes sync with ordinary
// fetch/push refspecs.
type GitNoteStore struct {
	repo *GitRepository
}

func NewGitNoteStore(repo *GitRepository) *GitNoteStore {
	return &GitNoteStore{repo: repo}
}

func notesRefName(ns Namespace) plumbing.ReferenceName {
	return plumbing.ReferenceName(NotesRefPrefix + ns.String())
}

// notesWriteAttempts bounds compare-and-swap retries against writers that
// bypass the namespace lock, such as plain `git notes` on the same ref.
const notesWriteAttempts = 5

// Append merges content into whatever already exists for the anchor. The
// anchored commit must exist; a missing anchor is a StorageError before
// anything is written. All commits of a namespace share one notes ref, so
// the read-modify-write cycle holds a per-namespace lock and the ref update
// is compare-and-swap guarded; writers to different commits never clobber
// each other's appends.
func (s *GitNoteStore) Append(ns Namespace, commitRef, content string) error {
	repo := s.repo.Underlying()

	hash, err := s.repo.ResolveCommit(commitRef)
	if err != nil {
		return err
	}
	if _, err := repo.CommitObject(plumbing.NewHash(hash)); err != nil {
		return &StorageError{Op: fmt.Sprintf("anchor commit %s", ShortRef(hash)), Err: err}
	}

	release, err := s.lockRef(ns)
	if err != nil {
		return err
	}
	defer release()

	msg := fmt.Sprintf("notes: append %s@%s", ns, ShortRef(hash))
	for attempt := 0; attempt < notesWriteAttempts; attempt++ {
		entries, parent, err := s.noteTreeEntries(ns)
		if err != nil {
			return err
		}

		existing := ""
		if blob, ok := entries[hash]; ok {
			existing, err = s.blobContent(blob)
			if err != nil {
				return err
			}
		}
		merged := AppendEntry(existing, content)

		blobHash, err := s.writeBlob([]byte(merged))
		if err != nil {
			return &StorageError{Op: "write note blob", Err: err}
		}
		entries[hash] = blobHash

		err = s.commitNoteTree(ns, entries, parent, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			continue
		}
		return err
	}
	return &StorageError{Op: fmt.Sprintf("append %s@%s", ns, ShortRef(hash)), Err: storage.ErrReferenceHasChanged}
}

// Show returns the note content for an anchor. A missing note is an explicit
// absent, never an error.
func (s *GitNoteStore) Show(ns Namespace, commitRef string) (string, bool, error) {
	hash, err := s.repo.ResolveCommit(commitRef)
	if err != nil {
		return "", false, err
	}

	tree, err := s.noteTree(ns)
	if err != nil {
		return "", false, err
	}
	if tree == nil {
		return "", false, nil
	}

	f, err := tree.File(hash)
	if err == object.ErrFileNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "read note", Err: err}
	}

	content, err := f.Contents()
	if err != nil {
		return "", false, &StorageError{Op: "read note blob", Err: err}
	}
	return content, true, nil
}

// List returns every (commit, content) pair recorded under a namespace.
func (s *GitNoteStore) List(ns Namespace) ([]NoteRecord, error) {
	tree, err := s.noteTree(ns)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, nil
	}

	var records []NoteRecord
	err = tree.Files().ForEach(func(f *object.File) error {
		content, err := f.Contents()
		if err != nil {
			return err
		}
		records = append(records, NoteRecord{CommitRef: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "walk notes tree", Err: err}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CommitRef < records[j].CommitRef
	})
	return records, nil
}

// Remove drops the note for an anchor. Removing an absent note is a no-op.
// The engine only calls this for administrative repair; captures never
// delete from the canonical log.
func (s *GitNoteStore) Remove(ns Namespace, commitRef string) error {
	hash, err := s.repo.ResolveCommit(commitRef)
	if err != nil {
		return err
	}

	release, err := s.lockRef(ns)
	if err != nil {
		return err
	}
	defer release()

	msg := fmt.Sprintf("notes: remove %s@%s", ns, ShortRef(hash))
	for attempt := 0; attempt < notesWriteAttempts; attempt++ {
		entries, parent, err := s.noteTreeEntries(ns)
		if err != nil {
			return err
		}
		if _, ok := entries[hash]; !ok {
			return nil
		}
		delete(entries, hash)

		err = s.commitNoteTree(ns, entries, parent, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			continue
		}
		return err
	}
	return &StorageError{Op: fmt.Sprintf("remove %s@%s", ns, ShortRef(hash)), Err: storage.ErrReferenceHasChanged}
}

// lockRef serializes ref updates of one namespace across processes. The
// capture lock is per (commit, namespace); two captures anchored to
// different commits still share the namespace ref, so its read-modify-write
// cycle needs its own guard.
func (s *GitNoteStore) lockRef(ns Namespace) (func(), error) {
	path := filepath.Join(s.repo.GitDir(), fmt.Sprintf("engram-notes-%s.lock", ns))
	handle, err := acquireLockFile(path, DefaultLockTimeout)
	if errors.Is(err, errLockWaitExpired) {
		return nil, &LockTimeoutError{Namespace: ns, Waited: DefaultLockTimeout}
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = handle.Release() }, nil
}

func (s *GitNoteStore) blobContent(hash plumbing.Hash) (string, error) {
	blob, err := s.repo.Underlying().BlobObject(hash)
	if err != nil {
		return "", &StorageError{Op: "read note blob", Err: err}
	}
	r, err := blob.Reader()
	if err != nil {
		return "", &StorageError{Op: "read note blob", Err: err}
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &StorageError{Op: "read note blob", Err: err}
	}
	return string(data), nil
}

// noteTree resolves the current notes tree of a namespace, or nil when the
// ref does not exist yet.
func (s *GitNoteStore) noteTree(ns Namespace) (*object.Tree, error) {
	repo := s.repo.Underlying()

	ref, err := repo.Reference(notesRefName(ns), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "resolve notes ref", Err: err}
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, &StorageError{Op: "get notes commit", Err: err}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, &StorageError{Op: "get notes tree", Err: err}
	}
	return tree, nil
}

func (s *GitNoteStore) noteTreeEntries(ns Namespace) (map[string]plumbing.Hash, plumbing.Hash, error) {
	repo := s.repo.Underlying()
	entries := make(map[string]plumbing.Hash)

	ref, err := repo.Reference(notesRefName(ns), true)
	if err == plumbing.ErrReferenceNotFound {
		return entries, plumbing.ZeroHash, nil
	}
	if err != nil {
		return nil, plumbing.ZeroHash, &StorageError{Op: "resolve notes ref", Err: err}
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, plumbing.ZeroHash, &StorageError{Op: "get notes commit", Err: err}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, plumbing.ZeroHash, &StorageError{Op: "get notes tree", Err: err}
	}

	for _, e := range tree.Entries {
		entries[e.Name] = e.Hash
	}
	return entries, ref.Hash(), nil
}

func (s *GitNoteStore) writeBlob(data []byte) (plumbing.Hash, error) {
	repo := s.repo.Underlying()

	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	return repo.Storer.SetEncodedObject(obj)
}

func (s *GitNoteStore) commitNoteTree(ns Namespace, entries map[string]plumbing.Hash, parent plumbing.Hash, message string) error {
	repo := s.repo.Underlying()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	treeEntries := make([]object.TreeEntry, 0, len(names))
	for _, name := range names {
		treeEntries = append(treeEntries, object.TreeEntry{
			Name: name,
			Mode: filemode.Regular,
			Hash: entries[name],
		})
	}

	tree := &object.Tree{Entries: treeEntries}
	treeObj := repo.Storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return &StorageError{Op: "encode notes tree", Err: err}
	}
	treeHash, err := repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return &StorageError{Op: "write notes tree", Err: err}
	}

	sig := object.Signature{
		Name:  DefaultAuthor,
		Email: DefaultEmail,
		When:  time.Now(),
	}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  treeHash,
	}
	if parent != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	commitObj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return &StorageError{Op: "encode notes commit", Err: err}
	}
	commitHash, err := repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return &StorageError{Op: "write notes commit", Err: err}
	}

	// Guard against the ref moving between our read and this write. On a
	// mismatch the storer reports storage.ErrReferenceHasChanged and the
	// caller re-reads and retries.
	newRef := plumbing.NewHashReference(notesRefName(ns), commitHash)
	var old *plumbing.Reference
	if parent != plumbing.ZeroHash {
		old = plumbing.NewHashReference(notesRefName(ns), parent)
	}
	if err := repo.Storer.CheckAndSetReference(newRef, old); err != nil {
		return &StorageError{Op: "update notes ref", Err: err}
	}
	return nil
}
