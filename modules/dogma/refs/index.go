// SPDX-License-Identifier: Apache-2.0

// Package refs implements spec.md §4.C's ref & revision index: the HEAD
// pointer and the revision→commit-hash mapping for a single repository's
// one line of history.
package refs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/plumbing"
)

const (
	headFileName = "HEAD"
	logFileName  = "log" // append-only revision -> commit hash records
)

// Index is the durable HEAD pointer and revision index of one repository.
// head is cached in memory under the caller's writer lock and reloaded from
// disk only at construction (spec.md §4.C).
type Index struct {
	mu   sync.RWMutex
	root string
	head plumbing.Revision
	byRev map[plumbing.Revision]plumbing.Hash
}

// Open loads an existing index, or returns one at Revision 0 (no commits
// yet) if root has never been initialized.
func Open(root string) (*Index, error) {
	idx := &Index{root: root, byRev: make(map[plumbing.Revision]plumbing.Hash)}
	if err := idx.reload(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) reload() error {
	logPath := filepath.Join(idx.root, logFileName)
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			idx.head = 0
			return nil
		}
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "open revision log")
	}
	defer f.Close()

	var maxRev plumbing.Revision
	byRev := make(map[plumbing.Revision]plumbing.Hash)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rev int32
		var hashHex string
		if _, err := fmt.Sscanf(scanner.Text(), "%d %s", &rev, &hashHex); err != nil {
			return dogmaerr.Wrap(dogmaerr.StorageException, err, "parse revision log line %q", scanner.Text())
		}
		hash, err := plumbing.NewHashEx(hashHex)
		if err != nil {
			return dogmaerr.Wrap(dogmaerr.StorageException, err, "parse revision log hash")
		}
		byRev[plumbing.Revision(rev)] = hash
		if plumbing.Revision(rev) > maxRev {
			maxRev = plumbing.Revision(rev)
		}
	}
	if err := scanner.Err(); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "scan revision log")
	}

	// The HEAD file is the authoritative pointer (written durably via
	// temp+fsync+rename on every Advance); the log supplies the
	// revision->hash lookup table. They are written in the same critical
	// section, so on any clean shutdown they agree — on recovery from a
	// crash between the two writes, trust the densest view: the greater of
	// the two, since Advance appends the log record before moving HEAD.
	head := maxRev
	if headBytes, err := os.ReadFile(filepath.Join(idx.root, headFileName)); err == nil {
		var fileHead int32
		if _, err := fmt.Sscanf(string(headBytes), "%d", &fileHead); err == nil && plumbing.Revision(fileHead) > head {
			head = plumbing.Revision(fileHead)
		}
	} else if !os.IsNotExist(err) {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "read HEAD file")
	}

	idx.head = head
	idx.byRev = byRev
	return nil
}

// Head returns the cached current HEAD revision (0 if no commit exists).
func (idx *Index) Head() plumbing.Revision {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.head
}

// Commit returns the commit hash recorded at revision r.
func (idx *Index) Commit(r plumbing.Revision) (plumbing.Hash, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hash, ok := idx.byRev[r]
	if !ok {
		return plumbing.ZeroHash, dogmaerr.RevisionNotFoundErr(int32(r))
	}
	return hash, nil
}

// Advance atomically updates HEAD from fromRevision (expected) to
// newRevision with newCommitHash, appending a durable log record. It fails
// with ChangeConflict if the expectation does not hold — the caller (the
// commit pipeline) already holds the repository writer lock, so this CAS
// only ever fails when that invariant is violated by a bug or an external,
// replicated lock implementation racing anyway (spec.md §4.C, §4.D step 7).
func (idx *Index) Advance(fromRevision, newRevision plumbing.Revision, newCommitHash plumbing.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.head != fromRevision {
		return dogmaerr.ChangeConflictErr("HEAD is %d, expected %d", idx.head, fromRevision)
	}
	if newRevision != fromRevision+1 {
		return dogmaerr.New(dogmaerr.StorageException, "revision index must advance by exactly one, got %d -> %d", fromRevision, newRevision)
	}

	logPath := filepath.Join(idx.root, logFileName)
	if err := os.MkdirAll(idx.root, 0o755); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "create ref index root")
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "open revision log")
	}
	defer f.Close()

	line := fmt.Sprintf("%d %s\n", int32(newRevision), newCommitHash.String())
	if _, err := f.WriteString(line); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "append revision log")
	}
	// Advance must be durable before it is observable by readers.
	if err := f.Sync(); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "fsync revision log")
	}

	if err := idx.writeHEADLocked(newRevision); err != nil {
		return err
	}

	idx.byRev[newRevision] = newCommitHash
	idx.head = newRevision
	return nil
}

// writeHEADLocked persists the HEAD pointer via temp-write + fsync + rename
// so a crash mid-write never leaves a torn HEAD file.
func (idx *Index) writeHEADLocked(head plumbing.Revision) error {
	headPath := filepath.Join(idx.root, headFileName)
	tmp, err := os.CreateTemp(idx.root, "HEAD.*")
	if err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "create HEAD temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := fmt.Fprintf(tmp, "%d\n", int32(head)); err != nil {
		_ = tmp.Close()
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "write HEAD temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "fsync HEAD temp file")
	}
	if err := tmp.Close(); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "close HEAD temp file")
	}
	if err := os.Rename(tmpPath, headPath); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "rename HEAD into place")
	}
	return nil
}
