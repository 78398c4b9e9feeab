// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/dogmahq/dogma/dogmaerr"
)

// Repository is the envelope-encryption context for a single project/repo
// pair: it owns the WDEK (persisted once, wrapped by the KMS) and exposes
// Seal/Open/StorageKey bound to the unwrapped DEK for the lifetime of the
// in-memory handle.
type Repository struct {
	kms  KMS
	root string // <dataDir>/<project>/<repo>
	dek  []byte
}

const wdekFileName = "wdek"

// Create generates a fresh DEK, wraps it with kms, and persists the WDEK
// under root. Writing over an existing WDEK fails (spec.md §4.B).
func Create(kms KMS, root string) (*Repository, error) {
	wdekPath := filepath.Join(root, wdekFileName)
	if _, err := os.Stat(wdekPath); err == nil {
		return nil, dogmaerr.New(dogmaerr.StorageException, "WDEK already exists at %s", wdekPath)
	}
	dek, err := GenerateDEK()
	if err != nil {
		return nil, err
	}
	wrapped, err := kms.Wrap(dek)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "create envelope root")
	}
	if err := os.WriteFile(wdekPath, wrapped, 0o600); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "persist WDEK")
	}
	return &Repository{kms: kms, root: root, dek: dek}, nil
}

// Open loads and unwraps an existing WDEK. Reading a WDEK that does not
// exist is an error (spec.md §4.B).
func Open(kms KMS, root string) (*Repository, error) {
	wdekPath := filepath.Join(root, wdekFileName)
	wrapped, err := os.ReadFile(wdekPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dogmaerr.New(dogmaerr.StorageException, "no WDEK at %s", wdekPath)
		}
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "read WDEK")
	}
	dek, err := kms.Unwrap(wrapped)
	if err != nil {
		return nil, err
	}
	return &Repository{kms: kms, root: root, dek: dek}, nil
}

// Seal encrypts plaintext, AAD-bound to logicalKey.
func (r *Repository) Seal(logicalKey, plaintext []byte) ([]byte, error) {
	return Seal(r.dek, logicalKey, plaintext)
}

// Open decrypts a value previously sealed with the same logicalKey.
func (r *Repository) Open(logicalKey, sealed []byte) ([]byte, error) {
	return Unseal(r.dek, logicalKey, sealed)
}

// StorageKey returns the hex-encoded, AEAD-derived storage key for
// logicalKey — the name under which Seal's output is actually stored.
func (r *Repository) StorageKey(logicalKey []byte) (string, error) {
	derived, err := DeriveStorageKey(r.dek, logicalKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(derived), nil
}

// dataPath returns where a ciphertext row for an already-derived storage
// key is kept, two-level hex-sharded like the plaintext object store.
func (r *Repository) dataPath(storageKey string) string {
	return filepath.Join(r.root, "data", storageKey[:2], storageKey[2:4], storageKey)
}

// PutSealed stores a value under logicalKey, returning the storage key it
// was filed under.
func (r *Repository) PutSealed(logicalKey, plaintext []byte) (string, error) {
	sealed, err := r.Seal(logicalKey, plaintext)
	if err != nil {
		return "", err
	}
	storageKey, err := r.StorageKey(logicalKey)
	if err != nil {
		return "", err
	}
	path := r.dataPath(storageKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", dogmaerr.Wrap(dogmaerr.StorageException, err, "create envelope data dir")
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return "", dogmaerr.Wrap(dogmaerr.StorageException, err, "write sealed value")
	}
	return storageKey, nil
}

// GetSealed reads and decrypts the value stored under logicalKey.
func (r *Repository) GetSealed(logicalKey []byte) ([]byte, error) {
	storageKey, err := r.StorageKey(logicalKey)
	if err != nil {
		return nil, err
	}
	path := r.dataPath(storageKey)
	sealed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dogmaerr.New(dogmaerr.StorageException, "no sealed value for logical key")
		}
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "read sealed value")
	}
	return r.Open(logicalKey, sealed)
}

// Purge destroys the WDEK and every ciphertext row under the repository's
// envelope root — a directory-tree walk implementing spec.md §4.B's
// "prefix scan" (the envelope root is itself the prefix: one directory per
// (project, repo), nothing else shares it).
func Purge(root string) error {
	if err := os.RemoveAll(root); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "purge envelope root")
	}
	return nil
}
