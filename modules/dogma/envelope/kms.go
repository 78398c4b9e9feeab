// SPDX-License-Identifier: Apache-2.0

// Package envelope implements spec.md §4.B's envelope-encryption layer: a
// per-repository data-encryption key (DEK) wrapped by an external KMS,
// AEAD-sealed storage values, and AAD-bound storage-key encryption so that
// even key lookups require the DEK.
package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math"

	"github.com/dogmahq/dogma/dogmaerr"
)

// KMS wraps and unwraps a repository's 256-bit DEK. Implementations talk to
// an external key-management service; LocalRSAKMS is the in-process
// reference implementation used in tests and single-node deployments.
type KMS interface {
	Wrap(dek []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}

// LocalRSAKMS wraps DEKs under an RSA keypair using PKCS#1 v1.5, chunked
// across the key's modulus size. It is the teacher's own Decryptor adapted
// to the KMS interface spec.md §4.B requires.
type LocalRSAKMS struct {
	key *rsa.PrivateKey
}

// NewLocalRSAKMS parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func NewLocalRSAKMS(pemKey []byte) (*LocalRSAKMS, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("dogma: malformed KMS key PEM")
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = k
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		k, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("dogma: KMS key is not RSA")
		}
		key = k
	default:
		return nil, fmt.Errorf("dogma: unsupported KMS key block type %q", block.Type)
	}
	return &LocalRSAKMS{key: key}, nil
}

// Wrap encrypts dek under the RSA public key, chunking to the key's maximum
// PKCS#1 v1.5 payload size.
func (k *LocalRSAKMS) Wrap(dek []byte) ([]byte, error) {
	chunkLen := k.key.N.BitLen()/8 - 11
	if chunkLen <= 0 {
		return nil, errors.New("dogma: KMS key too small")
	}
	var out []byte
	chunks := int(math.Ceil(float64(len(dek)) / float64(chunkLen)))
	for i := 0; i < chunks; i++ {
		start, end := i*chunkLen, min((i+1)*chunkLen, len(dek))
		part, err := rsa.EncryptPKCS1v15(rand.Reader, &k.key.PublicKey, dek[start:end])
		if err != nil {
			return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "KMS wrap failed")
		}
		out = append(out, part...)
	}
	return out, nil
}

// Unwrap decrypts a DEK previously produced by Wrap.
func (k *LocalRSAKMS) Unwrap(wrapped []byte) ([]byte, error) {
	chunkLen := k.key.N.BitLen() / 8
	var out []byte
	chunks := int(math.Ceil(float64(len(wrapped)) / float64(chunkLen)))
	for i := 0; i < chunks; i++ {
		start, end := i*chunkLen, min((i+1)*chunkLen, len(wrapped))
		part, err := rsa.DecryptPKCS1v15(rand.Reader, k.key, wrapped[start:end])
		if err != nil {
			// Never fall back to plaintext on unwrap failure (spec.md §4.B).
			return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "KMS unwrap failed")
		}
		out = append(out, part...)
	}
	return out, nil
}
