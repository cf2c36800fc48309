// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// HashlibAlgorithmsGuaranteed is Python `hashlib.algorithms_guaranteed`.
//
//nolint:gochecknoglobals // Would be 'const'.
var HashlibAlgorithmsGuaranteed = map[string]func() hash.Hash{
	// This list is (sans TODOs) in-sync with Python 3.9.9.
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"blake2b":  unkeyed(blake2b.New512),
	"blake2s":  unkeyed(blake2s.New256),
	"sha3_224": sha3.New224,
	"sha3_256": sha3.New256,
	"sha3_384": sha3.New384,
	"sha3_512": sha3.New512,
	// "shake_128": TODO: hexdigest() takes a length,
	// "shake_256": TODO: hexdigest() takes a length,
}

// unkeyed adapts a keyed BLAKE2 constructor; with a nil key it cannot fail.
func unkeyed(fn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			panic(err)
		}
		return h
	}
}

// Hexdigest is `hashlib.new(algorithm, content).hexdigest()`.
func Hexdigest(algorithm string, content []byte) (string, error) {
	newHash, ok := HashlibAlgorithmsGuaranteed[algorithm]
	if !ok {
		return "", fmt.Errorf("python.Hexdigest: unsupported hash type %q", algorithm)
	}
	h := newHash()
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
