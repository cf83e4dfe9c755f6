// Copyright 2025 The Feedlog authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package core holds the types shared by feedlog's root package and its
// internal helper packages (entryset, fetcher). It exists to avoid an import
// cycle: entryset and fetcher need Entry and Digest, and the root package
// needs entryset and fetcher.
package core

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// Digest is the base58 encoding of a block's multihash -- the address under
// which its serialized content is stored in, and retrieved from, a
// BlockStore.
type Digest string

// Sum computes the content digest of data: a sha2-256 multihash, base58
// encoded.
func Sum(data []byte) (Digest, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("multihash.Sum: %w", err)
	}
	return Digest(base58.Encode(mh)), nil
}

// ParseDigest validates that s decodes to a well-formed multihash and
// returns it as a Digest.
func ParseDigest(s string) (Digest, error) {
	if s == "" {
		return "", &InvalidHashError{Value: s}
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", &InvalidHashError{Value: s}
	}
	if _, err := multihash.Cast(raw); err != nil {
		return "", &InvalidHashError{Value: s}
	}
	return Digest(s), nil
}

// Bytes decodes d back into its raw multihash bytes.
func (d Digest) Bytes() ([]byte, error) {
	b, err := base58.Decode(string(d))
	if err != nil {
		return nil, fmt.Errorf("base58 decode %q: %w", d, err)
	}
	return b, nil
}

func (d Digest) String() string { return string(d) }
