// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pkgrepo/pkg/python"
)

func TestHexdigest(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"md5":    "b1946ac92492d2347c6235b4d2611184",
		"sha1":   "f572d396fae9206628714fb2ce00f72e94f2258f",
		"sha256": "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03",
	}
	for algo, exp := range testcases {
		algo, exp := algo, exp
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			act, err := python.Hexdigest(algo, []byte("hello\n"))
			require.NoError(t, err)
			assert.Equal(t, exp, act)
		})
	}
	_, err := python.Hexdigest("shake_128", nil)
	assert.Error(t, err)
}

func TestHexdigestEmpty(t *testing.T) {
	t.Parallel()
	act, err := python.Hexdigest("sha3_256", nil)
	require.NoError(t, err)
	assert.Equal(t, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a", act)

	for algo, size := range map[string]int{"blake2b": 64, "blake2s": 32, "sha3_224": 28, "sha3_512": 64} {
		act, err := python.Hexdigest(algo, nil)
		require.NoError(t, err, algo)
		assert.Len(t, act, 2*size, algo)
	}
}
