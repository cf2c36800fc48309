// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"bytes"
	"errors"
	"io"
	"os"
)

func readersEqual(a, b io.Reader) (equal bool, err error) {
	const chunkSize = 1024

	var aBuf, bBuf [chunkSize]byte
	for {
		aLen, err := io.ReadFull(a, aBuf[:])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return false, err
		}
		bLen, err := io.ReadFull(b, bBuf[:])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return false, err
		}
		if !bytes.Equal(aBuf[:aLen], bBuf[:bLen]) {
			return false, nil
		}
		if aLen < chunkSize {
			// EOF
			break
		}
	}

	return true, nil
}

// FileContentEqual returns whether the file at filename holds exactly content.
func FileContentEqual(filename string, content []byte) (equal bool, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer func() {
		if _err := file.Close(); _err != nil && err == nil {
			equal = false
			err = _err
		}
	}()
	return readersEqual(file, bytes.NewReader(content))
}
