// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist_test

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/datawire/pkgrepo/pkg/testutil"
)

// regenerateRecord rewrites the RECORD entry (the last file) to match the other files.
func regenerateRecord(files []testutil.File) []testutil.File {
	recordIdx := len(files) - 1
	var record strings.Builder
	for _, file := range files[:recordIdx] {
		sum := sha256.Sum256(file.Content)
		fmt.Fprintf(&record, "%s,sha256=%s,%d\n",
			file.Name, base64.RawURLEncoding.EncodeToString(sum[:]), len(file.Content))
	}
	fmt.Fprintf(&record, "%s,,\n", files[recordIdx].Name)
	files[recordIdx].Content = []byte(record.String())
	return files
}
