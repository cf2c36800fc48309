// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package reproducible provides a clock that can be pinned for reproducible output.
//
// https://reproducible-builds.org/specs/source-date-epoch/
package reproducible

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	epochOnce sync.Once
	epoch     *time.Time
)

// SourceDateEpoch returns the time named by the SOURCE_DATE_EPOCH environment variable, and
// whether it was set to something valid.  The variable is read only once.
func SourceDateEpoch() (time.Time, bool) {
	epochOnce.Do(func() {
		epoch = parseEpoch(os.Getenv("SOURCE_DATE_EPOCH"))
	})
	if epoch == nil {
		return time.Time{}, false
	}
	return *epoch, true
}

func parseEpoch(str string) *time.Time {
	secs, err := strconv.ParseInt(str, 10, 64)
	if err != nil || secs < 0 {
		return nil
	}
	ret := time.Unix(secs, 0).UTC()
	return &ret
}

// Now returns SOURCE_DATE_EPOCH if it is set, and the current time otherwise.  It is suitable as
// an upload clock.
func Now() time.Time {
	if t, ok := SourceDateEpoch(); ok {
		return t
	}
	return time.Now()
}
