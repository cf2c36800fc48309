// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package reproducible

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEpoch(t *testing.T) {
	t.Parallel()
	testcases := map[string]*time.Time{
		"":           nil,
		"garbage":    nil,
		"-5":         nil,
		"0":          func() *time.Time { t := time.Unix(0, 0).UTC(); return &t }(),
		"1640995200": func() *time.Time { t := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC); return &t }(),
	}
	for input, exp := range testcases {
		input, exp := input, exp
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			act := parseEpoch(input)
			if exp == nil {
				assert.Nil(t, act)
				return
			}
			if assert.NotNil(t, act) {
				assert.True(t, exp.Equal(*act), "%v != %v", exp, act)
			}
		})
	}
}
