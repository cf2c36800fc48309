// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

//nolint:gochecknoglobals // Would be 'const'.
var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

func unifiedDiff(exp, act string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	return diff
}

// AssertEqualText compares two rendered documents (HTML pages, JSON) and reports a unified diff
// rather than two walls of text.
func AssertEqualText(t *testing.T, exp, act string) bool {
	t.Helper()
	if exp != act {
		t.Errorf("Text diff:\n%s", unifiedDiff(exp, act))
		return false
	}
	return true
}

// AssertEqualDump compares two values by their spew dumps, which (unlike reflect.DeepEqual) does
// not care about unexported caches or slice capacities.
func AssertEqualDump(t *testing.T, exp, act interface{}) bool {
	t.Helper()
	expStr := spewConfig.Sdump(exp)
	actStr := spewConfig.Sdump(act)
	if expStr != actStr {
		t.Errorf("Dump diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}
	return true
}
