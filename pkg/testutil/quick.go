// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"testing/quick"
)

type QuickConfig = quick.Config

// QuickCheck checks the property fn with testing/quick, and then against each of examples, the
// argument lists for cases that random generation is unlikely to hit.
func QuickCheck(t testing.TB, fn interface{}, cfg QuickConfig, examples ...[]interface{}) {
	t.Helper()
	if err := quick.Check(fn, &cfg); err != nil {
		var setupErr quick.SetupError
		if errors.As(err, &setupErr) {
			t.Errorf("quick.Check: %v", err)
			return
		}
		t.Error(err)
	}

	fnVal := reflect.ValueOf(fn)
	for i, example := range examples {
		args, err := exampleArgs(fnVal.Type(), example)
		if err != nil {
			t.Errorf("example #%d: %v", i, err)
			continue
		}
		if !fnVal.Call(args)[0].Bool() {
			t.Errorf("example #%d: property does not hold for %#v", i, example)
		}
	}
}

func exampleArgs(fnType reflect.Type, example []interface{}) ([]reflect.Value, error) {
	if len(example) != fnType.NumIn() {
		return nil, fmt.Errorf("has %d args, but the function takes %d", len(example), fnType.NumIn())
	}
	args := make([]reflect.Value, len(example))
	for i, arg := range example {
		val := reflect.ValueOf(arg)
		if !val.IsValid() || !val.Type().AssignableTo(fnType.In(i)) {
			return nil, fmt.Errorf("arg %d is a %T, but the function wants a %v", i, arg, fnType.In(i))
		}
		args[i] = val
	}
	return args, nil
}
