// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"math/rand"
	"reflect"
	"testing/quick"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// This file makes Version and CmpOp usable with testing/quick.

func randBool(rand *rand.Rand) bool {
	return rand.Intn(2) == 1
}

func randSeg(rand *rand.Rand) int {
	return rand.Intn(3000)
}

func randLen(rand *rand.Rand, size int) int {
	if size < 1 {
		size = 1
	}
	if size > 10 {
		size = 10
	}
	return 1 + rand.Intn(size)
}

func randOptional(rand *rand.Rand) *int {
	if !randBool(rand) {
		return nil
	}
	n := randSeg(rand)
	return &n
}

func (ver PublicVersion) generate(rand *rand.Rand, size int) PublicVersion {
	if randBool(rand) {
		ver.Epoch = randSeg(rand)
	}
	ver.Release = make([]int, randLen(rand, size))
	for i := range ver.Release {
		ver.Release[i] = randSeg(rand)
	}
	if randBool(rand) {
		ver.Pre = &PreRelease{
			L: []string{"a", "b", "rc"}[rand.Intn(3)],
			N: randSeg(rand),
		}
	}
	ver.Post = randOptional(rand)
	ver.Dev = randOptional(rand)
	return ver
}

func (ver PublicVersion) Generate(rand *rand.Rand, size int) reflect.Value {
	return reflect.ValueOf(ver.generate(rand, size))
}

func randLocalString(rand *rand.Rand, size int) string {
	const (
		alpha    = "abcdefghijklmnopqrstuvwxyz"
		alphadig = alpha + "0123456789"
	)
	buf := make([]byte, randLen(rand, size))
	buf[0] = alpha[rand.Intn(len(alpha))]
	for i := 1; i < len(buf); i++ {
		buf[i] = alphadig[rand.Intn(len(alphadig))]
	}
	return string(buf)
}

func (ver LocalVersion) Generate(rand *rand.Rand, size int) reflect.Value {
	if randBool(rand) {
		ver.Local = make([]intstr.IntOrString, randLen(rand, size))
		for i := range ver.Local {
			if randBool(rand) {
				ver.Local[i] = intstr.FromInt(randSeg(rand))
			} else {
				ver.Local[i] = intstr.FromString(randLocalString(rand, size))
			}
		}
	}
	ver.PublicVersion = ver.PublicVersion.generate(rand, size)
	return reflect.ValueOf(ver)
}

var _ quick.Generator = LocalVersion{}

func (op CmpOp) Generate(rand *rand.Rand, _ int) reflect.Value {
	return reflect.ValueOf(CmpOp(rand.Intn(int(_CmpOpEnd))))
}
