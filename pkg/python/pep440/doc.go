// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements PEP 440 -- Version Identification and Dependency Specification.
//
// The repository uses it for two things: ordering the versions of a project when listing them,
// and evaluating "Requires-Python" constraints.
//
// https://www.python.org/dev/peps/pep-0440/
package pep440
