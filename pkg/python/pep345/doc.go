// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep345 implements PEP 345 -- Metadata for Python Software Packages 1.2.
//
// That is: the RFC 822-style PKG-INFO and METADATA files found in source and built distributions,
// and the "Requires-Python" field in both its legacy PEP 345 form and its PEP 440 form.
//
// https://www.python.org/dev/peps/pep-0345/
package pep345
