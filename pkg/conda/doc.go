// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package conda implements reading conda packages (both the v1 ".tar.bz2" format and the v2
// ".conda" format) and writing the "repodata.json" channel index.
//
// https://docs.conda.io/projects/conda-build/en/latest/resources/package-spec.html
package conda
