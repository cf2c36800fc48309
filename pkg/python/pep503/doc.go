// Package pep503 implements PEP 503 -- Simple Repository API.
//
// This covers project-name normalization, and both rendering and reading the HTML pages that make
// up a simple repository.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503
