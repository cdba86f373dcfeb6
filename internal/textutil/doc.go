// Package textutil provides text helpers for artifact naming and display.
//
// The primary use cases are:
//   - Sanitizing filenames and path segments derived from parameter set names
//   - Turning snake_case metric and column keys into display headings
package textutil
