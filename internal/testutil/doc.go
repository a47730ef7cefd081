// Package testutil provides shared test helpers: in-memory HTTP
// round-trippers, scripted token and token-info endpoints, a manual
// clock for deterministic lifecycle tests, and JWT signing fixtures.
//
// This package is internal and must only be imported from _test.go
// files.
package testutil
