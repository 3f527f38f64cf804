// Package benchmark provides performance benchmarks for the servus host.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
package benchmark
