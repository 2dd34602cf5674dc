//go:build tools

// Package tools records the developer binaries this repository expects on
// PATH. They are installed with `go install` rather than tracked in go.mod.
//
//	mockgen v0.6.0   go install go.uber.org/mock/mockgen@v0.6.0
//	                 regenerates internal/mocks (go generate ./internal/mocks);
//	                 keep in step with go.uber.org/mock in go.mod
//	air v1.63.0      go install github.com/air-verse/air@v1.63.0
//	                 rebuilds and restarts cmd/wasm-engine on save:
//	                 air --build.cmd "go build -o tmp/engine ./cmd/wasm-engine" --build.bin tmp/engine
package tools
