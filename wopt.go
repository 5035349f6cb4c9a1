// Package wopt is a WebAssembly optimizer: it reads a binary module
// into an arena-backed IR, runs semantics-preserving transformation
// passes over it, and writes the module back out.
//
// The subpackages carry the machinery: wasm (types and the interning
// store), ir (nodes, visitor, effects), ir/dataflow (CFG, dominance,
// liveness, def-use), binary (reader/writer), validate, and passes.
// This package is the narrow waist most callers need.
package wopt

import (
	"github.com/woptproject/wopt/binary"
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/passes"
	"github.com/woptproject/wopt/validate"
)

// NewModule creates an empty module backed by a fresh arena.
func NewModule() *ir.Module {
	return ir.NewModule()
}

// ReadModule parses a WebAssembly binary into a module. Expressions
// live in the module's arena; dispose the module to release them.
func ReadModule(data []byte) (*ir.Module, error) {
	return binary.ReadModule(data)
}

// WriteModule serializes a module. The caller owns the returned
// buffer.
func WriteModule(m *ir.Module) ([]byte, error) {
	return binary.WriteModule(m)
}

// Validate checks the module for structural and type errors.
func Validate(m *ir.Module) error {
	return validate.ValidateModule(m)
}

// Optimize runs an optimization level's pass bundle ("O0" through
// "O4", "Os", "Oz") over the module in place.
func Optimize(m *ir.Module, level string) error {
	r := passes.NewRunner()
	if err := r.AddBundle(level); err != nil {
		return err
	}
	return r.Run(m)
}

// RunPasses runs the named passes, in order, over the module in
// place.
func RunPasses(m *ir.Module, names ...string) error {
	return passes.RunNames(m, names...)
}
