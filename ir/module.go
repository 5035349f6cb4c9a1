package ir

import (
	"fmt"

	"github.com/woptproject/wopt/wasm"
)

// Function is an entry in a module's function index space. Imported
// functions precede defined ones, matching the binary index order.
type Function struct {
	Name string
	Sig  wasm.Type // interned signature handle

	// Vars are the declared locals, excluding parameters.
	Vars []wasm.Type

	Body *Expr // nil for imports

	Imported     bool
	ImportModule string
	ImportField  string
}

// ParamTypes expands the function's parameter list.
func (f *Function) ParamTypes() []wasm.Type {
	return wasm.Params(f.Sig).Expand()
}

// ResultType returns the function's result type (none, a basic type,
// or a tuple handle).
func (f *Function) ResultType() wasm.Type {
	return wasm.Results(f.Sig)
}

// NumParams returns the number of parameters.
func (f *Function) NumParams() int {
	return wasm.Params(f.Sig).Arity()
}

// NumLocals returns parameters plus declared locals.
func (f *Function) NumLocals() int {
	return f.NumParams() + len(f.Vars)
}

// LocalType returns the type of the local at index i, counting
// parameters first.
func (f *Function) LocalType(i uint32) (wasm.Type, bool) {
	params := f.ParamTypes()
	if int(i) < len(params) {
		return params[i], true
	}
	v := int(i) - len(params)
	if v < len(f.Vars) {
		return f.Vars[v], true
	}
	return wasm.TypeNone, false
}

// AddVar appends a local of the given type and returns its index.
func (f *Function) AddVar(t wasm.Type) uint32 {
	f.Vars = append(f.Vars, t)
	return uint32(f.NumParams() + len(f.Vars) - 1)
}

// Global is a module global variable.
type Global struct {
	Name    string
	Type    wasm.Type
	Mutable bool
	Init    *Expr // nil for imports; must be constant-foldable otherwise

	Imported     bool
	ImportModule string
	ImportField  string
}

// Table describes the module's function table (MVP: at most one).
type Table struct {
	ElemType wasm.Type
	Initial  uint32
	Maximum  uint32
	HasMax   bool

	Imported     bool
	ImportModule string
	ImportField  string
}

// Memory describes the module's linear memory (MVP: at most one).
// Sizes are in 64KiB pages.
type Memory struct {
	Initial uint32
	Maximum uint32
	HasMax  bool

	Imported     bool
	ImportModule string
	ImportField  string
}

// Export is an exported entity.
type Export struct {
	Name  string
	Kind  wasm.External
	Index uint32
}

// ElementSegment initializes a range of the table with function
// indices.
type ElementSegment struct {
	TableIndex uint32
	Offset     *Expr
	Funcs      []uint32
}

// DataSegment initializes a range of linear memory.
type DataSegment struct {
	MemoryIndex uint32
	Offset      *Expr
	Data        []byte
}

// CustomSection is an opaque custom section carried through
// unchanged.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the top-level IR container. It owns the arena in which
// every expression of the module lives; disposing the module
// invalidates all of them.
type Module struct {
	Name string

	Functions []*Function
	Globals   []*Global
	Table     *Table
	Memory    *Memory
	Exports   []Export
	Elements  []ElementSegment
	Data      []DataSegment
	Customs   []CustomSection

	Start    uint32
	HasStart bool

	// EmitNames requests a name section on output.
	EmitNames bool

	arena     *Arena
	funcIndex map[string]int
}

// NewModule creates an empty module with a fresh arena.
func NewModule() *Module {
	return &Module{
		arena:     NewArena(),
		funcIndex: make(map[string]int),
	}
}

// Arena returns the module's arena.
func (m *Module) Arena() *Arena {
	return m.arena
}

// Builder returns a builder over the module's arena.
func (m *Module) Builder() Builder {
	return NewBuilder(m.arena)
}

// AddFunction appends a function. The caller must add imported
// functions before defined ones so that index order matches the
// binary format.
func (m *Module) AddFunction(f *Function) {
	m.funcIndex[f.Name] = len(m.Functions)
	m.Functions = append(m.Functions, f)
}

// GetFunction looks a function up by name.
func (m *Module) GetFunction(name string) *Function {
	if i, ok := m.funcIndex[name]; ok {
		return m.Functions[i]
	}
	return nil
}

// FuncIndex returns the index of a function in the function index
// space.
func (m *Module) FuncIndex(name string) (uint32, bool) {
	i, ok := m.funcIndex[name]
	return uint32(i), ok
}

// Rename changes a function's name and keeps the index consistent.
// The caller is responsible for updating call sites.
func (m *Module) Rename(f *Function, name string) {
	if i, ok := m.funcIndex[f.Name]; ok && m.Functions[i] == f {
		delete(m.funcIndex, f.Name)
		m.funcIndex[name] = i
	}
	f.Name = name
}

// NumImportedFunctions counts the imported prefix of the function
// list.
func (m *Module) NumImportedFunctions() int {
	n := 0
	for _, f := range m.Functions {
		if !f.Imported {
			break
		}
		n++
	}
	return n
}

// AddGlobal appends a global.
func (m *Module) AddGlobal(g *Global) {
	m.Globals = append(m.Globals, g)
}

// Dispose releases the module's arena. Every expression pointer
// derived from this module is invalid afterwards; dereferencing one
// is a programming error.
func (m *Module) Dispose() {
	m.arena.dispose()
	m.Functions = nil
	m.Globals = nil
	m.Exports = nil
	m.Elements = nil
	m.Data = nil
	m.Customs = nil
	m.funcIndex = nil
}

// Disposed reports whether Dispose has been called.
func (m *Module) Disposed() bool {
	return m.arena.disposed
}

func (m *Module) String() string {
	return fmt.Sprintf("module(%d functions, %d globals)", len(m.Functions), len(m.Globals))
}
