// Package binary reads and writes the WebAssembly binary format,
// converting between byte buffers and the arena-backed IR.
package binary

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
	"github.com/woptproject/wopt/wasm/leb128"
)

// Reader decodes a module from a byte slice. All expressions are
// allocated in a fresh arena owned by the resulting module.
type Reader struct {
	data []byte
	pos  int

	strict bool
	log    *zap.Logger

	m *ir.Module
	b ir.Builder

	sigs       []wasm.Type // type section, interned handles
	labelCount int
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger attaches a logger; section boundaries are logged at
// debug level.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) { r.log = l }
}

// Strict makes the reader reject unknown section tags instead of
// skipping them.
func Strict() Option {
	return func(r *Reader) { r.strict = true }
}

// ReadModule parses a WebAssembly binary.
func ReadModule(data []byte, opts ...Option) (*ir.Module, error) {
	r := &Reader{
		data: data,
		log:  zap.NewNop(),
		m:    ir.NewModule(),
	}
	r.b = r.m.Builder()
	for _, o := range opts {
		o(r)
	}

	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.readSections(); err != nil {
		return nil, err
	}
	return r.m, nil
}

func (r *Reader) readHeader() error {
	if len(r.data) < 8 {
		return ErrTruncated
	}
	if binary.LittleEndian.Uint32(r.data) != wasm.Magic {
		return ErrBadMagic
	}
	if binary.LittleEndian.Uint32(r.data[4:]) != wasm.Version {
		return ErrBadVersion
	}
	r.pos = 8
	return nil
}

func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) readBytes(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return nil, ErrTruncated
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *Reader) readVarU32() (uint32, error) {
	v, n, err := leb128.GetVarUint32(r.data[r.pos:])
	if err != nil {
		return 0, r.lebErr(err)
	}
	r.pos += n
	return v, nil
}

func (r *Reader) readVarS32() (int32, error) {
	v, n, err := leb128.GetVarint64(r.data[r.pos:])
	if err != nil {
		return 0, r.lebErr(err)
	}
	if v < -0x80000000 || v > 0x7fffffff {
		return 0, leb128.ErrOverflow
	}
	r.pos += n
	return int32(v), nil
}

func (r *Reader) readVarS64() (int64, error) {
	v, n, err := leb128.GetVarint64(r.data[r.pos:])
	if err != nil {
		return 0, r.lebErr(err)
	}
	r.pos += n
	return v, nil
}

func (r *Reader) lebErr(err error) error {
	if err == leb128.ErrOverflow {
		return err
	}
	return ErrTruncated
}

func (r *Reader) readString() (string, error) {
	n, err := r.readVarU32()
	if err != nil {
		return "", err
	}
	raw, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", DecodeTypeError("malformed UTF-8 name")
	}
	return string(raw), nil
}

func (r *Reader) readValueType() (wasm.Type, error) {
	b, err := r.readByte()
	if err != nil {
		return wasm.TypeNone, err
	}
	t, ok := wasm.TypeFromValueType(wasm.ValueType(b))
	if !ok {
		return wasm.TypeNone, DecodeTypeError(fmt.Sprintf("invalid value type 0x%02x", b))
	}
	return t, nil
}

const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionTable    = 4
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionElement  = 9
	sectionCode     = 10
	sectionData     = 11
)

func (r *Reader) readSections() error {
	var lastOrder byte
	declared := 0 // function-section entries, matched by the code section

	for r.pos < len(r.data) {
		id, err := r.readByte()
		if err != nil {
			return err
		}
		if id > sectionData {
			if r.strict {
				return UnknownSectionError(id)
			}
			size, err := r.readVarU32()
			if err != nil {
				return err
			}
			if uint64(r.pos)+uint64(size) > uint64(len(r.data)) {
				return ErrTruncated
			}
			r.pos += int(size)
			continue
		}
		if id != sectionCustom {
			if id <= lastOrder {
				return SectionOrderError(id)
			}
			lastOrder = id
		}

		size, err := r.readVarU32()
		if err != nil {
			return err
		}
		if uint64(r.pos)+uint64(size) > uint64(len(r.data)) {
			return ErrTruncated
		}
		end := r.pos + int(size)

		r.log.Debug("reading section",
			zap.Uint8("id", id),
			zap.Uint32("size", size))

		switch id {
		case sectionCustom:
			err = r.readCustomSection(uint32(end - r.pos))
		case sectionType:
			err = r.readTypeSection()
		case sectionImport:
			err = r.readImportSection()
		case sectionFunction:
			declared, err = r.readFunctionSection()
		case sectionTable:
			err = r.readTableSection()
		case sectionMemory:
			err = r.readMemorySection()
		case sectionGlobal:
			err = r.readGlobalSection()
		case sectionExport:
			err = r.readExportSection()
		case sectionStart:
			err = r.readStartSection()
		case sectionElement:
			err = r.readElementSection()
		case sectionCode:
			err = r.readCodeSection(declared)
		case sectionData:
			err = r.readDataSection()
		}
		if err != nil {
			return err
		}
		if r.pos != end {
			return SectionLengthError(id)
		}
	}
	return nil
}

func (r *Reader) readTypeSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.readByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return DecodeTypeError(fmt.Sprintf("invalid func type form 0x%02x", form))
		}
		params, err := r.readValueTypes()
		if err != nil {
			return err
		}
		results, err := r.readValueTypes()
		if err != nil {
			return err
		}
		h := wasm.InternSignature(wasm.InternTuple(params), wasm.InternTuple(results))
		r.sigs = append(r.sigs, h)
	}
	return nil
}

func (r *Reader) readValueTypes() ([]wasm.Type, error) {
	count, err := r.readVarU32()
	if err != nil {
		return nil, err
	}
	types := make([]wasm.Type, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := r.readValueType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (r *Reader) sigAt(idx uint32) (wasm.Type, error) {
	if int(idx) >= len(r.sigs) {
		return wasm.TypeNone, wasm.ValidationError("unknown type")
	}
	return r.sigs[idx], nil
}

func (r *Reader) readImportSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.readString()
		if err != nil {
			return err
		}
		field, err := r.readString()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}

		switch wasm.External(kind) {
		case wasm.ExternalFunction:
			idx, err := r.readVarU32()
			if err != nil {
				return err
			}
			sig, err := r.sigAt(idx)
			if err != nil {
				return err
			}
			r.m.AddFunction(&ir.Function{
				Name:         fmt.Sprintf("fimport$%d", len(r.m.Functions)),
				Sig:          sig,
				Imported:     true,
				ImportModule: module,
				ImportField:  field,
			})

		case wasm.ExternalTable:
			if r.m.Table != nil {
				return UnsupportedError("multiple tables")
			}
			table, err := r.readTableType()
			if err != nil {
				return err
			}
			table.Imported = true
			table.ImportModule = module
			table.ImportField = field
			r.m.Table = table

		case wasm.ExternalMemory:
			if r.m.Memory != nil {
				return UnsupportedError("multiple memories")
			}
			initial, maximum, hasMax, err := r.readLimits()
			if err != nil {
				return err
			}
			r.m.Memory = &ir.Memory{
				Initial: initial, Maximum: maximum, HasMax: hasMax,
				Imported: true, ImportModule: module, ImportField: field,
			}

		case wasm.ExternalGlobal:
			t, err := r.readValueType()
			if err != nil {
				return err
			}
			mut, err := r.readByte()
			if err != nil {
				return err
			}
			r.m.AddGlobal(&ir.Global{
				Name:         fmt.Sprintf("gimport$%d", len(r.m.Globals)),
				Type:         t,
				Mutable:      mut == 1,
				Imported:     true,
				ImportModule: module,
				ImportField:  field,
			})

		default:
			return DecodeTypeError(fmt.Sprintf("invalid import kind %d", kind))
		}
	}
	return nil
}

func (r *Reader) readFunctionSection() (int, error) {
	count, err := r.readVarU32()
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.readVarU32()
		if err != nil {
			return 0, err
		}
		sig, err := r.sigAt(idx)
		if err != nil {
			return 0, err
		}
		r.m.AddFunction(&ir.Function{
			Name: fmt.Sprintf("$%d", len(r.m.Functions)),
			Sig:  sig,
		})
	}
	return int(count), nil
}

func (r *Reader) readTableType() (*ir.Table, error) {
	elem, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if wasm.ValueType(elem) != wasm.ValueTypeFuncref {
		return nil, UnsupportedError("non-funcref table")
	}
	initial, maximum, hasMax, err := r.readLimits()
	if err != nil {
		return nil, err
	}
	return &ir.Table{
		ElemType: wasm.TypeFuncref,
		Initial:  initial,
		Maximum:  maximum,
		HasMax:   hasMax,
	}, nil
}

func (r *Reader) readLimits() (initial, maximum uint32, hasMax bool, err error) {
	flags, err := r.readByte()
	if err != nil {
		return 0, 0, false, err
	}
	if flags > 1 {
		return 0, 0, false, DecodeTypeError(fmt.Sprintf("invalid limits flags %d", flags))
	}
	initial, err = r.readVarU32()
	if err != nil {
		return 0, 0, false, err
	}
	if flags == 1 {
		maximum, err = r.readVarU32()
		if err != nil {
			return 0, 0, false, err
		}
		hasMax = true
	}
	return initial, maximum, hasMax, nil
}

func (r *Reader) readTableSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if count > 1 || r.m.Table != nil {
		return UnsupportedError("multiple tables")
	}
	table, err := r.readTableType()
	if err != nil {
		return err
	}
	r.m.Table = table
	return nil
}

func (r *Reader) readMemorySection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if count > 1 || r.m.Memory != nil {
		return UnsupportedError("multiple memories")
	}
	initial, maximum, hasMax, err := r.readLimits()
	if err != nil {
		return err
	}
	r.m.Memory = &ir.Memory{Initial: initial, Maximum: maximum, HasMax: hasMax}
	return nil
}

func (r *Reader) readGlobalSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		t, err := r.readValueType()
		if err != nil {
			return err
		}
		mut, err := r.readByte()
		if err != nil {
			return err
		}
		init, err := r.readInitExpr(t)
		if err != nil {
			return err
		}
		r.m.AddGlobal(&ir.Global{
			Name:    fmt.Sprintf("global$%d", len(r.m.Globals)),
			Type:    t,
			Mutable: mut == 1,
			Init:    init,
		})
	}
	return nil
}

func (r *Reader) readExportSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.readString()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		idx, err := r.readVarU32()
		if err != nil {
			return err
		}
		r.m.Exports = append(r.m.Exports, ir.Export{
			Name:  name,
			Kind:  wasm.External(kind),
			Index: idx,
		})
	}
	return nil
}

func (r *Reader) readStartSection() error {
	idx, err := r.readVarU32()
	if err != nil {
		return err
	}
	r.m.Start = idx
	r.m.HasStart = true
	return nil
}

func (r *Reader) readElementSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.readVarU32()
		if err != nil {
			return err
		}
		if flags != 0 {
			return UnsupportedError("element segment flags")
		}
		offset, err := r.readInitExpr(wasm.TypeI32)
		if err != nil {
			return err
		}
		n, err := r.readVarU32()
		if err != nil {
			return err
		}
		funcs := make([]uint32, 0, n)
		for j := uint32(0); j < n; j++ {
			idx, err := r.readVarU32()
			if err != nil {
				return err
			}
			funcs = append(funcs, idx)
		}
		r.m.Elements = append(r.m.Elements, ir.ElementSegment{
			Offset: offset,
			Funcs:  funcs,
		})
	}
	return nil
}

func (r *Reader) readCodeSection(declared int) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	if int(count) != declared {
		return wasm.ValidationError("function and code section have inconsistent lengths")
	}

	imported := r.m.NumImportedFunctions()
	for i := 0; i < int(count); i++ {
		fn := r.m.Functions[imported+i]

		bodySize, err := r.readVarU32()
		if err != nil {
			return err
		}
		if uint64(r.pos)+uint64(bodySize) > uint64(len(r.data)) {
			return ErrTruncated
		}
		bodyEnd := r.pos + int(bodySize)

		if err := r.readLocals(fn); err != nil {
			return err
		}

		result := fn.ResultType()
		if result.Arity() > 1 {
			return UnsupportedError("multi-value function results")
		}

		body, err := r.readFunctionBody(fn, result)
		if err != nil {
			return err
		}
		fn.Body = body

		if r.pos != bodyEnd {
			return SectionLengthError(sectionCode)
		}
	}
	return nil
}

func (r *Reader) readLocals(fn *ir.Function) error {
	groups, err := r.readVarU32()
	if err != nil {
		return err
	}
	total := uint64(fn.NumParams())
	for i := uint32(0); i < groups; i++ {
		n, err := r.readVarU32()
		if err != nil {
			return err
		}
		t, err := r.readValueType()
		if err != nil {
			return err
		}
		total += uint64(n)
		if total > 1<<20 {
			return DecodeTypeError("too many locals")
		}
		for j := uint32(0); j < n; j++ {
			fn.Vars = append(fn.Vars, t)
		}
	}
	return nil
}

func (r *Reader) readDataSection() error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		memIdx, err := r.readVarU32()
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return UnsupportedError("data segment memory index")
		}
		offset, err := r.readInitExpr(wasm.TypeI32)
		if err != nil {
			return err
		}
		n, err := r.readVarU32()
		if err != nil {
			return err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return err
		}
		data := make([]byte, n)
		copy(data, raw)
		r.m.Data = append(r.m.Data, ir.DataSegment{Offset: offset, Data: data})
	}
	return nil
}

func (r *Reader) readCustomSection(size uint32) error {
	start := r.pos
	name, err := r.readString()
	if err != nil {
		return err
	}
	rest := size - uint32(r.pos-start)
	raw, err := r.readBytes(rest)
	if err != nil {
		return err
	}

	if name == "name" {
		if err := r.readNameSection(raw); err != nil {
			// A malformed name section does not invalidate the
			// module; keep it as an opaque payload instead.
			r.log.Debug("ignoring malformed name section", zap.Error(err))
			data := make([]byte, len(raw))
			copy(data, raw)
			r.m.Customs = append(r.m.Customs, ir.CustomSection{Name: name, Data: data})
		}
		return nil
	}

	data := make([]byte, len(raw))
	copy(data, raw)
	r.m.Customs = append(r.m.Customs, ir.CustomSection{Name: name, Data: data})
	return nil
}

// readNameSection applies module and function names. Call targets in
// already-parsed bodies are rewritten along with the definitions.
func (r *Reader) readNameSection(raw []byte) error {
	sub := &Reader{data: raw, log: r.log, m: r.m}

	renames := make(map[string]string)
	for sub.pos < len(sub.data) {
		id, err := sub.readByte()
		if err != nil {
			return err
		}
		size, err := sub.readVarU32()
		if err != nil {
			return err
		}
		end := sub.pos + int(size)
		if end > len(sub.data) {
			return ErrTruncated
		}

		switch id {
		case 0: // module name
			name, err := sub.readString()
			if err != nil {
				return err
			}
			r.m.Name = name

		case 1: // function names
			count, err := sub.readVarU32()
			if err != nil {
				return err
			}
			taken := make(map[string]bool, len(r.m.Functions))
			for _, f := range r.m.Functions {
				taken[f.Name] = true
			}
			for i := uint32(0); i < count; i++ {
				idx, err := sub.readVarU32()
				if err != nil {
					return err
				}
				name, err := sub.readString()
				if err != nil {
					return err
				}
				if int(idx) >= len(r.m.Functions) || name == "" || taken[name] {
					continue
				}
				fn := r.m.Functions[idx]
				taken[name] = true
				renames[fn.Name] = name
				r.m.Rename(fn, name)
			}
		}

		// Skip anything unparsed (local names and future subsections).
		sub.pos = end
	}

	if len(renames) > 0 {
		retarget := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			e := *slot
			if e.Kind == ir.KindCall {
				if to, ok := renames[e.Target]; ok {
					e.Target = to
				}
			}
			return ir.Continue
		})
		ir.WalkModule(r.m, retarget)
		r.m.EmitNames = true
	}
	if r.m.Name != "" {
		r.m.EmitNames = true
	}
	return nil
}

// readInitExpr parses a constant initializer expression.
func (r *Reader) readInitExpr(expected wasm.Type) (*ir.Expr, error) {
	return r.readBody(nil, nil, expected)
}
