package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
	"github.com/woptproject/wopt/wasm/leb128"
)

// WriteModule serializes a module to a fresh buffer. The output is
// deterministic: the same module always produces the same bytes. The
// caller owns the returned buffer.
func WriteModule(m *ir.Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeModule(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeModule serializes a module to w.
func EncodeModule(w io.Writer, m *ir.Module) error {
	wr := &writer{m: m, sigIndex: make(map[wasm.Type]uint32)}
	return wr.writeModule(w)
}

type writer struct {
	m        *ir.Module
	sigs     []wasm.Type
	sigIndex map[wasm.Type]uint32
}

func (w *writer) addSig(h wasm.Type) {
	if _, ok := w.sigIndex[h]; ok {
		return
	}
	w.sigIndex[h] = uint32(len(w.sigs))
	w.sigs = append(w.sigs, h)
}

// collectTypes dedupes signatures: identical interned handles share
// one type-section entry, ordered by first use.
func (w *writer) collectTypes() {
	for _, fn := range w.m.Functions {
		w.addSig(fn.Sig)
	}
	collect := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
		if (*slot).Kind == ir.KindCallIndirect {
			w.addSig((*slot).Sig)
		}
		return ir.Continue
	})
	ir.WalkModule(w.m, collect)
}

func (w *writer) writeModule(out io.Writer) error {
	w.collectTypes()

	var buf bytes.Buffer
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header, wasm.Magic)
	binary.LittleEndian.PutUint32(header[4:], wasm.Version)
	buf.Write(header)

	sections := []struct {
		id    byte
		build func() ([]byte, error)
	}{
		{sectionType, w.typeSection},
		{sectionImport, w.importSection},
		{sectionFunction, w.functionSection},
		{sectionTable, w.tableSection},
		{sectionMemory, w.memorySection},
		{sectionGlobal, w.globalSection},
		{sectionExport, w.exportSection},
		{sectionStart, w.startSection},
		{sectionElement, w.elementSection},
		{sectionCode, w.codeSection},
		{sectionData, w.dataSection},
	}
	for _, s := range sections {
		payload, err := s.build()
		if err != nil {
			return err
		}
		if payload == nil {
			continue
		}
		buf.WriteByte(s.id)
		leb128.WriteVarUint32(&buf, uint32(len(payload)))
		buf.Write(payload)
	}

	if w.m.EmitNames {
		if payload := w.nameSection(); payload != nil {
			writeCustom(&buf, "name", payload)
		}
	}
	for _, c := range w.m.Customs {
		writeCustom(&buf, c.Name, c.Data)
	}

	_, err := out.Write(buf.Bytes())
	return err
}

func writeCustom(buf *bytes.Buffer, name string, data []byte) {
	var payload bytes.Buffer
	leb128.WriteVarUint32(&payload, uint32(len(name)))
	payload.WriteString(name)
	payload.Write(data)

	buf.WriteByte(sectionCustom)
	leb128.WriteVarUint32(buf, uint32(payload.Len()))
	buf.Write(payload.Bytes())
}

func writeValueType(buf *bytes.Buffer, t wasm.Type) error {
	v, ok := t.ValueType()
	if !ok {
		return DecodeTypeError(fmt.Sprintf("type %v has no wire encoding", t))
	}
	buf.WriteByte(byte(v))
	return nil
}

func (w *writer) typeSection() ([]byte, error) {
	if len(w.sigs) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(w.sigs)))
	for _, h := range w.sigs {
		buf.WriteByte(0x60)
		params := wasm.Params(h).Expand()
		leb128.WriteVarUint32(&buf, uint32(len(params)))
		for _, t := range params {
			if err := writeValueType(&buf, t); err != nil {
				return nil, err
			}
		}
		results := wasm.Results(h).Expand()
		leb128.WriteVarUint32(&buf, uint32(len(results)))
		for _, t := range results {
			if err := writeValueType(&buf, t); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func writeLimits(buf *bytes.Buffer, initial, maximum uint32, hasMax bool) {
	if hasMax {
		buf.WriteByte(1)
		leb128.WriteVarUint32(buf, initial)
		leb128.WriteVarUint32(buf, maximum)
	} else {
		buf.WriteByte(0)
		leb128.WriteVarUint32(buf, initial)
	}
}

func writeName(buf *bytes.Buffer, s string) {
	leb128.WriteVarUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func (w *writer) importSection() ([]byte, error) {
	var buf bytes.Buffer
	count := uint32(0)

	var entries bytes.Buffer
	for _, fn := range w.m.Functions {
		if !fn.Imported {
			break
		}
		writeName(&entries, fn.ImportModule)
		writeName(&entries, fn.ImportField)
		entries.WriteByte(byte(wasm.ExternalFunction))
		leb128.WriteVarUint32(&entries, w.sigIndex[fn.Sig])
		count++
	}
	if t := w.m.Table; t != nil && t.Imported {
		writeName(&entries, t.ImportModule)
		writeName(&entries, t.ImportField)
		entries.WriteByte(byte(wasm.ExternalTable))
		entries.WriteByte(byte(wasm.ValueTypeFuncref))
		writeLimits(&entries, t.Initial, t.Maximum, t.HasMax)
		count++
	}
	if mem := w.m.Memory; mem != nil && mem.Imported {
		writeName(&entries, mem.ImportModule)
		writeName(&entries, mem.ImportField)
		entries.WriteByte(byte(wasm.ExternalMemory))
		writeLimits(&entries, mem.Initial, mem.Maximum, mem.HasMax)
		count++
	}
	for _, g := range w.m.Globals {
		if !g.Imported {
			continue
		}
		writeName(&entries, g.ImportModule)
		writeName(&entries, g.ImportField)
		entries.WriteByte(byte(wasm.ExternalGlobal))
		if err := writeValueType(&entries, g.Type); err != nil {
			return nil, err
		}
		if g.Mutable {
			entries.WriteByte(1)
		} else {
			entries.WriteByte(0)
		}
		count++
	}

	if count == 0 {
		return nil, nil
	}
	leb128.WriteVarUint32(&buf, count)
	buf.Write(entries.Bytes())
	return buf.Bytes(), nil
}

func (w *writer) definedFunctions() []*ir.Function {
	var out []*ir.Function
	for _, fn := range w.m.Functions {
		if !fn.Imported {
			out = append(out, fn)
		}
	}
	return out
}

func (w *writer) functionSection() ([]byte, error) {
	defined := w.definedFunctions()
	if len(defined) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(defined)))
	for _, fn := range defined {
		leb128.WriteVarUint32(&buf, w.sigIndex[fn.Sig])
	}
	return buf.Bytes(), nil
}

func (w *writer) tableSection() ([]byte, error) {
	t := w.m.Table
	if t == nil || t.Imported {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, 1)
	buf.WriteByte(byte(wasm.ValueTypeFuncref))
	writeLimits(&buf, t.Initial, t.Maximum, t.HasMax)
	return buf.Bytes(), nil
}

func (w *writer) memorySection() ([]byte, error) {
	mem := w.m.Memory
	if mem == nil || mem.Imported {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, 1)
	writeLimits(&buf, mem.Initial, mem.Maximum, mem.HasMax)
	return buf.Bytes(), nil
}

func (w *writer) globalSection() ([]byte, error) {
	var defined []*ir.Global
	for _, g := range w.m.Globals {
		if !g.Imported {
			defined = append(defined, g)
		}
	}
	if len(defined) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(defined)))
	for _, g := range defined {
		if err := writeValueType(&buf, g.Type); err != nil {
			return nil, err
		}
		if g.Mutable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		if err := w.writeInitExpr(&buf, g.Init); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (w *writer) exportSection() ([]byte, error) {
	if len(w.m.Exports) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(w.m.Exports)))
	for _, e := range w.m.Exports {
		writeName(&buf, e.Name)
		buf.WriteByte(byte(e.Kind))
		leb128.WriteVarUint32(&buf, e.Index)
	}
	return buf.Bytes(), nil
}

func (w *writer) startSection() ([]byte, error) {
	if !w.m.HasStart {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, w.m.Start)
	return buf.Bytes(), nil
}

func (w *writer) elementSection() ([]byte, error) {
	if len(w.m.Elements) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(w.m.Elements)))
	for _, seg := range w.m.Elements {
		leb128.WriteVarUint32(&buf, seg.TableIndex)
		if err := w.writeInitExpr(&buf, seg.Offset); err != nil {
			return nil, err
		}
		leb128.WriteVarUint32(&buf, uint32(len(seg.Funcs)))
		for _, idx := range seg.Funcs {
			leb128.WriteVarUint32(&buf, idx)
		}
	}
	return buf.Bytes(), nil
}

func (w *writer) codeSection() ([]byte, error) {
	defined := w.definedFunctions()
	if len(defined) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(defined)))
	for _, fn := range defined {
		body, err := w.functionBody(fn)
		if err != nil {
			return nil, err
		}
		leb128.WriteVarUint32(&buf, uint32(len(body)))
		buf.Write(body)
	}
	return buf.Bytes(), nil
}

func (w *writer) functionBody(fn *ir.Function) ([]byte, error) {
	var buf bytes.Buffer

	// Locals are run-length grouped by type.
	type group struct {
		count uint32
		typ   wasm.Type
	}
	var groups []group
	for _, t := range fn.Vars {
		if n := len(groups); n > 0 && groups[n-1].typ == t {
			groups[n-1].count++
		} else {
			groups = append(groups, group{1, t})
		}
	}
	leb128.WriteVarUint32(&buf, uint32(len(groups)))
	for _, g := range groups {
		leb128.WriteVarUint32(&buf, g.count)
		if err := writeValueType(&buf, g.typ); err != nil {
			return nil, err
		}
	}

	enc := &exprEncoder{w: &buf, m: w.m, sigIndex: w.sigIndex}
	if fn.Body != nil {
		if err := enc.emitBodyContents(fn.Body); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(opEnd)
	return buf.Bytes(), nil
}

func (w *writer) dataSection() ([]byte, error) {
	if len(w.m.Data) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(w.m.Data)))
	for _, seg := range w.m.Data {
		leb128.WriteVarUint32(&buf, seg.MemoryIndex)
		if err := w.writeInitExpr(&buf, seg.Offset); err != nil {
			return nil, err
		}
		leb128.WriteVarUint32(&buf, uint32(len(seg.Data)))
		buf.Write(seg.Data)
	}
	return buf.Bytes(), nil
}

func (w *writer) writeInitExpr(buf *bytes.Buffer, e *ir.Expr) error {
	enc := &exprEncoder{w: buf, m: w.m, sigIndex: w.sigIndex}
	if err := enc.emit(e); err != nil {
		return err
	}
	buf.WriteByte(opEnd)
	return nil
}

func (w *writer) nameSection() []byte {
	var payload bytes.Buffer

	if w.m.Name != "" {
		var sub bytes.Buffer
		writeName(&sub, w.m.Name)
		payload.WriteByte(0)
		leb128.WriteVarUint32(&payload, uint32(sub.Len()))
		payload.Write(sub.Bytes())
	}

	var sub bytes.Buffer
	leb128.WriteVarUint32(&sub, uint32(len(w.m.Functions)))
	for i, fn := range w.m.Functions {
		leb128.WriteVarUint32(&sub, uint32(i))
		writeName(&sub, fn.Name)
	}
	payload.WriteByte(1)
	leb128.WriteVarUint32(&payload, uint32(sub.Len()))
	payload.Write(sub.Bytes())

	return payload.Bytes()
}
