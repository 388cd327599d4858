package classfile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// bb is a minimal big-endian byte assembler.
type bb struct{ b []byte }

func (w *bb) u1(v int)         { w.b = append(w.b, byte(v)) }
func (w *bb) u2(v int)         { w.b = append(w.b, byte(v>>8), byte(v)) }
func (w *bb) u4(v int)         { w.b = append(w.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }
func (w *bb) u8(v uint64)      { w.u4(int(v >> 32)); w.u4(int(uint32(v))) }
func (w *bb) raw(data []byte)  { w.b = append(w.b, data...) }
func (w *bb) idx(v uint16)     { w.u2(int(v)) }

// wEntry is one interned pool entry in encodable form.
type wEntry struct {
	tag byte
	n1  uint16
	n2  uint16
	num uint64
	s   string
}

// classWriter interns constants and bootstrap specifiers while member and
// attribute bodies are serialized, then renders the pool in front of them.
type classWriter struct {
	entries []wEntry
	index   map[string]uint16
	next    uint16

	bsmMethods []uint16
	bsmArgs    [][]uint16
	bsmIndex   map[string]uint16
}

func newClassWriter() *classWriter {
	return &classWriter{index: make(map[string]uint16), next: 1, bsmIndex: make(map[string]uint16)}
}

func (w *classWriter) add(key string, e wEntry) uint16 {
	if i, ok := w.index[key]; ok {
		return i
	}
	slots := 1
	if e.tag == tagLong || e.tag == tagDouble {
		slots = 2 // wide constants take two slots
	}
	if int(w.next)+slots > 0xffff {
		fail("constant pool overflow")
	}
	i := w.next
	w.next += uint16(slots)
	w.index[key] = i
	w.entries = append(w.entries, e)
	return i
}

func (w *classWriter) utf8(s string) uint16 {
	return w.add("u\x00"+s, wEntry{tag: tagUtf8, s: s})
}

func (w *classWriter) classRef(name string) uint16 {
	n := w.utf8(name)
	return w.add("c\x00"+name, wEntry{tag: tagClass, n1: n})
}

func (w *classWriter) classRefOpt(name string) uint16 {
	if name == "" {
		return 0
	}
	return w.classRef(name)
}

func (w *classWriter) nameAndType(name, desc string) uint16 {
	n, d := w.utf8(name), w.utf8(desc)
	return w.add("n\x00"+name+"\x00"+desc, wEntry{tag: tagNameAndType, n1: n, n2: d})
}

func (w *classWriter) fieldRef(r MemberRef) uint16 {
	c, nt := w.classRef(r.Owner), w.nameAndType(r.Name, r.Desc)
	return w.add("F\x00"+r.Owner+"\x00"+r.Name+"\x00"+r.Desc, wEntry{tag: tagFieldref, n1: c, n2: nt})
}

func (w *classWriter) methodRef(r MemberRef) uint16 {
	tag, key := byte(tagMethodref), "M"
	if r.Itf {
		tag, key = tagInterfaceMethod, "I"
	}
	c, nt := w.classRef(r.Owner), w.nameAndType(r.Name, r.Desc)
	return w.add(key+"\x00"+r.Owner+"\x00"+r.Name+"\x00"+r.Desc, wEntry{tag: tag, n1: c, n2: nt})
}

func (w *classWriter) handle(h Handle) uint16 {
	var ref uint16
	switch {
	case h.IsField():
		ref = w.fieldRef(MemberRef{Owner: h.Owner, Name: h.Name, Desc: h.Desc})
	case h.Kind == RefInvokeInterface:
		ref = w.methodRef(MemberRef{Owner: h.Owner, Name: h.Name, Desc: h.Desc, Itf: true})
	default:
		ref = w.methodRef(MemberRef{Owner: h.Owner, Name: h.Name, Desc: h.Desc, Itf: h.Itf})
	}
	return w.add(constKey(h), wEntry{tag: tagMethodHandle, n1: uint16(h.Kind), n2: ref})
}

// constIndex interns a loadable constant and returns its pool index.
func (w *classWriter) constIndex(c Const) uint16 {
	key := constKey(c)
	switch v := c.(type) {
	case IntConst:
		return w.add(key, wEntry{tag: tagInteger, num: uint64(uint32(v))})
	case FloatConst:
		return w.add(key, wEntry{tag: tagFloat, num: uint64(math.Float32bits(float32(v)))})
	case LongConst:
		return w.add(key, wEntry{tag: tagLong, num: uint64(v)})
	case DoubleConst:
		return w.add(key, wEntry{tag: tagDouble, num: math.Float64bits(float64(v))})
	case StringConst:
		n := w.utf8(string(v))
		return w.add(key, wEntry{tag: tagString, n1: n})
	case ClassConst:
		return w.classRef(string(v))
	case MethodTypeConst:
		n := w.utf8(string(v))
		return w.add(key, wEntry{tag: tagMethodType, n1: n})
	case Handle:
		return w.handle(v)
	case DynamicConst:
		spec := w.bootstrap(v.BSM, v.Args)
		nt := w.nameAndType(v.Name, v.Desc)
		return w.add(key, wEntry{tag: tagDynamic, n1: spec, n2: nt})
	default:
		fail("unencodable constant %T", c)
		return 0
	}
}

func (w *classWriter) invokeDynamic(in *InvokeDynamicInsn) uint16 {
	spec := w.bootstrap(in.BSM, in.Args)
	nt := w.nameAndType(in.Name, in.Desc)
	key := fmt.Sprintf("y%d\x00%s\x00%s", spec, in.Name, in.Desc)
	return w.add(key, wEntry{tag: tagInvokeDynamic, n1: spec, n2: nt})
}

// bootstrap interns one BootstrapMethods row and returns its table index.
func (w *classWriter) bootstrap(method Handle, args []Const) uint16 {
	var key strings.Builder
	key.WriteString(constKey(method))
	for _, a := range args {
		key.WriteByte(0)
		key.WriteString(constKey(a))
	}
	if i, ok := w.bsmIndex[key.String()]; ok {
		return i
	}
	m := w.handle(method)
	idxs := make([]uint16, 0, len(args))
	for _, a := range args {
		idxs = append(idxs, w.constIndex(a))
	}
	i := uint16(len(w.bsmMethods))
	w.bsmIndex[key.String()] = i
	w.bsmMethods = append(w.bsmMethods, m)
	w.bsmArgs = append(w.bsmArgs, idxs)
	return i
}

// constKey renders a constant as a canonical interning key.
func constKey(c Const) string {
	switch v := c.(type) {
	case IntConst:
		return "i" + strconv.FormatInt(int64(v), 10)
	case LongConst:
		return "l" + strconv.FormatInt(int64(v), 10)
	case FloatConst:
		return "f" + strconv.FormatUint(uint64(math.Float32bits(float32(v))), 16)
	case DoubleConst:
		return "d" + strconv.FormatUint(math.Float64bits(float64(v)), 16)
	case StringConst:
		return "s\x00" + string(v)
	case ClassConst:
		return "c\x00" + string(v)
	case MethodTypeConst:
		return "t\x00" + string(v)
	case Handle:
		itf := "0"
		if v.Itf {
			itf = "1"
		}
		return fmt.Sprintf("h%d\x00%s\x00%s\x00%s\x00%s", v.Kind, v.Owner, v.Name, v.Desc, itf)
	case DynamicConst:
		var b strings.Builder
		b.WriteString("D\x00" + v.Name + "\x00" + v.Desc + "\x00" + constKey(v.BSM))
		for _, a := range v.Args {
			b.WriteByte(0)
			b.WriteString(constKey(a))
		}
		return b.String()
	default:
		fail("unencodable constant %T", c)
		return ""
	}
}

// Bytes serializes the class. Member and attribute bodies are rendered
// first (interning pool entries as they go); the pool is then written in
// front of them.
func (c *Class) Bytes() (out []byte, err error) {
	defer func() {
		if v := recover(); v != nil {
			cr, ok := v.(corrupt)
			if !ok {
				panic(v)
			}
			out, err = nil, fmt.Errorf("encoding %s: %w: %s", c.Name, ErrMalformed, cr.err)
		}
	}()

	w := newClassWriter()
	body := &bb{}

	body.u2(int(c.Access))
	body.idx(w.classRef(c.Name))
	body.idx(w.classRefOpt(c.Super))
	body.u2(len(c.Interfaces))
	for _, in := range c.Interfaces {
		body.idx(w.classRef(in))
	}

	for _, list := range [][]*Member{c.Fields, c.Methods} {
		body.u2(len(list))
		for _, m := range list {
			body.u2(int(m.Access))
			body.idx(w.utf8(m.Name))
			body.idx(w.utf8(m.Desc))
			writeAttrs(body, w, m.Attrs)
		}
	}

	// Class attributes, with a BootstrapMethods table appended last if any
	// invokedynamic call site or dynamic constant produced one.
	type namedAttr struct {
		name uint16
		data []byte
	}
	attrBodies := make([]namedAttr, 0, len(c.Attrs)+1)
	for _, a := range c.Attrs {
		attrBodies = append(attrBodies, namedAttr{w.utf8(a.attrName()), attrData(w, a)})
	}
	if len(w.bsmMethods) > 0 {
		bs := &bb{}
		bs.u2(len(w.bsmMethods))
		for i, m := range w.bsmMethods {
			bs.idx(m)
			bs.u2(len(w.bsmArgs[i]))
			for _, a := range w.bsmArgs[i] {
				bs.idx(a)
			}
		}
		attrBodies = append(attrBodies, namedAttr{w.utf8("BootstrapMethods"), bs.b})
	}
	body.u2(len(attrBodies))
	for _, a := range attrBodies {
		body.idx(a.name)
		body.u4(len(a.data))
		body.raw(a.data)
	}

	head := &bb{}
	head.u4(int(magic))
	head.u2(int(c.Minor))
	head.u2(int(c.Major))
	head.u2(int(w.next))
	for _, e := range w.entries {
		head.u1(int(e.tag))
		switch e.tag {
		case tagUtf8:
			head.u2(len(e.s))
			head.raw([]byte(e.s))
		case tagInteger, tagFloat:
			head.u4(int(uint32(e.num)))
		case tagLong, tagDouble:
			head.u8(e.num)
		case tagClass, tagString, tagMethodType:
			head.idx(e.n1)
		case tagMethodHandle:
			head.u1(int(e.n1))
			head.idx(e.n2)
		default:
			head.idx(e.n1)
			head.idx(e.n2)
		}
	}
	return append(head.b, body.b...), nil
}

func writeAttrs(body *bb, w *classWriter, attrs []Attribute) {
	body.u2(len(attrs))
	for _, a := range attrs {
		name := w.utf8(a.attrName())
		data := attrData(w, a)
		body.idx(name)
		body.u4(len(data))
		body.raw(data)
	}
}

// attrData renders one attribute payload against the writer's pool.
func attrData(w *classWriter, a Attribute) []byte {
	b := &bb{}
	switch v := a.(type) {
	case SourceFile:
		b.idx(w.utf8(string(v)))
	case Signature:
		b.idx(w.utf8(string(v)))
	case Deprecated, SyntheticAttr:
		// Zero-length payloads.
	case SourceDebugExtension:
		b.raw(v)
	case ConstantValue:
		b.idx(w.constIndex(v.Value))
	case NestHost:
		b.idx(w.classRef(string(v)))
	case NestMembers:
		b.u2(len(v))
		for _, n := range v {
			b.idx(w.classRef(n))
		}
	case Exceptions:
		b.u2(len(v))
		for _, n := range v {
			b.idx(w.classRef(n))
		}
	case EnclosingMethod:
		b.idx(w.classRef(v.Owner))
		if v.Name == "" && v.Desc == "" {
			b.u2(0)
		} else {
			b.idx(w.nameAndType(v.Name, v.Desc))
		}
	case InnerClasses:
		b.u2(len(v))
		for _, ic := range v {
			b.idx(w.classRef(ic.Inner))
			b.idx(w.classRefOpt(ic.Outer))
			if ic.Name == "" {
				b.u2(0)
			} else {
				b.idx(w.utf8(ic.Name))
			}
			b.u2(int(ic.Access))
		}
	case MethodParameters:
		b.u1(len(v))
		for _, p := range v {
			if p.Name == "" {
				b.u2(0)
			} else {
				b.idx(w.utf8(p.Name))
			}
			b.u2(int(p.Access))
		}
	case Annotations:
		writeAnnotationList(b, w, v.List)
	case ParameterAnnotations:
		b.u1(len(v.Params))
		for _, list := range v.Params {
			writeAnnotationList(b, w, list)
		}
	case AnnotationDefault:
		writeElementValue(b, w, v.Value)
	case *Code:
		writeCode(b, w, v)
	default:
		fail("unencodable attribute %T", a)
	}
	return b.b
}

func writeAnnotationList(b *bb, w *classWriter, list []Annotation) {
	b.u2(len(list))
	for _, a := range list {
		writeAnnotation(b, w, a)
	}
}

func writeAnnotation(b *bb, w *classWriter, a Annotation) {
	b.idx(w.utf8(a.Type))
	b.u2(len(a.Pairs))
	for _, p := range a.Pairs {
		b.idx(w.utf8(p.Name))
		writeElementValue(b, w, p.Value)
	}
}

func writeElementValue(b *bb, w *classWriter, ev ElementValue) {
	b.u1(int(ev.Tag))
	switch ev.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		b.idx(w.constIndex(ev.Const))
	case 's':
		b.idx(w.utf8(string(ev.Const.(StringConst))))
	case 'e':
		b.idx(w.utf8(ev.TypeName))
		b.idx(w.utf8(ev.ConstName))
	case 'c':
		b.idx(w.utf8(ev.Class))
	case '@':
		writeAnnotation(b, w, *ev.Nested)
	case '[':
		b.u2(len(ev.Array))
		for _, e := range ev.Array {
			writeElementValue(b, w, e)
		}
	default:
		fail("unknown element value tag %q", ev.Tag)
	}
}

func writeCode(b *bb, w *classWriter, c *Code) {
	code, offs := encodeInsns(c.Insns, w)
	pc := func(idx int) int {
		if idx < 0 || idx >= len(offs) {
			fail("instruction index %d out of range", idx)
		}
		return offs[idx]
	}

	b.u2(int(c.MaxStack))
	b.u2(int(c.MaxLocals))
	b.u4(len(code))
	b.raw(code)

	b.u2(len(c.Handlers))
	for _, h := range c.Handlers {
		b.u2(pc(h.Start))
		b.u2(pc(h.End))
		b.u2(pc(h.Target))
		b.idx(w.classRefOpt(h.Catch))
	}

	b.u2(len(c.Attrs))
	for _, a := range c.Attrs {
		b.idx(w.utf8(a.attrName()))
		data := codeAttrData(w, a, pc)
		b.u4(len(data))
		b.raw(data)
	}
}

func codeAttrData(w *classWriter, a Attribute, pc func(int) int) []byte {
	b := &bb{}
	switch v := a.(type) {
	case LineNumberTable:
		b.u2(len(v))
		for _, ln := range v {
			b.u2(pc(ln.PC))
			b.u2(int(ln.Line))
		}
	case LocalVariableTable:
		writeLocalVars(b, w, v, pc)
	case LocalVariableTypeTable:
		writeLocalVars(b, w, []LocalVariable(v), pc)
	case StackMapTable:
		writeStackMap(b, w, v, pc)
	default:
		fail("unencodable Code attribute %T", a)
	}
	return b.b
}

func writeLocalVars(b *bb, w *classWriter, rows []LocalVariable, pc func(int) int) {
	b.u2(len(rows))
	for _, lv := range rows {
		start := pc(lv.Start)
		b.u2(start)
		b.u2(pc(lv.End) - start)
		b.idx(w.utf8(lv.Name))
		b.idx(w.utf8(lv.Type))
		b.u2(int(lv.Slot))
	}
}

func writeStackMap(b *bb, w *classWriter, frames StackMapTable, pc func(int) int) {
	vt := func(t VType) {
		b.u1(int(t.Tag))
		switch t.Tag {
		case VObject:
			b.idx(w.classRef(t.Class))
		case VUninitialized:
			b.u2(pc(t.NewPC))
		}
	}
	b.u2(len(frames))
	prev := -1
	for _, f := range frames {
		off := pc(f.PC)
		delta := off - prev - 1
		prev = off
		if delta < 0 {
			fail("stack map frames out of order")
		}
		switch f.Kind {
		case FrameSame:
			if delta <= 63 {
				b.u1(delta)
			} else {
				b.u1(251)
				b.u2(delta)
			}
		case FrameSameLocals1:
			if delta <= 63 {
				b.u1(64 + delta)
			} else {
				b.u1(247)
				b.u2(delta)
			}
			vt(f.Stack[0])
		case FrameChop:
			if f.Chop < 1 || f.Chop > 3 {
				fail("chop frame removes %d locals", f.Chop)
			}
			b.u1(251 - f.Chop)
			b.u2(delta)
		case FrameAppend:
			if len(f.Locals) < 1 || len(f.Locals) > 3 {
				fail("append frame adds %d locals", len(f.Locals))
			}
			b.u1(251 + len(f.Locals))
			b.u2(delta)
			for _, t := range f.Locals {
				vt(t)
			}
		case FrameFull:
			b.u1(255)
			b.u2(delta)
			b.u2(len(f.Locals))
			for _, t := range f.Locals {
				vt(t)
			}
			b.u2(len(f.Stack))
			for _, t := range f.Stack {
				vt(t)
			}
		default:
			fail("unknown frame kind %d", f.Kind)
		}
	}
}
