package classfile

// symbolizeAttr resolves one raw attribute into its typed form. owner is
// nil for class-level attributes and is only used for error context.
// Attributes outside the supported set abort the parse: their payload can
// embed constant pool indexes this codec would not be able to carry across
// a pool rebuild.
func symbolizeAttr(a rawAttr, p *pool, owner *Member) Attribute {
	r := &reader{b: a.data}
	var out Attribute
	switch a.name {
	case "SourceFile":
		out = SourceFile(p.utf8(r.u2()))
	case "Signature":
		out = Signature(p.utf8(r.u2()))
	case "Deprecated":
		out = Deprecated{}
	case "Synthetic":
		out = SyntheticAttr{}
	case "SourceDebugExtension":
		return SourceDebugExtension(a.data) // opaque, no pool references
	case "ConstantValue":
		out = ConstantValue{Value: p.constant(r.u2())}
	case "Exceptions":
		n := int(r.u2())
		ex := make(Exceptions, 0, n)
		for i := 0; i < n; i++ {
			ex = append(ex, p.class(r.u2()))
		}
		out = ex
	case "NestHost":
		out = NestHost(p.class(r.u2()))
	case "NestMembers":
		n := int(r.u2())
		nm := make(NestMembers, 0, n)
		for i := 0; i < n; i++ {
			nm = append(nm, p.class(r.u2()))
		}
		out = nm
	case "EnclosingMethod":
		em := EnclosingMethod{Owner: p.class(r.u2())}
		if i := r.u2(); i != 0 {
			em.Name, em.Desc = p.nameAndType(i)
		}
		out = em
	case "InnerClasses":
		n := int(r.u2())
		ics := make(InnerClasses, 0, n)
		for i := 0; i < n; i++ {
			ic := InnerClass{Inner: p.class(r.u2()), Outer: p.optClass(r.u2())}
			if ni := r.u2(); ni != 0 {
				ic.Name = p.utf8(ni)
			}
			ic.Access = r.u2()
			ics = append(ics, ic)
		}
		out = ics
	case "MethodParameters":
		n := int(r.u1())
		mp := make(MethodParameters, 0, n)
		for i := 0; i < n; i++ {
			var pr MethodParameter
			if ni := r.u2(); ni != 0 {
				pr.Name = p.utf8(ni)
			}
			pr.Access = r.u2()
			mp = append(mp, pr)
		}
		out = mp
	case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
		out = Annotations{
			Visible: a.name == "RuntimeVisibleAnnotations",
			List:    readAnnotationList(r, p),
		}
	case "RuntimeVisibleParameterAnnotations", "RuntimeInvisibleParameterAnnotations":
		n := int(r.u1())
		pa := ParameterAnnotations{Visible: a.name == "RuntimeVisibleParameterAnnotations"}
		for i := 0; i < n; i++ {
			pa.Params = append(pa.Params, readAnnotationList(r, p))
		}
		out = pa
	case "AnnotationDefault":
		out = AnnotationDefault{Value: readElementValue(r, p)}
	case "Code":
		out = readCode(r, p)
	case "LineNumberTable", "LocalVariableTable", "LocalVariableTypeTable", "StackMapTable":
		// Valid only nested inside Code; readCode handles them.
		fail("attribute %s outside Code", a.name)
	default:
		if owner != nil {
			fail("unsupported attribute %s on %s%s", a.name, owner.Name, owner.Desc)
		}
		fail("unsupported class attribute %s", a.name)
	}
	if !r.done() {
		fail("trailing bytes in attribute %s", a.name)
	}
	return out
}

func readAnnotationList(r *reader, p *pool) []Annotation {
	n := int(r.u2())
	out := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, readAnnotation(r, p))
	}
	return out
}

func readAnnotation(r *reader, p *pool) Annotation {
	a := Annotation{Type: p.utf8(r.u2())}
	n := int(r.u2())
	for i := 0; i < n; i++ {
		pr := ElementPair{Name: p.utf8(r.u2())}
		pr.Value = readElementValue(r, p)
		a.Pairs = append(a.Pairs, pr)
	}
	return a
}

func readElementValue(r *reader, p *pool) ElementValue {
	ev := ElementValue{Tag: r.u1()}
	switch ev.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		ev.Const = p.constant(r.u2())
	case 's':
		ev.Const = StringConst(p.utf8(r.u2()))
	case 'e':
		ev.TypeName = p.utf8(r.u2())
		ev.ConstName = p.utf8(r.u2())
	case 'c':
		ev.Class = p.utf8(r.u2())
	case '@':
		a := readAnnotation(r, p)
		ev.Nested = &a
	case '[':
		n := int(r.u2())
		for i := 0; i < n; i++ {
			ev.Array = append(ev.Array, readElementValue(r, p))
		}
	default:
		fail("unknown element value tag %q", ev.Tag)
	}
	return ev
}

// readCode decodes a Code attribute: instruction stream, exception table
// and the nested debug/verification attributes.
func readCode(r *reader, p *pool) *Code {
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	codeLen := int(r.u4())
	insns, pcIndex := decodeInsns(r.bytes(codeLen), p)
	c.Insns = insns

	// pc maps a bytecode offset to an instruction index; offset==codeLen is
	// the exclusive end marker used by ranges.
	pc := func(off int) int {
		if off == codeLen {
			return len(insns)
		}
		idx, ok := pcIndex[off]
		if !ok {
			fail("offset %d is not an instruction boundary", off)
		}
		return idx
	}

	hn := int(r.u2())
	for i := 0; i < hn; i++ {
		h := Handler{Start: pc(int(r.u2())), End: pc(int(r.u2())), Target: pc(int(r.u2()))}
		h.Catch = p.optClass(r.u2())
		c.Handlers = append(c.Handlers, h)
	}

	for _, a := range readRawAttrs(r, p) {
		c.Attrs = append(c.Attrs, symbolizeCodeAttr(a, p, pc))
	}
	return c
}

func symbolizeCodeAttr(a rawAttr, p *pool, pc func(int) int) Attribute {
	r := &reader{b: a.data}
	var out Attribute
	switch a.name {
	case "LineNumberTable":
		n := int(r.u2())
		t := make(LineNumberTable, 0, n)
		for i := 0; i < n; i++ {
			t = append(t, LineNumber{PC: pc(int(r.u2())), Line: r.u2()})
		}
		out = t
	case "LocalVariableTable", "LocalVariableTypeTable":
		n := int(r.u2())
		rows := make([]LocalVariable, 0, n)
		for i := 0; i < n; i++ {
			start := int(r.u2())
			length := int(r.u2())
			v := LocalVariable{Start: pc(start), End: pc(start + length)}
			v.Name = p.utf8(r.u2())
			v.Type = p.utf8(r.u2())
			v.Slot = r.u2()
			rows = append(rows, v)
		}
		if a.name == "LocalVariableTable" {
			out = LocalVariableTable(rows)
		} else {
			out = LocalVariableTypeTable(rows)
		}
	case "StackMapTable":
		out = readStackMap(r, p, pc)
	default:
		fail("unsupported Code attribute %s", a.name)
	}
	if !r.done() {
		fail("trailing bytes in attribute %s", a.name)
	}
	return out
}

func readStackMap(r *reader, p *pool, pc func(int) int) StackMapTable {
	n := int(r.u2())
	out := make(StackMapTable, 0, n)
	offset := -1
	vt := func() VType {
		t := VType{Tag: r.u1()}
		switch t.Tag {
		case VObject:
			t.Class = p.class(r.u2())
		case VUninitialized:
			t.NewPC = pc(int(r.u2()))
		default:
			if t.Tag > VUninitialized {
				fail("unknown verification type tag %d", t.Tag)
			}
		}
		return t
	}
	for i := 0; i < n; i++ {
		tag := int(r.u1())
		var f Frame
		var delta int
		switch {
		case tag <= 63:
			f.Kind, delta = FrameSame, tag
		case tag <= 127:
			f.Kind, delta = FrameSameLocals1, tag-64
			f.Stack = []VType{vt()}
		case tag == 247:
			f.Kind, delta = FrameSameLocals1, int(r.u2())
			f.Stack = []VType{vt()}
		case tag >= 248 && tag <= 250:
			f.Kind, delta = FrameChop, int(r.u2())
			f.Chop = 251 - tag
		case tag == 251:
			f.Kind, delta = FrameSame, int(r.u2())
		case tag >= 252 && tag <= 254:
			f.Kind, delta = FrameAppend, int(r.u2())
			for j := 0; j < tag-251; j++ {
				f.Locals = append(f.Locals, vt())
			}
		case tag == 255:
			f.Kind, delta = FrameFull, int(r.u2())
			for j, ln := 0, int(r.u2()); j < ln; j++ {
				f.Locals = append(f.Locals, vt())
			}
			for j, sn := 0, int(r.u2()); j < sn; j++ {
				f.Stack = append(f.Stack, vt())
			}
		default:
			fail("reserved stack map frame type %d", tag)
		}
		offset += delta + 1
		f.PC = pc(offset)
		out = append(out, f)
	}
	return out
}
