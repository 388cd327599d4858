package classfile

// decodeInsns decodes a code array into symbolic instructions. The returned
// map translates bytecode offsets to instruction indexes; it is consumed by
// the surrounding attribute readers and discarded.
func decodeInsns(code []byte, p *pool) ([]Insn, map[int]int) {
	var insns []Insn
	pcIndex := make(map[int]int)

	r := &reader{b: code}
	for !r.done() {
		start := r.off
		pcIndex[start] = len(insns)
		insns = append(insns, decodeOne(r, p, start))
	}

	// Branch operands were captured as absolute byte offsets; rewrite them
	// as instruction indexes so the stream survives re-encoding.
	toIndex := func(off int) int {
		idx, ok := pcIndex[off]
		if !ok {
			fail("branch target %d is not an instruction boundary", off)
		}
		return idx
	}
	for i := range insns {
		in := &insns[i]
		switch {
		case isBranchOp(in.Op) || in.Op == opGotoW || in.Op == opJsrW:
			in.Target = toIndex(in.Target)
		case in.Sw != nil:
			in.Sw.Default = toIndex(in.Sw.Default)
			for j, t := range in.Sw.Targets {
				in.Sw.Targets[j] = toIndex(t)
			}
		}
	}
	return insns, pcIndex
}

func decodeOne(r *reader, p *pool, start int) Insn {
	op := r.u1()
	in := Insn{Op: op}
	switch {
	case op == opWide:
		in.Op = r.u1()
		in.Wide = true
		if !isLocalOp(in.Op) && in.Op != opIinc {
			fail("wide prefix before opcode 0x%02x", in.Op)
		}
		in.A = int(r.u2())
		if in.Op == opIinc {
			in.B = int(int16(r.u2()))
		}
	case op == opBipush:
		in.A = int(int8(r.u1()))
	case op == opSipush:
		in.A = int(int16(r.u2()))
	case op == opLdc:
		in.Val = p.constant(uint16(r.u1()))
	case op == opLdcW || op == opLdc2W:
		in.Val = p.constant(r.u2())
	case isLocalOp(op):
		in.A = int(r.u1())
	case op == opIinc:
		in.A = int(r.u1())
		in.B = int(int8(r.u1()))
	case isBranchOp(op):
		in.Target = start + int(int16(r.u2()))
	case op == opGotoW || op == opJsrW:
		in.Target = start + int(int32(r.u4()))
	case op == opTableswitch:
		for (r.off % 4) != 0 {
			if r.u1() != 0 {
				fail("nonzero switch padding at offset %d", r.off-1)
			}
		}
		sw := &Switch{Default: start + int(int32(r.u4()))}
		sw.Low = int32(r.u4())
		high := int32(r.u4())
		if high < sw.Low {
			fail("tableswitch bounds %d..%d", sw.Low, high)
		}
		for i := sw.Low; i <= high; i++ {
			sw.Targets = append(sw.Targets, start+int(int32(r.u4())))
		}
		in.Sw = sw
	case op == opLookupswitch:
		for (r.off % 4) != 0 {
			if r.u1() != 0 {
				fail("nonzero switch padding at offset %d", r.off-1)
			}
		}
		sw := &Switch{Default: start + int(int32(r.u4()))}
		n := int(int32(r.u4()))
		for i := 0; i < n; i++ {
			sw.Keys = append(sw.Keys, int32(r.u4()))
			sw.Targets = append(sw.Targets, start+int(int32(r.u4())))
		}
		in.Sw = sw
	case isFieldOp(op):
		in.Ref = p.memberRef(r.u2())
	case op == opInvokevirtual || op == opInvokespecial || op == opInvokestatic:
		in.Ref = p.memberRef(r.u2())
	case op == opInvokeiface:
		in.Ref = p.memberRef(r.u2())
		r.u1() // count, recomputed from the descriptor on encode
		if r.u1() != 0 {
			fail("invokeinterface trailing byte not zero")
		}
	case op == opInvokedynamic:
		e := p.at(r.u2(), tagInvokeDynamic)
		s := p.spec(e.n1)
		name, desc := p.nameAndType(e.n2)
		in.Indy = &InvokeDynamicInsn{Name: name, Desc: desc, BSM: s.method, Args: s.args}
		if r.u1() != 0 || r.u1() != 0 {
			fail("invokedynamic trailing bytes not zero")
		}
	case isTypeOp(op):
		in.Type = p.class(r.u2())
	case op == opNewarray:
		in.A = int(r.u1())
	case op == opMultianew:
		in.Type = p.class(r.u2())
		in.A = int(r.u1())
	default:
		if Mnemonic(op) == "" {
			fail("unknown opcode 0x%02x at offset %d", op, start)
		}
		// No operands.
	}
	return in
}

// insnSize returns the encoded size of an instruction placed at the given
// byte offset. Switch instructions pad to a 4-byte boundary relative to the
// start of the code array, so size depends on placement.
func insnSize(in *Insn, offset int, w *classWriter) int {
	switch {
	case in.Wide:
		if in.Op == opIinc {
			return 6
		}
		return 4
	case in.Op == opBipush || isLocalOp(in.Op) || in.Op == opNewarray:
		return 2
	case in.Op == opSipush || isBranchOp(in.Op) || isFieldOp(in.Op) || isTypeOp(in.Op):
		return 3
	case in.Op == opInvokevirtual || in.Op == opInvokespecial || in.Op == opInvokestatic:
		return 3
	case in.Op == opIinc:
		return 3
	case in.Op == opLdc || in.Op == opLdcW:
		if w.constIndex(in.Val) <= 0xff {
			return 2
		}
		return 3
	case in.Op == opLdc2W:
		return 3
	case in.Op == opGotoW || in.Op == opJsrW:
		return 5
	case in.Op == opInvokeiface || in.Op == opInvokedynamic:
		return 5
	case in.Op == opMultianew:
		return 4
	case in.Op == opTableswitch:
		pad := (4 - (offset+1)%4) % 4
		return 1 + pad + 12 + 4*len(in.Sw.Targets)
	case in.Op == opLookupswitch:
		pad := (4 - (offset+1)%4) % 4
		return 1 + pad + 8 + 8*len(in.Sw.Keys)
	default:
		return 1
	}
}

// encodeInsns lays out and emits a symbolic instruction stream against the
// writer's pool. It returns the code bytes and the instruction offset table
// (with one extra entry for the end-of-code offset).
func encodeInsns(insns []Insn, w *classWriter) ([]byte, []int) {
	// Placement pass: offsets are computed front to back; each size only
	// depends on its own offset, so a single pass settles the layout.
	// Constants are interned here, fixing ldc widths before emission.
	offs := make([]int, len(insns)+1)
	off := 0
	for i := range insns {
		offs[i] = off
		off += insnSize(&insns[i], off, w)
	}
	offs[len(insns)] = off

	buf := make([]byte, 0, off)
	put1 := func(v int) { buf = append(buf, byte(v)) }
	put2 := func(v int) { buf = append(buf, byte(v>>8), byte(v)) }
	put4 := func(v int) { buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }
	branch16 := func(from, target int) {
		d := offs[target] - from
		if d < -0x8000 || d > 0x7fff {
			fail("branch displacement %d overflows a 16-bit offset", d)
		}
		put2(d)
	}

	for i := range insns {
		in := &insns[i]
		start := offs[i]
		switch {
		case in.Wide:
			put1(opWide)
			put1(int(in.Op))
			put2(in.A)
			if in.Op == opIinc {
				put2(in.B)
			}
		case in.Op == opBipush || isLocalOp(in.Op) || in.Op == opNewarray:
			put1(int(in.Op))
			put1(in.A)
		case in.Op == opSipush:
			put1(int(in.Op))
			put2(in.A)
		case in.Op == opIinc:
			put1(int(in.Op))
			put1(in.A)
			put1(in.B)
		case in.Op == opLdc || in.Op == opLdcW:
			idx := w.constIndex(in.Val)
			if idx <= 0xff {
				put1(opLdc)
				put1(int(idx))
			} else {
				put1(opLdcW)
				put2(int(idx))
			}
		case in.Op == opLdc2W:
			put1(opLdc2W)
			put2(int(w.constIndex(in.Val)))
		case isBranchOp(in.Op):
			put1(int(in.Op))
			branch16(start, in.Target)
		case in.Op == opGotoW || in.Op == opJsrW:
			put1(int(in.Op))
			put4(offs[in.Target] - start)
		case in.Op == opTableswitch:
			put1(opTableswitch)
			for len(buf)%4 != 0 {
				put1(0)
			}
			put4(offs[in.Sw.Default] - start)
			put4(int(in.Sw.Low))
			put4(int(in.Sw.Low) + len(in.Sw.Targets) - 1)
			for _, t := range in.Sw.Targets {
				put4(offs[t] - start)
			}
		case in.Op == opLookupswitch:
			put1(opLookupswitch)
			for len(buf)%4 != 0 {
				put1(0)
			}
			put4(offs[in.Sw.Default] - start)
			put4(len(in.Sw.Keys))
			for j, k := range in.Sw.Keys {
				put4(int(k))
				put4(offs[in.Sw.Targets[j]] - start)
			}
		case isFieldOp(in.Op):
			put1(int(in.Op))
			put2(int(w.fieldRef(in.Ref)))
		case in.Op == opInvokevirtual || in.Op == opInvokespecial || in.Op == opInvokestatic:
			put1(int(in.Op))
			put2(int(w.methodRef(in.Ref)))
		case in.Op == opInvokeiface:
			put1(opInvokeiface)
			put2(int(w.methodRef(in.Ref)))
			put1(argSlots(in.Ref.Desc) + 1)
			put1(0)
		case in.Op == opInvokedynamic:
			put1(opInvokedynamic)
			put2(int(w.invokeDynamic(in.Indy)))
			put1(0)
			put1(0)
		case isTypeOp(in.Op):
			put1(int(in.Op))
			put2(int(w.classRef(in.Type)))
		case in.Op == opMultianew:
			put1(opMultianew)
			put2(int(w.classRef(in.Type)))
			put1(in.A)
		default:
			put1(int(in.Op))
		}
		if len(buf) != offs[i+1] {
			fail("encoded size drifted at instruction %d", i)
		}
	}
	return buf, offs
}
