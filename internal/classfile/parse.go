package classfile

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed wraps every structural failure raised while decoding class
// bytes, so callers can treat any corrupt input uniformly.
var ErrMalformed = errors.New("malformed class data")

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8            = 1
	tagInteger         = 3
	tagFloat           = 4
	tagLong            = 5
	tagDouble          = 6
	tagClass           = 7
	tagString          = 8
	tagFieldref        = 9
	tagMethodref       = 10
	tagInterfaceMethod = 11
	tagNameAndType     = 12
	tagMethodHandle    = 15
	tagMethodType      = 16
	tagDynamic         = 17
	tagInvokeDynamic   = 18
)

type corrupt struct{ err error }

func fail(format string, args ...any) {
	panic(corrupt{fmt.Errorf(format, args...)})
}

// reader walks the byte stream; out-of-range reads abort via panic and are
// converted to an error at the Parse boundary.
type reader struct {
	b   []byte
	off int
}

func (r *reader) u1() uint8 {
	if r.off+1 > len(r.b) {
		fail("truncated at offset %d", r.off)
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if r.off+2 > len(r.b) {
		fail("truncated at offset %d", r.off)
	}
	v := uint16(r.b[r.off])<<8 | uint16(r.b[r.off+1])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if r.off+4 > len(r.b) {
		fail("truncated at offset %d", r.off)
	}
	v := uint32(r.b[r.off])<<24 | uint32(r.b[r.off+1])<<16 | uint32(r.b[r.off+2])<<8 | uint32(r.b[r.off+3])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if n < 0 || r.off+n > len(r.b) {
		fail("truncated at offset %d", r.off)
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) done() bool { return r.off >= len(r.b) }

// cpEntry is one raw constant pool slot before resolution.
type cpEntry struct {
	tag byte
	n1  uint16
	n2  uint16
	num uint64
	str string
}

// pool resolves raw constant pool entries into symbolic values.
type pool struct {
	entries []cpEntry // index-aligned; entry 0 unused
	bsm     []bsmSpec // bootstrap specifiers, filled after class attrs are read
}

type bsmSpec struct {
	method Handle
	args   []Const
}

func (p *pool) at(i uint16, tag byte) cpEntry {
	if int(i) == 0 || int(i) >= len(p.entries) {
		fail("constant pool index %d out of range", i)
	}
	e := p.entries[i]
	if tag != 0 && e.tag != tag {
		fail("constant pool index %d: want tag %d, have %d", i, tag, e.tag)
	}
	return e
}

func (p *pool) utf8(i uint16) string { return p.at(i, tagUtf8).str }

func (p *pool) class(i uint16) string { return p.utf8(p.at(i, tagClass).n1) }

// optClass allows index zero (absent class), used by exception handlers and
// EnclosingMethod.
func (p *pool) optClass(i uint16) string {
	if i == 0 {
		return ""
	}
	return p.class(i)
}

func (p *pool) nameAndType(i uint16) (name, desc string) {
	e := p.at(i, tagNameAndType)
	return p.utf8(e.n1), p.utf8(e.n2)
}

func (p *pool) memberRef(i uint16) MemberRef {
	e := p.at(i, 0)
	if e.tag != tagFieldref && e.tag != tagMethodref && e.tag != tagInterfaceMethod {
		fail("constant pool index %d: not a member reference (tag %d)", i, e.tag)
	}
	name, desc := p.nameAndType(e.n2)
	return MemberRef{Owner: p.class(e.n1), Name: name, Desc: desc, Itf: e.tag == tagInterfaceMethod}
}

func (p *pool) handle(i uint16) Handle {
	e := p.at(i, tagMethodHandle)
	ref := p.memberRef(e.n2)
	return Handle{Kind: uint8(e.n1), Owner: ref.Owner, Name: ref.Name, Desc: ref.Desc, Itf: ref.Itf}
}

func (p *pool) spec(i uint16) bsmSpec {
	if int(i) >= len(p.bsm) {
		fail("bootstrap method index %d out of range", i)
	}
	return p.bsm[i]
}

// constant resolves a loadable constant.
func (p *pool) constant(i uint16) Const {
	e := p.at(i, 0)
	switch e.tag {
	case tagInteger:
		return IntConst(int32(uint32(e.num)))
	case tagFloat:
		return FloatConst(math.Float32frombits(uint32(e.num)))
	case tagLong:
		return LongConst(int64(e.num))
	case tagDouble:
		return DoubleConst(math.Float64frombits(e.num))
	case tagString:
		return StringConst(p.utf8(e.n1))
	case tagClass:
		return ClassConst(p.utf8(e.n1))
	case tagMethodType:
		return MethodTypeConst(p.utf8(e.n1))
	case tagMethodHandle:
		return p.handle(i)
	case tagDynamic:
		s := p.spec(e.n1)
		name, desc := p.nameAndType(e.n2)
		return DynamicConst{Name: name, Desc: desc, BSM: s.method, Args: s.args}
	default:
		fail("constant pool index %d: tag %d is not loadable", i, e.tag)
		return nil
	}
}

type rawAttr struct {
	name string
	data []byte
}

type rawMember struct {
	access uint16
	name   string
	desc   string
	attrs  []rawAttr
}

// Parse decodes class bytes into the symbolic model. Every structural
// problem, including attributes the codec does not understand, returns an
// error wrapping ErrMalformed.
func Parse(data []byte) (c *Class, err error) {
	defer func() {
		if v := recover(); v != nil {
			cr, ok := v.(corrupt)
			if !ok {
				panic(v)
			}
			c, err = nil, fmt.Errorf("%w: %s", ErrMalformed, cr.err)
		}
	}()

	r := &reader{b: data}
	if r.u4() != magic {
		fail("bad magic")
	}
	minor := r.u2()
	major := r.u2()

	p := &pool{entries: readPool(r)}

	access := r.u2()
	name := p.class(r.u2())
	super := p.optClass(r.u2())
	ifaceCount := int(r.u2())
	ifaces := make([]string, 0, ifaceCount)
	for i := 0; i < ifaceCount; i++ {
		ifaces = append(ifaces, p.class(r.u2()))
	}

	rawFields := readRawMembers(r, p)
	rawMethods := readRawMembers(r, p)
	rawClassAttrs := readRawAttrs(r, p)
	if !r.done() {
		fail("%d trailing bytes after class attributes", len(r.b)-r.off)
	}

	// Bootstrap methods resolve before any code is symbolized, so that
	// invokedynamic and dynamic constants can inline their specifiers.
	for _, a := range rawClassAttrs {
		if a.name == "BootstrapMethods" {
			p.bsm = readBootstrapMethods(a.data, p)
		}
	}

	c = &Class{
		Minor:      minor,
		Major:      major,
		Access:     access,
		Name:       name,
		Super:      super,
		Interfaces: ifaces,
	}
	for _, rm := range rawFields {
		c.Fields = append(c.Fields, symbolizeMember(rm, p))
	}
	for _, rm := range rawMethods {
		c.Methods = append(c.Methods, symbolizeMember(rm, p))
	}
	for _, a := range rawClassAttrs {
		if a.name == "BootstrapMethods" {
			continue // folded into invokedynamic instructions and dynamic constants
		}
		c.Attrs = append(c.Attrs, symbolizeAttr(a, p, nil))
	}
	return c, nil
}

func readPool(r *reader) []cpEntry {
	count := int(r.u2())
	entries := make([]cpEntry, count)
	for i := 1; i < count; i++ {
		tag := r.u1()
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			e.str = string(r.bytes(int(r.u2())))
		case tagInteger, tagFloat:
			e.num = uint64(r.u4())
		case tagLong, tagDouble:
			e.num = uint64(r.u4())<<32 | uint64(r.u4())
		case tagClass, tagString, tagMethodType:
			e.n1 = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethod, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.n1 = r.u2()
			e.n2 = r.u2()
		case tagMethodHandle:
			e.n1 = uint16(r.u1())
			e.n2 = r.u2()
		default:
			fail("constant pool entry %d: unknown tag %d", i, tag)
		}
		entries[i] = e
		if tag == tagLong || tag == tagDouble {
			i++ // wide constants take two slots
		}
	}
	return entries
}

func readRawMembers(r *reader, p *pool) []rawMember {
	count := int(r.u2())
	out := make([]rawMember, 0, count)
	for i := 0; i < count; i++ {
		m := rawMember{access: r.u2()}
		m.name = p.utf8(r.u2())
		m.desc = p.utf8(r.u2())
		m.attrs = readRawAttrs(r, p)
		out = append(out, m)
	}
	return out
}

func readRawAttrs(r *reader, p *pool) []rawAttr {
	count := int(r.u2())
	out := make([]rawAttr, 0, count)
	for i := 0; i < count; i++ {
		name := p.utf8(r.u2())
		data := r.bytes(int(r.u4()))
		out = append(out, rawAttr{name: name, data: data})
	}
	return out
}

func readBootstrapMethods(data []byte, p *pool) []bsmSpec {
	r := &reader{b: data}
	count := int(r.u2())
	out := make([]bsmSpec, 0, count)
	for i := 0; i < count; i++ {
		s := bsmSpec{method: p.handle(r.u2())}
		argc := int(r.u2())
		for j := 0; j < argc; j++ {
			s.args = append(s.args, p.constant(r.u2()))
		}
		out = append(out, s)
	}
	if !r.done() {
		fail("trailing bytes in BootstrapMethods")
	}
	return out
}

func symbolizeMember(rm rawMember, p *pool) *Member {
	m := &Member{Access: rm.access, Name: rm.name, Desc: rm.desc}
	for _, a := range rm.attrs {
		m.Attrs = append(m.Attrs, symbolizeAttr(a, p, m))
	}
	return m
}
