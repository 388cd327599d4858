package classfile

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonical text renderings of a member's structural pieces. Two members
// render identically iff they are structurally equal; debug-only metadata
// (line numbers, local variable names, source hints) never contributes, so
// recompiling untouched source does not register as a change. StackMapTable
// is derived from the instruction stream and is likewise left out.

// Fingerprint renders the whole member (except its name) canonically.
func (m *Member) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "access=%04x desc=%s\n", m.Access, m.Desc)
	b.WriteString(m.CodeText())
	b.WriteString(m.ConstantText())
	b.WriteString(m.ExceptionsText())
	b.WriteString(m.SignatureText())
	b.WriteString(m.AnnotationsText())
	b.WriteString(m.MetaText())
	return b.String()
}

// CodeText renders the instruction sequence and exception table, or "" for
// members without code.
func (m *Member) CodeText() string {
	c := m.Code()
	if c == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "code stack=%d locals=%d\n", c.MaxStack, c.MaxLocals)
	for _, line := range c.Listing() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, h := range c.Handlers {
		catch := h.Catch
		if catch == "" {
			catch = "<any>"
		}
		fmt.Fprintf(&b, "try %d..%d -> %d catch %s\n", h.Start, h.End, h.Target, catch)
	}
	return b.String()
}

// ConstantText renders a field's compile-time constant, or "".
func (m *Member) ConstantText() string {
	for _, a := range m.Attrs {
		if cv, ok := a.(ConstantValue); ok {
			return "const " + constText(cv.Value) + "\n"
		}
	}
	return ""
}

// ExceptionsText renders a method's declared thrown types, or "".
func (m *Member) ExceptionsText() string {
	for _, a := range m.Attrs {
		if ex, ok := a.(Exceptions); ok {
			return "throws " + strings.Join(ex, " ") + "\n"
		}
	}
	return ""
}

// SignatureText renders the generic signature, or "".
func (m *Member) SignatureText() string {
	for _, a := range m.Attrs {
		if s, ok := a.(Signature); ok {
			return "signature " + string(s) + "\n"
		}
	}
	return ""
}

// AnnotationsText renders all annotation attributes in a stable order.
func (m *Member) AnnotationsText() string {
	var lines []string
	for _, a := range m.Attrs {
		switch v := a.(type) {
		case Annotations:
			for _, an := range v.List {
				lines = append(lines, "ann "+v.attrName()+" "+annotationText(an))
			}
		case ParameterAnnotations:
			for i, list := range v.Params {
				for _, an := range list {
					lines = append(lines, fmt.Sprintf("ann %s[%d] %s", v.attrName(), i, annotationText(an)))
				}
			}
		case AnnotationDefault:
			lines = append(lines, "ann default "+elementText(v.Value))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// MetaText renders the remaining non-debug attributes (deprecation marker,
// synthetic marker, method parameters).
func (m *Member) MetaText() string {
	var lines []string
	for _, a := range m.Attrs {
		switch v := a.(type) {
		case Deprecated:
			lines = append(lines, "meta deprecated")
		case SyntheticAttr:
			lines = append(lines, "meta synthetic")
		case MethodParameters:
			for _, p := range v {
				lines = append(lines, fmt.Sprintf("meta param %q %04x", p.Name, p.Access))
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Listing renders the code as one line per instruction, indexed, suitable
// for textual diffing.
func (c *Code) Listing() []string {
	out := make([]string, 0, len(c.Insns))
	for i := range c.Insns {
		out = append(out, fmt.Sprintf("%4d: %s", i, insnText(&c.Insns[i])))
	}
	return out
}

func insnText(in *Insn) string {
	name := Mnemonic(in.Op)
	if in.Wide {
		name = "wide " + name
	}
	switch {
	case in.Op == opBipush || in.Op == opSipush || in.Op == opNewarray:
		return fmt.Sprintf("%s %d", name, in.A)
	case isLocalOp(in.Op):
		return fmt.Sprintf("%s %d", name, in.A)
	case in.Op == opIinc:
		return fmt.Sprintf("%s %d %d", name, in.A, in.B)
	case in.Op == opLdc || in.Op == opLdcW || in.Op == opLdc2W:
		return name + " " + constText(in.Val)
	case isBranchOp(in.Op) || in.Op == opGotoW || in.Op == opJsrW:
		return fmt.Sprintf("%s %d", name, in.Target)
	case in.Sw != nil:
		var b strings.Builder
		fmt.Fprintf(&b, "%s default=%d", name, in.Sw.Default)
		if in.Sw.Keys == nil {
			for j, t := range in.Sw.Targets {
				fmt.Fprintf(&b, " %d=%d", int(in.Sw.Low)+j, t)
			}
		} else {
			for j, t := range in.Sw.Targets {
				fmt.Fprintf(&b, " %d=%d", in.Sw.Keys[j], t)
			}
		}
		return b.String()
	case isFieldOp(in.Op) || isInvokeOp(in.Op) && in.Op != opInvokedynamic:
		return fmt.Sprintf("%s %s.%s%s", name, in.Ref.Owner, in.Ref.Name, refDesc(in.Ref))
	case in.Op == opInvokedynamic:
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s%s bsm=%s", name, in.Indy.Name, in.Indy.Desc, constText(in.Indy.BSM))
		for _, a := range in.Indy.Args {
			b.WriteByte(' ')
			b.WriteString(constText(a))
		}
		return b.String()
	case isTypeOp(in.Op):
		return name + " " + in.Type
	case in.Op == opMultianew:
		return fmt.Sprintf("%s %s %d", name, in.Type, in.A)
	default:
		return name
	}
}

func refDesc(r MemberRef) string {
	if strings.HasPrefix(r.Desc, "(") {
		return r.Desc
	}
	return ":" + r.Desc
}

func constText(c Const) string {
	switch v := c.(type) {
	case IntConst:
		return strconv.FormatInt(int64(v), 10)
	case LongConst:
		return strconv.FormatInt(int64(v), 10) + "L"
	case FloatConst:
		return "0x" + strconv.FormatUint(uint64(math.Float32bits(float32(v))), 16) + "f"
	case DoubleConst:
		return "0x" + strconv.FormatUint(math.Float64bits(float64(v)), 16) + "d"
	case StringConst:
		return strconv.Quote(string(v))
	case ClassConst:
		return "class " + string(v)
	case MethodTypeConst:
		return "mtype " + string(v)
	case Handle:
		return fmt.Sprintf("handle(%d %s.%s%s)", v.Kind, v.Owner, v.Name, refDesc(MemberRef{Desc: v.Desc}))
	case DynamicConst:
		var b strings.Builder
		fmt.Fprintf(&b, "condy(%s%s bsm=%s", v.Name, v.Desc, constText(v.BSM))
		for _, a := range v.Args {
			b.WriteByte(' ')
			b.WriteString(constText(a))
		}
		b.WriteByte(')')
		return b.String()
	default:
		return fmt.Sprintf("?%T", c)
	}
}

func annotationText(a Annotation) string {
	var b strings.Builder
	b.WriteString(a.Type)
	b.WriteByte('(')
	for i, p := range a.Pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Name + "=" + elementText(p.Value))
	}
	b.WriteByte(')')
	return b.String()
}

func elementText(ev ElementValue) string {
	switch ev.Tag {
	case 'e':
		return ev.TypeName + "." + ev.ConstName
	case 'c':
		return "class " + ev.Class
	case '@':
		return annotationText(*ev.Nested)
	case '[':
		parts := make([]string, 0, len(ev.Array))
		for _, e := range ev.Array {
			parts = append(parts, elementText(e))
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return constText(ev.Const)
	}
}

// HandleRefs collects, in instruction order, the member keys of method
// handles inside the method's invokedynamic bootstrap arguments that target
// the given owner. Keys are "<owner>#<name><desc>" and deduplicated.
func (m *Member) HandleRefs(owner string) []string {
	c := m.Code()
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for i := range c.Insns {
		indy := c.Insns[i].Indy
		if indy == nil {
			continue
		}
		for _, a := range indy.Args {
			h, ok := a.(Handle)
			if !ok || h.Owner != owner {
				continue
			}
			key := h.Owner + "#" + h.Name + h.Desc
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}
