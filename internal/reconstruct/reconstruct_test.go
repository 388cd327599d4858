package reconstruct

import (
	"strings"
	"testing"

	"class-merger/internal/changes"
	"class-merger/internal/classfile"
)

const (
	opNop          = 0x00
	opReturn       = 0xb1
	opInvokestatic = 0xb8
)

func method(name, desc string, ops ...byte) *classfile.Member {
	insns := make([]classfile.Insn, 0, len(ops))
	for _, op := range ops {
		insns = append(insns, classfile.Insn{Op: op})
	}
	return &classfile.Member{
		Access: classfile.AccPublic,
		Name:   name,
		Desc:   desc,
		Attrs:  []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1, Insns: insns}},
	}
}

func classBytes(t *testing.T, c *classfile.Class) []byte {
	t.Helper()
	data, err := c.Bytes()
	if err != nil {
		t.Fatalf("serialize %s: %v", c.Name, err)
	}
	return data
}

func fooClass(members ...*classfile.Member) *classfile.Class {
	c := &classfile.Class{
		Major:  52,
		Access: classfile.AccPublic | classfile.AccSuper,
		Name:   "test/Foo",
		Super:  "java/lang/Object",
	}
	for _, m := range members {
		if strings.HasPrefix(m.Desc, "(") {
			c.Methods = append(c.Methods, m)
		} else {
			c.Fields = append(c.Fields, m)
		}
	}
	return c
}

func TestEndToEndFieldAndMethodMerge(t *testing.T) {
	x := &classfile.Member{Access: classfile.AccPrivate, Name: "x", Desc: "I"}
	y := &classfile.Member{Access: classfile.AccPrivate, Name: "y", Desc: "I"}

	base := classBytes(t, fooClass(x, method("bar", "()V", opReturn)))
	patch := classBytes(t, fooClass(x, y, method("bar", "()V", opNop, opReturn)))

	ann := changes.NewAnnotator()
	res, err := Reconstruct(base, patch, nil, ann)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	merged, err := classfile.Parse(res.Data)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	if len(merged.Fields) != 2 || merged.Fields[0].Name != "x" || merged.Fields[1].Name != "y" {
		t.Fatalf("fields = %v", memberNames(merged.Fields))
	}
	listing := merged.Methods[0].Code().Listing()
	if len(listing) != 2 || !strings.Contains(listing[0], "nop") {
		t.Fatalf("bar body not taken from patch: %v", listing)
	}

	manifest := ann.Manifest()
	if len(manifest) != 1 {
		t.Fatalf("manifest = %v", manifest)
	}
	c := manifest[0]
	if len(c.AddedFields) != 1 || c.AddedFields[0] != "y;;I" {
		t.Fatalf("added fields = %v", c.AddedFields)
	}
	if len(c.ChangedMethods) != 1 || !strings.HasPrefix(c.ChangedMethods[0], "bar()V") {
		t.Fatalf("changed methods = %v", c.ChangedMethods)
	}
}

func TestLostMembersAreOmitted(t *testing.T) {
	base := classBytes(t, fooClass(
		method("bar", "()V", opReturn),
		method("gone", "()V", opReturn),
	))
	patch := classBytes(t, fooClass(method("bar", "()V", opReturn)))

	res, err := Reconstruct(base, patch, nil, nil)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	merged, err := classfile.Parse(res.Data)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	if len(merged.Methods) != 1 || merged.Methods[0].Name != "bar" {
		t.Fatalf("methods = %v", memberNames(merged.Methods))
	}
}

func TestUnchangedMembersKeepBaseDebugInfo(t *testing.T) {
	baseBar := method("bar", "()V", opReturn)
	baseCode := baseBar.Code()
	baseCode.Attrs = append(baseCode.Attrs, classfile.LineNumberTable{{PC: 0, Line: 10}})

	patchBar := method("bar", "()V", opReturn)
	patchCode := patchBar.Code()
	patchCode.Attrs = append(patchCode.Attrs, classfile.LineNumberTable{{PC: 0, Line: 99}})

	res, err := Reconstruct(classBytes(t, fooClass(baseBar)), classBytes(t, fooClass(patchBar)), nil, nil)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	merged, err := classfile.Parse(res.Data)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	for _, a := range merged.Methods[0].Code().Attrs {
		if lnt, ok := a.(classfile.LineNumberTable); ok {
			if lnt[0].Line != 10 {
				t.Fatalf("unchanged method not taken from base: line %d", lnt[0].Line)
			}
			return
		}
	}
	t.Fatalf("line number table missing from merged method")
}

func invoker(name, target string) *classfile.Member {
	m := method(name, "()V")
	code := m.Code()
	code.Insns = []classfile.Insn{
		{Op: opInvokestatic, Ref: classfile.MemberRef{Owner: "test/Foo", Name: target, Desc: "()V"}},
		{Op: opReturn},
	}
	return m
}

func TestUnresolvedLinkFails(t *testing.T) {
	base := classBytes(t, fooClass(method("bar", "()V", opReturn)))
	patch := classBytes(t, fooClass(
		method("bar", "()V", opReturn),
		invoker("fresh", "missing"),
	))

	_, err := Reconstruct(base, patch, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("err = %v", err)
	}
}

func TestReferenceClassResolvesLink(t *testing.T) {
	base := classBytes(t, fooClass(method("bar", "()V", opReturn)))
	patch := classBytes(t, fooClass(
		method("bar", "()V", opReturn),
		invoker("fresh", "helper"),
	))
	reference := classBytes(t, fooClass(
		method("bar", "()V", opReturn),
		method("helper", "()V", opReturn),
	))

	if _, err := Reconstruct(base, patch, reference, nil); err != nil {
		t.Fatalf("reconstruct with reference: %v", err)
	}
}

func memberNames(members []*classfile.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Name)
	}
	return out
}
