package changes

import (
	"strings"

	"class-merger/internal/classfile"
)

// ChangeSet describes what differs inside a modified pair. It exists for
// reporting only; merge decisions never consult it.
type ChangeSet uint8

const (
	ChangeAccess ChangeSet = 1 << iota
	ChangeCode
	ChangeValue
	ChangeExceptions
	ChangeSignature
	ChangeAnnotations
	ChangeMeta
)

var changeNames = []struct {
	bit  ChangeSet
	name string
}{
	{ChangeAccess, "access"},
	{ChangeCode, "code"},
	{ChangeValue, "value"},
	{ChangeExceptions, "exceptions"},
	{ChangeSignature, "signature"},
	{ChangeAnnotations, "annotations"},
	{ChangeMeta, "meta"},
}

func (cs ChangeSet) String() string {
	if cs == 0 {
		return "none"
	}
	var parts []string
	for _, cn := range changeNames {
		if cs&cn.bit != 0 {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, "+")
}

// Compare reports whether two versions of one member differ structurally,
// ignoring debug-only metadata, and which pieces differ. Line-number tables
// and local variable names never count: a bare recompilation must not
// register as a change.
func Compare(original, patched *classfile.Member) (bool, ChangeSet) {
	var cs ChangeSet
	if original.Access != patched.Access {
		cs |= ChangeAccess
	}
	if original.CodeText() != patched.CodeText() {
		cs |= ChangeCode
	}
	if original.ConstantText() != patched.ConstantText() {
		cs |= ChangeValue
	}
	if original.ExceptionsText() != patched.ExceptionsText() {
		cs |= ChangeExceptions
	}
	if original.SignatureText() != patched.SignatureText() {
		cs |= ChangeSignature
	}
	if original.AnnotationsText() != patched.AnnotationsText() {
		cs |= ChangeAnnotations
	}
	if original.MetaText() != patched.MetaText() {
		cs |= ChangeMeta
	}
	return cs != 0, cs
}
