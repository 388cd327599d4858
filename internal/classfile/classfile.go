// Package classfile reads and writes compiled JVM class files through a
// fully symbolic model: the constant pool is resolved away while parsing and
// rebuilt from scratch while writing. That makes members portable between
// classes — a field or method lifted out of one class can be emitted into
// another without any cross-pool index translation.
//
// Goals:
//   - Symbolic members: name, descriptor, access flags, typed attributes
//   - Decoded code bodies: instructions with symbolic operands, branch
//     targets as instruction indexes, invokedynamic call sites carrying
//     their bootstrap specifier inline
//   - Deterministic serialization (interned pool, stable entry order)
//   - Debug-metadata-blind fingerprints for structural comparison
package classfile

// Access flags shared by classes, fields and methods.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccVolatile   = 0x0040
	AccBridge     = 0x0040
	AccTransient  = 0x0080
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

// Class is a parsed class file. Name and Super are internal names
// (slash-separated); Super is empty only for java/lang/Object.
type Class struct {
	Minor, Major uint16
	Access       uint16
	Name         string
	Super        string
	Interfaces   []string
	Fields       []*Member
	Methods      []*Member
	Attrs        []Attribute
}

// Member is a field or method. Attrs holds the symbolic attribute list;
// methods with code carry a *Code attribute.
type Member struct {
	Access uint16
	Name   string
	Desc   string
	Attrs  []Attribute
}

// Key returns the name+descriptor identity of the member, unique within
// one class's field or method list.
func (m *Member) Key() string { return m.Name + m.Desc }

// Synthetic reports whether the compiler generated this member.
func (m *Member) Synthetic() bool { return m.Access&AccSynthetic != 0 }

// Renamed returns a copy of the member under a new name. The attribute list
// is shared; callers treat members as immutable.
func (m *Member) Renamed(name string) *Member {
	c := *m
	c.Name = name
	return &c
}

// Code locates the member's Code attribute, or nil for abstract/native
// methods and fields.
func (m *Member) Code() *Code {
	for _, a := range m.Attrs {
		if c, ok := a.(*Code); ok {
			return c
		}
	}
	return nil
}

// MemberRef is a symbolic field or method reference. Itf marks references
// that resolve through an interface.
type MemberRef struct {
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

// Method handle kinds (JVMS table 5.4.3.5).
const (
	RefGetField = 1 + iota
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

// Handle is a CONSTANT_MethodHandle: a member reference plus an access kind.
type Handle struct {
	Kind  uint8
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

// IsField reports whether the handle's kind addresses a field.
func (h Handle) IsField() bool { return h.Kind >= RefGetField && h.Kind <= RefPutStatic }

// Const is a loadable constant pool value in symbolic form.
// Implementations: IntConst, LongConst, FloatConst, DoubleConst,
// StringConst, ClassConst, MethodTypeConst, Handle and DynamicConst.
type Const interface {
	isConst()
}

type (
	// IntConst is a CONSTANT_Integer value.
	IntConst int32
	// LongConst is a CONSTANT_Long value.
	LongConst int64
	// FloatConst is a CONSTANT_Float value.
	FloatConst float32
	// DoubleConst is a CONSTANT_Double value.
	DoubleConst float64
	// StringConst is a CONSTANT_String value.
	StringConst string
	// ClassConst is a CONSTANT_Class internal name or array descriptor.
	ClassConst string
	// MethodTypeConst is a CONSTANT_MethodType descriptor.
	MethodTypeConst string
)

// DynamicConst is a CONSTANT_Dynamic value produced by a bootstrap method.
type DynamicConst struct {
	Name string
	Desc string
	BSM  Handle
	Args []Const
}

func (IntConst) isConst()        {}
func (LongConst) isConst()       {}
func (FloatConst) isConst()      {}
func (DoubleConst) isConst()     {}
func (StringConst) isConst()     {}
func (ClassConst) isConst()      {}
func (MethodTypeConst) isConst() {}
func (Handle) isConst()          {}
func (DynamicConst) isConst()    {}

// Attribute is a symbolic class, field, method or code attribute.
type Attribute interface {
	attrName() string
}

type (
	// SourceFile names the compilation unit (debug metadata).
	SourceFile string
	// Signature is a generic type signature.
	Signature string
	// Deprecated marks a deprecated element.
	Deprecated struct{}
	// SyntheticAttr marks a compiler-generated element (pre-flags form).
	SyntheticAttr struct{}
	// Exceptions lists a method's declared thrown types (internal names).
	Exceptions []string
	// ConstantValue is a field's compile-time constant.
	ConstantValue struct{ Value Const }
	// NestHost names the nest host class.
	NestHost string
	// NestMembers lists nest member classes.
	NestMembers []string
	// SourceDebugExtension carries opaque debug data (no pool references).
	SourceDebugExtension []byte
)

func (SourceFile) attrName() string           { return "SourceFile" }
func (Signature) attrName() string            { return "Signature" }
func (Deprecated) attrName() string           { return "Deprecated" }
func (SyntheticAttr) attrName() string        { return "Synthetic" }
func (Exceptions) attrName() string           { return "Exceptions" }
func (ConstantValue) attrName() string        { return "ConstantValue" }
func (NestHost) attrName() string             { return "NestHost" }
func (NestMembers) attrName() string          { return "NestMembers" }
func (SourceDebugExtension) attrName() string { return "SourceDebugExtension" }

// EnclosingMethod records the immediately enclosing method of a local or
// anonymous class. Name/Desc are empty when the class is not enclosed by a
// method body.
type EnclosingMethod struct {
	Owner string
	Name  string
	Desc  string
}

func (EnclosingMethod) attrName() string { return "EnclosingMethod" }

// InnerClass is one InnerClasses table row. Outer and Name may be empty for
// anonymous classes.
type InnerClass struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

// InnerClasses is the InnerClasses class attribute.
type InnerClasses []InnerClass

func (InnerClasses) attrName() string { return "InnerClasses" }

// MethodParameter is one MethodParameters row; Name may be empty.
type MethodParameter struct {
	Name   string
	Access uint16
}

// MethodParameters is the MethodParameters method attribute.
type MethodParameters []MethodParameter

func (MethodParameters) attrName() string { return "MethodParameters" }

// Annotation is a single annotation: a field descriptor of the annotation
// type plus named element values.
type Annotation struct {
	Type  string
	Pairs []ElementPair
}

// ElementPair is one name=value element inside an annotation.
type ElementPair struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Tag selects the variant
// (JVMS 4.7.16.1); only the fields for that variant are populated.
type ElementValue struct {
	Tag       byte
	Const     Const      // B C D F I J S Z s
	TypeName  string     // e: enum type descriptor
	ConstName string     // e: enum constant name
	Class     string     // c: class descriptor
	Nested    *Annotation
	Array     []ElementValue
}

// Annotations is a Runtime(In)VisibleAnnotations attribute.
type Annotations struct {
	Visible bool
	List    []Annotation
}

func (a Annotations) attrName() string {
	if a.Visible {
		return "RuntimeVisibleAnnotations"
	}
	return "RuntimeInvisibleAnnotations"
}

// ParameterAnnotations is a Runtime(In)VisibleParameterAnnotations attribute.
type ParameterAnnotations struct {
	Visible bool
	Params  [][]Annotation
}

func (a ParameterAnnotations) attrName() string {
	if a.Visible {
		return "RuntimeVisibleParameterAnnotations"
	}
	return "RuntimeInvisibleParameterAnnotations"
}

// AnnotationDefault is an annotation interface method's default value.
type AnnotationDefault struct {
	Value ElementValue
}

func (AnnotationDefault) attrName() string { return "AnnotationDefault" }

// Code is a method body. Branch targets, exception ranges and frame offsets
// are instruction indexes; an index equal to len(Insns) denotes the end of
// the code array.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Insns     []Insn
	Handlers  []Handler
	Attrs     []Attribute
}

func (*Code) attrName() string { return "Code" }

// Handler is one exception table row. End is exclusive. Catch is the caught
// class's internal name, empty for catch-all.
type Handler struct {
	Start  int
	End    int
	Target int
	Catch  string
}

// LineNumber maps an instruction index to a source line.
type LineNumber struct {
	PC   int
	Line uint16
}

// LineNumberTable is debug metadata inside Code.
type LineNumberTable []LineNumber

func (LineNumberTable) attrName() string { return "LineNumberTable" }

// LocalVariable is one local variable debug record. End is exclusive.
// Type holds a descriptor for LocalVariableTable rows and a generic
// signature for LocalVariableTypeTable rows.
type LocalVariable struct {
	Start int
	End   int
	Name  string
	Type  string
	Slot  uint16
}

// LocalVariableTable is debug metadata inside Code.
type LocalVariableTable []LocalVariable

func (LocalVariableTable) attrName() string { return "LocalVariableTable" }

// LocalVariableTypeTable is debug metadata inside Code.
type LocalVariableTypeTable []LocalVariable

func (LocalVariableTypeTable) attrName() string { return "LocalVariableTypeTable" }

// Verification type tags (JVMS 4.7.4).
const (
	VTop = iota
	VInteger
	VFloat
	VDouble
	VLong
	VNull
	VUninitializedThis
	VObject
	VUninitialized
)

// VType is a StackMapTable verification type. Class is set for VObject,
// NewPC (an instruction index) for VUninitialized.
type VType struct {
	Tag   uint8
	Class string
	NewPC int
}

// Frame kinds, mirroring the compressed frame families of the format.
const (
	FrameSame = iota
	FrameSameLocals1
	FrameChop
	FrameAppend
	FrameFull
)

// Frame is one stack map frame at instruction index PC.
type Frame struct {
	PC     int
	Kind   int
	Chop   int     // FrameChop: number of locals removed (1..3)
	Locals []VType // FrameAppend: added locals; FrameFull: all locals
	Stack  []VType // FrameSameLocals1: single entry; FrameFull: all entries
}

// StackMapTable is the verification metadata inside Code.
type StackMapTable []Frame

func (StackMapTable) attrName() string { return "StackMapTable" }

// Switch is the payload of a tableswitch or lookupswitch instruction.
// Targets are instruction indexes. Keys is nil for tableswitch, whose case
// values run from Low upward.
type Switch struct {
	Default int
	Low     int32
	Keys    []int32
	Targets []int
}

// InvokeDynamicInsn is an invokedynamic call site with its bootstrap
// specifier resolved inline.
type InvokeDynamicInsn struct {
	Name string
	Desc string
	BSM  Handle
	Args []Const
}

// Insn is one decoded instruction. Only the operand fields relevant to Op
// are populated:
//
//	A      local slot, immediate value, array type or dimension count
//	B      iinc increment
//	Wide   wide-prefixed form of a local/iinc instruction
//	Val    ldc/ldc_w/ldc2_w constant
//	Ref    field/method reference operand
//	Type   class operand (new, anewarray, checkcast, instanceof, multianewarray)
//	Target branch target instruction index
//	Sw     switch payload
//	Indy   invokedynamic payload
type Insn struct {
	Op     byte
	Wide   bool
	A      int
	B      int
	Val    Const
	Ref    MemberRef
	Type   string
	Target int
	Sw     *Switch
	Indy   *InvokeDynamicInsn
}
