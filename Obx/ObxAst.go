/*
** Copyright (C) 2025 Rochus Keller (me@rochus-keller.ch)
**
** This file is part of the Oberon+ parser/code model project.
**
**
** GNU Lesser General Public License Usage
** This file may be used under the terms of the GNU Lesser
** General Public License version 2.1 or version 3 as published by the Free
** Software Foundation and appearing in the file LICENSE.LGPLv21 and
** LICENSE.LGPLv3 included in the packaging of this file. Please review the
** following information to ensure the GNU Lesser General Public License
** requirements will be met: https://www.gnu.org/licenses/lgpl.html and
** http://www.gnu.org/licenses/old-licenses/lgpl-2.1.html.
 */

// Translated from C++ Qt5 implementation

package Obx

// BuiltinKind represents built-in functions and procedures
type BuiltinKind int

const (
	// Oberon-07
	BUILTIN_ABS BuiltinKind = iota
	BUILTIN_ODD
	BUILTIN_LEN
	BUILTIN_LSL
	BUILTIN_ASR
	BUILTIN_ROR
	BUILTIN_FLOOR
	BUILTIN_FLT
	BUILTIN_ORD
	BUILTIN_CHR
	BUILTIN_INC
	BUILTIN_DEC
	BUILTIN_INCL
	BUILTIN_EXCL
	BUILTIN_NEW
	BUILTIN_ASSERT
	BUILTIN_PACK
	BUILTIN_UNPK

	BUILTIN_LED // LED not global proc in Oberon report, but used as such in Project Oberon

	// IDE
	BUILTIN_TRAP
	BUILTIN_TRAPIF

	// Oberon-2
	BUILTIN_MAX
	BUILTIN_CAP
	BUILTIN_LONG
	BUILTIN_SHORT
	BUILTIN_HALT
	BUILTIN_COPY
	BUILTIN_ASH
	BUILTIN_MIN
	BUILTIN_SIZE
	BUILTIN_ENTIER

	// Blackbox
	BUILTIN_BITS

	// Oberon+
	BUILTIN_VAL
	BUILTIN_STRLEN
	BUILTIN_WCHR

	BUILTIN_SYSTEM

	// SYSTEM
	BUILTIN_SYS_ADR
	BUILTIN_SYS_BIT
	BUILTIN_SYS_GET
	BUILTIN_SYS_H
	BUILTIN_SYS_LDREG
	BUILTIN_SYS_PUT
	BUILTIN_SYS_REG
	BUILTIN_SYS_VAL
	BUILTIN_SYS_COPY

	// Oberon-2 SYSTEM
	BUILTIN_SYS_MOVE
	BUILTIN_SYS_NEW
	BUILTIN_SYS_ROT
	BUILTIN_SYS_LSH
	BUILTIN_SYS_GETREG
	BUILTIN_SYS_PUTREG

	// Blackbox SYSTEM
	BUILTIN_SYS_TYP

	MAX_BUILTIN
)

// BuiltinNames provides string names for built-ins
var BuiltinNames = []string{
	"ABS", "ODD", "LEN", "LSL", "ASR", "ROR", "FLOOR", "FLT", "ORD", "CHR",
	"INC", "DEC", "INCL", "EXCL", "NEW", "ASSERT", "PACK", "UNPK",
	"LED",
	"TRAP", "TRAPIF",
	"MAX", "CAP", "LONG", "SHORT", "HALT", "COPY", "ASH", "MIN", "SIZE", "ENTIER",
	"BITS",
	"VAL", "STRLEN", "WCHR",
	"SYSTEM",
	"ADR", "BIT", "GET", "H", "LDREG", "PUT", "REG", "VAL", "COPY",
	"MOVE", "NEW", "ROT", "LSH", "GETREG", "PUTREG",
	"TYP",
}

// Meta represents node metadata
type Meta int

const (
	MetaType Meta = iota // T
	MetaDecl             // D
	MetaExpr             // E
)

// Node is the base AST node
type Node struct {
	Meta    Meta
	Kind    int
	Pos     RowCol
	TypeRef *Type

	// Flags
	Validated      bool
	InList         bool
	Owned          bool
	OwnsType       bool
	VarParam       bool
	ConstParam     bool
	Receiver       bool
	Synthetic      bool
	HasErrors      bool
	HasSubs        bool
	NeedsLval      bool
	Nonlocal       bool
	SelfRef        bool // QualiType naming the type being declared
	Unsafe         bool
	Union          bool
	Specialization bool // Field shadowing an inherited field with a narrower type
}

// GetType returns the node's type
func (n *Node) GetType() *Type {
	return n.TypeRef
}

// SetType sets the node's type
func (n *Node) SetType(t *Type) {
	n.TypeRef = t
}

func (n *Node) OverrideType(t *Type) *Type {
	old := n.TypeRef
	n.TypeRef = t
	return old
}

// TypeKind represents different type kinds
type TypeKind int

const (
	TYPE_Undefined TypeKind = iota
	TYPE_NoType
	TYPE_ANY
	TYPE_NIL
	TYPE_STRING // string literal, 1 byte chars
	TYPE_WSTRING
	TYPE_BOOLEAN
	TYPE_CHAR  // 1 byte
	TYPE_WCHAR // 2 bytes
	TYPE_BYTE
	TYPE_SHORTINT // 1 byte
	TYPE_INTEGER  // 2 bytes
	TYPE_LONGINT  // 4 bytes
	TYPE_REAL     // 4 bytes
	TYPE_LONGREAL // 8 bytes
	TYPE_SET      // 4 bytes
	TYPE_MaxBasicType
	TYPE_Pointer
	TYPE_Procedure
	TYPE_Array
	TYPE_Record
	TYPE_Enumeration
	TYPE_NameRef // QualiType
)

// TypeNames provides string names for types
var TypeNames = []string{
	"Undefined", "NoType", "ANY", "NIL", "STRING", "WSTRING", "BOOLEAN",
	"CHAR", "WCHAR", "BYTE", "SHORTINT", "INTEGER", "LONGINT",
	"REAL", "LONGREAL", "SET", "MaxBasic",
	"POINTER", "PROCEDURE", "ARRAY", "RECORD", "enumeration", "NameRef",
}

// Type represents a type in the AST.
//
// Field usage per kind:
//
//	Pointer:     TypeRef is the pointee (Record or Array only)
//	Array:       TypeRef element type, Expr length expression, Len fixed length (0 = open)
//	Record:      TypeRef base QualiType or nil, Subs fields and bound procedures,
//	             BaseRec/SubRecs/Binding are non-owning linkage
//	Procedure:   TypeRef return type or nil, Subs formal parameters
//	NameRef:     Quali unresolved name, MetaActuals generic actuals,
//	             TypeRef the resolved type, Decl the resolved declaration
//	Enumeration: Subs the member constants
type Type struct {
	Node
	Len         uint32     // array length, zero for open arrays
	Quali       *Qualident // for NameRef
	MetaActuals []*Type    // for NameRef, generic actual types
	Subs        []*Declaration
	Decl        *Declaration // declaring name, nil while anonymous; resolved decl for NameRef
	Expr        *Expression  // array length expression
	BaseRec     *Type        // Record: resolved base record
	SubRecs     []*Type      // Record: immediate subrecords
	Binding     *Type        // Record: enclosing pointer type when anonymous
}

// IsNumber checks if type is numeric
func (t *Type) IsNumber() bool {
	return t.Kind >= int(TYPE_BYTE) && t.Kind <= int(TYPE_LONGREAL)
}

// IsReal checks if type is real
func (t *Type) IsReal() bool {
	return t.Kind == int(TYPE_REAL) || t.Kind == int(TYPE_LONGREAL)
}

// IsInteger checks if type is integer
func (t *Type) IsInteger() bool {
	return t.Kind >= int(TYPE_BYTE) && t.Kind <= int(TYPE_LONGINT)
}

// IsSet checks if type is set
func (t *Type) IsSet() bool {
	return t.Kind == int(TYPE_SET)
}

// IsBoolean checks if type is boolean
func (t *Type) IsBoolean() bool {
	return t.Kind == int(TYPE_BOOLEAN)
}

// IsChar checks if type is a character or character literal type
func (t *Type) IsChar() bool {
	return t.Kind == int(TYPE_CHAR) || t.Kind == int(TYPE_WCHAR)
}

// IsText checks if type is a string literal or character array
func (t *Type) IsText() bool {
	if t.Kind == int(TYPE_STRING) || t.Kind == int(TYPE_WSTRING) {
		return true
	}
	if t.Kind == int(TYPE_Array) && t.TypeRef != nil {
		return t.TypeRef.Deref().IsChar()
	}
	return false
}

// IsStructured checks if type is structured (not a scalar register value)
func (t *Type) IsStructured() bool {
	return t.Kind == int(TYPE_Array) || t.Kind == int(TYPE_Record)
}

// Deref follows NameRef indirection to the underlying structural type.
// It terminates on self-referential NameRefs because their TypeRef points
// at the record or pointer being defined; a revisited node ends the walk.
func (t *Type) Deref() *Type {
	cur := t
	var seen map[*Type]bool
	for cur.Kind == int(TYPE_NameRef) && cur.TypeRef != nil {
		if seen[cur] {
			return cur
		}
		if seen == nil {
			seen = make(map[*Type]bool)
		}
		seen[cur] = true
		cur = cur.TypeRef
	}
	return cur
}

// Find searches for a member declaration by name; for records the base
// chain is walked outward-in when recursive is set, so a local member
// shadows an inherited one of the same name.
func (t *Type) Find(name string, recursive bool) *Declaration {
	for _, d := range t.Subs {
		if string(d.Name) == name {
			return d
		}
	}
	if recursive && t.Kind == int(TYPE_Record) {
		seen := map[*Type]bool{t: true}
		base := t.BaseRec
		for base != nil && !seen[base] {
			seen[base] = true
			for _, d := range base.Subs {
				if string(d.Name) == name {
					return d
				}
			}
			base = base.BaseRec
		}
	}
	return nil
}

// GetTypeDim returns the innermost element type of a (multidimensional)
// array and the number of dimensions
func (t *Type) GetTypeDim(openOnly bool) (*Type, int) {
	dims := 0
	cur := t
	for cur != nil && cur.Kind == int(TYPE_Array) {
		if openOnly && cur.Len != 0 {
			break
		}
		dims++
		if cur.TypeRef == nil {
			break
		}
		cur = cur.TypeRef.Deref()
	}
	return cur, dims
}

// MinVal returns the minimum value of a basic type, or nil
func (t *Type) MinVal() interface{} {
	switch TypeKind(t.Kind) {
	case TYPE_BYTE:
		return int64(0)
	case TYPE_SHORTINT:
		return int64(-128)
	case TYPE_INTEGER:
		return int64(-32768)
	case TYPE_LONGINT:
		return int64(-2147483648)
	case TYPE_REAL:
		return -3.402823e38
	case TYPE_LONGREAL:
		return -1.7976931348623157e308
	case TYPE_SET:
		return int64(0)
	case TYPE_CHAR, TYPE_WCHAR:
		return int64(0)
	}
	return nil
}

// MaxVal returns the maximum value of a basic type, or nil
func (t *Type) MaxVal() interface{} {
	switch TypeKind(t.Kind) {
	case TYPE_BYTE:
		return int64(255)
	case TYPE_SHORTINT:
		return int64(127)
	case TYPE_INTEGER:
		return int64(32767)
	case TYPE_LONGINT:
		return int64(2147483647)
	case TYPE_REAL:
		return 3.402823e38
	case TYPE_LONGREAL:
		return 1.7976931348623157e308
	case TYPE_SET:
		return int64(SetBitLen - 1)
	case TYPE_CHAR:
		return int64(255)
	case TYPE_WCHAR:
		return int64(65535)
	}
	return nil
}

// DeclKind represents different declaration kinds
type DeclKind int

const (
	DECL_Invalid DeclKind = iota
	DECL_Helper
	DECL_Scope
	DECL_Module
	DECL_TypeDecl
	DECL_Builtin
	DECL_ConstDecl
	DECL_Import
	DECL_Field
	DECL_VarDecl
	DECL_LocalDecl
	DECL_Procedure
	DECL_ParamDecl
	DECL_Generic // meta parameter of a generic type or procedure
	DECL_Max
)

// DeclNames provides string names for declaration kinds
var DeclNames = []string{
	"Invalid", "Helper", "Scope", "Module", "TypeDecl", "Builtin",
	"ConstDecl", "Import", "Field", "VarDecl", "LocalDecl", "Procedure",
	"ParamDecl", "Generic",
}

// Visi represents visibility levels
type Visi uint8

const (
	VISI_NA Visi = iota
	VISI_Private
	VISI_ReadOnly
	VISI_ReadWrite
)

// Declaration represents a declaration in the AST.
//
// Link holds the member list of a scope (locals and nested procedures of a
// procedure, declarations of a module, meta parameters of a generic type
// declaration, members of a resolved import). Formal parameters live in the
// Subs of the procedure's TYPE_Procedure type.
type Declaration struct {
	Node
	Link  *Declaration   // member list or imported module decl
	Outer *Declaration   // the owning declaration
	Super *Declaration   // base record decl or overridden method
	Subs  []*Declaration // overriding methods or derived type decls
	Next  *Declaration   // list of declarations in scope
	Body  *Statement     // procedure or module body
	Name  []byte
	Visi  Visi
	End   RowCol      // end of scope
	ID    uint16      // built-in code
	Data  interface{} // value for const/enum, Import for import, ModuleData for module
	Expr  *Expression // const decl, enum, meta actuals
	Rec   *Type       // Procedure: record the procedure is bound to

	// Bytecode generator helpers; written only by the code generator,
	// never read during resolution.
	LiveFrom     uint32 // 0..undefined
	LiveTo       uint32 // 0..undefined
	Slot         uint8
	SlotValid    bool
	UsedFromSubs bool
	UsedFromLive bool // indirectly used named types
	Initialized  bool
}

// NewDeclaration creates a new declaration
func NewDeclaration() *Declaration {
	d := &Declaration{}
	d.Meta = MetaDecl
	return d
}

// IsScope reports whether the declaration owns a member list
func (d *Declaration) IsScope() bool {
	switch DeclKind(d.Kind) {
	case DECL_Module, DECL_Procedure, DECL_TypeDecl, DECL_Scope:
		return true
	}
	return false
}

// GetProcType returns the procedure type of a procedure declaration
func (d *Declaration) GetProcType() *Type {
	if d.TypeRef == nil {
		return nil
	}
	t := d.TypeRef.Deref()
	if TypeKind(t.Kind) != TYPE_Procedure {
		return nil
	}
	return t
}

// GetParams returns the formal parameter list
func (d *Declaration) GetParams(skipReceiver bool) []*Declaration {
	pt := d.GetProcType()
	if pt == nil {
		return nil
	}
	var params []*Declaration
	for _, p := range pt.Subs {
		if skipReceiver && p.Receiver {
			continue
		}
		params = append(params, p)
	}
	return params
}

// GetReceiver returns the receiver parameter of a bound procedure, or nil
func (d *Declaration) GetReceiver() *Declaration {
	pt := d.GetProcType()
	if pt == nil {
		return nil
	}
	for _, p := range pt.Subs {
		if p.Receiver {
			return p
		}
	}
	return nil
}

// IsLvalue checks if declaration is an lvalue
func (d *Declaration) IsLvalue() bool {
	return d.Kind == int(DECL_VarDecl) || d.Kind == int(DECL_LocalDecl) ||
		d.Kind == int(DECL_ParamDecl) || d.Kind == int(DECL_Field)
}

// IsPublic checks if declaration is public
func (d *Declaration) IsPublic() bool {
	return d.Visi >= VISI_ReadOnly
}

// Find searches the member list for a declaration by name; the scan runs
// front to back, so of two same-named members the first declared wins.
// With recursive set the walk continues in the enclosing scopes. For a
// procedure the formal parameters are part of the scope.
func (d *Declaration) Find(name string, recursive bool) *Declaration {
	if d.Kind == int(DECL_Procedure) {
		for _, p := range d.GetParams(false) {
			if string(p.Name) == name {
				return p
			}
		}
	}
	current := d.Link
	for current != nil {
		if string(current.Name) == name {
			return current
		}
		current = current.Next
	}
	if recursive && d.Outer != nil {
		return d.Outer.Find(name, true)
	}
	return nil
}

// GetModule returns the containing module
func (d *Declaration) GetModule() *Declaration {
	if d.Kind == int(DECL_Module) {
		return d
	} else if d.Outer != nil {
		return d.Outer.GetModule()
	}
	return nil
}

// AppendMember appends a member to the ordered list. A duplicate name is
// still appended, so diagnostics can reach the node, but false is reported
// and lookup keeps resolving to the first declaration.
func (d *Declaration) AppendMember(decl *Declaration) bool {
	added := true
	if d.Kind != int(DECL_Scope) {
		decl.Outer = d
	}
	if d.Link == nil {
		d.Link = decl
		return true
	}
	current := d.Link
	for {
		if string(current.Name) == string(decl.Name) && len(decl.Name) > 0 {
			added = false
		}
		if current.Next == nil {
			break
		}
		current = current.Next
	}
	current.Next = decl
	decl.InList = true
	return added
}

// GetImports returns the import declarations of a module in source order
func (d *Declaration) GetImports() []*Declaration {
	var res []*Declaration
	for cur := d.Link; cur != nil; cur = cur.Next {
		if DeclKind(cur.Kind) == DECL_Import {
			res = append(res, cur)
		}
	}
	return res
}

// GetModuleData returns the metadata of a module declaration
func (d *Declaration) GetModuleData() ModuleData {
	if md, ok := d.Data.(ModuleData); ok {
		return md
	}
	return ModuleData{}
}

// IdentRole is the semantic purpose of a resolved name occurrence, fixed
// during resolution and never re-derived by consumers
type IdentRole uint8

const (
	NoRole IdentRole = iota
	DeclRole
	LhsRole
	VarRole
	RhsRole
	SuperRole
	SubRole
	CallRole
	ImportRole
	ThisRole
	MethRole
	StringRole
)

// ExprKind represents different expression kinds
type ExprKind int

const (
	EXPR_Invalid ExprKind = iota

	EXPR_Plus
	EXPR_Minus
	EXPR_Not // unary

	EXPR_Eq
	EXPR_Neq
	EXPR_Lt
	EXPR_Leq
	EXPR_Gt
	EXPR_Geq
	EXPR_In
	EXPR_Is // relation

	EXPR_Add
	EXPR_Sub
	EXPR_Or // AddOp

	EXPR_Mul
	EXPR_Fdiv
	EXPR_Div
	EXPR_Mod
	EXPR_And // MulOp

	EXPR_Addr    // address-of
	EXPR_DeclRef // Val is declaration
	EXPR_Deref
	EXPR_Select // f.g, Val is field declaration
	EXPR_Index  // a[i]
	EXPR_Cast
	EXPR_Call
	EXPR_Literal
	EXPR_Constructor // set constructor { }
	EXPR_Range
	EXPR_NameRef // temporary, resolved by validator
	EXPR_Super   // ^ supercall
	EXPR_MAX
)

// LiteralKind is the tagged value type of an EXPR_Literal
type LiteralKind uint8

const (
	LIT_Invalid LiteralKind = iota
	LIT_Integer
	LIT_Real
	LIT_Boolean
	LIT_String // utf-8 bytes
	LIT_Bytes
	LIT_Char // 16 bit
	LIT_Nil
	LIT_Set // 32 bit wide bit vector
)

// Expression represents an expression in the AST
type Expression struct {
	Node
	Val     interface{} // literal value, declaration reference or Qualident
	LitKind LiteralKind
	Role    IdentRole
	StrLen  uint32      // length of a string literal in characters
	Lhs     *Expression // left-hand side, sub expression
	Rhs     *Expression // right-hand side, argument list
	Next    *Expression // for argument lists
}

// NewExpression creates a new expression
func NewExpression(kind ExprKind, pos RowCol) *Expression {
	e := &Expression{}
	e.Meta = MetaExpr
	e.Kind = int(kind)
	e.Pos = pos
	return e
}

// NewLiteral creates a literal expression
func NewLiteral(kind LiteralKind, pos RowCol, val interface{}, t *Type) *Expression {
	e := NewExpression(EXPR_Literal, pos)
	e.LitKind = kind
	e.Val = val
	e.SetType(t)
	return e
}

// GetIdent returns the declaration a resolved identifier refers to, or nil
func (e *Expression) GetIdent() *Declaration {
	switch ExprKind(e.Kind) {
	case EXPR_DeclRef, EXPR_Select:
		if d, ok := e.Val.(*Declaration); ok {
			return d
		}
	}
	return nil
}

// GetSub returns the single sub expression of a unary expression, or nil
func (e *Expression) GetSub() *Expression {
	switch ExprKind(e.Kind) {
	case EXPR_Plus, EXPR_Minus, EXPR_Not, EXPR_Deref, EXPR_Addr,
		EXPR_Select, EXPR_Index, EXPR_Cast, EXPR_Call, EXPR_Super:
		return e.Lhs
	}
	return nil
}

// SetRole fixes the identifier role of this expression. The role is set
// exactly once, at resolution time; resetting to a different role is a
// programming error.
func (e *Expression) SetRole(role IdentRole) {
	if e.Role != NoRole && e.Role != role {
		panic("identifier role already set")
	}
	e.Role = role
}

// GetModuleOf returns the module an identifier expression belongs to
func (e *Expression) GetModuleOf() *Declaration {
	if d := e.GetIdent(); d != nil {
		return d.GetModule()
	}
	if e.Lhs != nil {
		return e.Lhs.GetModuleOf()
	}
	if e.Rhs != nil {
		return e.Rhs.GetModuleOf()
	}
	return nil
}

func (e *Expression) allArgsConst(args *Expression) bool {
	current := args
	for current != nil {
		if !current.IsConst() {
			return false
		}
		current = current.Next
	}
	return true
}

func (e *Expression) isBuiltinConstant(builtin *Declaration, args *Expression) bool {
	if builtin == nil {
		return false
	}

	switch BuiltinKind(builtin.ID) {
	case BUILTIN_LEN:
		if e.countArgs(args) != 1 {
			return true // error case, but don't crash
		}
		if args.IsConst() {
			return true
		}
		// arrays with compile-time known size have constant LEN
		if args.GetType() != nil {
			arrayType := args.GetType().Deref()
			if arrayType.Kind == int(TYPE_Array) {
				return arrayType.Expr == nil || arrayType.Expr.IsConst()
			}
		}
		return true

	case BUILTIN_MIN, BUILTIN_MAX:
		return e.countArgs(args) == 1 && e.allArgsConst(args)

	default:
		return e.allArgsConst(args)
	}
}

func (e *Expression) countArgs(args *Expression) int {
	count := 0
	current := args
	for current != nil {
		count++
		current = current.Next
	}
	return count
}

func (e *Expression) IsLvalue() bool {
	if e == nil {
		return false
	}

	switch ExprKind(e.Kind) {
	case EXPR_DeclRef:
		if decl, ok := e.Val.(*Declaration); ok && decl != nil {
			return decl.IsLvalue()
		}
		return false

	case EXPR_Select, EXPR_Index, EXPR_Deref:
		return true

	default:
		return false
	}
}

// IsConst checks if expression is constant
func (e *Expression) IsConst() bool {
	if e == nil {
		return false
	}

	switch ExprKind(e.Kind) {
	case EXPR_DeclRef:
		if decl, ok := e.Val.(*Declaration); ok && decl != nil {
			if decl.Kind == int(DECL_VarDecl) ||
				decl.Kind == int(DECL_LocalDecl) ||
				decl.Kind == int(DECL_ParamDecl) ||
				decl.Kind == int(DECL_Field) {
				return false
			}
			return true
		}
		return true

	case EXPR_Literal:
		return true

	case EXPR_Select, EXPR_Index, EXPR_Deref:
		return false

	case EXPR_Call:
		if e.Lhs == nil {
			return true // error case, but don't crash
		}
		if decl, ok := e.Lhs.Val.(*Declaration); ok && decl != nil {
			if decl.Kind == int(DECL_Procedure) {
				return false
			} else if decl.Kind == int(DECL_Builtin) {
				return e.isBuiltinConstant(decl, e.Rhs)
			}
		}
		return false

	default:
		// binary and unary operations: all operands must be constant
		if e.Lhs != nil && !e.Lhs.IsConst() {
			return false
		}
		if e.Rhs != nil && !e.Rhs.IsConst() {
			return false
		}
		return true
	}
}

func appendExpr(list *Expression, elem *Expression) {
	for list != nil && list.Next != nil {
		list = list.Next
	}
	if list != nil {
		list.Next = elem
	}
}

// AppendRhs appends to right-hand side list
func (e *Expression) AppendRhs(expr *Expression) {
	if e.Rhs == nil {
		e.Rhs = expr
	} else {
		appendExpr(e.Rhs, expr)
	}
}

// set literals are a fixed-width bit vector, bit i set = element i present
const SetBitLen = 32

// AddSetBit includes element i; false if i is outside [0,31]
func AddSetBit(bits uint32, i int64) (uint32, bool) {
	if i < 0 || i >= SetBitLen {
		return bits, false
	}
	return bits | 1<<uint(i), true
}

// AddSetRange includes elements lo..hi; false if a bound is outside
// [0,31]. An inverted range denotes the empty range and adds nothing.
func AddSetRange(bits uint32, lo, hi int64) (uint32, bool) {
	if lo < 0 || lo >= SetBitLen || hi < 0 || hi >= SetBitLen {
		return bits, false
	}
	for i := lo; i <= hi; i++ {
		bits |= 1 << uint(i)
	}
	return bits, true
}

// SetElements lists the elements present in a set bit vector, ascending
func SetElements(bits uint32) []int {
	var res []int
	for i := 0; i < SetBitLen; i++ {
		if bits&(1<<uint(i)) != 0 {
			res = append(res, i)
		}
	}
	return res
}

// StatementKind represents different statement kinds
type StatementKind int

const (
	STMT_Invalid StatementKind = iota
	STMT_Assig
	STMT_Call
	STMT_IfLoop
	STMT_ForLoop
	STMT_Case
	STMT_Return
	STMT_Exit
	STMT_End
)

// IfLoop forms; one representation unifies the five syntactic shapes
const (
	IF = iota
	WHILE
	REPEAT
	WITH
	LOOP
)

// CaseClause pairs an ordered label set with its statement block
type CaseClause struct {
	Labels []*Expression // value labels, ranges, or type refs for a type case
	Block  *Statement
}

// Statement represents a statement in the AST.
//
// Field usage per kind:
//
//	Assig:   Lhs := Rhs
//	Call:    Lhs is the call expression
//	IfLoop:  Op selects the form; Guards and Blocks are parallel lists,
//	         Else is the else block; a LOOP has no guards
//	ForLoop: Lhs control variable, From/To/By bounds and step, ByVal the
//	         folded constant step, Body the loop body
//	Case:    Lhs discriminant, Cases the clauses, Else the else block
//	Return:  Rhs optional return value
type Statement struct {
	Kind     StatementKind
	Op       uint8 // IfLoop form
	TypeCase bool
	Pos      RowCol
	Lhs      *Expression
	Rhs      *Expression
	Guards   []*Expression
	Blocks   []*Statement
	Else     *Statement
	Cases    []CaseClause
	From     *Expression
	To       *Expression
	By       *Expression
	ByVal    interface{} // folded constant step, int64 when set
	Body     *Statement
	Next     *Statement // statement list
}

// NewStatement creates a new statement
func NewStatement(kind StatementKind, pos RowCol) *Statement {
	return &Statement{
		Kind: kind,
		Pos:  pos,
	}
}

// NewIfLoop creates an IF/WHILE/REPEAT/WITH/LOOP statement
func NewIfLoop(op uint8, pos RowCol) *Statement {
	s := NewStatement(STMT_IfLoop, pos)
	s.Op = op
	return s
}

// AddGuard appends a guard/block pair to an IfLoop
func (s *Statement) AddGuard(guard *Expression, block *Statement) {
	s.Guards = append(s.Guards, guard)
	s.Blocks = append(s.Blocks, block)
}

// GetLast returns the last statement in the list
func (s *Statement) GetLast() *Statement {
	current := s
	for current.Next != nil {
		current = current.Next
	}
	return current
}

// Append appends a statement to the list
func (s *Statement) Append(stmt *Statement) {
	last := s.GetLast()
	last.Next = stmt
}

// Import represents an import declaration
type Import struct {
	ModuleName []byte
	Path       [][]byte // path segments without the module name
	Importer   *Declaration
	ImportedAt RowCol
	AliasPos   RowCol       // invalid if no alias present
	Resolved   *Declaration // resolved module
}

// Equals checks if two imports are equal
func (i *Import) Equals(other *Import) bool {
	return string(i.ModuleName) == string(other.ModuleName)
}

// ModuleData represents module metadata
type ModuleData struct {
	SourcePath string
	FullName   []byte // dotted path segments + module name
	End        RowCol
	IsDef      bool // DEFINITION module
	IsExt      bool
}

// Qualident represents a qualified identifier
type Qualident struct {
	First  []byte
	Second []byte
}

// NewQualident creates a qualified identifier
func NewQualident(first, second []byte) *Qualident {
	return &Qualident{First: first, Second: second}
}

// Symbol represents a symbol for cross-reference
type Symbol struct {
	Kind SymbolKind
	Len  uint8
	Pos  RowCol
	Decl *Declaration
	Next *Symbol
}

// SymbolKind represents different symbol kinds
type SymbolKind int

const (
	SYM_Invalid SymbolKind = iota
	SYM_Module
	SYM_Decl
	SYM_DeclRef
	SYM_Lval
)

// Xref represents cross-reference information
type Xref struct {
	Syms map[*Declaration][]*Symbol
	Uses map[*Declaration][]*Declaration
	Subs map[*Declaration][]*Declaration
}

// WalkModule calls f for every declaration owned by the scope, in
// declaration order, descending into nested procedure scopes
func WalkModule(scope *Declaration, f func(*Declaration)) {
	if scope == nil {
		return
	}
	for cur := scope.Link; cur != nil; cur = cur.Next {
		f(cur)
		if DeclKind(cur.Kind) == DECL_Procedure {
			WalkModule(cur, f)
		}
	}
}

// WalkStatements calls f for every statement in the list and in all
// nested blocks
func WalkStatements(s *Statement, f func(*Statement)) {
	for cur := s; cur != nil; cur = cur.Next {
		f(cur)
		for _, b := range cur.Blocks {
			WalkStatements(b, f)
		}
		for _, c := range cur.Cases {
			WalkStatements(c.Block, f)
		}
		WalkStatements(cur.Else, f)
		WalkStatements(cur.Body, f)
	}
}

// WalkExpr calls f for the expression and all sub expressions, without
// following the argument list chain of the root
func WalkExpr(e *Expression, f func(*Expression)) {
	if e == nil {
		return
	}
	f(e)
	WalkExpr(e.Lhs, f)
	if e.Rhs != nil {
		for arg := e.Rhs; arg != nil; arg = arg.Next {
			WalkExpr(arg, f)
		}
	}
}

// Helpers to get string/[]byte stored in Expression.Val for selectors.
func (e *Expression) ValAsBytes() []byte {
	if b, ok := e.Val.([]byte); ok {
		return b
	}
	if s, ok := e.Val.(string); ok {
		return []byte(s)
	}
	return nil
}

func (e *Expression) ValAsString() string {
	if b, ok := e.Val.([]byte); ok {
		return string(b)
	}
	if s, ok := e.Val.(string); ok {
		return s
	}
	return ""
}
