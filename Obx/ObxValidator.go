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

import (
	"fmt"
)

// Importer matches the C++ interface: loadModule(Import) -> *Declaration
type Importer interface {
	LoadModule(imp *Import) *Declaration
}

// Validator performs name resolution and semantic validation. Source
// errors never abort the pass; the offending declaration is flagged and
// given the invalid type so downstream passes keep running.
type Validator struct {
	mdl    *AstModel
	imp    Importer
	module *Declaration

	// state
	scopeStack  []*Declaration
	curDecl     []*Declaration
	curTypeDecl *Declaration
	loopDepth   int

	// xref (optional)
	haveXref bool
	firstSym *Symbol
	lastSym  *Symbol
	xref     map[*Declaration][]*Symbol
	subs     map[*Declaration][]*Declaration

	// errors
	Errors []Error
}

type Error struct {
	Msg  string
	Pos  RowCol
	Path string
}

func (e Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%s: %s", e.Path, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func NewValidator(mdl *AstModel, imp Importer, haveXref bool) *Validator {
	v := &Validator{
		mdl:      mdl,
		imp:      imp,
		haveXref: haveXref,
		xref:     make(map[*Declaration][]*Symbol),
		subs:     make(map[*Declaration][]*Declaration),
	}
	if haveXref {
		v.firstSym = &Symbol{}
		v.lastSym = v.firstSym
	}
	return v
}

// Validate one module; resolves all qualified names, links record bases
// and method overrides, and fixes identifier roles.
func (v *Validator) Validate(module *Declaration, importInfo *Import) bool {
	if module == nil || DeclKind(module.Kind) != DECL_Module {
		return false
	}
	v.module = module

	if v.haveXref {
		v.firstSym.Decl = module
		v.firstSym.Kind = SYM_Module
		v.firstSym.Pos = module.Pos
		v.firstSym.Len = uint8(len(module.Name))
	}

	v.markDecl(module)

	if importInfo != nil {
		md := module.GetModuleData()
		md.FullName = importInfo.ModuleName
		module.Data = md
	}

	v.visitScope(module)

	if v.haveXref {
		v.lastSym.Next = v.firstSym
	}

	return len(v.Errors) == 0
}

func (v *Validator) TakeXref() Xref {
	if !v.haveXref {
		return Xref{}
	}
	res := Xref{
		Syms: v.xref,
		Subs: v.subs,
		Uses: map[*Declaration][]*Declaration{},
	}
	v.xref = make(map[*Declaration][]*Symbol)
	v.subs = make(map[*Declaration][]*Declaration)
	v.firstSym = &Symbol{}
	v.lastSym = v.firstSym
	return res
}

// error records a diagnostic and flags the declaration being validated
func (v *Validator) error(pos RowCol, msg string) {
	path := ""
	if v.module != nil {
		path = v.module.GetModuleData().SourcePath
	}
	v.Errors = append(v.Errors, Error{Msg: msg, Pos: pos, Path: path})
	if len(v.curDecl) > 0 {
		v.curDecl[len(v.curDecl)-1].HasErrors = true
	}
}

func (v *Validator) markDecl(d *Declaration) {
	if !v.haveXref || d == nil {
		return
	}
	s := &Symbol{Kind: SYM_Decl, Decl: d, Pos: d.Pos, Len: uint8(len(d.Name))}
	v.xref[d] = append(v.xref[d], s)
	v.lastSym.Next = s
	v.lastSym = s
}

func (v *Validator) markRef(d *Declaration, pos RowCol) *Symbol {
	if !v.haveXref {
		return nil
	}
	s := &Symbol{Kind: SYM_DeclRef, Decl: d, Pos: pos}
	if d != nil {
		s.Len = uint8(len(d.Name))
		v.xref[d] = append(v.xref[d], s)
	}
	v.lastSym.Next = s
	v.lastSym = s
	return s
}

func (v *Validator) markUnref(length int, pos RowCol) *Symbol {
	if !v.haveXref {
		return nil
	}
	s := &Symbol{Kind: SYM_DeclRef, Pos: pos, Len: uint8(length)}
	v.lastSym.Next = s
	v.lastSym = s
	return s
}

// visitScope performs the two-phase header-then-body traversal.
func (v *Validator) visitScope(scope *Declaration) {
	if scope == nil {
		return
	}
	v.scopeStack = append(v.scopeStack, scope)

	// 1) evaluate all decl headers in this scope
	for cur := scope.Link; cur != nil; cur = cur.Next {
		v.visitDecl(cur)
	}
	// 2) recursively visit nested procedures (bodies later)
	for cur := scope.Link; cur != nil; cur = cur.Next {
		if DeclKind(cur.Kind) == DECL_Procedure {
			v.visitScope(cur)
		}
	}
	// 3) validate the body of the scope (statements)
	v.visitBody(scope.Body)

	v.scopeStack = v.scopeStack[:len(v.scopeStack)-1]
}

func (v *Validator) visitDecl(d *Declaration) {
	if d == nil || d.Validated {
		return
	}
	d.Validated = true
	v.markDecl(d)
	v.curDecl = append(v.curDecl, d)
	defer func() { v.curDecl = v.curDecl[:len(v.curDecl)-1] }()

	switch DeclKind(d.Kind) {
	case DECL_TypeDecl:
		tmp := v.curTypeDecl
		v.curTypeDecl = d
		// meta parameters are scope members of the type declaration
		for cur := d.Link; cur != nil; cur = cur.Next {
			if DeclKind(cur.Kind) == DECL_Generic {
				cur.Validated = true
				if cur.GetType() == nil {
					cur.SetType(v.mdl.GetType(TYPE_ANY))
				}
			}
		}
		if d.GetType() != nil && d.GetType().Decl == nil &&
			TypeKind(d.GetType().Kind) != TYPE_NameRef {
			d.GetType().Decl = d
		}
		v.visitType(d.GetType())
		v.curTypeDecl = tmp

	case DECL_VarDecl, DECL_LocalDecl, DECL_ParamDecl, DECL_Field:
		v.visitType(d.GetType())
		if !v.typeUsable(d.GetType()) {
			d.HasErrors = true
		}

	case DECL_ConstDecl:
		if d.Expr != nil {
			v.visitExpr(d.Expr, true)
			d.SetType(d.Expr.GetType())
			d.Data = d.Expr.Val
		} else if d.GetType() == nil {
			d.SetType(v.mdl.GetType(TYPE_NoType))
		} else {
			v.visitType(d.GetType())
		}

	case DECL_Import:
		v.visitImport(d)

	case DECL_Procedure:
		v.visitType(d.GetType())
		pt := d.GetProcType()
		if pt != nil {
			ret := v.deref(pt.TypeRef)
			if ret != nil && ret.IsStructured() {
				v.error(d.Pos, "return type cannot be structured")
			}
			for _, p := range pt.Subs {
				v.visitDecl(p)
			}
		}

	default:
		// other decl kinds: nothing to do
	}

	if d.GetType() != nil && !v.typeUsable(d.GetType()) {
		// resolution failed somewhere below; keep an explicit marker so
		// downstream passes never see a nil type
		if d.GetType().TypeRef == nil && TypeKind(d.GetType().Kind) == TYPE_NameRef {
			d.HasErrors = true
		}
	}
}

// typeUsable reports whether the type resolved to something downstream
// passes can rely on
func (v *Validator) typeUsable(t *Type) bool {
	if t == nil {
		return false
	}
	der := t.Deref()
	return TypeKind(der.Kind) != TYPE_Undefined &&
		(TypeKind(der.Kind) != TYPE_NameRef || der.TypeRef != nil)
}

func (v *Validator) visitImport(importDecl *Declaration) {
	if importDecl == nil {
		return
	}
	if importDecl.Outer == nil || DeclKind(importDecl.Outer.Kind) != DECL_Module {
		v.error(importDecl.Pos, "imports are only supported on module level")
	}
	var mod *Declaration
	impData, _ := importDecl.Data.(*Import)
	if v.imp != nil && impData != nil {
		mod = v.imp.LoadModule(impData)
	}
	if mod != nil {
		mod.HasSubs = true
		importDecl.Link = mod.Link
		impData.Resolved = mod
		importDecl.Data = impData
		v.markRef(mod, impData.ImportedAt)
	} else {
		name := ""
		if impData != nil {
			name = string(impData.ModuleName)
		}
		v.error(importDecl.Pos, fmt.Sprintf("cannot import module '%s'", name))
		importDecl.HasErrors = true
	}
	importDecl.Validated = true
}

func (v *Validator) visitBody(s *Statement) {
	for cur := s; cur != nil; cur = cur.Next {
		v.visitStmt(cur)
	}
}

func (v *Validator) visitStmt(s *Statement) {
	switch s.Kind {
	case STMT_Assig:
		if s.Lhs != nil {
			s.Lhs.NeedsLval = true
		}
		v.visitExpr(s.Lhs, true)
		v.visitExpr(s.Rhs, true)
		if s.Lhs != nil && !s.Lhs.IsLvalue() {
			v.error(s.Lhs.Pos, "cannot assign to this expression")
		}

	case STMT_Call:
		// normalize a bare call designator into an EXPR_Call node
		if s.Lhs != nil && ExprKind(s.Lhs.Kind) != EXPR_Call {
			call := NewExpression(EXPR_Call, s.Lhs.Pos)
			call.Lhs = s.Lhs
			s.Lhs = call
		}
		v.visitExpr(s.Lhs, true)

	case STMT_Return:
		v.visitExpr(s.Rhs, true)

	case STMT_Exit:
		if v.loopDepth == 0 {
			v.error(s.Pos, "EXIT statement only allowed in a LOOP")
		}

	case STMT_IfLoop:
		v.visitIfLoop(s)

	case STMT_ForLoop:
		v.visitForLoop(s)

	case STMT_Case:
		v.visitCase(s)

	case STMT_End:
		// marker only
	}
}

func (v *Validator) visitIfLoop(s *Statement) {
	switch s.Op {
	case LOOP:
		if len(s.Guards) != 0 {
			v.error(s.Pos, "a LOOP statement has no guard")
		}
		v.loopDepth++
		for _, b := range s.Blocks {
			v.visitBody(b)
		}
		v.visitBody(s.Else)
		v.loopDepth--
		return

	case WITH:
		for i, guard := range s.Guards {
			v.visitExpr(guard, true)
			var block *Statement
			if i < len(s.Blocks) {
				block = s.Blocks[i]
			}
			// narrow the tested variable to the tested type inside the block
			if guard != nil && ExprKind(guard.Kind) == EXPR_Is &&
				guard.Lhs != nil && guard.Rhs != nil {
				if d := guard.Lhs.GetIdent(); d != nil && guard.Rhs.GetType() != nil {
					old := d.OverrideType(guard.Rhs.GetType())
					v.visitBody(block)
					d.OverrideType(old)
					continue
				}
			} else if guard != nil {
				v.error(guard.Pos, "WITH guard must be a type test")
			}
			v.visitBody(block)
		}
		v.visitBody(s.Else)
		return
	}

	// IF, WHILE, REPEAT
	if s.Op == WHILE || s.Op == REPEAT {
		if len(s.Guards) != 1 {
			v.error(s.Pos, "loop requires exactly one guard")
		}
	}
	for i, guard := range s.Guards {
		v.visitExpr(guard, true)
		if guard != nil && guard.GetType() != nil && !v.deref(guard.GetType()).IsBoolean() {
			v.error(guard.Pos, "expecting a boolean guard expression")
		}
		if i < len(s.Blocks) {
			v.visitBody(s.Blocks[i])
		}
	}
	v.visitBody(s.Else)
}

func (v *Validator) visitForLoop(s *Statement) {
	if s.Lhs != nil {
		s.Lhs.NeedsLval = true
	}
	v.visitExpr(s.Lhs, true)
	v.visitExpr(s.From, true)
	v.visitExpr(s.To, true)
	if s.Lhs != nil && s.Lhs.GetType() != nil && !v.deref(s.Lhs.GetType()).IsInteger() {
		v.error(s.Lhs.Pos, "control variable must be of integer type")
	}
	if s.By != nil {
		v.visitExpr(s.By, true)
		// a constant step is folded to its numeric form; the expression
		// node stays around for its source position
		if val, ok := v.evalConstInt(s.By); ok {
			if val == 0 {
				v.error(s.By.Pos, "step size cannot be zero")
			} else {
				s.ByVal = val
			}
		} else {
			v.error(s.By.Pos, "expecting a constant integer step size")
		}
	} else {
		s.ByVal = int64(1)
	}
	v.visitBody(s.Body)
}

func (v *Validator) visitCase(s *Statement) {
	v.visitExpr(s.Lhs, true)
	var caseVar *Declaration
	if s.TypeCase && s.Lhs != nil {
		caseVar = s.Lhs.GetIdent()
		if caseVar == nil {
			v.error(s.Lhs.Pos, "type CASE requires a variable as discriminant")
		}
	}
	for _, c := range s.Cases {
		var labelType *Type
		for _, label := range c.Labels {
			v.visitExpr(label, false)
			if s.TypeCase {
				d := label.GetIdent()
				if d == nil || DeclKind(d.Kind) != DECL_TypeDecl {
					v.error(label.Pos, "expecting a type as CASE label")
				} else if labelType == nil {
					labelType = d.GetType()
				}
			} else if !label.IsConst() {
				v.error(label.Pos, "expecting a constant CASE label")
			}
		}
		if s.TypeCase && caseVar != nil && labelType != nil {
			old := caseVar.OverrideType(labelType)
			v.visitBody(c.Block)
			caseVar.OverrideType(old)
		} else {
			v.visitBody(c.Block)
		}
	}
	v.visitBody(s.Else)
}

func (v *Validator) visitExpr(e *Expression, followNext bool) {
	if e == nil {
		return
	}
	switch ExprKind(e.Kind) {
	case EXPR_Plus, EXPR_Minus, EXPR_Not:
		v.visitExpr(e.Lhs, true)
		v.unaryOp(e)

	case EXPR_Eq, EXPR_Neq, EXPR_Lt, EXPR_Leq, EXPR_Gt, EXPR_Geq,
		EXPR_In, EXPR_Is, EXPR_Add, EXPR_Sub, EXPR_Or, EXPR_Mul,
		EXPR_Fdiv, EXPR_Div, EXPR_Mod, EXPR_And:
		v.visitExpr(e.Lhs, true)
		v.visitExpr(e.Rhs, true)
		v.binaryOp(e)

	case EXPR_Literal, EXPR_DeclRef, EXPR_Cast:
		v.resolveNameRef(e.GetType())

	case EXPR_NameRef:
		v.resolveDesig(e)

	case EXPR_Select:
		if e.NeedsLval && e.Lhs != nil {
			e.Lhs.NeedsLval = true
		}
		v.visitExpr(e.Lhs, true)
		v.selectOp(e)

	case EXPR_Deref:
		v.visitExpr(e.Lhs, true)
		v.derefOp(e)

	case EXPR_Addr:
		v.visitExpr(e.Lhs, true)
		if e.Lhs != nil && !e.Lhs.IsLvalue() {
			v.error(e.Pos, "cannot take the address of this expression")
		}

	case EXPR_Index:
		if e.NeedsLval && e.Lhs != nil {
			e.Lhs.NeedsLval = true
		}
		v.visitExpr(e.Lhs, true)
		v.visitExpr(e.Rhs, true)
		v.indexOp(e)

	case EXPR_Call:
		if e.Lhs != nil && ExprKind(e.Lhs.Kind) == EXPR_Super {
			v.visitExpr(e.Lhs.Lhs, true)
		} else if e.Lhs != nil {
			if e.Lhs.Role == NoRole &&
				(ExprKind(e.Lhs.Kind) == EXPR_NameRef || ExprKind(e.Lhs.Kind) == EXPR_Select) {
				e.Lhs.Role = CallRole
			}
			v.visitExpr(e.Lhs, true)
		}
		v.callOp(e)

	case EXPR_Super:
		v.error(e.Pos, "super call cannot be used here")

	case EXPR_Constructor:
		v.setConstructor(e)

	case EXPR_Range:
		v.visitExpr(e.Lhs, true)
		v.visitExpr(e.Rhs, true)
		if e.Lhs != nil {
			e.SetType(e.Lhs.GetType())
		}

	default:
		// Invalid or not expected
	}
	if followNext && e.Next != nil {
		v.visitExpr(e.Next, true)
	}
}

func (v *Validator) unaryOp(e *Expression) {
	if e.Lhs == nil || e.Lhs.GetType() == nil {
		return
	}
	lhsT := v.deref(e.Lhs.GetType())
	switch ExprKind(e.Kind) {
	case EXPR_Plus:
		if !lhsT.IsNumber() {
			v.error(e.Pos, "unary operator not applicable to this type")
			return
		}
	case EXPR_Minus:
		if !lhsT.IsNumber() && !lhsT.IsSet() {
			v.error(e.Pos, "unary operator not applicable to this type")
			return
		}
	case EXPR_Not:
		if !lhsT.IsBoolean() {
			v.error(e.Pos, "unary '~' or 'NOT' not applicable to this type")
			return
		}
	}
	e.SetType(lhsT)
}

func (v *Validator) binaryOp(e *Expression) {
	if e.Lhs == nil || e.Rhs == nil || e.Lhs.GetType() == nil || e.Rhs.GetType() == nil {
		return
	}
	switch ExprKind(e.Kind) {
	case EXPR_Mul, EXPR_Fdiv, EXPR_Div, EXPR_Mod, EXPR_Add, EXPR_Sub, EXPR_And, EXPR_Or:
		e.SetType(v.deref(e.Lhs.GetType()))
	case EXPR_Is:
		rhsT := v.deref(e.Rhs.GetType())
		if !rhsT.IsStructured() && TypeKind(rhsT.Kind) != TYPE_Pointer {
			v.error(e.Rhs.Pos, "IS requires a record or pointer type")
		}
		e.SetType(v.mdl.GetType(TYPE_BOOLEAN))
	case EXPR_In:
		if !v.deref(e.Rhs.GetType()).IsSet() {
			v.error(e.Rhs.Pos, "IN requires a SET on the right side")
		}
		e.SetType(v.mdl.GetType(TYPE_BOOLEAN))
	case EXPR_Eq, EXPR_Neq, EXPR_Lt, EXPR_Leq, EXPR_Gt, EXPR_Geq:
		e.SetType(v.mdl.GetType(TYPE_BOOLEAN))
	default:
	}
}

func (v *Validator) selectOp(e *Expression) {
	if e.Lhs == nil || e.Lhs.GetType() == nil {
		return
	}
	lhsT := v.deref(e.Lhs.GetType())

	// auto-deref pointer left side for field selection
	if TypeKind(lhsT.Kind) == TYPE_Pointer && lhsT.TypeRef != nil {
		tmp := NewExpression(EXPR_Deref, e.Lhs.Pos)
		tmp.Lhs = e.Lhs
		tmp.SetType(lhsT.TypeRef)
		e.Lhs = tmp
		lhsT = v.deref(e.Lhs.GetType())
	}

	if TypeKind(lhsT.Kind) == TYPE_Record {
		if ld := e.Lhs.GetIdent(); ld != nil && DeclKind(ld.Kind) == DECL_TypeDecl {
			v.error(e.Lhs.Pos, "selector expects a variable on the left side")
			return
		}
		field := lhsT.Find(string(e.ValAsBytes()), true)
		if field == nil {
			v.error(e.Pos, fmt.Sprintf("the record doesn't have a field named '%s'", e.ValAsString()))
			v.markUnref(len(e.ValAsString()), e.Pos)
			e.SetType(v.mdl.GetType(TYPE_Undefined))
			return
		}
		s := v.markRef(field, e.Pos)
		if e.NeedsLval && s != nil {
			s.Kind = SYM_Lval
		}
		e.Val = field // field decl or bound procedure
		e.SetType(field.GetType())
		if e.Role == NoRole {
			e.SetRole(v.roleFor(field, e.NeedsLval))
		}
	} else {
		v.error(e.Pos, "cannot select a field in given type")
	}
}

func (v *Validator) derefOp(e *Expression) {
	if e.Lhs == nil || e.Lhs.GetType() == nil {
		return
	}
	// supercall detection: a designator of a bound procedure followed by '^'
	if ExprKind(e.Lhs.Kind) == EXPR_Select || ExprKind(e.Lhs.Kind) == EXPR_DeclRef {
		if d := e.Lhs.GetIdent(); d != nil && DeclKind(d.Kind) == DECL_Procedure {
			if d.Rec == nil {
				v.error(e.Pos, "super calls only supported for type-bound procedures")
			} else {
				e.Kind = int(EXPR_Super)
				e.SetRole(SuperRole)
			}
			return
		}
	}
	lhsT := v.deref(e.Lhs.GetType())
	if TypeKind(lhsT.Kind) == TYPE_Pointer {
		if lhsT.TypeRef != nil {
			e.SetType(lhsT.TypeRef)
		}
	} else {
		v.error(e.Pos, "can only dereference a pointer")
	}
}

func (v *Validator) indexOp(e *Expression) {
	if e.Lhs == nil || e.Rhs == nil || e.Lhs.GetType() == nil || e.Rhs.GetType() == nil {
		return
	}
	lhsT := v.deref(e.Lhs.GetType())
	rhsT := v.deref(e.Rhs.GetType())

	// auto-deref pointer for indexing
	if TypeKind(lhsT.Kind) == TYPE_Pointer && lhsT.TypeRef != nil {
		tmp := NewExpression(EXPR_Deref, e.Lhs.Pos)
		tmp.Lhs = e.Lhs
		tmp.SetType(lhsT.TypeRef)
		e.Lhs = tmp
		lhsT = v.deref(e.Lhs.GetType())
	}

	if lhsT.TypeRef != nil {
		e.SetType(lhsT.TypeRef)
	}
	if TypeKind(lhsT.Kind) == TYPE_Array {
		if !rhsT.IsInteger() {
			v.error(e.Rhs.Pos, "expecting an array index of integer type")
		}
	} else {
		v.error(e.Pos, "cannot index an element in given type")
	}
}

func (v *Validator) callOp(e *Expression) {
	supercall := false
	lhs := e.Lhs
	if lhs != nil && ExprKind(lhs.Kind) == EXPR_Super {
		supercall = true
		lhs = lhs.Lhs
	}
	if lhs == nil || lhs.GetType() == nil {
		return
	}

	proc := lhs.GetIdent()
	procType := v.deref(lhs.GetType())
	if proc != nil && DeclKind(proc.Kind) != DECL_Procedure && DeclKind(proc.Kind) != DECL_Builtin {
		proc = nil
	}
	if TypeKind(procType.Kind) != TYPE_Procedure {
		procType = nil
	}

	// pre-mark arguments passed to VAR parameters before resolving them
	var formals []*Declaration
	if proc != nil {
		formals = proc.GetParams(true)
	} else if procType != nil {
		for _, p := range procType.Subs {
			if !p.Receiver {
				formals = append(formals, p)
			}
		}
	}
	i := 0
	for arg := e.Rhs; arg != nil; arg = arg.Next {
		if i < len(formals) && formals[i].VarParam && arg.Role == NoRole &&
			(ExprKind(arg.Kind) == EXPR_NameRef || ExprKind(arg.Kind) == EXPR_Select) {
			arg.Role = VarRole
			arg.NeedsLval = true
		}
		v.visitExpr(arg, false)
		i++
	}

	// type guard shorthand: call with a type as single argument
	isTypeCast := (proc == nil || DeclKind(proc.Kind) != DECL_Builtin) &&
		e.Rhs != nil &&
		ExprKind(e.Rhs.Kind) == EXPR_DeclRef &&
		func() bool {
			if d := e.Rhs.GetIdent(); d != nil {
				return DeclKind(d.Kind) == DECL_TypeDecl
			}
			return false
		}()

	lhsT := v.deref(lhs.GetType())
	if isTypeCast {
		if supercall {
			v.error(e.Pos, "super call operator cannot be used here")
			return
		}
		e.Kind = int(EXPR_Cast)
		e.SetType(v.deref(e.Rhs.GetType()))
		if e.Rhs.Next != nil {
			v.error(e.Rhs.Next.Pos, "type guard requires a single argument")
		}
		if TypeKind(lhsT.Kind) == TYPE_Pointer && lhsT.TypeRef != nil {
			lhsT = v.deref(lhsT.TypeRef)
		}
		if TypeKind(lhsT.Kind) != TYPE_Record && TypeKind(lhsT.Kind) != TYPE_ANY {
			v.error(e.Rhs.Pos, "a type guard is not supported for this type")
		}
		return
	}

	var ret *Type
	if proc != nil {
		if DeclKind(proc.Kind) == DECL_Builtin {
			ret = proc.GetType()
		} else if pt := proc.GetProcType(); pt != nil {
			ret = pt.TypeRef
		}
	} else if procType == nil {
		v.error(lhs.Pos, "this expression cannot be called")
		return
	} else {
		ret = procType.TypeRef
	}

	if supercall && (proc == nil || proc.Rec == nil || proc.Super == nil) {
		v.error(e.Pos, "super call operator cannot be used here")
		return
	}

	if proc != nil && DeclKind(proc.Kind) == DECL_Builtin {
		v.checkBuiltinArgs(BuiltinKind(proc.ID), e.Rhs, &ret, e.Pos)
	} else {
		argc := 0
		for a := e.Rhs; a != nil; a = a.Next {
			argc++
		}
		if argc != len(formals) {
			v.error(e.Pos, "number of actual doesn't fit number of formal arguments")
		}
	}
	if ret != nil {
		e.SetType(ret)
	} else {
		e.SetType(v.mdl.GetType(TYPE_NoType))
	}
}

// setConstructor validates a set constructor { }; elements and ranges must
// lie in [0,31]. A fully constant constructor is folded into a set literal.
func (v *Validator) setConstructor(e *Expression) {
	e.SetType(v.mdl.GetType(TYPE_SET))
	allConst := true
	var bits uint32
	for comp := e.Rhs; comp != nil; comp = comp.Next {
		if ExprKind(comp.Kind) == EXPR_Constructor {
			v.error(comp.Pos, "component type not supported for SET constructors")
			return
		}
		v.visitExpr(comp, false)
		if ExprKind(comp.Kind) == EXPR_Range {
			lo, okLo := v.evalConstInt(comp.Lhs)
			hi, okHi := v.evalConstInt(comp.Rhs)
			if okLo && okHi {
				var ok bool
				bits, ok = AddSetRange(bits, lo, hi)
				if !ok {
					v.error(comp.Pos, fmt.Sprintf("set element out of range 0..%d", SetBitLen-1))
				}
			} else {
				allConst = false
			}
			continue
		}
		if comp.GetType() != nil && !v.deref(comp.GetType()).IsInteger() {
			v.error(comp.Pos, "expecting integer components for SET constructors")
			return
		}
		if val, ok := v.evalConstInt(comp); ok {
			var okBit bool
			bits, okBit = AddSetBit(bits, val)
			if !okBit {
				v.error(comp.Pos, fmt.Sprintf("set element out of range 0..%d", SetBitLen-1))
			}
		} else {
			allConst = false
		}
	}
	if allConst {
		e.Kind = int(EXPR_Literal)
		e.LitKind = LIT_Set
		e.Val = bits
		e.Rhs = nil
	}
}

// evalConstInt evaluates a constant integer expression
func (v *Validator) evalConstInt(e *Expression) (int64, bool) {
	if e == nil {
		return 0, false
	}
	switch ExprKind(e.Kind) {
	case EXPR_Literal:
		switch val := e.Val.(type) {
		case int64:
			return val, true
		case int:
			return int64(val), true
		}
	case EXPR_DeclRef:
		if d := e.GetIdent(); d != nil && DeclKind(d.Kind) == DECL_ConstDecl {
			switch val := d.Data.(type) {
			case int64:
				return val, true
			case int:
				return int64(val), true
			}
		}
	case EXPR_Plus:
		return v.evalConstInt(e.Lhs)
	case EXPR_Minus:
		if val, ok := v.evalConstInt(e.Lhs); ok {
			return -val, true
		}
	case EXPR_Add, EXPR_Sub, EXPR_Mul, EXPR_Div, EXPR_Mod:
		l, okL := v.evalConstInt(e.Lhs)
		r, okR := v.evalConstInt(e.Rhs)
		if !okL || !okR {
			return 0, false
		}
		switch ExprKind(e.Kind) {
		case EXPR_Add:
			return l + r, true
		case EXPR_Sub:
			return l - r, true
		case EXPR_Mul:
			return l * r, true
		case EXPR_Div:
			if r != 0 {
				return l / r, true
			}
		case EXPR_Mod:
			if r != 0 {
				return l % r, true
			}
		}
	}
	return 0, false
}

func (v *Validator) deref(t *Type) *Type {
	if t == nil {
		return v.mdl.GetType(TYPE_NoType)
	}
	if TypeKind(t.Kind) == TYPE_NameRef {
		if !t.Validated {
			v.resolveNameRef(t)
		}
		return t.Deref()
	}
	return t
}

// resolveNameRef resolves a QualiType, including generic instantiation
// when meta actuals are present
func (v *Validator) resolveNameRef(nameRef *Type) {
	if nameRef == nil || TypeKind(nameRef.Kind) != TYPE_NameRef {
		return
	}
	if nameRef.Validated {
		return
	}
	if nameRef.Quali == nil {
		return
	}
	nameRef.Validated = true
	q := *nameRef.Quali
	rFirst, rSecond := v.find(q, nameRef.Pos)
	if rSecond == nil {
		return
	}
	pos := nameRef.Pos
	if rFirst != nil {
		v.markRef(rFirst, pos)
		pos.Col += uint32(len(q.First)) + 1
	}
	v.markRef(rSecond, pos)
	if DeclKind(rSecond.Kind) != DECL_TypeDecl && DeclKind(rSecond.Kind) != DECL_Generic {
		v.error(nameRef.Pos, "identifier doesn't refer to a type declaration")
		return
	}
	nameRef.Decl = rSecond

	if rSecond == v.curTypeDecl {
		// the type names its own declaration; point at the type under
		// construction instead of recursing into it
		nameRef.SelfRef = true
		nameRef.SetType(rSecond.GetType())
		return
	}

	if len(nameRef.MetaActuals) > 0 {
		for _, a := range nameRef.MetaActuals {
			v.visitType(a)
		}
		if len(GetMetaParams(rSecond)) == 0 {
			v.error(nameRef.Pos, "type declaration has no generic parameters")
			nameRef.SetType(v.mdl.GetType(TYPE_Undefined))
			return
		}
		inst := v.mdl.Instantiate(rSecond, nameRef.MetaActuals)
		if TypeKind(inst.Kind) == TYPE_Undefined {
			v.error(nameRef.Pos, "number of actual doesn't fit number of generic parameters")
		}
		nameRef.SetType(inst)
		return
	}

	if len(GetMetaParams(rSecond)) > 0 {
		v.error(nameRef.Pos, "expecting actual types for the generic type parameters")
		nameRef.SetType(v.mdl.GetType(TYPE_Undefined))
		return
	}

	nameRef.SetType(rSecond.GetType())
	// ensure nested NameRefs are resolved
	v.resolveNameRef(rSecond.GetType())
}

// roleFor computes the identifier role fixed at resolution time
func (v *Validator) roleFor(d *Declaration, needsLval bool) IdentRole {
	switch DeclKind(d.Kind) {
	case DECL_Import:
		return ImportRole
	case DECL_ParamDecl:
		if d.Receiver {
			return ThisRole
		}
	case DECL_Procedure:
		if d.Rec != nil {
			return MethRole
		}
		return CallRole
	case DECL_Builtin:
		return CallRole
	}
	if needsLval {
		return LhsRole
	}
	return RhsRole
}

func (v *Validator) resolveDesig(nameRef *Expression) {
	if nameRef == nil || ExprKind(nameRef.Kind) != EXPR_NameRef || len(v.scopeStack) == 0 {
		return
	}
	q, _ := nameRef.Val.(*Qualident)
	if q == nil {
		return
	}
	rFirst, rSecond := v.find(*q, nameRef.Pos)
	pos := nameRef.Pos
	if rSecond == nil {
		if rFirst != nil {
			v.markRef(rFirst, pos)
			pos.Col += uint32(len(q.First)) + 1
		}
		v.markUnref(len(q.Second), pos)
		nameRef.SetType(v.mdl.GetType(TYPE_Undefined))
		return
	}
	if rFirst != nil {
		v.markRef(rFirst, pos)
		pos.Col += uint32(len(q.First)) + 1
	}
	s := v.markRef(rSecond, pos)
	if nameRef.NeedsLval && s != nil {
		s.Kind = SYM_Lval
	}
	v.resolveNameRef(rSecond.GetType())
	nameRef.Kind = int(EXPR_DeclRef)
	nameRef.Val = rSecond
	nameRef.SetType(rSecond.GetType())
	if nameRef.Role == NoRole {
		nameRef.SetRole(v.roleFor(rSecond, nameRef.NeedsLval))
	}

	// locals and params captured from an outer procedure scope
	if DeclKind(rSecond.Kind) == DECL_LocalDecl || DeclKind(rSecond.Kind) == DECL_ParamDecl {
		if rSecond.Outer != nil && rSecond.Outer != v.scopeStack[len(v.scopeStack)-1] {
			nameRef.Nonlocal = true
		}
	}
}

// find resolves a Qualident to (importDecl, memberDecl) or (nil, decl).
// Cross-module lookup respects declared visibility; lexical lookup walks
// the scope stack up to the module, then built-ins.
func (v *Validator) find(q Qualident, pos RowCol) (*Declaration, *Declaration) {
	if len(v.scopeStack) == 0 {
		return nil, nil
	}
	var res1 *Declaration = nil
	var res2 *Declaration = nil
	if len(q.First) > 0 {
		importDecl := v.scopeStack[len(v.scopeStack)-1].Find(string(q.First), true)
		if importDecl == nil || DeclKind(importDecl.Kind) != DECL_Import {
			v.error(pos, "identifier doesn't refer to an imported module")
			v.markUnref(len(q.First), pos)
			return nil, nil
		}
		if !importDecl.Validated {
			v.visitImport(importDecl)
		}
		res1 = importDecl
		member := v.mdl.FindDeclInImport(importDecl, string(q.Second))
		pos.Col += uint32(len(q.First)) + 1
		if member == nil {
			v.error(pos, fmt.Sprintf("declaration '%s' not found in imported module '%s'", string(q.Second), string(q.First)))
			v.markUnref(len(q.Second), pos)
		} else {
			if member.Visi == VISI_Private {
				v.error(pos, fmt.Sprintf("cannot access private declaration '%s' from module '%s'", string(q.Second), string(q.First)))
			}
			res2 = member
		}
	} else {
		// unqualified: search current + outers up to module
		var d *Declaration
		nested := v.scopeStack[len(v.scopeStack)-1]
		for d == nil && nested != nil && DeclKind(nested.Kind) != DECL_Module {
			d = nested.Find(string(q.Second), false) // local vars first
			nested = nested.Outer
		}
		// within a bound procedure, also search the record members
		if d == nil {
			if rec := v.curReceiverRec(); rec != nil {
				d = rec.Find(string(q.Second), true)
			}
		}
		// the type declaration being validated is itself a scope holding
		// the meta parameters of a generic type
		if d == nil && v.curTypeDecl != nil {
			d = v.curTypeDecl.Find(string(q.Second), false)
		}
		// module-level
		if d == nil && v.module != nil {
			d = v.module.Find(string(q.Second), false)
		}
		// built-ins
		if d == nil {
			d = v.mdl.FindDecl(string(q.Second), false)
		}
		if d == nil {
			v.error(pos, fmt.Sprintf("declaration '%s' not found", string(q.Second)))
			v.markUnref(len(q.Second), pos)
		}
		res2 = d
	}
	return res1, res2
}

// curReceiverRec returns the record of the innermost bound procedure on
// the scope stack, or nil
func (v *Validator) curReceiverRec() *Type {
	for i := len(v.scopeStack) - 1; i >= 0; i-- {
		d := v.scopeStack[i]
		if DeclKind(d.Kind) == DECL_Procedure && d.Rec != nil {
			return d.Rec
		}
		if DeclKind(d.Kind) == DECL_Module {
			break
		}
	}
	return nil
}

func (v *Validator) visitType(typ *Type) {
	if typ == nil || typ.Validated {
		return
	}
	typ.Validated = true
	switch TypeKind(typ.Kind) {
	case TYPE_Pointer:
		v.visitType(typ.TypeRef)
		pointee := v.deref(typ.TypeRef)
		if TypeKind(pointee.Kind) != TYPE_Record && TypeKind(pointee.Kind) != TYPE_Array &&
			TypeKind(pointee.Kind) != TYPE_Undefined {
			v.error(typ.Pos, "a pointer can only point to a record or an array")
		}
		// anonymous record gets a back reference to its pointer
		if TypeKind(pointee.Kind) == TYPE_Record && pointee.Decl == nil && pointee.Binding == nil {
			pointee.Binding = typ
		}

	case TYPE_Record:
		v.visitRecord(typ)

	case TYPE_Procedure:
		for _, d := range typ.Subs {
			v.visitDecl(d)
		}
		v.visitType(typ.TypeRef)
		ret := v.deref(typ.TypeRef)
		if ret != nil && ret.IsStructured() {
			v.error(typ.Pos, "return type cannot be structured")
		}

	case TYPE_Array:
		if typ.Expr != nil {
			v.visitExpr(typ.Expr, true)
			if !typ.Expr.IsConst() || !v.deref(typ.Expr.GetType()).IsInteger() {
				v.error(typ.Expr.Pos, "expecting constant integer expression")
			} else if val, ok := v.evalConstInt(typ.Expr); ok {
				if val <= 0 {
					v.error(typ.Expr.Pos, "array length must be positive")
				} else {
					typ.Len = uint32(val)
				}
			}
		}
		v.visitType(typ.TypeRef)

	case TYPE_Enumeration:
		var next int64
		for _, d := range typ.Subs {
			d.Validated = true
			d.Kind = int(DECL_ConstDecl)
			d.SetType(typ)
			if d.Data == nil {
				d.Data = next
			}
			if val, ok := d.Data.(int64); ok {
				next = val + 1
			}
		}

	case TYPE_NameRef:
		// force resolve
		typ.Validated = false
		v.resolveNameRef(typ)

	default:
		// basic types or no-type do nothing
	}
}

// visitRecord resolves the base type, links the inheritance graph, and
// validates fields and bound procedures
func (v *Validator) visitRecord(typ *Type) {
	if typ.TypeRef != nil {
		v.resolveNameRef(typ.TypeRef)
		base := typ.TypeRef.Deref()
		if TypeKind(base.Kind) == TYPE_Pointer && base.TypeRef != nil {
			base = base.TypeRef.Deref()
		}
		if TypeKind(base.Kind) != TYPE_Record {
			if TypeKind(base.Kind) != TYPE_Undefined {
				v.error(typ.TypeRef.Pos, "invalid base record")
			}
		} else if v.inheritanceCycle(typ, base) {
			v.error(typ.TypeRef.Pos, "record inheritance cycle")
		} else {
			typ.BaseRec = base
			base.SubRecs = append(base.SubRecs, typ)
			if base.Decl != nil {
				base.Decl.HasSubs = true
				if typ.Decl != nil {
					typ.Decl.Super = base.Decl
					base.Decl.Subs = append(base.Decl.Subs, typ.Decl)
					if v.haveXref {
						v.subs[base.Decl] = append(v.subs[base.Decl], typ.Decl)
					}
				}
			}
		}
	}

	var boundProcs []*Declaration
	for i, d := range typ.Subs {
		// duplicate member names are a structural error; the node stays
		// in the list for diagnostics
		for _, prev := range typ.Subs[:i] {
			if len(d.Name) > 0 && string(prev.Name) == string(d.Name) {
				v.error(d.Pos, fmt.Sprintf("duplicate member name '%s'", string(d.Name)))
				d.HasErrors = true
			}
		}
		if DeclKind(d.Kind) == DECL_Procedure {
			d.Rec = typ
			boundProcs = append(boundProcs, d)
		}
		v.visitDecl(d)
	}

	// inherited field shadowing: same name with a compatible type is a
	// specialization, anything else is an error
	if typ.BaseRec != nil {
		for _, d := range typ.Subs {
			if DeclKind(d.Kind) != DECL_Field || d.HasErrors {
				continue
			}
			inherited := typ.BaseRec.Find(string(d.Name), true)
			if inherited == nil || DeclKind(inherited.Kind) != DECL_Field {
				continue
			}
			if v.specializationOk(d.GetType(), inherited.GetType()) {
				d.Specialization = true
			} else {
				v.error(d.Pos, fmt.Sprintf("field '%s' hides an inherited field of incompatible type", string(d.Name)))
				d.HasErrors = true
			}
		}
	}

	// link overriding procedures to the overridden super procedure
	for _, proc := range boundProcs {
		if typ.BaseRec == nil {
			break
		}
		superDecl := typ.BaseRec.Find(string(proc.Name), true)
		if superDecl == nil || DeclKind(superDecl.Kind) != DECL_Procedure {
			continue
		}
		if !v.matchingSignature(proc.GetProcType(), superDecl.GetProcType()) {
			v.error(proc.Pos, fmt.Sprintf("procedure '%s' doesn't match the signature of the inherited procedure", string(proc.Name)))
			proc.HasErrors = true
			continue
		}
		proc.Super = superDecl
		superDecl.HasSubs = true
		superDecl.Subs = append(superDecl.Subs, proc)
		if v.haveXref {
			v.subs[superDecl] = append(v.subs[superDecl], proc)
		}
	}
}

// inheritanceCycle reports whether linking typ under base would close a
// cycle in the base chain
func (v *Validator) inheritanceCycle(typ, base *Type) bool {
	seen := map[*Type]bool{}
	for cur := base; cur != nil; cur = cur.BaseRec {
		if cur == typ {
			return true
		}
		if seen[cur] {
			return true
		}
		seen[cur] = true
	}
	return false
}

// equalTypes is the structural/nominal equivalence used for signatures
func (v *Validator) equalTypes(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	da := a.Deref()
	db := b.Deref()
	if da == db {
		return true
	}
	if da.Kind != db.Kind {
		return false
	}
	switch TypeKind(da.Kind) {
	case TYPE_Pointer:
		return v.equalTypes(da.TypeRef, db.TypeRef)
	case TYPE_Array:
		return da.Len == db.Len && v.equalTypes(da.TypeRef, db.TypeRef)
	case TYPE_Procedure:
		return v.matchingSignature(da, db)
	case TYPE_Record, TYPE_Enumeration:
		return false // nominal
	}
	return true // same basic kind
}

// matchingSignature checks formal lists (receiver excluded) and return type
func (v *Validator) matchingSignature(a, b *Type) bool {
	if a == nil || b == nil {
		return false
	}
	var fa, fb []*Declaration
	for _, p := range a.Subs {
		if !p.Receiver {
			fa = append(fa, p)
		}
	}
	for _, p := range b.Subs {
		if !p.Receiver {
			fb = append(fb, p)
		}
	}
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i].VarParam != fb[i].VarParam {
			return false
		}
		if !v.equalTypes(fa[i].GetType(), fb[i].GetType()) {
			return false
		}
	}
	return v.equalTypes(a.TypeRef, b.TypeRef)
}

// isSubRecordOf walks the base chain of sub looking for super
func (v *Validator) isSubRecordOf(sub, super *Type) bool {
	seen := map[*Type]bool{}
	for cur := sub; cur != nil && !seen[cur]; cur = cur.BaseRec {
		if cur == super {
			return true
		}
		seen[cur] = true
	}
	return false
}

// specializationOk reports whether a field of type sub may shadow an
// inherited field of type super
func (v *Validator) specializationOk(sub, super *Type) bool {
	if sub == nil || super == nil {
		return false
	}
	ds := sub.Deref()
	dp := super.Deref()
	if v.equalTypes(ds, dp) {
		return true
	}
	if ds.IsInteger() && dp.IsInteger() {
		return true
	}
	if ds.IsReal() && dp.IsReal() {
		return true
	}
	if TypeKind(ds.Kind) == TYPE_Record && TypeKind(dp.Kind) == TYPE_Record {
		return v.isSubRecordOf(ds, dp)
	}
	if TypeKind(ds.Kind) == TYPE_Pointer && TypeKind(dp.Kind) == TYPE_Pointer &&
		ds.TypeRef != nil && dp.TypeRef != nil {
		return v.isSubRecordOf(ds.TypeRef.Deref(), dp.TypeRef.Deref())
	}
	return false
}

// checkBuiltinArgs checks arity and infers the return type of built-in
// calls; argument types are mostly left unchecked like the original.
func (v *Validator) checkBuiltinArgs(builtin BuiltinKind, args *Expression, ret **Type, pos RowCol) bool {
	if ret == nil {
		return false
	}
	*ret = v.mdl.GetType(TYPE_NoType)

	argc := 0
	for a := args; a != nil; a = a.Next {
		argc++
		if a.GetType() == nil {
			return false
		}
	}
	expect := func(min, max int) bool {
		if argc < min || argc > max {
			if min == max {
				v.error(pos, fmt.Sprintf("expecting %d argument(s)", min))
			} else {
				v.error(pos, fmt.Sprintf("expecting %d to %d arguments", min, max))
			}
			return false
		}
		return true
	}

	switch builtin {
	case BUILTIN_ABS, BUILTIN_LONG, BUILTIN_SHORT:
		if !expect(1, 1) {
			return false
		}
		*ret = args.GetType()
	case BUILTIN_ODD:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_BOOLEAN)
	case BUILTIN_LEN, BUILTIN_STRLEN:
		if !expect(1, 2) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_LONGINT)
	case BUILTIN_LSL, BUILTIN_ASR, BUILTIN_ROR, BUILTIN_ASH:
		if !expect(2, 2) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_LONGINT)
	case BUILTIN_FLOOR, BUILTIN_ENTIER:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_LONGINT)
	case BUILTIN_FLT:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_REAL)
	case BUILTIN_ORD:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_INTEGER)
	case BUILTIN_CHR:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_CHAR)
	case BUILTIN_WCHR:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_WCHAR)
	case BUILTIN_CAP:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_CHAR)
	case BUILTIN_MAX, BUILTIN_MIN:
		if !expect(1, 2) {
			return false
		}
		if v.deref(args.GetType()).IsSet() {
			*ret = v.mdl.GetType(TYPE_INTEGER)
		} else {
			*ret = args.GetType()
		}
	case BUILTIN_SIZE:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_LONGINT)
	case BUILTIN_BITS:
		if !expect(1, 1) {
			return false
		}
		*ret = v.mdl.GetType(TYPE_SET)
	case BUILTIN_VAL:
		if !expect(2, 2) {
			return false
		}
		*ret = args.GetType()
	case BUILTIN_INC, BUILTIN_DEC:
		if !expect(1, 2) {
			return false
		}
	case BUILTIN_INCL, BUILTIN_EXCL, BUILTIN_COPY:
		if !expect(2, 2) {
			return false
		}
	case BUILTIN_NEW:
		if !expect(1, 3) {
			return false
		}
	case BUILTIN_ASSERT, BUILTIN_TRAPIF:
		if !expect(1, 2) {
			return false
		}
	case BUILTIN_HALT:
		if !expect(1, 1) {
			return false
		}
	case BUILTIN_PACK, BUILTIN_UNPK:
		if !expect(2, 2) {
			return false
		}
	default:
		// SYSTEM and remaining built-ins: accept with no shape checks
	}
	return true
}
