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

package Obx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// test fixture helpers constructing modules the way a parser would

type fixture struct {
	mdl *AstModel
	mod *Declaration
}

func newFixture(name string) *fixture {
	mod := NewDeclaration()
	mod.Kind = int(DECL_Module)
	mod.Name = []byte(name)
	mod.Data = ModuleData{SourcePath: name + ".obx", FullName: []byte(name)}
	return &fixture{mdl: NewAstModel(), mod: mod}
}

func (f *fixture) validate(t *testing.T) *Validator {
	t.Helper()
	v := NewValidator(f.mdl, NewOakwood(f.mdl, nil), false)
	v.Validate(f.mod, nil)
	return v
}

func (f *fixture) typeDecl(name string, typ *Type) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_TypeDecl)
	d.Name = []byte(name)
	d.Visi = VISI_ReadWrite
	d.SetType(typ)
	f.mod.AppendMember(d)
	return d
}

func (f *fixture) varDecl(name string, typ *Type) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_VarDecl)
	d.Name = []byte(name)
	d.SetType(typ)
	f.mod.AppendMember(d)
	return d
}

func (f *fixture) constDecl(name string, value *Expression) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_ConstDecl)
	d.Name = []byte(name)
	d.Expr = value
	f.mod.AppendMember(d)
	return d
}

func (f *fixture) importDecl(module string) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_Import)
	d.Name = []byte(module)
	d.Data = &Import{ModuleName: []byte(module), Importer: f.mod}
	f.mod.AppendMember(d)
	return d
}

// typeRef builds an unresolved named type the way the parser leaves it
func (f *fixture) typeRef(name string) *Type {
	t := f.mdl.NewType(TYPE_NameRef, RowCol{})
	t.Quali = NewQualident(nil, []byte(name))
	return t
}

// genericParam attaches a meta parameter to a type declaration
func (f *fixture) genericParam(decl *Declaration, name string) *Declaration {
	g := NewDeclaration()
	g.Kind = int(DECL_Generic)
	g.Name = []byte(name)
	g.Outer = decl
	decl.Link = g
	return g
}

// record builds a record type, optionally derived from a named base
func (f *fixture) record(base string) *Type {
	rec := f.mdl.NewType(TYPE_Record, RowCol{})
	if base != "" {
		ref := f.mdl.NewType(TYPE_NameRef, RowCol{})
		ref.Quali = NewQualident(nil, []byte(base))
		rec.TypeRef = ref
	}
	return rec
}

func (f *fixture) field(rec *Type, name string, typ *Type) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_Field)
	d.Name = []byte(name)
	d.SetType(typ)
	rec.Subs = append(rec.Subs, d)
	return d
}

// method adds a bound procedure with the given non-receiver formal types
func (f *fixture) method(rec *Type, name string, formals ...*Type) *Declaration {
	d := NewDeclaration()
	d.Kind = int(DECL_Procedure)
	d.Name = []byte(name)
	pt := f.mdl.NewType(TYPE_Procedure, RowCol{})
	recv := NewDeclaration()
	recv.Kind = int(DECL_ParamDecl)
	recv.Name = []byte("self")
	recv.Receiver = true
	recv.SetType(rec)
	recv.Outer = d
	pt.Subs = append(pt.Subs, recv)
	for i, ft := range formals {
		p := NewDeclaration()
		p.Kind = int(DECL_ParamDecl)
		p.Name = []byte{byte('a' + i)}
		p.SetType(ft)
		p.Outer = d
		pt.Subs = append(pt.Subs, p)
	}
	d.SetType(pt)
	rec.Subs = append(rec.Subs, d)
	return d
}

func nameRef(name string) *Expression {
	e := NewExpression(EXPR_NameRef, NewRowCol(1, 1))
	e.Val = NewQualident(nil, []byte(name))
	return e
}

func qualRef(first, second string) *Expression {
	e := NewExpression(EXPR_NameRef, NewRowCol(1, 1))
	e.Val = NewQualident([]byte(first), []byte(second))
	return e
}

func intLit(mdl *AstModel, v int64) *Expression {
	return NewLiteral(LIT_Integer, NewRowCol(1, 1), v, mdl.GetType(TYPE_INTEGER))
}

func TestRecordInheritanceLinking(t *testing.T) {
	f := newFixture("M")
	aRec := f.record("")
	f.field(aRec, "x", f.mdl.GetType(TYPE_INTEGER))
	aDecl := f.typeDecl("A", aRec)

	bRec := f.record("A")
	f.field(bRec, "y", f.mdl.GetType(TYPE_REAL))
	bDecl := f.typeDecl("B", bRec)

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Same(t, aRec, bRec.BaseRec)
	require.Len(t, aRec.SubRecs, 1)
	assert.Same(t, bRec, aRec.SubRecs[0])
	assert.Same(t, aDecl, bDecl.Super)
	assert.True(t, aDecl.HasSubs)
	require.Len(t, aDecl.Subs, 1)
	assert.Same(t, bDecl, aDecl.Subs[0])

	// inherited members are found through the base chain
	assert.NotNil(t, bRec.Find("x", true))
	assert.Nil(t, bRec.Find("x", false))
}

func TestFieldSpecialization(t *testing.T) {
	f := newFixture("M")
	aRec := f.record("")
	f.field(aRec, "x", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("A", aRec)

	bRec := f.record("A")
	bx := f.field(bRec, "x", f.mdl.GetType(TYPE_LONGINT))
	f.typeDecl("B", bRec)

	cRec := f.record("A")
	f.field(cRec, "x", f.mdl.GetType(TYPE_BOOLEAN))
	cx := cRec.Subs[0]
	f.typeDecl("C", cRec)

	v := f.validate(t)

	// a shadowing field of compatible type is a specialization
	assert.True(t, bx.Specialization)
	assert.Same(t, bx, bRec.Find("x", true))

	// an incompatible shadow is rejected
	assert.NotEmpty(t, v.Errors)
	assert.True(t, cx.HasErrors)
	assert.False(t, cx.Specialization)
}

func TestMethodOverrideLinking(t *testing.T) {
	f := newFixture("M")
	aRec := f.record("")
	ap := f.method(aRec, "P", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("A", aRec)

	bRec := f.record("A")
	bp := f.method(bRec, "P", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("B", bRec)

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Same(t, ap, bp.Super)
	assert.True(t, ap.HasSubs)
	require.Len(t, ap.Subs, 1)
	assert.Same(t, bp, ap.Subs[0])
	assert.Same(t, aRec, ap.Rec)
	assert.Same(t, bRec, bp.Rec)
}

func TestMethodOverrideSignatureMismatch(t *testing.T) {
	f := newFixture("M")
	aRec := f.record("")
	f.method(aRec, "P", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("A", aRec)

	bRec := f.record("A")
	bp := f.method(bRec, "P", f.mdl.GetType(TYPE_BOOLEAN))
	f.typeDecl("B", bRec)

	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
	assert.Nil(t, bp.Super)
	assert.True(t, bp.HasErrors)
}

func TestInheritanceCycleReported(t *testing.T) {
	f := newFixture("M")
	aRec := f.record("B")
	f.typeDecl("A", aRec)
	bRec := f.record("A")
	f.typeDecl("B", bRec)

	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
	// the cycle is broken; walking the base chain must terminate
	seen := 0
	for cur := bRec; cur != nil && seen < 10; cur = cur.BaseRec {
		seen++
	}
	assert.Less(t, seen, 10)
}

func TestDuplicateRecordMember(t *testing.T) {
	f := newFixture("M")
	rec := f.record("")
	first := f.field(rec, "x", f.mdl.GetType(TYPE_INTEGER))
	f.field(rec, "x", f.mdl.GetType(TYPE_REAL))
	f.typeDecl("T", rec)

	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
	// lookups keep returning the first member
	assert.Same(t, first, rec.Find("x", false))
}

func TestIdentifierRoles(t *testing.T) {
	f := newFixture("M")
	f.varDecl("a", f.mdl.GetType(TYPE_INTEGER))
	f.varDecl("b", f.mdl.GetType(TYPE_INTEGER))

	lhs := nameRef("a")
	rhs := nameRef("b")
	assig := NewStatement(STMT_Assig, NewRowCol(2, 1))
	assig.Lhs = lhs
	assig.Rhs = rhs
	f.mod.Body = assig

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Equal(t, int(EXPR_DeclRef), lhs.Kind)
	assert.Equal(t, LhsRole, lhs.Role)
	assert.Equal(t, RhsRole, rhs.Role)
}

func TestImportAndQualifiedCall(t *testing.T) {
	f := newFixture("M")
	f.importDecl("Out")

	callee := qualRef("Out", "Ln")
	call := NewStatement(STMT_Call, NewRowCol(2, 1))
	call.Lhs = callee
	f.mod.Body = call

	v := f.validate(t)
	require.Empty(t, v.Errors)
	assert.Equal(t, CallRole, callee.Role)
	d := callee.GetIdent()
	require.NotNil(t, d)
	assert.Equal(t, "Ln", string(d.Name))
}

func TestUnknownImportReported(t *testing.T) {
	f := newFixture("M")
	imp := f.importDecl("NoSuchModule")
	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
	assert.True(t, imp.HasErrors)
}

func TestUnresolvedTypeFlagsDeclaration(t *testing.T) {
	f := newFixture("M")
	ref := f.mdl.NewType(TYPE_NameRef, RowCol{})
	ref.Quali = NewQualident(nil, []byte("Unknown"))
	d := f.varDecl("v", ref)

	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
	assert.True(t, d.HasErrors)
}

func TestSetConstructorFolding(t *testing.T) {
	f := newFixture("M")
	ctor := NewExpression(EXPR_Constructor, NewRowCol(1, 1))
	ctor.AppendRhs(intLit(f.mdl, 1))
	ctor.AppendRhs(intLit(f.mdl, 3))
	rng := NewExpression(EXPR_Range, NewRowCol(1, 1))
	rng.Lhs = intLit(f.mdl, 8)
	rng.Rhs = intLit(f.mdl, 9)
	ctor.AppendRhs(rng)
	d := f.constDecl("s", ctor)

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Equal(t, int(EXPR_Literal), ctor.Kind)
	assert.Equal(t, LIT_Set, ctor.LitKind)
	bits, ok := ctor.Val.(uint32)
	require.True(t, ok)
	assert.Equal(t, []int{1, 3, 8, 9}, SetElements(bits))
	assert.Equal(t, bits, d.Data)
}

func TestSetElementOutOfRange(t *testing.T) {
	f := newFixture("M")
	ctor := NewExpression(EXPR_Constructor, NewRowCol(1, 1))
	ctor.AppendRhs(intLit(f.mdl, 32))
	f.constDecl("s", ctor)

	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)
}

func TestSetInvertedRangeIsEmpty(t *testing.T) {
	f := newFixture("M")
	ctor := NewExpression(EXPR_Constructor, NewRowCol(1, 1))
	rng := NewExpression(EXPR_Range, NewRowCol(1, 2))
	rng.Lhs = intLit(f.mdl, 5)
	rng.Rhs = intLit(f.mdl, 3)
	ctor.AppendRhs(rng)
	f.constDecl("s", ctor)

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Equal(t, int(EXPR_Literal), ctor.Kind)
	bits, ok := ctor.Val.(uint32)
	require.True(t, ok)
	assert.Equal(t, uint32(0), bits)
}

func TestForLoopStepFolding(t *testing.T) {
	f := newFixture("M")
	f.varDecl("i", f.mdl.GetType(TYPE_INTEGER))

	mk := func(step *Expression) *Statement {
		s := NewStatement(STMT_ForLoop, NewRowCol(2, 1))
		s.Lhs = nameRef("i")
		s.From = intLit(f.mdl, 1)
		s.To = intLit(f.mdl, 10)
		s.By = step
		return s
	}

	loop := mk(intLit(f.mdl, 2))
	f.mod.Body = loop
	v := f.validate(t)
	require.Empty(t, v.Errors)
	assert.Equal(t, int64(2), loop.ByVal)

	// a missing step defaults to one
	f2 := newFixture("M2")
	f2.varDecl("i", f2.mdl.GetType(TYPE_INTEGER))
	loop2 := mk(nil)
	loop2.Lhs = nameRef("i")
	loop2.From = intLit(f2.mdl, 1)
	loop2.To = intLit(f2.mdl, 10)
	f2.mod.Body = loop2
	v2 := f2.validate(t)
	require.Empty(t, v2.Errors)
	assert.Equal(t, int64(1), loop2.ByVal)

	// a zero step is rejected
	f3 := newFixture("M3")
	f3.varDecl("i", f3.mdl.GetType(TYPE_INTEGER))
	loop3 := mk(intLit(f3.mdl, 0))
	loop3.Lhs = nameRef("i")
	loop3.From = intLit(f3.mdl, 1)
	loop3.To = intLit(f3.mdl, 10)
	f3.mod.Body = loop3
	v3 := f3.validate(t)
	assert.NotEmpty(t, v3.Errors)
}

func TestExitOnlyInsideLoop(t *testing.T) {
	f := newFixture("M")
	f.mod.Body = NewStatement(STMT_Exit, NewRowCol(2, 1))
	v := f.validate(t)
	assert.NotEmpty(t, v.Errors)

	f2 := newFixture("M2")
	loop := NewIfLoop(LOOP, NewRowCol(2, 1))
	loop.Blocks = append(loop.Blocks, NewStatement(STMT_Exit, NewRowCol(3, 1)))
	f2.mod.Body = loop
	v2 := f2.validate(t)
	assert.Empty(t, v2.Errors)
}

func TestLoopGuardShapes(t *testing.T) {
	f := newFixture("M")
	f.varDecl("a", f.mdl.GetType(TYPE_INTEGER))

	while := NewIfLoop(WHILE, NewRowCol(2, 1))
	guard := NewLiteral(LIT_Boolean, NewRowCol(2, 7), true, f.mdl.GetType(TYPE_BOOLEAN))
	while.AddGuard(guard, nil)
	f.mod.Body = while
	v := f.validate(t)
	assert.Empty(t, v.Errors)

	// a non-boolean guard is rejected
	f2 := newFixture("M2")
	while2 := NewIfLoop(WHILE, NewRowCol(2, 1))
	while2.AddGuard(intLit(f2.mdl, 1), nil)
	f2.mod.Body = while2
	v2 := f2.validate(t)
	assert.NotEmpty(t, v2.Errors)
}

// narrowedFixture builds records A and B (B extends A with an extra
// field y) plus a variable v of static type A.
func narrowedFixture(t *testing.T) (*fixture, *Type, *Declaration, *Declaration) {
	t.Helper()
	f := newFixture("M")
	aRec := f.record("")
	f.field(aRec, "x", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("A", aRec)
	bRec := f.record("A")
	by := f.field(bRec, "y", f.mdl.GetType(TYPE_INTEGER))
	f.typeDecl("B", bRec)
	vd := f.varDecl("v", f.typeRef("A"))
	return f, aRec, by, vd
}

// assignToY builds the statement v.y := 1
func assignToY(mdl *AstModel) (*Statement, *Expression) {
	sel := NewExpression(EXPR_Select, NewRowCol(4, 4))
	sel.Lhs = nameRef("v")
	sel.Val = []byte("y")
	assig := NewStatement(STMT_Assig, NewRowCol(4, 3))
	assig.Lhs = sel
	assig.Rhs = intLit(mdl, 1)
	return assig, sel
}

func TestWithNarrowsGuardedVariable(t *testing.T) {
	f, aRec, by, vd := narrowedFixture(t)

	guard := NewExpression(EXPR_Is, NewRowCol(3, 6))
	guard.Lhs = nameRef("v")
	guard.Rhs = nameRef("B")
	assig, sel := assignToY(f.mdl)
	with := NewIfLoop(WITH, NewRowCol(3, 1))
	with.AddGuard(guard, assig)
	f.mod.Body = with

	v := f.validate(t)
	require.Empty(t, v.Errors)

	// inside the block the selector resolved against B
	assert.Same(t, by, sel.GetIdent())
	// after the block the variable has its static type again
	assert.Same(t, aRec, vd.GetType().Deref())
}

func TestWithGuardMustBeTypeTest(t *testing.T) {
	f, _, _, _ := narrowedFixture(t)

	with := NewIfLoop(WITH, NewRowCol(3, 1))
	guard := NewLiteral(LIT_Boolean, NewRowCol(3, 6), true, f.mdl.GetType(TYPE_BOOLEAN))
	with.AddGuard(guard, nil)
	f.mod.Body = with

	v := f.validate(t)
	require.NotEmpty(t, v.Errors)
	assert.Contains(t, v.Errors[0].Msg, "type test")
}

func TestTypeCaseNarrowsDiscriminant(t *testing.T) {
	f, aRec, by, vd := narrowedFixture(t)

	assig, sel := assignToY(f.mdl)
	cs := NewStatement(STMT_Case, NewRowCol(3, 1))
	cs.TypeCase = true
	cs.Lhs = nameRef("v")
	cs.Cases = []CaseClause{{Labels: []*Expression{nameRef("B")}, Block: assig}}
	f.mod.Body = cs

	v := f.validate(t)
	require.Empty(t, v.Errors)

	assert.Same(t, by, sel.GetIdent())
	assert.Same(t, aRec, vd.GetType().Deref())
}

func TestGenericResolvedDuringValidation(t *testing.T) {
	f := newFixture("M")

	// TYPE T(G) = RECORD v: G END, left unresolved as by the parser
	rec := f.record("")
	gRef := f.typeRef("G")
	f.field(rec, "v", gRef)
	tDecl := f.typeDecl("T", rec)
	f.genericParam(tDecl, "G")

	// TYPE L = T(INTEGER); TYPE K = T(INTEGER)
	lRef := f.typeRef("T")
	lRef.MetaActuals = []*Type{f.typeRef("INTEGER")}
	f.typeDecl("L", lRef)
	kRef := f.typeRef("T")
	kRef.MetaActuals = []*Type{f.typeRef("INTEGER")}
	f.typeDecl("K", kRef)

	v := f.validate(t)
	require.Empty(t, v.Errors)

	// the meta parameter resolved through the declaration scope
	require.NotNil(t, gRef.Decl)
	assert.Equal(t, int(DECL_Generic), gRef.Decl.Kind)

	// the instance carries the substituted field type
	inst := lRef.Deref()
	require.Equal(t, int(TYPE_Record), inst.Kind)
	require.Len(t, inst.Subs, 1)
	assert.Same(t, f.mdl.GetType(TYPE_INTEGER), inst.Subs[0].GetType().Deref())

	// equal actuals share one instance
	assert.Same(t, inst, kRef.Deref())
}

func TestGenericReferenceRequiresActuals(t *testing.T) {
	f := newFixture("M")
	rec := f.record("")
	f.field(rec, "v", f.typeRef("G"))
	tDecl := f.typeDecl("T", rec)
	f.genericParam(tDecl, "G")

	lRef := f.typeRef("T")
	lDecl := f.typeDecl("L", lRef)

	v := f.validate(t)
	require.NotEmpty(t, v.Errors)
	assert.Contains(t, v.Errors[0].Msg, "actual types")
	assert.Equal(t, int(TYPE_Undefined), lRef.Deref().Kind)
	assert.True(t, lDecl.HasErrors)
}
