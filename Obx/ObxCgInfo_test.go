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

// addProc appends PROCEDURE name with one value parameter and one local
func (f *fixture) addProc(name string) (proc, param, local *Declaration) {
	proc = NewDeclaration()
	proc.Kind = int(DECL_Procedure)
	proc.Name = []byte(name)

	pt := f.mdl.NewType(TYPE_Procedure, RowCol{})
	param = NewDeclaration()
	param.Kind = int(DECL_ParamDecl)
	param.Name = []byte("p")
	param.SetType(f.mdl.GetType(TYPE_INTEGER))
	param.Outer = proc
	pt.Subs = append(pt.Subs, param)
	proc.SetType(pt)

	local = NewDeclaration()
	local.Kind = int(DECL_LocalDecl)
	local.Name = []byte("l")
	local.SetType(f.mdl.GetType(TYPE_INTEGER))
	proc.AppendMember(local)

	f.mod.AppendMember(proc)
	return
}

func TestSlotAllocation(t *testing.T) {
	f := newFixture("M")
	g1 := f.varDecl("g1", f.mdl.GetType(TYPE_INTEGER))
	g2 := f.varDecl("g2", f.mdl.GetType(TYPE_REAL))
	_, param, local := f.addProc("P")

	v := f.validate(t)
	require.Empty(t, v.Errors)

	cg := NewCgInfo(f.mod)
	require.True(t, cg.Process())

	assert.True(t, g1.SlotValid)
	assert.Equal(t, uint8(0), g1.Slot)
	assert.True(t, g2.SlotValid)
	assert.Equal(t, uint8(1), g2.Slot)

	// parameters are numbered before locals
	assert.True(t, param.SlotValid)
	assert.Equal(t, uint8(0), param.Slot)
	assert.True(t, local.SlotValid)
	assert.Equal(t, uint8(1), local.Slot)
}

func TestSlotSkipsBrokenDecls(t *testing.T) {
	f := newFixture("M")
	ref := f.mdl.NewType(TYPE_NameRef, RowCol{})
	ref.Quali = NewQualident(nil, []byte("Unknown"))
	bad := f.varDecl("bad", ref)
	good := f.varDecl("good", f.mdl.GetType(TYPE_INTEGER))

	f.validate(t) // reports the unknown type

	cg := NewCgInfo(f.mod)
	cg.Process()

	assert.False(t, bad.SlotValid)
	assert.True(t, good.SlotValid)
	assert.Equal(t, uint8(0), good.Slot)
}

func TestLivenessInterval(t *testing.T) {
	f := newFixture("M")
	proc, param, local := f.addProc("P")

	// l := p; l := l + p; three statements, l first used in 1, last in 3
	pos := NewRowCol(3, 1)
	s1 := NewStatement(STMT_Assig, pos)
	s1.Lhs = nameRef("l")
	s1.Rhs = nameRef("p")

	s2 := NewStatement(STMT_Call, pos)
	wrap := NewExpression(EXPR_Call, pos)
	wrap.Lhs = qualRef("Out", "Ln")
	s2.Lhs = wrap

	s3 := NewStatement(STMT_Assig, pos)
	s3.Lhs = nameRef("l")
	add := NewExpression(EXPR_Add, pos)
	add.Lhs = nameRef("l")
	add.Rhs = nameRef("p")
	s3.Rhs = add

	s1.Append(s2)
	s1.Append(s3)
	proc.Body = s1
	f.importDecl("Out")

	v := f.validate(t)
	require.Empty(t, v.Errors)

	cg := NewCgInfo(f.mod)
	require.True(t, cg.Process())

	assert.Equal(t, uint32(1), local.LiveFrom)
	assert.Equal(t, uint32(3), local.LiveTo)
	assert.Equal(t, uint32(1), param.LiveFrom)
	assert.Equal(t, uint32(3), param.LiveTo)
	assert.True(t, local.Initialized)
	assert.True(t, param.Initialized)
	assert.False(t, local.UsedFromSubs)
}

func TestCapturedVariableMarked(t *testing.T) {
	f := newFixture("M")
	outer, _, local := f.addProc("Outer")

	inner := NewDeclaration()
	inner.Kind = int(DECL_Procedure)
	inner.Name = []byte("Inner")
	inner.SetType(f.mdl.NewType(TYPE_Procedure, RowCol{}))
	outer.AppendMember(inner)

	// Inner references Outer's local
	s := NewStatement(STMT_Assig, NewRowCol(5, 1))
	s.Lhs = nameRef("l")
	s.Rhs = intLit(f.mdl, 1)
	inner.Body = s

	v := f.validate(t)
	require.Empty(t, v.Errors)

	// the reference crosses the procedure boundary
	ref := s.Lhs
	assert.True(t, ref.Nonlocal)

	cg := NewCgInfo(f.mod)
	require.True(t, cg.Process())
	assert.True(t, local.UsedFromSubs)
	assert.NotZero(t, local.LiveTo)
}

func TestUsedFromLivePropagation(t *testing.T) {
	f := newFixture("M")
	rec := f.record("")
	f.field(rec, "x", f.mdl.GetType(TYPE_INTEGER))
	tDecl := f.typeDecl("T", rec)
	v1 := f.varDecl("v", rec)

	s := NewStatement(STMT_Assig, NewRowCol(3, 1))
	sel := NewExpression(EXPR_Select, NewRowCol(3, 1))
	sel.Lhs = nameRef("v")
	sel.Val = []byte("x")
	s.Lhs = sel
	s.Rhs = intLit(f.mdl, 1)
	f.mod.Body = s

	v := f.validate(t)
	require.Empty(t, v.Errors)

	cg := NewCgInfo(f.mod)
	require.True(t, cg.Process())
	require.NotZero(t, v1.LiveTo)
	assert.True(t, tDecl.UsedFromLive)
}
