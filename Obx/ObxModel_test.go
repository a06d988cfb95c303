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

func TestModelBuiltins(t *testing.T) {
	mdl := NewAstModel()

	for _, name := range []string{"INTEGER", "BOOLEAN", "SET", "CHAR", "REAL"} {
		d := mdl.FindDecl(name, false)
		require.NotNil(t, d, name)
		assert.Equal(t, int(DECL_TypeDecl), d.Kind)
	}

	abs := mdl.FindDecl("ABS", false)
	require.NotNil(t, abs)
	assert.Equal(t, int(DECL_Builtin), abs.Kind)
	assert.Equal(t, uint16(BUILTIN_ABS), abs.ID)

	tru := mdl.FindDecl("TRUE", false)
	require.NotNil(t, tru)
	assert.Equal(t, int(DECL_ConstDecl), tru.Kind)

	system := mdl.FindDecl("SYSTEM", false)
	require.NotNil(t, system)
	adr := mdl.FindDeclInImport(system, "ADR")
	assert.NotNil(t, adr)

	assert.Greater(t, mdl.NodeCount(), 0)
}

func TestModelBasicTypeSingletons(t *testing.T) {
	mdl := NewAstModel()
	a := mdl.GetType(TYPE_INTEGER)
	b := mdl.GetType(TYPE_INTEGER)
	assert.Same(t, a, b)
	assert.True(t, a.IsInteger())
	assert.True(t, mdl.GetType(TYPE_REAL).IsReal())
	assert.True(t, mdl.GetType(TYPE_SET).IsSet())
	assert.True(t, mdl.GetType(TYPE_STRING).IsText())
}

func TestModelScopes(t *testing.T) {
	mdl := NewAstModel()

	mdl.OpenScope(nil)
	x, ok := mdl.AddDecl("x")
	require.True(t, ok)
	x.Kind = int(DECL_VarDecl)

	_, ok = mdl.AddDecl("x")
	assert.False(t, ok)

	mdl.OpenScope(nil)
	y, ok := mdl.AddDecl("y")
	require.True(t, ok)
	y.Kind = int(DECL_LocalDecl)

	assert.Same(t, y, mdl.FindDecl("y", false))
	assert.Nil(t, mdl.FindDecl("x", false))
	assert.Same(t, x, mdl.FindDecl("x", true))

	mdl.CloseScope(false)
	assert.Same(t, x, mdl.FindDecl("x", false))
	mdl.CloseScope(false)
}

// builds TYPE T(G) = RECORD v: G END for instantiation tests
func genericRecordDecl(mdl *AstModel) (*Declaration, *Declaration) {
	decl := NewDeclaration()
	decl.Kind = int(DECL_TypeDecl)
	decl.Name = []byte("T")

	g := NewDeclaration()
	g.Kind = int(DECL_Generic)
	g.Name = []byte("G")
	g.SetType(mdl.GetType(TYPE_ANY))
	decl.Link = g

	gRef := mdl.NewType(TYPE_NameRef, RowCol{})
	gRef.Quali = NewQualident(nil, []byte("G"))
	gRef.Decl = g

	field := NewDeclaration()
	field.Kind = int(DECL_Field)
	field.Name = []byte("v")
	field.SetType(gRef)

	rec := mdl.NewType(TYPE_Record, RowCol{})
	rec.Subs = append(rec.Subs, field)
	rec.Decl = decl
	decl.SetType(rec)
	return decl, g
}

func TestInstantiationCache(t *testing.T) {
	mdl := NewAstModel()
	decl, _ := genericRecordDecl(mdl)

	intT := mdl.GetType(TYPE_INTEGER)
	realT := mdl.GetType(TYPE_REAL)

	a := mdl.Instantiate(decl, []*Type{intT})
	require.NotNil(t, a)
	require.Equal(t, int(TYPE_Record), a.Kind)

	// the meta parameter was substituted in the field type
	require.Len(t, a.Subs, 1)
	assert.Same(t, intT, a.Subs[0].GetType().Deref())

	// equal actuals yield the identical instance
	b := mdl.Instantiate(decl, []*Type{intT})
	assert.Same(t, a, b)

	// different actuals yield a distinct instance
	c := mdl.Instantiate(decl, []*Type{realT})
	assert.NotSame(t, a, c)
	assert.Same(t, realT, c.Subs[0].GetType().Deref())

	// wrong arity is rejected
	bad := mdl.Instantiate(decl, nil)
	assert.Equal(t, int(TYPE_Undefined), bad.Kind)
}

func TestInstantiationSharesOriginalBasicTypes(t *testing.T) {
	mdl := NewAstModel()
	decl, _ := genericRecordDecl(mdl)

	// add a second, non-generic field of basic type
	extra := NewDeclaration()
	extra.Kind = int(DECL_Field)
	extra.Name = []byte("n")
	extra.SetType(mdl.GetType(TYPE_INTEGER))
	rec := decl.GetType()
	rec.Subs = append(rec.Subs, extra)

	inst := mdl.Instantiate(decl, []*Type{mdl.GetType(TYPE_CHAR)})
	require.Len(t, inst.Subs, 2)
	// basic types are shared, not cloned
	assert.Same(t, mdl.GetType(TYPE_INTEGER), inst.Subs[1].GetType())
	assert.NotSame(t, rec, inst)
}
