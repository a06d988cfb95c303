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
	"strings"
)

// AstModel manages the AST and symbol table of one compilation. Models are
// independent; concurrent compilations each use their own model.
type AstModel struct {
	scopes      []*Declaration
	globalScope *Declaration
	SYSTEM      *Declaration
	types       []*Type // basic types

	instances map[instKey]*Type // generic instantiation cache
	allocated int               // nodes created through this model
}

type instKey struct {
	decl *Declaration
	sig  string
}

// NewAstModel creates a new AST model
func NewAstModel() *AstModel {
	model := &AstModel{
		types:     make([]*Type, TYPE_MaxBasicType),
		instances: make(map[instKey]*Type),
	}
	model.initializeBuiltins()
	return model
}

// initializeBuiltins sets up built-in types and declarations
func (m *AstModel) initializeBuiltins() {
	if m.globalScope == nil {
		m.globalScope = NewDeclaration()
		m.globalScope.Kind = int(DECL_Scope)
		m.OpenScope(m.globalScope)

		m.types[TYPE_Undefined] = m.newType(TYPE_Undefined)
		m.types[TYPE_NoType] = m.newType(TYPE_NoType)
		m.types[TYPE_STRING] = m.newType(TYPE_STRING)
		m.types[TYPE_WSTRING] = m.newType(TYPE_WSTRING)
		m.types[TYPE_NIL] = m.newType(TYPE_NIL)

		m.types[TYPE_ANY] = m.addType("ANY", TYPE_ANY)
		m.types[TYPE_BOOLEAN] = m.addType("BOOLEAN", TYPE_BOOLEAN)
		m.types[TYPE_CHAR] = m.addType("CHAR", TYPE_CHAR)
		m.types[TYPE_WCHAR] = m.addType("WCHAR", TYPE_WCHAR)
		m.types[TYPE_BYTE] = m.addType("BYTE", TYPE_BYTE)
		m.types[TYPE_SHORTINT] = m.addType("SHORTINT", TYPE_SHORTINT)
		m.types[TYPE_INTEGER] = m.addType("INTEGER", TYPE_INTEGER)
		m.types[TYPE_LONGINT] = m.addType("LONGINT", TYPE_LONGINT)
		m.types[TYPE_REAL] = m.addType("REAL", TYPE_REAL)
		m.types[TYPE_LONGREAL] = m.addType("LONGREAL", TYPE_LONGREAL)
		m.types[TYPE_SET] = m.addType("SET", TYPE_SET)

		for i := BUILTIN_ABS; i < BUILTIN_SYSTEM; i++ {
			m.addBuiltin(BuiltinNames[i], i)
		}

		m.addConst("TRUE", TYPE_BOOLEAN, true)
		m.addConst("FALSE", TYPE_BOOLEAN, false)

		// SYSTEM pseudo module
		system, _ := m.AddDecl("SYSTEM")
		system.Kind = int(DECL_Module)
		system.Validated = true
		m.OpenScope(system)
		for i := BUILTIN_SYSTEM + 1; i < MAX_BUILTIN; i++ {
			m.addBuiltin(BuiltinNames[i], i)
		}
		m.addTypeAlias("BYTE", m.types[TYPE_BYTE])
		m.CloseScope(false)

		m.SYSTEM = system
	} else {
		m.OpenScope(m.globalScope)
	}
}

// newType creates a new type
func (m *AstModel) newType(kind TypeKind) *Type {
	t := &Type{}
	t.Meta = MetaType
	t.Kind = int(kind)
	t.Owned = true
	m.allocated++
	return t
}

// NewType creates a type owned by this model
func (m *AstModel) NewType(kind TypeKind, pos RowCol) *Type {
	t := m.newType(kind)
	t.Pos = pos
	return t
}

// addType adds a named type
func (m *AstModel) addType(name string, kind TypeKind) *Type {
	t := m.newType(kind)
	m.addTypeAlias(name, t)
	return t
}

// addTypeAlias adds a type alias
func (m *AstModel) addTypeAlias(name string, t *Type) {
	d, _ := m.AddDecl(name)
	d.Validated = true
	d.Kind = int(DECL_TypeDecl)
	d.SetType(t)
	if t.Decl == nil {
		t.Decl = d
	}
}

// addBuiltin adds a built-in function or procedure
func (m *AstModel) addBuiltin(name string, builtin BuiltinKind) {
	d, _ := m.AddDecl(strings.ToUpper(name))
	d.Kind = int(DECL_Builtin)
	d.SetType(m.types[TYPE_NoType])
	d.ID = uint16(builtin)
	d.Validated = true
}

// addConst adds a constant
func (m *AstModel) addConst(name string, typeKind TypeKind, data interface{}) {
	d, _ := m.AddDecl(name)
	d.Kind = int(DECL_ConstDecl)
	d.SetType(m.types[typeKind])
	d.Data = data
	d.Validated = true
}

// OpenScope opens a new scope
func (m *AstModel) OpenScope(scope *Declaration) {
	if scope == nil {
		scope = NewDeclaration()
		scope.Kind = int(DECL_Scope)
	}
	m.scopes = append(m.scopes, scope)
}

// CloseScope closes current scope
func (m *AstModel) CloseScope(takeMembers bool) *Declaration {
	var res *Declaration = nil
	if takeMembers {
		res = m.scopes[len(m.scopes)-1].Link
		m.scopes[len(m.scopes)-1].Link = nil
	}
	m.scopes = m.scopes[:len(m.scopes)-1]
	return res
}

// AddDecl adds a declaration to the current scope. A duplicate name is
// still appended to the ordered list so diagnostics can reach it, but the
// second result is false and lookups keep returning the first declaration.
func (m *AstModel) AddDecl(name string) (*Declaration, bool) {
	scope := m.scopes[len(m.scopes)-1]

	decl := NewDeclaration()
	decl.Name = []byte(name)
	m.allocated++
	added := scope.AppendMember(decl)
	return decl, added
}

// FindDecl finds a declaration by name in the scope stack
func (m *AstModel) FindDecl(name string, recursive bool) *Declaration {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		current := m.scopes[i].Link
		for current != nil {
			if string(current.Name) == name {
				return current
			}
			current = current.Next
		}
		if !recursive {
			return nil
		}
	}
	return nil
}

// GetType returns a basic type
func (m *AstModel) GetType(kind TypeKind) *Type {
	return m.types[kind]
}

// GetTopScope returns the top-level scope (module or procedure)
func (m *AstModel) GetTopScope() *Declaration {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		d := m.scopes[i]
		if d.Kind == int(DECL_Module) || d.Kind == int(DECL_Procedure) {
			return d
		}
	}
	return nil
}

// NodeCount is a diagnostic counter of the nodes this model has created
func (m *AstModel) NodeCount() int {
	return m.allocated
}

func (m *AstModel) FindDeclInImport(import_ *Declaration, name string) *Declaration {
	if import_ == nil {
		return m.FindDecl(name, false)
	}
	obj := import_.Link
	for obj != nil {
		if name == string(obj.Name) {
			return obj
		}
		obj = obj.Next
	}
	return nil
}

// GetMetaParams returns the generic meta parameters of a type declaration
// in declaration order
func GetMetaParams(decl *Declaration) []*Declaration {
	var res []*Declaration
	for cur := decl.Link; cur != nil; cur = cur.Next {
		if DeclKind(cur.Kind) == DECL_Generic {
			res = append(res, cur)
		}
	}
	return res
}

// Instantiate produces the type of a generic declaration with each meta
// parameter substituted by the corresponding actual. Instantiations are
// cached per (declaration, actual list), so repeated instantiation with
// equal actuals returns the identical type.
func (m *AstModel) Instantiate(decl *Declaration, actuals []*Type) *Type {
	if decl == nil || decl.GetType() == nil {
		return m.GetType(TYPE_Undefined)
	}
	params := GetMetaParams(decl)
	if len(params) != len(actuals) {
		return m.GetType(TYPE_Undefined)
	}
	if len(params) == 0 {
		return decl.GetType()
	}

	var sig strings.Builder
	subst := make(map[*Declaration]*Type, len(params))
	for i, p := range params {
		a := actuals[i].Deref()
		subst[p] = a
		fmt.Fprintf(&sig, "%p;", a)
	}
	key := instKey{decl: decl, sig: sig.String()}
	if t, ok := m.instances[key]; ok {
		return t
	}

	types := make(map[*Type]*Type)
	decls := make(map[*Declaration]*Declaration)
	inst := m.substType(decl.GetType(), subst, types, decls)
	inst.Decl = decl
	m.instances[key] = inst
	return inst
}

func (m *AstModel) substType(t *Type, subst map[*Declaration]*Type,
	types map[*Type]*Type, decls map[*Declaration]*Declaration) *Type {
	if t == nil {
		return nil
	}
	if c, ok := types[t]; ok {
		return c
	}
	if TypeKind(t.Kind) == TYPE_NameRef && t.Decl != nil {
		if a, ok := subst[t.Decl]; ok {
			return a
		}
	}
	if t.Kind < int(TYPE_MaxBasicType) {
		return t
	}

	c := &Type{}
	*c = *t
	c.Decl = nil
	c.SubRecs = nil
	c.Binding = nil
	m.allocated++
	types[t] = c

	c.TypeRef = m.substType(t.TypeRef, subst, types, decls)
	c.BaseRec = m.substType(t.BaseRec, subst, types, decls)
	if len(t.Subs) > 0 {
		c.Subs = make([]*Declaration, len(t.Subs))
		for i, d := range t.Subs {
			c.Subs[i] = m.substDecl(d, subst, types, decls)
		}
	}
	return c
}

func (m *AstModel) substDecl(d *Declaration, subst map[*Declaration]*Type,
	types map[*Type]*Type, decls map[*Declaration]*Declaration) *Declaration {
	if d == nil {
		return nil
	}
	if c, ok := decls[d]; ok {
		return c
	}
	c := NewDeclaration()
	*c = *d
	c.Next = nil
	c.Subs = nil
	m.allocated++
	decls[d] = c
	c.TypeRef = m.substType(d.TypeRef, subst, types, decls)
	return c
}
