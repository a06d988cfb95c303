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

import "math"

// Oakwood provides the basic library modules (In, Out, Math, Strings) as
// preloaded definition modules, so modules importing them resolve without
// any source files on disk. It implements the Importer interface and can
// be chained in front of a file based importer.
type Oakwood struct {
	mdl     *AstModel
	next    Importer
	modules map[string]*Declaration
}

// NewOakwood builds the library modules against the given model. An
// optional next importer handles all other module names.
func NewOakwood(mdl *AstModel, next Importer) *Oakwood {
	o := &Oakwood{
		mdl:     mdl,
		next:    next,
		modules: make(map[string]*Declaration),
	}
	o.buildIn()
	o.buildOut()
	o.buildMath()
	o.buildStrings()
	return o
}

func (o *Oakwood) LoadModule(imp *Import) *Declaration {
	if imp == nil {
		return nil
	}
	if m, ok := o.modules[string(imp.ModuleName)]; ok {
		return m
	}
	if o.next != nil {
		return o.next.LoadModule(imp)
	}
	return nil
}

// Modules returns the preloaded modules in alphabetical order of name
func (o *Oakwood) Modules() []*Declaration {
	names := []string{"In", "Math", "Out", "Strings"}
	res := make([]*Declaration, 0, len(names))
	for _, n := range names {
		if m, ok := o.modules[n]; ok {
			res = append(res, m)
		}
	}
	return res
}

func (o *Oakwood) newDecl(kind DeclKind, name string) *Declaration {
	d := NewDeclaration()
	d.Kind = int(kind)
	d.Name = []byte(name)
	return d
}

func (o *Oakwood) newModule(name string) *Declaration {
	m := o.newDecl(DECL_Module, name)
	m.Validated = true
	m.Data = ModuleData{FullName: []byte(name), IsDef: true}
	o.modules[name] = m
	return m
}

func (o *Oakwood) addMember(mod, d *Declaration) {
	d.Visi = VISI_ReadWrite
	d.Validated = true
	mod.AppendMember(d)
}

func (o *Oakwood) addVar(mod *Declaration, name string, kind TypeKind) *Declaration {
	d := o.newDecl(DECL_VarDecl, name)
	d.SetType(o.mdl.GetType(kind))
	o.addMember(mod, d)
	return d
}

func (o *Oakwood) addConst(mod *Declaration, name string, typ TypeKind, val interface{}) *Declaration {
	d := o.newDecl(DECL_ConstDecl, name)
	d.SetType(o.mdl.GetType(typ))
	d.Data = val
	o.addMember(mod, d)
	return d
}

type formal struct {
	name  string
	typ   *Type
	byRef bool
}

func (o *Oakwood) basic(kind TypeKind) *Type {
	return o.mdl.GetType(kind)
}

// charArray returns an open ARRAY OF CHAR
func (o *Oakwood) charArray() *Type {
	t := o.mdl.NewType(TYPE_Array, RowCol{})
	t.TypeRef = o.basic(TYPE_CHAR)
	t.Validated = true
	return t
}

func (o *Oakwood) addProc(mod *Declaration, name string, ret *Type, formals ...formal) *Declaration {
	p := o.newDecl(DECL_Procedure, name)
	pt := o.mdl.NewType(TYPE_Procedure, RowCol{})
	pt.TypeRef = ret
	pt.Validated = true
	for _, f := range formals {
		param := o.newDecl(DECL_ParamDecl, f.name)
		param.SetType(f.typ)
		param.VarParam = f.byRef
		param.Validated = true
		param.Outer = p
		pt.Subs = append(pt.Subs, param)
	}
	p.SetType(pt)
	o.addMember(mod, p)
	return p
}

func (o *Oakwood) buildIn() {
	m := o.newModule("In")
	o.addVar(m, "Done", TYPE_BOOLEAN)
	o.addProc(m, "Open", nil)
	o.addProc(m, "Char", nil, formal{"ch", o.basic(TYPE_CHAR), true})
	o.addProc(m, "Int", nil, formal{"i", o.basic(TYPE_INTEGER), true})
	o.addProc(m, "LongInt", nil, formal{"i", o.basic(TYPE_LONGINT), true})
	o.addProc(m, "Real", nil, formal{"x", o.basic(TYPE_REAL), true})
	o.addProc(m, "String", nil, formal{"s", o.charArray(), true})
	o.addProc(m, "Name", nil, formal{"name", o.charArray(), true})
}

func (o *Oakwood) buildOut() {
	m := o.newModule("Out")
	o.addProc(m, "Open", nil)
	o.addProc(m, "Char", nil, formal{"ch", o.basic(TYPE_CHAR), false})
	o.addProc(m, "String", nil, formal{"s", o.charArray(), false})
	o.addProc(m, "Int", nil,
		formal{"i", o.basic(TYPE_LONGINT), false},
		formal{"n", o.basic(TYPE_LONGINT), false})
	o.addProc(m, "Real", nil,
		formal{"x", o.basic(TYPE_REAL), false},
		formal{"n", o.basic(TYPE_INTEGER), false})
	o.addProc(m, "Ln", nil)
}

func (o *Oakwood) buildMath() {
	m := o.newModule("Math")
	o.addConst(m, "pi", TYPE_REAL, math.Pi)
	o.addConst(m, "e", TYPE_REAL, math.E)
	real1 := formal{"x", o.basic(TYPE_REAL), false}
	o.addProc(m, "sqrt", o.basic(TYPE_REAL), real1)
	o.addProc(m, "power", o.basic(TYPE_REAL), real1, formal{"base", o.basic(TYPE_REAL), false})
	o.addProc(m, "exp", o.basic(TYPE_REAL), real1)
	o.addProc(m, "ln", o.basic(TYPE_REAL), real1)
	o.addProc(m, "log", o.basic(TYPE_REAL), real1, formal{"base", o.basic(TYPE_REAL), false})
	o.addProc(m, "round", o.basic(TYPE_REAL), real1)
	o.addProc(m, "sin", o.basic(TYPE_REAL), real1)
	o.addProc(m, "cos", o.basic(TYPE_REAL), real1)
	o.addProc(m, "tan", o.basic(TYPE_REAL), real1)
	o.addProc(m, "arcsin", o.basic(TYPE_REAL), real1)
	o.addProc(m, "arccos", o.basic(TYPE_REAL), real1)
	o.addProc(m, "arctan", o.basic(TYPE_REAL), real1)
	o.addProc(m, "arctan2", o.basic(TYPE_REAL), real1, formal{"y", o.basic(TYPE_REAL), false})
	o.addProc(m, "sinh", o.basic(TYPE_REAL), real1)
	o.addProc(m, "cosh", o.basic(TYPE_REAL), real1)
	o.addProc(m, "tanh", o.basic(TYPE_REAL), real1)
}

func (o *Oakwood) buildStrings() {
	m := o.newModule("Strings")
	str := func(name string, byRef bool) formal { return formal{name, o.charArray(), byRef} }
	intv := func(name string) formal { return formal{name, o.basic(TYPE_INTEGER), false} }
	o.addProc(m, "Length", o.basic(TYPE_INTEGER), str("s", false))
	o.addProc(m, "Insert", nil, str("src", false), intv("pos"), str("dst", true))
	o.addProc(m, "Append", nil, str("extra", false), str("dst", true))
	o.addProc(m, "Delete", nil, str("s", true), intv("pos"), intv("n"))
	o.addProc(m, "Replace", nil, str("src", false), intv("pos"), str("dst", true))
	o.addProc(m, "Extract", nil, str("src", false), intv("pos"), intv("n"), str("dst", true))
	o.addProc(m, "Pos", o.basic(TYPE_INTEGER), str("pat", false), str("s", false), intv("pos"))
	o.addProc(m, "Cap", nil, str("s", true))
}
