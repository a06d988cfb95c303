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
	"fmt"
	"strings"
)

// Pretty returns a stable textual rendering of the type, used for
// diagnostics only, never for code generation.
func (t *Type) Pretty() string {
	if t == nil {
		return "?"
	}
	switch TypeKind(t.Kind) {
	case TYPE_Pointer:
		if t.TypeRef != nil {
			return "POINTER TO " + t.TypeRef.Pretty()
		}
		return "POINTER TO ?"
	case TYPE_Array:
		if t.Len > 0 {
			return fmt.Sprintf("ARRAY %d OF %s", t.Len, t.TypeRef.Pretty())
		}
		return "ARRAY OF " + t.TypeRef.Pretty()
	case TYPE_Record:
		return "RECORD"
	case TYPE_Procedure:
		return "PROC"
	case TYPE_Enumeration:
		return "enumeration"
	case TYPE_NameRef:
		var b strings.Builder
		if t.Quali != nil {
			if len(t.Quali.First) > 0 {
				b.Write(t.Quali.First)
				b.WriteByte('.')
			}
			b.Write(t.Quali.Second)
		} else if t.Decl != nil {
			b.Write(t.Decl.Name)
		} else {
			b.WriteByte('?')
		}
		if len(t.MetaActuals) > 0 {
			b.WriteByte('(')
			for i, a := range t.MetaActuals {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(a.Pretty())
			}
			b.WriteByte(')')
		}
		return b.String()
	default:
		if t.Kind >= 0 && t.Kind < int(TYPE_MaxBasicType) {
			return TypeNames[t.Kind]
		}
		return "?"
	}
}

// FormatSet renders a set bit vector back to its element list, e.g. {1,3,5}
func FormatSet(bits uint32) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, e := range SetElements(bits) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%d", e)
	}
	b.WriteByte('}')
	return b.String()
}

// VisibilitySymbol returns the export mark of a declaration as written in
// source, or an empty string
func (d *Declaration) VisibilitySymbol() string {
	switch d.Visi {
	case VISI_ReadWrite:
		return "*"
	case VISI_ReadOnly:
		return "-"
	}
	return ""
}

// DeclRow is one row of a declaration dump
type DeclRow struct {
	Name string
	Kind string
	Type string
	Visi string
	Pos  RowCol
}

// DumpDecls flattens the declarations of a scope into printable rows, in
// declaration order, descending into procedures
func DumpDecls(scope *Declaration) []DeclRow {
	var rows []DeclRow
	WalkModule(scope, func(d *Declaration) {
		kind := "?"
		if d.Kind > 0 && d.Kind < int(DECL_Max) {
			kind = DeclNames[d.Kind]
		}
		typ := ""
		if d.GetType() != nil {
			typ = d.GetType().Pretty()
		}
		rows = append(rows, DeclRow{
			Name: string(d.Name),
			Kind: kind,
			Type: typ,
			Visi: d.VisibilitySymbol(),
			Pos:  d.Pos,
		})
	})
	return rows
}
