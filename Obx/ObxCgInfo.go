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

import "fmt"

// MaxSlot is the highest slot number a scope can assign.
const MaxSlot = 255

// CgInfo annotates a validated module with the information back ends
// need: slot numbers for variables and parameters, reference intervals
// per declaration, and usage markers. It is the only pass that writes
// these fields.
type CgInfo struct {
	module    *Declaration
	procStack []*Declaration
	pc        uint32 // running statement number within the current procedure

	Errors []Error
}

func NewCgInfo(module *Declaration) *CgInfo {
	return &CgInfo{module: module}
}

// Process runs slot allocation and liveness numbering over the module.
func (cg *CgInfo) Process() bool {
	if cg.module == nil || DeclKind(cg.module.Kind) != DECL_Module {
		return false
	}
	cg.allocateSlots(cg.module)
	cg.analyzeScope(cg.module)
	return len(cg.Errors) == 0
}

func (cg *CgInfo) error(pos RowCol, msg string) {
	path := cg.module.GetModuleData().SourcePath
	cg.Errors = append(cg.Errors, Error{Msg: msg, Pos: pos, Path: path})
}

// allocateSlots numbers the variables of a scope. Parameters come first
// (receiver included), then locals, in declaration order; declarations
// with unresolved types get no slot.
func (cg *CgInfo) allocateSlots(scope *Declaration) {
	slot := 0
	assign := func(d *Declaration) {
		if d.HasErrors {
			return
		}
		if slot > MaxSlot {
			cg.error(d.Pos, fmt.Sprintf("out of slots in scope '%s'", string(scope.Name)))
			return
		}
		d.Slot = uint8(slot)
		d.SlotValid = true
		slot++
	}

	if DeclKind(scope.Kind) == DECL_Procedure {
		for _, p := range scope.GetParams(false) {
			assign(p)
		}
	}
	for cur := scope.Link; cur != nil; cur = cur.Next {
		switch DeclKind(cur.Kind) {
		case DECL_VarDecl, DECL_LocalDecl:
			assign(cur)
		case DECL_Procedure:
			cg.allocateSlots(cur)
		}
	}
}

// analyzeScope numbers the statements of the scope body and records the
// reference interval of every local and parameter
func (cg *CgInfo) analyzeScope(scope *Declaration) {
	cg.procStack = append(cg.procStack, scope)
	oldPc := cg.pc
	cg.pc = 0

	cg.analyzeBody(scope.Body)

	for cur := scope.Link; cur != nil; cur = cur.Next {
		if DeclKind(cur.Kind) == DECL_Procedure {
			cg.analyzeScope(cur)
		}
	}

	// a declaration that was referenced anywhere keeps its type alive
	for cur := scope.Link; cur != nil; cur = cur.Next {
		if cur.LiveTo == 0 {
			continue
		}
		if t := cur.GetType(); t != nil {
			if td := t.Deref().Decl; td != nil {
				td.UsedFromLive = true
			}
		}
	}

	cg.pc = oldPc
	cg.procStack = cg.procStack[:len(cg.procStack)-1]
}

func (cg *CgInfo) analyzeBody(s *Statement) {
	for cur := s; cur != nil; cur = cur.Next {
		cg.pc++
		cg.analyzeStmt(cur)
	}
}

func (cg *CgInfo) analyzeStmt(s *Statement) {
	switch s.Kind {
	case STMT_Assig:
		cg.analyzeExpr(s.Rhs)
		cg.analyzeExpr(s.Lhs)
		if s.Lhs != nil {
			if d := s.Lhs.GetIdent(); d != nil {
				d.Initialized = true
			}
		}
	case STMT_Call, STMT_Return:
		cg.analyzeExpr(s.Lhs)
		cg.analyzeExpr(s.Rhs)
	case STMT_IfLoop:
		for _, g := range s.Guards {
			cg.analyzeExpr(g)
		}
		for _, b := range s.Blocks {
			cg.analyzeBody(b)
		}
		cg.analyzeBody(s.Else)
	case STMT_ForLoop:
		cg.analyzeExpr(s.From)
		cg.analyzeExpr(s.To)
		cg.analyzeExpr(s.By)
		cg.analyzeExpr(s.Lhs)
		if s.Lhs != nil {
			if d := s.Lhs.GetIdent(); d != nil {
				d.Initialized = true
			}
		}
		cg.analyzeBody(s.Body)
	case STMT_Case:
		cg.analyzeExpr(s.Lhs)
		for _, c := range s.Cases {
			for _, l := range c.Labels {
				cg.analyzeExpr(l)
			}
			cg.analyzeBody(c.Block)
		}
		cg.analyzeBody(s.Else)
	}
}

func (cg *CgInfo) analyzeExpr(e *Expression) {
	if e == nil {
		return
	}
	if ExprKind(e.Kind) == EXPR_DeclRef {
		if d := e.GetIdent(); d != nil {
			cg.touch(d)
		}
	}
	cg.analyzeExpr(e.Lhs)
	cg.analyzeExpr(e.Rhs)
	if e.Next != nil {
		cg.analyzeExpr(e.Next)
	}
}

// touch records a reference to d at the current statement number
func (cg *CgInfo) touch(d *Declaration) {
	switch DeclKind(d.Kind) {
	case DECL_LocalDecl, DECL_ParamDecl, DECL_VarDecl:
	default:
		return
	}
	cur := cg.procStack[len(cg.procStack)-1]
	if d.Outer == cur {
		if d.LiveFrom == 0 {
			d.LiveFrom = cg.pc
		}
		if cg.pc > d.LiveTo {
			d.LiveTo = cg.pc
		}
	} else {
		// referenced from a nested scope; the interval must span the
		// whole owning scope
		d.UsedFromSubs = true
		if d.LiveFrom == 0 {
			d.LiveFrom = 1
		}
		if d.LiveTo == 0 {
			d.LiveTo = 1
		}
	}
	if d.Receiver || d.VarParam || DeclKind(d.Kind) == DECL_ParamDecl {
		d.Initialized = true
	}
}
