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

// RowCol represents position in source code
type RowCol struct {
	Row uint32
	Col uint32
}

// Constants for RowCol bit manipulation
const (
	ROWBitLen        = 19
	COLBitLen        = 32 - ROWBitLen - 1
	MSB       uint32 = 0x80000000
)

// NewRowCol creates a new RowCol
func NewRowCol(row, col uint32) RowCol {
	return RowCol{Row: row, Col: col}
}

func (rc RowCol) String() string {
	return fmt.Sprintf("%d:%d", rc.Row, rc.Col)
}

// IsValid checks if position is valid
func (rc RowCol) IsValid() bool {
	return rc.Row > 0 && rc.Col > 0
}

// Packed returns packed representation
func (rc RowCol) Packed() uint32 {
	return (rc.Row << COLBitLen) | rc.Col | MSB
}

// Unpack restores a RowCol from its packed representation
func Unpack(packed uint32) RowCol {
	packed &^= MSB
	return RowCol{Row: packed >> COLBitLen, Col: packed & ((1 << COLBitLen) - 1)}
}

// Loc extends RowCol with file information
type Loc struct {
	RowCol
	Path string
}

func (l Loc) String() string {
	if l.Path == "" {
		return l.RowCol.String()
	}
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Row, l.Col)
}
