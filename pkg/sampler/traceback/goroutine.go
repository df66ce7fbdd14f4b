// Licensed to Apache Software Foundation (ASF) under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Apache Software Foundation (ASF) licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package traceback

import (
	"fmt"
	"strings"
)

// Dialect of the goroutine dump printed by the runtime
type Dialect int

const (
	// DialectLegacy is printed before go1.21, the creator line is "created by pkg.fn"
	DialectLegacy Dialect = iota
	// DialectParent is printed since go1.21, the creator line is "created by pkg.fn in goroutine N"
	DialectParent
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "legacy"
	case DialectParent:
		return "parent"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Frame is one resolved call of a goroutine stack.
// Frames are shared between goroutines and ticks, treat them as read only.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (f *Frame) String() string {
	if f.File == "" {
		return f.Function
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

// Goroutine is one record of the dump, Frames[0] is the innermost call
type Goroutine struct {
	ID    uint64
	State string
	// Wait is the additional status after the state, such as "2 minutes" or "locked to thread"
	Wait      string
	Frames    []*Frame
	CreatedBy *Frame
	// ParentID is only known in the DialectParent
	ParentID uint64
}

// HasFunctionPrefix checks any frame of the goroutine is running the function with the prefix
func (g *Goroutine) HasFunctionPrefix(prefix string) bool {
	for _, f := range g.Frames {
		if strings.HasPrefix(f.Function, prefix) {
			return true
		}
	}
	return false
}
