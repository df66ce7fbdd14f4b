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
	"errors"
	"fmt"
	"runtime"
	"sync"
)

const (
	initialDumpSize = 64 * 1024
	DefaultMaxDump  = 64 * 1024 * 1024
)

// ErrDumpTruncated means the goroutines could not fit into the max dump size
var ErrDumpTruncated = errors.New("goroutine dump truncated")

// Capturer dumps the stacks of all goroutines, the buffer keeps growing
// until the whole dump fits into it or the max size is reached.
type Capturer struct {
	buf     []byte
	maxSize int
}

func NewCapturer(maxSize int) *Capturer {
	if maxSize <= 0 {
		maxSize = DefaultMaxDump
	}
	size := initialDumpSize
	if size > maxSize {
		size = maxSize
	}
	return &Capturer{buf: make([]byte, size), maxSize: maxSize}
}

// Dump all goroutines. The returned slice is reused by the next Dump.
// complete is false when the dump has been cut at the max size.
func (c *Capturer) Dump() (dump []byte, complete bool) {
	for {
		n := runtime.Stack(c.buf, true)
		if n < len(c.buf) {
			return c.buf[:n], true
		}
		if len(c.buf) >= c.maxSize {
			return c.buf[:n], false
		}
		size := len(c.buf) * 2
		if size > c.maxSize {
			size = c.maxSize
		}
		c.buf = make([]byte, size)
	}
}

// BufferSize is the current size of the dump buffer
func (c *Capturer) BufferSize() int {
	return len(c.buf)
}

// TruncatedError describes the truncated dump of the capturer
func (c *Capturer) TruncatedError() error {
	return fmt.Errorf("%w at the max size %d bytes", ErrDumpTruncated, c.maxSize)
}

// Snapshot dumps and parses the goroutines of the current process
type Snapshot struct {
	mutex    sync.Mutex
	capturer *Capturer
	parser   *Parser
}

func NewSnapshot(capturer *Capturer, parser *Parser) *Snapshot {
	return &Snapshot{capturer: capturer, parser: parser}
}

func (s *Snapshot) Goroutines() ([]*Goroutine, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	dump, complete := s.capturer.Dump()
	if !complete {
		return nil, s.capturer.TruncatedError()
	}
	return s.parser.Parse(dump)
}
