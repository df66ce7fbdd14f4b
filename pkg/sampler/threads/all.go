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

package threads

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

const (
	initialCapacity = 32
	// MaxEnumerateAttempts bounds how often the enumeration could overflow the buffer in one call
	MaxEnumerateAttempts = 32
)

var ErrEnumerationLiveness = errors.New("live goroutines kept outgrowing the enumeration buffer")

// Table is the view of the runtime goroutine table
type Table interface {
	// ActiveCount is an estimate of the live goroutines
	ActiveCount() int
	// Enumerate writes up to len(dst) live goroutines into dst and returns how many goroutines
	// are live at the moment of the enumeration, which could be larger than len(dst).
	Enumerate(dst []Handle) int
}

// AllThreads samples every live goroutine. The buffer is reused between ticks,
// so the provider must be driven by a single timer.
type AllThreads struct {
	table               Table
	threads             []Handle
	lastEnumeratedCount int
	maxAttempts         int
}

func NewAllThreads(table Table) *AllThreads {
	threads := make([]Handle, initialCapacity)
	return &AllThreads{
		table:               table,
		threads:             threads,
		lastEnumeratedCount: len(threads),
		maxAttempts:         MaxEnumerateAttempts,
	}
}

func (a *AllThreads) ThreadsToSample() []Handle {
	// slots beyond dirty are known to be None
	dirty := a.lastEnumeratedCount
	overflow := 0
	// repeat until all live goroutines have been captured
	for attempt := 0; ; attempt++ {
		if attempt >= a.maxAttempts {
			panic(fmt.Errorf("%w: %d attempts, last count %d", ErrEnumerationLiveness, attempt, overflow))
		}
		activeCount := a.table.ActiveCount()
		if overflow > activeCount {
			activeCount = overflow
		}
		threadsLen := len(a.threads)
		newLen := threadsLen
		for newLen < activeCount {
			newLen *= 2
		}
		if newLen != threadsLen {
			a.threads = make([]Handle, newLen)
			dirty = 0
		}
		enumeratedCount := a.table.Enumerate(a.threads)
		if enumeratedCount > newLen {
			overflow, dirty = enumeratedCount, newLen
			continue
		}
		for i := enumeratedCount; i < dirty; i++ {
			a.threads[i] = None
		}
		a.lastEnumeratedCount = enumeratedCount
		return a.threads
	}
}

// LastCount is the count of the meaningful prefix returned by the last call
func (a *AllThreads) LastCount() int {
	return a.lastEnumeratedCount
}

// RuntimeTable enumerates the goroutines of the current process from the stack dump
type RuntimeTable struct {
	mutex    sync.Mutex
	capturer *traceback.Capturer
}

func NewRuntimeTable(maxDumpSize int) *RuntimeTable {
	return &RuntimeTable{capturer: traceback.NewCapturer(maxDumpSize)}
}

func (t *RuntimeTable) ActiveCount() int {
	return runtime.NumGoroutine()
}

// Enumerate panics with traceback.ErrDumpTruncated when the dump could not hold all the goroutines,
// the headers in a truncated dump are not the whole live population.
func (t *RuntimeTable) Enumerate(dst []Handle) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	dump, complete := t.capturer.Dump()
	if !complete {
		panic(t.capturer.TruncatedError())
	}
	count := 0
	traceback.IDs(dump, func(id uint64) {
		if count < len(dst) {
			dst[count] = Handle(id)
		}
		count++
	})
	return count
}
