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

import "errors"

// Handle identifies a live goroutine, the zero value is an empty slot
type Handle uint64

const None Handle = 0

var ErrEmptyThreadSet = errors.New("the thread set requires at least one goroutine")

// Provider tells the profiler which goroutines are included in the sample.
// It is called once per tick by the timer of the profiler, never concurrently.
// The returned slice may contain None slots, they must be ignored by the caller.
type Provider interface {
	ThreadsToSample() []Handle
}

// FixedSet always samples the same goroutines
type FixedSet struct {
	handles []Handle
}

func NewFixedSet(handles ...Handle) (*FixedSet, error) {
	if len(handles) == 0 {
		return nil, ErrEmptyThreadSet
	}
	copied := make([]Handle, len(handles))
	copy(copied, handles)
	return &FixedSet{handles: copied}, nil
}

func (f *FixedSet) ThreadsToSample() []Handle {
	return f.handles
}
