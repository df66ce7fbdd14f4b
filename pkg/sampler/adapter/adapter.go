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

package adapter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

// Kind is the generation of the underlying profiler which the adapter wraps
type Kind string

const (
	// KindLegacyTraceback samples from the goroutine dump printed before go1.21
	KindLegacyTraceback Kind = "legacy-traceback"
	// KindParentTraceback samples from the goroutine dump printed since go1.21, which knows the parent goroutine
	KindParentTraceback Kind = "parent-traceback"
)

// Dialect of the goroutine dump printed by the runtime of the kind
func (k Kind) Dialect() traceback.Dialect {
	if k == KindParentTraceback {
		return traceback.DialectParent
	}
	return traceback.DialectLegacy
}

var (
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
	ErrAlreadyExtracted       = errors.New("sample data already extracted")
	ErrNotShutdown            = errors.New("the adapter must be shutdown before extracting the sample data")
	ErrNotInitialized         = errors.New("the adapter is not initialized")
)

// Adapter drives one underlying profiler with a uniform lifecycle:
// Init -> (Start -> Stop)* -> Shutdown -> ExtractSampleData.
type Adapter interface {
	Kind() Kind
	// Init the underlying profiler, the provider is called on every tick
	Init(depth int, provider threads.Provider) error
	// Start sampling, could be called again after Stop
	Start(interval time.Duration) error
	// Stop sampling, no provider call happens once it returns. The samples are kept.
	Stop() error
	// Shutdown releases the underlying profiler, stop it first when necessary
	Shutdown() error
	// ExtractSampleData transfers the sample data to the caller, only once per Shutdown
	ExtractSampleData() (*sample.Data, error)
}

// Factory builds a fresh adapter
type Factory func(opts ...Option) Adapter

var (
	factoriesLock sync.RWMutex
	factories     = make(map[Kind]Factory)
)

func init() {
	Register(KindLegacyTraceback, NewLegacyTraceback)
	Register(KindParentTraceback, NewParentTraceback)
}

// Register the factory of the kind, the exists one would be replaced
func Register(kind Kind, factory Factory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	factories[kind] = factory
}

// Create the adapter of the kind
func Create(kind Kind, opts ...Option) (Adapter, error) {
	factoriesLock.RLock()
	factory := factories[kind]
	factoriesLock.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: could not found %s adapter", ErrUnsupportedEnvironment, kind)
	}
	return factory(opts...), nil
}
