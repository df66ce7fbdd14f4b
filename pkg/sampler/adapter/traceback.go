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
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/apache/skywalking-go-sampler/pkg/logger"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/profiler"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

var log = logger.GetLogger("sampler", "adapter")

type options struct {
	clock          clock.WithTicker
	maxDumpSize    int
	frameCacheSize int
}

type Option func(o *options)

// WithClock drives the ticks of the underlying profiler by the clock
func WithClock(c clock.WithTicker) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMaxDumpSize limits the buffer of the goroutine dump taken on every tick
func WithMaxDumpSize(size int) Option {
	return func(o *options) {
		o.maxDumpSize = size
	}
}

// WithFrameCacheSize sets how many distinct call sites are interned by the parser
func WithFrameCacheSize(size int) Option {
	return func(o *options) {
		o.frameCacheSize = size
	}
}

// Traceback samples the goroutines by parsing the goroutine dump of the runtime.
// The generations only differ in the dialect of the dump.
type Traceback struct {
	kind    Kind
	options *options

	profiler  *profiler.Profiler
	shutdown  bool
	extracted bool
}

func NewLegacyTraceback(opts ...Option) Adapter {
	return newTraceback(KindLegacyTraceback, opts)
}

func NewParentTraceback(opts ...Option) Adapter {
	return newTraceback(KindParentTraceback, opts)
}

func newTraceback(kind Kind, opts []Option) *Traceback {
	o := &options{
		clock:          clock.RealClock{},
		maxDumpSize:    traceback.DefaultMaxDump,
		frameCacheSize: traceback.DefaultFrameCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Traceback{kind: kind, options: o}
}

func (t *Traceback) Kind() Kind {
	return t.kind
}

func (t *Traceback) Init(depth int, provider threads.Provider) error {
	if t.profiler != nil || t.shutdown {
		return fmt.Errorf("the %s adapter is already initialized", t.kind)
	}
	if provider == nil {
		return fmt.Errorf("please provide the threads to sample")
	}
	parser, err := traceback.NewParser(t.kind.Dialect(), t.options.frameCacheSize)
	if err != nil {
		return err
	}
	snapshot := traceback.NewSnapshot(traceback.NewCapturer(t.options.maxDumpSize), parser)
	t.profiler = profiler.New(depth, provider.ThreadsToSample, snapshot.Goroutines, profiler.WithClock(t.options.clock))
	log.Debugf("%s adapter initialized, stack depth: %d", t.kind, depth)
	return nil
}

func (t *Traceback) Start(interval time.Duration) error {
	if t.profiler == nil {
		return ErrNotInitialized
	}
	return t.profiler.Start(interval)
}

func (t *Traceback) Stop() error {
	if t.profiler == nil {
		return ErrNotInitialized
	}
	t.profiler.Stop()
	return nil
}

func (t *Traceback) Shutdown() error {
	if t.shutdown {
		return nil
	}
	if t.profiler == nil {
		return ErrNotInitialized
	}
	t.profiler.Shutdown()
	t.shutdown = true
	return nil
}

func (t *Traceback) ExtractSampleData() (*sample.Data, error) {
	if t.extracted {
		return nil, ErrAlreadyExtracted
	}
	if !t.shutdown {
		return nil, ErrNotShutdown
	}
	data := t.profiler.SampleData()
	t.profiler = nil
	t.extracted = true
	return data, nil
}
