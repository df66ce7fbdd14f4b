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

package sampler

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/apache/skywalking-go-sampler/pkg/logger"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/adapter"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/writer"
)

var log = logger.GetLogger("sampler", "controller")

type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateSampling
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateSampling:
		return "sampling"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// AdapterFactory builds a fresh adapter of the selected kind for every session
type AdapterFactory func(kind adapter.Kind) (adapter.Adapter, error)

type Option func(c *Controller)

// WithSelector replaces the runtime version based adapter selection
func WithSelector(selector adapter.Selector) Option {
	return func(c *Controller) {
		c.selector = selector
	}
}

// WithRuntimeVersion is the version given to the selector, the current go runtime by default
func WithRuntimeVersion(version string) Option {
	return func(c *Controller) {
		c.runtimeVersion = version
	}
}

func WithAdapterFactory(factory AdapterFactory) Option {
	return func(c *Controller) {
		c.factory = factory
	}
}

// WithAdapterOptions are passed to the registered adapter factories
func WithAdapterOptions(opts ...adapter.Option) Option {
	return func(c *Controller) {
		c.adapterOptions = append(c.adapterOptions, opts...)
	}
}

// WithWriter sets how the sample data is written in WriteAndShutdown, pprof by default
func WithWriter(w writer.Writer) Option {
	return func(c *Controller) {
		c.writer = w
	}
}

// WithThreadTable is the goroutine table enumerated by InitAllThreads
func WithThreadTable(table threads.Table) Option {
	return func(c *Controller) {
		c.table = table
	}
}

type session struct {
	adapter  adapter.Adapter
	provider threads.Provider
	depth    int
	interval time.Duration
}

// Controller owns at most one sampling session at a time.
// All the lifecycle operations are serialized, only writing the extracted data happens outside the lock.
type Controller struct {
	selector       adapter.Selector
	runtimeVersion string
	factory        AdapterFactory
	adapterOptions []adapter.Option
	writer         writer.Writer
	table          threads.Table

	mutex   sync.Mutex
	state   int32
	session *session
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		selector:       adapter.Select,
		runtimeVersion: adapter.RuntimeVersion(),
		writer:         &writer.PProf{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.factory == nil {
		c.factory = func(kind adapter.Kind) (adapter.Adapter, error) {
			return adapter.Create(kind, c.adapterOptions...)
		}
	}
	return c
}

// Init a new session which samples the goroutines given by the provider on every interval
func (c *Controller) Init(stackDepth, intervalMs int, provider threads.Provider) error {
	if stackDepth <= 0 {
		return fmt.Errorf("%w: stack depth must be positive, current: %d", ErrInvalidArgument, stackDepth)
	}
	if intervalMs <= 0 {
		return fmt.Errorf("%w: interval must be positive, current: %dms", ErrInvalidArgument, intervalMs)
	}
	if provider == nil {
		return fmt.Errorf("%w: the thread provider is required", ErrInvalidArgument)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != nil {
		return ErrAlreadyInitialized
	}
	kind, err := c.selector(c.runtimeVersion)
	if err != nil {
		return err
	}
	a, err := c.factory(kind)
	if err != nil {
		return err
	}
	if err := a.Init(stackDepth, provider); err != nil {
		return fmt.Errorf("init the %s adapter failure: %w", kind, err)
	}
	c.session = &session{
		adapter:  a,
		provider: provider,
		depth:    stackDepth,
		interval: time.Duration(intervalMs) * time.Millisecond,
	}
	c.setState(StateInitialized)
	log.Infof("sampling profiler initialized, adapter: %s, stack depth: %d, interval: %s",
		kind, stackDepth, c.session.interval)
	return nil
}

// InitThreads samples the fixed goroutines only
func (c *Controller) InitThreads(stackDepth, intervalMs int, handles ...threads.Handle) error {
	set, err := threads.NewFixedSet(handles...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return c.Init(stackDepth, intervalMs, set)
}

// InitAllThreads samples all the live goroutines
func (c *Controller) InitAllThreads(stackDepth, intervalMs int) error {
	table := c.table
	if table == nil {
		table = threads.NewRuntimeTable(traceback.DefaultMaxDump)
	}
	return c.Init(stackDepth, intervalMs, threads.NewAllThreads(table))
}

func (c *Controller) StartSampling() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	switch c.State() {
	case StateUninitialized:
		return ErrNotInitialized
	case StateSampling:
		return ErrAlreadyStarted
	}
	if err := c.session.adapter.Start(c.session.interval); err != nil {
		return fmt.Errorf("start sampling failure: %w", err)
	}
	c.setState(StateSampling)
	log.Debugf("sampling started")
	return nil
}

// StopSampling pauses the session, the taken samples are kept until WriteAndShutdown
func (c *Controller) StopSampling() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	switch c.State() {
	case StateUninitialized:
		return ErrNotInitialized
	case StateInitialized:
		return ErrNotStarted
	}
	if err := c.session.adapter.Stop(); err != nil {
		return fmt.Errorf("stop sampling failure: %w", err)
	}
	c.setState(StateInitialized)
	log.Debugf("sampling stopped")
	return nil
}

// WriteAndShutdown releases the session and writes the taken samples to the sink.
// The controller could be initialized again as soon as the session is detached,
// even when the sink is still being written.
// The failures of releasing the adapter are returned together with the write failure.
func (c *Controller) WriteAndShutdown(sink io.Writer) error {
	data, result := c.detach(sink)
	if data == nil {
		return result
	}
	if err := c.writer.Write(data, sink); err != nil {
		return multierror.Append(result, fmt.Errorf("%w: %w", ErrIOFailure, err))
	}
	log.Infof("sampling profiler data written, session: %s, ticks: %d, samples: %d",
		data.SessionID, data.Ticks, data.TotalSamples())
	return result
}

// detach the session from the controller, the data is nil when nothing could be written
func (c *Controller) detach(sink io.Writer) (*sample.Data, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		return nil, ErrNotInitialized
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: the output sink is required", ErrInvalidArgument)
	}
	a := c.session.adapter
	sampling := c.State() == StateSampling
	c.session = nil
	c.setState(StateUninitialized)

	var result error
	if sampling {
		if err := a.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop sampling failure: %w", err))
		}
	}
	if err := a.Shutdown(); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown the %s adapter failure: %w", a.Kind(), err))
	}
	data, err := a.ExtractSampleData()
	if err != nil {
		result = multierror.Append(result, err)
	} else if data == nil {
		result = multierror.Append(result, fmt.Errorf("%w: %s adapter", ErrNoSampleData, a.Kind()))
	}
	if result != nil {
		log.Warnf("release the sampling session with failure: %v", result)
	}
	return data, result
}

// IsSampling never blocks
func (c *Controller) IsSampling() bool {
	return c.State() == StateSampling
}

func (c *Controller) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Controller) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}
