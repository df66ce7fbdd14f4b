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

package profiler

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/apache/skywalking-go-sampler/pkg/logger"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

var log = logger.GetLogger("sampler", "profiler")

// ThreadsFunc returns the goroutines to sample on the current tick, None slots are ignored
type ThreadsFunc func() []threads.Handle

// CaptureFunc returns the stacks of the live goroutines
type CaptureFunc func() ([]*traceback.Goroutine, error)

type Option func(p *Profiler)

// WithClock replaces the clock which drives the ticks
func WithClock(c clock.WithTicker) Option {
	return func(p *Profiler) {
		p.clock = c
	}
}

// Profiler takes a sample of the selected goroutines on every tick.
// The ticks are driven by its own goroutine, which has exited once Stop or Shutdown returned.
type Profiler struct {
	threads ThreadsFunc
	capture CaptureFunc
	clock   clock.WithTicker

	mutex    sync.Mutex
	data     *sample.Data
	running  bool
	shutdown bool
	stopChan chan struct{}
	doneChan chan struct{}

	// only accessed by the tick goroutine
	selected map[uint64]bool
}

func New(depth int, threadsFunc ThreadsFunc, capture CaptureFunc, opts ...Option) *Profiler {
	p := &Profiler{
		threads:  threadsFunc,
		capture:  capture,
		clock:    clock.RealClock{},
		data:     sample.NewData(depth),
		selected: make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start taking samples every interval, the samples are appended to the existing data
func (p *Profiler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("the sampling interval must be positive, current: %s", interval)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.shutdown {
		return fmt.Errorf("the profiler has been shutdown")
	}
	if p.running {
		return fmt.Errorf("the profiler is already running")
	}
	p.data.Interval = interval
	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})
	p.running = true
	go p.run(p.clock.NewTicker(interval), p.stopChan, p.doneChan)
	return nil
}

// Stop sampling and wait the tick goroutine exit, the taken samples are kept
func (p *Profiler) Stop() {
	p.mutex.Lock()
	if !p.running {
		p.mutex.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	done := p.doneChan
	p.mutex.Unlock()
	<-done
}

// Shutdown stops the profiler permanently
func (p *Profiler) Shutdown() {
	p.Stop()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.shutdown = true
}

// SampleData returns the data taken so far, only consistent when the profiler is not running
func (p *Profiler) SampleData() *sample.Data {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.data
}

// Ticks is the count of the ticks which have been processed
func (p *Profiler) Ticks() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.data.Ticks
}

func (p *Profiler) run(ticker clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			p.tick(now)
		}
	}
}

func (p *Profiler) tick(now time.Time) {
	for k := range p.selected {
		delete(p.selected, k)
	}
	for _, h := range p.threads() {
		if h != threads.None {
			p.selected[uint64(h)] = true
		}
	}

	var goroutines []*traceback.Goroutine
	if len(p.selected) > 0 {
		var err error
		if goroutines, err = p.capture(); err != nil {
			log.Warnf("capture the goroutine stacks failure: %v", err)
		}
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.data.AddTick(now)
	for _, g := range goroutines {
		if p.selected[g.ID] {
			p.data.Record(g)
		}
	}
}
