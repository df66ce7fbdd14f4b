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
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/adapter"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
)

type recordAdapter struct {
	calls       []string
	initErr     error
	shutdownErr error
	noData      bool
	shutdown    bool
	extracted   bool
}

func (r *recordAdapter) Kind() adapter.Kind {
	return "record"
}

func (r *recordAdapter) Init(int, threads.Provider) error {
	r.calls = append(r.calls, "init")
	return r.initErr
}

func (r *recordAdapter) Start(time.Duration) error {
	r.calls = append(r.calls, "start")
	return nil
}

func (r *recordAdapter) Stop() error {
	r.calls = append(r.calls, "stop")
	return nil
}

func (r *recordAdapter) Shutdown() error {
	r.calls = append(r.calls, "shutdown")
	r.shutdown = true
	return r.shutdownErr
}

func (r *recordAdapter) ExtractSampleData() (*sample.Data, error) {
	r.calls = append(r.calls, "extract")
	if r.extracted {
		return nil, adapter.ErrAlreadyExtracted
	}
	r.extracted = true
	if r.noData {
		return nil, nil
	}
	return sample.NewData(1), nil
}

type recordWriter struct {
	mutex sync.Mutex
	data  []*sample.Data
	err   error
}

func (r *recordWriter) Write(data *sample.Data, sink io.Writer) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.data = append(r.data, data)
	if r.err != nil {
		return r.err
	}
	_, err := sink.Write([]byte("profile"))
	return err
}

func (r *recordWriter) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.data)
}

func newRecordController(w *recordWriter) (*Controller, *[]*recordAdapter) {
	created := make([]*recordAdapter, 0)
	c := NewController(WithWriter(w), WithAdapterFactory(func(adapter.Kind) (adapter.Adapter, error) {
		a := &recordAdapter{}
		created = append(created, a)
		return a, nil
	}))
	return c, &created
}

func fixedSet(t *testing.T) threads.Provider {
	set, err := threads.NewFixedSet(1, 2)
	require.NoError(t, err)
	return set
}

func TestControllerSamplingState(t *testing.T) {
	c, _ := newRecordController(&recordWriter{})
	for _, params := range [][2]int{{1, 1}, {10, 10}, {128, 1000}} {
		require.NoError(t, c.Init(params[0], params[1], fixedSet(t)))
		assert.False(t, c.IsSampling())
		assert.Equal(t, StateInitialized, c.State())
		require.NoError(t, c.StartSampling())
		assert.True(t, c.IsSampling())
		require.NoError(t, c.StopSampling())
		assert.False(t, c.IsSampling())
		require.NoError(t, c.WriteAndShutdown(&bytes.Buffer{}))
		assert.Equal(t, StateUninitialized, c.State())
	}
}

func TestControllerInvalidArgument(t *testing.T) {
	c, created := newRecordController(&recordWriter{})
	assert.ErrorIs(t, c.Init(0, 10, fixedSet(t)), ErrInvalidArgument)
	assert.ErrorIs(t, c.Init(10, -1, fixedSet(t)), ErrInvalidArgument)
	assert.ErrorIs(t, c.Init(10, 10, nil), ErrInvalidArgument)
	assert.ErrorIs(t, c.InitThreads(10, 10), ErrInvalidArgument)
	assert.Empty(t, *created)

	// parameters are validated before the state
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	assert.ErrorIs(t, c.Init(0, 10, fixedSet(t)), ErrInvalidArgument)
	assert.ErrorIs(t, c.WriteAndShutdown(nil), ErrInvalidArgument)
	assert.Equal(t, StateInitialized, c.State())
}

func TestControllerStateErrors(t *testing.T) {
	w := &recordWriter{}
	c, created := newRecordController(w)

	assert.ErrorIs(t, c.StartSampling(), ErrNotInitialized)
	assert.ErrorIs(t, c.StopSampling(), ErrNotInitialized)
	// the missing session is reported before the sink
	assert.ErrorIs(t, c.WriteAndShutdown(nil), ErrNotInitialized)
	err := c.WriteAndShutdown(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, w.count())

	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	assert.ErrorIs(t, c.StopSampling(), ErrNotStarted)
	assert.ErrorIs(t, c.Init(10, 10, fixedSet(t)), ErrAlreadyInitialized)
	require.NoError(t, c.StartSampling())
	err = c.StartSampling()
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.Init(5, 20, fixedSet(t)), ErrAlreadyInitialized)

	require.Len(t, *created, 1)
	assert.Equal(t, []string{"init", "start"}, (*created)[0].calls)
}

func TestControllerWriteWhileSampling(t *testing.T) {
	w := &recordWriter{}
	c, created := newRecordController(w)
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	require.NoError(t, c.StartSampling())

	buf := &bytes.Buffer{}
	require.NoError(t, c.WriteAndShutdown(buf))
	assert.False(t, c.IsSampling())
	assert.Equal(t, "profile", buf.String())
	assert.Equal(t, 1, w.count())
	assert.Equal(t, []string{"init", "start", "stop", "shutdown", "extract"}, (*created)[0].calls)

	// the stopped session is not stopped again
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	require.NoError(t, c.WriteAndShutdown(&bytes.Buffer{}))
	assert.Equal(t, []string{"init", "shutdown", "extract"}, (*created)[1].calls)
}

func TestControllerWriteFailureReleaseSession(t *testing.T) {
	diskFull := errors.New("disk full")
	w := &recordWriter{err: diskFull}
	c, _ := newRecordController(w)
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	require.NoError(t, c.StartSampling())

	err := c.WriteAndShutdown(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, StateUninitialized, c.State())
	require.NoError(t, c.Init(5, 20, fixedSet(t)))
}

func TestControllerNoSampleData(t *testing.T) {
	w := &recordWriter{}
	c := NewController(WithWriter(w), WithAdapterFactory(func(adapter.Kind) (adapter.Adapter, error) {
		return &recordAdapter{noData: true}, nil
	}))
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	require.NoError(t, c.StartSampling())

	assert.ErrorIs(t, c.WriteAndShutdown(&bytes.Buffer{}), ErrNoSampleData)
	assert.Zero(t, w.count())
	assert.Equal(t, StateUninitialized, c.State())
	require.NoError(t, c.Init(5, 20, fixedSet(t)))
}

func TestControllerReleaseFailure(t *testing.T) {
	busy := errors.New("device busy")
	diskFull := errors.New("disk full")
	w := &recordWriter{}
	c := NewController(WithWriter(w), WithAdapterFactory(func(adapter.Kind) (adapter.Adapter, error) {
		return &recordAdapter{shutdownErr: busy}, nil
	}))

	// the samples are still written, the shutdown failure is returned
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	buf := &bytes.Buffer{}
	err := c.WriteAndShutdown(buf)
	assert.ErrorIs(t, err, busy)
	assert.NotErrorIs(t, err, ErrIOFailure)
	assert.Equal(t, "profile", buf.String())
	assert.Equal(t, 1, w.count())

	// both failures are returned
	w.err = diskFull
	require.NoError(t, c.Init(10, 10, fixedSet(t)))
	err = c.WriteAndShutdown(&bytes.Buffer{})
	assert.ErrorIs(t, err, busy)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, StateUninitialized, c.State())
}

func TestControllerAdapterInitFailure(t *testing.T) {
	c := NewController(WithAdapterFactory(func(adapter.Kind) (adapter.Adapter, error) {
		return &recordAdapter{initErr: errors.New("no perf events")}, nil
	}))
	assert.Error(t, c.Init(10, 10, fixedSet(t)))
	assert.Equal(t, StateUninitialized, c.State())
	assert.ErrorIs(t, c.StartSampling(), ErrNotInitialized)
}

func TestControllerUnsupportedEnvironment(t *testing.T) {
	c := NewController(WithRuntimeVersion("go1.16.2"))
	assert.ErrorIs(t, c.InitAllThreads(10, 10), ErrUnsupportedEnvironment)
	assert.Equal(t, StateUninitialized, c.State())

	c = NewController(WithSelector(func(string) (adapter.Kind, error) {
		return "jvmti", nil
	}))
	assert.ErrorIs(t, c.InitAllThreads(10, 10), ErrUnsupportedEnvironment)
}

// countingTable reports the worker goroutines only, and counts the ticks by the enumerations
type countingTable struct {
	handles []threads.Handle
	ticks   int32
}

func (c *countingTable) ActiveCount() int {
	return len(c.handles)
}

func (c *countingTable) Enumerate(dst []threads.Handle) int {
	atomic.AddInt32(&c.ticks, 1)
	return copy(dst, c.handles)
}

func TestControllerEndToEnd(t *testing.T) {
	release := make(chan struct{})
	ready := make(chan threads.Handle)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		table := threads.NewRuntimeTable(0)
		buf := make([]threads.Handle, 1)
		table.Enumerate(buf)
		ready <- buf[0]
		<-release
	}()
	worker := <-ready
	defer func() {
		close(release)
		wg.Wait()
	}()

	fakeClock := testingclock.NewFakeClock(time.Now())
	table := &countingTable{handles: []threads.Handle{worker}}
	w := &recordWriter{}
	c := NewController(WithWriter(w), WithThreadTable(table), WithAdapterOptions(adapter.WithClock(fakeClock)))

	require.NoError(t, c.InitAllThreads(10, 10))
	require.NoError(t, c.StartSampling())
	for i := int32(1); i <= 3; i++ {
		require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)
		fakeClock.Step(10 * time.Millisecond)
		expect := i
		require.Eventually(t, func() bool {
			return atomic.LoadInt32(&table.ticks) == expect
		}, time.Second, time.Millisecond)
	}
	require.NoError(t, c.StopSampling())
	require.NoError(t, c.WriteAndShutdown(&bytes.Buffer{}))

	assert.False(t, c.IsSampling())
	require.Equal(t, 1, w.count())
	data := w.data[0]
	assert.Equal(t, 3, data.Ticks)
	assert.Equal(t, 10, data.Depth)
	assert.Equal(t, 10*time.Millisecond, data.Interval)
	assert.Equal(t, 3, data.TotalSamples())
	require.Len(t, data.Traces, 1)
	assert.NotEmpty(t, data.Traces[0].Frames)
	assert.LessOrEqual(t, len(data.Traces[0].Frames), 10)

	require.NoError(t, c.InitAllThreads(5, 20))
	require.NoError(t, c.WriteAndShutdown(&bytes.Buffer{}))
}

func TestControllerInitWhileWriting(t *testing.T) {
	writing := make(chan struct{})
	finish := make(chan struct{})
	w := &blockingWriter{writing: writing, finish: finish}
	c := NewController(WithWriter(w), WithAdapterFactory(func(adapter.Kind) (adapter.Adapter, error) {
		return &recordAdapter{}, nil
	}))
	require.NoError(t, c.Init(10, 10, fixedSet(t)))

	result := make(chan error, 1)
	go func() {
		result <- c.WriteAndShutdown(&bytes.Buffer{})
	}()
	<-writing
	// the session has been released while the data is still written
	require.NoError(t, c.Init(5, 20, fixedSet(t)))
	close(finish)
	require.NoError(t, <-result)
	assert.Equal(t, StateInitialized, c.State())
}

type blockingWriter struct {
	writing chan struct{}
	finish  chan struct{}
}

func (b *blockingWriter) Write(*sample.Data, io.Writer) error {
	close(b.writing)
	<-b.finish
	return nil
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "sampling", StateSampling.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
