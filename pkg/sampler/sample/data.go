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

package sample

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

// Trace is a distinct stack, Frames[0] is the innermost call
type Trace struct {
	ID     int
	Frames []*traceback.Frame
}

// Sample counts how many ticks have seen the goroutine running the trace
type Sample struct {
	GoroutineID uint64
	TraceID     int
	Count       int
}

// Goroutine is the goroutine metadata first seen by the sampling
type Goroutine struct {
	ID        uint64
	ParentID  uint64
	CreatedBy string
}

type sampleKey struct {
	goroutine uint64
	trace     int
}

// Data accumulates all ticks since the profiler been started.
// It is not safe for concurrent use, the owner must serialize the access.
type Data struct {
	SessionID string
	Depth     int
	Interval  time.Duration
	StartTime time.Time
	EndTime   time.Time
	Ticks     int

	Traces     []*Trace
	Samples    []*Sample
	Goroutines []*Goroutine

	traceIndex     map[string]*Trace
	sampleIndex    map[sampleKey]*Sample
	goroutineIndex map[uint64]*Goroutine
	keyBuilder     strings.Builder
}

func NewData(depth int) *Data {
	return &Data{
		SessionID:      uuid.New().String(),
		Depth:          depth,
		traceIndex:     make(map[string]*Trace),
		sampleIndex:    make(map[sampleKey]*Sample),
		goroutineIndex: make(map[uint64]*Goroutine),
	}
}

// AddTick marks a tick happened at the time, even no goroutine has been recorded
func (d *Data) AddTick(at time.Time) {
	if d.Ticks == 0 && d.StartTime.IsZero() {
		d.StartTime = at
	}
	d.Ticks++
	d.EndTime = at
}

// Record the goroutine stack of current tick, the stack is truncated to the depth
func (d *Data) Record(g *traceback.Goroutine) {
	frames := g.Frames
	if d.Depth > 0 && len(frames) > d.Depth {
		frames = frames[:d.Depth]
	}
	trace := d.trace(frames)

	key := sampleKey{goroutine: g.ID, trace: trace.ID}
	s := d.sampleIndex[key]
	if s == nil {
		s = &Sample{GoroutineID: g.ID, TraceID: trace.ID}
		d.sampleIndex[key] = s
		d.Samples = append(d.Samples, s)
	}
	s.Count++

	if d.goroutineIndex[g.ID] == nil {
		info := &Goroutine{ID: g.ID, ParentID: g.ParentID}
		if g.CreatedBy != nil {
			info.CreatedBy = g.CreatedBy.Function
		}
		d.goroutineIndex[g.ID] = info
		d.Goroutines = append(d.Goroutines, info)
	}
}

// TotalSamples is the sum of all sample counts
func (d *Data) TotalSamples() int {
	total := 0
	for _, s := range d.Samples {
		total += s.Count
	}
	return total
}

func (d *Data) Trace(id int) *Trace {
	if id <= 0 || id > len(d.Traces) {
		return nil
	}
	return d.Traces[id-1]
}

func (d *Data) Goroutine(id uint64) *Goroutine {
	return d.goroutineIndex[id]
}

func (d *Data) trace(frames []*traceback.Frame) *Trace {
	d.keyBuilder.Reset()
	for _, f := range frames {
		d.keyBuilder.WriteString(f.Function)
		d.keyBuilder.WriteByte(0)
		d.keyBuilder.WriteString(f.File)
		d.keyBuilder.WriteByte(':')
		d.keyBuilder.WriteString(strconv.Itoa(f.Line))
		d.keyBuilder.WriteByte('\n')
	}
	key := d.keyBuilder.String()
	if t := d.traceIndex[key]; t != nil {
		return t
	}
	copied := make([]*traceback.Frame, len(frames))
	copy(copied, frames)
	t := &Trace{ID: len(d.Traces) + 1, Frames: copied}
	d.traceIndex[key] = t
	d.Traces = append(d.Traces, t)
	return t
}
