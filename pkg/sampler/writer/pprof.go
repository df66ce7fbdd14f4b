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

package writer

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

const (
	goroutineLabel = "goroutine"
	parentLabel    = "parent_goroutine"
	creatorLabel   = "created_by"
)

// PProf writes the gzip compressed protobuf profile which could be read by "go tool pprof"
type PProf struct{}

func (p *PProf) Write(data *sample.Data, sink io.Writer) error {
	prof := BuildProfile(data)
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("build the pprof profile failure: %v", err)
	}
	return prof.Write(sink)
}

type functionKey struct {
	name string
	file string
}

// BuildProfile converts the sample data, every sample value contains the count and the cpu time
func BuildProfile(data *sample.Data) *profile.Profile {
	period := data.Interval.Nanoseconds()
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType:    &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:        period,
		DurationNanos: data.EndTime.Sub(data.StartTime).Nanoseconds(),
		Comments: []string{
			fmt.Sprintf("session: %s", data.SessionID),
			fmt.Sprintf("ticks: %d", data.Ticks),
		},
	}
	if !data.StartTime.IsZero() {
		prof.TimeNanos = data.StartTime.UnixNano()
	}

	functions := make(map[functionKey]*profile.Function)
	locations := make(map[*traceback.Frame]*profile.Location)
	location := func(frame *traceback.Frame) *profile.Location {
		if loc := locations[frame]; loc != nil {
			return loc
		}
		key := functionKey{name: frame.Function, file: frame.File}
		fn := functions[key]
		if fn == nil {
			fn = &profile.Function{
				ID:         uint64(len(prof.Function) + 1),
				Name:       frame.Function,
				SystemName: frame.Function,
				Filename:   frame.File,
			}
			functions[key] = fn
			prof.Function = append(prof.Function, fn)
		}
		loc := &profile.Location{
			ID:   uint64(len(prof.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: int64(frame.Line)}},
		}
		locations[frame] = loc
		prof.Location = append(prof.Location, loc)
		return loc
	}

	for _, s := range data.Samples {
		trace := data.Trace(s.TraceID)
		if trace == nil {
			continue
		}
		locs := make([]*profile.Location, 0, len(trace.Frames))
		for _, frame := range trace.Frames {
			locs = append(locs, location(frame))
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: locs,
			Value:    []int64{int64(s.Count), int64(s.Count) * period},
			Label:    sampleLabels(data.Goroutine(s.GoroutineID)),
			NumLabel: map[string][]int64{goroutineLabel: {int64(s.GoroutineID)}},
		})
	}
	return prof
}

func sampleLabels(g *sample.Goroutine) map[string][]string {
	if g == nil {
		return nil
	}
	labels := make(map[string][]string)
	if g.CreatedBy != "" {
		labels[creatorLabel] = []string{g.CreatedBy}
	}
	if g.ParentID != 0 {
		labels[parentLabel] = []string{fmt.Sprintf("%d", g.ParentID)}
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}
