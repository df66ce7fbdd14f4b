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
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
)

// the header is required by the hprof text readers
const hprofHeader = "JAVA PROFILE 1.0.2"

// Hprof writes the ASCII HPROF "cpu=samples" layout, one TRACE per goroutine and stack
type Hprof struct{}

func (h *Hprof) Write(data *sample.Data, sink io.Writer) error {
	w := bufio.NewWriter(sink)
	created := data.StartTime.UTC().Format(time.ANSIC)
	fmt.Fprintf(w, "%s, created %s\n", hprofHeader, created)

	for _, g := range data.Goroutines {
		fmt.Fprintf(w, "THREAD START (obj=%d, id = %d, name=\"goroutine %d\", group=\"%s\")\n",
			g.ParentID, g.ID, g.ID, g.CreatedBy)
	}
	for i, s := range data.Samples {
		fmt.Fprintf(w, "TRACE %d: (thread=%d)\n", i+1, s.GoroutineID)
		if trace := data.Trace(s.TraceID); trace != nil {
			for _, frame := range trace.Frames {
				fmt.Fprintf(w, "\t%s(%s:%d)\n", frame.Function, frame.File, frame.Line)
			}
		}
	}

	total := data.TotalSamples()
	fmt.Fprintf(w, "CPU SAMPLES BEGIN (total = %d) %s\n", total, data.EndTime.UTC().Format(time.ANSIC))
	fmt.Fprintln(w, "rank   self  accum   count trace method")
	ranked := make([]int, len(data.Samples))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return data.Samples[ranked[i]].Count > data.Samples[ranked[j]].Count
	})
	accum := 0.0
	for rank, idx := range ranked {
		s := data.Samples[idx]
		self := float64(s.Count) * 100 / float64(total)
		accum += self
		method := ""
		if trace := data.Trace(s.TraceID); trace != nil && len(trace.Frames) > 0 {
			method = trace.Frames[0].Function
		}
		fmt.Fprintf(w, "%4d %5.2f%% %5.2f%% %7d %5d %s\n", rank+1, self, accum, s.Count, idx+1, method)
	}
	fmt.Fprintln(w, "CPU SAMPLES END")
	return w.Flush()
}
