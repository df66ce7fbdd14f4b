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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

func buildData() *sample.Data {
	leaf := &traceback.Frame{Function: "app.leaf", File: "/app/a.go", Line: 3}
	root := &traceback.Frame{Function: "app.root", File: "/app/a.go", Line: 20}
	data := sample.NewData(10)
	data.Interval = 10 * time.Millisecond
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		data.AddTick(start.Add(time.Duration(i) * data.Interval))
		data.Record(&traceback.Goroutine{ID: 7, Frames: []*traceback.Frame{leaf, root},
			CreatedBy: &traceback.Frame{Function: "app.spawn"}, ParentID: 1})
	}
	data.Record(&traceback.Goroutine{ID: 8, Frames: []*traceback.Frame{root}})
	return data
}

func TestPProfWrite(t *testing.T) {
	data := buildData()
	buf := &bytes.Buffer{}
	require.NoError(t, (&PProf{}).Write(data, buf))

	prof, err := profile.Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10*time.Millisecond), prof.Period)
	assert.Equal(t, int64(20*time.Millisecond), prof.DurationNanos)
	require.Len(t, prof.Sample, 2)
	assert.Len(t, prof.Function, 2)
	assert.Len(t, prof.Location, 2)

	first := prof.Sample[0]
	assert.Equal(t, []int64{3, int64(30 * time.Millisecond)}, first.Value)
	assert.Equal(t, "app.leaf", first.Location[0].Line[0].Function.Name)
	assert.Equal(t, int64(3), first.Location[0].Line[0].Line)
	assert.Equal(t, "app.root", first.Location[1].Line[0].Function.Name)
	assert.Equal(t, []int64{7}, first.NumLabel["goroutine"])
	assert.Equal(t, []string{"app.spawn"}, first.Label["created_by"])
	assert.Equal(t, []string{"1"}, first.Label["parent_goroutine"])

	second := prof.Sample[1]
	assert.Equal(t, []int64{1, int64(10 * time.Millisecond)}, second.Value)
	assert.Empty(t, second.Label)
	assert.Same(t, first.Location[1], second.Location[0])
}

func TestPProfWriteEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&PProf{}).Write(sample.NewData(5), buf))
	prof, err := profile.Parse(buf)
	require.NoError(t, err)
	assert.Empty(t, prof.Sample)
}

func TestHprofWrite(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&Hprof{}).Write(buildData(), buf))

	expect := `JAVA PROFILE 1.0.2, created Fri Mar  1 10:00:00 2024
THREAD START (obj=1, id = 7, name="goroutine 7", group="app.spawn")
THREAD START (obj=0, id = 8, name="goroutine 8", group="")
TRACE 1: (thread=7)
	app.leaf(/app/a.go:3)
	app.root(/app/a.go:20)
TRACE 2: (thread=8)
	app.root(/app/a.go:20)
CPU SAMPLES BEGIN (total = 4) Fri Mar  1 10:00:00 2024
rank   self  accum   count trace method
   1 75.00% 75.00%       3     1 app.leaf
   2 25.00% 100.00%       1     2 app.root
CPU SAMPLES END
`
	assert.Equal(t, expect, buf.String())
}

type failingSink struct{}

func (f *failingSink) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteSinkFailure(t *testing.T) {
	assert.EqualError(t, (&Hprof{}).Write(buildData(), &failingSink{}), "disk full")
	assert.Error(t, (&PProf{}).Write(buildData(), &failingSink{}))
}

func TestByName(t *testing.T) {
	w, err := ByName("")
	require.NoError(t, err)
	assert.IsType(t, &PProf{}, w)
	w, err = ByName(FormatHprof)
	require.NoError(t, err)
	assert.IsType(t, &Hprof{}, w)
	_, err = ByName("flamegraph")
	assert.Error(t, err)
}
