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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gomonkey "github.com/agiledragon/gomonkey/v2"
	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "stack depth", modify: func(c *Config) { c.StackDepth = 0 }},
		{name: "interval format", modify: func(c *Config) { c.Interval = "often" }},
		{name: "interval too small", modify: func(c *Config) { c.Interval = "100us" }},
		{name: "dump size", modify: func(c *Config) { c.MaxDumpSize = "lots" }},
		{name: "format", modify: func(c *Config) { c.Format = "flamegraph" }},
		{name: "threads", modify: func(c *Config) { c.Threads = "some" }},
		{name: "filter", modify: func(c *Config) { c.Threads = ThreadsFiltered }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := NewModule()
			tt.modify(mod.config)
			assert.Error(t, mod.Start(context.Background(), nil))
			assert.Nil(t, mod.Controller())
			assert.NoError(t, mod.Shutdown(context.Background(), nil))
		})
	}
}

func TestModuleWriteOnShutdown(t *testing.T) {
	output := filepath.Join(t.TempDir(), "cpu.pprof")
	mod := NewModule()
	mod.config.Active = true
	mod.config.Interval = "1ms"
	mod.config.MaxDumpSize = "4MiB"
	mod.config.OutputPath = output
	mod.config.StartOnBoot = true

	require.NoError(t, mod.Start(context.Background(), nil))
	assert.True(t, mod.Config().IsActive())
	assert.True(t, mod.Controller().IsSampling())
	assert.Equal(t, 1, mod.intervalMs)
	require.NoError(t, mod.Shutdown(context.Background(), nil))
	assert.Equal(t, StateUninitialized, mod.Controller().State())

	content, err := os.Open(output)
	require.NoError(t, err)
	defer content.Close()
	prof, err := profile.Parse(content)
	require.NoError(t, err)
	assert.Equal(t, "cpu", prof.PeriodType.Type)

	// the written session is not written again
	require.NoError(t, mod.Shutdown(context.Background(), nil))
}

func TestModuleFilteredSession(t *testing.T) {
	mod := NewModule()
	mod.config.Threads = ThreadsFiltered
	mod.config.CreatedBy = "testing.(*T).Run"
	mod.config.Format = "hprof"

	require.NoError(t, mod.Start(context.Background(), nil))
	assert.Equal(t, StateInitialized, mod.Controller().State())
	assert.NotNil(t, mod.filtered)
	assert.ErrorIs(t, mod.InitSession(), ErrAlreadyInitialized)

	require.NoError(t, mod.Controller().WriteAndShutdown(&discardSink{}))
	require.NoError(t, mod.InitSession())
	require.NoError(t, mod.Shutdown(context.Background(), nil))
	assert.Nil(t, mod.filtered)
}

func TestModuleOutputFailure(t *testing.T) {
	mod := NewModule()
	mod.config.OutputPath = "/readonly/cpu.pprof"
	require.NoError(t, mod.Start(context.Background(), nil))

	patches := gomonkey.ApplyFuncReturn(os.OpenFile, (*os.File)(nil), errors.New("read-only file system"))
	err := mod.Shutdown(context.Background(), nil)
	patches.Reset()

	assert.ErrorContains(t, err, "create the output file failure: read-only file system")
	// the session is released even the output could not be created
	assert.Equal(t, StateUninitialized, mod.Controller().State())
}

type discardSink struct{}

func (d *discardSink) Write(p []byte) (int, error) {
	return len(p), nil
}
