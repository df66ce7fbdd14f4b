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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"

	"github.com/apache/skywalking-go-sampler/pkg/module"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/adapter"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/threads"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/writer"
)

const (
	ModuleName = "sampler"

	ThreadsAll      = "all"
	ThreadsFiltered = "filtered"
)

type Config struct {
	module.Config `mapstructure:",squash"`

	StackDepth  int    `mapstructure:"stack_depth"`
	Interval    string `mapstructure:"interval"`
	Threads     string `mapstructure:"threads"`
	CreatedBy   string `mapstructure:"created_by"`
	MaxDumpSize string `mapstructure:"max_dump_size"`
	OutputPath  string `mapstructure:"output_path"`
	Format      string `mapstructure:"format"`
	StartOnBoot bool   `mapstructure:"start_on_boot"`
}

type Module struct {
	config *Config

	mutex      sync.Mutex
	controller *Controller
	filtered   *threads.Filtered
	depth      int
	intervalMs int
	dumpSize   int
}

func NewModule() *Module {
	return &Module{config: &Config{
		StackDepth:  64,
		Interval:    "10ms",
		Threads:     ThreadsAll,
		MaxDumpSize: "64MiB",
		Format:      writer.FormatPProf,
	}}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RequiredModules() []string {
	return nil
}

func (m *Module) Config() module.ConfigInterface {
	return m.config
}

func (m *Module) Start(context.Context, *module.Manager) error {
	if m.config.StackDepth <= 0 {
		return fmt.Errorf("the stack depth must be positive, current: %d", m.config.StackDepth)
	}
	interval, err := time.ParseDuration(m.config.Interval)
	if err != nil {
		return fmt.Errorf("parse the sampling interval failure: %v", err)
	}
	if interval < time.Millisecond {
		return fmt.Errorf("the sampling interval must be at least 1ms, current: %s", interval)
	}
	dumpSize, err := units.RAMInBytes(m.config.MaxDumpSize)
	if err != nil {
		return fmt.Errorf("parse the max dump size failure: %v", err)
	}
	w, err := writer.ByName(m.config.Format)
	if err != nil {
		return err
	}
	if m.config.Threads != ThreadsAll && m.config.Threads != ThreadsFiltered {
		return fmt.Errorf("unknown threads mode: %s, support %q and %q", m.config.Threads, ThreadsAll, ThreadsFiltered)
	}
	if m.config.Threads == ThreadsFiltered && m.config.CreatedBy == "" {
		return fmt.Errorf("the created_by filter is required when sampling the filtered goroutines")
	}

	m.depth, m.intervalMs, m.dumpSize = m.config.StackDepth, int(interval.Milliseconds()), int(dumpSize)
	m.controller = NewController(
		WithWriter(w),
		WithThreadTable(threads.NewRuntimeTable(m.dumpSize)),
		WithAdapterOptions(adapter.WithMaxDumpSize(m.dumpSize)),
	)
	if err := m.InitSession(); err != nil {
		return err
	}
	if m.config.StartOnBoot {
		return m.controller.StartSampling()
	}
	return nil
}

// InitSession initializes a new session of the controller by the module config,
// a profile could be taken again after the previous one has been written.
func (m *Module) InitSession() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.config.Threads != ThreadsFiltered {
		return m.controller.InitAllThreads(m.depth, m.intervalMs)
	}

	kind, err := adapter.Select(adapter.RuntimeVersion())
	if err != nil {
		return err
	}
	parser, err := traceback.NewParser(kind.Dialect(), traceback.DefaultFrameCacheSize)
	if err != nil {
		return err
	}
	filtered := threads.NewFiltered(traceback.NewSnapshot(traceback.NewCapturer(m.dumpSize), parser),
		threads.CreatedBy(m.config.CreatedBy), threads.DefaultDecisionTTL)
	if err := m.controller.Init(m.depth, m.intervalMs, filtered); err != nil {
		filtered.Close()
		return err
	}
	if m.filtered != nil {
		m.filtered.Close()
	}
	m.filtered = filtered
	return nil
}

func (m *Module) NotifyStartSuccess() {
}

// Shutdown writes the samples of the current session to the output path
func (m *Module) Shutdown(context.Context, *module.Manager) error {
	if m.controller == nil {
		return nil
	}
	var result error
	if m.controller.State() != StateUninitialized {
		result = m.writeTo(m.config.OutputPath)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.filtered != nil {
		m.filtered.Close()
		m.filtered = nil
	}
	return result
}

func (m *Module) writeTo(path string) error {
	if path == "" {
		log.Infof("the output path is not configured, the samples are discarded")
		return m.controller.WriteAndShutdown(io.Discard)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		var result error
		result = multierror.Append(result, fmt.Errorf("create the output file failure: %v", err))
		if err := m.controller.WriteAndShutdown(io.Discard); err != nil {
			result = multierror.Append(result, err)
		}
		return result
	}
	var result error
	if err := m.controller.WriteAndShutdown(file); err != nil {
		result = multierror.Append(result, err)
	}
	if err := file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if result == nil {
		log.Infof("the samples have been written to %s", path)
	}
	return result
}

// Controller of the module, only available after the module started
func (m *Module) Controller() *Controller {
	return m.controller
}
