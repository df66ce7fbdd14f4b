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

package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/apache/skywalking-go-sampler/pkg/logger"
	"github.com/apache/skywalking-go-sampler/pkg/module"
	"github.com/apache/skywalking-go-sampler/pkg/sampler"
)

const ModuleName = "pprof"

var log = logger.GetLogger("pprof")

type Config struct {
	module.Config `mapstructure:",squash"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Module serves the runtime pprof endpoints and the controls of the sampling profiler
type Module struct {
	config *Config

	mutex    sync.Mutex
	server   *http.Server
	listener net.Listener
	shutdown bool
}

func NewModule() *Module {
	return &Module{config: &Config{Port: 6060}}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RequiredModules() []string {
	return []string{sampler.ModuleName}
}

func (m *Module) Config() module.ConfigInterface {
	return m.config
}

func (m *Module) Start(_ context.Context, mgr *module.Manager) error {
	samplerModule, ok := mgr.FindModule(sampler.ModuleName).(*sampler.Module)
	if !ok {
		return fmt.Errorf("could not found the %s module", sampler.ModuleName)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	NewHandler(samplerModule).Register(mux)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", m.config.Host, m.config.Port))
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listener = listener
	m.server = &http.Server{
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           mux,
	}
	m.shutdown = false
	server := m.server
	go func() {
		err := server.Serve(listener)
		m.mutex.Lock()
		shutdown := m.shutdown
		m.mutex.Unlock()
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !shutdown {
			mgr.ShutdownModules(err)
		}
	}()
	log.Infof("debug server listening on %s", listener.Addr())
	return nil
}

// Addr of the started server
func (m *Module) Addr() net.Addr {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Module) NotifyStartSuccess() {
}

func (m *Module) Shutdown(ctx context.Context, _ *module.Manager) error {
	m.mutex.Lock()
	m.shutdown = true
	server := m.server
	m.mutex.Unlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
