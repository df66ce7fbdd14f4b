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

package module

import "sync"

// Manager is shared with all the started modules, for finding the depended modules
type Manager struct {
	moduleMap map[string]Module

	shutdownOnce sync.Once
	shutdown     func(err error)
}

func NewManager(modules []Module, shutdown func(err error)) *Manager {
	moduleMap := make(map[string]Module, len(modules))
	for _, mod := range modules {
		moduleMap[mod.Name()] = mod
	}
	return &Manager{moduleMap: moduleMap, shutdown: shutdown}
}

// FindModule of the started modules, return nil when the module is not active
func (m *Manager) FindModule(name string) Module {
	return m.moduleMap[name]
}

// ShutdownModules notify the starter to shut down all the modules, only the first notify works
func (m *Manager) ShutdownModules(err error) {
	m.shutdownOnce.Do(func() {
		if m.shutdown != nil {
			m.shutdown(err)
		}
	})
}
