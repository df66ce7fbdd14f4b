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

package config

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrideEnv(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		file   string
		result map[string]interface{}
	}{
		{
			name: "no-env",
			file: "testdata/override-no-env.yaml",
			result: map[string]interface{}{
				"output_path": "/tmp/sampler.pprof",
				"stack_depth": 128,
				"intervals":   []interface{}{10, 20},
				"http": map[string]interface{}{
					"host": 0,
					"port": 6060,
				},
				"filters": []interface{}{
					map[string]interface{}{
						"created_by": 1,
					},
				},
			},
		},
		{
			name: "full-env",
			env: map[string]string{
				"TEST_OUTPUT_PATH":        "/data/cpu.pprof",
				"TEST_STACK_DEPTH":        "64",
				"TEST_INTERVAL_1":         "5",
				"TEST_INTERVAL_2_NOT_SET": "",
				"TEST_HTTP_HOST":          "127.0.0.1",
				"TEST_FILTER_CREATED_BY":  "main.serve",
			},
			file: "testdata/override-env.yaml",
			result: map[string]interface{}{
				"output_path": "/data/cpu.pprof",
				"stack_depth": "64",
				"intervals":   []interface{}{"5", "20"},
				"http": map[string]interface{}{
					"host": "127.0.0.1",
					"port": "6060",
				},
				"filters": []interface{}{
					map[string]interface{}{
						"created_by": "main.serve",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// load env
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			// load config
			v := viper.New()
			v.SetConfigType("yaml")
			content, err := os.ReadFile(tt.file)
			require.NoError(t, err)
			require.NoError(t, v.ReadConfig(bytes.NewReader(content)))

			// environment override
			overrideEnv(v)

			// verify result
			assert.Equal(t, tt.result, v.AllSettings())
		})
	}
}
