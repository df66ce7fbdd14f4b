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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoRuntime(t *testing.T) {
	tests := []struct {
		runtime string
		expect  string
		err     bool
	}{
		{runtime: "go1.21.5", expect: "1.21.5"},
		{runtime: "go1.20", expect: "1.20.0"},
		{runtime: "go1.22rc1", expect: "1.22.0"},
		{runtime: "devel go1.23-1e8a2b3 Tue Jan 2 10:00:00 2024 +0000", expect: "1.23.0"},
		{runtime: "unknown", err: true},
		{runtime: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.runtime, func(t *testing.T) {
			v, err := ParseGoRuntime(tt.runtime)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, v.String())
		})
	}
}

func TestGreaterOrEquals(t *testing.T) {
	assert.True(t, Build(1, 21, 0).GreaterOrEquals(Build(1, 21, 0)))
	assert.True(t, Build(1, 21, 5).GreaterOrEquals(Build(1, 17, 0)))
	assert.True(t, Build(2, 0, 0).GreaterOrEquals(Build(1, 99, 99)))
	assert.False(t, Build(1, 16, 15).GreaterOrEquals(Build(1, 17, 0)))
	assert.False(t, Build(1, 21, 0).GreaterOrEquals(Build(1, 21, 1)))
}
