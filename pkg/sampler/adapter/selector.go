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

package adapter

import (
	"fmt"
	"runtime"

	"github.com/apache/skywalking-go-sampler/pkg/tools/version"
)

var (
	// the argument format of the traceback has been changed by the register ABI in go1.17
	minLegacyVersion = version.Build(1, 17, 0)
	minParentVersion = version.Build(1, 21, 0)
)

// Selector decides the adapter kind from the runtime version
type Selector func(runtimeVersion string) (Kind, error)

// Select is the default Selector, it only depends on the version string
func Select(runtimeVersion string) (Kind, error) {
	v, err := version.ParseGoRuntime(runtimeVersion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	switch {
	case v.GreaterOrEquals(minParentVersion):
		return KindParentTraceback, nil
	case v.GreaterOrEquals(minLegacyVersion):
		return KindLegacyTraceback, nil
	default:
		return "", fmt.Errorf("%w: go runtime %s is not supported by the sampling profiler", ErrUnsupportedEnvironment, v)
	}
}

// RuntimeVersion of the current process
func RuntimeVersion() string {
	return runtime.Version()
}
