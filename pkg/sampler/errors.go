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
	"errors"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/adapter"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState matches every lifecycle protocol violation
	ErrInvalidState = errors.New("invalid sampling profiler state")

	ErrAlreadyInitialized error = stateError("sampling profiler already initialized")
	ErrNotInitialized     error = stateError("sampling profiler not initialized")
	ErrAlreadyStarted     error = stateError("sampling profiler already started")
	ErrNotStarted         error = stateError("sampling profiler not started")

	ErrUnsupportedEnvironment = adapter.ErrUnsupportedEnvironment
	ErrAlreadyExtracted       = adapter.ErrAlreadyExtracted
	// ErrNoSampleData means the adapter has been released without any sample data
	ErrNoSampleData = errors.New("no sample data extracted")
	// ErrIOFailure wraps the error returned by the profile writer
	ErrIOFailure = errors.New("write profile data failure")
)

type stateError string

func (e stateError) Error() string {
	return string(e)
}

func (e stateError) Is(target error) bool {
	return target == ErrInvalidState
}
