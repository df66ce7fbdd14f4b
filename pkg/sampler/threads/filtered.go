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

package threads

import (
	"strings"
	"time"

	"github.com/zekroTJA/timedmap"

	"github.com/apache/skywalking-go-sampler/pkg/logger"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

var log = logger.GetLogger("sampler", "threads")

const (
	DefaultDecisionTTL   = time.Minute
	decisionCleanupTicks = 10 * time.Second
)

// GoroutineSource lists the live goroutines with their stacks
type GoroutineSource interface {
	Goroutines() ([]*traceback.Goroutine, error)
}

// Predicate decides whether the goroutine should be sampled.
// A stable predicate gives the same decision during the whole life of a goroutine.
type Predicate struct {
	Match  func(g *traceback.Goroutine) bool
	Stable bool
}

// CreatedBy matches the goroutines started by a function with the prefix
func CreatedBy(prefix string) Predicate {
	return Predicate{Stable: true, Match: func(g *traceback.Goroutine) bool {
		return g.CreatedBy != nil && strings.HasPrefix(g.CreatedBy.Function, prefix)
	}}
}

// RunningFunction matches the goroutines which have a frame of a function with the prefix,
// it follows the current stack so it is evaluated on every tick
func RunningFunction(prefix string) Predicate {
	return Predicate{Match: func(g *traceback.Goroutine) bool {
		return g.HasFunctionPrefix(prefix)
	}}
}

// Filtered samples the live goroutines matched by the predicate. The decision of a stable predicate
// is kept for the TTL, so it is not evaluated on every tick.
type Filtered struct {
	source    GoroutineSource
	predicate Predicate
	ttl       time.Duration
	decisions *timedmap.TimedMap
	threads   []Handle
}

func NewFiltered(source GoroutineSource, predicate Predicate, ttl time.Duration) *Filtered {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &Filtered{
		source:    source,
		predicate: predicate,
		ttl:       ttl,
		decisions: timedmap.New(decisionCleanupTicks),
		threads:   make([]Handle, 0, initialCapacity),
	}
}

func (f *Filtered) ThreadsToSample() []Handle {
	goroutines, err := f.source.Goroutines()
	if err != nil {
		log.Warnf("could not list the goroutines to filter: %v", err)
		return f.threads[:0]
	}
	f.threads = f.threads[:0]
	for _, g := range goroutines {
		if f.matches(g) {
			f.threads = append(f.threads, Handle(g.ID))
		}
	}
	return f.threads
}

func (f *Filtered) matches(g *traceback.Goroutine) bool {
	if !f.predicate.Stable {
		return f.predicate.Match(g)
	}
	if decision := f.decisions.GetValue(g.ID); decision != nil {
		return decision.(bool)
	}
	matched := f.predicate.Match(g)
	f.decisions.Set(g.ID, matched, f.ttl)
	return matched
}

// Close stops the cleaner of the decision cache
func (f *Filtered) Close() {
	f.decisions.StopCleaner()
}
