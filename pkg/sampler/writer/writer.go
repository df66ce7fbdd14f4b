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
	"fmt"
	"io"

	"github.com/apache/skywalking-go-sampler/pkg/sampler/sample"
)

const (
	FormatPProf = "pprof"
	FormatHprof = "hprof"
)

// Writer serializes the extracted sample data to the sink
type Writer interface {
	Write(data *sample.Data, sink io.Writer) error
}

// ByName finds the writer of the output format
func ByName(format string) (Writer, error) {
	switch format {
	case "", FormatPProf:
		return &PProf{}, nil
	case FormatHprof:
		return &Hprof{}, nil
	default:
		return nil, fmt.Errorf("unknown profile format: %s, support %q and %q", format, FormatPProf, FormatHprof)
	}
}
