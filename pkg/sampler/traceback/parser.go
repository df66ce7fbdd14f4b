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

package traceback

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultFrameCacheSize = 4096

	goroutinePrefix = "goroutine "
	createdByPrefix = "created by "
	parentInfix     = " in goroutine "
	elidedPrefix    = "..."
)

// Parser reads the goroutine dump which printed by runtime.Stack(buf, true).
// The frames are interned, the same call site in the following dumps reuse the same *Frame.
type Parser struct {
	dialect Dialect
	frames  *lru.Cache
}

func NewParser(dialect Dialect, frameCacheSize int) (*Parser, error) {
	if frameCacheSize <= 0 {
		frameCacheSize = DefaultFrameCacheSize
	}
	cache, err := lru.New(frameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Parser{dialect: dialect, frames: cache}, nil
}

func (p *Parser) Dialect() Dialect {
	return p.dialect
}

// Parse all goroutines in the dump. The dump could be truncated, the last goroutine
// contains the frames which have been completely printed.
func (p *Parser) Parse(dump []byte) ([]*Goroutine, error) {
	result := make([]*Goroutine, 0)
	var current *Goroutine
	var function string
	var creator bool
	for _, raw := range bytes.Split(dump, []byte{'\n'}) {
		line := string(raw)
		switch {
		case strings.HasPrefix(line, goroutinePrefix):
			g, err := parseHeader(line)
			if err != nil {
				return nil, err
			}
			current, function, creator = g, "", false
			result = append(result, g)
		case current == nil:
			continue
		case line == "":
			current = nil
		case line[0] == '\t':
			if function == "" {
				continue
			}
			frame := p.frame(function, line[1:])
			if creator {
				current.CreatedBy = frame
			} else {
				current.Frames = append(current.Frames, frame)
			}
			function = ""
		case strings.HasPrefix(line, createdByPrefix):
			function, current.ParentID = p.creator(line[len(createdByPrefix):])
			creator = true
		case strings.HasPrefix(line, elidedPrefix):
			continue
		default:
			function, creator = callFunction(line), false
		}
	}
	return result, nil
}

func (p *Parser) creator(val string) (function string, parent uint64) {
	if p.dialect != DialectParent {
		return val, 0
	}
	idx := strings.LastIndex(val, parentInfix)
	if idx < 0 {
		return val, 0
	}
	parent, err := strconv.ParseUint(val[idx+len(parentInfix):], 10, 64)
	if err != nil {
		return val, 0
	}
	return val[:idx], parent
}

func (p *Parser) frame(function, location string) *Frame {
	key := function + "\x00" + location
	if cached, ok := p.frames.Get(key); ok {
		return cached.(*Frame)
	}
	frame := &Frame{Function: function}
	frame.File, frame.Line = parseLocation(location)
	p.frames.Add(key, frame)
	return frame
}

// IDs calls the consumer with the ID of every goroutine in the dump, in dump order
func IDs(dump []byte, consumer func(id uint64)) {
	for len(dump) > 0 {
		var line []byte
		if idx := bytes.IndexByte(dump, '\n'); idx >= 0 {
			line, dump = dump[:idx], dump[idx+1:]
		} else {
			line, dump = dump, nil
		}
		if !bytes.HasPrefix(line, []byte(goroutinePrefix)) {
			continue
		}
		line = line[len(goroutinePrefix):]
		if idx := bytes.IndexByte(line, ' '); idx > 0 {
			line = line[:idx]
		}
		if id, err := strconv.ParseUint(string(line), 10, 64); err == nil {
			consumer(id)
		}
	}
}

// parseHeader reads "goroutine 18 [chan receive, 2 minutes]:"
func parseHeader(line string) (*Goroutine, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("illegal goroutine header: %q", line)
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("illegal goroutine id in header %q: %v", line, err)
	}
	g := &Goroutine{ID: id}
	start, end := strings.IndexByte(line, '['), strings.LastIndexByte(line, ']')
	if start >= 0 && end > start {
		status := line[start+1 : end]
		if idx := strings.IndexByte(status, ','); idx >= 0 {
			g.State, g.Wait = status[:idx], strings.TrimSpace(status[idx+1:])
		} else {
			g.State = status
		}
	}
	return g, nil
}

// callFunction trims the arguments of "main.(*T).run(0xc000010000, {0x1, 0x2})"
func callFunction(line string) string {
	if idx := strings.LastIndexByte(line, '('); idx > 0 {
		return line[:idx]
	}
	return line
}

// parseLocation reads "/src/main.go:12 +0x1d"
func parseLocation(location string) (file string, line int) {
	location = strings.TrimSpace(location)
	if idx := strings.LastIndex(location, " +0x"); idx >= 0 {
		location = location[:idx]
	}
	idx := strings.LastIndexByte(location, ':')
	if idx < 0 {
		return location, 0
	}
	line, err := strconv.Atoi(location[idx+1:])
	if err != nil {
		return location, 0
	}
	return location[:idx], line
}
