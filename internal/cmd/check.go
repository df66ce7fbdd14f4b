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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/process"
	"github.com/spf13/cobra"

	"github.com/apache/skywalking-go-sampler/pkg/boot"
	"github.com/apache/skywalking-go-sampler/pkg/module"
	"github.com/apache/skywalking-go-sampler/pkg/sampler"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/adapter"
	"github.com/apache/skywalking-go-sampler/pkg/sampler/traceback"
)

const checkSamplingTime = 100 * time.Millisecond

func newCheckCmd() *cobra.Command {
	configPath := ""
	outputPath := ""
	outputFormat := ""
	cmd := &cobra.Command{
		Use:   "check",
		Short: "check whether the sampling profiler works in the current environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(configPath, outputPath, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/sampler_configs.yaml", "the sampler config file path")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "output.txt", "the sampler check output file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "plain", "the check output format, support \"json\", \"plain\"")
	return cmd
}

func check(configPath, outputPath, format string) error {
	if configPath == "" || outputPath == "" {
		return fmt.Errorf("the config and output path is required")
	}

	err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm)
	if err != nil {
		log.Fatalf("failed to create the output file directory: %v", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("failed to create the output file: %v", err)
	}
	defer outFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notify := make(chan bool, 1)
	go func() {
		err := boot.RunModules(ctx, configPath, func(manager *module.Manager) {
			processModuleStartSuccess(notify, nil, manager, outFile, format)
		})
		if err != nil {
			processModuleStartSuccess(notify, err, nil, outFile, format)
		}
	}()

	<-notify
	return nil
}

func processModuleStartSuccess(notify chan bool, err error, mgr *module.Manager, file io.Writer, format string) {
	data := &outputData{GoVersion: adapter.RuntimeVersion()}
	defer func() {
		writeOutput(data, file, format)
		notify <- true
	}()
	if err != nil {
		data.Startup = err
		return
	}
	if _, ok := mgr.FindModule(sampler.ModuleName).(*sampler.Module); !ok {
		data.Startup = fmt.Errorf("the %s module is not active", sampler.ModuleName)
		return
	}

	kind, err := adapter.Select(data.GoVersion)
	if err != nil {
		data.Startup = err
		return
	}
	data.Adapter = string(kind)
	data.Goroutines = runtime.NumGoroutine()
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if threads, err := p.NumThreads(); err == nil {
			data.OSThreads = int(threads)
		}
	}
	capturer := traceback.NewCapturer(traceback.DefaultMaxDump)
	capturer.Dump()
	data.DumpSize = units.BytesSize(float64(capturer.BufferSize()))

	data.Sampling = testSampling()
}

// testSampling runs a short session of all the goroutines with a separated controller
func testSampling() error {
	controller := sampler.NewController()
	if err := controller.InitAllThreads(16, 5); err != nil {
		return err
	}
	if err := controller.StartSampling(); err != nil {
		_ = controller.WriteAndShutdown(io.Discard)
		return err
	}
	time.Sleep(checkSamplingTime)
	if err := controller.StopSampling(); err != nil {
		_ = controller.WriteAndShutdown(io.Discard)
		return err
	}
	return controller.WriteAndShutdown(io.Discard)
}

func writeOutput(data *outputData, file io.Writer, format string) {
	if format != "json" {
		sprintData := fmt.Sprintf("GoVersion: %s\nAdapter: %s\nGoroutines: %d\nOSThreads: %d\nDumpSize: %s\nStartup: %s\nSampling: %s",
			data.GoVersion, data.Adapter, data.Goroutines, data.OSThreads, data.DumpSize,
			errorOrSuccess(data.Startup), errorOrSuccess(data.Sampling))
		_, _ = file.Write([]byte(sprintData))
		return
	}
	// some error could not be marshaled, such as multierror
	jsonData := &outputDataJSON{
		GoVersion:  data.GoVersion,
		Adapter:    data.Adapter,
		Goroutines: data.Goroutines,
		OSThreads:  data.OSThreads,
		DumpSize:   data.DumpSize,
		Startup:    errorOrSuccess(data.Startup),
		Sampling:   errorOrSuccess(data.Sampling),
	}
	marshal, err := json.Marshal(jsonData)
	if err != nil {
		log.Printf("format the output failure: %v", err)
		return
	}
	_, _ = file.Write(marshal)
}

func errorOrSuccess(data error) string {
	if data != nil {
		return data.Error()
	}
	return "true"
}

type outputData struct {
	GoVersion  string
	Adapter    string
	Goroutines int
	OSThreads  int
	DumpSize   string
	Startup    error
	Sampling   error
}

type outputDataJSON struct {
	GoVersion  string
	Adapter    string
	Goroutines int
	OSThreads  int
	DumpSize   string
	Startup    string
	Sampling   string
}
