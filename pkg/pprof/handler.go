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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apache/skywalking-go-sampler/pkg/sampler"
)

// Session is the sampling session owner which could be controlled through HTTP
type Session interface {
	Controller() *sampler.Controller
	InitSession() error
}

type Status struct {
	State    string `json:"state"`
	Sampling bool   `json:"sampling"`
}

type Handler struct {
	session Session
}

func NewHandler(session Session) *Handler {
	return &Handler{session: session}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/sampler/status", h.status)
	mux.HandleFunc("/debug/sampler/init", h.post(h.session.InitSession))
	mux.HandleFunc("/debug/sampler/start", h.post(func() error {
		return h.session.Controller().StartSampling()
	}))
	mux.HandleFunc("/debug/sampler/stop", h.post(func() error {
		return h.session.Controller().StopSampling()
	}))
	mux.HandleFunc("/debug/sampler/profile", h.profile)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	h.writeStatus(w, http.StatusOK)
}

func (h *Handler) post(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := action(); err != nil {
			http.Error(w, err.Error(), statusCode(err))
			return
		}
		h.writeStatus(w, http.StatusOK)
	}
}

// profile releases the session, the samples are streamed as the response body
func (h *Handler) profile(w http.ResponseWriter, _ *http.Request) {
	controller := h.session.Controller()
	if controller.State() == sampler.StateUninitialized {
		http.Error(w, sampler.ErrNotInitialized.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="profile"`)
	body := &bodyWriter{ResponseWriter: w}
	if err := controller.WriteAndShutdown(body); err != nil {
		log.Warnf("write the sampling profile failure: %v", err)
		// the status has been sent once the body started
		if !body.started {
			http.Error(w, err.Error(), statusCode(err))
		}
	}
}

type bodyWriter struct {
	http.ResponseWriter
	started bool
}

func (b *bodyWriter) Write(p []byte) (int, error) {
	b.started = true
	return b.ResponseWriter.Write(p)
}

func (h *Handler) writeStatus(w http.ResponseWriter, code int) {
	state := h.session.Controller().State()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(&Status{State: state.String(), Sampling: state == sampler.StateSampling}); err != nil {
		log.Warnf("write the sampler status failure: %v", err)
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, sampler.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, sampler.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, sampler.ErrUnsupportedEnvironment):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
