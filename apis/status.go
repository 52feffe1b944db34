// Copyright 2021-2022 The httpmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apis exposes the read-only status HTTP surface: liveness/readiness probes
// and a snapshot of this server's local connection count. It never touches routing
// decisions; the lifetime manager's fan-out is unaffected by whether this server is
// running.
package apis

import (
	"net/http"

	"github.com/alwitt/goutils"
	"github.com/alwitt/hublife/common"
	"github.com/apex/log"
)

// StatusProvider is implemented by the lifetime manager to expose the counters this
// handler reports.
type StatusProvider interface {
	// ServerName is this manager's generated server identity.
	ServerName() string
	// ConnectionCount is the number of connections currently registered locally.
	ConnectionCount() int
}

// APIRestStatusHandler serves the read-only status endpoints.
type APIRestStatusHandler struct {
	goutils.RestAPIHandler
	manager StatusProvider
}

// GetAPIRestStatusHandler builds an APIRestStatusHandler reporting on manager.
func GetAPIRestStatusHandler(
	manager StatusProvider, httpConfig *common.StatusServerConfig,
) (APIRestStatusHandler, error) {
	logTags := log.Fields{"module": "apis", "component": "status"}
	return APIRestStatusHandler{
		RestAPIHandler: goutils.RestAPIHandler{
			Component: goutils.Component{
				LogTags: logTags,
				LogTagModifiers: []goutils.LogMetadataModifier{
					goutils.ModifyLogMetadataByRestRequestParam,
				},
			},
			CallRequestIDHeaderField: &httpConfig.Logging.RequestIDHeader,
			DoNotLogHeaders: func() map[string]bool {
				result := map[string]bool{}
				for _, v := range httpConfig.Logging.DoNotLogHeaders {
					result[v] = true
				}
				return result
			}(),
		},
		manager: manager,
	}, nil
}

// StatusResponse is the body of a successful GET on the status endpoint.
type StatusResponse struct {
	goutils.RestAPIBaseResponse
	// ServerName is this server's generated identity within the cluster.
	ServerName string `json:"server_name"`
	// LocalConnections is the number of connections currently registered locally.
	LocalConnections int `json:"local_connections"`
}

// Write implements io.Writer so this handler can serve as the log sink for
// gorilla/handlers.CombinedLoggingHandler.
func (h APIRestStatusHandler) Write(p []byte) (n int, err error) {
	log.WithFields(h.LogTags).Infof("%s", p)
	return len(p), nil
}

// Status reports this server's identity and local connection count.
func (h APIRestStatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	resp := StatusResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		ServerName:          h.manager.ServerName(),
		LocalConnections:    h.manager.ConnectionCount(),
	}
	if err := h.WriteRESTResponse(w, http.StatusOK, resp, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form status response")
	}
}

// StatusHandler wraps Status for router registration.
func (h APIRestStatusHandler) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Status(w, r)
	}
}

// Alive always reports success once the process has an HTTP handler installed.
func (h APIRestStatusHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler wraps Alive for router registration.
func (h APIRestStatusHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// Ready reports success once this server has a manager to report on.
func (h APIRestStatusHandler) Ready(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	respCode := http.StatusOK
	respBody := interface{}(h.GetStdRESTSuccessMsg(r.Context()))
	if h.manager == nil {
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, "not ready", "no manager bound")
	}
	if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// ReadyHandler wraps Ready for router registration.
func (h APIRestStatusHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
