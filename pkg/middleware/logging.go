// Package middleware holds HTTP middleware for the MCP transport.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/logging"
)

// MCPRequestLogger returns middleware that logs each MCP HTTP request at
// DEBUG level. For tools/call it also logs the tool name, the sanitized
// sql/code argument and whether the tool reported an error.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var call rpcRequest
			if r.Body != nil {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					logger.Error("Failed to read MCP request body", zap.Error(err))
					http.Error(w, "unreadable body", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				_ = json.Unmarshal(body, &call)
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			}
			if call.Method != "" {
				fields = append(fields, zap.String("rpc_method", call.Method))
			}
			if call.Params.Name != "" {
				fields = append(fields, zap.String("tool", call.Params.Name))
				if arg := call.Params.Arguments.primary(); arg != "" {
					fields = append(fields, zap.String("argument", logging.SanitizeQuery(arg)))
				}
				fields = append(fields, zap.Bool("tool_error", toolFailed(rec.body.Bytes())))
			}
			logger.Debug("MCP request", fields...)
		})
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string        `json:"name"`
		Arguments toolArguments `json:"arguments"`
	} `json:"params"`
}

type toolArguments struct {
	SQL   string `json:"sql"`
	Code  string `json:"code"`
	Table string `json:"table"`
}

func (a toolArguments) primary() string {
	switch {
	case a.SQL != "":
		return a.SQL
	case a.Code != "":
		return a.Code
	}
	return a.Table
}

// toolFailed reports whether a JSON-RPC response body carries an RPC error
// or a tool result flagged isError. Bodies that are not plain JSON (SSE
// frames) report false.
func toolFailed(body []byte) bool {
	var resp struct {
		Error  *json.RawMessage `json:"error"`
		Result struct {
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return resp.Error != nil || resp.Result.IsError
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Flush keeps streaming responses working through the recorder.
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
