package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/logging"
)

// MCPToolLogger returns middleware that logs MCP tools/call traffic: the
// tool name, sanitized arguments, and whether the call failed either at the
// JSON-RPC level or as a tool error result. Other JSON-RPC methods pass
// through unlogged. A nil logger disables logging.
func MCPToolLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var call toolCallRequest
			if err := json.Unmarshal(bodyBytes, &call); err != nil || call.Method != "tools/call" {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("MCP tool call",
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", sanitizeArguments(call.Params.Arguments)),
			)

			recorder := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var resp toolCallResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &resp); err != nil {
				// Streamed (SSE) replies are not JSON; the call itself is already logged.
				return
			}

			switch {
			case resp.Error != nil:
				logger.Warn("MCP tool call failed",
					zap.String("tool", call.Params.Name),
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message),
					zap.Duration("duration", duration),
				)
			case resp.Result != nil && resp.Result.IsError:
				logger.Info("MCP tool returned error result",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP tool call completed",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type toolCallRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type toolCallResponse struct {
	Result *struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// bodyRecorder tees the response body so it can be inspected after the
// handler returns.
type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts secret-looking keys, shortens SQL arguments and
// truncates any other long string.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		if isSecretKey(lowerKey) {
			result[k] = logging.RedactedText
			continue
		}

		str, ok := v.(string)
		switch {
		case !ok:
			result[k] = v
		case strings.Contains(lowerKey, "sql"):
			result[k] = logging.SanitizeQuery(str)
		default:
			result[k] = logging.SanitizePrompt(str)
		}
	}
	return result
}

func isSecretKey(lowerKey string) bool {
	for _, keyword := range []string{"password", "secret", "token", "api_key", "apikey", "credential"} {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
