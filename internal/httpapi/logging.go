package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Disabled until SetLogger is called.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// loggingLineWriter logs complete NDJSON lines at debug level.
type loggingLineWriter struct {
	buf   []byte
	model string
	reqID string
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := lw.buf[:idx]; len(line) > 0 {
			zlog.Debug().Str("model", lw.model).Str("request_id", lw.reqID).RawJSON("record", line).Msg("stream")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("OLLAMAD_REQUEST_LOG"))

// SetDefaultLogLevel overrides the request log level used when a request carries none.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// reqLog carries the per-request logging decision through a handler.
type reqLog struct {
	lvl   LogLevel
	path  string
	model string
	reqID string
}

func newReqLog(r *http.Request, model string) reqLog {
	return reqLog{
		lvl:   requestLogLevel(r),
		path:  r.URL.Path,
		model: model,
		reqID: middleware.GetReqID(r.Context()),
	}
}

func (l reqLog) start() {
	if l.lvl < LevelInfo {
		return
	}
	zlog.Info().Str("path", l.path).Str("model", l.model).Str("request_id", l.reqID).Msg("request start")
}

func (l reqLog) end(status int, took time.Duration, err error) {
	if l.lvl < LevelError || (err == nil && l.lvl < LevelInfo) {
		return
	}
	ev := zlog.Info()
	if err != nil {
		ev = zlog.Error().Err(err)
	}
	ev.Str("path", l.path).Str("model", l.model).Str("request_id", l.reqID).
		Int("status", status).Dur("dur", took).Msg("request end")
}
