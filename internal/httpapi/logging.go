package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the HTTP layer logger. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs the HTTP layer logger.
func SetLogger(l zerolog.Logger) { zlog = l }

// parseLevel accepts zerolog level names plus "off" and "1" (debug).
func parseLevel(s string) (zerolog.Level, bool) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return zerolog.NoLevel, false
	case "1":
		return zerolog.DebugLevel, true
	case "off":
		return zerolog.Disabled, true
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

// requestLogger returns zlog tagged with the request id. ?log= or the
// X-Log-Level header override the level for this request only.
func requestLogger(r *http.Request) zerolog.Logger {
	l := zlog
	v := r.URL.Query().Get("log")
	if v == "" {
		v = r.Header.Get("X-Log-Level")
	}
	if lvl, ok := parseLevel(v); ok {
		l = l.Level(lvl)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.With().Str("request_id", rid).Logger()
	}
	return l
}

// logEnd writes the completion line: debug on success, info for client
// errors, error for server errors.
func logEnd(r *http.Request, op string, status int, start time.Time, err error) {
	l := requestLogger(r)
	ev := l.Debug()
	switch {
	case status >= http.StatusInternalServerError:
		ev = l.Error()
	case status >= http.StatusBadRequest:
		ev = l.Info()
	}
	ev.Err(err).Str("op", op).Int("status", status).Dur("dur", time.Since(start)).Msg("request end")
}
