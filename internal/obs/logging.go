package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger. format "console" (or "text") gives
// human readable output for the terminal and the receipt tool; anything else
// is JSON. Unknown levels fall back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(logOutput(format, os.Stdout)).With().Timestamp().Logger()
}

func logOutput(format string, w io.Writer) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return w
	}
}

// RequestLogger writes one access log line per request and hands handlers a
// request-scoped logger through zerolog.Ctx.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		scoped := l.Logger.With().Str("request_id", reqID).Logger()
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			scoped = scoped.With().Str("trace_id", sc.TraceID().String()).Logger()
		}

		r, annotation := withCheckout(r.WithContext(scoped.WithContext(r.Context())))
		recorder := NewStatusRecorder(w)
		next.ServeHTTP(recorder, r)

		evt := scoped.Info()
		if recorder.Status() >= http.StatusInternalServerError {
			evt = scoped.Error()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Int("status", recorder.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", recorder.BytesWritten())
		if outcome, lines := annotation.read(); outcome != "" {
			evt = evt.Str("outcome", outcome).Int("cart_lines", lines)
		}
		if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
			evt = evt.Str("idempotency_key", key)
		}
		if r.RemoteAddr != "" {
			evt = evt.Str("remote_addr", r.RemoteAddr)
		}
		evt.Msg("http_request")
	})
}
