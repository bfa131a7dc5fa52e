package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"thumbnail-engine/internal/metrics"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected recorder status 404, got %d", w.Code)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	data := []byte("test data")
	n, err := rw.Write(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if rw.bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytesWritten to be %d, got %d", len(data), rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected wroteHeader to be true after Write")
	}
}

func TestWrappersFlush(t *testing.T) {
	w := httptest.NewRecorder()

	newResponseWriter(w).Flush()
	if !w.Flushed {
		t.Error("Expected logging writer to flush the underlying writer")
	}

	w = httptest.NewRecorder()
	newMetricsResponseWriter(w).Flush()
	if !w.Flushed {
		t.Error("Expected metrics writer to flush the underlying writer")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "/api/thumbnail", "/api/thumbnail"},
		{"newline", "a\nb", "a b"},
		{"carriage return", "a\r\nb", "a  b"},
		{"null byte", "a\x00b", "ab"},
		{"ansi escape", "\x1b[31mred", "[31mred"},
		{"tab kept", "a\tb", "a\tb"},
		{"bell stripped", "a\x07b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.input); got != tt.want {
				t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"default skips metrics", "/metrics", DefaultLoggingConfig(), true},
		{"default skips health", "/healthz", DefaultLoggingConfig(), true},
		{"default logs api", "/api/thumbnails/request", DefaultLoggingConfig(), false},
		{"health logged when enabled", "/readyz", LoggingConfig{LogHealthChecks: true}, false},
		{"custom prefix", "/api/cache/stats", LoggingConfig{SkipPaths: []string{"/api/cache"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.10:54321", nil, "192.168.1.10"},
		{"forwarded list", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"forwarded single", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.6 "}, "203.0.113.6"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("curl/8.0"); got != "curl/8.0" {
		t.Errorf("Expected unquoted field, got %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 (X11) "x"`); got != `"Mozilla/5.0 (X11) ""x"""` {
		t.Errorf("Unexpected escaped field %q", got)
	}
}

func TestFormatLine(t *testing.T) {
	l := NewW3CLogger(DefaultLoggingConfig())
	l.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=%2Fa%0Ab.jpg&size=128", http.NoBody)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Header.Set("User-Agent", "test agent")

	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("12345"))

	line := l.formatLine(req, rw, 12*time.Millisecond)
	want := `2026-03-04 05:06:07 127.0.0.1 GET /api/thumbnail path=%2Fa%0Ab.jpg&size=128 200 5 12 "test agent" -`
	if line != want {
		t.Errorf("formatLine() =\n%s\nwant\n%s", line, want)
	}
	if strings.Contains(line, "\n") {
		t.Error("Log line must not contain newlines")
	}
}

func TestW3CHeader(t *testing.T) {
	h := NewW3CLogger(DefaultLoggingConfig()).Header()
	if !strings.HasPrefix(h, "#Software: ThumbnailEngine/1.0\n#Fields: date time") {
		t.Errorf("Unexpected header %q", h)
	}
}

func TestLoggerMiddlewarePassesThrough(t *testing.T) {
	paths := []string{"/api/thumbnails/status", "/healthz", "/api/thumbnail", "/metrics"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("ok"))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))

			if w.Code != http.StatusTeapot {
				t.Errorf("Expected status 418, got %d", w.Code)
			}
			if w.Body.String() != "ok" {
				t.Errorf("Expected body 'ok', got %q", w.Body.String())
			}
		})
	}
}

func newMetricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/cache/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/thumbnails/events", func(w http.ResponseWriter, _ *http.Request) {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	r := newMetricsRouter()
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/cache/stats", "200")
	before := testutil.ToFloat64(counter)

	for range 3 {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cache/stats", http.NoBody))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("Expected 3 recorded requests, got %v", got)
	}
}

func TestMetricsSkipsProbes(t *testing.T) {
	r := newMetricsRouter()
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if got := testutil.ToFloat64(counter) - before; got != 0 {
		t.Errorf("Expected probes to be skipped, recorded %v", got)
	}
}

func TestMetricsEventStreamFlushes(t *testing.T) {
	r := newMetricsRouter()
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/thumbnails/events", http.NoBody))

	if !w.Flushed {
		t.Error("Expected event stream handler to see a Flusher")
	}
}

func TestRouteLabelUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/no/such/route", http.NoBody)
	if got := routeLabel(req); got != unmatchedRoute {
		t.Errorf("routeLabel() = %q, want %q", got, unmatchedRoute)
	}
}
