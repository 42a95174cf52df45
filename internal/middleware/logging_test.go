package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeStatusRecorder はRecordHTTPStatusの呼び出しを記録する。
type fakeStatusRecorder struct {
	mu       sync.Mutex
	statuses []int
}

func (f *fakeStatusRecorder) RecordHTTPStatus(statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusCode)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newTestLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %q, want %q", entry["msg"], "http_request")
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %q, want %q", entry["method"], "GET")
	}
	if entry["path"] != "/home" {
		t.Errorf("path = %q, want %q", entry["path"], "/home")
	}
	if status, ok := entry["status"].(float64); !ok || status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
}

// TestLoggingMiddleware_IncludesRequestIDAndViewer はリクエストIDと閲覧者がログに含まれることを検証する。
func TestLoggingMiddleware_IncludesRequestIDAndViewer(t *testing.T) {
	var buf bytes.Buffer
	viewer := testViewer(t)

	handler := NewRequestIDMiddleware()(NewViewerMiddleware()(NewLoggingMiddleware(newTestLogger(&buf), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)))

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	req.AddCookie(&http.Cookie{Name: ViewerCookieName, Value: viewer.String()})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "req-123")
	}
	if entry["viewer"] != viewer.String() {
		t.Errorf("viewer = %v, want %q", entry["viewer"], viewer.String())
	}
}

// TestLoggingMiddleware_AnonymousViewer_OmitsField は閲覧者がいない場合にviewerフィールドを出力しないことを検証する。
func TestLoggingMiddleware_AnonymousViewer_OmitsField(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newTestLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entry := decodeLogEntry(t, &buf)
	if _, ok := entry["viewer"]; ok {
		t.Error("viewer field should be omitted for anonymous requests")
	}
}

// TestLoggingMiddleware_LevelByStatus はステータスコードに応じてログレベルが変わることを検証する。
func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusMovedPermanently, "INFO"},
		{http.StatusForbidden, "WARN"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			recorder := &fakeStatusRecorder{}
			handler := NewLoggingMiddleware(newTestLogger(&buf), recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entry := decodeLogEntry(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %q", entry["level"], tt.level)
			}
			if len(recorder.statuses) != 1 || recorder.statuses[0] != tt.status {
				t.Errorf("recorded statuses = %v, want [%d]", recorder.statuses, tt.status)
			}
		})
	}
}

// TestLoggingMiddleware_BodyWriteCapture はWriteHeaderなしでWriteした場合に200が記録されることを検証する。
func TestLoggingMiddleware_BodyWriteCapture(t *testing.T) {
	var buf bytes.Buffer
	recorder := &fakeStatusRecorder{}
	handler := NewLoggingMiddleware(newTestLogger(&buf), recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusOK {
		t.Errorf("recorded statuses = %v, want [200]", recorder.statuses)
	}
}
