package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mylog "github.com/mohammed-shakir/h3-raster-store/internal/logger"
)

func TestLogging_SetsRequestIDAndLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	zl := mylog.Build(mylog.Config{Level: "debug"}, &buf)
	l := mylog.NewSlog(&zl)

	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rasters/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id not echoed")
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"abc"`) || !strings.Contains(out, `"status":418`) {
		t.Fatalf("log line missing fields:\n%s", out)
	}
}

func TestRecover_Returns500(t *testing.T) {
	zl := mylog.Build(mylog.Config{}, &bytes.Buffer{})
	h := Recover(mylog.NewSlog(&zl))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}
