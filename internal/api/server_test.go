package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
	"github.com/vulcan-sentinel/sentinel-core/internal/status"
)

type fakeLine struct {
	snap        status.Snapshot
	abortErr    error
	abortedWith string
	reloadErr   error
	reloadedCfg logic.Config
}

func (f *fakeLine) Status() status.Snapshot { return f.snap }

func (f *fakeLine) AbortRun(reason string) error {
	f.abortedWith = reason
	return f.abortErr
}

func (f *fakeLine) ReloadConfig(cfg logic.Config) error {
	f.reloadedCfg = cfg
	return f.reloadErr
}

func newTestServer(lines map[string]LineController) *Server {
	return New(":0", lines)
}

func testSnapshot(lineID string) status.Snapshot {
	tr := status.NewTracker(lineID, time.Now(), status.Config{Broker: "tcp://x:1883"})
	tr.UpdateZone(logic.ZonePreheat, status.ZoneStatus{Stage: logic.StageRamp, ActiveSetpoint: 300, LastValid: true})
	return tr.Snapshot()
}

func TestHandleStatusOK(t *testing.T) {
	line := &fakeLine{snap: testSnapshot("line-1")}
	s := newTestServer(map[string]LineController{"line-1": line})

	req := httptest.NewRequest(http.MethodGet, "/lines/line-1/status", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got status.StatusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status.LineID != "line-1" {
		t.Errorf("LineID: got %q", got.Status.LineID)
	}
}

func TestHandleStatusUnknownLine(t *testing.T) {
	s := newTestServer(map[string]LineController{})

	req := httptest.NewRequest(http.MethodGet, "/lines/missing/status", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestHandleAbort(t *testing.T) {
	line := &fakeLine{snap: testSnapshot("line-1")}
	s := newTestServer(map[string]LineController{"line-1": line})

	body := strings.NewReader(`{"reason":"operator request"}`)
	req := httptest.NewRequest(http.MethodPost, "/lines/line-1/abort", body)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}
	if line.abortedWith != "operator request" {
		t.Errorf("abortedWith: got %q", line.abortedWith)
	}
}

func TestHandleAbortConflict(t *testing.T) {
	line := &fakeLine{snap: testSnapshot("line-1"), abortErr: errNoRun}
	s := newTestServer(map[string]LineController{"line-1": line})

	req := httptest.NewRequest(http.MethodPost, "/lines/line-1/abort", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
}

func TestHandleReload(t *testing.T) {
	line := &fakeLine{snap: testSnapshot("line-1")}
	s := newTestServer(map[string]LineController{"line-1": line})

	cfg := logic.DefaultConfig()
	body, _ := json.Marshal(cfg)
	req := httptest.NewRequest(http.MethodPost, "/lines/line-1/reload", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}
	if line.reloadedCfg.TolF != cfg.TolF {
		t.Errorf("reloadedCfg mismatch: got %+v", line.reloadedCfg)
	}
}

func TestHandleReloadBadBody(t *testing.T) {
	line := &fakeLine{snap: testSnapshot("line-1")}
	s := newTestServer(map[string]LineController{"line-1": line})

	req := httptest.NewRequest(http.MethodPost, "/lines/line-1/reload", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestHandleIndexJSON(t *testing.T) {
	s := newTestServer(map[string]LineController{
		"line-1": &fakeLine{snap: testSnapshot("line-1")},
		"line-2": &fakeLine{snap: testSnapshot("line-2")},
	})

	req := httptest.NewRequest(http.MethodGet, "/index.json", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 line entries, got %d", len(got))
	}
}

func TestHandleIndexHTML(t *testing.T) {
	s := newTestServer(map[string]LineController{"line-1": &fakeLine{snap: testSnapshot("line-1")}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "line-1") {
		t.Error("expected dashboard body to mention line-1")
	}
}

var errNoRun = &noRunErr{}

type noRunErr struct{}

func (e *noRunErr) Error() string { return "no run open" }
