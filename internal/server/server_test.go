package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	h3mapper "github.com/mohammed-shakir/h3-raster-store/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-raster-store/internal/store/keys"
	"github.com/mohammed-shakir/h3-raster-store/internal/store/redisstore"
)

func newTestServer(t *testing.T) (*httptest.Server, *miniredis.Miniredis) {
	t.Helper()
	return newTestServerWith(t, Deps{})
}

func newTestServerWith(t *testing.T, d Deps) (*httptest.Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	d.Store = rc
	d.Mapper = h3mapper.New(nil)
	d.H3Res = 5
	d.OpTimeout = 200 * time.Millisecond
	s := New(d)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts, mr
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = res.Body.Close() }()
	out := map[string]any{}
	if res.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return res, out
}

func TestCreate_PersistedAndDescribe(t *testing.T) {
	ts, _ := newTestServer(t)

	res, body := do(t, http.MethodPost, ts.URL+"/rasters",
		`{"id":"dem","format":"integer","bands":2,"rows":3,"columns":4,"resolutions":[8,12]}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d body=%v", res.StatusCode, body)
	}
	if body["storage"] != "redis" || body["kind"] != "proxy" {
		t.Fatalf("unexpected create body: %v", body)
	}

	res, body = do(t, http.MethodGet, ts.URL+"/rasters/dem", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("describe status=%d", res.StatusCode)
	}
	if body["rows"].(float64) != 3 || body["columns"].(float64) != 4 || body["bands"].(float64) != 2 {
		t.Fatalf("unexpected geometry: %v", body)
	}

	res, _ = do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"dem","bands":1,"rows":1,"columns":1}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status=%d want 409", res.StatusCode)
	}
}

func TestCreate_InMemorySelectsKind(t *testing.T) {
	ts, _ := newTestServer(t)

	res, body := do(t, http.MethodPost, ts.URL+"/rasters",
		`{"id":"f","storage":"memory","format":"floating","bands":1,"rows":2,"columns":2,"resolutions":[64]}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%v", res.StatusCode, body)
	}
	if body["kind"] != "float64" {
		t.Fatalf("kind=%v want float64", body["kind"])
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := []string{
		`{"bands":0,"rows":1,"columns":1}`,
		`{"bands":1,"rows":-1,"columns":1}`,
		`{"bands":2,"rows":1,"columns":1,"resolutions":[8]}`,
		`{"bands":1,"rows":1,"columns":1,"resolutions":[65]}`,
		`{"format":"complex","bands":1,"rows":1,"columns":1}`,
		`{"storage":"disk","bands":1,"rows":1,"columns":1}`,
		`{"storage":"memory","bands":1,"rows":1,"columns":1,"resolutions":[0]}`,
		`not json`,
	}
	for _, c := range cases {
		res, body := do(t, http.MethodPost, ts.URL+"/rasters", c)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400 (%v)", c, res.StatusCode, body)
		}
	}
}

func TestCells_WriteReadPersisted(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"r","bands":1,"rows":2,"columns":2,"resolutions":[8]}`)

	res, body := do(t, http.MethodPut, ts.URL+"/rasters/r/bands/0/cells/1/1", `{"value":300}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put status=%d body=%v", res.StatusCode, body)
	}
	_, body = do(t, http.MethodGet, ts.URL+"/rasters/r/bands/0/cells/1/1", "")
	// 300 truncated to int8 storage
	if body["value"].(float64) != 44 {
		t.Fatalf("value=%v want 44", body["value"])
	}

	res, _ = do(t, http.MethodGet, ts.URL+"/rasters/r/bands/0/cells/2/0", "")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range status=%d want 400", res.StatusCode)
	}
	res, _ = do(t, http.MethodPut, ts.URL+"/rasters/r/bands/0/cells/0/0", `{"value":1.5}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("fractional integer value status=%d want 400", res.StatusCode)
	}
}

func TestCells_FloatingInMemory(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters",
		`{"id":"f","storage":"memory","format":"floating","bands":1,"rows":1,"columns":1}`)

	do(t, http.MethodPut, ts.URL+"/rasters/f/bands/0/cells/0/0", `{"value":2.5}`)
	_, body := do(t, http.MethodGet, ts.URL+"/rasters/f/bands/0/cells/0/0", "")
	if body["value"].(float64) != 2.5 {
		t.Fatalf("value=%v want 2.5", body["value"])
	}
}

func TestMaskAndClone(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"src","bands":1,"rows":4,"columns":4}`)
	do(t, http.MethodPut, ts.URL+"/rasters/src/bands/0/cells/2/3", `{"value":7}`)

	res, mask := do(t, http.MethodPost, ts.URL+"/rasters/src/masks", `{"row":1,"column":2,"rows":2,"columns":2}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mask status=%d body=%v", res.StatusCode, mask)
	}
	maskID := mask["id"].(string)
	if !strings.HasPrefix(maskID, "m-") || mask["kind"] != "mask" {
		t.Fatalf("unexpected mask body: %v", mask)
	}
	_, body := do(t, http.MethodGet, ts.URL+"/rasters/"+maskID+"/bands/0/cells/1/1", "")
	if body["value"].(float64) != 7 {
		t.Fatalf("mask value=%v want 7", body["value"])
	}

	res, _ = do(t, http.MethodPost, ts.URL+"/rasters/src/masks", `{"row":3,"column":3,"rows":2,"columns":2}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("overflowing mask status=%d want 400", res.StatusCode)
	}

	res, clone := do(t, http.MethodPost, ts.URL+"/rasters/src/clone", "")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("clone status=%d body=%v", res.StatusCode, clone)
	}
	if clone["storage"] != "memory" || clone["kind"] != "int16" {
		t.Fatalf("unexpected clone body: %v", clone)
	}
	cloneID := clone["id"].(string)
	do(t, http.MethodPut, ts.URL+"/rasters/"+cloneID+"/bands/0/cells/2/3", `{"value":9}`)
	_, body = do(t, http.MethodGet, ts.URL+"/rasters/src/bands/0/cells/2/3", "")
	if body["value"].(float64) != 7 {
		t.Fatalf("clone write leaked into source: %v", body["value"])
	}
}

func TestDelete(t *testing.T) {
	ts, mr := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"gone","bands":1,"rows":1,"columns":1}`)

	res, _ := do(t, http.MethodDelete, ts.URL+"/rasters/gone", "")
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", res.StatusCode)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("keys left after delete: %v", mr.Keys())
	}
	res, _ = do(t, http.MethodGet, ts.URL+"/rasters/gone", "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("describe after delete status=%d want 404", res.StatusCode)
	}
	res, _ = do(t, http.MethodDelete, ts.URL+"/rasters/gone", "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status=%d want 404", res.StatusCode)
	}
}

func TestDelete_DropsMasksOverSource(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"base","bands":1,"rows":4,"columns":4}`)
	_, mask := do(t, http.MethodPost, ts.URL+"/rasters/base/masks", `{"row":0,"column":0,"rows":2,"columns":2}`)
	maskID := mask["id"].(string)

	res, _ := do(t, http.MethodDelete, ts.URL+"/rasters/base", "")
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", res.StatusCode)
	}
	res, _ = do(t, http.MethodGet, ts.URL+"/rasters/"+maskID, "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("mask after source delete status=%d want 404", res.StatusCode)
	}
}

func TestH3Cell(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"g","bands":1,"rows":2,"columns":2}`)

	res, body := do(t, http.MethodGet, ts.URL+"/rasters/g/cells/1/1/h3", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%v", res.StatusCode, body)
	}
	if body["res"].(float64) != 5 || body["cell"].(string) == "" {
		t.Fatalf("unexpected body: %v", body)
	}

	res, _ = do(t, http.MethodGet, ts.URL+"/rasters/g/cells/0/0/h3?res=16", "")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad res status=%d want 400", res.StatusCode)
	}
}

func TestStoreFailure_ReportsBadGateway(t *testing.T) {
	ts, mr := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"x","bands":1,"rows":1,"columns":1}`)

	mr.SetError("ERR store unavailable")
	res, _ := do(t, http.MethodPut, ts.URL+"/rasters/x/bands/0/cells/0/0", `{"value":1}`)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", res.StatusCode)
	}
	res, _ = do(t, http.MethodGet, ts.URL+"/readyz", "")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d want 503", res.StatusCode)
	}

	mr.SetError("")
	res, _ = do(t, http.MethodPut, ts.URL+"/rasters/x/bands/0/cells/0/0", `{"value":1}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status after recovery=%d want 200", res.StatusCode)
	}
}

func TestCoverage_MaskIsSubsetOfSource(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"cov","bands":1,"rows":4,"columns":4}`)
	_, mask := do(t, http.MethodPost, ts.URL+"/rasters/cov/masks", `{"row":1,"column":1,"rows":1,"columns":1}`)

	res, src := do(t, http.MethodGet, ts.URL+"/rasters/cov/h3?res=3", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%v", res.StatusCode, src)
	}
	srcCells := map[string]bool{}
	for _, c := range src["cells"].([]any) {
		srcCells[c.(string)] = true
	}
	if len(srcCells) == 0 {
		t.Fatalf("source coverage is empty")
	}

	_, sub := do(t, http.MethodGet, ts.URL+"/rasters/"+mask["id"].(string)+"/h3?res=3", "")
	for _, c := range sub["cells"].([]any) {
		if !srcCells[c.(string)] {
			t.Fatalf("mask cell %v not in source coverage %v", c, src["cells"])
		}
	}
}

func TestCreate_SampleLimit(t *testing.T) {
	ts, mr := newTestServerWith(t, Deps{MaxCells: 100})

	for _, storage := range []string{"memory", "redis"} {
		res, body := do(t, http.MethodPost, ts.URL+"/rasters",
			`{"storage":"`+storage+`","bands":2,"rows":10,"columns":10}`)
		if res.StatusCode != http.StatusRequestEntityTooLarge {
			t.Fatalf("%s: status=%d want 413 (%v)", storage, res.StatusCode, body)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("rejected raster was persisted: %v", mr.Keys())
	}

	res, _ := do(t, http.MethodPost, ts.URL+"/rasters",
		`{"storage":"memory","bands":1,"rows":4294967296,"columns":4294967296}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("overflowing geometry status=%d want 400", res.StatusCode)
	}
}

func TestClone_RespectsSampleLimit(t *testing.T) {
	ts, mr := newTestServerWith(t, Deps{MaxCells: 100})

	// header persisted by an instance running with a larger limit
	if err := mr.Set(keys.Header("big"), `{"id":"big","format":"integer","bands":1,"rows":20,"columns":20,"resolutions":[16]}`); err != nil {
		t.Fatalf("seed header: %v", err)
	}
	if res, body := do(t, http.MethodGet, ts.URL+"/rasters/big", ""); res.StatusCode != http.StatusOK {
		t.Fatalf("describe big: %d %v", res.StatusCode, body)
	}
	res, _ := do(t, http.MethodPost, ts.URL+"/rasters/big/clone", "")
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("clone over the limit status=%d want 413", res.StatusCode)
	}

	do(t, http.MethodPost, ts.URL+"/rasters", `{"id":"ok","bands":1,"rows":10,"columns":10}`)
	if res, _ := do(t, http.MethodPost, ts.URL+"/rasters/ok/clone", ""); res.StatusCode != http.StatusCreated {
		t.Fatalf("clone at the limit status=%d want 201", res.StatusCode)
	}
}
