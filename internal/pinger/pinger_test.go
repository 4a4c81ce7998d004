package pinger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPingDecodesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"name":"Cytophage","tick":42,"population":7,"clans":2,"running":true,"speed":1}`))
	}))
	defer ts.Close()

	st, err := New(ts.URL).Ping(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if st.Tick != 42 || st.Population != 7 || st.Clans != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestCheckCountsFailures(t *testing.T) {
	var fail atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"tick":1}`))
	}))
	defer ts.Close()

	p := New(ts.URL)
	fail.Store(true)
	p.Check(t.Context())
	p.Check(t.Context())
	if p.Failures() != 2 {
		t.Fatalf("failures = %d, want 2", p.Failures())
	}
	fail.Store(false)
	p.Check(t.Context())
	if p.Failures() != 0 {
		t.Errorf("failures after success = %d, want 0", p.Failures())
	}
}

func TestWaitForAPIRespectsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if err := New(ts.URL).WaitForAPI(ctx, time.Minute); err == nil {
		t.Fatal("expected an error from a server that never becomes ready")
	}
}
