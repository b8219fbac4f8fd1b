package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTwilioProvider_FetchRecording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Recordings/RE1.wav" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			t.Errorf("missing basic auth")
		}
		_, _ = w.Write([]byte("RIFF...."))
	}))
	defer srv.Close()

	audio, err := NewTwilioProvider("AC1", "tok", time.Second).FetchRecording(context.Background(), srv.URL+"/Recordings/RE1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(audio) != "RIFF...." {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestTwilioProvider_FetchRecordingStatusErrors(t *testing.T) {
	var code atomic.Int64
	code.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()
	p := NewTwilioProvider("", "", time.Second)

	_, err := p.FetchRecording(context.Background(), srv.URL+"/rec.wav")
	re, ok := err.(*RecordingError)
	if !ok || re.Code != http.StatusNotFound || !re.Transient() {
		t.Fatalf("expected transient 404, got %v", err)
	}

	code.Store(http.StatusForbidden)
	_, err = p.FetchRecording(context.Background(), srv.URL+"/rec.wav")
	re, ok = err.(*RecordingError)
	if !ok || re.Transient() {
		t.Fatalf("expected permanent 403, got %v", err)
	}
}
