package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/internal/enrichment"
)

type fakeIntaker struct {
	got []enrichment.IntakeEvent
	err error
}

func (f *fakeIntaker) Intake(_ context.Context, ev enrichment.IntakeEvent) (int64, error) {
	f.got = append(f.got, ev)
	return 42, f.err
}

func newRouter(h TwilioWebhookHandler, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/twilio", mw...)
	g.POST("/voice", h.HandleVoice)
	g.POST("/recording-complete", h.HandleRecordingComplete)
	return r
}

func post(r http.Handler, path string, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVoice(t *testing.T) {
	r := newRouter(TwilioWebhookHandler{PublicBaseURL: "https://praxis.example/"})
	w := post(r, "/api/twilio/voice", url.Values{"CallSid": {"CA1"}}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), `recordingStatusCallback="https://praxis.example/api/twilio/recording-complete"`) {
		t.Fatalf("callback url missing: %s", w.Body.String())
	}
}

func TestHandleVoice_DerivesBaseURLFromRequest(t *testing.T) {
	r := newRouter(TwilioWebhookHandler{})
	w := post(r, "/api/twilio/voice", url.Values{}, map[string]string{"X-Forwarded-Proto": "https"})
	if !strings.Contains(w.Body.String(), "https://example.com/api/twilio/recording-complete") {
		t.Fatalf("unexpected callback: %s", w.Body.String())
	}
}

func TestHandleRecordingComplete(t *testing.T) {
	in := &fakeIntaker{}
	r := newRouter(TwilioWebhookHandler{Intake: in})
	w := post(r, "/api/twilio/recording-complete", url.Values{
		"CallSid":           {"CA1"},
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"From":              {"+436601234567"},
		"RecordingDuration": {"95"},
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Status string `json:"status"`
		CallID int64  `json:"call_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.CallID != 42 {
		t.Fatalf("unexpected body %+v", body)
	}
	want := enrichment.IntakeEvent{ExternalCallID: "CA1", From: "+436601234567", RecordingURL: "https://api.twilio.com/rec/RE1", DurationSeconds: 95}
	if len(in.got) != 1 || in.got[0] != want {
		t.Fatalf("unexpected intake %+v", in.got)
	}
}

func TestHandleRecordingComplete_IntakeError(t *testing.T) {
	r := newRouter(TwilioWebhookHandler{Intake: &fakeIntaker{err: errors.New("db down")}})
	w := post(r, "/api/twilio/recording-complete", url.Values{"CallSid": {"CA1"}}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestSignatureMiddleware(t *testing.T) {
	in := &fakeIntaker{}
	const token = "secret"
	const base = "https://praxis.example"
	r := newRouter(TwilioWebhookHandler{Intake: in}, SignatureMiddleware(token, base))

	form := url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"https://rec/1"}}
	sig := ComputeSignature(token, base+"/api/twilio/recording-complete", form)

	if w := post(r, "/api/twilio/recording-complete", form, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without signature, got %d", w.Code)
	}
	if w := post(r, "/api/twilio/recording-complete", form, map[string]string{HeaderTwilioSignature: "bogus"}); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bad signature, got %d", w.Code)
	}
	if w := post(r, "/api/twilio/recording-complete", form, map[string]string{HeaderTwilioSignature: sig}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid signature, got %d", w.Code)
	}
	if len(in.got) != 1 {
		t.Fatalf("expected exactly one intake, got %d", len(in.got))
	}
}

func TestComputeSignature_IgnoresParamOrderButBindsURL(t *testing.T) {
	a := url.Values{}
	a.Add("To", "+43122334455")
	a.Add("CallSid", "CA1")
	b := url.Values{"CallSid": {"CA1"}, "To": {"+43122334455"}}

	sa := ComputeSignature("tok", "https://praxis.example/api/twilio/voice", a)
	if sa != ComputeSignature("tok", "https://praxis.example/api/twilio/voice", b) {
		t.Fatalf("signature depends on insertion order")
	}
	if sa == ComputeSignature("tok", "https://other.example/api/twilio/voice", b) {
		t.Fatalf("signature does not bind the url")
	}
	if sa == ComputeSignature("other", "https://praxis.example/api/twilio/voice", b) {
		t.Fatalf("signature does not bind the token")
	}
	if !ValidSignature("tok", "https://praxis.example/api/twilio/voice", b, sa) || ValidSignature("tok", "https://praxis.example/api/twilio/voice", b, "") {
		t.Fatalf("unexpected validation result")
	}
}
