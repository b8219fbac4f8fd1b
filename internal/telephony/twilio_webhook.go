package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// TwilioInboundForm captures the voice webhook fields we log.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
	}, nil
}

// RecordingCompleteForm is the recordingStatusCallback payload.
type RecordingCompleteForm struct {
	CallSid           string
	RecordingSid      string
	RecordingURL      string
	RecordingStatus   string
	From              string
	RecordingDuration int
}

// ParseRecordingComplete reads the callback form. A missing or non-numeric
// RecordingDuration counts as zero seconds.
func ParseRecordingComplete(r *http.Request) (RecordingCompleteForm, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingCompleteForm{}, err
	}
	f := RecordingCompleteForm{
		CallSid:         strings.TrimSpace(r.PostFormValue("CallSid")),
		RecordingSid:    strings.TrimSpace(r.PostFormValue("RecordingSid")),
		RecordingURL:    strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingStatus: strings.TrimSpace(r.PostFormValue("RecordingStatus")),
		From:            normalizePhone(r.PostFormValue("From")),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("RecordingDuration"))); err == nil && n > 0 {
		f.RecordingDuration = n
	}
	return f, nil
}

func normalizePhone(s string) string {
	// Twilio sends "anonymous" or nothing for withheld numbers; keep as-is.
	return strings.TrimSpace(s)
}
