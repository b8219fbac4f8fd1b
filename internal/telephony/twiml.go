package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

const (
	GreetingDE = "Willkommen bei der Arztpraxis. Bitte schildern Sie nach dem Signalton Ihr Anliegen. Drücken Sie die Raute-Taste wenn Sie fertig sind."
	ClosingDE  = "Vielen Dank für Ihren Anruf. Wir melden uns bei Ihnen."

	SpeechLanguage     = "de-AT"
	MaxRecordingLength = 300
	FinishOnKey        = "#"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only the verbs the intake flow plays are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName                       xml.Name `xml:"Record"`
	MaxLength                     int      `xml:"maxLength,attr,omitempty"`
	FinishOnKey                   string   `xml:"finishOnKey,attr,omitempty"`
	RecordingStatusCallback       string   `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusCallbackMethod string   `xml:"recordingStatusCallbackMethod,attr,omitempty"`
}

// RenderVoiceGreeting greets the caller, records until '#' or the length limit and
// thanks them. Twilio posts the finished recording to callbackURL.
func RenderVoiceGreeting(callbackURL string) (string, error) {
	if strings.TrimSpace(callbackURL) == "" {
		return "", errors.New("telephony: recording callback url required")
	}
	r := twimlResponse{Verbs: []any{
		twimlSay{Language: SpeechLanguage, Text: GreetingDE},
		twimlRecord{
			MaxLength:                     MaxRecordingLength,
			FinishOnKey:                   FinishOnKey,
			RecordingStatusCallback:       callbackURL,
			RecordingStatusCallbackMethod: "POST",
		},
		twimlSay{Language: SpeechLanguage, Text: ClosingDE},
	}}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
