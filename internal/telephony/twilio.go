package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxRecordingBytes bounds a downloaded recording; 300 s of 8 kHz 16-bit mono WAV is
// under 5 MB.
const MaxRecordingBytes = 32 << 20

// TwilioProvider downloads call recordings from the Twilio REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	http       *http.Client
}

func NewTwilioProvider(accountSID, authToken string, timeout time.Duration) *TwilioProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		http:       &http.Client{Timeout: timeout},
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// RecordingError is a non-2xx answer when downloading a recording.
type RecordingError struct {
	URL  string
	Code int
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("telephony: fetch recording: status %d", e.Code)
}

// Transient reports whether a later download may succeed. Twilio answers 404 for a
// short while after the status callback, so 404 is retried too.
func (e *RecordingError) Transient() bool {
	return e.Code == http.StatusNotFound || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// FetchRecording downloads the WAV rendition of a recording. Credentials are sent when
// configured; the recording URL itself needs none if the account allows public media.
func (p *TwilioProvider) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	recordingURL = strings.TrimSpace(recordingURL)
	if recordingURL == "" {
		return nil, errors.New("telephony: empty recording url")
	}
	if !strings.HasSuffix(strings.ToLower(recordingURL), ".wav") {
		recordingURL += ".wav"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("telephony: fetch recording: %w", err)
	}
	if p.accountSID != "" && p.authToken != "" {
		req.SetBasicAuth(p.accountSID, p.authToken)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: fetch recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &RecordingError{URL: recordingURL, Code: resp.StatusCode}
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, MaxRecordingBytes+1))
	if err != nil {
		return nil, fmt.Errorf("telephony: read recording: %w", err)
	}
	if len(audio) > MaxRecordingBytes {
		return nil, fmt.Errorf("telephony: recording exceeds %d bytes", MaxRecordingBytes)
	}
	if len(audio) == 0 {
		return nil, errors.New("telephony: empty recording")
	}
	return audio, nil
}
