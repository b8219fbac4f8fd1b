package enrichment

import (
	"errors"

	"github.com/shzded/MediCall-AI/internal/openai"
)

var (
	// ErrServiceUnconfigured means transcription or analysis has no credentials. It is
	// terminal for the task and never retried.
	ErrServiceUnconfigured = openai.ErrServiceUnconfigured
	// ErrValidation means the analysis result was not a JSON object with every required key.
	ErrValidation = errors.New("enrichment: invalid analysis result")
	// ErrNoRecording is the failure recorded for calls that arrived without audio.
	ErrNoRecording = errors.New("no recording")
	// ErrProviderBusy means the shared provider concurrency cap was exhausted. A task that
	// ends on it leaves the record pending.
	ErrProviderBusy = errors.New("enrichment: provider concurrency cap reached")
	// ErrEmptyTranscript means transcription produced no text, as for silent recordings.
	ErrEmptyTranscript = errors.New("enrichment: empty transcript")

	ErrQueueFull         = errors.New("enrichment: queue full")
	ErrDispatcherStopped = errors.New("enrichment: dispatcher not running")
	ErrAlreadyQueued     = errors.New("enrichment: task already queued")
	ErrNotEligible       = errors.New("enrichment: call needs no enrichment")
)

// transienter is implemented by collaborator errors that know whether a retry can help,
// such as HTTP status errors from the recording host or the analysis API.
type transienter interface {
	Transient() bool
}

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	if errors.Is(err, ErrServiceUnconfigured) || errors.Is(err, ErrValidation) || errors.Is(err, ErrEmptyTranscript) {
		return true
	}
	var t transienter
	if errors.As(err, &t) {
		return !t.Transient()
	}
	return false
}
