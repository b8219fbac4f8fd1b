package enrichment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shzded/MediCall-AI/internal/calls"
)

// Analysis is a validated extraction for one transcript.
type Analysis struct {
	Name              string
	Summary           string
	Symptoms          []string
	Urgency           calls.Urgency
	CallbackRequested bool

	// UrgencyDefaulted is set when the model answered an urgency outside high, medium
	// and low and the call was filed as medium instead.
	UrgencyDefaulted bool
	RawUrgency       string
}

var requiredKeys = []string{"name", "summary", "symptoms", "urgency", "callback_requested"}

// ParseAnalysis validates the analysis service output. Anything that is not a JSON
// object carrying every required key with the right type is ErrValidation; nothing of a
// rejected result may be applied.
func ParseAnalysis(raw []byte) (Analysis, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &fields); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if fields == nil {
		return Analysis{}, fmt.Errorf("%w: not an object", ErrValidation)
	}
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			return Analysis{}, fmt.Errorf("%w: missing %q", ErrValidation, k)
		}
	}

	var (
		out     Analysis
		name    *string
		urgency string
	)
	if err := json.Unmarshal(fields["name"], &name); err != nil {
		return Analysis{}, fmt.Errorf("%w: name: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(fields["summary"], &out.Summary); err != nil {
		return Analysis{}, fmt.Errorf("%w: summary: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(fields["symptoms"], &out.Symptoms); err != nil {
		return Analysis{}, fmt.Errorf("%w: symptoms: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(fields["urgency"], &urgency); err != nil {
		return Analysis{}, fmt.Errorf("%w: urgency: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(fields["callback_requested"], &out.CallbackRequested); err != nil {
		return Analysis{}, fmt.Errorf("%w: callback_requested: %v", ErrValidation, err)
	}

	out.Name = calls.UnknownCaller
	if name != nil && strings.TrimSpace(*name) != "" {
		out.Name = strings.TrimSpace(*name)
	}
	out.Summary = strings.TrimSpace(out.Summary)

	symptoms := make([]string, 0, len(out.Symptoms))
	for _, s := range out.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	out.Symptoms = symptoms

	out.RawUrgency = urgency
	u, err := calls.ParseUrgency(urgency)
	if err != nil {
		u = calls.UrgencyMedium
		out.UrgencyDefaulted = true
	}
	out.Urgency = u
	return out, nil
}

// Enrichment converts the analysis into the record update.
func (a Analysis) Enrichment(transcript string, attempts int) calls.Enrichment {
	return calls.Enrichment{
		Transcript:        transcript,
		CallerName:        a.Name,
		Summary:           a.Summary,
		Symptoms:          a.Symptoms,
		Urgency:           a.Urgency,
		CallbackRequested: a.CallbackRequested,
		Attempts:          attempts,
	}
}
