package reporting

import (
	"time"

	"github.com/shzded/MediCall-AI/internal/calls"
	"github.com/shzded/MediCall-AI/internal/stats"
)

// RecentCallsLimit is how many of the newest calls a report lists.
const RecentCallsLimit = 50

// Report is the data behind one export, captured at GeneratedAt.
type Report struct {
	GeneratedAt time.Time
	Summary     stats.Summary
	Daily       []stats.DailyCount
	Urgency     []stats.UrgencyShare
	Symptoms    []calls.SymptomCount
	Calls       []calls.CallRecord
}
