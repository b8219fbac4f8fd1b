package stats

import (
	"errors"

	"github.com/shzded/MediCall-AI/internal/calls"
)

var ErrInvalidRequest = errors.New("stats: invalid request")

// Summary is the dashboard headline block.
type Summary struct {
	TodayCount           int            `json:"today_calls"`
	UrgentTodayCount     int            `json:"urgent_calls"`
	AvgDurationToday     calls.Duration `json:"avg_duration"`
	MonthCount           int            `json:"month_calls"`
	YesterdayCount       int            `json:"yesterday_calls"`
	UnhandledUrgentCount int            `json:"unhandled_urgent"`
	AvgDurationYesterday calls.Duration `json:"avg_duration_yesterday"`
	UrgentPercentage     float64        `json:"urgent_percentage"`
}

// DailyCount is one histogram bucket. Date is the UTC calendar day as YYYY-MM-DD.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UrgencyShare is one urgency level's share of all calls.
type UrgencyShare struct {
	Urgency    calls.Urgency `json:"urgency"`
	Count      int           `json:"count"`
	Percentage float64       `json:"percentage"`
}

const (
	DefaultHistogramDays = 7
	MaxHistogramDays     = 366
	DefaultSymptomLimit  = 10
	MaxSymptomLimit      = 100
)
