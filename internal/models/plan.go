package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Duration is the access period category of a plan.
type Duration string

const (
	DurationDaily      Duration = "daily"
	DurationWeekly     Duration = "weekly"
	DurationBiweekly   Duration = "biweekly"
	DurationMonthly    Duration = "monthly"
	DurationQuarterly  Duration = "quarterly"
	DurationSemiannual Duration = "semiannual"
	DurationAnnual     Duration = "annual"
	DurationPermanent  Duration = "permanent"
	DurationCustom     Duration = "custom"
)

type durationInfo struct {
	days  int
	label string
	key   string
}

var durations = map[Duration]durationInfo{
	DurationDaily:      {1, "Diário", "diário"},
	DurationWeekly:     {7, "Semanal", "semanal"},
	DurationBiweekly:   {15, "Quinzenal", "quinzenal"},
	DurationMonthly:    {30, "Mensal", "mensal"},
	DurationQuarterly:  {90, "Trimestral", "trimestral"},
	DurationSemiannual: {180, "Semestral", "semestral"},
	DurationAnnual:     {365, "Anual", "anual"},
	DurationPermanent:  {0, "Permanente", "permanente"},
}

// KnownDurations lists the fixed categories in ascending length.
var KnownDurations = []Duration{
	DurationDaily, DurationWeekly, DurationBiweekly, DurationMonthly,
	DurationQuarterly, DurationSemiannual, DurationAnnual, DurationPermanent,
}

// Label returns the Portuguese display label.
func (d Duration) Label() string {
	if info, ok := durations[d]; ok {
		return info.label
	}
	return "Personalizado"
}

// Key returns the lowercase Portuguese key used in plan input text.
func (d Duration) Key() string {
	return durations[d].key
}

// Days returns the fixed day count of a category; ok is false for permanent and custom.
func (d Duration) Days() (int, bool) {
	info, found := durations[d]
	if !found || info.days == 0 {
		return 0, false
	}
	return info.days, true
}

// DurationForDays maps a day count to its fixed category, or custom.
func DurationForDays(days int) Duration {
	for _, d := range KnownDurations {
		if n, ok := d.Days(); ok && n == days {
			return d
		}
	}
	return DurationCustom
}

// Plan is an immutable offer appended to a BotConfig.
type Plan struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Duration Duration        `json:"duration"`
	Days     int             `json:"days,omitempty"`
}

// ExpiresAt returns when access bought at from ends; ok is false for permanent plans.
func (p Plan) ExpiresAt(from time.Time) (time.Time, bool) {
	if p.Duration == DurationPermanent {
		return time.Time{}, false
	}
	days := p.Days
	if n, ok := p.Duration.Days(); ok {
		days = n
	}
	if days <= 0 {
		return time.Time{}, false
	}
	return from.AddDate(0, 0, days), true
}

// DurationLabel renders the plan length, including custom day counts.
func (p Plan) DurationLabel() string {
	if p.Duration == DurationCustom && p.Days > 0 {
		if p.Days == 1 {
			return "1 dia"
		}
		return strconv.Itoa(p.Days) + " dias"
	}
	return p.Duration.Label()
}
