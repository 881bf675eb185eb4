package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/models"
)

// Delivery promises come in a handful of grammars across two languages.
// Each grammar is one rule: a pattern plus an interpreter producing a date
// range relative to the reference date. Rules are ordered by priority;
// the first match in a text fragment wins.

const (
	monthEN   = `january|february|march|april|may|june|july|august|september|october|november|december`
	monthDE   = `januar|februar|märz|maerz|april|mai|juni|juli|august|september|oktober|november|dezember`
	weekdayEN = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	weekdayDE = `montag|dienstag|mittwoch|donnerstag|freitag|samstag|sonntag`
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,

	"januar": time.January, "februar": time.February, "märz": time.March,
	"maerz": time.March, "mai": time.May, "juni": time.June, "juli": time.July,
	"oktober": time.October, "dezember": time.December,
}

// dateRange is the raw output of a rule. Single dates have start == end;
// month-day ranges keep both bounds so the configured policy picks one.
type dateRange struct {
	start time.Time
	end   time.Time
}

type deliveryRule struct {
	name      string
	pattern   *regexp.Regexp
	interpret func(m []string, ref time.Time) (dateRange, bool)
}

var priorityChannelPattern = regexp.MustCompile(`(?i)\b(fastest|schnellste)\b`)

var deliveryRules = []deliveryRule{
	{
		name:    "same_day",
		pattern: regexp.MustCompile(`(?i)\b(?:today|heute)\b`),
		interpret: func(_ []string, ref time.Time) (dateRange, bool) {
			d := dateOnly(ref)
			return dateRange{start: d, end: d}, true
		},
	},
	{
		name:    "next_day",
		pattern: regexp.MustCompile(`(?i)\b(?:tomorrow|morgen|overnight)\b`),
		interpret: func(_ []string, ref time.Time) (dateRange, bool) {
			d := dateOnly(ref).AddDate(0, 0, 1)
			return dateRange{start: d, end: d}, true
		},
	},
	{
		name:    "weekday_month_day_en",
		pattern: regexp.MustCompile(`(?i)\b(` + weekdayEN + `)\s*,?\s+(` + monthEN + `)\s+(\d{1,2})\b`),
		interpret: func(m []string, ref time.Time) (dateRange, bool) {
			return singleDate(m[2], m[3], ref)
		},
	},
	{
		name:    "weekday_day_month_de",
		pattern: regexp.MustCompile(`(?i)\b(` + weekdayDE + `)\s*,?\s+(\d{1,2})\.\s*(` + monthDE + `)\b`),
		interpret: func(m []string, ref time.Time) (dateRange, bool) {
			return singleDate(m[3], m[2], ref)
		},
	},
	{
		name:    "month_day_range_en",
		pattern: regexp.MustCompile(`(?i)\b(` + monthEN + `)\s+(\d{1,2})\s*[-–]\s*(?:(` + monthEN + `)\s+)?(\d{1,2})\b`),
		interpret: func(m []string, ref time.Time) (dateRange, bool) {
			start, ok := singleDate(m[1], m[2], ref)
			if !ok {
				return dateRange{}, false
			}
			endMonth := m[1]
			if m[3] != "" {
				endMonth = m[3]
			}
			end, ok := singleDate(endMonth, m[4], ref)
			if !ok || end.start.Before(start.start) {
				return dateRange{}, false
			}
			return dateRange{start: start.start, end: end.start}, true
		},
	},
	{
		name:    "day_range_month_de",
		pattern: regexp.MustCompile(`(?i)\b(\d{1,2})\.\s*[-–]\s*(\d{1,2})\.\s*(` + monthDE + `)\b`),
		interpret: func(m []string, ref time.Time) (dateRange, bool) {
			start, ok := singleDate(m[3], m[1], ref)
			if !ok {
				return dateRange{}, false
			}
			end, ok := singleDate(m[3], m[2], ref)
			if !ok || end.start.Before(start.start) {
				return dateRange{}, false
			}
			return dateRange{start: start.start, end: end.start}, true
		},
	},
}

// ParseDeliveryText runs the ordered rule table over one text fragment and
// converts the first match into a candidate relative to the reference date.
// Texts resolving to the past are rejected, never clamped: a negative offset
// means the grammar misfired, and a guessed default would violate the
// contract that day offsets only ever come from parsed promises.
func ParseDeliveryText(text string, ref time.Time, policy config.DeliverySelection) (models.DeliveryCandidate, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.DeliveryCandidate{}, false
	}

	for _, rule := range deliveryRules {
		m := rule.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}

		r, ok := rule.interpret(m, ref)
		if !ok {
			continue
		}

		date := r.start
		if policy == config.SelectLatest {
			date = r.end
		}

		days := daysBetween(ref, date)
		if days < 0 {
			continue
		}

		return models.DeliveryCandidate{
			RawText:           trimmed,
			ParsedDate:        date,
			DaysUntilDelivery: days,
			PriorityChannel:   priorityChannelPattern.MatchString(trimmed),
		}, true
	}

	return models.DeliveryCandidate{}, false
}

// SelectCandidate reduces extracted candidates to the single one the result
// reports. The policy lives in exactly one place; "earliest" and "latest"
// are never mixed across code paths.
func SelectCandidate(candidates []models.DeliveryCandidate, policy config.DeliverySelection) (models.DeliveryCandidate, bool) {
	if len(candidates) == 0 {
		return models.DeliveryCandidate{}, false
	}

	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if policy == config.SelectLatest {
			if c.DaysUntilDelivery > chosen.DaysUntilDelivery {
				chosen = c
			}
		} else if c.DaysUntilDelivery < chosen.DaysUntilDelivery {
			chosen = c
		}
	}
	return chosen, true
}

// singleDate resolves a month name plus day-of-month against the reference
// year. Dates that already passed roll into the next year: a promise for
// "January 3" seen in late December means the coming January.
func singleDate(monthName, dayStr string, ref time.Time) (dateRange, bool) {
	month, ok := monthNames[strings.ToLower(monthName)]
	if !ok {
		return dateRange{}, false
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return dateRange{}, false
	}

	d := time.Date(ref.Year(), month, day, 0, 0, 0, 0, ref.Location())
	if d.Before(dateOnly(ref)) {
		d = d.AddDate(1, 0, 0)
	}

	return dateRange{start: d, end: d}, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(ref, date time.Time) int {
	return int(dateOnly(date).Sub(dateOnly(ref)) / (24 * time.Hour))
}
