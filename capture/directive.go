package capture

import (
	"fmt"
	"strings"
	"time"
)

// Input layouts accepted for StartTime/EndTime.
var timeInputLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04"}

// Directive is a start request as issued by a user. All fields are optional.
type Directive struct {
	Limit     int
	Minutes   int
	AfterID   string
	BeforeID  string
	StartTime string
	EndTime   string
	Summary   bool
}

// Mode reports the session mode the directive selects: an upper bound means a bounded export.
func (d Directive) Mode() Mode {
	if strings.TrimSpace(d.BeforeID) != "" || strings.TrimSpace(d.EndTime) != "" {
		return ModeBatch
	}
	return ModeLive
}

// Limits are the backfill caps.
type Limits struct {
	MaxLookback time.Duration
	MaxMessages int
}

// DefaultLimits are seven days of lookback and one hundred messages.
var DefaultLimits = Limits{MaxLookback: 7 * 24 * time.Hour, MaxMessages: 100}

// FetchPlan is a resolved history fetch.
type FetchPlan struct {
	AfterID  string
	After    time.Time
	BeforeID string
	Before   time.Time
	// Limit is the count ceiling applied to the merged result.
	Limit int
	// Description summarizes the requested window for the transcript header.
	Description string
}

// OldestFirst reports whether the plan is anchored at a lower bound.
func (p FetchPlan) OldestFirst() bool { return p.AfterID != "" || !p.After.IsZero() }

// Plan resolves a directive into a fetch plan. The returned bool is false when no history
// should be fetched. Validation problems and clamp notices are returned as warnings; invalid
// bounds are dropped and never fail the request.
func (d Directive) Plan(now time.Time, loc *time.Location, lim Limits) (FetchPlan, bool, []error, []string) {
	if loc == nil {
		loc = time.Local
	}
	var (
		plan    FetchPlan
		invalid []error
		notices []string
		desc    []string
	)

	afterID, err := parseMessageID("after_message_id", d.AfterID)
	if err != nil {
		invalid = append(invalid, err)
	}
	beforeID, err := parseMessageID("before_message_id", d.BeforeID)
	if err != nil {
		invalid = append(invalid, err)
	}
	start, err := parseLocalTime("start_time", d.StartTime, loc)
	if err != nil {
		invalid = append(invalid, err)
	}
	end, err := parseLocalTime("end_time", d.EndTime, loc)
	if err != nil {
		invalid = append(invalid, err)
	}

	earliest := now.Add(-lim.MaxLookback)
	lookbackNotice := fmt.Sprintf("lookback clamped to the %s limit", humanDuration(lim.MaxLookback))

	// lower bound: id > timestamp > relative minutes
	switch {
	case afterID != "":
		plan.AfterID = afterID
		desc = append(desc, fmt.Sprintf("from message ID %s", afterID))
	case !start.IsZero():
		if start.Before(earliest) {
			start = earliest
			notices = append(notices, lookbackNotice)
		}
		plan.After = start
		desc = append(desc, fmt.Sprintf("from %s", start.In(loc).Format(TimeLayout)))
	case d.Minutes > 0:
		minutes := d.Minutes
		if int64(minutes) > int64(lim.MaxLookback/time.Minute) {
			minutes = int(lim.MaxLookback / time.Minute)
			notices = append(notices, lookbackNotice)
		}
		plan.After = now.Add(-time.Duration(minutes) * time.Minute)
		desc = append(desc, fmt.Sprintf("last %d minutes", minutes))
	}

	switch {
	case beforeID != "":
		plan.BeforeID = beforeID
		desc = append(desc, fmt.Sprintf("until message ID %s", beforeID))
	case !end.IsZero():
		plan.Before = end
		desc = append(desc, fmt.Sprintf("until %s", end.In(loc).Format(TimeLayout)))
	}

	limit := d.Limit
	if limit < 0 {
		invalid = append(invalid, &ValidationError{Field: "limit", Value: fmt.Sprint(d.Limit), Reason: "must not be negative"})
		limit = 0
	}
	if limit > lim.MaxMessages {
		limit = lim.MaxMessages
		notices = append(notices, fmt.Sprintf("message count clamped to the %d message limit", lim.MaxMessages))
	}
	if d.Minutes < 0 {
		invalid = append(invalid, &ValidationError{Field: "minutes", Value: fmt.Sprint(d.Minutes), Reason: "must not be negative"})
	}

	hasLower := plan.AfterID != "" || !plan.After.IsZero()
	fetch := hasLower || limit > 0 || d.Mode() == ModeBatch
	if !fetch {
		return FetchPlan{}, false, invalid, notices
	}
	if limit == 0 {
		plan.Limit = lim.MaxMessages
	} else {
		plan.Limit = limit
		desc = append(desc, fmt.Sprintf("up to %d messages", limit))
	}
	if len(desc) == 0 {
		desc = append(desc, fmt.Sprintf("latest %d messages", plan.Limit))
	}
	plan.Description = strings.Join(desc, ", ")
	if len(notices) > 0 {
		plan.Description += " (" + strings.Join(notices, "; ") + ")"
	}
	return plan, true, invalid, notices
}

func parseMessageID(field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", nil
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return "", &ValidationError{Field: field, Value: raw, Reason: "message IDs are numeric"}
		}
	}
	return v, nil
}

func parseLocalTime(field, raw string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeInputLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: field, Value: raw, Reason: "expected YYYY-MM-DD HH:MM[:SS]"}
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
