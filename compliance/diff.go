// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Report intervals carried by the enveloped diff_report format.
const (
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

// ValidInterval reports whether s names a report interval.
func ValidInterval(s string) bool {
	return s == IntervalDaily || s == IntervalWeekly || s == IntervalMonthly
}

// DiffReport is the change summary a scanner computes between two scans of
// one committee.
type DiffReport struct {
	TimeInterval          *string  `json:"time_interval"`
	PreviousDate          *string  `json:"previous_date"`
	CurrentDate           *string  `json:"current_date"`
	ComplianceDelta       *float64 `json:"compliance_delta"`
	NewBillsCount         int      `json:"new_bills_count"`
	NewBills              []string `json:"new_bills"`
	BillsWithNewHearings  []string `json:"bills_with_new_hearings"`
	BillsReportedOut      []string `json:"bills_reported_out"`
	BillsWithNewSummaries []string `json:"bills_with_new_summaries"`
	BillsWithNewVotes     []string `json:"bills_with_new_votes,omitempty"`
}

// SelectReport decodes a stored diff_report. Reports stored as
// {"daily": {...}, "weekly": {...}, "monthly": {...}} yield the named
// interval (daily when interval is empty); flat reports are returned as is.
// A nil report with a nil error means there is nothing to show: the
// document is empty, or the interval is absent from the envelope.
func SelectReport(raw []byte, interval string) (*DiffReport, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid diff report: %w", err)
	}
	if len(doc) == 0 {
		return nil, nil
	}

	if isEnvelope(doc) {
		if interval == "" {
			interval = IntervalDaily
		}
		inner, ok := doc[interval]
		if !ok {
			return nil, nil
		}
		return SelectReport(inner, "")
	}

	var r DiffReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid diff report: %w", err)
	}
	return &r, nil
}

func isEnvelope(doc map[string]json.RawMessage) bool {
	for _, k := range []string{IntervalDaily, IntervalWeekly, IntervalMonthly} {
		if _, ok := doc[k]; ok {
			return true
		}
	}
	return false
}

// Aggregate folds several committees' reports into one:
//   - compliance_delta is the mean over reports that carry one (nil if none)
//   - new_bills_count is summed
//   - bill lists are unioned, keeping the order of first appearance
//   - the first non-empty time_interval, previous_date and current_date win
//
// nil reports are skipped. The result always has non-nil lists.
func Aggregate(reports []*DiffReport) *DiffReport {
	out := &DiffReport{
		NewBills:              []string{},
		BillsWithNewHearings:  []string{},
		BillsReportedOut:      []string{},
		BillsWithNewSummaries: []string{},
	}
	var (
		sum float64
		n   int
	)
	seen := make(map[*[]string]map[string]struct{})
	union := func(dst *[]string, src []string) {
		set, ok := seen[dst]
		if !ok {
			set = make(map[string]struct{})
			seen[dst] = set
		}
		for _, id := range src {
			if _, dup := set[id]; dup {
				continue
			}
			set[id] = struct{}{}
			*dst = append(*dst, id)
		}
	}
	first := func(dst **string, src *string) {
		if (*dst == nil || **dst == "") && src != nil && *src != "" {
			v := *src
			*dst = &v
		}
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.ComplianceDelta != nil {
			sum += *r.ComplianceDelta
			n++
		}
		out.NewBillsCount += r.NewBillsCount
		union(&out.NewBills, r.NewBills)
		union(&out.BillsWithNewHearings, r.BillsWithNewHearings)
		union(&out.BillsReportedOut, r.BillsReportedOut)
		union(&out.BillsWithNewSummaries, r.BillsWithNewSummaries)
		first(&out.TimeInterval, r.TimeInterval)
		first(&out.PreviousDate, r.PreviousDate)
		first(&out.CurrentDate, r.CurrentDate)
	}

	if n > 0 {
		avg := sum / float64(n)
		out.ComplianceDelta = &avg
	}
	return out
}
