package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// ruleJSON is the compact persisted form of a Rule. Field tags are short
// on purpose: the encoding is stored per obligation and round-trips must
// be lossless, but the blob itself is an implementation detail.
type ruleJSON struct {
	Type         RuleType  `json:"t"`
	Interval     int       `json:"i"`
	DaysOfWeek   []int     `json:"dw,omitempty"`
	DaysOfMonth  []int     `json:"dm,omitempty"`
	DayOfYear    *MonthDay `json:"dy,omitempty"`
	StartDate    string    `json:"sd"`
	EndKind      EndKind   `json:"ek,omitempty"`
	EndCount     int       `json:"en,omitempty"`
	EndDate      string    `json:"ed,omitempty"`
	EndTotal     int64     `json:"et,omitempty"`
	SkipWeekends bool      `json:"sw,omitempty"`
}

// EncodeRule serializes a rule to its compact structured encoding.
func EncodeRule(r Rule) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("encode rule: %w", err)
	}

	enc := ruleJSON{
		Type:         r.Type,
		Interval:     r.Interval,
		DaysOfMonth:  r.DaysOfMonth,
		DayOfYear:    r.DayOfYear,
		StartDate:    r.StartDate.String(),
		EndKind:      r.End.Kind,
		EndCount:     r.End.Count,
		EndTotal:     r.End.TotalCents,
		SkipWeekends: r.SkipWeekends,
	}
	for _, wd := range r.DaysOfWeek {
		enc.DaysOfWeek = append(enc.DaysOfWeek, int(wd))
	}
	if r.End.Kind == EndAfterDate {
		enc.EndDate = r.End.Date.String()
	}
	if enc.EndKind == EndNever {
		enc.EndKind = ""
	}

	return json.Marshal(enc)
}

// DecodeRule parses a blob produced by EncodeRule, validating the result
// so a malformed blob can never yield a rule that fails mid-evaluation.
func DecodeRule(blob []byte) (Rule, error) {
	var enc ruleJSON
	if err := json.Unmarshal(blob, &enc); err != nil {
		return Rule{}, fmt.Errorf("decode rule: %w", err)
	}

	start, err := ParseDate(enc.StartDate)
	if err != nil {
		return Rule{}, fmt.Errorf("decode rule start date: %w", err)
	}

	r := Rule{
		Type:         enc.Type,
		Interval:     enc.Interval,
		DaysOfMonth:  enc.DaysOfMonth,
		DayOfYear:    enc.DayOfYear,
		StartDate:    start,
		SkipWeekends: enc.SkipWeekends,
		End: EndCondition{
			Kind:       enc.EndKind,
			Count:      enc.EndCount,
			TotalCents: enc.EndTotal,
		},
	}
	if r.End.Kind == "" {
		r.End.Kind = EndNever
	}
	for _, wd := range enc.DaysOfWeek {
		r.DaysOfWeek = append(r.DaysOfWeek, time.Weekday(wd))
	}
	if enc.EndDate != "" {
		d, err := ParseDate(enc.EndDate)
		if err != nil {
			return Rule{}, fmt.Errorf("decode rule end date: %w", err)
		}
		r.End.Date = d
	}

	if err := r.Validate(); err != nil {
		return Rule{}, fmt.Errorf("decode rule: %w", err)
	}
	return r, nil
}
