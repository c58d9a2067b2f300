package domain

import (
	"fmt"
	"time"
)

// RuleKind tags the three exclusion-window variants.
type RuleKind int

const (
	RuleYearRound RuleKind = iota
	RuleBirthdayWindow
	RuleEffectiveDateWindow
)

// RuleKindFromString parses the configuration spelling of a rule kind.
func RuleKindFromString(s string) (RuleKind, error) {
	switch s {
	case "year_round":
		return RuleYearRound, nil
	case "birthday_window":
		return RuleBirthdayWindow, nil
	case "effective_date_window":
		return RuleEffectiveDateWindow, nil
	}
	return 0, fmt.Errorf("unknown state rule kind %q", s)
}

// StateRule classifies a state's marketing restrictions. Window fields
// apply to the two window kinds; UseMonthStart relocates the birthday
// anchor to the first of the anniversary's month (Nevada).
type StateRule struct {
	Kind          RuleKind
	WindowBefore  int
	WindowAfter   int
	UseMonthStart bool
}

// DefaultStateRules is the canonical rule table. States without an
// entry have no exclusion window.
func DefaultStateRules() map[string]StateRule {
	return map[string]StateRule{
		"CA": {Kind: RuleBirthdayWindow, WindowBefore: 30, WindowAfter: 60},
		"ID": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 63},
		"KY": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 60},
		"MD": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 30},
		"NV": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 60, UseMonthStart: true},
		"OK": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 60},
		"OR": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 31},
		"VA": {Kind: RuleBirthdayWindow, WindowBefore: 0, WindowAfter: 30},
		"MO": {Kind: RuleEffectiveDateWindow, WindowBefore: 30, WindowAfter: 33},
		"CT": {Kind: RuleYearRound},
		"MA": {Kind: RuleYearRound},
		"NY": {Kind: RuleYearRound},
		"WA": {Kind: RuleYearRound},
	}
}

// Window is a closed calendar interval. It may wrap a year boundary
// when the pre-window extension reaches into the previous year.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains tests window membership. A window whose endpoints fall in
// different years wraps, and membership becomes date >= start OR
// date <= end.
func (w *Window) Contains(d time.Time) bool {
	if w.Start.Year() != w.End.Year() {
		return !d.Before(w.Start) || !d.After(w.End)
	}
	return !d.Before(w.Start) && !d.After(w.End)
}

// Date builds a UTC date at midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Date(y, m, d)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// anniversaryInYear projects an anchor's month/day into year,
// collapsing Feb 29 to Feb 28 when year is not a leap year.
func anniversaryInYear(anchor time.Time, year int) time.Time {
	month, day := anchor.Month(), anchor.Day()
	if month == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return Date(year, month, day)
}

// NextAnniversary returns the next occurrence of d's month/day
// strictly after today.
func NextAnniversary(d, today time.Time) time.Time {
	candidate := anniversaryInYear(d, today.Year())
	if candidate.After(today) {
		return candidate
	}
	return anniversaryInYear(d, today.Year()+1)
}

// WindowCalculator derives exclusion windows from a rule table and the
// pre-window extension.
type WindowCalculator struct {
	rules         map[string]StateRule
	preWindowDays int
}

// NewWindowCalculator builds a calculator. A nil rule map uses the
// default table.
func NewWindowCalculator(rules map[string]StateRule, preWindowDays int) *WindowCalculator {
	if rules == nil {
		rules = DefaultStateRules()
	}
	return &WindowCalculator{rules: rules, preWindowDays: preWindowDays}
}

// Rule returns the rule for a state, if any.
func (c *WindowCalculator) Rule(state string) (StateRule, bool) {
	rule, ok := c.rules[state]
	return rule, ok
}

// ExclusionWindow computes the contact's exclusion window relative to
// today, or nil when the state has no rule or the contact lacks the
// anchoring date.
func (c *WindowCalculator) ExclusionWindow(contact *Contact, today time.Time) *Window {
	rule, ok := c.rules[contact.State]
	if !ok {
		return nil
	}

	var anchor time.Time
	switch rule.Kind {
	case RuleYearRound:
		return &Window{
			Start: Date(today.Year(), time.January, 1),
			End:   Date(today.Year(), time.December, 31),
		}
	case RuleBirthdayWindow:
		if contact.BirthDate == nil {
			return nil
		}
		anchor = NextAnniversary(*contact.BirthDate, today)
		if rule.UseMonthStart {
			anchor = Date(anchor.Year(), anchor.Month(), 1)
		}
	case RuleEffectiveDateWindow:
		if contact.EffectiveDate == nil {
			return nil
		}
		anchor = NextAnniversary(*contact.EffectiveDate, today)
	default:
		return nil
	}

	return &Window{
		Start: anchor.AddDate(0, 0, -(rule.WindowBefore + c.preWindowDays)),
		End:   anchor.AddDate(0, 0, rule.WindowAfter),
	}
}

// InWindow reports whether a send date falls inside the contact's
// exclusion window. Contacts without a window are never excluded.
func (c *WindowCalculator) InWindow(sendDate time.Time, contact *Contact, today time.Time) bool {
	window := c.ExclusionWindow(contact, today)
	if window == nil {
		return false
	}
	return window.Contains(sendDate)
}
