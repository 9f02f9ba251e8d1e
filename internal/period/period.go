// Package period derives the canonical keys of the daily, weekly, monthly
// and all-time leaderboard buckets from a timestamp.
//
// Daily and monthly keys are calendar values in a fixed local offset
// (UTC+7 by default). Weekly keys use one of two conventions, chosen once
// per deployment:
//
//	saturday  weeks start Saturday 00:00 UTC; week 1 starts on the first
//	          Saturday on/after January 1 (days before it belong to the
//	          previous year's last week)
//	iso       ISO-8601 weeks (Thursday rule) on the local calendar
//
// Every caller goes through a Calculator so a deployment never mixes the two.
//
// KEY FORMATS:
//
//	daily    2025-10-11
//	weekly   2025-W41
//	monthly  2025-10
//	all      all
//
// Keys of one scope sort chronologically as plain strings, which is what
// period listings rely on.
//
// FIXED OFFSET, NOT A TIME ZONE:
// The offset is a constant number of minutes with no daylight saving
// rules. A day is always exactly 24 hours, so a like lands in the same
// bucket no matter which server computes the key.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scope names a leaderboard window.
type Scope string

const (
	Daily   Scope = "daily"
	Weekly  Scope = "weekly"
	Monthly Scope = "monthly"
	AllTime Scope = "all"
)

// AllTimeKey is the period key of the all-time bucket.
const AllTimeKey = "all"

// DefaultOffsetMinutes is UTC+7.
const DefaultOffsetMinutes = 420

// WeekConvention selects the weekly key algorithm.
type WeekConvention string

const (
	WeekSaturday WeekConvention = "saturday"
	WeekISO      WeekConvention = "iso"
)

var (
	// ErrUnknownPeriod is returned for zero timestamps, which cannot be
	// placed in any bucket.
	ErrUnknownPeriod = errors.New("period: unknown period")

	ErrInvalidScope = errors.New("period: invalid scope")
	ErrInvalidKey   = errors.New("period: invalid period key")
)

var (
	dailyPattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	weeklyPattern  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
	monthlyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// Scopes lists every scope in display order.
func Scopes() []Scope {
	return []Scope{Daily, Weekly, Monthly, AllTime}
}

// ParseScope accepts a scope name case-insensitively.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	case AllTime, "alltime", "all-time":
		return AllTime, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// ParseWeekConvention accepts "saturday" or "iso"; empty means saturday.
func ParseWeekConvention(s string) (WeekConvention, error) {
	switch WeekConvention(strings.ToLower(strings.TrimSpace(s))) {
	case "", WeekSaturday:
		return WeekSaturday, nil
	case WeekISO:
		return WeekISO, nil
	}
	return "", fmt.Errorf("period: unknown week convention %q", s)
}

// Calculator maps instants to period keys. It holds no mutable state and is
// safe for concurrent use.
type Calculator struct {
	offset     time.Duration
	convention WeekConvention
}

// NewCalculator builds a Calculator for the given offset from UTC (minutes)
// and week convention.
func NewCalculator(offsetMinutes int, convention WeekConvention) (*Calculator, error) {
	if offsetMinutes < -14*60 || offsetMinutes > 14*60 {
		return nil, fmt.Errorf("period: offset %d minutes is out of range", offsetMinutes)
	}
	if convention == "" {
		convention = WeekSaturday
	}
	if convention != WeekSaturday && convention != WeekISO {
		return nil, fmt.Errorf("period: unknown week convention %q", convention)
	}
	return &Calculator{
		offset:     time.Duration(offsetMinutes) * time.Minute,
		convention: convention,
	}, nil
}

// Default returns the UTC+7 / saturday calculator.
func Default() *Calculator {
	return &Calculator{offset: DefaultOffsetMinutes * time.Minute, convention: WeekSaturday}
}

// Convention reports the configured week convention.
func (c *Calculator) Convention() WeekConvention { return c.convention }

// local shifts t into the configured offset. The result's UTC fields are the
// local wall clock.
func (c *Calculator) local(t time.Time) time.Time {
	return t.UTC().Add(c.offset)
}

func (c *Calculator) DailyKey(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrUnknownPeriod
	}
	return c.local(t).Format("2006-01-02"), nil
}

// WeeklyKey applies the configured convention.
func (c *Calculator) WeeklyKey(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrUnknownPeriod
	}
	if c.convention == WeekISO {
		return ISOWeekKey(c.local(t)), nil
	}
	return SaturdayWeekKey(t), nil
}

func (c *Calculator) MonthlyKey(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrUnknownPeriod
	}
	return c.local(t).Format("2006-01"), nil
}

// Key returns the key of the bucket of the given scope that contains t.
func (c *Calculator) Key(scope Scope, t time.Time) (string, error) {
	switch scope {
	case Daily:
		return c.DailyKey(t)
	case Weekly:
		return c.WeeklyKey(t)
	case Monthly:
		return c.MonthlyKey(t)
	case AllTime:
		return AllTimeKey, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
}

// Keys returns the key of every scope for t: the buckets a single event at t
// counts towards.
func (c *Calculator) Keys(t time.Time) (map[Scope]string, error) {
	keys := make(map[Scope]string, 4)
	for _, scope := range Scopes() {
		k, err := c.Key(scope, t)
		if err != nil {
			return nil, err
		}
		keys[scope] = k
	}
	return keys, nil
}

// Contains reports whether t falls into the bucket (scope, key).
func (c *Calculator) Contains(scope Scope, key string, t time.Time) bool {
	got, err := c.Key(scope, t)
	return err == nil && got == key
}

// Validate checks the shape of a client supplied period key.
func (c *Calculator) Validate(scope Scope, key string) error {
	switch scope {
	case Daily:
		if !dailyPattern.MatchString(key) {
			return fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidKey, key)
		}
		if _, err := time.Parse("2006-01-02", key); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	case Weekly:
		m := weeklyPattern.FindStringSubmatch(key)
		if m == nil {
			return fmt.Errorf("%w: %q is not YYYY-Www", ErrInvalidKey, key)
		}
		if w, _ := strconv.Atoi(m[2]); w < 1 || w > 53 {
			return fmt.Errorf("%w: week %d out of range", ErrInvalidKey, w)
		}
	case Monthly:
		if !monthlyPattern.MatchString(key) {
			return fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidKey, key)
		}
		if _, err := time.Parse("2006-01", key); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	case AllTime:
		if key != AllTimeKey {
			return fmt.Errorf("%w: all-time key must be %q", ErrInvalidKey, AllTimeKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return nil
}

// SaturdayWeekKey computes the Saturday-start week of t in UTC.
func SaturdayWeekKey(t time.Time) string {
	u := t.UTC()
	// days since the most recent Saturday: Sat=0, Sun=1 ... Fri=6
	back := (int(u.Weekday()) + 1) % 7
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -back)

	year := start.Year()
	first := firstSaturday(year)
	week := int(start.Sub(first).Hours()/24)/7 + 1
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func firstSaturday(year int) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	ahead := (int(time.Saturday) - int(jan1.Weekday()) + 7) % 7
	return jan1.AddDate(0, 0, ahead)
}

// ISOWeekKey formats the ISO-8601 week of t's own calendar fields.
func ISOWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
