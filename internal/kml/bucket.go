package kml

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DateLayout is the wire format of request dates.
const DateLayout = "2006-01-02"

// WeekBucket is how many whole weeks away a pickup is, clamped to MaxBucket.
type WeekBucket int

const (
	BucketDefault WeekBucket = -1
	MaxBucket     WeekBucket = 14
)

// StyleID names the KML style for the bucket: week_0..week_14 or default.
func (b WeekBucket) StyleID() string {
	if b < 0 || b > MaxBucket {
		return "default"
	}
	return "week_" + strconv.Itoa(int(b))
}

// AllBuckets lists every bucket a document can reference, default last.
func AllBuckets() []WeekBucket {
	out := make([]WeekBucket, 0, MaxBucket+2)
	for b := WeekBucket(0); b <= MaxBucket; b++ {
		out = append(out, b)
	}
	return append(out, BucketDefault)
}

// CivilDay truncates t to midnight of its calendar day in loc.
func CivilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DateIn reinterprets the calendar date of t, in t's own location, as
// midnight in loc. Stored DATE values arrive as UTC midnights.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween returns the whole civil days from "from" to "to" (to - from).
func DaysBetween(from, to time.Time, loc *time.Location) int {
	a := CivilDay(from, loc)
	b := CivilDay(to, loc)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// Classify maps a pickup date to its week bucket relative to today.
// Past pickups fall into BucketDefault.
func Classify(pickup, today time.Time, loc *time.Location) WeekBucket {
	days := DaysBetween(today, pickup, loc)
	if days < 0 {
		return BucketDefault
	}
	bucket := WeekBucket(days / 7)
	if bucket > MaxBucket {
		return MaxBucket
	}
	return bucket
}

// DateRange is an inclusive range of civil dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates as civil midnights in loc.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: startDate %q", ErrInvalidDateRange, start)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: endDate %q", ErrInvalidDateRange, end)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: startDate %s is after endDate %s", ErrInvalidDateRange, start, end)
	}
	return DateRange{Start: s, End: e}, nil
}

func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }

func (r DateRange) EndString() string { return r.End.Format(DateLayout) }
