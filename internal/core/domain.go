package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Once      Frequency = "once"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	ScopeShared   Scope = "shared"
	ScopePersonal Scope = "personal"
)

type (
	// Frequency is the recurrence class of an income record.
	Frequency string

	// Scope is the visibility class of an income record: shared records count
	// for every home member, personal ones only for their creator.
	Scope string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// IncomeRecord is one income entry of a home. For Once the Date is the
	// single occurrence date; for recurring frequencies it anchors the series.
	IncomeRecord struct {
		ID           string
		HomeID       string
		Source       string
		Amount       Money
		Frequency    Frequency
		Scope        Scope
		CreatedByUID string
		Date         Date
		EndDate      Date   // zero means no cutoff; inclusive when set
		GroupID      string // links successive segments of an amended recurring income
	}

	// Home groups members that share income records.
	Home struct {
		ID       string
		Name     string
		OwnerUID string
		Personal bool
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidScope     = errors.New("invalid scope")
	ErrEmptySource      = errors.New("empty income source")
	ErrEmptyHomeName    = errors.New("empty home name")
)

func (f Frequency) Valid() bool {
	switch f {
	case Once, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Recurring reports whether the frequency generates more than one occurrence.
func (f Frequency) Recurring() bool {
	return f.Valid() && f != Once
}

// OrShared resolves an absent scope to the shared default.
func (s Scope) OrShared() Scope {
	if s == ScopePersonal {
		return ScopePersonal
	}
	return ScopeShared
}

func (s Scope) Valid() bool {
	switch s {
	case ScopeShared, ScopePersonal, "":
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty returns true if the date is zero (optional dates such as EndDate)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r IncomeRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return errors.New("invalid anchor date: " + err.Error())
	}
	if len(strings.TrimSpace(r.Source)) == 0 {
		return ErrEmptySource
	}
	if len(r.Source) > 200 {
		return errors.New("source too long (max 200 characters)")
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if !r.Scope.Valid() {
		return ErrInvalidScope
	}
	if strings.TrimSpace(r.CreatedByUID) == "" {
		return errors.New("missing creator uid")
	}

	if !r.EndDate.IsZero() {
		if r.Frequency == Once {
			return errors.New("end date only applies to recurring income")
		}
		if err := r.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if r.EndDate.Before(r.Date.Time) {
			return errors.New("end date must not precede the anchor date")
		}
	}

	return nil
}

func (h Home) Validate() error {
	if len(strings.TrimSpace(h.Name)) == 0 {
		return ErrEmptyHomeName
	}
	if len(h.Name) > 100 {
		return errors.New("home name too long (max 100 characters)")
	}
	if strings.TrimSpace(h.OwnerUID) == "" {
		return errors.New("missing owner uid")
	}
	return nil
}
