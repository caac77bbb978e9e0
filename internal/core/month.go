package core

import (
	"errors"
	"strings"
)

// Month is the value sent in the month query parameter.
type Month string

// AllMonths disables month filtering. It is selectable but never the initial value.
const AllMonths Month = "All"

// MonthOption is one entry of the month selector.
type MonthOption struct {
	Value       Month
	DisplayText string
}

var ErrInvalidMonth = errors.New("invalid month")

// Months is the month selector table in display order.
var Months = []MonthOption{
	{Value: AllMonths, DisplayText: "All months"},
	{Value: "January", DisplayText: "January"},
	{Value: "February", DisplayText: "February"},
	{Value: "March", DisplayText: "March"},
	{Value: "April", DisplayText: "April"},
	{Value: "May", DisplayText: "May"},
	{Value: "June", DisplayText: "June"},
	{Value: "July", DisplayText: "July"},
	{Value: "August", DisplayText: "August"},
	{Value: "September", DisplayText: "September"},
	{Value: "October", DisplayText: "October"},
	{Value: "November", DisplayText: "November"},
	{Value: "December", DisplayText: "December"},
}

const defaultMonthIndex = 3

// DefaultMonth is the initial selection (March).
func DefaultMonth() Month {
	return Months[defaultMonthIndex].Value
}

// ParseMonth resolves a selector value, case-insensitively.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for _, m := range Months {
		if strings.EqualFold(string(m.Value), s) {
			return m.Value, nil
		}
	}
	return "", ErrInvalidMonth
}

func (m Month) IsValid() bool {
	_, ok := m.option()
	return ok
}

// DisplayText returns the selector label, or the raw value if unknown.
func (m Month) DisplayText() string {
	if o, ok := m.option(); ok {
		return o.DisplayText
	}
	return string(m)
}

// Number returns 1-12 for calendar months and 0 for AllMonths or unknown values.
func (m Month) Number() int {
	for i, o := range Months {
		if o.Value == m {
			return i
		}
	}
	return 0
}

func (m Month) option() (MonthOption, bool) {
	for _, o := range Months {
		if o.Value == m {
			return o, true
		}
	}
	return MonthOption{}, false
}
