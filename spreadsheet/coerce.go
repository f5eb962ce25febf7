package spreadsheet

import (
	"math"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateLayout is the output form of every date cell.
const DateLayout = "2006-01-02T15:04:05-07:00"

// naiveLayouts are read as UTC wall-clock values.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a raw delimited-text cell into the most specific value:
// integer, then float, then date, then the string unchanged.
func Coerce(raw string) Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return FloatValue(f)
	}
	if t, ok := ParseDate(raw); ok {
		return DateValue(t)
	}
	return StringValue(raw)
}

// ParseDate accepts a local timestamp, a plain date, or an RFC 3339
// timestamp (Z or numeric offset). Values without an offset are taken as
// UTC; no timezone conversion is applied to them.
func ParseDate(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02") {
		return time.Time{}, false
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// DateValue returns a date cell rendered in UTC with an explicit offset.
func DateValue(t time.Time) Value {
	return Value{kind: KindDate, s: t.UTC().Format(DateLayout)}
}

// NumberValue returns an integer cell when f has no fractional part,
// otherwise a float cell.
func NumberValue(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return IntValue(int64(f))
	}
	return FloatValue(f)
}

// NumberText converts the textual value of a typed numeric cell. Text that
// survives integer parsing, directly or after dropping a zero fraction,
// yields an integer.
func NumberText(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null, err
	}
	return NumberValue(f), nil
}

// SerialDate converts a workbook date serial into a date cell. date1904
// selects the Mac epoch.
func SerialDate(serial float64, date1904 bool) (Value, error) {
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return Null, err
	}
	return DateValue(t), nil
}
