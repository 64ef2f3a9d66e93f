package xlrd

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Julian day numbers of the day before each date system's day 1, with the
// 1900 system shifted for its phantom 29 February.
var jdnDelta = [2]int{2415080 - 61, 2416482 - 1}

const (
	xldaysTooLarge1900 = 2958466
	xldaysTooLarge1904 = 2958466 - 1462
)

var (
	epoch1904       = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch1900       = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	epoch1900Minus1 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Date conversion error kinds.
var (
	// ErrXLDateNegative means xldate < 0.00.
	ErrXLDateNegative = errors.New("xldate is negative")
	// ErrXLDateAmbiguous means a 1900-system date before 1900-03-01, where Excel's leap-year bug applies.
	ErrXLDateAmbiguous = errors.New("xldate is ambiguous")
	// ErrXLDateTooLarge means Gregorian year 10000 or later.
	ErrXLDateTooLarge = errors.New("xldate is too large")
	// ErrXLDateBadDatemode means datemode is neither 0 nor 1.
	ErrXLDateBadDatemode = errors.New("bad datemode")
	// ErrXLDateBadTuple means a date or time component is out of range.
	ErrXLDateBadTuple = errors.New("bad date tuple")
)

// XLDateError reports a failed date conversion.
type XLDateError struct {
	Kind    error
	Message string
}

func (e *XLDateError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *XLDateError) Unwrap() error {
	return e.Kind
}

func xldateError(kind error, format string, args ...any) error {
	return &XLDateError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func checkDatemode(datemode int) error {
	if datemode != 0 && datemode != 1 {
		return xldateError(ErrXLDateBadDatemode, "datemode %d", datemode)
	}
	return nil
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// XldateAsTuple converts an Excel number (presumed to represent a date, a datetime or a time)
// into (year, month, day, hour, minute, nearest_second).
//
// datemode: 0: 1900-based, 1: 1904-based.
//
// Special case: If 0.0 <= xldate < 1.0, it is assumed to represent a time;
// (0, 0, 0, hour, minute, second) will be returned.
func XldateAsTuple(xldate float64, datemode int) (int, int, int, int, int, int, error) {
	if err := checkDatemode(datemode); err != nil {
		return 0, 0, 0, 0, 0, 0, err
	}
	if xldate == 0 {
		return 0, 0, 0, 0, 0, 0, nil
	}
	if xldate < 0 {
		return 0, 0, 0, 0, 0, 0, xldateError(ErrXLDateNegative, "%v", xldate)
	}

	xldays := int(xldate)
	seconds := int(math.Round((xldate - float64(xldays)) * 86400))
	var hour, minute, second int
	if seconds == 86400 {
		xldays++
	} else {
		minutes := seconds / 60
		second = seconds % 60
		hour, minute = minutes/60, minutes%60
	}

	tooLarge := xldaysTooLarge1900
	if datemode == 1 {
		tooLarge = xldaysTooLarge1904
	}
	if xldays >= tooLarge {
		return 0, 0, 0, 0, 0, 0, xldateError(ErrXLDateTooLarge, "%v", xldate)
	}
	if xldays == 0 {
		return 0, 0, 0, hour, minute, second, nil
	}
	if xldays < 61 && datemode == 0 {
		return 0, 0, 0, 0, 0, 0, xldateError(ErrXLDateAmbiguous, "%v", xldate)
	}

	jdn := xldays + jdnDelta[datemode]
	yreg := (((jdn*4+274277)/146097)*3/4+jdn+1363)*4 + 3
	mp := ((yreg%1461)/4)*535 + 333
	d := (mp%16384)/535 + 1
	mp >>= 14
	if mp >= 10 {
		return yreg/1461 - 4715, mp - 9, d, hour, minute, second, nil
	}
	return yreg/1461 - 4716, mp + 3, d, hour, minute, second, nil
}

// XldateAsDatetime converts an Excel number into a time.Time in UTC, at
// Excel's millisecond resolution.
func XldateAsDatetime(xldate float64, datemode int) (time.Time, error) {
	if err := checkDatemode(datemode); err != nil {
		return time.Time{}, err
	}
	if xldate < 0 {
		return time.Time{}, xldateError(ErrXLDateNegative, "%v", xldate)
	}
	epoch := epoch1904
	if datemode == 0 {
		epoch = epoch1900
		if xldate >= 60 {
			// Excel counts a 29 February 1900 that never existed.
			epoch = epoch1900Minus1
		}
	}

	days := int(xldate)
	ms := int64(math.Round((xldate - float64(days)) * 86400000))
	return epoch.AddDate(0, 0, days).Add(time.Duration(ms) * time.Millisecond), nil
}

// XldateFromDateTuple converts a date tuple to an Excel date number.
func XldateFromDateTuple(year, month, day int, datemode int) (float64, error) {
	if err := checkDatemode(datemode); err != nil {
		return 0, err
	}
	if year == 0 && month == 0 && day == 0 {
		return 0, nil
	}
	if year < 1900 || year > 9999 {
		return 0, xldateError(ErrXLDateBadTuple, "invalid year: (%d, %d, %d)", year, month, day)
	}
	if month < 1 || month > 12 {
		return 0, xldateError(ErrXLDateBadTuple, "invalid month: (%d, %d, %d)", year, month, day)
	}
	maxDay := daysInMonth[month]
	if month == 2 && isLeap(year) {
		maxDay = 29
	}
	if day < 1 || day > maxDay {
		return 0, xldateError(ErrXLDateBadTuple, "invalid day: (%d, %d, %d)", year, month, day)
	}

	yp := year + 4716
	mp := month - 3
	if month <= 2 {
		yp--
		mp = month + 9
	}
	jdn := 1461*yp/4 + (979*mp+16)/32 + day - 1364 - ((yp+184)/100)*3/4
	xldays := jdn - jdnDelta[datemode]
	if xldays <= 0 {
		return 0, xldateError(ErrXLDateBadTuple, "invalid (year, month, day): (%d, %d, %d)", year, month, day)
	}
	if xldays < 61 && datemode == 0 {
		return 0, xldateError(ErrXLDateAmbiguous, "before 1900-03-01: (%d, %d, %d)", year, month, day)
	}
	return float64(xldays), nil
}

// XldateFromTimeTuple converts a time tuple to an Excel date number.
func XldateFromTimeTuple(hour, minute, second int) (float64, error) {
	if hour < 0 || hour >= 24 || minute < 0 || minute >= 60 || second < 0 || second >= 60 {
		return 0, xldateError(ErrXLDateBadTuple, "invalid (hour, minute, second): (%d, %d, %d)", hour, minute, second)
	}
	return ((float64(second)/60+float64(minute))/60 + float64(hour)) / 24, nil
}

// XldateFromDatetimeTuple converts a datetime tuple to an Excel date number.
func XldateFromDatetimeTuple(year, month, day, hour, minute, second int, datemode int) (float64, error) {
	datePart, err := XldateFromDateTuple(year, month, day, datemode)
	if err != nil {
		return 0, err
	}
	timePart, err := XldateFromTimeTuple(hour, minute, second)
	if err != nil {
		return 0, err
	}
	return datePart + timePart, nil
}
