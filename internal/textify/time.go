package textify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// timePattern matches dump timestamps: a signed year of up to sixteen
// digits, zero-padded month, day, and clock fields, always suffixed Z.
// Month and day may be 00 when the precision does not reach them.
var timePattern = regexp.MustCompile(`^([+-])(\d{1,16})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})Z$`)

// julianShift is the day offset applied when projecting a Julian calendar
// date onto the Gregorian one, the gap of the October 1582 cutover.
const julianShift = 10

// RenderTime formats a time value at its stated precision using the
// locale's vocabulary. Julian dates with years 2..9999 are shifted onto
// the Gregorian calendar first. Malformed timestamps, out-of-range
// months, and unknown precisions return an error so the caller can skip
// the entity and keep going.
func RenderTime(tv wikidata.TimeValue, loc *Locale) (string, error) {
	m := timePattern.FindStringSubmatch(tv.Time)
	if m == nil {
		return "", fmt.Errorf("malformed time %q", tv.Time)
	}
	year, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed time %q: %w", tv.Time, err)
	}
	if m[1] == "-" {
		year = -year
	}
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])
	second, _ := strconv.Atoi(m[7])

	if strings.Contains(tv.CalendarModel, "Q1985786") && year > 1 && year <= 9999 {
		y, mo, d, err := julianToGregorian(int(year), month, day)
		if err != nil {
			return "", err
		}
		year, month, day = int64(y), mo, d
	}

	var monthName string
	if month != 0 {
		if month < 1 || month > 12 {
			return "", fmt.Errorf("time %q has month out of range", tv.Time)
		}
		monthName = loc.Months[month-1]
	}

	yearStr := strconv.FormatInt(year, 10)
	era := loc.AD
	if year <= 0 {
		era = loc.BC
	}
	// Day through year precisions carry the era suffix only for BC dates.
	bcOnly := ""
	if year <= 0 {
		bcOnly = loc.BC
	}

	switch tv.Precision {
	case 14:
		clock := fmt.Sprintf("%02d:%02d:%02d", hour, minute, second)
		return joinFields(strconv.Itoa(day), monthName, yearStr, clock), nil
	case 13:
		clock := fmt.Sprintf("%02d:%02d", hour, minute)
		return joinFields(strconv.Itoa(day), monthName, yearStr, clock), nil
	case 12:
		clock := fmt.Sprintf("%02d:00", hour)
		return joinFields(strconv.Itoa(day), monthName, yearStr, clock), nil
	case 11:
		return joinFields(strconv.Itoa(day), monthName, yearStr, bcOnly), nil
	case 10:
		return joinFields(monthName, yearStr, bcOnly), nil
	case 9:
		return joinFields(yearStr, bcOnly), nil
	case 8:
		decade := floorDiv(year, 10) * 10
		return fmt.Sprintf("%d%s %s", decade, loc.Decade, era), nil
	case 7:
		return fmt.Sprintf("%d%s %s", periodNumber(year, 100), loc.Century, era), nil
	case 6:
		return fmt.Sprintf("%d%s %s", periodNumber(year, 1000), loc.Millennium, era), nil
	case 5:
		return epochText(year, 10_000, loc.TenThousandYears, era), nil
	case 4:
		return epochText(year, 100_000, loc.HundredThousandYears, era), nil
	case 3:
		return epochText(year, 1_000_000, loc.MillionYears, era), nil
	case 2:
		return epochText(year, 10_000_000, loc.TenMillionYears, era), nil
	case 1:
		return epochText(year, 100_000_000, loc.HundredMillionYears, era), nil
	case 0:
		return epochText(year, 1_000_000_000, loc.BillionYears, era), nil
	default:
		return "", fmt.Errorf("unknown time precision %d", tv.Precision)
	}
}

// julianToGregorian shifts a Julian calendar date by the fixed cutover
// offset. Zero month or day fields are clamped to 1 before converting.
// Dates that do not exist, like February 30, are rejected.
func julianToGregorian(year, month, day int) (int, int, int, error) {
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	y, mo, d := t.Date()
	if y != year || mo != time.Month(month) || d != day {
		return 0, 0, 0, fmt.Errorf("invalid julian date %04d-%02d-%02d", year, month, day)
	}
	t = t.AddDate(0, 0, julianShift)
	y, mo, d = t.Date()
	return y, int(mo), d, nil
}

// joinFields joins the non-empty parts with single spaces. Month names
// and era suffixes are frequently absent.
func joinFields(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// floorDiv rounds toward negative infinity so BC decades land on their
// lower bound.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// periodNumber maps a year to its ordinal century or millennium: years
// 1..100 are the 1st century, 101..200 the 2nd, mirrored for BC.
func periodNumber(year, span int64) int64 {
	a := year
	if a < 0 {
		a = -a
	}
	if a == 0 {
		a = 1
	}
	return (a-1)/span + 1
}

func epochText(year, span int64, unit, era string) string {
	a := year
	if a < 0 {
		a = -a
	}
	return fmt.Sprintf("%d %s %s", a/span, unit, era)
}
