// Package meter parses water meter readings out of rendered portal text.
package meter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Classified extraction failures. The scrape cycle publishes these verbatim
// in the snapshot error string, so the sentinel text doubles as the
// diagnostic label consumers see.
var (
	ErrPatternNotFound = errors.New("PatternNotFound")
	ErrMalformedNumber = errors.New("MalformedNumber")
	ErrMalformedDate   = errors.New("MalformedDate")
)

// Reading is a single meter reading as reported by the utility portal.
type Reading struct {
	// Volume is the meter counter in cubic meters.
	Volume float64
	// ReadAt is the local wall-clock moment the upstream system last polled
	// the physical meter, minute precision. Distinct from scrape time.
	ReadAt time.Time
}

// The portal renders the reading inside a Danish sentence such as
// "Senest registreret data kl. 20.54, d. 17.12.2025, aflæst til: 442,627 m³".
// The decimal separator is a comma and thousands are unseparated.
var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	registeredRe = regexp.MustCompile(`(?i)kl\.\s*([0-9]{1,2})\.([0-9]{2}),\s*d\.\s*([0-9]{1,2})\.([0-9]{1,2})\.([0-9]{4})`)
	volumeRe     = regexp.MustCompile(`(?i)aflæst til:\s*(-?[0-9]+(?:,[0-9]+)?)(?:\s*m³)?`)
)

// Normalize collapses all whitespace runs to single spaces and trims the
// ends, matching how the portal text is matched throughout.
func Normalize(raw string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
}

// HasReading reports whether the text contains the registration phrase
// followed by the reading phrase. The session driver uses it as the
// render-completion predicate while polling the page.
func HasReading(raw string) bool {
	text := Normalize(raw)
	loc := registeredRe.FindStringIndex(text)
	if loc == nil {
		return false
	}
	return volumeRe.MatchString(text[loc[1]:])
}

// Extract locates the reading sentence in the page text and parses it. It
// returns the Reading, the matched source substring, and a classified error:
// ErrPatternNotFound when no matching phrase exists, ErrMalformedDate or
// ErrMalformedNumber when a matched phrase fails to parse. Extract performs
// no I/O and is deterministic.
func Extract(raw string) (Reading, string, error) {
	text := Normalize(raw)

	reg := registeredRe.FindStringSubmatchIndex(text)
	if reg == nil {
		return Reading{}, "", fmt.Errorf("%w: no registration phrase in page text", ErrPatternNotFound)
	}
	rest := text[reg[1]:]
	vol := volumeRe.FindStringSubmatchIndex(rest)
	if vol == nil {
		return Reading{}, "", fmt.Errorf("%w: registration phrase without reading phrase", ErrPatternNotFound)
	}
	matched := text[reg[0] : reg[1]+vol[1]]

	readAt, err := parseReadAt(
		text[reg[2]:reg[3]],   // hour
		text[reg[4]:reg[5]],   // minute
		text[reg[6]:reg[7]],   // day
		text[reg[8]:reg[9]],   // month
		text[reg[10]:reg[11]], // year
	)
	if err != nil {
		return Reading{}, "", err
	}

	volume, err := parseVolume(rest[vol[2]:vol[3]])
	if err != nil {
		return Reading{}, "", err
	}

	return Reading{Volume: volume, ReadAt: readAt}, matched, nil
}

func parseReadAt(hourStr, minStr, dayStr, monthStr, yearStr string) (time.Time, error) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hour %q", ErrMalformedDate, hourStr)
	}
	minute, err := strconv.Atoi(minStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: minute %q", ErrMalformedDate, minStr)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrMalformedDate, dayStr)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrMalformedDate, monthStr)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrMalformedDate, yearStr)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local)
	// time.Date normalizes out-of-range components (month 13 becomes January
	// of the next year), so a round-trip mismatch means the date was not
	// calendar-valid.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, fmt.Errorf(
			"%w: %02d.%02d.%04d kl. %02d.%02d is not a valid date-time",
			ErrMalformedDate, day, month, year, hour, minute,
		)
	}
	return t, nil
}

func parseVolume(numStr string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(numStr, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, numStr)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative reading %q", ErrMalformedNumber, numStr)
	}
	return v, nil
}
