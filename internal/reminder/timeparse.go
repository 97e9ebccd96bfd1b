package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Time expressions come in two shapes:
//
//   - relative: additive "<n><unit>" tokens, units s/m/h/d ("1h30m")
//   - absolute: a date token (keyword or numeric) plus a clock token
//     ("tomorrow 9:00", "2026-10-01 18:30", "10/01 6pm")
//
// Everything is local wall-clock in the location carried by now.

var reRelToken = regexp.MustCompile(`^(\d+)([smhd])`)

var relUnit = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseRelative parses an additive duration expression. The whole input
// must consist of tokens and the total must be positive.
func ParseRelative(s string) (time.Duration, error) {
	in := strings.TrimSpace(strings.ToLower(s))
	if in == "" {
		return 0, Validationf("時間を指定してください (例: 30m, 1h30m, 2d)")
	}
	var total time.Duration
	rest := in
	for rest != "" {
		m := reRelToken.FindStringSubmatch(rest)
		if m == nil {
			return 0, Validationf("時間の形式が不正です: %s", s)
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, Validationf("時間の形式が不正です: %s", s)
		}
		total += time.Duration(n) * relUnit[m[2]]
		rest = rest[len(m[0]):]
	}
	if total <= 0 {
		return 0, Validationf("時間は0より大きくしてください")
	}
	return total, nil
}

var dateKeywords = map[string]int{
	"today":              0,
	"今日":                 0,
	"tomorrow":           1,
	"明日":                 1,
	"day-after-tomorrow": 2,
	"明後日":                2,
}

var (
	reClock24 = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	reClock12 = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)$`)
)

// ParseAbsolute resolves a date token and a clock token against now.
// Year-less dates already past today roll over to next year.
func ParseAbsolute(dateTok, timeTok string, now time.Time) (time.Time, error) {
	y, mo, d, err := parseDate(dateTok, now)
	if err != nil {
		return time.Time{}, err
	}
	hh, mm, ss, err := parseClock(timeTok)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, time.Month(mo), d, hh, mm, ss, 0, now.Location()), nil
}

func parseDate(tok string, now time.Time) (year, month, day int, err error) {
	t := strings.ToLower(strings.TrimSpace(tok))
	if off, ok := dateKeywords[t]; ok {
		d := now.AddDate(0, 0, off)
		return d.Year(), int(d.Month()), d.Day(), nil
	}

	sep := "-"
	if strings.Contains(t, "/") {
		sep = "/"
	}
	parts := strings.Split(t, sep)

	var yearless bool
	switch len(parts) {
	case 3:
		year, err = atoiField(parts[0], tok)
		if err != nil {
			return 0, 0, 0, err
		}
		month, day, err = monthDay(parts[1], parts[2], tok)
	case 2:
		yearless = true
		year = now.Year()
		month, day, err = monthDay(parts[0], parts[1], tok)
	default:
		return 0, 0, 0, Validationf("日付の形式が不正です: %s", tok)
	}
	if err != nil {
		return 0, 0, 0, err
	}
	if !validDate(year, month, day) {
		return 0, 0, 0, Validationf("存在しない日付です: %s", tok)
	}

	if yearless {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		cand := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		if cand.Before(today) {
			year++
		}
	}
	return year, month, day, nil
}

func monthDay(m, d, tok string) (int, int, error) {
	mo, err := atoiField(m, tok)
	if err != nil {
		return 0, 0, err
	}
	dd, err := atoiField(d, tok)
	if err != nil {
		return 0, 0, err
	}
	return mo, dd, nil
}

func atoiField(s, tok string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, Validationf("日付の形式が不正です: %s", tok)
	}
	return n, nil
}

func validDate(y, mo, d int) bool {
	if mo < 1 || mo > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == mo && t.Day() == d
}

// parseClock tries 24h "HH:MM[:SS]" first, then 12h "H[:MM]am/pm".
func parseClock(tok string) (hh, mm, ss int, err error) {
	t := strings.ToLower(strings.TrimSpace(tok))

	if m := reClock24.FindStringSubmatch(t); m != nil {
		hh, _ = strconv.Atoi(m[1])
		mm, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			ss, _ = strconv.Atoi(m[3])
		}
		if hh <= 23 && mm <= 59 && ss <= 59 {
			return hh, mm, ss, nil
		}
		return 0, 0, 0, Validationf("時刻の形式が不正です: %s", tok)
	}

	if m := reClock12.FindStringSubmatch(t); m != nil {
		hh, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			mm, _ = strconv.Atoi(m[2])
		}
		if hh < 1 || hh > 12 || mm > 59 {
			return 0, 0, 0, Validationf("時刻の形式が不正です: %s", tok)
		}
		if m[3] == "pm" && hh != 12 {
			hh += 12
		}
		if m[3] == "am" && hh == 12 {
			hh = 0
		}
		return hh, mm, 0, nil
	}

	return 0, 0, 0, Validationf("時刻の形式が不正です: %s", tok)
}
