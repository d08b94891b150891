// Package almanac computes traditional Chinese calendar facts: the 24 solar
// terms, the four seasons they anchor, and the twelve two-hour day periods.
// Everything here is a pure function of the supplied clock value.
package almanac

import (
	"fmt"
	"time"
)

// Term is one of the 24 solar terms with its fixed Gregorian date.
type Term struct {
	Name  string
	Month time.Month
	Day   int
}

// terms is ordered by date within a calendar year.
var terms = []Term{
	{"小寒", time.January, 5},
	{"大寒", time.January, 20},
	{"立春", time.February, 3},
	{"雨水", time.February, 18},
	{"惊蛰", time.March, 5},
	{"春分", time.March, 20},
	{"清明", time.April, 4},
	{"谷雨", time.April, 19},
	{"立夏", time.May, 5},
	{"小满", time.May, 20},
	{"芒种", time.June, 5},
	{"夏至", time.June, 21},
	{"小暑", time.July, 7},
	{"大暑", time.July, 22},
	{"立秋", time.August, 7},
	{"处暑", time.August, 23},
	{"白露", time.September, 7},
	{"秋分", time.September, 23},
	{"寒露", time.October, 8},
	{"霜降", time.October, 23},
	{"立冬", time.November, 7},
	{"小雪", time.November, 22},
	{"大雪", time.December, 7},
	{"冬至", time.December, 21},
}

// onOrAfter reports whether (m, d) is on or after (month, day) in the same
// calendar year.
func onOrAfter(m time.Month, d int, month time.Month, day int) bool {
	if m != month {
		return m > month
	}
	return d >= day
}

func onOrBefore(m time.Month, d int, month time.Month, day int) bool {
	if m != month {
		return m < month
	}
	return d <= day
}

// CurrentTerm returns the latest solar term whose date is on or before the
// given date, wrapping to 冬至 for the first days of January.
func CurrentTerm(t time.Time) Term {
	m, d := t.Month(), t.Day()
	current := terms[len(terms)-1] // wraps around the year end
	for _, term := range terms {
		if onOrAfter(m, d, term.Month, term.Day) {
			current = term
		}
	}
	return current
}

// NextTerm returns the term following CurrentTerm(t), cyclically.
func NextTerm(t time.Time) Term {
	current := CurrentTerm(t)
	for i, term := range terms {
		if term.Name == current.Name {
			return terms[(i+1)%len(terms)]
		}
	}
	return terms[0]
}

// Season returns the season name for the given date. Boundaries follow the
// four 立 terms; winter runs from 立冬 (11-07) through 立春 eve (02-02) of
// the following year.
func Season(t time.Time) string {
	m, d := t.Month(), t.Day()
	ranges := []struct {
		name   string
		sm     time.Month
		sd     int
		em     time.Month
		ed     int
	}{
		{"春季", time.February, 3, time.May, 4},
		{"夏季", time.May, 5, time.August, 6},
		{"秋季", time.August, 7, time.November, 6},
	}
	for _, r := range ranges {
		if onOrAfter(m, d, r.sm, r.sd) && onOrBefore(m, d, r.em, r.ed) {
			return r.name
		}
	}
	// winter spans the year boundary, so either side of the wrap matches
	if onOrAfter(m, d, time.November, 7) || onOrBefore(m, d, time.February, 2) {
		return "冬季"
	}
	return "未知季節"
}

// shichen maps the 24 clock hours onto the twelve traditional periods.
// 子時 covers 23:00-00:59, each following period covers two hours.
var shichen = [24]string{
	"子時", "丑時", "丑時", "寅時", "寅時", "卯時", "卯時", "辰時",
	"辰時", "巳時", "巳時", "午時", "午時", "未時", "未時", "申時",
	"申時", "酉時", "酉時", "戌時", "戌時", "亥時", "亥時", "子時",
}

// Shichen returns the traditional two-hour period for the given clock hour.
func Shichen(hour int) string {
	if hour < 0 || hour > 23 {
		return "時間格式錯誤"
	}
	return shichen[hour]
}

// Describe renders the fixed multi-line report the temporal tool returns:
// clock time, traditional period, season, and the current/next solar terms.
func Describe(t time.Time) string {
	return fmt.Sprintf(
		"時間：%s\n時辰：%s\n季節：%s\n當前節氣：%s\n下一個節氣：%s",
		t.Format("15:04:05"),
		Shichen(t.Hour()),
		Season(t),
		CurrentTerm(t).Name,
		NextTerm(t).Name,
	)
}
