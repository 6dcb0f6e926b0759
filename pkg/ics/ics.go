// Package ics renders RFC 5545 calendars.
package ics

import (
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"
)

const (
	crlf        = "\r\n"
	maxLineLen  = 75
	dateLayout  = "20060102"
	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

// Calendar is a VCALENDAR with its events.
type Calendar struct {
	ProdID string
	Name   string
	Events []Event
}

// Event is a single VEVENT. For all-day events End is the inclusive last day.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         time.Time
	TimeZone    string
	Stamp       time.Time
}

// Render serialises the calendar with CRLF line endings and folded lines.
func Render(cal Calendar) string {
	var b strings.Builder
	w := func(line string) {
		b.WriteString(Fold(line))
		b.WriteString(crlf)
	}

	prodID := cal.ProdID
	if prodID == "" {
		prodID = "-//Pawtograder//Office Hours//EN"
	}

	w("BEGIN:VCALENDAR")
	w("VERSION:2.0")
	w("PRODID:" + prodID)
	w("CALSCALE:GREGORIAN")
	w("METHOD:PUBLISH")
	if cal.Name != "" {
		w("X-WR-CALNAME:" + Escape(cal.Name))
	}
	for _, ev := range cal.Events {
		writeEvent(w, ev)
	}
	w("END:VCALENDAR")
	return b.String()
}

func writeEvent(w func(string), ev Event) {
	stamp := ev.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	w("BEGIN:VEVENT")
	w("UID:" + ev.UID)
	w("DTSTAMP:" + stamp.UTC().Format(utcLayout))
	for _, line := range dateLines(ev) {
		w(line)
	}
	w("SUMMARY:" + Escape(ev.Summary))
	if ev.Description != "" {
		w("DESCRIPTION:" + Escape(ev.Description))
	}
	if ev.Location != "" {
		w("LOCATION:" + Escape(ev.Location))
	}
	w("END:VEVENT")
}

func dateLines(ev Event) []string {
	end := ev.End
	if end.IsZero() || end.Before(ev.Start) {
		end = ev.Start
	}
	loc := location(ev.TimeZone)

	if ev.AllDay {
		start := ev.Start.In(loc)
		last := end.In(loc)
		exclusive := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, time.UTC)
		return []string{
			"DTSTART;VALUE=DATE:" + start.Format(dateLayout),
			"DTEND;VALUE=DATE:" + exclusive.Format(dateLayout),
		}
	}

	if loc == time.UTC {
		return []string{
			"DTSTART:" + ev.Start.UTC().Format(utcLayout),
			"DTEND:" + end.UTC().Format(utcLayout),
		}
	}
	tzid := loc.String()
	return []string{
		"DTSTART;TZID=" + tzid + ":" + ev.Start.In(loc).Format(localLayout),
		"DTEND;TZID=" + tzid + ":" + end.In(loc).Format(localLayout),
	}
}

func location(name string) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

// Escape applies TEXT value escaping.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Fold splits a content line into chunks of at most 75 octets, continuation
// lines starting with a single space. Multi-byte runes are never split.
func Fold(line string) string {
	if len(line) <= maxLineLen {
		return line
	}

	var b strings.Builder
	limit := maxLineLen
	count := 0
	for len(line) > 0 {
		_, size := utf8.DecodeRuneInString(line)
		if count+size > limit {
			b.WriteString(crlf + " ")
			count = 0
			limit = maxLineLen - 1
		}
		b.WriteString(line[:size])
		count += size
		line = line[size:]
	}
	return b.String()
}
