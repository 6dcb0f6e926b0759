package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllDayEventHasExclusiveEnd(t *testing.T) {
	day := time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC)
	out := Render(Calendar{Name: "CS 3500", Events: []Event{{
		UID:     "ev-1@pawtograder",
		Summary: "Exam",
		AllDay:  true,
		Start:   day,
		End:     day.AddDate(0, 0, 1),
		Stamp:   day,
	}}})

	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240228\r\n")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240301\r\n")
}

func TestAllDayEventAcrossYearEnd(t *testing.T) {
	day := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	out := Render(Calendar{Events: []Event{{UID: "x", Summary: "NYE", AllDay: true, Start: day, End: day, Stamp: day}}})
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250101\r\n")
}

func TestTimedEventUsesTZID(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, time.March, 4, 14, 0, 0, 0, loc)

	out := Render(Calendar{Events: []Event{{
		UID:      "oh-1",
		Summary:  "Office hours",
		Start:    start,
		End:      start.Add(time.Hour),
		TimeZone: "America/New_York",
		Stamp:    start,
	}}})

	assert.Contains(t, out, "DTSTART;TZID=America/New_York:20240304T140000\r\n")
	assert.Contains(t, out, "DTEND;TZID=America/New_York:20240304T150000\r\n")
}

func TestUnknownZoneFallsBackToUTC(t *testing.T) {
	start := time.Date(2024, time.March, 4, 14, 0, 0, 0, time.UTC)
	out := Render(Calendar{Events: []Event{{UID: "oh-2", Summary: "x", Start: start, End: start, TimeZone: "Mars/Olympus", Stamp: start}}})
	assert.Contains(t, out, "DTSTART:20240304T140000Z\r\n")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\\b\;c\,d\ne`, Escape("a\\b;c,d\ne"))
}

func TestFoldKeepsLinesWithinLimit(t *testing.T) {
	line := "DESCRIPTION:" + strings.Repeat("é", 100)
	folded := Fold(line)

	for _, part := range strings.Split(folded, "\r\n") {
		assert.LessOrEqual(t, len(part), 75)
	}
	unfolded := strings.ReplaceAll(folded, "\r\n ", "")
	assert.Equal(t, line, unfolded)
}

func TestRenderEnvelope(t *testing.T) {
	out := Render(Calendar{Name: "Queue, Office Hours"})
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n"))
	assert.Contains(t, out, "CALSCALE:GREGORIAN\r\n")
	assert.Contains(t, out, `X-WR-CALNAME:Queue\, Office Hours`)
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
}
