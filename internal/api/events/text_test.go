package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SuperSchedules/superschedules/internal/types"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Story time", "Story time"},
		{"tags", "<p>Story <b>time</b></p>", "Story time"},
		{"entities", "Arts &amp; Crafts &lt;kids&gt;", "Arts & Crafts <kids>"},
		{"escaped newline", `Line one\nLine two`, "Line one Line two"},
		{"whitespace", "  a \n\t b  ", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanHTML(tt.in))
		})
	}
}

func TestSearchText(t *testing.T) {
	start := time.Date(2025, time.December, 6, 10, 30, 0, 0, time.UTC)
	e := types.EventCandidate{
		Title:        "Holiday <em>Craft</em> Fair",
		Description:  "Handmade gifts &amp; cocoa",
		LocationText: "Newton Free Library",
		Tags:         []string{"crafts", "holiday"},
		Audience:     []string{"families"},
		StartTime:    &start,
	}

	got := SearchText(e)
	assert.Equal(t,
		"Holiday Craft Fair Handmade gifts & cocoa Newton Free Library crafts holiday families Saturday 10:30 AM December",
		got)
}

func TestSearchText_SkipsEmptyParts(t *testing.T) {
	got := SearchText(types.EventCandidate{Title: "Open Mic"})
	assert.Equal(t, "Open Mic", got)
}
