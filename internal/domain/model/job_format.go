package model

import (
	"fmt"
	"strings"
)

// FormatRecord renders the full job record for status replies and shares.
func FormatRecord(j *Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %d\n", j.ID)
	fmt.Fprintf(&b, "User: <@%s>\n", j.RequesterID)
	fmt.Fprintf(&b, "State: %s\n", j.State)
	fmt.Fprintf(&b, "Text: %s\n", j.Message)
	if j.Response != "" {
		fmt.Fprintf(&b, "Response: %s\n", j.Response)
	}
	fmt.Fprintf(&b, "Slug: %s", j.Slug)
	return b.String()
}

// FormatIDs renders ids most recent first, e.g. "9, 8, 7".
func FormatIDs(jobs []*Job) string {
	parts := make([]string, 0, len(jobs))
	for _, j := range jobs {
		parts = append(parts, fmt.Sprintf("%d", j.ID))
	}
	return strings.Join(parts, ", ")
}
