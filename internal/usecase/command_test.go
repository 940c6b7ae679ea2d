package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Precedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Intent
	}{
		{"empty is help", "   ", Intent{Kind: IntentHelp}},
		{"help keyword", "help", Intent{Kind: IntentHelp}},
		{"help is case-insensitive", "HELP", Intent{Kind: IntentHelp}},
		{"list keyword", " list ", Intent{Kind: IntentList}},
		{"bare id is a status query", "25", Intent{Kind: IntentStatus, JobID: 25, Text: "25"}},
		{"id followed by text continues", "25 now add detail", Intent{Kind: IntentContinue, JobID: 25, Text: "now add detail"}},
		{"continuation keeps inner whitespace", "7\tmore  please", Intent{Kind: IntentContinue, JobID: 7, Text: "more  please"}},
		{"share command", "share 7 with @bob", Intent{Kind: IntentShare, JobID: 7, Recipient: "@bob", Text: "share 7 with @bob"}},
		{"share without recipient", "share 7", Intent{Kind: IntentShareUsage, Text: "share 7"}},
		{"share with wrong keyword", "share 7 to @bob", Intent{Kind: IntentShareUsage, Text: "share 7 to @bob"}},
		{"share non-numeric id", "share bob with @x", Intent{Kind: IntentShareUsage, Text: "share bob with @x"}},
		{"share prose with 'with' is a prompt", "share a story with dragons in it", Intent{Kind: IntentCreate, Text: "share a story with dragons in it"}},
		{"share prose is a prompt", "share a cake recipe", Intent{Kind: IntentCreate, Text: "share a cake recipe"}},
		{"plain prompt", "give me a cake recipe", Intent{Kind: IntentCreate, Text: "give me a cake recipe"}},
		{"list inside prose is a prompt", "list three fruits", Intent{Kind: IntentCreate, Text: "list three fruits"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.in))
		})
	}
}

func TestClassify_LongDigitStringIsAPrompt(t *testing.T) {
	t.Parallel()

	digits := strings.Repeat("9", statusQueryMaxLen)
	got := Classify(digits)
	assert.Equal(t, IntentCreate, got.Kind)
	assert.Equal(t, digits, got.Text)

	shorter := strings.Repeat("1", statusQueryMaxLen-1)
	assert.Equal(t, IntentStatus, Classify(shorter).Kind)
}
