package usecase

import (
	"strconv"
	"strings"
	"unicode"

	"gpt-queue/internal/domain/model"
)

// statusQueryMaxLen bounds digit-only input treated as a job id.
const statusQueryMaxLen = 30

type IntentKind string

const (
	IntentHelp       IntentKind = "help"
	IntentList       IntentKind = "list"
	IntentStatus     IntentKind = "status"
	IntentShare      IntentKind = "share"
	IntentShareUsage IntentKind = "share_usage"
	IntentContinue   IntentKind = "continue"
	IntentCreate     IntentKind = "create"
)

// Intent is the classified form of a command string.
type Intent struct {
	Kind      IntentKind
	JobID     int64
	Recipient string
	Text      string
}

type matcher func(text string) (Intent, bool)

// matchers run in order; the first match wins. Status must precede
// continuation so that a bare id is never read as a prompt.
var matchers = []matcher{
	matchHelp,
	matchList,
	matchStatus,
	matchShare,
	matchContinue,
}

// Classify maps raw command text to an Intent. Anything unmatched is a new prompt.
func Classify(raw string) Intent {
	text := strings.TrimSpace(raw)
	for _, m := range matchers {
		if in, ok := m(text); ok {
			return in
		}
	}
	return Intent{Kind: IntentCreate, Text: text}
}

func matchHelp(text string) (Intent, bool) {
	if text == "" || strings.EqualFold(text, "help") {
		return Intent{Kind: IntentHelp}, true
	}
	return Intent{}, false
}

func matchList(text string) (Intent, bool) {
	if strings.EqualFold(text, "list") {
		return Intent{Kind: IntentList}, true
	}
	return Intent{}, false
}

func matchStatus(text string) (Intent, bool) {
	if len(text) >= statusQueryMaxLen || !model.IsDigits(text) {
		return Intent{}, false
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// too large for any stored id; looked up as 0 and reported missing
		id = 0
	}
	return Intent{Kind: IntentStatus, JobID: id, Text: text}, true
}

func matchShare(text string) (Intent, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "share") {
		return Intent{}, false
	}
	if !model.IsDigits(fields[1]) {
		// "share <word> with <recipient>" is a share with a bad id; longer prose stays a prompt
		if len(fields) == 4 && strings.EqualFold(fields[2], "with") {
			return Intent{Kind: IntentShareUsage, Text: text}, true
		}
		return Intent{}, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || len(fields) < 4 || !strings.EqualFold(fields[2], "with") {
		return Intent{Kind: IntentShareUsage, Text: text}, true
	}
	return Intent{
		Kind:      IntentShare,
		JobID:     id,
		Recipient: strings.Join(fields[3:], " "),
		Text:      text,
	}, true
}

func matchContinue(text string) (Intent, bool) {
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return Intent{}, false
	}
	head, rest := text[:i], strings.TrimSpace(text[i:])
	if rest == "" || !model.IsDigits(head) {
		return Intent{}, false
	}
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return Intent{}, false
	}
	return Intent{Kind: IntentContinue, JobID: id, Text: rest}, true
}
