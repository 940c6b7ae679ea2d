package model

import "strings"

type DestinationKind string

const (
	DestWebhook DestinationKind = "webhook"
	DestChannel DestinationKind = "channel"
	DestDirect  DestinationKind = "direct"
)

// Destination addresses one delivery. Fallback is only used for channel posts
// the bot may not perform.
type Destination struct {
	Kind     DestinationKind
	Address  string
	Fallback string
}

// IsWebhookURL reports whether target is an http(s) URI.
func IsWebhookURL(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	return strings.HasPrefix(t, "https://") || strings.HasPrefix(t, "http://")
}

// DestinationFor picks where a finished job's result goes.
func DestinationFor(j *Job) Destination {
	if j.ChannelID != "" {
		return Destination{Kind: DestChannel, Address: j.ChannelID, Fallback: j.DeliveryTarget}
	}
	return TargetDestination(j.DeliveryTarget)
}

// TargetDestination classifies a bare delivery target.
func TargetDestination(target string) Destination {
	if IsWebhookURL(target) {
		return Destination{Kind: DestWebhook, Address: strings.TrimSpace(target)}
	}
	return Destination{Kind: DestDirect, Address: strings.TrimSpace(target)}
}

// Payload is the result handed to a sink; each sink renders it.
type Payload struct {
	JobID       int64
	RequesterID string
	Prompt      string
	Body        string
	Note        string
}

// Outcome reports one delivery attempt.
type Outcome struct {
	Delivered  bool
	Via        DestinationKind
	StatusCode int
	Body       string
	Err        error
}

// Text renders the payload as chat markup: a question/answer pair, or the
// bare body when there is no prompt (shared records).
func (p Payload) Text() string {
	var b strings.Builder
	if p.Note != "" {
		b.WriteString(p.Note)
		b.WriteString("\n")
	}
	if p.Prompt != "" {
		b.WriteString("<@" + p.RequesterID + "> asked: " + p.Prompt + "\n>" + p.Body)
	} else {
		b.WriteString(p.Body)
	}
	return b.String()
}
