package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/domain/ports/repository"
)

// Compile-time check
var _ EnqueueUseCase = (*enqueueUC)(nil)

const maxSlugOrigin = 36

// Command is one inbound command as delivered by a front end.
type Command struct {
	Text            string
	RequesterID     string
	RequesterName   string
	ChannelID       string
	ResponseAddress string
	Origin          string
}

// Reply is the synchronous answer to a Command. JobID is set only for IntentCreate.
type Reply struct {
	Text   string
	Intent IntentKind
	JobID  int64
}

type EnqueueConfig struct {
	CommandName       string
	DefaultWebhookURL string
	DebugRequesterIDs []string
	RecentLimit       int
}

type EnqueueUseCase interface {
	Handle(ctx context.Context, cmd Command) (Reply, error)
	Status(ctx context.Context, id int64) (*model.Job, error)
}

type enqueueUC struct {
	jobs       repository.JobRepository
	dispatcher adapter.Dispatcher
	directory  adapter.RecipientDirectory
	cfg        EnqueueConfig
	debug      map[string]struct{}
	now        func() time.Time
	log        *zerolog.Logger
}

func NewEnqueueUseCase(
	jobs repository.JobRepository,
	dispatcher adapter.Dispatcher,
	directory adapter.RecipientDirectory,
	cfg EnqueueConfig,
	logger *zerolog.Logger,
) *enqueueUC {
	if cfg.CommandName == "" {
		cfg.CommandName = "/gpt"
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	debug := make(map[string]struct{}, len(cfg.DebugRequesterIDs))
	for _, id := range cfg.DebugRequesterIDs {
		debug[id] = struct{}{}
	}
	l := logger.With().Str("component", "EnqueueUC").Logger()
	return &enqueueUC{
		jobs:       jobs,
		dispatcher: dispatcher,
		directory:  directory,
		cfg:        cfg,
		debug:      debug,
		now:        time.Now,
		log:        &l,
	}
}

func (u *enqueueUC) Handle(ctx context.Context, cmd Command) (Reply, error) {
	if strings.TrimSpace(cmd.RequesterID) == "" {
		return Reply{}, domain.ErrInvalidArgument
	}
	in := Classify(cmd.Text)

	switch in.Kind {
	case IntentHelp:
		return u.help(ctx)
	case IntentList:
		return u.list(ctx, cmd)
	case IntentStatus:
		return u.status(ctx, cmd, in)
	case IntentShareUsage:
		return Reply{Intent: IntentShareUsage, Text: u.shareUsage()}, nil
	case IntentShare:
		return u.share(ctx, cmd, in)
	case IntentContinue:
		text, denied, err := u.continuation(ctx, cmd, in)
		if err != nil || denied != nil {
			return derefReply(denied), err
		}
		return u.create(ctx, cmd, text)
	default:
		return u.create(ctx, cmd, in.Text)
	}
}

func (u *enqueueUC) Status(ctx context.Context, id int64) (*model.Job, error) {
	if id <= 0 {
		return nil, domain.ErrNotFound
	}
	return u.jobs.FindByID(ctx, nil, id)
}

func (u *enqueueUC) help(ctx context.Context) (Reply, error) {
	count, err := u.jobs.CountByState(ctx, nil, model.JobQueued)
	if err != nil {
		return Reply{}, fmt.Errorf("count queued: %w", err)
	}
	c := u.cfg.CommandName
	var b strings.Builder
	fmt.Fprintf(&b, ">`%s [your_prompt]` will queue a *new* request with the GPT service. e.g. `%s give me a chocolate cake recipe`\n", c, c)
	fmt.Fprintf(&b, ">`%s [request_id]` will provide the status of a *queued* request e.g. `%s 25`\n", c, c)
	fmt.Fprintf(&b, ">`%s [request_id] [your_next_prompt]` will continue a *previous* dialogue e.g. `%s 25 now give me baking instructions`\n", c, c)
	fmt.Fprintf(&b, ">`%s share [request_id] with [@user]` will send a request and its answer to someone else\n", c)
	fmt.Fprintf(&b, ">`%s list` will list your last %d requests\n", c, u.cfg.RecentLimit)
	fmt.Fprintf(&b, "Max prompt length is *%d characters*\n", model.MaxMessageLen)
	fmt.Fprintf(&b, "There are currently *%d items* in the queue awaiting processing.", count)
	return Reply{Intent: IntentHelp, Text: b.String()}, nil
}

func (u *enqueueUC) list(ctx context.Context, cmd Command) (Reply, error) {
	recent, err := u.recentIDs(ctx, cmd.RequesterID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Intent: IntentList, Text: recent}, nil
}

func (u *enqueueUC) status(ctx context.Context, cmd Command, in Intent) (Reply, error) {
	job, denied, err := u.ownedJob(ctx, cmd, in.JobID, in.Text)
	if err != nil || denied != nil {
		return derefReply(denied), err
	}
	return Reply{Intent: IntentStatus, Text: model.FormatRecord(job)}, nil
}

func (u *enqueueUC) share(ctx context.Context, cmd Command, in Intent) (Reply, error) {
	job, denied, err := u.ownedJob(ctx, cmd, in.JobID, fmt.Sprintf("%d", in.JobID))
	if err != nil || denied != nil {
		if denied != nil {
			denied.Intent = IntentShare
		}
		return derefReply(denied), err
	}

	recipientID, err := u.directory.Resolve(ctx, in.Recipient)
	if err != nil {
		if !errors.Is(err, domain.ErrRecipientUnknown) {
			u.log.Error().Err(err).Str("recipient", in.Recipient).Msg("recipient lookup failed")
		}
		return Reply{
			Intent: IntentShareUsage,
			Text:   fmt.Sprintf("I could not find %s.\n%s", in.Recipient, u.shareUsage()),
		}, nil
	}

	out := u.dispatcher.Deliver(ctx, model.Destination{Kind: model.DestDirect, Address: recipientID}, model.Payload{
		JobID:       job.ID,
		RequesterID: cmd.RequesterID,
		Body:        model.FormatRecord(job),
		Note:        fmt.Sprintf("<@%s> shared request %d with you.", cmd.RequesterID, job.ID),
	})
	if !out.Delivered {
		u.log.Warn().Err(out.Err).Int64("job_id", job.ID).Int("status_code", out.StatusCode).Msg("share delivery failed")
		return Reply{Intent: IntentShare, Text: fmt.Sprintf("Could not deliver request %d to %s.", job.ID, in.Recipient)}, nil
	}
	return Reply{Intent: IntentShare, Text: fmt.Sprintf("Request %d shared with %s.", job.ID, in.Recipient)}, nil
}

// continuation builds the seeded prompt, or a denial when the id is not the
// requester's most recent job.
func (u *enqueueUC) continuation(ctx context.Context, cmd Command, in Intent) (string, *Reply, error) {
	recent, err := u.jobs.ListRecentByRequester(ctx, nil, cmd.RequesterID, 1)
	if err != nil {
		return "", nil, fmt.Errorf("latest job: %w", err)
	}
	if len(recent) == 0 {
		return "", &Reply{
			Intent: IntentContinue,
			Text:   fmt.Sprintf("Permission denied: you can only continue your own most recent request, and you have none yet. Type `%s help` for usage.", u.cfg.CommandName),
		}, nil
	}
	last := recent[0]
	if last.ID != in.JobID {
		return "", &Reply{
			Intent: IntentContinue,
			Text:   fmt.Sprintf("Permission denied: you can only continue your own most recent request (id: %d).", last.ID),
		}, nil
	}
	text := last.Message + "\n" + last.Response + "\n" + in.Text
	return model.TrimToTrailing(text, model.MaxMessageLen), nil, nil
}

func (u *enqueueUC) create(ctx context.Context, cmd Command, text string) (Reply, error) {
	if model.MessageLen(text) > model.MaxMessageLen {
		return Reply{
			Intent: IntentCreate,
			Text:   fmt.Sprintf("Prompt too long. Max characters in prompt = %d", model.MaxMessageLen),
		}, nil
	}

	now := u.now()
	job := model.NewJob(u.slug(cmd.Origin, now), text, cmd.RequesterID, strings.TrimSpace(cmd.ChannelID), u.deliveryTarget(cmd), now)
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return Reply{}, fmt.Errorf("create job: %w", err)
	}

	count, err := u.jobs.CountByState(ctx, nil, model.JobQueued)
	if err != nil {
		// the job exists; a missing depth figure should not hide its id
		u.log.Warn().Err(err).Int64("job_id", job.ID).Msg("count queued after create")
		count = 1
	}
	u.log.Info().Int64("job_id", job.ID).Str("requester_id", cmd.RequesterID).Int("queue_depth", count).Msg("job enqueued")

	return Reply{
		Intent: IntentCreate,
		JobID:  job.ID,
		Text: fmt.Sprintf("Request placed in queue with id: %d.\nThere are %d items in the queue including yours.\nTo query the status of this request, type `%s %d`",
			job.ID, count, u.cfg.CommandName, job.ID),
	}, nil
}

// ownedJob loads id and checks the caller may see it. A non-nil Reply means
// the lookup ended in a user-facing refusal.
func (u *enqueueUC) ownedJob(ctx context.Context, cmd Command, id int64, idText string) (*model.Job, *Reply, error) {
	job, err := u.Status(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &Reply{Intent: IntentStatus, Text: fmt.Sprintf("Request: %s not found.", idText)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find job %d: %w", id, err)
	}
	if !job.OwnedBy(cmd.RequesterID) && !u.isDebug(cmd.RequesterID) {
		recent, err := u.recentIDs(ctx, cmd.RequesterID)
		if err != nil {
			return nil, nil, err
		}
		return nil, &Reply{
			Intent: IntentStatus,
			Text:   fmt.Sprintf("Permission denied: request %d belongs to another user.\n%s", job.ID, recent),
		}, nil
	}
	return job, nil, nil
}

func (u *enqueueUC) recentIDs(ctx context.Context, requesterID string) (string, error) {
	jobs, err := u.jobs.ListRecentByRequester(ctx, nil, requesterID, u.cfg.RecentLimit)
	if err != nil {
		return "", fmt.Errorf("recent jobs: %w", err)
	}
	if len(jobs) == 0 {
		return "You have no requests yet.", nil
	}
	return fmt.Sprintf("Your last %d requests: %s", len(jobs), model.FormatIDs(jobs)), nil
}

// deliveryTarget: caller's response address, else the default webhook, else a
// direct message to the requester.
func (u *enqueueUC) deliveryTarget(cmd Command) string {
	if t := strings.TrimSpace(cmd.ResponseAddress); t != "" {
		return t
	}
	if u.cfg.DefaultWebhookURL != "" {
		return u.cfg.DefaultWebhookURL
	}
	return cmd.RequesterID
}

func (u *enqueueUC) slug(origin string, now time.Time) string {
	origin = strings.TrimSpace(origin)
	if r := []rune(origin); len(r) > maxSlugOrigin {
		origin = string(r[:maxSlugOrigin])
	}
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return origin + "/" + id.String()
}

func (u *enqueueUC) shareUsage() string {
	return fmt.Sprintf("Usage: `%s share [request_id] with [@user]`", u.cfg.CommandName)
}

func (u *enqueueUC) isDebug(requesterID string) bool {
	_, ok := u.debug[requesterID]
	return ok
}

func derefReply(r *Reply) Reply {
	if r == nil {
		return Reply{}
	}
	return *r
}
