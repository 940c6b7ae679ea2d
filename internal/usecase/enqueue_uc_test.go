package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
)

type enqueueFixture struct {
	repo *memJobRepo
	disp *fakeDispatcher
	dir  *fakeDirectory
	uc   *enqueueUC
}

func newEnqueueFixture(t *testing.T, cfg EnqueueConfig) *enqueueFixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &enqueueFixture{
		repo: newMemJobRepo(),
		disp: &fakeDispatcher{},
		dir:  &fakeDirectory{known: map[string]string{"@bob": "B"}},
	}
	f.uc = NewEnqueueUseCase(f.repo, f.disp, f.dir, cfg, &logger)
	f.uc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func cmdFrom(requester, text string) Command {
	return Command{Text: text, RequesterID: requester, Origin: "10.0.0.1", ResponseAddress: "https://hooks.example.com/" + requester}
}

func TestEnqueue_CreateReplyAndJob(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{})

	reply, err := f.uc.Handle(ctx, cmdFrom("A", "summarize X"))
	require.NoError(t, err)

	assert.Equal(t, IntentCreate, reply.Intent)
	assert.Equal(t, int64(1), reply.JobID)
	assert.True(t, strings.HasPrefix(reply.Text, "Request placed in queue with id: 1."), reply.Text)
	assert.Contains(t, reply.Text, "There are 1 items in the queue including yours.")
	assert.Contains(t, reply.Text, "`/gpt 1`")

	job, err := f.repo.FindByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)
	assert.Equal(t, "summarize X", job.Message)
	assert.Equal(t, "A", job.RequesterID)
	assert.Equal(t, "https://hooks.example.com/A", job.DeliveryTarget)
	assert.Empty(t, job.ChannelID)
	assert.Empty(t, job.Response)
	assert.True(t, strings.HasPrefix(job.Slug, "10.0.0.1/"), job.Slug)
}

func TestEnqueue_SlugOriginTrimmedByRunes(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{})

	cmd := cmdFrom("A", "hi")
	cmd.Origin = strings.Repeat("é", maxSlugOrigin+5)
	_, err := f.uc.Handle(ctx, cmd)
	require.NoError(t, err)

	job, err := f.repo.FindByID(ctx, nil, 1)
	require.NoError(t, err)
	origin, _, ok := strings.Cut(job.Slug, "/")
	require.True(t, ok, job.Slug)
	assert.Equal(t, strings.Repeat("é", maxSlugOrigin), origin)
	assert.True(t, utf8.ValidString(job.Slug))
}

func TestEnqueue_MessageLengthBoundary(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{})

	exact := strings.Repeat("é", model.MaxMessageLen)
	reply, err := f.uc.Handle(ctx, cmdFrom("A", exact))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.JobID)

	over := strings.Repeat("a", model.MaxMessageLen+1)
	reply, err = f.uc.Handle(ctx, cmdFrom("A", over))
	require.NoError(t, err)
	assert.Equal(t, "Prompt too long. Max characters in prompt = 3000", reply.Text)
	assert.Zero(t, reply.JobID)
	assert.Equal(t, 1, f.repo.count(), "over-long prompt must not reach the store")
}

func TestEnqueue_DeliveryTargetDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("response address wins", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{DefaultWebhookURL: "https://default.example.com"})
		_, err := f.uc.Handle(ctx, Command{Text: "hi", RequesterID: "A", ResponseAddress: "https://own.example.com", ChannelID: " C1 "})
		require.NoError(t, err)
		job, _ := f.repo.FindByID(ctx, nil, 1)
		assert.Equal(t, "https://own.example.com", job.DeliveryTarget)
		assert.Equal(t, "C1", job.ChannelID)
	})

	t.Run("configured webhook next", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{DefaultWebhookURL: "https://default.example.com"})
		_, err := f.uc.Handle(ctx, Command{Text: "hi", RequesterID: "A"})
		require.NoError(t, err)
		job, _ := f.repo.FindByID(ctx, nil, 1)
		assert.Equal(t, "https://default.example.com", job.DeliveryTarget)
	})

	t.Run("direct message last", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		_, err := f.uc.Handle(ctx, Command{Text: "hi", RequesterID: "A"})
		require.NoError(t, err)
		job, _ := f.repo.FindByID(ctx, nil, 1)
		assert.Equal(t, "A", job.DeliveryTarget)
	})
}

func TestEnqueue_HelpReportsQueueDepth(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{CommandName: "/ask"})
	f.repo.seed(model.Job{ID: 1, RequesterID: "A", State: model.JobQueued})
	f.repo.seed(model.Job{ID: 2, RequesterID: "B", State: model.JobQueued})
	f.repo.seed(model.Job{ID: 3, RequesterID: "B", State: model.JobCompleted, Result: 1, Response: "x"})

	for _, text := range []string{"", "help"} {
		reply, err := f.uc.Handle(ctx, cmdFrom("A", text))
		require.NoError(t, err)
		assert.Equal(t, IntentHelp, reply.Intent)
		assert.Contains(t, reply.Text, "*2 items*")
		assert.Contains(t, reply.Text, "`/ask [request_id]`")
		assert.Contains(t, reply.Text, "*3000 characters*")
	}
	assert.Equal(t, 3, f.repo.count())
}

func TestEnqueue_ListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{})
	for i := int64(1); i <= 7; i++ {
		f.repo.seed(model.Job{ID: i, RequesterID: "A", State: model.JobQueued})
	}
	f.repo.seed(model.Job{ID: 8, RequesterID: "B", State: model.JobQueued})

	reply, err := f.uc.Handle(ctx, cmdFrom("A", "list"))
	require.NoError(t, err)
	assert.Equal(t, "Your last 5 requests: 7, 6, 5, 4, 3", reply.Text)

	reply, err = f.uc.Handle(ctx, cmdFrom("C", "list"))
	require.NoError(t, err)
	assert.Equal(t, "You have no requests yet.", reply.Text)
}

func TestEnqueue_StatusQuery(t *testing.T) {
	ctx := context.Background()
	f := newEnqueueFixture(t, EnqueueConfig{DebugRequesterIDs: []string{"ADMIN"}})
	f.repo.seed(model.Job{ID: 7, Slug: "1.2.3.4/01H", RequesterID: "A", Message: "summarize X", State: model.JobCompleted, Result: 1, Response: "T"})
	f.repo.seed(model.Job{ID: 9, RequesterID: "B", Message: "other", State: model.JobQueued})

	t.Run("owner sees the full record", func(t *testing.T) {
		reply, err := f.uc.Handle(ctx, cmdFrom("A", "7"))
		require.NoError(t, err)
		assert.Equal(t, IntentStatus, reply.Intent)
		assert.Contains(t, reply.Text, "Request: 7")
		assert.Contains(t, reply.Text, "Text: summarize X")
		assert.Contains(t, reply.Text, "Response: T")
		assert.Contains(t, reply.Text, "Slug: 1.2.3.4/01H")
	})

	t.Run("repeated queries are identical", func(t *testing.T) {
		first, err := f.uc.Handle(ctx, cmdFrom("A", "7"))
		require.NoError(t, err)
		second, err := f.uc.Handle(ctx, cmdFrom("A", "7"))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("other requester is denied and sees own ids", func(t *testing.T) {
		reply, err := f.uc.Handle(ctx, cmdFrom("B", "7"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "Permission denied")
		assert.Contains(t, reply.Text, "Your last 1 requests: 9")
		assert.NotContains(t, reply.Text, "summarize X")

		job, _ := f.repo.FindByID(ctx, nil, 7)
		assert.Equal(t, model.JobCompleted, job.State)
	})

	t.Run("debug principal bypasses ownership", func(t *testing.T) {
		reply, err := f.uc.Handle(ctx, cmdFrom("ADMIN", "7"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "Response: T")
	})

	t.Run("missing id", func(t *testing.T) {
		reply, err := f.uc.Handle(ctx, cmdFrom("A", "404"))
		require.NoError(t, err)
		assert.Equal(t, "Request: 404 not found.", reply.Text)
	})

	assert.Equal(t, 2, f.repo.count(), "status queries never create jobs")
}

func TestEnqueue_Continuation(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds a new job from the latest request", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		f.repo.seed(model.Job{ID: 7, RequesterID: "A", Message: "summarize X", State: model.JobCompleted, Result: 1, Response: "T"})

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "7 now add detail"))
		require.NoError(t, err)
		require.Equal(t, int64(8), reply.JobID)

		job, _ := f.repo.FindByID(ctx, nil, 8)
		assert.Equal(t, "summarize X\nT\nnow add detail", job.Message)
		assert.Equal(t, model.JobQueued, job.State)
	})

	t.Run("truncates to the trailing characters", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		long := strings.Repeat("m", 2000)
		resp := strings.Repeat("r", 1500)
		f.repo.seed(model.Job{ID: 3, RequesterID: "A", Message: long, State: model.JobCompleted, Result: 1, Response: resp})

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "3 tail"))
		require.NoError(t, err)
		job, _ := f.repo.FindByID(ctx, nil, reply.JobID)
		assert.Equal(t, model.MaxMessageLen, model.MessageLen(job.Message))
		assert.True(t, strings.HasSuffix(job.Message, resp+"\ntail"))
	})

	t.Run("older request is refused", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		f.repo.seed(model.Job{ID: 7, RequesterID: "A", Message: "a", State: model.JobCompleted, Result: 1, Response: "T"})
		f.repo.seed(model.Job{ID: 8, RequesterID: "A", Message: "b", State: model.JobQueued})

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "7 more"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "Permission denied")
		assert.Contains(t, reply.Text, "id: 8")
		assert.Equal(t, 2, f.repo.count())
	})

	t.Run("someone else's request is refused", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		f.repo.seed(model.Job{ID: 7, RequesterID: "A", Message: "a", State: model.JobCompleted, Result: 1, Response: "T"})

		reply, err := f.uc.Handle(ctx, cmdFrom("B", "7 more"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "Permission denied")
		assert.Equal(t, 1, f.repo.count())
	})
}

func TestEnqueue_Share(t *testing.T) {
	ctx := context.Background()
	seed := func(f *enqueueFixture) {
		f.repo.seed(model.Job{ID: 7, RequesterID: "A", Message: "summarize X", State: model.JobCompleted, Result: 1, Response: "T"})
	}

	t.Run("delivers the record to the resolved recipient", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		seed(f)

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "share 7 with @bob"))
		require.NoError(t, err)
		assert.Equal(t, "Request 7 shared with @bob.", reply.Text)
		require.Len(t, f.disp.sent, 1)
		assert.Equal(t, model.Destination{Kind: model.DestDirect, Address: "B"}, f.disp.sent[0])
		assert.Contains(t, f.disp.payloads[0].Body, "Response: T")
		assert.Equal(t, 1, f.repo.count(), "sharing never creates a job")
	})

	t.Run("unknown recipient", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		seed(f)

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "share 7 with @nobody"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "I could not find @nobody")
		assert.Contains(t, reply.Text, "Usage:")
		assert.Empty(t, f.disp.sent)
	})

	t.Run("not the owner", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		seed(f)

		reply, err := f.uc.Handle(ctx, cmdFrom("B", "share 7 with @bob"))
		require.NoError(t, err)
		assert.Equal(t, IntentShare, reply.Intent)
		assert.Contains(t, reply.Text, "Permission denied")
		assert.Empty(t, f.disp.sent)
	})

	t.Run("delivery failure is reported", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		seed(f)
		f.disp.fail = true

		reply, err := f.uc.Handle(ctx, cmdFrom("A", "share 7 with @bob"))
		require.NoError(t, err)
		assert.Equal(t, "Could not deliver request 7 to @bob.", reply.Text)
	})

	t.Run("malformed command", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		reply, err := f.uc.Handle(ctx, cmdFrom("A", "share 7"))
		require.NoError(t, err)
		assert.Equal(t, IntentShareUsage, reply.Intent)
		assert.Equal(t, "Usage: `/gpt share [request_id] with [@user]`", reply.Text)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		reply, err := f.uc.Handle(ctx, cmdFrom("A", "share bob with @x"))
		require.NoError(t, err)
		assert.Equal(t, IntentShareUsage, reply.Intent)
		assert.Zero(t, reply.JobID)
		assert.Equal(t, 0, f.repo.count(), "malformed share is never queued")
	})
}

func TestEnqueue_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing requester", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		_, err := f.uc.Handle(ctx, Command{Text: "hi"})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("store failure surfaces as error", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		f.repo.errCreate = errors.New("db down")
		_, err := f.uc.Handle(ctx, cmdFrom("A", "hi"))
		assert.Error(t, err)
	})

	t.Run("count failure after create keeps the id", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		f.repo.errCount = errors.New("db flaky")
		reply, err := f.uc.Handle(ctx, cmdFrom("A", "hi"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), reply.JobID)
	})

	t.Run("status of non-positive id", func(t *testing.T) {
		f := newEnqueueFixture(t, EnqueueConfig{})
		_, err := f.uc.Status(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
