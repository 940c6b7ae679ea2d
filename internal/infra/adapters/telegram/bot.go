package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/logging"
	"gpt-queue/internal/infra/metrics"
	"gpt-queue/internal/infra/worker"
	"gpt-queue/internal/usecase"
)

const (
	origin           = "telegram"
	maxReplyRunes    = 4096
	apologyReply     = "Sorry, something went wrong while handling your request. Please try again later."
	rateLimitedReply = "Rate limit exceeded. Please try again later."
)

// botAPI is the part of *tgbotapi.BotAPI the front end uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot long-polls Telegram and feeds "/<command> <text>" messages to the
// enqueue service.
type Bot struct {
	api       botAPI
	command   string
	username  string
	workers   int
	enqueue   usecase.EnqueueUseCase
	directory adapter.RecipientDirectory
	limiter   adapter.CommandLimiter
	log       *zerolog.Logger
}

func NewBot(
	api *tgbotapi.BotAPI,
	cfg config.BotConfig,
	enqueue usecase.EnqueueUseCase,
	directory adapter.RecipientDirectory,
	limiter adapter.CommandLimiter,
	logger *zerolog.Logger,
) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api is nil")
	}
	if enqueue == nil {
		return nil, errors.New("enqueue use case is nil")
	}
	return newBot(api, api.Self.UserName, cfg, enqueue, directory, limiter, logger), nil
}

func newBot(
	api botAPI,
	username string,
	cfg config.BotConfig,
	enqueue usecase.EnqueueUseCase,
	directory adapter.RecipientDirectory,
	limiter adapter.CommandLimiter,
	logger *zerolog.Logger,
) *Bot {
	l := logger.With().Str("component", "telegram").Logger()
	return &Bot{
		api:       api,
		command:   cfg.Command,
		username:  username,
		workers:   cfg.Workers,
		enqueue:   enqueue,
		directory: directory,
		limiter:   limiter,
		log:       &l,
	}
}

// StartPolling blocks until ctx is cancelled. Updates are handled on a
// worker pool so one slow store call does not stall the receive loop.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	pool := worker.NewPool(b.workers, b.log)
	pool.Start(ctx)
	defer pool.Stop()

	b.log.Info().Str("command", b.command).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if err := pool.Submit(func(ctx context.Context) error {
				return b.handleUpdate(ctx, up)
			}); err != nil {
				b.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("dropping update")
			}
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, up tgbotapi.Update) error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	cmd, ok := CommandFromMessage(msg, b.command, b.username)
	if !ok {
		return nil
	}

	ctx = logging.WithRequesterID(ctx, cmd.RequesterID)
	log := logging.With(ctx, b.log)

	if b.limiter != nil {
		allowed, err := b.limiter.Allow(ctx, origin, cmd.RequesterID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit check")
		} else if !allowed {
			metrics.IncCommand(origin, "rate_limited")
			return b.reply(msg, rateLimitedReply)
		}
	}

	if cmd.RequesterName != "" && b.directory != nil {
		if err := b.directory.Remember(ctx, cmd.RequesterName, cmd.RequesterID); err != nil {
			log.Warn().Err(err).Msg("remember requester handle")
		}
	}

	reply, err := b.enqueue.Handle(ctx, cmd)
	if err != nil {
		log.Error().Err(err).Msg("handle command")
		return b.reply(msg, apologyReply)
	}
	metrics.IncCommand(origin, string(reply.Intent))
	if reply.JobID > 0 {
		metrics.IncJobEnqueued()
	}
	return b.reply(msg, reply.Text)
}

func (b *Bot) reply(to *tgbotapi.Message, text string) error {
	out := tgbotapi.NewMessage(to.Chat.ID, clip(text))
	out.ReplyToMessageID = to.MessageID
	_, err := b.api.Send(out)
	return err
}

// CommandFromMessage maps "/<command>[@bot] <text>" to a Command. Group and
// channel chats become the job's channel; the result address is always the
// sender's private chat.
func CommandFromMessage(m *tgbotapi.Message, command, botUsername string) (usecase.Command, bool) {
	if m == nil || m.From == nil || m.Chat == nil || m.From.IsBot {
		return usecase.Command{}, false
	}
	head, rest, _ := strings.Cut(strings.TrimSpace(m.Text), " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		if botUsername != "" && !strings.EqualFold(head[at+1:], botUsername) {
			return usecase.Command{}, false
		}
		head = head[:at]
	}
	if !strings.EqualFold(head, command) {
		return usecase.Command{}, false
	}

	sender := strconv.FormatInt(m.From.ID, 10)
	cmd := usecase.Command{
		Text:            strings.TrimSpace(rest),
		RequesterID:     sender,
		RequesterName:   m.From.UserName,
		ResponseAddress: sender,
		Origin:          origin,
	}
	if !m.Chat.IsPrivate() {
		cmd.ChannelID = strconv.FormatInt(m.Chat.ID, 10)
	}
	return cmd, true
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxReplyRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxReplyRunes])
}
