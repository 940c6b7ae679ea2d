package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.ChatPlatform = (*TelegramPlatform)(nil)

// Telegram caps a message at 4096 characters.
const maxTelegramText = 4096

// botAPI is the part of *tgbotapi.BotAPI the platform uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// TelegramPlatform posts results to Telegram chats. Channel ids are either
// numeric chat ids or "@channelusername".
type TelegramPlatform struct {
	bot    botAPI
	selfID int64
}

func NewTelegramPlatform(bot *tgbotapi.BotAPI) *TelegramPlatform {
	return &TelegramPlatform{bot: bot, selfID: bot.Self.ID}
}

func (t *TelegramPlatform) IsMember(ctx context.Context, channelID string) (bool, error) {
	cfg := tgbotapi.GetChatMemberConfig{ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: t.selfID}}
	if id, ok := numericID(channelID); ok {
		cfg.ChatConfigWithUser.ChatID = id
	} else {
		cfg.ChatConfigWithUser.SuperGroupUsername = channelID
	}

	m, err := t.bot.GetChatMember(cfg)
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && (tgErr.Code == 400 || tgErr.Code == 403) {
			// chat not found or bot kicked: not a member
			return false, nil
		}
		return false, err
	}
	switch m.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return m.CanSendMessages, nil
	default:
		return false, nil
	}
}

func (t *TelegramPlatform) PostToChannel(ctx context.Context, channelID string, p model.Payload) model.Outcome {
	var msg tgbotapi.MessageConfig
	if id, ok := numericID(channelID); ok {
		msg = tgbotapi.NewMessage(id, clip(p.Text()))
	} else {
		msg = tgbotapi.NewMessageToChannel(channelID, clip(p.Text()))
	}
	return t.send(msg, model.DestChannel)
}

func (t *TelegramPlatform) SendDirect(ctx context.Context, recipientID string, p model.Payload) model.Outcome {
	id, ok := numericID(recipientID)
	if !ok {
		return model.Outcome{Via: model.DestDirect, Err: fmt.Errorf("%w: %q", domain.ErrUnsupportedTarget, recipientID)}
	}
	return t.send(tgbotapi.NewMessage(id, clip(p.Text())), model.DestDirect)
}

func (t *TelegramPlatform) send(c tgbotapi.Chattable, via model.DestinationKind) model.Outcome {
	out := model.Outcome{Via: via}
	if _, err := t.bot.Send(c); err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			out.StatusCode = tgErr.Code
			out.Body = tgErr.Message
		}
		out.Err = err
		return out
	}
	out.Delivered = true
	out.StatusCode = 200
	return out
}

func numericID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxTelegramText {
		return s
	}
	return string(r[:maxTelegramText-1]) + "…"
}
