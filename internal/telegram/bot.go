package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/digkill/ReferralBot/internal/config"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/service"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ExportArchive keeps a copy of every generated export.
type ExportArchive interface {
	Upload(ctx context.Context, data []byte, contentType, name string) (string, error)
}

// UpdateFilter drops updates that were already handled.
type UpdateFilter interface {
	Seen(ctx context.Context, updateID int) (bool, error)
}

type Options struct {
	StartImagePath string
	Menu           config.MenuConfig
	Archive        ExportArchive
	Filter         UpdateFilter
}

// Inbound is a text message reduced to what the handlers need.
type Inbound struct {
	ChatID    int64
	UserID    int64
	MessageID int
	From      *tgbotapi.User
	Text      string
	Command   string
	Args      string
}

type Bot struct {
	opts  Options
	api   API
	log   zerolog.Logger
	users *service.UserService
	promo *service.PromoService
	admin *service.AdminService
	state *StateManager
	wg    sync.WaitGroup
}

func NewBot(opts Options, api API, log zerolog.Logger, users *service.UserService, promo *service.PromoService, admin *service.AdminService, state *StateManager) *Bot {
	if state == nil {
		state = NewStateManager()
	}
	return &Bot{
		opts:  opts,
		api:   api,
		log:   log,
		users: users,
		promo: promo,
		admin: admin,
		state: state,
	}
}

// Run polls for updates and handles each one on its own goroutine until ctx
// is cancelled, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Msg("telegram bot started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}(update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		}
	}
}

// HandleUpdate processes one update to completion. Shutdown does not cancel
// an update already being handled: store writes and replies run detached from
// ctx's cancellation.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("handler panic")
		}
	}()

	if b.opts.Filter != nil {
		seen, err := b.opts.Filter.Seen(ctx, update.UpdateID)
		if err != nil {
			b.log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("update dedup check failed")
		} else if seen {
			return
		}
	}

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.From == nil {
		return
	}
	in := &Inbound{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
		From:      msg.From,
		Text:      msg.Text,
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = msg.CommandArguments()
	}

	state := b.state.Get(in.ChatID)
	intent := Classify(in.Command, in.Text)
	b.log.Debug().Int64("chat_id", in.ChatID).Str("state", state.String()).Int("intent", int(intent)).Msg("dispatch")
	route(state, intent)(b, ctx, in)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !strings.HasPrefix(cb.Data, copyPromoPrefix) || cb.Message == nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "Неизвестный выбор")); err != nil {
			b.log.Error().Err(err).Msg("callback ack")
		}
		return
	}
	code := strings.TrimPrefix(cb.Data, copyPromoPrefix)
	chatID := cb.Message.Chat.ID
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, fmt.Sprintf("Промокод %s скопирован!", code))); err != nil {
		b.log.Error().Err(err).Msg("callback ack")
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("`%s`", code))
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.deliver(msg)

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		b.log.Error().Err(err).Str("code", code).Msg("render promo qr")
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "promo.png", Bytes: png})
	photo.Caption = "Поделитесь этим QR-кодом с друзьями"
	b.deliver(photo)
}

// SendText delivers a plain message; used by broadcasts.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%w: chat %d: %v", service.ErrDelivery, chatID, err)
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) {
	b.deliver(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendWithMarkup(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.deliver(msg)
}

func (b *Bot) reply(in *Inbound, text string, markup any) {
	msg := tgbotapi.NewMessage(in.ChatID, text)
	msg.ReplyToMessageID = in.MessageID
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.deliver(msg)
}

func (b *Bot) deliver(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Error().Err(err).Msg("send message")
	}
}

// showMainMenu sends the profile card and the role-specific keyboard.
func (b *Bot) showMainMenu(ctx context.Context, in *Inbound, footer string) {
	user, err := b.users.Get(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			b.sendText(in.ChatID, "Нажмите /start, чтобы зарегистрироваться.")
			return
		}
		b.log.Error().Err(err).Int64("telegram_id", in.UserID).Msg("load profile")
		b.sendText(in.ChatID, "Не удалось загрузить профиль, попробуйте позже.")
		return
	}
	b.sendWithMarkup(in.ChatID, profileText(user), profileKeyboard(user.PromoCode))
	b.sendWithMarkup(in.ChatID, footer, mainKeyboard(user.Role == models.RoleAdmin))
}

func (b *Bot) sendWelcome(chatID int64) {
	data, err := os.ReadFile(b.opts.StartImagePath)
	if err == nil {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "start.png", Bytes: data})
		photo.Caption = welcomeCaption
		photo.ReplyMarkup = skipKeyboard()
		if _, err = b.api.Send(photo); err == nil {
			return
		}
	}
	b.log.Warn().Err(err).Str("path", b.opts.StartImagePath).Msg("welcome photo unavailable")
	b.sendText(chatID, "Ошибка загрузки фото...")
	b.sendWithMarkup(chatID, "Введите промокод, если у вас есть, или нажмите «Пропустить»:", skipKeyboard())
}

func newUserFrom(in *Inbound) models.NewUser {
	u := models.NewUser{TelegramID: in.UserID, ChatID: in.ChatID}
	if in.From != nil {
		u.Name = in.From.FirstName
		u.LastName = in.From.LastName
		u.Username = in.From.UserName
	}
	return u
}
