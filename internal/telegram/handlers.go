package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ReferralBot/internal/export"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/service"
)

const (
	msgMainMenu        = "Главное меню:"
	msgNoRights        = "У вас нет прав."
	msgUserNotFound    = "Пользователь не найден."
	msgInternalError   = "Произошла ошибка, попробуйте позже."
	msgEnterPromo      = "Введите промокод:"
	msgInvalidPromo    = "Неверный промокод. Хотите попробовать снова или перейти в меню?"
	msgSelfReferral    = "Нельзя использовать собственный промокод. Хотите попробовать снова или перейти в меню?"
	msgPromoUsed       = "Вы уже использовали промокод ранее."
	msgPromoAccepted   = "Спасибо! Промокод принят. Вы перешли в главное меню."
	msgAskTelegramID   = "Введите Telegram ID пользователя:"
	msgBadTelegramID   = "Telegram ID должен быть числом. Попробуйте ещё раз или нажмите «Назад»."
	msgAskBroadcast    = "Введите текст для рассылки:"
	msgEmptyBroadcast  = "Текст рассылки не может быть пустым."
	msgBroadcastStart  = "Рассылка начата..."
	msgBroadcastDone   = "Рассылка завершена. Возвращаюсь в главное меню."
	msgBadAmount       = "Неверная сумма."
	msgUnknown         = "Не понимаю. Нажмите /menu, чтобы открыть главное меню."
	msgChooseExam      = "Выберите тип экзамена:"
	msgChooseCity      = "Выберите город:\n(если вашего нет, напишите менеджеру)"
	msgChooseSubject   = "Выберите предмет:"
	msgRegisterFailure = "Не удалось зарегистрироваться, попробуйте позже."
)

func (b *Bot) handleStart(ctx context.Context, in *Inbound) {
	if _, err := b.users.Ensure(ctx, newUserFrom(in)); err != nil {
		b.log.Error().Err(err).Int64("telegram_id", in.UserID).Msg("register on start")
		b.sendText(in.ChatID, msgRegisterFailure)
		return
	}
	b.sendWelcome(in.ChatID)
	b.state.Set(in.ChatID, StateAwaitingPromo)
}

// handleShowMenu also ends whatever flow the chat was in.
func (b *Bot) handleShowMenu(ctx context.Context, in *Inbound) {
	b.state.Clear(in.ChatID)
	b.showMainMenu(ctx, in, msgMainMenu)
}

func (b *Bot) handlePromoInput(ctx context.Context, in *Inbound) {
	result, err := b.promo.Redeem(ctx, in.UserID, in.Text)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			b.state.Clear(in.ChatID)
			b.sendText(in.ChatID, "Нажмите /start, чтобы зарегистрироваться.")
			return
		}
		b.log.Error().Err(err).Int64("telegram_id", in.UserID).Msg("redeem promo")
		b.sendText(in.ChatID, msgInternalError)
		return
	}

	switch result.Outcome {
	case models.RedeemAccepted:
		b.state.Clear(in.ChatID)
		b.showMainMenu(ctx, in, msgPromoAccepted)
	case models.RedeemAlreadyUsed:
		b.state.Clear(in.ChatID)
		b.showMainMenu(ctx, in, msgPromoUsed)
	case models.RedeemSelfReferral:
		b.state.Set(in.ChatID, StateAwaitingPromoRetryChoice)
		b.sendWithMarkup(in.ChatID, msgSelfReferral, retryKeyboard())
	default:
		b.state.Set(in.ChatID, StateAwaitingPromoRetryChoice)
		b.sendWithMarkup(in.ChatID, msgInvalidPromo, retryKeyboard())
	}
}

func (b *Bot) handleRetryPromo(_ context.Context, in *Inbound) {
	b.state.Set(in.ChatID, StateAwaitingPromo)
	b.sendWithMarkup(in.ChatID, msgEnterPromo, skipKeyboard())
}

func (b *Bot) handleRetryChoiceReminder(_ context.Context, in *Inbound) {
	b.sendWithMarkup(in.ChatID, msgInvalidPromo, retryKeyboard())
}

func (b *Bot) handleExportUsers(ctx context.Context, in *Inbound) {
	users, err := b.admin.Export(ctx, in.UserID)
	if err != nil {
		b.replyAdminError(in, err, "")
		return
	}
	data, err := export.BuildXLSX(users)
	if err != nil {
		b.log.Error().Err(err).Msg("build users export")
		b.sendText(in.ChatID, msgInternalError)
		return
	}

	doc := tgbotapi.NewDocument(in.ChatID, tgbotapi.FileBytes{Name: export.FileName, Bytes: data})
	doc.Caption = fmt.Sprintf("Пользователей: %d", len(users))
	b.deliver(doc)

	if b.opts.Archive != nil {
		url, err := b.opts.Archive.Upload(ctx, data, export.ContentType, export.FileName)
		if err != nil {
			b.log.Warn().Err(err).Msg("archive users export")
			return
		}
		b.log.Info().Str("url", url).Int("users", len(users)).Msg("users export archived")
	}
}

func (b *Bot) handleRequestReferralTarget(ctx context.Context, in *Inbound) {
	if err := b.admin.Authorize(ctx, in.UserID); err != nil {
		b.replyAdminError(in, err, "")
		return
	}
	b.state.Set(in.ChatID, StateAwaitingReferralTarget)
	b.sendWithMarkup(in.ChatID, msgAskTelegramID, columnKeyboard(btnBack))
}

func (b *Bot) handleReferralTarget(ctx context.Context, in *Inbound) {
	summary, err := b.admin.ReferralLookup(ctx, in.UserID, in.Text)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			b.sendText(in.ChatID, msgBadTelegramID)
			return
		}
		b.state.Clear(in.ChatID)
		b.replyAdminError(in, err, "")
		return
	}
	for _, line := range referralSummaryLines(summary) {
		b.sendText(in.ChatID, line)
	}
	b.state.Clear(in.ChatID)
	b.showMainMenu(ctx, in, msgMainMenu)
}

func (b *Bot) handleRequestBroadcastText(ctx context.Context, in *Inbound) {
	if err := b.admin.Authorize(ctx, in.UserID); err != nil {
		b.replyAdminError(in, err, "")
		return
	}
	b.state.Set(in.ChatID, StateAwaitingBroadcastText)
	b.sendWithMarkup(in.ChatID, msgAskBroadcast, columnKeyboard(btnBack))
}

func (b *Bot) handleBroadcastText(ctx context.Context, in *Inbound) {
	if err := b.admin.Authorize(ctx, in.UserID); err != nil {
		b.state.Clear(in.ChatID)
		b.replyAdminError(in, err, "")
		return
	}
	b.sendText(in.ChatID, msgBroadcastStart)
	report, err := b.admin.Broadcast(ctx, in.UserID, in.Text, b)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			b.sendText(in.ChatID, msgEmptyBroadcast)
			return
		}
		b.state.Clear(in.ChatID)
		b.replyAdminError(in, err, "")
		return
	}
	b.state.Clear(in.ChatID)
	b.sendText(in.ChatID, fmt.Sprintf("%s\nДоставлено: %d из %d", msgBroadcastDone, report.Sent, report.Total))
	b.showMainMenu(ctx, in, msgMainMenu)
}

func (b *Bot) handleSetAdmin(ctx context.Context, in *Inbound) {
	target, err := b.admin.GrantAdmin(ctx, in.UserID, in.Args)
	if err != nil {
		b.replyAdminError(in, err, service.UsageSetAdmin)
		return
	}
	b.reply(in, fmt.Sprintf("Пользователь %d назначен администратором.", target), nil)
}

func (b *Bot) handleSetBalance(ctx context.Context, in *Inbound) {
	target, amount, err := b.admin.SetBalance(ctx, in.UserID, in.Args)
	if err != nil {
		b.replyAdminError(in, err, service.UsageSetBalance)
		return
	}
	b.reply(in, fmt.Sprintf("Баланс пользователя %s установлен на %s руб.", target, amount.StringFixed(2)), nil)
}

// replyAdminError turns an admin-operation error into the chat reply.
func (b *Bot) replyAdminError(in *Inbound, err error, usage string) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		b.reply(in, msgNoRights, nil)
	case errors.As(err, &verr):
		if verr.Usage == service.UsageAmount {
			b.reply(in, msgBadAmount, nil)
			return
		}
		if usage == "" {
			usage = verr.Usage
		}
		b.reply(in, "Используйте: "+usage, nil)
	case errors.Is(err, service.ErrNotFound):
		b.reply(in, msgUserNotFound, nil)
	default:
		b.log.Error().Err(err).Int64("telegram_id", in.UserID).Msg("admin operation")
		b.reply(in, msgInternalError, nil)
	}
}

func (b *Bot) handleGroup(_ context.Context, in *Inbound) {
	b.reply(in, "Ссылка на нашу группу: "+b.opts.Menu.GroupURL, nil)
}

func (b *Bot) handleReviews(_ context.Context, in *Inbound) {
	b.reply(in, fmt.Sprintf("💬 Ознакомьтесь с отзывами наших выпускников в группе %s, они уже оценили качество и надёжность сервиса", b.opts.Menu.ReviewsHandle), nil)
}

func (b *Bot) handleAbout(_ context.Context, in *Inbound) {
	b.reply(in, aboutText, nil)
}

func (b *Bot) handleCatalog(_ context.Context, in *Inbound) {
	b.reply(in, msgChooseExam, examKeyboard())
}

func (b *Bot) handleJob(_ context.Context, in *Inbound) {
	b.reply(in, "Хочешь работать у нас? Свяжитесь с менеджером: "+b.opts.Menu.ManagerHandle, nil)
}

func (b *Bot) handleManager(_ context.Context, in *Inbound) {
	b.reply(in, "Связаться с менеджером: "+b.opts.Menu.ManagerHandle, nil)
}

func (b *Bot) handleExamType(_ context.Context, in *Inbound) {
	b.reply(in, msgChooseCity, cityKeyboard())
}

func (b *Bot) handleCity(_ context.Context, in *Inbound) {
	b.reply(in, msgChooseSubject, subjectKeyboard())
}

func (b *Bot) handleSubject(_ context.Context, in *Inbound) {
	price, _ := subjectPrice(in.Text)
	b.reply(in, fmt.Sprintf("Цена за %s: %d руб.\nВозможность оплатить со скидкой через менеджера.", in.Text, price), nil)
}

func (b *Bot) handleUnknown(_ context.Context, in *Inbound) {
	b.reply(in, msgUnknown, nil)
}
