package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ReferralBot/internal/models"
)

const copyPromoPrefix = "copy_promo:"

var examTypes = []string{"ОГЭ", "ЕГЭ"}

var cities = []string{
	"Москва", "Санкт-Петербург", "Казань", "Екатеринбург",
	"Новосибирск", "Ростов-на-Дону", "Уфа", "Челябинск",
}

var subjects = []struct {
	name  string
	price int
}{
	{"математика", 3000},
	{"русский язык", 2800},
	{"физика", 3500},
	{"информатика", 4000},
}

func isExamType(text string) bool {
	for _, t := range examTypes {
		if text == t {
			return true
		}
	}
	return false
}

func isCity(text string) bool {
	for _, c := range cities {
		if text == c {
			return true
		}
	}
	return false
}

func subjectPrice(text string) (int, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, s := range subjects {
		if s.name == text {
			return s.price, true
		}
	}
	return 0, false
}

const aboutText = "Мы работаем с 2021 года и уже помогли БОЛЕЕ 500 ребятам поступить в вузы с отличными баллами\n\n" +
	"ПОЧЕМУ МЫ ЛУЧШЕ ‼️\n" +
	"➖В отличие от «готовых ответов» от мошенников, мы получаем варианты КИМ одни из первых за 10-12 часов до экзамена;\n" +
	"➖Наша команда репетиторов решает их в течение 2–3 часов и передаёт вам свежие, полностью проверенные решения;\n" +
	"➖Мы полностью РУЧАЕМСЯ ЗА РЕЗУЛЬТАТ: если что-то пойдёт не так, вернём вам полную оплату без лишних вопросов;\n" +
	"Боишься, что не сдашь? ПЕРЕСТРАХУЙСЯ С НАМИ! Мы понимаем насколько этот экзамен может быть важен для вас."

const welcomeCaption = "👋 Привет от команды ExamBot!\n" +
	"Вводи промокод и получай все свежие ответы за пару часов до экзамена, чтобы спокойно готовиться и уверенно идти на испытание!"

func profileText(u *models.User) string {
	lastName := u.LastName
	if lastName == "" {
		lastName = "Не указана"
	}
	return fmt.Sprintf("👤 Ваш профиль:\nИмя: %s\nФамилия: %s\nПромокод: %s\nПриглашённые: %d",
		u.Name, lastName, u.PromoCode, u.ReferralsCount)
}

func referralSummaryLines(s models.ReferralSummary) []string {
	return []string{
		fmt.Sprintf("Приглашённые: %d", s.ReferralsCount),
		fmt.Sprintf("Оплатили: %d", s.PaidReferralsCount),
		fmt.Sprintf("Общий доход от рефералов: %s руб.", s.ReferralIncome.StringFixed(2)),
	}
}

func profileKeyboard(promoCode string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Копировать промокод", copyPromoPrefix+promoCode),
		),
	)
}

func mainKeyboard(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	var labels []string
	if isAdmin {
		labels = []string{btnExportUsers, btnReferralLookup, btnBroadcast}
	} else {
		labels = []string{btnGroup, btnReviews, btnAbout, btnCatalog, btnJob, btnManager}
	}
	return columnKeyboard(labels...)
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return columnKeyboard(btnSkip)
}

func retryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return columnKeyboard(btnTryAgain, btnGoToMenu)
}

func examKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(examTypes[0]), tgbotapi.NewKeyboardButton(examTypes[1])),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return columnKeyboard(append(append([]string{}, cities...), btnBack)...)
}

func subjectKeyboard() tgbotapi.ReplyKeyboardMarkup {
	labels := make([]string, 0, len(subjects)+1)
	for _, s := range subjects {
		labels = append(labels, s.name)
	}
	return columnKeyboard(append(labels, btnBack)...)
}

func columnKeyboard(labels ...string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(l)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
