package telegram

import (
	"strings"
)

type Intent int

const (
	IntentText Intent = iota
	IntentStart
	IntentMenu
	IntentSkip
	IntentTryAgain
	IntentGoToMenu
	IntentBack
	IntentExportUsers
	IntentReferralLookup
	IntentBroadcast
	IntentSetAdmin
	IntentSetBalance
	IntentGroup
	IntentReviews
	IntentAbout
	IntentCatalog
	IntentJob
	IntentManager
	IntentExamType
	IntentCity
	IntentSubject
	IntentUnknownCommand
)

const (
	btnSkip           = "Пропустить"
	btnTryAgain       = "Попробовать снова"
	btnGoToMenu       = "Перейти в меню"
	btnBack           = "Назад"
	btnExportUsers    = "Посмотреть пользователей"
	btnReferralLookup = "Проверить количество людей"
	btnBroadcast      = "Сделать рассылку"
	btnGroup          = "1. Наша группа"
	btnReviews        = "2. Наши отзывы"
	btnAbout          = "3. О нас"
	btnCatalog        = "4. Каталог"
	btnJob            = "5. Устроиться к нам на работу"
	btnManager        = "6. Контакт с менеджером"
)

var buttonIntents = map[string]Intent{
	btnSkip:           IntentSkip,
	btnTryAgain:       IntentTryAgain,
	btnGoToMenu:       IntentGoToMenu,
	btnBack:           IntentBack,
	btnExportUsers:    IntentExportUsers,
	btnReferralLookup: IntentReferralLookup,
	btnBroadcast:      IntentBroadcast,
	btnGroup:          IntentGroup,
	btnReviews:        IntentReviews,
	btnAbout:          IntentAbout,
	btnCatalog:        IntentCatalog,
	btnJob:            IntentJob,
	btnManager:        IntentManager,
}

var commandIntents = map[string]Intent{
	"start":      IntentStart,
	"menu":       IntentMenu,
	"setadmin":   IntentSetAdmin,
	"setbalance": IntentSetBalance,
}

// Classify maps an inbound message to an intent. command is the bot command
// without the slash, empty for plain text.
func Classify(command, text string) Intent {
	if command != "" {
		if intent, ok := commandIntents[strings.ToLower(command)]; ok {
			return intent
		}
		return IntentUnknownCommand
	}
	text = strings.TrimSpace(text)
	if intent, ok := buttonIntents[text]; ok {
		return intent
	}
	if isExamType(text) {
		return IntentExamType
	}
	if isCity(text) {
		return IntentCity
	}
	if _, ok := subjectPrice(text); ok {
		return IntentSubject
	}
	return IntentText
}
