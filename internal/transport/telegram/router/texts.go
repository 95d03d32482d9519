package router

// User-facing texts. The bot speaks Russian to its chats.
const (
	textUnknownCommand = "Неизвестная команда. Попробуйте /help"
	textUnauthorized   = "Недостаточно прав."
	textBusy           = "Бот перегружен, попробуйте ещё раз."

	textFormatHint = "Не понял формат. Пример:\n" +
		"<code>25.08 МТС 14:30 2в JIRA-123</code>\n" +
		"ДД.ММ ТИП ЧЧ:ММ ПЕРЕГОВОРКА [ТИКЕТ]"

	textDuplicate       = "Такое напоминание уже есть."
	textSentImmediately = "Время уже наступило — напоминание отправлено сразу."

	textRegistered        = "Чат зарегистрирован. Напоминания из этого чата принимаются."
	textAlreadyRegistered = "Чат уже зарегистрирован."
	textUnregistered      = "Чат снят с учёта."
	textNotRegistered     = "Чат не был зарегистрирован."

	textNoJobs = "Активных напоминаний нет."

	textCancelled   = "Отменено."
	textGoneAlready = "Уже неактуально."
	textSentNow     = "Отправлено."
)
