package alert

import (
	"fmt"
	"strings"
	"time"

	"sokol-alert/core/store"
)

func text(lang, key string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	ru := map[string]string{
		"alert.notify.header":       "\U0001F6A8 Экстренное сообщение:",
		"alert.notify.place":        "Место сбора",
		"alert.btn.going":           "Пойду",
		"alert.btn.cannot":          "Не могу",
		"alert.response.ack":        "Спасибо, ваш отклик зафиксирован!",
		"alert.response.unknown":    "Происшествие не найдено.",
		"alert.summary.header":      "\U0001F4CB Сводка по происшествию:",
		"alert.summary.going":       "Пойдут:",
		"alert.summary.none":        "пока никто не откликнулся",
		"alert.report.header":       "Отчет по происшествию:",
		"alert.report.responded":    "Откликнулись:",
		"alert.report.missed":       "Не ответили:",
		"alert.report.empty":        "Нет происшествий.",
		"alert.status.going":        "Пойду",
		"alert.status.cannot":       "Не могу",
		"alert.session.description": "Опишите происшествие одним сообщением.",
		"alert.session.place":       "Укажите место сбора текстом или отправьте геолокацию. Для пропуска отправьте /skip.",
		"alert.session.photo":       "Прикрепите фото или отправьте /skip.",
		"alert.session.emptyDesc":   "Описание не может быть пустым. Опишите происшествие.",
		"alert.session.badPhoto":    "Нужна фотография или /skip.",
		"alert.session.cancelled":   "Создание происшествия отменено.",
	}
	en := map[string]string{
		"alert.notify.header":       "\U0001F6A8 Emergency alert:",
		"alert.notify.place":        "Assembly point",
		"alert.btn.going":           "Going",
		"alert.btn.cannot":          "Cannot",
		"alert.response.ack":        "Thanks, your response is recorded!",
		"alert.response.unknown":    "Incident not found.",
		"alert.summary.header":      "\U0001F4CB Incident summary:",
		"alert.summary.going":       "Going:",
		"alert.summary.none":        "no responses yet",
		"alert.report.header":       "Incident report:",
		"alert.report.responded":    "Responded:",
		"alert.report.missed":       "No answer:",
		"alert.report.empty":        "No incidents.",
		"alert.status.going":        "Going",
		"alert.status.cannot":       "Cannot",
		"alert.session.description": "Describe the incident in one message.",
		"alert.session.place":       "Send the assembly point as text or share a location. Send /skip to omit.",
		"alert.session.photo":       "Attach a photo or send /skip.",
		"alert.session.emptyDesc":   "The description cannot be empty. Describe the incident.",
		"alert.session.badPhoto":    "A photo or /skip is expected.",
		"alert.session.cancelled":   "Incident authoring cancelled.",
	}
	if lang == "en" {
		if v, ok := en[key]; ok {
			return v
		}
	}
	if v, ok := ru[key]; ok {
		return v
	}
	return key
}

func deliveredText(incidentID int64, delivered int) string {
	return fmt.Sprintf("Уведомление #%d отправлено %d участникам.", incidentID, delivered)
}

func statusLabel(lang string, status store.ResponseStatus) string {
	if status == store.StatusCannot {
		return text(lang, "alert.status.cannot")
	}
	return text(lang, "alert.status.going")
}

func formatLocalTime(t time.Time) string {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
