package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"sokol-alert/config"
	"sokol-alert/core/alert"
	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
	"sokol-alert/core/utils"
)

const (
	msgSubscribed = "Вы подписаны на экстренные уведомления группы безопасности. " +
		"Вы будете получать важную информацию о происшествиях и местах сбора."
	msgUnsubscribed = "Вы отписаны от экстренных уведомлений."
	msgHelp         = "/start — подписаться на уведомления\n" +
		"/stop — отписаться от уведомлений\n" +
		"/notify <текст> — отправить экстренное уведомление (только для оператора)\n" +
		"/sos — создать происшествие по шагам (только для оператора)\n" +
		"/skip — пропустить текущий шаг создания\n" +
		"/cancel — отменить создание происшествия\n" +
		"/report — отчеты по последним происшествиям (только для оператора)\n" +
		"/op_add <id|@логин> — выдать права оператора\n" +
		"/op_del <id|@логин> — отозвать права оператора\n" +
		"/ops — список операторов\n" +
		"/init_operators — назначить операторов из админов группы (выполнять в группе)"
	msgNotOperator    = "Эта команда доступна только оператору."
	msgNotifyUsage    = "Использование: /notify <текст происшествия>"
	msgUnknownTarget  = "Пользователь не найден."
	msgSelfRevoke     = "Нельзя отозвать права у самого себя."
	msgGroupOnly      = "Эту команду можно выполнять только в группе."
	msgGenericFailure = "Не получилось выполнить команду, попробуйте позже."
	msgResponseAck    = "Спасибо, ваш отклик зафиксирован!"
	msgNoIncident     = "Происшествие не найдено."
	msgNoIncidents    = "Нет происшествий."
	msgChooseIncident = "Выберите происшествие:"
	msgNoOperators    = "Операторы не назначены."
)

// Dispatcher runs the long-poll loop and routes decoded actions into
// the engine. Updates from the same author go through a per-author
// queue so they are handled in receipt order; different authors stay
// concurrent.
type Dispatcher struct {
	cfg    *config.AppConfig
	svc    *alert.Service
	tg     telegram.Client
	logger *utils.Logger
	queue  *updateQueue
	offset int64
}

func NewDispatcher(cfg *config.AppConfig, svc *alert.Service, tg telegram.Client, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, svc: svc, tg: tg, logger: logger, queue: newUpdateQueue()}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Printf("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		updates, err := d.tg.GetUpdates(ctx, d.offset, d.cfg.PollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Errorf("get updates: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, upd := range updates {
			upd := upd
			if upd.UpdateID >= d.offset {
				d.offset = upd.UpdateID + 1
			}
			if author, ok := updateAuthor(upd); ok {
				d.queue.Push(author, upd, func(u telegram.Update) { d.handle(ctx, u) })
			} else {
				go d.handle(ctx, upd)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, upd telegram.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Errorf("PANIC handling update %d: %v\n%s", upd.UpdateID, rec, string(debug.Stack()))
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	action := Decode(upd)
	switch action.Kind {
	case ActionCommand:
		d.handleCommand(ctx, action)
	case ActionResponse:
		d.handleResponse(ctx, action)
	case ActionReportSelect:
		d.handleReportSelect(ctx, action)
	case ActionSessionInput:
		d.handleSessionInput(ctx, action)
	case ActionMemberJoined:
		for _, m := range action.Members {
			if m.IsBot {
				continue
			}
			d.registerSubscriber(ctx, m)
		}
	case ActionMemberLeft:
		for _, m := range action.Members {
			if err := d.svc.Unsubscribe(ctx, m.ID); err != nil {
				d.logger.Errorf("unsubscribe user %d: %v", m.ID, err)
			}
		}
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, action Action) {
	switch action.Command {
	case "start":
		d.registerSubscriber(ctx, action.From)
		d.reply(ctx, action.ChatID, msgSubscribed)
	case "stop":
		if err := d.svc.Unsubscribe(ctx, action.From.ID); err != nil {
			d.logger.Errorf("unsubscribe user %d: %v", action.From.ID, err)
			d.reply(ctx, action.ChatID, msgGenericFailure)
			return
		}
		d.reply(ctx, action.ChatID, msgUnsubscribed)
	case "help":
		d.reply(ctx, action.ChatID, msgHelp)
	case "notify":
		d.handleNotify(ctx, action)
	case "sos":
		prompt, err := d.svc.StartAuthoring(ctx, action.From.ID)
		if err != nil {
			d.replyErr(ctx, action.ChatID, err)
			return
		}
		d.reply(ctx, action.ChatID, prompt)
	case "cancel":
		if d.svc.AuthoringActive(action.From.ID) {
			d.reply(ctx, action.ChatID, d.svc.CancelAuthoring(action.From.ID))
		}
	case "skip":
		d.advanceSession(ctx, action.ChatID, action.From.ID, alert.SessionInput{Kind: alert.InputSkip})
	case "report":
		d.handleReportList(ctx, action)
	case "op_add":
		d.handleGrant(ctx, action)
	case "op_del":
		d.handleRevoke(ctx, action)
	case "ops":
		d.handleListOperators(ctx, action)
	case "init_operators":
		d.handleBootstrap(ctx, action)
	}
}

func (d *Dispatcher) handleNotify(ctx context.Context, action Action) {
	incident, delivered, err := d.svc.Notify(ctx, action.From.ID, action.Args)
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrNotOperator):
			d.reply(ctx, action.ChatID, msgNotOperator)
		case errors.Is(err, alert.ErrEmptyText):
			d.reply(ctx, action.ChatID, msgNotifyUsage)
		default:
			d.logger.Errorf("notify by user %d: %v", action.From.ID, err)
			d.reply(ctx, action.ChatID, msgGenericFailure)
		}
		return
	}
	d.reply(ctx, action.ChatID, fmt.Sprintf("Уведомление #%d отправлено %d участникам.", incident.ID, delivered))
}

func (d *Dispatcher) handleResponse(ctx context.Context, action Action) {
	err := d.svc.RecordResponse(ctx, action.IncidentID, action.From.ID, action.Status, nil, nil)
	ack := msgResponseAck
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ack = msgNoIncident
		} else {
			d.logger.Errorf("record response incident %d user %d: %v", action.IncidentID, action.From.ID, err)
			ack = msgGenericFailure
		}
	}
	if err := d.tg.AnswerCallbackQuery(ctx, action.CallbackID, ack); err != nil {
		d.logger.Errorf("answer callback %s: %v", action.CallbackID, err)
	}
}

func (d *Dispatcher) handleReportList(ctx context.Context, action Action) {
	incidents, err := d.svc.RecentIncidents(ctx, action.From.ID)
	if err != nil {
		d.replyErr(ctx, action.ChatID, err)
		return
	}
	if len(incidents) == 0 {
		d.reply(ctx, action.ChatID, msgNoIncidents)
		return
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, incident := range incidents {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         d.svc.Compiler().ListEntry(incident),
			CallbackData: fmt.Sprintf("rep:%d", incident.ID),
		}})
	}
	_, err = d.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      action.ChatID,
		Text:        msgChooseIncident,
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		d.logger.Errorf("send report list: %v", err)
	}
}

func (d *Dispatcher) handleReportSelect(ctx context.Context, action Action) {
	report, err := d.svc.FullReport(ctx, action.From.ID, action.IncidentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.reply(ctx, action.ChatID, msgNoIncident)
		} else {
			d.replyErr(ctx, action.ChatID, err)
		}
		_ = d.tg.AnswerCallbackQuery(ctx, action.CallbackID, "")
		return
	}
	rendered := d.svc.Compiler().RenderFull(report)
	if report.Incident.PhotoFileID != "" {
		_, err = d.tg.SendPhoto(ctx, telegram.SendPhotoRequest{
			ChatID:      action.ChatID,
			PhotoFileID: report.Incident.PhotoFileID,
			Caption:     rendered,
		})
	} else {
		_, err = d.tg.SendMessage(ctx, telegram.SendMessageRequest{ChatID: action.ChatID, Text: rendered})
	}
	if err != nil {
		d.logger.Errorf("send report for incident %d: %v", action.IncidentID, err)
	}
	_ = d.tg.AnswerCallbackQuery(ctx, action.CallbackID, "")
}

func (d *Dispatcher) handleGrant(ctx context.Context, action Action) {
	sub, err := d.svc.GrantOperator(ctx, action.From.ID, action.Args)
	if err != nil {
		d.replyTargetErr(ctx, action.ChatID, err)
		return
	}
	d.reply(ctx, action.ChatID, fmt.Sprintf("Оператор назначен: %s (%d).", sub.DisplayName(), sub.UserID))
}

func (d *Dispatcher) handleRevoke(ctx context.Context, action Action) {
	sub, err := d.svc.RevokeOperator(ctx, action.From.ID, action.Args)
	if err != nil {
		if errors.Is(err, alert.ErrSelfRevoke) {
			d.reply(ctx, action.ChatID, msgSelfRevoke)
			return
		}
		d.replyTargetErr(ctx, action.ChatID, err)
		return
	}
	d.reply(ctx, action.ChatID, fmt.Sprintf("Права оператора отозваны: %s (%d).", sub.DisplayName(), sub.UserID))
}

func (d *Dispatcher) handleListOperators(ctx context.Context, action Action) {
	ops, err := d.svc.ListOperators(ctx, action.From.ID)
	if err != nil {
		d.replyErr(ctx, action.ChatID, err)
		return
	}
	if len(ops) == 0 {
		d.reply(ctx, action.ChatID, msgNoOperators)
		return
	}
	lines := []string{"Операторы:"}
	for _, op := range ops {
		lines = append(lines, fmt.Sprintf(" - %s (%d)", op.DisplayName(), op.UserID))
	}
	d.reply(ctx, action.ChatID, strings.Join(lines, "\n"))
}

// handleBootstrap grants the operator role to every human admin of the
// group the command was issued in.
func (d *Dispatcher) handleBootstrap(ctx context.Context, action Action) {
	if !action.Group {
		d.reply(ctx, action.ChatID, msgGroupOnly)
		return
	}
	members, err := d.tg.GetChatAdministrators(ctx, action.ChatID)
	if err != nil {
		d.logger.Errorf("get chat administrators for %d: %v", action.ChatID, err)
		d.reply(ctx, action.ChatID, msgGenericFailure)
		return
	}
	var admins []store.Subscriber
	for _, m := range members {
		if m.User.IsBot {
			continue
		}
		if m.Status != "administrator" && m.Status != "creator" {
			continue
		}
		admins = append(admins, subscriberOf(m.User))
	}
	count, err := d.svc.BootstrapOperators(ctx, admins)
	if err != nil {
		d.logger.Errorf("bootstrap operators: %v", err)
		d.reply(ctx, action.ChatID, msgGenericFailure)
		return
	}
	if count == 0 {
		d.reply(ctx, action.ChatID, "Не найдено администраторов для добавления.")
		return
	}
	d.reply(ctx, action.ChatID, fmt.Sprintf("Назначено операторов: %d.", count))
}

func (d *Dispatcher) handleSessionInput(ctx context.Context, action Action) {
	d.advanceSession(ctx, action.ChatID, action.From.ID, action.Input)
}

func (d *Dispatcher) advanceSession(ctx context.Context, chatID, userID int64, input alert.SessionInput) {
	reply, handled, err := d.svc.AdvanceAuthoring(ctx, userID, input)
	if err != nil {
		d.logger.Errorf("authoring by user %d: %v", userID, err)
		d.reply(ctx, chatID, msgGenericFailure)
		return
	}
	if handled && reply != "" {
		d.reply(ctx, chatID, reply)
	}
}

func (d *Dispatcher) registerSubscriber(ctx context.Context, user telegram.User) {
	sub := subscriberOf(user)
	if err := d.svc.Subscribe(ctx, &sub); err != nil {
		d.logger.Errorf("subscribe user %d: %v", user.ID, err)
	}
}

func subscriberOf(user telegram.User) store.Subscriber {
	return store.Subscriber{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if _, err := d.tg.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		d.logger.Errorf("send reply to chat %d: %v", chatID, err)
	}
}

func (d *Dispatcher) replyErr(ctx context.Context, chatID int64, err error) {
	if errors.Is(err, alert.ErrNotOperator) {
		d.reply(ctx, chatID, msgNotOperator)
		return
	}
	d.logger.Errorf("command failed: %v", err)
	d.reply(ctx, chatID, msgGenericFailure)
}

func (d *Dispatcher) replyTargetErr(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, alert.ErrNotOperator):
		d.reply(ctx, chatID, msgNotOperator)
	case errors.Is(err, store.ErrNotFound):
		d.reply(ctx, chatID, msgUnknownTarget)
	default:
		d.logger.Errorf("operator management failed: %v", err)
		d.reply(ctx, chatID, msgGenericFailure)
	}
}
