package bot

import (
	"strconv"
	"strings"

	"sokol-alert/core/alert"
	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
)

// ActionKind is the closed set of things an inbound update can mean.
// Raw payloads (command strings, callback data prefixes) are parsed
// here, once, at the transport boundary; handlers never see them.
type ActionKind int

const (
	ActionIgnore ActionKind = iota
	ActionCommand
	ActionResponse
	ActionReportSelect
	ActionSessionInput
	ActionMemberJoined
	ActionMemberLeft
)

type Action struct {
	Kind   ActionKind
	ChatID int64
	Group  bool
	From   telegram.User

	// ActionCommand
	Command string
	Args    string

	// ActionResponse / ActionReportSelect
	CallbackID string
	IncidentID int64
	Status     store.ResponseStatus

	// ActionSessionInput
	Input alert.SessionInput

	// ActionMemberJoined / ActionMemberLeft
	Members []telegram.User
}

const (
	callbackGoingPrefix  = "go:"
	callbackCannotPrefix = "no:"
	callbackReportPrefix = "rep:"
)

// Decode classifies one update. Updates that carry nothing actionable
// (edits, stickers, channel posts) become ActionIgnore.
func Decode(upd telegram.Update) Action {
	if upd.CallbackQuery != nil {
		return decodeCallback(upd.CallbackQuery)
	}
	if upd.Message != nil {
		return decodeMessage(upd.Message)
	}
	return Action{Kind: ActionIgnore}
}

func decodeCallback(cb *telegram.CallbackQuery) Action {
	data := strings.TrimSpace(cb.Data)
	action := Action{
		From:       cb.From,
		CallbackID: cb.ID,
	}
	if cb.Message != nil {
		action.ChatID = cb.Message.Chat.ID
	}
	switch {
	case strings.HasPrefix(data, callbackGoingPrefix):
		action.Kind = ActionResponse
		action.Status = store.StatusGoing
		action.IncidentID = parseID(strings.TrimPrefix(data, callbackGoingPrefix))
	case strings.HasPrefix(data, callbackCannotPrefix):
		action.Kind = ActionResponse
		action.Status = store.StatusCannot
		action.IncidentID = parseID(strings.TrimPrefix(data, callbackCannotPrefix))
	case strings.HasPrefix(data, callbackReportPrefix):
		action.Kind = ActionReportSelect
		action.IncidentID = parseID(strings.TrimPrefix(data, callbackReportPrefix))
	default:
		action.Kind = ActionIgnore
	}
	if action.Kind != ActionIgnore && action.IncidentID <= 0 {
		action.Kind = ActionIgnore
	}
	return action
}

func decodeMessage(msg *telegram.Message) Action {
	action := Action{ChatID: msg.Chat.ID, Group: msg.Chat.IsGroup()}
	if msg.From != nil {
		action.From = *msg.From
	}
	if len(msg.NewChatMembers) > 0 {
		action.Kind = ActionMemberJoined
		action.Members = msg.NewChatMembers
		return action
	}
	if msg.LeftChatMember != nil {
		action.Kind = ActionMemberLeft
		action.Members = []telegram.User{*msg.LeftChatMember}
		return action
	}
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		name, args := splitCommand(text)
		action.Kind = ActionCommand
		action.Command = name
		action.Args = args
		return action
	}
	if msg.Location != nil {
		action.Kind = ActionSessionInput
		action.Input = alert.SessionInput{Kind: alert.InputLocation, Lat: msg.Location.Latitude, Lon: msg.Location.Longitude}
		return action
	}
	if len(msg.Photo) > 0 {
		// Telegram lists photo sizes smallest first; keep the largest.
		action.Kind = ActionSessionInput
		action.Input = alert.SessionInput{Kind: alert.InputPhoto, PhotoFileID: msg.Photo[len(msg.Photo)-1].FileID}
		return action
	}
	if text != "" {
		action.Kind = ActionSessionInput
		action.Input = alert.SessionInput{Kind: alert.InputText, Text: text}
		return action
	}
	action.Kind = ActionIgnore
	return action
}

func splitCommand(text string) (name, args string) {
	parts := strings.SplitN(text, " ", 2)
	name = strings.TrimPrefix(parts[0], "/")
	// Group commands arrive as /cmd@BotName.
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return strings.ToLower(name), args
}

func parseID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
