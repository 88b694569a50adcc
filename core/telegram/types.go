package telegram

import "encoding/json"

// Wire types for the subset of the Bot API the engine uses.

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID      int64       `json:"message_id"`
	From           *User       `json:"from,omitempty"`
	Chat           Chat        `json:"chat"`
	Text           string      `json:"text,omitempty"`
	Caption        string      `json:"caption,omitempty"`
	Photo          []PhotoSize `json:"photo,omitempty"`
	Location       *Location   `json:"location,omitempty"`
	NewChatMembers []User      `json:"new_chat_members,omitempty"`
	LeftChatMember *User       `json:"left_chat_member,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

func (c Chat) IsGroup() bool {
	return c.Type == "group" || c.Type == "supergroup"
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Data    string   `json:"data,omitempty"`
	Message *Message `json:"message,omitempty"`
}

type ChatMember struct {
	User   User   `json:"user"`
	Status string `json:"status"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// MessageRef identifies a sent message for later edits.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

type SendMessageRequest struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

type SendPhotoRequest struct {
	ChatID      int64
	PhotoFileID string
	Caption     string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

type EditMessageTextRequest struct {
	ChatID      int64
	MessageID   int64
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

type EditMessageCaptionRequest struct {
	ChatID      int64
	MessageID   int64
	Caption     string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}
