package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is the transport surface the engine depends on. The HTTP
// implementation talks to the Bot API; tests swap in fakes.
type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (MessageRef, error)
	SendPhoto(ctx context.Context, req SendPhotoRequest) (MessageRef, error)
	EditMessageText(ctx context.Context, req EditMessageTextRequest) error
	EditMessageCaption(ctx context.Context, req EditMessageCaptionRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetChatAdministrators(ctx context.Context, chatID int64) ([]ChatMember, error)
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
}

type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api %d: %s", e.Code, e.Description)
}

type HTTPClient struct {
	token   string
	baseURL string
	client  *http.Client
	poll    *http.Client
	limiter *rate.Limiter
}

type Option func(*HTTPClient)

func WithBaseURL(url string) Option {
	return func(c *HTTPClient) { c.baseURL = url }
}

// WithSendRate caps outbound sends/edits; the Bot API throttles bots
// around 30 messages per second.
func WithSendRate(perSec float64) Option {
	return func(c *HTTPClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

func NewHTTPClient(token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
		// Long polling needs a timeout larger than the poll window.
		poll:    &http.Client{Timeout: 70 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(25), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) call(ctx context.Context, httpc *http.Client, method string, body map[string]any, result any) error {
	if strings.TrimSpace(c.token) == "" {
		return errors.New("telegram token missing")
	}
	raw, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.baseURL, "/"), c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var apiResp apiResponse
	if err := json.Unmarshal(payload, &apiResp); err != nil {
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}
	if !apiResp.OK {
		return &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
	}
	if result != nil && len(apiResp.Result) > 0 {
		return json.Unmarshal(apiResp.Result, result)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, method string, body map[string]any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.call(ctx, c.client, method, body, result)
}

func (c *HTTPClient) SendMessage(ctx context.Context, req SendMessageRequest) (MessageRef, error) {
	body := map[string]any{
		"chat_id": req.ChatID,
		"text":    req.Text,
	}
	if req.ParseMode != "" {
		body["parse_mode"] = req.ParseMode
	}
	if req.ReplyMarkup != nil {
		body["reply_markup"] = req.ReplyMarkup
	}
	var msg Message
	if err := c.send(ctx, "sendMessage", body, &msg); err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID}, nil
}

func (c *HTTPClient) SendPhoto(ctx context.Context, req SendPhotoRequest) (MessageRef, error) {
	body := map[string]any{
		"chat_id": req.ChatID,
		"photo":   req.PhotoFileID,
	}
	if req.Caption != "" {
		body["caption"] = req.Caption
	}
	if req.ParseMode != "" {
		body["parse_mode"] = req.ParseMode
	}
	if req.ReplyMarkup != nil {
		body["reply_markup"] = req.ReplyMarkup
	}
	var msg Message
	if err := c.send(ctx, "sendPhoto", body, &msg); err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID}, nil
}

func (c *HTTPClient) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	body := map[string]any{
		"chat_id":    req.ChatID,
		"message_id": req.MessageID,
		"text":       req.Text,
	}
	if req.ParseMode != "" {
		body["parse_mode"] = req.ParseMode
	}
	if req.ReplyMarkup != nil {
		body["reply_markup"] = req.ReplyMarkup
	}
	return ignoreNotModified(c.send(ctx, "editMessageText", body, nil))
}

func (c *HTTPClient) EditMessageCaption(ctx context.Context, req EditMessageCaptionRequest) error {
	body := map[string]any{
		"chat_id":    req.ChatID,
		"message_id": req.MessageID,
		"caption":    req.Caption,
	}
	if req.ParseMode != "" {
		body["parse_mode"] = req.ParseMode
	}
	if req.ReplyMarkup != nil {
		body["reply_markup"] = req.ReplyMarkup
	}
	return ignoreNotModified(c.send(ctx, "editMessageCaption", body, nil))
}

func (c *HTTPClient) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return c.send(ctx, "answerCallbackQuery", body, nil)
}

func (c *HTTPClient) GetChatAdministrators(ctx context.Context, chatID int64) ([]ChatMember, error) {
	var members []ChatMember
	if err := c.call(ctx, c.client, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *HTTPClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	body := map[string]any{
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}
	var updates []Update
	if err := c.call(ctx, c.poll, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// A summary refresh can recompute text identical to what is already
// published; the API reports that as an error but nothing is wrong.
func ignoreNotModified(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}
