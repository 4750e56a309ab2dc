package botapi

import "fmt"

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Common shape of document, video, audio and voice payloads.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Message struct {
	MessageID      int         `json:"message_id"`
	From           *User       `json:"from,omitempty"`
	Chat           Chat        `json:"chat"`
	Date           int64       `json:"date"`
	Text           string      `json:"text,omitempty"`
	Caption        string      `json:"caption,omitempty"`
	Photo          []PhotoSize `json:"photo,omitempty"`
	Document       *File       `json:"document,omitempty"`
	Video          *File       `json:"video,omitempty"`
	Audio          *File       `json:"audio,omitempty"`
	Voice          *File       `json:"voice,omitempty"`
	Sticker        *File       `json:"sticker,omitempty"`
	ReplyToMessage *Message    `json:"reply_to_message,omitempty"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type MessageID struct {
	MessageID int `json:"message_id"`
}

type SendMessageParams struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type CopyMessageParams struct {
	ChatID     int64  `json:"chat_id"`
	FromChatID int64  `json:"from_chat_id"`
	MessageID  int    `json:"message_id"`
	Caption    string `json:"caption,omitempty"`
	ParseMode  string `json:"parse_mode,omitempty"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// Envelope of every Bot API response.
type apiResponse[T any] struct {
	OK          bool                `json:"ok"`
	Result      T                   `json:"result"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// Error reported by the Bot API itself (as opposed to a transport failure).
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	// Seconds to wait before retrying, when the API throttled the call.
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("bot api %s: %d %s (retry after %ds)", e.Method, e.StatusCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("bot api %s: %d %s", e.Method, e.StatusCode, e.Description)
}

func (e *APIError) IsThrottled() bool {
	return e.StatusCode == 429
}
