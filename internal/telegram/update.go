package telegram

import "strings"

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *FileRef    `json:"video,omitempty"`
	Document  *FileRef    `json:"document,omitempty"`
	Location  *Location   `json:"location,omitempty"`
	Contact   *Contact    `json:"contact,omitempty"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type FileRef struct {
	FileID string `json:"file_id"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserID      int64  `json:"user_id,omitempty"`
}

const (
	TypeCommand  = "command"
	TypeText     = "text"
	TypePhoto    = "photo"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeLocation = "location"
	TypeContact  = "contact"
	TypeOther    = "other"
)

// Type classifies the message by its first present payload. Text starting
// with a slash is a command.
func (m *Message) Type() string {
	switch {
	case strings.HasPrefix(m.Text, "/"):
		return TypeCommand
	case m.Text != "":
		return TypeText
	case len(m.Photo) > 0:
		return TypePhoto
	case m.Video != nil:
		return TypeVideo
	case m.Document != nil:
		return TypeDocument
	case m.Location != nil:
		return TypeLocation
	case m.Contact != nil:
		return TypeContact
	default:
		return TypeOther
	}
}
