package model

// Event is anything the message channel delivers to the bot.
type Event interface {
	Kind() string
}

type MemberJoined struct {
	ChatID      int64
	MemberID    int64
	Username    string
	IsAutomated bool
}

type TextMessage struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

type Command struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Args     string
}

type ButtonPress struct {
	ChatID   int64
	UserID   int64
	ActionID string
}

func (MemberJoined) Kind() string { return "member_joined" }
func (TextMessage) Kind() string  { return "text" }
func (Command) Kind() string      { return "command" }
func (ButtonPress) Kind() string  { return "button_press" }

// Button is an inline action attached to an outbound message.
type Button struct {
	Text     string
	ActionID string
}

// OutboundMessage is a send request for the message channel.
type OutboundMessage struct {
	ChatID int64
	Text   string
	Button *Button
}

// Challenge is a question the member must answer; Answer is the expected reply.
type Challenge struct {
	Question string
	Answer   string
}
