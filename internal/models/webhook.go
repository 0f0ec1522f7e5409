package models

type EventType = string

const (
	EventTypeMessage  EventType = "message"
	EventTypePostback EventType = "postback"
	EventTypeFollow   EventType = "follow"
	EventTypeUnfollow EventType = "unfollow"
)

type Webhook struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type       EventType      `json:"type"`
	ReplyToken string         `json:"replyToken"`
	Timestamp  int64          `json:"timestamp"`
	Source     EventSource    `json:"source"`
	Message    *EventMessage  `json:"message"`
	Postback   *EventPostback `json:"postback"`
}

type EventSource struct {
	Type   string `json:"type"`
	UserId string `json:"userId"`
}

type EventMessage struct {
	Id   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type EventPostback struct {
	Data string `json:"data"`
}
