package line

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrReplyTokenUsed marks the single failure mode callers may recover
// from by falling back to a push send.
var ErrReplyTokenUsed = errors.New("reply token expired or already used")

type Message struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

type QuickReplyItem struct {
	Type   string `json:"type"`
	Action Action `json:"action"`
}

type Action struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`
	Data  string `json:"data,omitempty"`
	URI   string `json:"uri,omitempty"`
}

func Text(text string) Message {
	return Message{
		Type: "text",
		Text: text,
	}
}

func (m Message) WithQuickReply(items ...QuickReplyItem) Message {
	m.QuickReply = &QuickReply{Items: items}
	return m
}

func MessageAction(label, text string) QuickReplyItem {
	return QuickReplyItem{
		Type: "action",
		Action: Action{
			Type:  "message",
			Label: label,
			Text:  text,
		},
	}
}

func PostbackAction(label, data string) QuickReplyItem {
	return QuickReplyItem{
		Type: "action",
		Action: Action{
			Type:  "postback",
			Label: label,
			Data:  data,
		},
	}
}

func URIAction(label, uri string) QuickReplyItem {
	return QuickReplyItem{
		Type: "action",
		Action: Action{
			Type:  "uri",
			Label: label,
			URI:   uri,
		},
	}
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	resp, err := c.request().
		SetContext(ctx).
		SetBody(replyRequest{
			ReplyToken: replyToken,
			Messages:   messages,
		}).
		Post(apiEndpoint + "/v2/bot/message/reply")
	if err != nil {
		return fmt.Errorf("c.request.Post: %w", err)
	}

	if resp.IsError() {
		if resp.StatusCode() == 400 && strings.Contains(resp.String(), "Invalid reply token") {
			return ErrReplyTokenUsed
		}
		return fmt.Errorf("reply failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	resp, err := c.request().
		SetContext(ctx).
		SetBody(pushRequest{
			To:       to,
			Messages: messages,
		}).
		Post(apiEndpoint + "/v2/bot/message/push")
	if err != nil {
		return fmt.Errorf("c.request.Post: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("push failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
