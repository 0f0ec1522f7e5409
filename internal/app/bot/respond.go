package bot

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/models"
)

// respond tries the event's single-use reply token first and falls
// back to a push only when that token is already spent. A failure of
// the fallback too is logged and swallowed: the user simply misses
// this one message.
func (b *Transport) respond(ctx context.Context, event models.Event, messages ...line.Message) {
	err := b.deps.Line.Reply(ctx, event.ReplyToken, messages...)
	if err == nil {
		return
	}

	if !errors.Is(err, line.ErrReplyTokenUsed) {
		log.
			WithField("user_id", event.Source.UserId).
			Errorf("b.deps.Line.Reply: %v", err)

		return
	}

	if pushErr := b.deps.Line.Push(ctx, event.Source.UserId, messages...); pushErr != nil {
		log.
			WithField("user_id", event.Source.UserId).
			Errorf("b.deps.Line.Push: reply fallback failed: %v", pushErr)
	}
}
