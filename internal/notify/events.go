package notify

import (
	"context"
	"encoding/json"

	set "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/message"
	"github.com/hsuehyc/herbalink/internal/models"
)

const orderStateChangedEvent = "order_state_changed"

// mappedEvents is the explicit allow-list of upstream event names the
// bridge understands. Anything else is logged raw and dropped, never
// special-cased silently.
var mappedEvents = set.NewSet(orderStateChangedEvent)

// acknowledgeEvents are protocol chatter from the upstream source,
// not member notifications.
var acknowledgeEvents = set.NewSet("joined", "left", "ping")

func (b *Bridge) handlePayload(record models.ConnectionRecord, payload []byte) {
	received := new(frame)

	if err := json.Unmarshal(payload, received); err != nil {
		log.
			WithField("member_id", record.MemberId).
			Errorf("notify: malformed upstream frame: %v", err)

		return
	}

	if acknowledgeEvents.Contains(received.Event) {
		return
	}

	if !mappedEvents.Contains(received.Event) {
		log.
			WithField("member_id", record.MemberId).
			WithField("event", received.Event).
			WithField("payload", string(received.Data)).
			Warn("notify: unmapped upstream event")

		return
	}

	event := new(models.OrderEvent)

	if err := json.Unmarshal(received.Data, event); err != nil {
		log.
			WithField("member_id", record.MemberId).
			Errorf("notify: malformed order event: %v", err)

		return
	}

	if event.MemberId != record.MemberId {
		log.
			WithField("member_id", record.MemberId).
			WithField("event.member_id", event.MemberId).
			Warn("notify: order event for another member, skipped")

		return
	}

	b.relay(record, *event)
}

// relay pushes the mapped chat messages. A failed push is logged and
// lost: the order state already changed upstream, so connection state
// is never rolled back and there is no retry queue.
func (b *Bridge) relay(record models.ConnectionRecord, event models.OrderEvent) {
	builder := message.Build().SetOrderEvent(event)

	minted, err := b.deps.Tokens.Mint(record.UserId, record.MemberId, record.AccessToken, "")
	if err != nil {
		log.
			WithField("user_id", record.UserId).
			Errorf("b.deps.Tokens.Mint: %v", err)
	} else {
		builder = builder.SetToken(minted)
	}

	messages := builder.BuildOrderEventMessages()

	b.pool.Push(func(ctx context.Context) error {
		if err := b.deps.Line.Push(ctx, record.UserId, messages...); err != nil {
			log.
				WithField("user_id", record.UserId).
				WithField("order_code", event.OrderCode).
				Errorf("b.deps.Line.Push: %v", err)
		}

		return nil
	})

	log.
		WithField("user_id", record.UserId).
		WithField("order_code", event.OrderCode).
		WithField("order_state", event.State).
		Info("notify: order event relayed to chat")
}
