package bot

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/message"
	"github.com/hsuehyc/herbalink/internal/models"
)

const (
	commandLogin          = "帳號密碼登入"
	commandLogout         = "登出"
	commandChangePassword = "修改密碼"
	commandOrderList      = "我的訂單"
	commandMainMenu       = "主選單"
	commandCancel         = "取消"
)

type routeResult struct {
	Success   bool
	EventType models.EventType
	Action    string
	Err       error
}

// route dispatches one webhook event. It is the outermost failure
// boundary per event: a panic here becomes a best-effort generic
// error reply, never an aborted batch.
func (b *Transport) route(ctx context.Context, event models.Event) (res routeResult) {
	res.EventType = event.Type

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("panic recovered: %v", r)

			log.
				WithField("user_id", event.Source.UserId).
				Errorf("route: panic recovered: %v", r)

			b.respond(ctx, event, line.Text("系統發生錯誤，請稍後再試 🙏"))
		}
	}()

	switch event.Type {
	case models.EventTypeFollow:
		res.Action = b.handleFollow(ctx, event)

	case models.EventTypeUnfollow:
		res.Action = b.handleUnfollow(ctx, event)

	case models.EventTypeMessage:
		res.Action = b.routeMessage(ctx, event)

	case models.EventTypePostback:
		res.Action = b.routePostback(ctx, event)

	default:
		res.Action = "ignored"
	}

	res.Success = true

	return res
}

func (b *Transport) routeMessage(ctx context.Context, event models.Event) string {
	userId := event.Source.UserId

	if event.Message == nil {
		return "ignored"
	}

	b.ensureConnected(ctx, userId)

	if b.processingLocked(ctx, event) {
		return "processing_locked"
	}

	if event.Message.Type == "image" {
		b.handlePrescriptionUpload(ctx, event)
		return "prescription_upload"
	}

	if event.Message.Type != "text" {
		b.respond(ctx, event, line.Text("抱歉，目前僅支援文字與處方箋圖片 🙏"))
		return "unsupported_message"
	}

	switch event.Message.Text {
	case commandLogin:
		b.handleLoginStart(ctx, event)
		return "login_start"

	case commandLogout:
		b.handleLogout(ctx, event)
		return "logout"

	case commandChangePassword:
		b.handlePasswordChangeStart(ctx, event)
		return "password_change_start"

	case commandOrderList:
		b.handleOrderList(ctx, event)
		return "order_list"

	case commandMainMenu:
		b.handleMainMenu(ctx, event)
		return "main_menu"

	case commandCancel:
		b.handleCancel(ctx, event)
		return "cancel"
	}

	// Free text is consumed by the in-progress step, if any.
	state := b.deps.Sessions.State(userId)

	switch data := state.Data.(type) {
	case models.WaitingAccountData:
		b.handleAccountInput(ctx, event)
		return "account_input"

	case models.WaitingPasswordData:
		b.handlePasswordInput(ctx, event, data)
		return "password_input"

	case models.WaitingOldPasswordData:
		b.handleOldPasswordInput(ctx, event)
		return "old_password_input"

	case models.WaitingNewPasswordData:
		b.handleNewPasswordInput(ctx, event, data)
		return "new_password_input"

	case models.WaitingConfirmPasswordData:
		b.handleConfirmPasswordInput(ctx, event, data)
		return "confirm_password_input"
	}

	b.handleFallback(ctx, event)

	return "fallback"
}

func (b *Transport) routePostback(ctx context.Context, event models.Event) string {
	userId := event.Source.UserId

	if event.Postback == nil {
		return "ignored"
	}

	b.ensureConnected(ctx, userId)

	if b.processingLocked(ctx, event) {
		return "processing_locked"
	}

	values, err := url.ParseQuery(event.Postback.Data)
	if err != nil {
		log.
			WithField("user_id", userId).
			WithField("postback.data", event.Postback.Data).
			Errorf("url.ParseQuery: %v", err)

		b.respond(ctx, event, line.Text("無法辨識的操作，請重新選擇 🙏"))

		return "postback_malformed"
	}

	// Payloads built for an authenticated surface carry the session
	// token; a token minted for another chat user must never act here.
	if embedded := values.Get("t"); embedded != "" {
		if _, verifyErr := b.deps.Tokens.VerifyFor(embedded, userId); verifyErr != nil {
			log.
				WithField("user_id", userId).
				Errorf("b.deps.Tokens.VerifyFor: %v", verifyErr)

			b.respond(ctx, event, line.Text("登入狀態已失效，請重新登入 🙏"))
			b.deps.Menu.SetByAuth(ctx, userId, false)

			return "postback_token_rejected"
		}
	}

	action := values.Get("action")

	switch action {
	case "select_pharmacy":
		b.handlePharmacySelect(ctx, event, values.Get("pharmacy_id"))

	case "order_detail":
		b.handleOrderDetail(ctx, event, cast.ToInt64(values.Get("order_id")))

	case "contact_pharmacy":
		b.handleContactPharmacy(ctx, event, cast.ToInt64(values.Get("order_id")))

	case "delete_account":
		b.handleDeleteAccount(ctx, event)

	default:
		log.
			WithField("user_id", userId).
			WithField("postback.action", action).
			Warn("unknown postback action")

		b.respond(ctx, event, line.Text("無法辨識的操作，請重新選擇 🙏"))

		return "postback_unknown"
	}

	return "postback_" + action
}

// processingLocked enforces the single long-operation-per-user rule:
// while a prescription is being processed every other input only gets
// an elapsed-time notice.
func (b *Transport) processingLocked(ctx context.Context, event models.Event) bool {
	state := b.deps.Sessions.State(event.Source.UserId)

	data, ok := state.Data.(models.ProcessingImageData)
	if !ok {
		return false
	}

	notice := message.Build().
		SetElapsed(time.Since(data.StartedAt)).
		BuildProcessingNoticeMessage()

	b.respond(ctx, event, notice)

	return true
}

func (b *Transport) ensureConnected(ctx context.Context, userId string) {
	connected, err := b.deps.Notify.EnsureConnected(ctx, userId)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Notify.EnsureConnected: %v", err)

		return
	}

	if connected {
		log.
			WithField("user_id", userId).
			Debug("notify subscription healthy")
	}
}
