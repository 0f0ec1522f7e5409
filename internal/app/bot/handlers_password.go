package bot

import (
	"context"
	"unicode/utf8"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/models"
)

const minPasswordLength = 6

func (b *Transport) handlePasswordChangeStart(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	record, err := b.login(ctx, userId)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)

		b.respond(ctx, event, line.Text("系統忙碌中，請稍後再試 🙏"))

		return
	}

	if record == nil {
		b.respond(ctx, event, line.Text("請先登入會員再修改密碼 🙏").WithQuickReply(
			line.MessageAction("帳號密碼登入", commandLogin),
		))

		return
	}

	b.deps.Sessions.SetStep(userId, models.WaitingOldPasswordData{})

	b.respond(ctx, event,
		line.Text("請輸入目前的密碼 🔑").WithQuickReply(
			line.MessageAction("取消", commandCancel),
		))
}

func (b *Transport) handleOldPasswordInput(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	b.deps.Sessions.SetStep(userId, models.WaitingNewPasswordData{
		OldPassword: event.Message.Text,
	})

	b.respond(ctx, event,
		line.Text("請輸入新密碼（至少 6 個字元）🔐").WithQuickReply(
			line.MessageAction("取消", commandCancel),
		))
}

func (b *Transport) handleNewPasswordInput(ctx context.Context, event models.Event, data models.WaitingNewPasswordData) {
	userId := event.Source.UserId
	password := event.Message.Text

	if utf8.RuneCountInString(password) < minPasswordLength {
		b.respond(ctx, event, line.Text("新密碼至少需要 6 個字元，請再輸入一次 👀"))
		return
	}

	b.deps.Sessions.SetStep(userId, models.WaitingConfirmPasswordData{
		OldPassword: data.OldPassword,
		NewPassword: password,
	})

	b.respond(ctx, event,
		line.Text("請再輸入一次新密碼以確認 ✅").WithQuickReply(
			line.MessageAction("取消", commandCancel),
		))
}

func (b *Transport) handleConfirmPasswordInput(ctx context.Context, event models.Event, data models.WaitingConfirmPasswordData) {
	userId := event.Source.UserId

	if event.Message.Text != data.NewPassword {
		b.respond(ctx, event, line.Text("兩次輸入的新密碼不一致，請再確認一次 👀"))
		return
	}

	record, err := b.login(ctx, userId)
	if err != nil || record == nil {
		b.deps.Sessions.ClearStep(userId)

		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)

		b.respond(ctx, event, line.Text("登入狀態已失效，請重新登入 🙏"))
		b.deps.Menu.SetByAuth(ctx, userId, false)

		return
	}

	var rejectText string

	err = b.runWithLoading(ctx, userId, func(ctx context.Context) (*bool, error) {
		rejected, changeErr := b.deps.Pharmacy.ChangePassword(ctx, record.AccessToken, data.OldPassword, data.NewPassword)
		if changeErr != nil {
			return nil, changeErr
		}

		rejectText = rejected

		return lo.ToPtr(true), nil
	})

	b.deps.Sessions.ClearStep(userId)

	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("password change failed: %v", err)

		b.respond(ctx, event, line.Text("修改密碼暫時無法使用，請稍後再試 🙏"))

		return
	}

	if rejectText != "" {
		b.respond(ctx, event, line.Text("修改密碼失敗："+rejectText))
		return
	}

	b.respond(ctx, event, line.Text("密碼修改成功 🎉"))
}
