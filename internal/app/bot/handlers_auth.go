package bot

import (
	"context"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/message"
	"github.com/hsuehyc/herbalink/internal/models"
)

func (b *Transport) handleFollow(ctx context.Context, event models.Event) string {
	userId := event.Source.UserId

	b.deps.Menu.Restore(ctx, userId, nil)

	b.respond(ctx, event, line.Text(`歡迎使用中藥配藥小幫手 🌿
登入會員後即可上傳處方箋，選擇藥局並追蹤訂單進度。
請點選下方選單開始使用！`))

	return "follow"
}

func (b *Transport) handleUnfollow(ctx context.Context, event models.Event) string {
	userId := event.Source.UserId

	// No reply channel exists after an unfollow. Step state is
	// dropped; the durable login record is left to its TTL.
	b.deps.Sessions.ClearStep(userId)

	log.
		WithField("user_id", userId).
		Info("user unfollowed, step state cleared")

	return "unfollow"
}

func (b *Transport) handleLoginStart(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	record, err := b.login(ctx, userId)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)

		b.respond(ctx, event, line.Text("系統忙碌中，請稍後再試 🙏"))

		return
	}

	if record != nil {
		b.respond(ctx, event, line.Text("您已經登入囉，"+record.MemberName+" 😊"))
		return
	}

	b.deps.Sessions.SetStep(userId, models.WaitingAccountData{})

	b.respond(ctx, event,
		line.Text("請輸入您的會員帳號 👤").WithQuickReply(
			line.MessageAction("取消", commandCancel),
		))
}

func (b *Transport) handleAccountInput(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	account := strings.TrimSpace(event.Message.Text)
	if account == "" {
		b.respond(ctx, event, line.Text("帳號不可為空白，請再輸入一次 👤"))
		return
	}

	b.deps.Sessions.SetStep(userId, models.WaitingPasswordData{
		Account: account,
	})

	b.respond(ctx, event,
		line.Text("請輸入您的密碼 🔑").WithQuickReply(
			line.MessageAction("取消", commandCancel),
		))
}

func (b *Transport) handlePasswordInput(ctx context.Context, event models.Event, data models.WaitingPasswordData) {
	userId := event.Source.UserId
	password := event.Message.Text

	var (
		member     *models.Member
		rejectText string
	)

	err := b.runWithLoading(ctx, userId, func(ctx context.Context) (*bool, error) {
		found, rejected, loginErr := b.deps.Pharmacy.Login(ctx, data.Account, password)
		if loginErr != nil {
			return nil, loginErr
		}

		if rejected != "" {
			rejectText = rejected
			return lo.ToPtr(false), nil
		}

		member = found

		if setErr := b.deps.Sessions.SetLogin(ctx, userId, models.LoginRecord{
			MemberId:    member.Id,
			MemberName:  member.Name,
			AccessToken: member.AccessToken,
		}); setErr != nil {
			return nil, setErr
		}

		minted, mintErr := b.deps.Tokens.Mint(userId, member.Id, member.AccessToken, member.Name)
		if mintErr != nil {
			log.
				WithField("user_id", userId).
				Errorf("b.deps.Tokens.Mint: %v", mintErr)
		} else {
			b.deps.Sessions.CacheAuth(userId, minted)
		}

		if connErr := b.deps.Notify.Connect(ctx, userId, member.Id, member.AccessToken); connErr != nil {
			log.
				WithField("user_id", userId).
				WithField("member_id", member.Id).
				Errorf("b.deps.Notify.Connect: %v", connErr)
		}

		return lo.ToPtr(true), nil
	})

	b.deps.Sessions.ClearStep(userId)

	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("login failed: %v", err)

		b.respond(ctx, event, line.Text("登入暫時無法使用，請稍後再試 🙏"))

		return
	}

	if rejectText != "" {
		b.respond(ctx, event, line.Text(`登入失敗：`+rejectText+`
請點選「帳號密碼登入」重新嘗試 🙏`))

		return
	}

	welcome := message.Build().
		SetMember(*member).
		BuildLoginSuccessMessage()

	b.respond(ctx, event, welcome)
}

func (b *Transport) handleLogout(ctx context.Context, event models.Event) {
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
		b.respond(ctx, event, line.Text("您目前尚未登入 😌"))
		return
	}

	if err = b.deps.Notify.Disconnect(ctx, record.MemberId); err != nil {
		log.
			WithField("user_id", userId).
			WithField("member_id", record.MemberId).
			Errorf("b.deps.Notify.Disconnect: %v", err)
	}

	if err = b.deps.Sessions.ClearLogin(ctx, userId); err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Sessions.ClearLogin: %v", err)

		b.respond(ctx, event, line.Text("登出失敗，請稍後再試 🙏"))

		return
	}

	b.deps.Sessions.ClearStep(userId)
	b.deps.Menu.SetByAuth(ctx, userId, false)

	b.respond(ctx, event, line.Text("您已成功登出，期待再次為您服務 👋"))
}

func (b *Transport) handleDeleteAccount(ctx context.Context, event models.Event) {
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
		b.respond(ctx, event, line.Text("請先登入會員 🙏"))
		return
	}

	var rejectText string

	err = b.runWithLoading(ctx, userId, func(ctx context.Context) (*bool, error) {
		rejected, deleteErr := b.deps.Pharmacy.DeleteAccount(ctx, record.AccessToken)
		if deleteErr != nil {
			return nil, deleteErr
		}

		if rejected != "" {
			rejectText = rejected
			return nil, nil
		}

		if disconnectErr := b.deps.Notify.Disconnect(ctx, record.MemberId); disconnectErr != nil {
			log.
				WithField("member_id", record.MemberId).
				Errorf("b.deps.Notify.Disconnect: %v", disconnectErr)
		}

		if clearErr := b.deps.Sessions.ClearLogin(ctx, userId); clearErr != nil {
			return nil, clearErr
		}

		return lo.ToPtr(false), nil
	})

	b.deps.Sessions.ClearStep(userId)

	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("account deletion failed: %v", err)

		b.respond(ctx, event, line.Text("刪除帳號失敗，請稍後再試 🙏"))

		return
	}

	if rejectText != "" {
		b.respond(ctx, event, line.Text("刪除帳號失敗："+rejectText))
		return
	}

	b.respond(ctx, event, line.Text("您的帳號已刪除，感謝您曾經的使用 🙏"))
}

func (b *Transport) handleMainMenu(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	b.deps.Sessions.ClearStep(userId)
	b.deps.Menu.Restore(ctx, userId, nil)

	b.respond(ctx, event, line.Text("已回到主選單 🌿"))
}

func (b *Transport) handleCancel(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	b.deps.Sessions.ClearStep(userId)

	b.respond(ctx, event, line.Text("已取消目前的操作 👌"))
}

func (b *Transport) handleFallback(ctx context.Context, event models.Event) {
	userId := event.Source.UserId

	record, err := b.login(ctx, userId)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)
	}

	if record == nil {
		b.respond(ctx, event, line.Text(`請先登入會員，即可上傳處方箋 🌿`).WithQuickReply(
			line.MessageAction("帳號密碼登入", commandLogin),
		))

		return
	}

	b.respond(ctx, event, line.Text(`請直接上傳處方箋圖片，或使用下方選單操作 📄`).WithQuickReply(
		line.MessageAction("我的訂單", commandOrderList),
		line.MessageAction("回主選單", commandMainMenu),
	))
}
