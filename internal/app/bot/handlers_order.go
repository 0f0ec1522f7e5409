package bot

import (
	"context"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/deps/pharmacy"
	"github.com/hsuehyc/herbalink/internal/message"
	"github.com/hsuehyc/herbalink/internal/models"
)

func (b *Transport) handlePrescriptionUpload(ctx context.Context, event models.Event) {
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
		b.respond(ctx, event, line.Text("請先登入會員，再上傳處方箋 🙏").WithQuickReply(
			line.MessageAction("帳號密碼登入", commandLogin),
		))

		return
	}

	content, err := b.deps.Line.Content(ctx, event.Message.Id)
	if err != nil {
		log.
			WithField("user_id", userId).
			WithField("message_id", event.Message.Id).
			Errorf("b.deps.Line.Content: %v", err)

		b.respond(ctx, event, line.Text("處方箋下載失敗，請重新上傳 📄"))

		return
	}

	log.
		WithField("user_id", userId).
		WithField("message_id", event.Message.Id).
		WithField("content_size", len(content)).
		Info("prescription image received")

	pharmacies, err := b.deps.Pharmacy.SearchPharmacies(ctx, "")
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Pharmacy.SearchPharmacies: %v", err)

		b.respond(ctx, event, line.Text("藥局查詢失敗，請稍後再試 🙏"))

		return
	}

	b.deps.Sessions.SetStep(userId, models.PrescriptionUploadedData{
		MessageId: event.Message.Id,
		ImageRef:  event.Message.Id,
	})

	listing := message.Build().
		SetPharmacies(pharmacies).
		BuildPharmacyListMessage()

	b.respond(ctx, event, listing)
}

func (b *Transport) handlePharmacySelect(ctx context.Context, event models.Event, pharmacyId string) {
	userId := event.Source.UserId

	state := b.deps.Sessions.State(userId)

	uploaded, ok := state.Data.(models.PrescriptionUploadedData)
	if !ok {
		b.respond(ctx, event, line.Text("請先上傳處方箋圖片 📄"))
		return
	}

	if pharmacyId == "" {
		b.respond(ctx, event, line.Text("無法辨識所選藥局，請重新選擇 🙏"))
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

	// The processing step doubles as the per-user admission lock: set
	// before the slow call, cleared on every exit path below.
	b.deps.Sessions.SetStep(userId, models.ProcessingImageData{
		ImageRef:   uploaded.ImageRef,
		PharmacyId: pharmacyId,
		StartedAt:  time.Now(),
	})

	var (
		order      *models.Order
		rejectText string
	)

	err = b.runWithLoading(ctx, userId, func(ctx context.Context) (*bool, error) {
		created, rejected, createErr := b.deps.Pharmacy.CreateOrder(ctx, record.AccessToken, pharmacy.CreateOrderParams{
			PharmacyId: pharmacyId,
			ImageRef:   uploaded.ImageRef,
		})
		if createErr != nil {
			return nil, createErr
		}

		if rejected != "" {
			rejectText = rejected
			return lo.ToPtr(true), nil
		}

		order = created

		return lo.ToPtr(true), nil
	})

	b.deps.Sessions.ClearStep(userId)

	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("order creation failed: %v", err)

		b.respond(ctx, event, line.Text("訂單建立失敗，請稍後再試 🙏"))

		return
	}

	if rejectText != "" {
		b.respond(ctx, event, line.Text("訂單建立失敗："+rejectText))
		return
	}

	b.respond(ctx, event, line.Text(`訂單已成立 🎉
訂單編號：`+order.Code+`
藥局確認後會透過通知告訴您進度！`))
}

func (b *Transport) handleOrderList(ctx context.Context, event models.Event) {
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
		b.respond(ctx, event, line.Text("請先登入會員，再查詢訂單 🙏").WithQuickReply(
			line.MessageAction("帳號密碼登入", commandLogin),
		))

		return
	}

	orders, err := b.deps.Pharmacy.Orders(ctx, record.AccessToken)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Pharmacy.Orders: %v", err)

		b.respond(ctx, event, line.Text("訂單查詢失敗，請稍後再試 🙏"))

		return
	}

	listing := message.Build().
		SetOrders(orders).
		SetToken(b.sessionToken(userId, record)).
		BuildOrderListMessage()

	b.respond(ctx, event, listing)
}

func (b *Transport) handleOrderDetail(ctx context.Context, event models.Event, orderId int64) {
	userId := event.Source.UserId

	record, err := b.login(ctx, userId)
	if err != nil || record == nil {
		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)

		b.respond(ctx, event, line.Text("請先登入會員，再查詢訂單 🙏"))

		return
	}

	order, rejected, err := b.deps.Pharmacy.Order(ctx, record.AccessToken, orderId)
	if err != nil {
		log.
			WithField("user_id", userId).
			WithField("order_id", orderId).
			Errorf("b.deps.Pharmacy.Order: %v", err)

		b.respond(ctx, event, line.Text("訂單查詢失敗，請稍後再試 🙏"))

		return
	}

	if rejected != "" {
		b.respond(ctx, event, line.Text("查無此訂單 😌"))
		return
	}

	detail := message.Build().
		SetOrder(*order).
		BuildOrderDetailMessage()

	b.respond(ctx, event, detail)
}

func (b *Transport) handleContactPharmacy(ctx context.Context, event models.Event, orderId int64) {
	userId := event.Source.UserId

	record, err := b.login(ctx, userId)
	if err != nil || record == nil {
		log.
			WithField("user_id", userId).
			Errorf("b.login: %v", err)

		b.respond(ctx, event, line.Text("請先登入會員 🙏"))

		return
	}

	order, rejected, err := b.deps.Pharmacy.Order(ctx, record.AccessToken, orderId)
	if err != nil {
		log.
			WithField("user_id", userId).
			WithField("order_id", orderId).
			Errorf("b.deps.Pharmacy.Order: %v", err)

		b.respond(ctx, event, line.Text("訂單查詢失敗，請稍後再試 🙏"))

		return
	}

	if rejected != "" {
		b.respond(ctx, event, line.Text("查無此訂單 😌"))
		return
	}

	pharmacies, err := b.deps.Pharmacy.SearchPharmacies(ctx, order.Area)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Pharmacy.SearchPharmacies: %v", err)

		b.respond(ctx, event, line.Text("藥局查詢失敗，請稍後再試 🙏"))

		return
	}

	found, ok := lo.Find(pharmacies, func(p models.Pharmacy) bool {
		return p.Id == order.PharmacyId
	})
	if !ok {
		b.respond(ctx, event, line.Text("找不到該筆訂單的藥局資訊 😌"))
		return
	}

	b.respond(ctx, event, line.Text(`🏪 `+found.Name+`
電話：`+found.Phone+`
地址：`+found.Address))
}
