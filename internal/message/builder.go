package message

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/models"
)

var orderStateTexts = map[models.OrderState]string{
	models.OrderStateRejected:   "訂單已被藥局婉拒 ❌",
	models.OrderStateCancelled:  "訂單已取消 🚫",
	models.OrderStateCompleted:  "訂單已完成，感謝您的使用 🎉",
	models.OrderStateReserved:   "訂單已成立，等待藥局確認 📝",
	models.OrderStateProcessing: "藥局正在為您調劑中 ⚗️",
	models.OrderStateReady:      "藥品已備妥，歡迎前往取藥 ✅",
}

// OrderStateText maps an upstream order state to a user-facing status
// line. Unrecognized states fall back to a generic label so no event
// is dropped silently.
func OrderStateText(state models.OrderState) string {
	if text, ok := orderStateTexts[state]; ok {
		return text
	}
	return fmt.Sprintf("訂單狀態已更新：%s 📦", state)
}

type Builder struct {
	event      models.OrderEvent
	member     models.Member
	order      models.Order
	orders     []models.Order
	pharmacies []models.Pharmacy
	elapsed    time.Duration
	token      string
}

func Build() Builder {
	return Builder{}
}

func (b Builder) SetOrderEvent(event models.OrderEvent) Builder {
	b.event = event
	return b
}

func (b Builder) SetMember(member models.Member) Builder {
	b.member = member
	return b
}

func (b Builder) SetOrder(order models.Order) Builder {
	b.order = order
	return b
}

func (b Builder) SetOrders(orders []models.Order) Builder {
	b.orders = orders
	return b
}

func (b Builder) SetPharmacies(pharmacies []models.Pharmacy) Builder {
	b.pharmacies = pharmacies
	return b
}

func (b Builder) SetElapsed(elapsed time.Duration) Builder {
	b.elapsed = elapsed
	return b
}

// SetToken embeds a session token in every postback payload the built
// messages carry. Claim names inside the token are single letters to
// stay under the platform's action payload length ceiling.
func (b Builder) SetToken(token string) Builder {
	b.token = token
	return b
}

func (b Builder) postbackData(data string) string {
	if b.token == "" {
		return data
	}
	return data + "&t=" + b.token
}

// BuildOrderEventMessages renders an upstream order state change as a
// status line plus a follow-up action prompt.
func (b Builder) BuildOrderEventMessages() []line.Message {
	status := fmt.Sprintf(`📋 訂單編號 %s
%s`, b.event.OrderCode, OrderStateText(b.event.State))

	prompt := line.Text("您可以進行以下操作 👇").WithQuickReply(
		line.PostbackAction("查看訂單明細", b.postbackData("action=order_detail&order_id="+cast.ToString(b.event.OrderId))),
		line.PostbackAction("聯絡藥局", b.postbackData("action=contact_pharmacy&order_id="+cast.ToString(b.event.OrderId))),
		line.MessageAction("回主選單", "主選單"),
	)

	return []line.Message{
		line.Text(status),
		prompt,
	}
}

func (b Builder) BuildLoginSuccessMessage() line.Message {
	return line.Text(fmt.Sprintf(`歡迎回來，%s 🌿
您已成功登入，可以開始上傳處方箋囉！`, b.member.Name))
}

func (b Builder) BuildProcessingNoticeMessage() line.Message {
	seconds := int(b.elapsed.Seconds())

	return line.Text(fmt.Sprintf(`您的處方箋正在辨識中，請稍候約 1 分鐘 ⏳
（已處理 %d 秒）`, seconds))
}

func (b Builder) BuildPharmacyListMessage() line.Message {
	items := lo.Map(b.pharmacies, func(pharmacy models.Pharmacy, _ int) line.QuickReplyItem {
		return line.PostbackAction(pharmacy.Name, "action=select_pharmacy&pharmacy_id="+pharmacy.Id)
	})

	text := `已收到您的處方箋 📄
請選擇配藥藥局 👇`

	return line.Text(text).WithQuickReply(items...)
}

func (b Builder) BuildOrderDetailMessage() line.Message {
	text := fmt.Sprintf(`📋 訂單明細
編號：%s
狀態：%s`, b.order.Code, OrderStateText(b.order.State))

	for _, history := range b.order.History {
		text += fmt.Sprintf("\n%s %s", history.At.Format("01/02 15:04"), OrderStateText(history.State))
	}

	return line.Text(text)
}

func (b Builder) BuildOrderListMessage() line.Message {
	if len(b.orders) == 0 {
		return line.Text("您目前沒有任何訂單 📭")
	}

	text := "您的訂單 📦"

	for index, order := range b.orders {
		text += fmt.Sprintf("\n%d. %s　%s", index+1, order.Code, OrderStateText(order.State))
	}

	items := lo.Map(b.orders, func(order models.Order, _ int) line.QuickReplyItem {
		return line.PostbackAction(order.Code, b.postbackData("action=order_detail&order_id="+cast.ToString(order.Id)))
	})

	return line.Text(text).WithQuickReply(items...)
}
