package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsuehyc/herbalink/internal/models"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"destination":"bot","events":[]}`)

	assert.True(t, VerifySignature("secret", body, sign("secret", body)))
	assert.False(t, VerifySignature("secret", body, sign("other", body)))
	assert.False(t, VerifySignature("secret", append(body, ' '), sign("secret", body)))
	assert.False(t, VerifySignature("secret", body, ""))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"destination": "bot",
		"events": [
			{
				"type": "message",
				"replyToken": "reply-token",
				"timestamp": 1700000000000,
				"source": {"type": "user", "userId": "U1"},
				"message": {"id": "m1", "type": "text", "text": "主選單"}
			},
			{
				"type": "postback",
				"replyToken": "reply-token-2",
				"source": {"type": "user", "userId": "U1"},
				"postback": {"data": "action=order_detail&order_id=7"}
			}
		]
	}`)

	webhook, err := ParseWebhook(body)
	require.NoError(t, err)
	require.Len(t, webhook.Events, 2)

	first := webhook.Events[0]
	assert.Equal(t, models.EventTypeMessage, first.Type)
	assert.Equal(t, "reply-token", first.ReplyToken)
	assert.Equal(t, "U1", first.Source.UserId)
	require.NotNil(t, first.Message)
	assert.Equal(t, "主選單", first.Message.Text)

	second := webhook.Events[1]
	assert.Equal(t, models.EventTypePostback, second.Type)
	require.NotNil(t, second.Postback)
	assert.Equal(t, "action=order_detail&order_id=7", second.Postback.Data)
}

func TestParseWebhookMalformed(t *testing.T) {
	_, err := ParseWebhook([]byte(`not-json`))
	require.Error(t, err)
}
