package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hsuehyc/herbalink/internal/models"
)

// VerifySignature checks the X-Line-Signature header against an
// HMAC-SHA256 of the raw webhook body.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)

	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func ParseWebhook(body []byte) (*models.Webhook, error) {
	webhook := new(models.Webhook)

	if err := json.Unmarshal(body, webhook); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return webhook, nil
}
