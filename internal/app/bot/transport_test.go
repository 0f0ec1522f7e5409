package bot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, f *fixture, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)

	w := httptest.NewRecorder()
	f.transport.handleWebhook(context.Background(), w, req)

	return w
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{
		"destination": "bot",
		"events": [
			{
				"type": "message",
				"replyToken": "reply-token",
				"source": {"type": "user", "userId": "U1"},
				"message": {"id": "m1", "type": "text", "text": "取消"}
			}
		]
	}`)

	w := postWebhook(t, f, body, signBody("channel-secret", body))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.line.replies, 1)
	assert.Contains(t, f.line.replies[0][0].Text, "已取消")
}

func TestHandleWebhookMalformedBody(t *testing.T) {
	f := newFixture(t)

	body := []byte(`not-json`)
	w := postWebhook(t, f, body, signBody("channel-secret", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookBadSignatureToleratedInDev(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"destination":"bot","events":[]}`)
	w := postWebhook(t, f, body, "bad-signature")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleWebhookBadSignatureRejectedInProduction(t *testing.T) {
	t.Setenv("ENV", "PROD")

	f := newFixture(t)

	body := []byte(`{"destination":"bot","events":[]}`)
	w := postWebhook(t, f, body, "bad-signature")

	assert.Equal(t, http.StatusForbidden, w.Code)
}
