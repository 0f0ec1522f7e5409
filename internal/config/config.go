package config

import (
	"context"
	"os"

	"github.com/spf13/cast"
)

type Key = string

const (
	HTTPAddr Key = "HTTP_ADDR"

	LineChannelSecret Key = "LINE_CHANNEL_SECRET"
	LineChannelToken  Key = "LINE_CHANNEL_TOKEN"

	RichMenuGuestId   Key = "RICH_MENU_GUEST_ID"
	RichMenuMemberId  Key = "RICH_MENU_MEMBER_ID"
	RichMenuLoadingId Key = "RICH_MENU_LOADING_ID"

	PharmacyAPIURL Key = "PHARMACY_API_URL"

	NotifySocketURL Key = "NOTIFY_SOCKET_URL"

	RedisHost     Key = "REDIS_HOST"
	RedisPort     Key = "REDIS_PORT"
	RedisPassword Key = "REDIS_PASSWORD"

	SessionTokenSecret Key = "SESSION_TOKEN_SECRET"
)

type Value string

func Get(_ context.Context, key Key) Value {
	return Value(os.Getenv(key))
}

func (v Value) String() string {
	return string(v)
}

func (v Value) Int() int {
	return cast.ToInt(string(v))
}

func (v Value) IsEmpty() bool {
	return string(v) == ""
}
