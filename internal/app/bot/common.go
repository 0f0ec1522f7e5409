package bot

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/models"
)

// login resolves the user's current login state: the short-lived
// token cache first, the durable record second. Only the durable
// record is authoritative; the cache is re-verified before use.
func (b *Transport) login(ctx context.Context, userId string) (*models.LoginRecord, error) {
	if claims, ok := b.deps.Sessions.CachedAuth(userId); ok {
		return &models.LoginRecord{
			MemberId:    claims.MemberId,
			MemberName:  claims.MemberName,
			AccessToken: claims.AccessToken,
		}, nil
	}

	record, err := b.deps.Sessions.Login(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("b.deps.Sessions.Login: %w", err)
	}

	return record, nil
}

// sessionToken mints a token for embedding in action payloads, so the
// postback can be subject-checked when it comes back. Minting failures
// degrade to a payload without a token.
func (b *Transport) sessionToken(userId string, record *models.LoginRecord) string {
	minted, err := b.deps.Tokens.Mint(userId, record.MemberId, record.AccessToken, record.MemberName)
	if err != nil {
		log.
			WithField("user_id", userId).
			Errorf("b.deps.Tokens.Mint: %v", err)

		return ""
	}

	return minted
}

// runWithLoading wraps a slow operation in the loading-menu protocol:
// the menu enters loading before the operation and is restored on
// every exit path, including panics. The operation decides the final
// menu by returning the user's login truth, or nil to re-derive it
// from the durable record.
func (b *Transport) runWithLoading(ctx context.Context, userId string, op func(ctx context.Context) (*bool, error)) (err error) {
	b.deps.Menu.EnterLoading(ctx, userId)

	var loggedIn *bool

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
			loggedIn = nil

			log.
				WithField("user_id", userId).
				Errorf("runWithLoading: panic recovered: %v", r)
		}

		b.deps.Menu.Restore(ctx, userId, loggedIn)
	}()

	loggedIn, err = op(ctx)

	return err
}
