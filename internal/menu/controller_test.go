package menu

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsuehyc/herbalink/internal/deps/storage/kv"
	"github.com/hsuehyc/herbalink/internal/models"
	"github.com/hsuehyc/herbalink/internal/session"
	"github.com/hsuehyc/herbalink/internal/token"
)

type fakeLine struct {
	mu sync.Mutex

	links     []string
	unlinks   int
	linkErr   error
	unlinkErr error
}

func (f *fakeLine) LinkRichMenu(_ context.Context, _, richMenuId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.linkErr != nil {
		return f.linkErr
	}

	f.links = append(f.links, richMenuId)
	return nil
}

func (f *fakeLine) UnlinkRichMenu(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unlinks++
	return f.unlinkErr
}

func newTestController(t *testing.T) (*Controller, *fakeLine, *session.Store) {
	t.Helper()

	codec, err := token.NewCodec(token.Config{Secret: "test-secret"})
	require.NoError(t, err)

	sessions := session.NewStore(session.Config{}, session.Dependencies{
		Storage: kv.NewMemory(),
		Codec:   codec,
	})

	line := new(fakeLine)

	controller, err := NewController(Config{
		GuestId:   "menu-guest",
		MemberId:  "menu-member",
		LoadingId: "menu-loading",
	}, Dependencies{
		Line:     line,
		Sessions: sessions,
	})
	require.NoError(t, err)

	return controller, line, sessions
}

func TestNewControllerRequiresMenuIds(t *testing.T) {
	_, err := NewController(Config{GuestId: "menu-guest"}, Dependencies{})
	require.Error(t, err)
}

func TestSetByAuth(t *testing.T) {
	ctx := context.Background()
	controller, line, _ := newTestController(t)

	controller.SetByAuth(ctx, "U1", false)
	controller.SetByAuth(ctx, "U1", true)

	assert.Equal(t, []string{"menu-guest", "menu-member"}, line.links)
	assert.Equal(t, 2, line.unlinks)
}

func TestEnterLoadingThenRestore(t *testing.T) {
	ctx := context.Background()
	controller, line, _ := newTestController(t)

	controller.EnterLoading(ctx, "U1")

	loggedIn := true
	controller.Restore(ctx, "U1", &loggedIn)

	assert.Equal(t, []string{"menu-loading", "menu-member"}, line.links)
}

func TestRestoreDerivesFromLoginRecord(t *testing.T) {
	ctx := context.Background()
	controller, line, sessions := newTestController(t)

	controller.Restore(ctx, "U1", nil)
	assert.Equal(t, []string{"menu-guest"}, line.links)

	err := sessions.SetLogin(ctx, "U1", models.LoginRecord{MemberId: 42})
	require.NoError(t, err)

	controller.Restore(ctx, "U1", nil)
	assert.Equal(t, []string{"menu-guest", "menu-member"}, line.links)
}

func TestBindFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	controller, line, _ := newTestController(t)

	line.unlinkErr = errors.New("unlink failed")
	controller.SetByAuth(ctx, "U1", true)

	// unlink failure must not stop the link
	assert.Equal(t, []string{"menu-member"}, line.links)

	line.linkErr = errors.New("link failed")
	controller.SetByAuth(ctx, "U1", false)

	assert.Equal(t, []string{"menu-member"}, line.links)
}
