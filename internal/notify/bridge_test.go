package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/deps/storage/kv"
	"github.com/hsuehyc/herbalink/internal/models"
	"github.com/hsuehyc/herbalink/internal/token"
)

type readResult struct {
	payload []byte
	err     error
}

type fakeConn struct {
	reads chan readResult
	once  sync.Once

	mu     sync.Mutex
	writes []frame
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads: make(chan readResult, 8),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	result, ok := <-c.reads
	if !ok {
		return nil, net.ErrClosed
	}
	return result.payload, result.err
}

func (c *fakeConn) WriteJSON(value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	written, ok := value.(frame)
	if !ok {
		return errors.New("unexpected write type")
	}

	c.writes = append(c.writes, written)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.once.Do(func() { close(c.reads) })
	return nil
}

func (c *fakeConn) failRead(err error) {
	c.reads <- readResult{err: err}
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) writtenEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]string, 0, len(c.writes))
	for _, written := range c.writes {
		events = append(events, written.Event)
	}
	return events
}

type fakeDialer struct {
	mu sync.Mutex

	conns  []*fakeConn
	tokens []string
	err    error
}

func (d *fakeDialer) Dial(_ context.Context, _, accessToken string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	d.tokens = append(d.tokens, accessToken)

	conn := newFakeConn()
	d.conns = append(d.conns, conn)

	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(index int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[index]
}

func (d *fakeDialer) failDials(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type push struct {
	to       string
	messages []line.Message
}

type fakeSender struct {
	mu     sync.Mutex
	pushes []push
}

func (s *fakeSender) Push(_ context.Context, to string, messages ...line.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushes = append(s.pushes, push{to: to, messages: messages})
	return nil
}

func (s *fakeSender) pushed() []push {
	s.mu.Lock()
	defer s.mu.Unlock()

	pushes := make([]push, len(s.pushes))
	copy(pushes, s.pushes)
	return pushes
}

// gatedDialer parks one dial (by ordinal) until released, so tests can
// hold a Connect or redial in flight while something else interleaves.
type gatedDialer struct {
	inner   *fakeDialer
	gateAt  int64
	release chan struct{}

	calls  atomic.Int64
	parked atomic.Bool
}

func newGatedDialer(inner *fakeDialer, gateAt int64) *gatedDialer {
	return &gatedDialer{
		inner:   inner,
		gateAt:  gateAt,
		release: make(chan struct{}),
	}
}

func (d *gatedDialer) Dial(ctx context.Context, rawURL, accessToken string) (Conn, error) {
	if d.calls.Add(1) == d.gateAt {
		d.parked.Store(true)
		<-d.release
	}

	return d.inner.Dial(ctx, rawURL, accessToken)
}

type bridgeFixture struct {
	bridge  *Bridge
	dialer  *fakeDialer
	sender  *fakeSender
	storage *kv.Memory
	codec   *token.Codec
}

func newBridgeFixture(t *testing.T, config Config) bridgeFixture {
	return newBridgeFixtureWithDialer(t, config, nil)
}

func newBridgeFixtureWithDialer(t *testing.T, config Config, wrap func(*fakeDialer) Dialer) bridgeFixture {
	t.Helper()

	config.URL = "ws://upstream.test/socket"

	dialer := new(fakeDialer)
	sender := new(fakeSender)
	storage := kv.NewMemory()

	codec, err := token.NewCodec(token.Config{Secret: "test-secret"})
	require.NoError(t, err)

	var dial Dialer = dialer
	if wrap != nil {
		dial = wrap(dialer)
	}

	bridge, err := NewBridge(context.Background(), config, Dependencies{
		Storage: storage,
		Line:    sender,
		Dialer:  dial,
		Tokens:  codec,
	})
	require.NoError(t, err)

	return bridgeFixture{
		bridge:  bridge,
		dialer:  dialer,
		sender:  sender,
		storage: storage,
		codec:   codec,
	}
}

func (f bridgeFixture) liveCount() int {
	f.bridge.mu.Lock()
	defer f.bridge.mu.Unlock()
	return len(f.bridge.conns)
}

func (f bridgeFixture) storedRecord(t *testing.T, memberId int64) *models.ConnectionRecord {
	t.Helper()

	value, err := f.storage.Get(context.Background(), connKey(memberId))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)

	record := new(models.ConnectionRecord)
	require.NoError(t, json.Unmarshal(value, record))

	return record
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	err := fixture.bridge.Connect(ctx, "U1", 42, "token-a")
	require.NoError(t, err)

	require.Equal(t, 1, fixture.dialer.dials())
	assert.Equal(t, []string{"token-a"}, fixture.dialer.tokens)
	assert.Equal(t, []string{"join"}, fixture.dialer.conn(0).writtenEvents())

	record := fixture.storedRecord(t, 42)
	require.NotNil(t, record)
	assert.Equal(t, "U1", record.UserId)
	assert.Equal(t, "token-a", record.AccessToken)
	assert.NotEmpty(t, record.SessionId)

	assert.Equal(t, 1, fixture.liveCount())
}

func TestConnectReplacesPriorConnection(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	first := fixture.storedRecord(t, 42)
	require.NotNil(t, first)

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-b"))

	require.Equal(t, 2, fixture.dialer.dials())

	// first transport got the leave frame and is gone
	assert.Equal(t, []string{"join", "leave"}, fixture.dialer.conn(0).writtenEvents())
	assert.True(t, fixture.dialer.conn(0).isClosed())

	second := fixture.storedRecord(t, 42)
	require.NotNil(t, second)
	assert.Equal(t, "token-b", second.AccessToken)
	assert.NotEqual(t, first.SessionId, second.SessionId)

	assert.Equal(t, 1, fixture.liveCount())
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))
	require.NoError(t, fixture.bridge.Disconnect(ctx, 42))

	assert.True(t, fixture.dialer.conn(0).isClosed())
	assert.Nil(t, fixture.storedRecord(t, 42))
	assert.Equal(t, 0, fixture.liveCount())

	// repeated disconnects are a no-op
	require.NoError(t, fixture.bridge.Disconnect(ctx, 42))
}

func TestDisconnectWithoutRecord(t *testing.T) {
	fixture := newBridgeFixture(t, Config{})

	require.NoError(t, fixture.bridge.Disconnect(context.Background(), 42))
	assert.Equal(t, 0, fixture.dialer.dials())
}

func TestEnsureConnectedWithoutRecord(t *testing.T) {
	fixture := newBridgeFixture(t, Config{})

	connected, err := fixture.bridge.EnsureConnected(context.Background(), "U1")
	require.NoError(t, err)

	assert.False(t, connected)
	assert.Equal(t, 0, fixture.dialer.dials())
}

func TestEnsureConnectedAlive(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	connected, err := fixture.bridge.EnsureConnected(ctx, "U1")
	require.NoError(t, err)

	assert.True(t, connected)
	assert.Equal(t, 1, fixture.dialer.dials())
}

func TestEnsureConnectedRevivesFromRecord(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	record := models.ConnectionRecord{
		UserId:      "U1",
		MemberId:    42,
		SessionId:   "stale-session",
		AccessToken: "token-a",
		ConnectedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, fixture.bridge.setRecord(ctx, record))

	connected, err := fixture.bridge.EnsureConnected(ctx, "U1")
	require.NoError(t, err)

	assert.True(t, connected)
	require.Equal(t, 1, fixture.dialer.dials())
	assert.Equal(t, []string{"token-a"}, fixture.dialer.tokens)

	revived := fixture.storedRecord(t, 42)
	require.NotNil(t, revived)
	assert.NotEqual(t, "stale-session", revived.SessionId)

	assert.Equal(t, 1, fixture.liveCount())
}

func TestPeerCloseRetainsRecord(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	fixture.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseGoingAway})

	require.Eventually(t, func() bool {
		return fixture.liveCount() == 0
	}, time.Second, 5*time.Millisecond)

	// record survives the drop so the next user action reconnects lazily
	assert.NotNil(t, fixture.storedRecord(t, 42))
	assert.Equal(t, 1, fixture.dialer.dials())
}

func TestReadErrorReconnects(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{ReconnectDelay: time.Millisecond})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	fixture.dialer.conn(0).failRead(errors.New("read failed"))

	require.Eventually(t, func() bool {
		return fixture.dialer.dials() == 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(fixture.dialer.conn(1).writtenEvents()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"join"}, fixture.dialer.conn(1).writtenEvents())
	assert.NotNil(t, fixture.storedRecord(t, 42))
	assert.Equal(t, 1, fixture.liveCount())
}

func TestReconnectExhaustionDeletesRecord(t *testing.T) {
	ctx := context.Background()
	fixture := newBridgeFixture(t, Config{
		MaxReconnects:  2,
		ReconnectDelay: time.Millisecond,
	})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	fixture.dialer.failDials(errors.New("dial failed"))
	fixture.dialer.conn(0).failRead(errors.New("read failed"))

	require.Eventually(t, func() bool {
		return fixture.storedRecord(t, 42) == nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, fixture.liveCount())
}

func TestConnectSerializedUnderConcurrency(t *testing.T) {
	ctx := context.Background()

	var gated *gatedDialer
	fixture := newBridgeFixtureWithDialer(t, Config{}, func(inner *fakeDialer) Dialer {
		gated = newGatedDialer(inner, 1)
		return gated
	})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		assert.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-b"))
	}()

	// one Connect is parked mid-dial, the other must wait on the
	// member lock instead of racing past it
	require.Eventually(t, func() bool {
		return gated.parked.Load()
	}, time.Second, 5*time.Millisecond)

	close(gated.release)
	wg.Wait()

	require.Equal(t, 2, fixture.dialer.dials())

	// the first subscription was fully torn down before the second
	// was dialed, whichever Connect won the lock
	assert.True(t, fixture.dialer.conn(0).isClosed())
	assert.Equal(t, []string{"join", "leave"}, fixture.dialer.conn(0).writtenEvents())
	assert.False(t, fixture.dialer.conn(1).isClosed())
	assert.Equal(t, []string{"join"}, fixture.dialer.conn(1).writtenEvents())

	assert.Equal(t, 1, fixture.liveCount())

	record := fixture.storedRecord(t, 42)
	require.NotNil(t, record)
	assert.Equal(t, fixture.dialer.tokens[1], record.AccessToken)
}

func TestDisconnectDuringReconnect(t *testing.T) {
	ctx := context.Background()

	var gated *gatedDialer
	fixture := newBridgeFixtureWithDialer(t, Config{ReconnectDelay: time.Millisecond}, func(inner *fakeDialer) Dialer {
		gated = newGatedDialer(inner, 2)
		return gated
	})

	require.NoError(t, fixture.bridge.Connect(ctx, "U1", 42, "token-a"))

	fixture.dialer.conn(0).failRead(errors.New("read failed"))

	require.Eventually(t, func() bool {
		return gated.parked.Load()
	}, time.Second, 5*time.Millisecond)

	// teardown completes while the redial is still in flight
	require.NoError(t, fixture.bridge.Disconnect(ctx, 42))
	assert.Nil(t, fixture.storedRecord(t, 42))
	assert.Equal(t, 0, fixture.liveCount())

	close(gated.release)

	// the late redial notices the teardown and retires its own
	// transport instead of keeping a zombie subscription
	require.Eventually(t, func() bool {
		return fixture.dialer.dials() == 2 && fixture.dialer.conn(1).isClosed()
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"join", "leave"}, fixture.dialer.conn(1).writtenEvents())
	assert.Equal(t, 0, fixture.liveCount())
	assert.Nil(t, fixture.storedRecord(t, 42))
}

func TestHandlePayloadRelaysOrderEvent(t *testing.T) {
	fixture := newBridgeFixture(t, Config{})

	record := models.ConnectionRecord{UserId: "U1", MemberId: 42}

	data, err := json.Marshal(models.OrderEvent{
		OrderId:   7,
		OrderCode: "HB-0007",
		MemberId:  42,
		State:     models.OrderStateReady,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(frame{Event: orderStateChangedEvent, Data: data})
	require.NoError(t, err)

	fixture.bridge.handlePayload(record, payload)

	require.Eventually(t, func() bool {
		return len(fixture.sender.pushed()) == 1
	}, time.Second, 5*time.Millisecond)

	pushed := fixture.sender.pushed()[0]
	assert.Equal(t, "U1", pushed.to)
	require.Len(t, pushed.messages, 2)
	assert.Contains(t, pushed.messages[0].Text, "HB-0007")
	assert.Contains(t, pushed.messages[0].Text, "藥品已備妥")
	require.NotNil(t, pushed.messages[1].QuickReply)

	values, err := url.ParseQuery(pushed.messages[1].QuickReply.Items[0].Action.Data)
	require.NoError(t, err)
	require.NotEmpty(t, values.Get("t"))

	claims, err := fixture.codec.VerifyFor(values.Get("t"), "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.MemberId)
}

func TestHandlePayloadSkipsUnrelatedFrames(t *testing.T) {
	fixture := newBridgeFixture(t, Config{})

	record := models.ConnectionRecord{UserId: "U1", MemberId: 42}

	// protocol chatter
	fixture.bridge.handlePayload(record, []byte(`{"event":"ping"}`))

	// unmapped upstream event
	fixture.bridge.handlePayload(record, []byte(`{"event":"inventory_changed","data":{}}`))

	// order event addressed to another member
	data, err := json.Marshal(models.OrderEvent{OrderId: 7, MemberId: 43, State: models.OrderStateReady})
	require.NoError(t, err)
	payload, err := json.Marshal(frame{Event: orderStateChangedEvent, Data: data})
	require.NoError(t, err)
	fixture.bridge.handlePayload(record, payload)

	// malformed frame
	fixture.bridge.handlePayload(record, []byte(`not-json`))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fixture.sender.pushed())
}
