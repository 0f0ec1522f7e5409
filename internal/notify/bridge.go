package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/deps/storage/kv"
	"github.com/hsuehyc/herbalink/internal/models"
	"github.com/hsuehyc/herbalink/pkg/worker"
)

const connKeyPrefix = "conn:member:"

const (
	defaultMaxReconnects  = 3
	defaultReconnectDelay = 2 * time.Second
	defaultRecordTTL      = 30 * 24 * time.Hour
)

// Sender is the outbound chat surface used for relayed notifications.
type Sender interface {
	Push(ctx context.Context, to string, messages ...line.Message) error
}

// TokenSource mints the session token embedded in notification action
// payloads, so the acting surface can be subject-checked on return.
type TokenSource interface {
	Mint(userId string, memberId int64, accessToken, memberName string) (string, error)
}

type Config struct {
	URL string `validate:"required"`

	MaxReconnects  uint64
	ReconnectDelay time.Duration
	RecordTTL      time.Duration
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type Dependencies struct {
	Storage kv.Store
	Line    Sender
	Dialer  Dialer
	Tokens  TokenSource
}

// Bridge relays order state changes from the upstream real-time
// source into chat pushes, holding at most one live subscription per
// member.
type Bridge struct {
	config Config
	deps   Dependencies

	runCtx context.Context
	pool   *worker.Pool

	mu    sync.Mutex
	conns map[int64]*liveConn
	locks map[int64]*sync.Mutex
}

type liveConn struct {
	sessionId string
	closed    chan struct{}

	mu   sync.Mutex
	conn Conn
}

func (l *liveConn) current() Conn {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.conn
}

func NewBridge(ctx context.Context, config Config, deps Dependencies) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.MaxReconnects == 0 {
		config.MaxReconnects = defaultMaxReconnects
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaultReconnectDelay
	}
	if config.RecordTTL <= 0 {
		config.RecordTTL = defaultRecordTTL
	}

	return &Bridge{
		config: config,
		deps:   deps,
		runCtx: ctx,
		pool:   worker.NewPool(ctx, worker.DefaultCount),
		conns:  make(map[int64]*liveConn),
		locks:  make(map[int64]*sync.Mutex),
	}, nil
}

func connKey(memberId int64) string {
	return fmt.Sprintf("%s%d", connKeyPrefix, memberId)
}

// memberLock serializes Connect and Disconnect per member, so an
// interleaved call always observes a complete teardown-dial-record
// sequence and never a half-built subscription.
func (b *Bridge) memberLock(memberId int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[memberId]
	if !ok {
		lock = new(sync.Mutex)
		b.locks[memberId] = lock
	}

	return lock
}

// Connect establishes the member's subscription. Any prior
// subscription for the same member is torn down first, so repeated
// calls collapse to a single live connection carrying the latest
// access token.
func (b *Bridge) Connect(ctx context.Context, userId string, memberId int64, accessToken string) error {
	lock := b.memberLock(memberId)
	lock.Lock()
	defer lock.Unlock()

	if err := b.teardown(ctx, memberId); err != nil {
		log.
			WithField("member_id", memberId).
			Errorf("b.teardown: %v", err)
	}

	conn, err := b.deps.Dialer.Dial(ctx, b.config.URL, accessToken)
	if err != nil {
		return fmt.Errorf("b.deps.Dialer.Dial: %w", err)
	}

	if err = conn.WriteJSON(joinFrame(memberChannel(memberId))); err != nil {
		_ = conn.Close()
		return fmt.Errorf("conn.WriteJSON: %w", err)
	}

	record := models.ConnectionRecord{
		UserId:      userId,
		MemberId:    memberId,
		SessionId:   uuid.NewString(),
		AccessToken: accessToken,
		ConnectedAt: time.Now(),
	}

	if err = b.setRecord(ctx, record); err != nil {
		_ = conn.Close()
		return fmt.Errorf("b.setRecord: %w", err)
	}

	live := &liveConn{
		sessionId: record.SessionId,
		closed:    make(chan struct{}),
		conn:      conn,
	}

	b.mu.Lock()
	b.conns[memberId] = live
	b.mu.Unlock()

	go b.readLoop(record, live)

	log.
		WithField("user_id", userId).
		WithField("member_id", memberId).
		WithField("session_id", record.SessionId).
		Info("notify: upstream subscription established")

	return nil
}

// Disconnect tears the member's subscription down and deletes its
// record. Calling it without a live subscription is a logged no-op.
func (b *Bridge) Disconnect(ctx context.Context, memberId int64) error {
	lock := b.memberLock(memberId)
	lock.Lock()
	defer lock.Unlock()

	record, err := b.record(ctx, memberId)
	if err != nil {
		return fmt.Errorf("b.record: %w", err)
	}

	if record == nil {
		log.
			WithField("member_id", memberId).
			Info("notify: disconnect without connection record, nothing to do")

		return nil
	}

	if err = b.teardown(ctx, memberId); err != nil {
		return fmt.Errorf("b.teardown: %w", err)
	}

	log.
		WithField("user_id", record.UserId).
		WithField("member_id", memberId).
		Info("notify: upstream subscription closed")

	return nil
}

// EnsureConnected opportunistically revives the user's subscription
// when the hosting environment silently dropped the transport. No
// record means the user never connected: not an error.
func (b *Bridge) EnsureConnected(ctx context.Context, userId string) (bool, error) {
	record, err := b.recordByUser(ctx, userId)
	if err != nil {
		return false, fmt.Errorf("b.recordByUser: %w", err)
	}

	if record == nil {
		return false, nil
	}

	b.mu.Lock()
	_, alive := b.conns[record.MemberId]
	b.mu.Unlock()

	if alive {
		return true, nil
	}

	if err = b.Connect(ctx, record.UserId, record.MemberId, record.AccessToken); err != nil {
		return false, fmt.Errorf("b.Connect: %w", err)
	}

	return true, nil
}

func (b *Bridge) teardown(ctx context.Context, memberId int64) error {
	b.mu.Lock()
	live, ok := b.conns[memberId]
	if ok {
		delete(b.conns, memberId)
	}
	b.mu.Unlock()

	if ok {
		close(live.closed)

		live.mu.Lock()
		if err := live.conn.WriteJSON(leaveFrame(memberChannel(memberId))); err != nil {
			log.
				WithField("member_id", memberId).
				Warnf("notify: leave frame write failed: %v", err)
		}
		_ = live.conn.Close()
		live.mu.Unlock()
	}

	if err := b.deps.Storage.Delete(ctx, connKey(memberId)); err != nil {
		return fmt.Errorf("b.deps.Storage.Delete: %w", err)
	}

	return nil
}

func (b *Bridge) setRecord(ctx context.Context, record models.ConnectionRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err = b.deps.Storage.Set(ctx, connKey(record.MemberId), value, b.config.RecordTTL); err != nil {
		return fmt.Errorf("b.deps.Storage.Set: %w", err)
	}

	return nil
}

func (b *Bridge) record(ctx context.Context, memberId int64) (*models.ConnectionRecord, error) {
	value, err := b.deps.Storage.Get(ctx, connKey(memberId))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("b.deps.Storage.Get: %w", err)
	}

	record := new(models.ConnectionRecord)

	if err = json.Unmarshal(value, record); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return record, nil
}

func (b *Bridge) recordByUser(ctx context.Context, userId string) (*models.ConnectionRecord, error) {
	keys, err := b.deps.Storage.Keys(ctx, connKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("b.deps.Storage.Keys: %w", err)
	}

	for _, key := range keys {
		value, err := b.deps.Storage.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("b.deps.Storage.Get: %w", err)
		}

		record := new(models.ConnectionRecord)

		if err = json.Unmarshal(value, record); err != nil {
			return nil, fmt.Errorf("json.Unmarshal: %w", err)
		}

		if record.UserId == userId {
			return record, nil
		}
	}

	return nil, nil
}

func (b *Bridge) readLoop(record models.ConnectionRecord, live *liveConn) {
	for {
		payload, err := live.current().ReadMessage()
		if err == nil {
			b.handlePayload(record, payload)
			continue
		}

		select {
		case <-live.closed:
			return
		default:
		}

		if isNetworkClose(err) {
			log.
				WithField("member_id", record.MemberId).
				Warnf("notify: transport dropped by peer, record retained for lazy reconnect: %v", err)

			b.dropLive(record.MemberId, live)
			return
		}

		log.
			WithField("member_id", record.MemberId).
			Errorf("notify: read failed, reconnecting: %v", err)

		if !b.reconnect(record, live) {
			return
		}
	}
}

// reconnect redials with a fixed delay and a bounded attempt count.
// Exhausting the attempts gives up: the connection record is deleted
// rather than retried forever.
func (b *Bridge) reconnect(record models.ConnectionRecord, live *liveConn) bool {
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(b.config.ReconnectDelay),
		b.config.MaxReconnects,
	)

	conn, err := backoff.RetryWithData(func() (Conn, error) {
		select {
		case <-live.closed:
			return nil, backoff.Permanent(errors.New("connection closed"))
		default:
		}

		redialed, dialErr := b.deps.Dialer.Dial(b.runCtx, b.config.URL, record.AccessToken)
		if dialErr != nil {
			return nil, dialErr
		}

		if joinErr := redialed.WriteJSON(joinFrame(memberChannel(record.MemberId))); joinErr != nil {
			_ = redialed.Close()
			return nil, joinErr
		}

		return redialed, nil
	}, policy)
	if err != nil {
		log.
			WithField("member_id", record.MemberId).
			Errorf("notify: reconnect attempts exhausted, giving up: %v", err)

		b.dropLive(record.MemberId, live)

		if delErr := b.deps.Storage.Delete(b.runCtx, connKey(record.MemberId)); delErr != nil {
			log.
				WithField("member_id", record.MemberId).
				Errorf("b.deps.Storage.Delete: %v", delErr)
		}

		return false
	}

	live.mu.Lock()

	select {
	case <-live.closed:
		live.mu.Unlock()

		// Torn down while the redial was in flight: the fresh
		// transport must not outlive the subscription.
		_ = conn.WriteJSON(leaveFrame(memberChannel(record.MemberId)))
		_ = conn.Close()

		return false
	default:
	}

	_ = live.conn.Close()
	live.conn = conn
	live.mu.Unlock()

	log.
		WithField("member_id", record.MemberId).
		Info("notify: upstream subscription re-established")

	return true
}

func (b *Bridge) dropLive(memberId int64, live *liveConn) {
	live.mu.Lock()
	_ = live.conn.Close()
	live.mu.Unlock()

	b.mu.Lock()
	if current, ok := b.conns[memberId]; ok && current == live {
		delete(b.conns, memberId)
	}
	b.mu.Unlock()
}
