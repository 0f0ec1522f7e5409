package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/storage/kv"
	"github.com/hsuehyc/herbalink/internal/models"
	"github.com/hsuehyc/herbalink/internal/token"
	"github.com/hsuehyc/herbalink/pkg/cache"
)

const loginKeyPrefix = "login:"

const (
	defaultStepTimeout  = 5 * time.Minute
	defaultLoginTTL     = 30 * 24 * time.Hour
	defaultAuthCacheTTL = 5 * time.Minute
)

type Config struct {
	StepTimeout  time.Duration
	LoginTTL     time.Duration
	AuthCacheTTL time.Duration
}

type Dependencies struct {
	Storage kv.Store
	Codec   *token.Codec
}

// Store tracks conversational state across stateless webhook
// deliveries. Step state lives in process; login records live in the
// durable key-value store, which stays authoritative for auth checks.
type Store struct {
	config Config
	deps   Dependencies

	mu     sync.Mutex
	states map[string]models.UserState

	authCache *cache.Cache[string, string]
}

func NewStore(config Config, deps Dependencies) *Store {
	if config.StepTimeout <= 0 {
		config.StepTimeout = defaultStepTimeout
	}
	if config.LoginTTL <= 0 {
		config.LoginTTL = defaultLoginTTL
	}
	if config.AuthCacheTTL <= 0 {
		config.AuthCacheTTL = defaultAuthCacheTTL
	}

	return &Store{
		config:    config,
		deps:      deps,
		states:    make(map[string]models.UserState),
		authCache: cache.NewCache[string, string](config.AuthCacheTTL),
	}
}

// State returns the user's current step state, creating an empty one
// on first reference. A timed-out step reads as already cleared.
func (s *Store) State(userId string) models.UserState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userId]
	if !ok {
		return models.UserState{UserId: userId}
	}

	if s.stepExpired(state) {
		state = models.UserState{UserId: userId}
		s.states[userId] = state
	}

	return state
}

// SetStep replaces the active step and its payload whole. Payloads
// from a prior step never survive the transition.
func (s *Store) SetStep(userId string, data models.StepData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[userId] = models.UserState{
		UserId:    userId,
		Data:      data,
		StepSetAt: time.Now(),
	}
}

func (s *Store) ClearStep(userId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[userId] = models.UserState{UserId: userId}
}

func (s *Store) StepTimedOut(userId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userId]
	if !ok {
		return false
	}

	return s.stepExpired(state)
}

func (s *Store) stepExpired(state models.UserState) bool {
	if state.Data == nil {
		return false
	}
	return time.Since(state.StepSetAt) > s.config.StepTimeout
}

// SetLogin writes the authoritative login record with a sliding TTL.
func (s *Store) SetLogin(ctx context.Context, userId string, record models.LoginRecord) error {
	record.SetAt = time.Now()

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err = s.deps.Storage.Set(ctx, loginKeyPrefix+userId, value, s.config.LoginTTL); err != nil {
		return fmt.Errorf("s.deps.Storage.Set: %w", err)
	}

	return nil
}

// Login reads the durable login record. A hit extends the record's
// TTL so active users stay logged in. Missing records return nil.
func (s *Store) Login(ctx context.Context, userId string) (*models.LoginRecord, error) {
	value, err := s.deps.Storage.Get(ctx, loginKeyPrefix+userId)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("s.deps.Storage.Get: %w", err)
	}

	record := new(models.LoginRecord)

	if err = json.Unmarshal(value, record); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	if err = s.deps.Storage.Expire(ctx, loginKeyPrefix+userId, s.config.LoginTTL); err != nil {
		log.
			WithField("user_id", userId).
			Errorf("s.deps.Storage.Expire: login ttl extend failed: %v", err)
	}

	return record, nil
}

func (s *Store) ClearLogin(ctx context.Context, userId string) error {
	s.authCache.Delete(userId)

	if err := s.deps.Storage.Delete(ctx, loginKeyPrefix+userId); err != nil {
		return fmt.Errorf("s.deps.Storage.Delete: %w", err)
	}

	return nil
}

func (s *Store) IsLoggedIn(ctx context.Context, userId string) (bool, error) {
	record, err := s.Login(ctx, userId)
	if err != nil {
		return false, err
	}

	return record != nil, nil
}

// CacheAuth memoizes a minted token for a short window. The cache is
// a latency shortcut only; the durable record stays authoritative.
func (s *Store) CacheAuth(userId, value string) {
	s.authCache.Set(userId, value)
}

// CachedAuth re-verifies the cached token before handing out its
// claims. A token that no longer verifies is evicted, not returned.
func (s *Store) CachedAuth(userId string) (*token.Claims, bool) {
	value, ok := s.authCache.Get(userId)
	if !ok {
		return nil, false
	}

	claims, err := s.deps.Codec.VerifyFor(value, userId)
	if err != nil {
		s.authCache.Delete(userId)
		return nil, false
	}

	return claims, true
}
