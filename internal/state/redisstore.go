package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

const (
	stateKeyPrefix = "orderbot:state:"
	prefIndexKey   = "orderbot:pref_index"
	orderIndexKey  = "orderbot:order_index"

	redisOpTimeout  = 5 * time.Second
	redisMaxRetries = 5
)

// RedisStore is a key-value backed Store. Per-user read-modify-write cycles
// use optimistic concurrency (WATCH + MULTI) instead of in-process locks, so
// it stays correct even if a second process shares the same database.
type RedisStore struct {
	rdb    *redis.Client
	logger *logging.Logger
}

// NewRedisStore wraps an already-configured client.
func NewRedisStore(rdb *redis.Client, logger *logging.Logger) *RedisStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

func stateKey(userID string) string { return stateKeyPrefix + userID }

func (s *RedisStore) GetState(userID string) (*ConversationState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, stateKey(userID)).Result()
	if err == nil {
		return decodeState(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("state: redis get: %w", err)
	}

	st := NewConversationState(userID)
	raw2, err := encodeState(st)
	if err != nil {
		return nil, err
	}
	// SETNX so a concurrent first contact does not clobber the winner.
	created, err := s.rdb.SetNX(ctx, stateKey(userID), raw2, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("state: redis setnx: %w", err)
	}
	if !created {
		return s.GetState(userID)
	}
	return st, nil
}

func (s *RedisStore) UpdateState(userID string, st *ConversationState) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	cp := st.Clone()
	cp.UserID = userID
	cp.LastUpdated = time.Now().UTC()
	raw, err := encodeState(cp)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, stateKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("state: redis set: %w", err)
	}
	st.LastUpdated = cp.LastUpdated
	return nil
}

func (s *RedisStore) Mutate(userID string, fn func(*ConversationState) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := stateKey(userID)
	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			var st *ConversationState
			switch {
			case err == nil:
				if st, err = decodeState(raw); err != nil {
					return err
				}
			case errors.Is(err, redis.Nil):
				st = NewConversationState(userID)
			default:
				return fmt.Errorf("state: redis get: %w", err)
			}

			if err := fn(st); err != nil {
				return err
			}
			st.UserID = userID
			st.LastUpdated = time.Now().UTC()
			encoded, err := encodeState(st)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("state: redis mutate: too many CAS conflicts for %s", userID)
}

func (s *RedisStore) RegisterOrder(userID, orderID, preferenceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, orderIndexKey, orderID, userID)
	if preferenceID != "" {
		pipe.HSet(ctx, prefIndexKey, preferenceID, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state: redis register order: %w", err)
	}
	return nil
}

func (s *RedisStore) UpdatePaymentStatus(preferenceID string, status PaymentStatus, metadata map[string]string) bool {
	userID, ok := s.FindUserByPreferenceID(preferenceID)
	if !ok {
		s.logger.Warn("no user indexed for preference", "preference_id", preferenceID)
		return false
	}
	return s.updatePending(userID, func(po *OrderRecord) bool {
		return po.PreferenceID == preferenceID
	}, status, metadata, "preference_id", preferenceID)
}

func (s *RedisStore) UpdatePaymentStatusByOrderID(orderID string, status PaymentStatus, metadata map[string]string) bool {
	userID, ok := s.FindUserByOrderID(orderID)
	if !ok {
		s.logger.Warn("no user indexed for order", "order_id", orderID)
		return false
	}
	return s.updatePending(userID, func(po *OrderRecord) bool {
		return po.OrderID == orderID
	}, status, metadata, "order_id", orderID)
}

func (s *RedisStore) updatePending(userID string, match func(*OrderRecord) bool, status PaymentStatus, metadata map[string]string, refKey, refVal string) bool {
	updated := false
	err := s.Mutate(userID, func(st *ConversationState) error {
		updated = applyPaymentUpdate(st, match, status, metadata)
		if !updated {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		s.logger.Error("payment status update failed", "error", err, refKey, refVal)
		return false
	}
	if !updated {
		s.logger.Warn("no matching pending order", refKey, refVal, "status", status)
	}
	return updated
}

func (s *RedisStore) FindUserByOrderID(orderID string) (string, bool) {
	return s.hashLookup(orderIndexKey, orderID)
}

func (s *RedisStore) FindUserByPreferenceID(preferenceID string) (string, bool) {
	return s.hashLookup(prefIndexKey, preferenceID)
}

func (s *RedisStore) hashLookup(key, field string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	userID, err := s.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("index lookup failed", "error", err, "key", key)
		}
		return "", false
	}
	return userID, true
}

func (s *RedisStore) FindOrderByID(orderID string) (*OrderRecord, bool) {
	userID, ok := s.FindUserByOrderID(orderID)
	if !ok {
		return nil, false
	}
	st, err := s.GetState(userID)
	if err != nil {
		s.logger.Error("state fetch failed", "error", err, "user_id", userID)
		return nil, false
	}
	if st.PendingOrder != nil && st.PendingOrder.OrderID == orderID {
		return st.PendingOrder, true
	}
	for i := range st.OrderHistory {
		if st.OrderHistory[i].OrderID == orderID {
			return &st.OrderHistory[i], true
		}
	}
	return nil, false
}

func (s *RedisStore) GetAllStates() map[string]*ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	out := make(map[string]*ConversationState)
	iter := s.rdb.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		st, err := decodeState(raw)
		if err != nil {
			s.logger.Error("skipping undecodable state", "error", err, "key", key)
			continue
		}
		out[strings.TrimPrefix(key, stateKeyPrefix)] = st
	}
	if err := iter.Err(); err != nil {
		s.logger.Error("state scan failed", "error", err)
	}
	return out
}

func encodeState(st *ConversationState) (string, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("state: encode: %w", err)
	}
	return string(raw), nil
}

func decodeState(raw string) (*ConversationState, error) {
	var st ConversationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}
	return &st, nil
}

var _ Store = (*RedisStore)(nil)
