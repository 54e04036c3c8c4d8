package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

const (
	statesFile   = "conversation_states.json"
	mappingsFile = "id_mappings.json"
)

// FileStore keeps all conversation state in memory and mirrors it to two JSON
// documents on every mutation. Persistence is best-effort durability for a
// single process, not a transactional database.
type FileStore struct {
	dir    string
	logger *logging.Logger

	mu         sync.Mutex // guards states, indexes and file writes
	states     map[string]*ConversationState
	prefIndex  map[string]string // preference_id -> user_id
	orderIndex map[string]string // order_id -> user_id

	userMu sync.Mutex
	users  map[string]*sync.Mutex
}

type idMappings struct {
	PreferenceMapping map[string]string `json:"preference_mapping"`
	OrderMapping      map[string]string `json:"order_mapping"`
}

// NewFileStore loads any existing documents from dir, creating it if needed.
func NewFileStore(dir string, logger *logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create data dir: %w", err)
	}

	s := &FileStore{
		dir:        dir,
		logger:     logger,
		states:     make(map[string]*ConversationState),
		prefIndex:  make(map[string]string),
		orderIndex: make(map[string]string),
		users:      make(map[string]*sync.Mutex),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	statesPath := filepath.Join(s.dir, statesFile)
	if raw, err := os.ReadFile(statesPath); err == nil {
		if err := json.Unmarshal(raw, &s.states); err != nil {
			return fmt.Errorf("state: parse %s: %w", statesFile, err)
		}
		s.logger.Info("conversation states loaded", "count", len(s.states))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("state: read %s: %w", statesFile, err)
	}

	mappingsPath := filepath.Join(s.dir, mappingsFile)
	if raw, err := os.ReadFile(mappingsPath); err == nil {
		var m idMappings
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("state: parse %s: %w", mappingsFile, err)
		}
		if m.PreferenceMapping != nil {
			s.prefIndex = m.PreferenceMapping
		}
		if m.OrderMapping != nil {
			s.orderIndex = m.OrderMapping
		}
		s.logger.Info("id mappings loaded", "preferences", len(s.prefIndex), "orders", len(s.orderIndex))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("state: read %s: %w", mappingsFile, err)
	}

	return nil
}

// persist writes both documents. Callers must hold s.mu.
func (s *FileStore) persist() error {
	if err := writeJSON(filepath.Join(s.dir, statesFile), s.states); err != nil {
		return fmt.Errorf("state: persist states: %w", err)
	}
	mappings := idMappings{PreferenceMapping: s.prefIndex, OrderMapping: s.orderIndex}
	if err := writeJSON(filepath.Join(s.dir, mappingsFile), mappings); err != nil {
		return fmt.Errorf("state: persist mappings: %w", err)
	}
	return nil
}

// writeJSON writes via a temp file and rename so a crash mid-write never
// leaves a truncated document.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// lockUser returns the mutex serializing read-modify-write cycles for one
// user id. Concurrent webhook delivery and an in-flight chat turn for the
// same user must not interleave.
func (s *FileStore) lockUser(userID string) *sync.Mutex {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	mu, ok := s.users[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.users[userID] = mu
	}
	return mu
}

func (s *FileStore) GetState(userID string) (*ConversationState, error) {
	mu := s.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.getOrCreate(userID)
}

// getOrCreate returns a copy, creating and persisting a default state on
// first contact. Callers must hold the user lock.
func (s *FileStore) getOrCreate(userID string) (*ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[userID]; ok {
		return st.Clone(), nil
	}

	st := NewConversationState(userID)
	s.states[userID] = st
	if err := s.persist(); err != nil {
		delete(s.states, userID)
		return nil, err
	}
	return st.Clone(), nil
}

func (s *FileStore) UpdateState(userID string, st *ConversationState) error {
	mu := s.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.commit(userID, st)
}

// commit stores a clone of st and persists. Callers must hold the user lock.
func (s *FileStore) commit(userID string, st *ConversationState) error {
	cp := st.Clone()
	cp.UserID = userID
	cp.LastUpdated = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.states[userID]
	s.states[userID] = cp
	if err := s.persist(); err != nil {
		if existed {
			s.states[userID] = prev
		} else {
			delete(s.states, userID)
		}
		return err
	}
	st.LastUpdated = cp.LastUpdated
	return nil
}

func (s *FileStore) Mutate(userID string, fn func(*ConversationState) error) error {
	mu := s.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.getOrCreate(userID)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.commit(userID, st)
}

func (s *FileStore) RegisterOrder(userID, orderID, preferenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderIndex[orderID] = userID
	if preferenceID != "" {
		s.prefIndex[preferenceID] = userID
	}
	return s.persist()
}

func (s *FileStore) UpdatePaymentStatus(preferenceID string, status PaymentStatus, metadata map[string]string) bool {
	userID, ok := s.FindUserByPreferenceID(preferenceID)
	if !ok {
		s.logger.Warn("no user indexed for preference", "preference_id", preferenceID)
		return false
	}
	return s.updatePending(userID, func(po *OrderRecord) bool {
		return po.PreferenceID == preferenceID
	}, status, metadata, "preference_id", preferenceID)
}

func (s *FileStore) UpdatePaymentStatusByOrderID(orderID string, status PaymentStatus, metadata map[string]string) bool {
	userID, ok := s.FindUserByOrderID(orderID)
	if !ok {
		s.logger.Warn("no user indexed for order", "order_id", orderID)
		return false
	}
	return s.updatePending(userID, func(po *OrderRecord) bool {
		return po.OrderID == orderID
	}, status, metadata, "order_id", orderID)
}

func (s *FileStore) updatePending(userID string, match func(*OrderRecord) bool, status PaymentStatus, metadata map[string]string, refKey, refVal string) bool {
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

func (s *FileStore) FindUserByOrderID(orderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.orderIndex[orderID]
	return userID, ok
}

func (s *FileStore) FindUserByPreferenceID(preferenceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.prefIndex[preferenceID]
	return userID, ok
}

func (s *FileStore) FindOrderByID(orderID string) (*OrderRecord, bool) {
	userID, ok := s.FindUserByOrderID(orderID)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, false
	}
	if st.PendingOrder != nil && st.PendingOrder.OrderID == orderID {
		return st.PendingOrder.Clone(), true
	}
	for i := range st.OrderHistory {
		if st.OrderHistory[i].OrderID == orderID {
			return st.OrderHistory[i].Clone(), true
		}
	}
	return nil, false
}

func (s *FileStore) GetAllStates() map[string]*ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*ConversationState, len(s.states))
	for userID, st := range s.states {
		out[userID] = st.Clone()
	}
	return out
}

var _ Store = (*FileStore)(nil)
