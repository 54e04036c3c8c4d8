package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), logging.New("error"))
	require.NoError(t, err)
	return s
}

func pendingOrder(orderID, prefID string) *OrderRecord {
	return &OrderRecord{
		OrderID:      orderID,
		PreferenceID: prefID,
		Items: []OrderItem{
			{Name: "coca-cola", Quantity: 2, UnitPrice: 1000, Subtotal: 2000},
		},
		TotalAmount: 2000,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func registerPending(t *testing.T, s Store, userID, orderID, prefID string) {
	t.Helper()
	require.NoError(t, s.Mutate(userID, func(st *ConversationState) error {
		st.PendingOrder = pendingOrder(orderID, prefID)
		return nil
	}))
	require.NoError(t, s.RegisterOrder(userID, orderID, prefID))
}

func TestGetStateCreatesDefault(t *testing.T) {
	s := newTestStore(t)

	st, err := s.GetState("5491112345678")
	require.NoError(t, err)
	assert.Equal(t, "5491112345678", st.UserID)
	assert.Equal(t, "initial", st.Context)
	assert.False(t, st.WaitingForAlternative)
	assert.Empty(t, st.History)

	// Second call returns the same state, no second creation side effect.
	again, err := s.GetState("5491112345678")
	require.NoError(t, err)
	assert.Equal(t, st.UserID, again.UserID)
}

func TestGetStateReturnsCopy(t *testing.T) {
	s := newTestStore(t)

	st, err := s.GetState("user")
	require.NoError(t, err)
	st.History = append(st.History, ChatTurn{Role: "user", Content: "hola"})

	fresh, err := s.GetState("user")
	require.NoError(t, err)
	assert.Empty(t, fresh.History, "mutating a returned state must not leak into the store")
}

func TestUpdateStateStampsAndPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logging.New("error"))
	require.NoError(t, err)

	st, err := s.GetState("user")
	require.NoError(t, err)
	before := st.LastUpdated
	time.Sleep(5 * time.Millisecond)

	st.Context = "ordering"
	require.NoError(t, s.UpdateState("user", st))
	assert.True(t, st.LastUpdated.After(before))

	// A brand-new store over the same directory sees the persisted state.
	reloaded, err := NewFileStore(dir, logging.New("error"))
	require.NoError(t, err)
	got, err := reloaded.GetState("user")
	require.NoError(t, err)
	assert.Equal(t, "ordering", got.Context)
}

func TestRegisterOrderIndexIntegrity(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")

	// Idempotent under repeated calls.
	require.NoError(t, s.RegisterOrder("user-a", "ORD-1", "PREF-1"))

	byOrder, ok := s.FindUserByOrderID("ORD-1")
	require.True(t, ok)
	byPref, ok := s.FindUserByPreferenceID("PREF-1")
	require.True(t, ok)
	assert.Equal(t, byOrder, byPref)
	assert.Equal(t, "user-a", byOrder)
}

func TestUpdatePaymentStatusApprovedAppendsHistoryOnce(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")

	require.True(t, s.UpdatePaymentStatus("PREF-1", StatusApproved, map[string]string{"payer_email": "ana@example.com"}))
	// Replayed webhook delivery.
	require.True(t, s.UpdatePaymentStatus("PREF-1", StatusApproved, nil))

	st, err := s.GetState("user-a")
	require.NoError(t, err)
	require.Len(t, st.OrderHistory, 1, "approval must append exactly one history entry")
	assert.Equal(t, "ORD-1", st.OrderHistory[0].OrderID)
	assert.NotNil(t, st.OrderHistory[0].CompletedAt)
	assert.Equal(t, StatusApproved, st.PendingOrder.Status)
	assert.Equal(t, "ana@example.com", st.PendingOrder.PaymentMetadata["payer_email"])
	assert.True(t, st.ShouldNotifyPayment)
	assert.NotEmpty(t, st.NotificationMessage)
}

func TestUpdatePaymentStatusUnknownPreference(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.UpdatePaymentStatus("PREF-NOPE", StatusApproved, nil))
}

func TestUpdatePaymentStatusStalePreferenceGuard(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")

	// A newer order replaced the pending one; PREF-1 is stale.
	require.NoError(t, s.Mutate("user-a", func(st *ConversationState) error {
		st.PendingOrder = pendingOrder("ORD-2", "PREF-2")
		return nil
	}))
	require.NoError(t, s.RegisterOrder("user-a", "ORD-2", "PREF-2"))

	assert.False(t, s.UpdatePaymentStatus("PREF-1", StatusApproved, nil))

	st, err := s.GetState("user-a")
	require.NoError(t, err)
	assert.Empty(t, st.OrderHistory)
	assert.False(t, st.ShouldNotifyPayment)
	assert.Equal(t, StatusPending, st.PendingOrder.Status)
}

func TestRejectedPaymentUpdateIsNoOp(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logging.New("error"))
	require.NoError(t, err)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")
	require.NoError(t, s.Mutate("user-a", func(st *ConversationState) error {
		st.PendingOrder = pendingOrder("ORD-2", "PREF-2")
		return nil
	}))
	require.NoError(t, s.RegisterOrder("user-a", "ORD-2", "PREF-2"))

	before, err := s.GetState("user-a")
	require.NoError(t, err)
	rawBefore, err := os.ReadFile(filepath.Join(dir, statesFile))
	require.NoError(t, err)

	assert.False(t, s.UpdatePaymentStatus("PREF-1", StatusApproved, nil))

	// A stale update must neither stamp the state nor rewrite the files.
	after, err := s.GetState("user-a")
	require.NoError(t, err)
	assert.True(t, after.LastUpdated.Equal(before.LastUpdated))
	rawAfter, err := os.ReadFile(filepath.Join(dir, statesFile))
	require.NoError(t, err)
	assert.Equal(t, rawBefore, rawAfter)
}

func TestUpdatePaymentStatusByOrderID(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-b", "ORD-7", "PREF-7")

	require.True(t, s.UpdatePaymentStatusByOrderID("ORD-7", StatusRejected, nil))

	st, err := s.GetState("user-b")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, st.PendingOrder.Status)
	assert.Empty(t, st.OrderHistory, "rejected orders never reach history")
	assert.True(t, st.ShouldNotifyPayment)
}

func TestFindOrderByIDFallsThroughToHistory(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")
	require.True(t, s.UpdatePaymentStatus("PREF-1", StatusApproved, nil))

	// Pending order moves on; ORD-1 lives only in history now.
	require.NoError(t, s.Mutate("user-a", func(st *ConversationState) error {
		st.PendingOrder = pendingOrder("ORD-2", "PREF-2")
		return nil
	}))

	rec, ok := s.FindOrderByID("ORD-1")
	require.True(t, ok)
	assert.Equal(t, "ORD-1", rec.OrderID)
	assert.NotNil(t, rec.CompletedAt)
}

func TestMutateErrorDiscardsChanges(t *testing.T) {
	s := newTestStore(t)

	err := s.Mutate("user", func(st *ConversationState) error {
		st.Context = "half-done"
		return assert.AnError
	})
	require.Error(t, err)

	st, err := s.GetState("user")
	require.NoError(t, err)
	assert.Equal(t, "initial", st.Context)
}

func TestGetAllStatesIsIsolatedSnapshot(t *testing.T) {
	s := newTestStore(t)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")

	snap := s.GetAllStates()
	require.Contains(t, snap, "user-a")
	snap["user-a"].Context = "tampered"

	st, err := s.GetState("user-a")
	require.NoError(t, err)
	assert.Equal(t, "initial", st.Context)
}

func TestConcurrentMutateSameUser(t *testing.T) {
	s := newTestStore(t)
	const turns = 50

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Mutate("user", func(st *ConversationState) error {
				st.History = append(st.History, ChatTurn{Role: "user", Content: "hola"})
				return nil
			})
		}()
	}
	wg.Wait()

	st, err := s.GetState("user")
	require.NoError(t, err)
	assert.Len(t, st.History, turns, "per-user locking must make read-modify-write atomic")
}

func TestPersistedLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logging.New("error"))
	require.NoError(t, err)
	registerPending(t, s, "user-a", "ORD-1", "PREF-1")

	for _, name := range []string{statesFile, mappingsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}

	reloaded, err := NewFileStore(dir, logging.New("error"))
	require.NoError(t, err)
	userID, ok := reloaded.FindUserByPreferenceID("PREF-1")
	require.True(t, ok)
	assert.Equal(t, "user-a", userID)
}
