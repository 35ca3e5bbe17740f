package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
)

func testConfig() config.DedupConfig {
	return config.DedupConfig{
		Store:            constants.StoreMemory,
		RetentionWindow:  time.Minute,
		SweepInterval:    time.Hour,
		WaitPollInterval: 10 * time.Millisecond,
		OnStoreError:     constants.FallbackAllow,
	}
}

func newTestService(t *testing.T, store Store, cfg config.DedupConfig) *Service {
	t.Helper()
	s := NewService(store, cfg, logger.NopLogger())
	t.Cleanup(s.Shutdown)
	return s
}

func request(id string) *unified.NormalizedRequest {
	return unified.Normalize(unified.RawRequest{
		ID:      id,
		Type:    "BAN_USER",
		Data:    map[string]interface{}{"reason": "spam"},
		Source:  unified.SourceREST,
		GuildID: "g1",
		UserID:  "u1",
	})
}

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (*Record, error)       { return nil, errStoreDown }
func (failingStore) PutIfAbsent(context.Context, *Record) (bool, error) { return false, errStoreDown }
func (failingStore) Resolve(context.Context, *Record) error             { return errStoreDown }
func (failingStore) Evict(context.Context, time.Time) (int, error)      { return 0, errStoreDown }
func (failingStore) Count(context.Context) (int, error)                 { return 0, errStoreDown }

func TestService_CheckAbsent(t *testing.T) {
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())

	res, err := s.Check(context.Background(), request("r1"))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestService_FirstCreatorWins(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.CreateOperationContext(ctx, request("r"))
			assert.NoError(t, err)
			if created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int64(1), s.GetMetrics().ActiveOperations)
}

func TestService_PendingIsInFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())

	created, err := s.CreateOperationContext(ctx, request("r1"))
	require.NoError(t, err)
	require.True(t, created)

	res, err := s.Check(ctx, request("r2"))
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.True(t, res.InFlight)
	assert.Nil(t, res.Existing)
}

func TestService_CompletedReturnsStoredResponse(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())
	req := request("r1")

	_, err := s.CreateOperationContext(ctx, req)
	require.NoError(t, err)

	resp := &unified.UnifiedResponse{Success: true, RequestID: "r1", Method: unified.MethodQueue, Data: "banned"}
	require.NoError(t, s.CompleteOperation(ctx, req.OperationKey, resp))

	res, err := s.Check(ctx, request("r2"))
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.False(t, res.InFlight)
	require.NotNil(t, res.Existing)
	assert.Equal(t, "r1", res.Existing.RequestID)
	assert.Equal(t, unified.MethodQueue, res.Existing.Method)

	m := s.GetMetrics()
	assert.Equal(t, int64(1), m.TotalCompleted)
	assert.Equal(t, int64(1), m.TotalDeduplicated)
	assert.Equal(t, int64(0), m.ActiveOperations)
}

func TestService_FailedWithoutResponse(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())
	req := request("r1")

	_, err := s.CreateOperationContext(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.FailOperation(ctx, req.OperationKey, nil, errors.New("discord down")))

	res, err := s.Check(ctx, request("r2"))
	require.NoError(t, err)
	require.NotNil(t, res.Existing)
	assert.False(t, res.Existing.Success)
	assert.Equal(t, "discord down", res.Existing.Error)
	assert.Equal(t, int64(1), s.GetMetrics().TotalFailed)
}

func TestService_ExpiredTerminalIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	s := newTestService(t, store, testConfig())
	req := request("r1")

	require.NoError(t, store.Resolve(ctx, &Record{
		Key:        req.OperationKey,
		Status:     StatusCompleted,
		Response:   &unified.UnifiedResponse{Success: true, RequestID: "r1"},
		ResolvedAt: time.Now().Add(-2 * time.Minute),
	}))

	res, err := s.Check(ctx, request("r2"))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)

	created, err := s.CreateOperationContext(ctx, request("r2"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestService_WaitReturnsResolution(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())
	req := request("r1")

	_, err := s.CreateOperationContext(ctx, req)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = s.CompleteOperation(ctx, req.OperationKey, &unified.UnifiedResponse{Success: true, RequestID: "r1"})
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := s.Wait(waitCtx, req.OperationKey)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
}

func TestService_WaitHonorsContext(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())
	req := request("r1")

	_, err := s.CreateOperationContext(ctx, req)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = s.Wait(waitCtx, req.OperationKey)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_WaitUntracked(t *testing.T) {
	s := newTestService(t, NewMemoryStore(time.Minute), testConfig())

	_, err := s.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUntracked)
}

func TestService_StoreErrorPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    string
		wantErr   bool
		wantCreat bool
	}{
		{name: "allow", policy: constants.FallbackAllow, wantErr: false, wantCreat: true},
		{name: "deny", policy: constants.FallbackDeny, wantErr: true, wantCreat: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.OnStoreError = tt.policy
			s := newTestService(t, failingStore{}, cfg)

			res, err := s.Check(context.Background(), request("r1"))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
			} else {
				require.NoError(t, err)
				assert.False(t, res.IsDuplicate)
			}

			created, err := s.CreateOperationContext(context.Background(), request("r1"))
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantCreat, created)
		})
	}
}

func TestService_SweepEvictsOnlyTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	cfg := testConfig()
	s := newTestService(t, store, cfg)
	old := time.Now().Add(-time.Hour)

	_, err := store.PutIfAbsent(ctx, &Record{Key: "pending", Status: StatusPending, CreatedAt: old})
	require.NoError(t, err)
	require.NoError(t, store.Resolve(ctx, &Record{Key: "done", Status: StatusCompleted, ResolvedAt: old}))

	s.sweepOnce(ctx)

	m := s.GetMetrics()
	assert.Equal(t, int64(1), m.TotalEvicted)
	assert.Equal(t, int64(1), m.ActiveOperations)

	rec, err := store.Get(ctx, "pending")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestService_ShutdownIdempotent(t *testing.T) {
	s := NewService(NewMemoryStore(time.Minute), testConfig(), logger.NopLogger())
	s.Shutdown()
	s.Shutdown()
}
