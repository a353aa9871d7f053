// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/agrigenius/internal/flow"
)

func newSQLiteLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := NewLedger(Config{
		StorageType: StorageTypeSQLite,
		DBPath:      filepath.Join(t.TempDir(), "audit", "ledger.db"),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestNewLedgerUnsupportedStorage(t *testing.T) {
	_, err := NewLedger(Config{StorageType: "redis"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestNoneStorageDiscardsEntries(t *testing.T) {
	ledger, err := NewLedger(Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, StorageTypeNone, ledger.StorageType())
	assert.NoError(t, ledger.Record(context.Background(), Entry{Flow: "farmer-qa"}))
	assert.NoError(t, ledger.Ping(context.Background()))

	_, err = ledger.Stats(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFileStorageAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	ledger, err := NewLedger(Config{StorageType: StorageTypeFile, FilePath: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	ctx := context.Background()
	require.NoError(t, ledger.Record(ctx, Entry{Flow: "weather-plan", Outcome: flow.OutcomeSuccess, Duration: 1500 * time.Millisecond}))
	require.NoError(t, ledger.Record(ctx, Entry{Flow: "community-feed", Outcome: flow.OutcomeTransportError}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, entries, 2)
	assert.Equal(t, "weather-plan", entries[0].Flow)
	assert.Equal(t, 1500*time.Millisecond, entries[0].Duration)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].StartedAt.IsZero())
	assert.Equal(t, flow.OutcomeTransportError, entries[1].Outcome)

	assert.NoError(t, ledger.Ping(ctx))
	_, err = ledger.Recent(ctx, 10)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSQLiteRecentAndStats(t *testing.T) {
	ledger := newSQLiteLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	records := []Entry{
		{Flow: "farmer-qa", Outcome: flow.OutcomeSuccess, StartedAt: base, Duration: 100 * time.Millisecond},
		{Flow: "farmer-qa", Outcome: flow.OutcomeSuccess, StartedAt: base.Add(time.Minute), Duration: 300 * time.Millisecond},
		{Flow: "farmer-qa", Outcome: flow.OutcomeValidationError, StartedAt: base.Add(2 * time.Minute), Duration: 0},
		{Flow: "disease-detection", Outcome: flow.OutcomeGenerationFailed, StartedAt: base.Add(3 * time.Minute), Duration: 2 * time.Second, RequestID: "req-1"},
	}
	for _, e := range records {
		require.NoError(t, ledger.Record(ctx, e))
	}

	recent, err := ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "disease-detection", recent[0].Flow)
	assert.Equal(t, "req-1", recent[0].RequestID)
	assert.Equal(t, 2*time.Second, recent[0].Duration)
	assert.Equal(t, flow.OutcomeValidationError, recent[1].Outcome)

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "disease-detection", stats[0].Flow)
	assert.Equal(t, 1, stats[0].Total)
	assert.Equal(t, 1, stats[0].Outcomes[flow.OutcomeGenerationFailed])

	assert.Equal(t, "farmer-qa", stats[1].Flow)
	assert.Equal(t, 3, stats[1].Total)
	assert.Equal(t, 2, stats[1].Outcomes[flow.OutcomeSuccess])
	assert.Equal(t, 1, stats[1].Outcomes[flow.OutcomeValidationError])
	assert.InDelta(t, 133.33, stats[1].AvgDurationMS, 0.01)
}

func TestHookRecordsRequestID(t *testing.T) {
	ledger := newSQLiteLedger(t)
	hook := ledger.Hook()

	ctx, cancel := context.WithCancel(ContextWithRequestID(context.Background(), "req-42"))
	cancel()

	hook(ctx, flow.Event{Flow: "encyclopedia", Outcome: flow.OutcomeSuccess, Started: time.Now(), Duration: 40 * time.Millisecond})

	recent, err := ledger.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "encyclopedia", recent[0].Flow)
	assert.Equal(t, "req-42", recent[0].RequestID)
}

func TestConcurrentRecords(t *testing.T) {
	ledger := newSQLiteLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.Record(ctx, Entry{Flow: "crop-recommendation", Outcome: flow.OutcomeSuccess}))
		}()
	}
	wg.Wait()

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 20, stats[0].Total)
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))
}
