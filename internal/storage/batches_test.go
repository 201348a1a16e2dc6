package storage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/testutil"
)

func TestBatchLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	batch := &model.ImportBatch{
		BatchID:        uuid.New().String(),
		SourceFile:     "ValeursFoncieres-2024.txt",
		SourceFileHash: "abc123",
		DataYear:       2024,
	}
	require.NoError(t, db.Storage.CreateBatch(ctx, batch))

	created, err := db.Storage.GetBatch(ctx, batch.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchRunning, created.Status)
	assert.False(t, created.StartedAt.IsZero())
	assert.Nil(t, created.CompletedAt)

	batch.TotalRecords = 100
	batch.AcceptedRecords = 90
	batch.DuplicateRecords = 4
	batch.RejectedRecords = 6
	breakdown := map[model.RejectReason]int64{
		model.RejectInvalidPrice: 2,
		model.RejectInvalidDate:  4,
	}
	require.NoError(t, db.Storage.UpdateBatchCounts(ctx, batch, breakdown))
	require.NoError(t, db.Storage.UpdateBatchStatus(ctx, batch.BatchID, model.BatchCompleted, ""))

	done, err := db.Storage.GetBatch(ctx, batch.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, done.Status)
	assert.Equal(t, int64(100), done.TotalRecords)
	assert.Equal(t, int64(90), done.AcceptedRecords)
	assert.Equal(t, int64(4), done.DuplicateRecords)
	assert.Equal(t, int64(6), done.RejectedRecords)
	assert.Equal(t, breakdown, done.RejectBreakdown)
	require.NotNil(t, done.CompletedAt)
}

func TestBatchFailureKeepsMessage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	batchID := db.NewBatch("broken.txt")
	require.NoError(t, db.Storage.UpdateBatchStatus(ctx, batchID, model.BatchFailed, "malformed chunk at row 12"))

	batch, err := db.Storage.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, batch.Status)
	assert.Equal(t, "malformed chunk at row 12", batch.ErrorMessage)
}

func TestGetBatchNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)

	_, err := db.Storage.GetBatch(context.Background(), "no-such-batch")
	assert.ErrorIs(t, err, common.ErrBatchNotFound)

	err = db.Storage.UpdateBatchStatus(context.Background(), "no-such-batch", model.BatchFailed, "")
	assert.ErrorIs(t, err, common.ErrBatchNotFound)
}

func TestListBatchesOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)

	first := db.NewBatch("2022.txt")
	second := db.NewBatch("2023.txt")

	batches, err := db.Storage.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)

	ids := []string{batches[0].BatchID, batches[1].BatchID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}

func TestFindCompletedBatchByFileHash(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	batch := &model.ImportBatch{
		BatchID:        uuid.New().String(),
		SourceFile:     "2024.txt",
		SourceFileHash: "deadbeef",
		DataYear:       2024,
	}
	require.NoError(t, db.Storage.CreateBatch(ctx, batch))

	// Still running: the hash guard must not fire yet.
	_, err := db.Storage.FindCompletedBatchByFileHash(ctx, "deadbeef")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, db.Storage.UpdateBatchStatus(ctx, batch.BatchID, model.BatchCompleted, ""))

	found, err := db.Storage.FindCompletedBatchByFileHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, batch.BatchID, found.BatchID)

	_, err = db.Storage.FindCompletedBatchByFileHash(ctx, "other-hash")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
