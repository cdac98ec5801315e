package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_SaveUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithDB(mock)
	snap := sampleSnapshot()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO step_checkpoints").
		WithArgs(snap.StepID, raw, snap.Version, snap.SavedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithDB(mock)
	want := sampleSnapshot()
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT snapshot FROM step_checkpoints").
		WithArgs(want.StepID).
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(raw))

	got, err := store.Load(context.Background(), want.StepID)
	require.NoError(t, err)
	require.Equal(t, want.Completed, got.Completed)
	require.Equal(t, want.Failed, got.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithDB(mock)

	mock.ExpectQuery("SELECT snapshot FROM step_checkpoints").
		WithArgs("missing/Parser").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}))

	_, err = store.Load(context.Background(), "missing/Parser")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithDB(mock)

	mock.ExpectExec("DELETE FROM step_checkpoints").
		WithArgs("rustavi2/Crawler").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "rustavi2/Crawler"))
	require.NoError(t, mock.ExpectationsWereMet())
}
