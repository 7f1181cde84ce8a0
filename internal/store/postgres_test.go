package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/billsync/internal/bill"
)

// newMockStore creates a Postgres store backed by pgxmock.
func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &Postgres{pool: mock}
	return s, mock
}

// anyArgs returns n pgxmock.AnyArg matchers, for expectations that do
// not constrain statement arguments.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func testBill() bill.Bill {
	providerID := 123456
	versionDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return bill.Bill{
		ExternalID:   "CA AB123 2024-01-15",
		ProviderID:   &providerID,
		Jurisdiction: "CA",
		SessionYear:  2024,
		BillNumber:   "AB123",
		Chamber:      bill.ChamberAssembly,
		Title:        "AI Regulation Act",
		VersionDate:  &versionDate,
	}
}

func TestLastProcessedAt_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT updated_at FROM bills ORDER BY updated_at DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	last, err := s.LastProcessedAt(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastProcessedAt_ReturnsLatest(t *testing.T) {
	s, mock := newMockStore(t)

	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT updated_at FROM bills`).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(want))

	last, err := s.LastProcessedAt(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, want, *last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingKeysByJurisdictionAndNumber(t *testing.T) {
	s, mock := newMockStore(t)

	v1 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"jurisdiction", "bill_number", "external_id", "version_date"}).
		AddRow("CA", "AB123", "CA AB123 2024-01-15", &v1).
		AddRow("CA", "AB123", "CA AB123 2024-03-02", &v1).
		AddRow("NY", "SB456", "NY SB456 2024-02-01", (*time.Time)(nil)).
		AddRow("", "X1", "orphan", (*time.Time)(nil))
	mock.ExpectQuery(`SELECT jurisdiction, bill_number, external_id, version_date FROM bills`).
		WillReturnRows(rows)

	known, err := s.ExistingKeysByJurisdictionAndNumber(context.Background())
	require.NoError(t, err)
	assert.Len(t, known, 2)
	assert.Len(t, known["CA AB123"], 2)
	assert.Len(t, known["NY SB456"], 1)
	assert.Nil(t, known["NY SB456"][0].VersionDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingKeys_QueryFault(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT jurisdiction, bill_number, external_id, version_date FROM bills`).
		WillReturnError(errors.New("connection refused"))

	_, err := s.ExistingKeysByJurisdictionAndNumber(context.Background())
	require.Error(t, err)
	var se *StorageError
	assert.ErrorAs(t, err, &se)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingProviderIDs_DedupesAndReturnsMembers(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT provider_id FROM bills WHERE provider_id = ANY\(\$1\)`).
		WithArgs([]int{111, 222}).
		WillReturnRows(pgxmock.NewRows([]string{"provider_id"}).AddRow(222))

	existing, err := s.ExistingProviderIDs(context.Background(), []int{111, 222, 111})
	require.NoError(t, err)
	assert.Len(t, existing, 1)
	_, ok := existing[222]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingProviderIDs_FailedChunkIsSkipped(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT provider_id FROM bills WHERE provider_id = ANY\(\$1\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("timeout"))

	existing, err := s.ExistingProviderIDs(context.Background(), []int{111, 222})
	require.NoError(t, err, "a failed chunk degrades the pre-filter, it does not abort")
	assert.Empty(t, existing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingProviderIDs_EmptyInput(t *testing.T) {
	s, _ := newMockStore(t)

	existing, err := s.ExistingProviderIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestStore_InsertsNewBill(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs("CA AB123 2024-01-15").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bills`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	count, err := s.Store(context.Background(), []bill.Bill{testBill()})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SecondStoreIsSkipped(t *testing.T) {
	s, mock := newMockStore(t)

	// First store: not found, insert.
	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bills`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Second store: found with provider_id populated, no writes at all.
	storedID := int64(123456)
	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "provider_id"}).AddRow("row-1", &storedID))

	b := testBill()
	count, err := s.Store(context.Background(), []bill.Bill{b})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.Store(context.Background(), []bill.Bill{b})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BackfillsNullProviderID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "provider_id"}).AddRow("row-1", (*int64)(nil)))
	mock.ExpectExec(`UPDATE bills`).
		WithArgs(123456, "", pgxmock.AnyArg(), "row-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	count, err := s.Store(context.Background(), []bill.Bill{testBill()})
	require.NoError(t, err)
	assert.Equal(t, 0, count, "backfill counts as a skip, not an insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DuplicateKeyRaceCountsAsSkip(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bills`).
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: secondaryUniqueConstraint,
			Message:        "duplicate key value violates unique constraint",
		})

	count, err := s.Store(context.Background(), []bill.Bill{testBill()})
	require.NoError(t, err, "losing the duplicate-key race must not abort the batch")
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_OtherInsertFaultIsDroppedAndLoopContinues(t *testing.T) {
	s, mock := newMockStore(t)

	// First bill fails on insert with an unrelated fault.
	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bills`).
		WithArgs(anyArgs(15)...).
		WillReturnError(errors.New("disk full"))

	// Second bill inserts fine.
	mock.ExpectQuery(`SELECT id, provider_id FROM bills WHERE external_id = \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bills`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b1 := testBill()
	b2 := testBill()
	b2.ExternalID = "NY SB456 2024-02-01"
	b2.Jurisdiction = "NY"
	b2.BillNumber = "SB456"

	count, err := s.Store(context.Background(), []bill.Bill{b1, b2})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBill_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE bills`).
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateBill(context.Background(), "missing-row", testBill())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBill_Success(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE bills`).
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateBill(context.Background(), "row-1", testBill())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSecondaryUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "pg error with matching constraint",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: secondaryUniqueConstraint},
			want: true,
		},
		{
			name: "pg error on a different constraint",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "bills_external_id_key"},
			want: false,
		},
		{
			name: "pg error with matching constraint but different code",
			err:  &pgconn.PgError{Code: "23503", ConstraintName: secondaryUniqueConstraint},
			want: false,
		},
		{
			name: "wrapped transport fault carrying the constraint identity",
			err:  errors.New(`duplicate key value violates unique constraint "` + secondaryUniqueConstraint + `"`),
			want: true,
		},
		{
			name: "generic duplicate key without the constraint identity",
			err:  errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isSecondaryUniqueViolation(tc.err))
		})
	}
}
