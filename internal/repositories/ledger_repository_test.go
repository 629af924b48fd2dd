package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"estateBack/internal/models"
)

func newLedgerMock(t *testing.T, driver string) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS client_unlocked_agents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS client_payment_history").WillReturnResult(sqlmock.NewResult(0, 0))
	return NewLedgerRepository(db, driver), mock
}

func sampleRecord() models.PaymentRecord {
	return models.PaymentRecord{
		ID:         "rec-1",
		Amount:     decimal.RequireFromString("5000"),
		Currency:   "NGN",
		PropertyID: 10,
		Reference:  "unlock_1700000000000_1",
		Date:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCommitUnlock_InsertsBothRowsInTransaction(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO client_unlocked_agents").
		WithArgs(1, 20, rec.Date).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO client_payment_history").
		WithArgs(rec.ID, 1, 10, 20, rec.Amount, "NGN", rec.Reference, rec.Date).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.CommitUnlock(context.Background(), 1, 20, rec); err != nil {
		t.Fatalf("CommitUnlock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitUnlock_DuplicateUnlockRollsBack(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO client_unlocked_agents").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-20' for key 'PRIMARY'"})
	mock.ExpectRollback()

	err := repo.CommitUnlock(context.Background(), 1, 20, sampleRecord())
	if !errors.Is(err, models.ErrAgentAlreadyUnlocked) {
		t.Fatalf("expected ErrAgentAlreadyUnlocked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitUnlock_DuplicateHistoryRollsBack(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		dupErr error
		want   error
	}{
		{
			name:   "pgx reference reused",
			driver: DriverPgx,
			dupErr: &pgconn.PgError{Code: "23505", ConstraintName: keyPaymentReference},
			want:   models.ErrReferenceUsed,
		},
		{
			name:   "pgx client agent pair",
			driver: DriverPgx,
			dupErr: &pgconn.PgError{Code: "23505", ConstraintName: keyPaymentClientAgent},
			want:   models.ErrAgentAlreadyUnlocked,
		},
		{
			name:   "mysql reference reused",
			driver: DriverMySQL,
			dupErr: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'unlock_1_1' for key 'client_payment_history.uniq_payment_reference'"},
			want:   models.ErrReferenceUsed,
		},
		{
			name:   "mysql client agent pair",
			driver: DriverMySQL,
			dupErr: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-20' for key 'uniq_payment_client_agent'"},
			want:   models.ErrAgentAlreadyUnlocked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newLedgerMock(t, tt.driver)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO client_unlocked_agents").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("INSERT INTO client_payment_history").
				WillReturnError(tt.dupErr)
			mock.ExpectRollback()

			err := repo.CommitUnlock(context.Background(), 1, 20, sampleRecord())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestDuplicateKeyName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'uniq_payment_reference'"}, keyPaymentReference},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'client_payment_history.uniq_payment_reference'"}, keyPaymentReference},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, ""},
		{&pgconn.PgError{Code: "23505", ConstraintName: keyPaymentClientAgent}, keyPaymentClientAgent},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		if got := duplicateKeyName(tt.err); got != tt.want {
			t.Errorf("duplicateKeyName(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCommitUnlock_OtherErrorsPassThrough(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO client_unlocked_agents").WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.CommitUnlock(context.Background(), 1, 20, sampleRecord())
	if !errors.Is(err, boom) {
		t.Fatalf("expected raw error, got %v", err)
	}
	if models.Kind(err) != models.KindInternal {
		t.Fatalf("expected internal kind, got %s", models.Kind(err))
	}
}

func TestIsUnlocked(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(1, 20).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsUnlocked(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("IsUnlocked: %v", err)
	}
	if !ok {
		t.Fatal("expected unlocked")
	}
}

func TestFindClientByID_NotFound(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)
	mock.ExpectQuery("SELECT id, name, email, role, created_at FROM users").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "created_at"}))

	_, err := repo.FindClientByID(context.Background(), 99)
	if !errors.Is(err, models.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestFindClientByID_LoadsLedger(t *testing.T) {
	repo, mock := newLedgerMock(t, DriverMySQL)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT id, name, email, role, created_at FROM users").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "created_at"}).
			AddRow(1, "Ada", "ada@example.com", "client", created))
	mock.ExpectQuery("SELECT agent_id FROM client_unlocked_agents").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"agent_id"}).AddRow(20))
	mock.ExpectQuery("FROM client_payment_history").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "property_id", "agent_id", "amount", "currency", "reference", "paid_at"}).
			AddRow(rec.ID, 1, 10, 20, "5000.00", "NGN", rec.Reference, rec.Date))

	c, err := repo.FindClientByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("FindClientByID: %v", err)
	}
	if !c.HasUnlocked(20) {
		t.Fatalf("expected agent 20 unlocked, got %v", c.UnlockedAgents)
	}
	if len(c.PaymentHistory) != 1 || c.PaymentHistory[0].AgentID != 20 {
		t.Fatalf("unexpected history %+v", c.PaymentHistory)
	}
	if !c.PaymentHistory[0].Amount.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("unexpected amount %s", c.PaymentHistory[0].Amount)
	}
}

func TestRebind(t *testing.T) {
	got := rebind(DriverPgx, "SELECT 1 WHERE a = ? AND b = ?")
	if got != "SELECT 1 WHERE a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind %q", got)
	}
	if got := rebind(DriverMySQL, "a = ?"); got != "a = ?" {
		t.Fatalf("mysql query should be unchanged, got %q", got)
	}
}
