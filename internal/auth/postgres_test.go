package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGUserStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, username, password_hash, role.*from users").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPGStore(db)
	if _, err := store.Users(context.Background()).Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreCreateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into users").
		WithArgs("u1", "alice", "hash", 0, "", "").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	store := NewPGStore(db)
	err = store.Users(context.Background()).Create(context.Background(), &User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: "hash",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRefreshTokenStoreMarkRotatedCAS(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update refresh_tokens.*set status = 'rotated'.*status = 'active'").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens.*set status = 'rotated'.*status = 'active'").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	tokens := store.RefreshTokens(context.Background())

	won, err := tokens.MarkRotated(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if !won {
		t.Fatalf("first caller must win the rotation")
	}

	won, err = tokens.MarkRotated(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if won {
		t.Fatalf("second caller must lose the rotation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRefreshTokenStoreFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	parent := "tok-0"
	mock.ExpectQuery("select id, user_id, chain_id, parent_id.*from refresh_tokens").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "chain_id", "parent_id", "token_hash", "status", "expires_at", "created_at"}).
			AddRow("tok-1", "u1", "chain-1", &parent, "deadbeef", TokenStatusActive, now.Add(time.Hour), now))

	store := NewPGStore(db)
	tok, err := store.RefreshTokens(context.Background()).Find(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if tok.ChainID != "chain-1" || tok.ParentID == nil || *tok.ParentID != "tok-0" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
