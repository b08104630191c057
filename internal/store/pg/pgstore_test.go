package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "password_hash", "role_id", "active", "blocked", "created_at", "updated_at"}).
		AddRow("u1", "alice", "hash", "r1", true, false, now, now)
}

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "alice", "hash", sqlmock.AnyArg(), true, false).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.CreateUser(context.Background(), auth.User{Username: "alice", PasswordHash: "hash", Active: true})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByUsername(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users where username = ").WithArgs("alice").WillReturnRows(userRow(now))
	mock.ExpectQuery("select .* from users where username = ").WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := s.FindUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if u.ID != "u1" || u.RoleID != "r1" || !u.Enabled() {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := s.FindUserByUsername(context.Background(), "nobody"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRoleStillReferenced(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from roles").WithArgs("r1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectExec("delete from roles").WithArgs("r2").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteRole(context.Background(), "r1"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.DeleteRole(context.Background(), "r2"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAttachPermissionsTransaction(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles where id = .* for update").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("insert into role_permissions").WithArgs("r1", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs("r1", "p2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := s.AttachPermissions(context.Background(), "r1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("AttachPermissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAttachPermissionsUnknownRoleRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	if err := s.AttachPermissions(context.Background(), "missing", []string{"p1"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRolePermissions(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select 1 from roles").WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("from role_permissions rp").WithArgs("r1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "description", "resource_type", "action", "created_at"}).
			AddRow("p1", "LOCATION:READ", "", "LOCATION", "READ", now).
			AddRow("p2", "RACK:EDIT", "", "RACK", "EDIT", now))

	perms, err := s.RolePermissions(context.Background(), "r1")
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	set := auth.NewPermissionSet(perms)
	if !set.Has(auth.Grant{Resource: auth.ResourceRack, Action: auth.ActionEdit}) || len(set) != 2 {
		t.Fatalf("unexpected permissions: %v", set.Authorities())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOwnershipQueries(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into resource_owners").WithArgs("LOCATION", "42", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select exists").WithArgs("LOCATION", "42", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("select resource_id from resource_owners").WithArgs("LOCATION", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"resource_id"}).AddRow("42").AddRow("7"))
	mock.ExpectExec("delete from resource_owners where resource_type").WithArgs("LOCATION", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := s.AddOwner(ctx, auth.ResourceLocation, "42", "u1"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	owned, err := s.IsOwner(ctx, auth.ResourceLocation, "42", "u1")
	if err != nil || !owned {
		t.Fatalf("IsOwner = %v, %v", owned, err)
	}
	ids, err := s.OwnedBy(ctx, auth.ResourceLocation, "u1")
	if err != nil || len(ids) != 2 {
		t.Fatalf("OwnedBy = %v, %v", ids, err)
	}
	if err := s.RemoveResource(ctx, auth.ResourceLocation, "42"); err != nil {
		t.Fatalf("RemoveResource: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddOwnerUnknownUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into resource_owners").WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := s.AddOwner(context.Background(), auth.ResourceRack, "1", "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgePermissionSingleTransaction(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from permissions where id = .* for update").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions where permission_id").WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from permissions where id").WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.PurgePermission(context.Background(), "p1"); err != nil {
		t.Fatalf("PurgePermission: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPurgePermissionUnknownRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from permissions").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	if err := s.PurgePermission(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
