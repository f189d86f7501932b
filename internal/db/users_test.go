package db

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := NewUserStore(filepath.Join(t.TempDir(), "test.db"), "secret")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeedAdminAndAuthenticate(t *testing.T) {
	store := newTestStore(t)

	u, err := store.Authenticate("admin", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != RoleAdmin {
		t.Errorf("seeded admin role = %q", u.Role)
	}

	if _, err := store.Authenticate("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := store.Authenticate("ghost", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestCreateUserAndRoles(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateUser("ops", "pw", RoleOperate); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateUser("bad", "pw", "superuser"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("invalid role err = %v", err)
	}

	u, err := store.GetUser("ops")
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != RoleOperate {
		t.Errorf("role = %q", u.Role)
	}

	if err := store.SetRole("ops", RoleView); err != nil {
		t.Fatal(err)
	}
	u, _ = store.GetUser("ops")
	if u.Role != RoleView {
		t.Errorf("role after change = %q", u.Role)
	}

	if err := store.SetRole("ghost", RoleView); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetRole on missing user err = %v", err)
	}

	users, err := store.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("user count = %d, want 2 (admin + ops)", len(users))
	}
}

func TestSetPasswordAndDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateUser("ops", "old", RoleOperate); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPassword("ops", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Authenticate("ops", "old"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password still accepted")
	}
	if _, err := store.Authenticate("ops", "new"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	if err := store.DeleteUser("ops"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetUser("ops"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("deleted user lookup err = %v", err)
	}
	if err := store.DeleteUser("ops"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	store := newTestStore(t)

	for _, status := range []string{"success", "no_response", "error"} {
		if err := store.RecordAudit("admin", "account", "玩家信息", `{"玩家id":"1"}`, status); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.ListAudit(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Status != "error" {
		t.Errorf("first entry status = %q", entries[0].Status)
	}
	if entries[0].Function != "玩家信息" || entries[0].Module != "account" {
		t.Errorf("entry = %+v", entries[0])
	}

	// Nothing is older than the retention window yet.
	purged, err := store.PurgeAudit(1)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("purged %d fresh entries", purged)
	}
}
