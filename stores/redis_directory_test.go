package stores

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cargoflow/accessctl"
)

func newTestDirectory(t *testing.T) *RedisUserDirectory {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUserDirectory(client)
}

func membersOf(t *testing.T, d *RedisUserDirectory, roleID string) []string {
	t.Helper()
	users, err := d.GetUsersWithRole(context.Background(), roleID)
	if err != nil {
		t.Fatalf("users with role %s: %v", roleID, err)
	}
	sort.Strings(users)
	return users
}

func TestRedisUserDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	if _, err := d.GetUser(ctx, "ghost"); !errors.Is(err, accessctl.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := d.SetUser(ctx, &accessctl.UserRecord{ID: "alice", Role: "viewer", Permissions: []string{"docs:read"}}); err != nil {
		t.Fatalf("set alice: %v", err)
	}
	rec, err := d.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if rec.ID != "alice" || rec.Role != "viewer" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Permissions) != 1 || rec.Permissions[0] != "docs:read" {
		t.Fatalf("unexpected permissions: %v", rec.Permissions)
	}

	users := membersOf(t, d, "viewer")
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("unexpected viewer members: %v", users)
	}
}

func TestRedisUserDirectoryAssignRoleMovesMembership(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	for _, u := range []string{"alice", "bob"} {
		if err := d.SetUser(ctx, &accessctl.UserRecord{ID: u, Role: "viewer"}); err != nil {
			t.Fatalf("set %s: %v", u, err)
		}
	}

	if err := d.AssignRole(ctx, "alice", "editor"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	rec, _ := d.GetUser(ctx, "alice")
	if rec.Role != "editor" {
		t.Fatalf("expected editor, got %s", rec.Role)
	}
	if users := membersOf(t, d, "viewer"); len(users) != 1 || users[0] != "bob" {
		t.Fatalf("expected viewer set to shrink, got %v", users)
	}
	if users := membersOf(t, d, "editor"); len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected editor set to gain alice, got %v", users)
	}

	// reassigning the current role is a no-op
	if err := d.AssignRole(ctx, "alice", "editor"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if err := d.AssignRole(ctx, "ghost", "editor"); !errors.Is(err, accessctl.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRedisUserDirectorySetUserKeepsSetsConsistent(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	if err := d.SetUser(ctx, &accessctl.UserRecord{ID: "bob", Role: "viewer", Permissions: []string{"docs:read"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	// direct overwrite with a different role, not via AssignRole
	if err := d.SetUser(ctx, &accessctl.UserRecord{ID: "bob", Role: "admin"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if users := membersOf(t, d, "viewer"); len(users) != 0 {
		t.Fatalf("expected empty viewer set, got %v", users)
	}
	if users := membersOf(t, d, "admin"); len(users) != 1 || users[0] != "bob" {
		t.Fatalf("expected admin set, got %v", users)
	}
	rec, _ := d.GetUser(ctx, "bob")
	if len(rec.Permissions) != 0 {
		t.Fatalf("expected permissions replaced, got %v", rec.Permissions)
	}

	// a record without a role belongs to no membership set
	if err := d.SetUser(ctx, &accessctl.UserRecord{ID: "carol"}); err != nil {
		t.Fatalf("set carol: %v", err)
	}
	rec, err := d.GetUser(ctx, "carol")
	if err != nil || rec.Role != "" {
		t.Fatalf("unexpected carol record: %+v err=%v", rec, err)
	}
}
