package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cargoflow/accessctl"
)

// RedisUserDirectory keeps user records in Redis: a hash per user
// (key: user:{id}) and a membership set per role (key: rolemem:{roleID})
// for reverse lookups.
type RedisUserDirectory struct {
	client  *redis.Client
	userFmt string // format string, e.g. "user:%s"
	roleFmt string // format string, e.g. "rolemem:%s"
}

func NewRedisUserDirectory(client *redis.Client) *RedisUserDirectory {
	return &RedisUserDirectory{client: client, userFmt: "user:%s", roleFmt: "rolemem:%s"}
}

func (d *RedisUserDirectory) userKey(id string) string {
	return fmt.Sprintf(d.userFmt, id)
}

func (d *RedisUserDirectory) roleKey(roleID string) string {
	return fmt.Sprintf(d.roleFmt, roleID)
}

// SetUser inserts or replaces a user record and keeps the role membership
// sets consistent.
func (d *RedisUserDirectory) SetUser(ctx context.Context, rec *accessctl.UserRecord) error {
	old, err := d.client.HGet(ctx, d.userKey(rec.ID), "role").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if old != "" && old != rec.Role {
		if err := d.client.SRem(ctx, d.roleKey(old), rec.ID).Err(); err != nil {
			return err
		}
	}
	perms, _ := json.Marshal(rec.Permissions)
	if err := d.client.HSet(ctx, d.userKey(rec.ID), "role", rec.Role, "permissions", string(perms)).Err(); err != nil {
		return err
	}
	if rec.Role != "" {
		return d.client.SAdd(ctx, d.roleKey(rec.Role), rec.ID).Err()
	}
	return nil
}

func (d *RedisUserDirectory) GetUser(ctx context.Context, id string) (*accessctl.UserRecord, error) {
	vals, err := d.client.HGetAll(ctx, d.userKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, accessctl.ErrUserNotFound
	}
	rec := &accessctl.UserRecord{ID: id, Role: vals["role"]}
	if perms := vals["permissions"]; perms != "" {
		_ = json.Unmarshal([]byte(perms), &rec.Permissions)
	}
	return rec, nil
}

func (d *RedisUserDirectory) AssignRole(ctx context.Context, userID, roleID string) error {
	rec, err := d.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Role == roleID {
		return nil
	}
	rec.Role = roleID
	return d.SetUser(ctx, rec)
}

// GetUsersWithRole lists the ids of users currently holding the role.
func (d *RedisUserDirectory) GetUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	return d.client.SMembers(ctx, d.roleKey(roleID)).Result()
}
