package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lkarlslund/redflag/pkg/keys"
	"github.com/lkarlslund/redflag/pkg/kv"
	"github.com/lkarlslund/redflag/pkg/metrics"
)

var (
	ErrInvalidFlag   = errors.New("invalid flag")
	ErrFlagNotFound  = errors.New("flag not found")
	ErrFlagExists    = errors.New("flag already exists")
	ErrGroupNotFound = errors.New("group not found")
)

// Flag is a mutable feature definition. It lives under one flat key; the
// uid is additionally tracked in a member set so definitions can be
// enumerated without key scans.
type Flag struct {
	UID         string   `json:"uid"`
	Enable      bool     `json:"enable"`
	Description string   `json:"description,omitempty"`
	Group       string   `json:"group,omitempty"`
	Expression  string   `json:"expression,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (f Flag) Validate() error {
	if strings.TrimSpace(f.UID) == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidFlag)
	}
	return nil
}

type Store struct {
	conn kv.Conn
}

func New(conn kv.Conn) *Store {
	return &Store{conn: conn}
}

func (s *Store) Exist(ctx context.Context, uid string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, fmt.Errorf("%w: uid is required", ErrInvalidFlag)
	}
	n, err := s.conn.Exists(ctx, keys.Flag(uid)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", uid, err)
	}
	return n > 0, nil
}

func (s *Store) Read(ctx context.Context, uid string) (Flag, error) {
	if strings.TrimSpace(uid) == "" {
		return Flag{}, fmt.Errorf("%w: uid is required", ErrInvalidFlag)
	}
	raw, err := s.conn.Get(ctx, keys.Flag(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return Flag{}, fmt.Errorf("%w: %s", ErrFlagNotFound, uid)
	}
	if err != nil {
		return Flag{}, fmt.Errorf("get %s: %w", uid, err)
	}
	var f Flag
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Flag{}, fmt.Errorf("decode flag %s: %w", uid, err)
	}
	metrics.FlagReads.Inc()
	return f, nil
}

func (s *Store) Create(ctx context.Context, f Flag) error {
	if err := f.Validate(); err != nil {
		return err
	}
	exists, err := s.Exist(ctx, f.UID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrFlagExists, f.UID)
	}
	if err := s.conn.SAdd(ctx, keys.FlagIndex(), f.UID).Err(); err != nil {
		return fmt.Errorf("index %s: %w", f.UID, err)
	}
	return s.put(ctx, f)
}

func (s *Store) Update(ctx context.Context, f Flag) error {
	if err := f.Validate(); err != nil {
		return err
	}
	exists, err := s.Exist(ctx, f.UID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, f.UID)
	}
	return s.put(ctx, f)
}

func (s *Store) Delete(ctx context.Context, uid string) error {
	exists, err := s.Exist(ctx, uid)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, uid)
	}
	if err := s.conn.SRem(ctx, keys.FlagIndex(), uid).Err(); err != nil {
		return fmt.Errorf("unindex %s: %w", uid, err)
	}
	if err := s.conn.Del(ctx, keys.Flag(uid)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", uid, err)
	}
	metrics.FlagWrites.Inc()
	return nil
}

func (s *Store) Enable(ctx context.Context, uid string) error {
	return s.setEnable(ctx, uid, true)
}

func (s *Store) Disable(ctx context.Context, uid string) error {
	return s.setEnable(ctx, uid, false)
}

// ReadAll returns every flag keyed by uid. A uid left in the index without
// its definition key fails the read rather than being skipped.
func (s *Store) ReadAll(ctx context.Context) (map[string]Flag, error) {
	uids, err := s.conn.SMembers(ctx, keys.FlagIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers flag index: %w", err)
	}
	out := make(map[string]Flag, len(uids))
	for _, uid := range uids {
		f, err := s.Read(ctx, uid)
		if err != nil {
			return nil, err
		}
		out[uid] = f
	}
	return out, nil
}

func (s *Store) GrantRole(ctx context.Context, uid, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidFlag)
	}
	f, err := s.Read(ctx, uid)
	if err != nil {
		return err
	}
	if slices.Contains(f.Permissions, role) {
		return nil
	}
	f.Permissions = append(f.Permissions, role)
	return s.put(ctx, f)
}

func (s *Store) RemoveRole(ctx context.Context, uid, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidFlag)
	}
	f, err := s.Read(ctx, uid)
	if err != nil {
		return err
	}
	idx := slices.Index(f.Permissions, role)
	if idx < 0 {
		return nil
	}
	f.Permissions = slices.Delete(f.Permissions, idx, idx+1)
	return s.put(ctx, f)
}

// Groups are not persisted on their own; they are derived from the group
// field of the stored flags on every call.

func (s *Store) ExistGroup(ctx context.Context, group string) (bool, error) {
	flags, err := s.readGroup(ctx, group)
	if err != nil {
		return false, err
	}
	return len(flags) > 0, nil
}

func (s *Store) ReadGroup(ctx context.Context, group string) (map[string]Flag, error) {
	flags, err := s.readGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	return flags, nil
}

func (s *Store) EnableGroup(ctx context.Context, group string) error {
	return s.setGroupEnable(ctx, group, true)
}

func (s *Store) DisableGroup(ctx context.Context, group string) error {
	return s.setGroupEnable(ctx, group, false)
}

func (s *Store) AddToGroup(ctx context.Context, uid, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return fmt.Errorf("%w: group is required", ErrInvalidFlag)
	}
	f, err := s.Read(ctx, uid)
	if err != nil {
		return err
	}
	if f.Group == group {
		return nil
	}
	f.Group = group
	return s.put(ctx, f)
}

func (s *Store) RemoveFromGroup(ctx context.Context, uid, group string) error {
	f, err := s.Read(ctx, uid)
	if err != nil {
		return err
	}
	if f.Group != strings.TrimSpace(group) {
		return fmt.Errorf("%w: flag %s is not in group %q", ErrGroupNotFound, uid, group)
	}
	f.Group = ""
	return s.put(ctx, f)
}

func (s *Store) ReadAllGroups(ctx context.Context) ([]string, error) {
	flags, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, f := range flags {
		g := strings.TrimSpace(f.Group)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	slices.Sort(out)
	return out, nil
}

// Clear removes every flag definition and the index set.
func (s *Store) Clear(ctx context.Context) error {
	uids, err := s.conn.SMembers(ctx, keys.FlagIndex()).Result()
	if err != nil {
		return fmt.Errorf("smembers flag index: %w", err)
	}
	for _, uid := range uids {
		if err := s.conn.Del(ctx, keys.Flag(uid)).Err(); err != nil {
			return fmt.Errorf("del %s: %w", uid, err)
		}
	}
	if err := s.conn.Del(ctx, keys.FlagIndex()).Err(); err != nil {
		return fmt.Errorf("del flag index: %w", err)
	}
	metrics.FlagWrites.Inc()
	return nil
}

func (s *Store) put(ctx context.Context, f Flag) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flag %s: %w", f.UID, err)
	}
	if err := s.conn.Set(ctx, keys.Flag(f.UID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", f.UID, err)
	}
	metrics.FlagWrites.Inc()
	return nil
}

func (s *Store) setEnable(ctx context.Context, uid string, enable bool) error {
	f, err := s.Read(ctx, uid)
	if err != nil {
		return err
	}
	if f.Enable == enable {
		return nil
	}
	f.Enable = enable
	return s.put(ctx, f)
}

func (s *Store) setGroupEnable(ctx context.Context, group string, enable bool) error {
	flags, err := s.ReadGroup(ctx, group)
	if err != nil {
		return err
	}
	for _, f := range flags {
		if f.Enable == enable {
			continue
		}
		f.Enable = enable
		if err := s.put(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readGroup(ctx context.Context, group string) (map[string]Flag, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, fmt.Errorf("%w: group is required", ErrInvalidFlag)
	}
	flags, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]Flag{}
	for uid, f := range flags {
		if f.Group == group {
			out[uid] = f
		}
	}
	return out, nil
}
