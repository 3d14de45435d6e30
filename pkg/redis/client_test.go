package redis

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "manual-sync", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed with count 1, got allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "manual-sync", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "manual-sync", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestDeletePatternScansAllPages(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.scanPage = 2
	client := &Client{store: mock}

	for _, key := range []string{"fs:cache:menu:1", "fs:cache:menu:2", "fs:cache:menu:3", "fs:cache:zones:1"} {
		mock.data[key] = "x"
	}

	removed, err := client.DeletePattern(ctx, "fs:cache:menu:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 keys removed, got %d", removed)
	}
	if _, ok := mock.data["fs:cache:zones:1"]; !ok {
		t.Fatalf("non matching key must survive")
	}
	if _, ok := mock.data["fs:cache:menu:2"]; ok {
		t.Fatalf("matching key must be removed")
	}
}

func TestListMoveAndRemove(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.LPush(ctx, "waiting", "a"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := client.LPush(ctx, "waiting", "b"); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := client.BLMove(ctx, "waiting", "active", time.Second)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got != "a" {
		t.Fatalf("expected oldest element first, got %q", got)
	}
	if n, _ := client.LLen(ctx, "active"); n != 1 {
		t.Fatalf("expected one active element, got %d", n)
	}
	if n, err := client.LRem(ctx, "active", "a"); err != nil || n != 1 {
		t.Fatalf("expected removal, got n=%d err=%v", n, err)
	}

	if _, err := client.BLMove(ctx, "waiting", "active", time.Second); err != nil {
		t.Fatalf("move: %v", err)
	}
	empty, err := client.BLMove(ctx, "waiting", "active", time.Second)
	if err != nil {
		t.Fatalf("empty move should not error: %v", err)
	}
	if empty != "" {
		t.Fatalf("expected empty result on timeout, got %q", empty)
	}
}

func TestSortedSetDueMembers(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	_ = client.ZAdd(ctx, "delayed", 10, "early")
	_ = client.ZAdd(ctx, "delayed", 50, "late")

	due, err := client.ZRangeByScoreMax(ctx, "delayed", 20, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(due) != 1 || due[0] != "early" {
		t.Fatalf("expected only early member, got %v", due)
	}
	removed, err := client.ZRem(ctx, "delayed", "early")
	if err != nil || !removed {
		t.Fatalf("expected member removed, got %v err=%v", removed, err)
	}
	removed, _ = client.ZRem(ctx, "delayed", "early")
	if removed {
		t.Fatalf("second removal should report absent member")
	}
	if n, _ := client.ZCard(ctx, "delayed"); n != 1 {
		t.Fatalf("expected one remaining member, got %d", n)
	}
}

func TestPublishRecordsChannel(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	if err := client.Publish(context.Background(), client.NotifyChannel("orders"), "hello"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mock.published) != 1 || mock.published[0] != "fs:notify:orders" {
		t.Fatalf("unexpected published channels %v", mock.published)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error for uninitialized client")
	}
	if _, err := client.DeletePattern(context.Background(), "*"); err == nil {
		t.Fatalf("expected error for uninitialized client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "fs:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "fs:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.QueueKey("order-sync", "waiting"); got != "fs:queue:order-sync:waiting" {
		t.Fatalf("unexpected queue key %s", got)
	}
	if got := client.QueueKey("order-sync", ""); got != "fs:queue:order-sync" {
		t.Fatalf("queue key should skip empty parts, got %s", got)
	}
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(configWith("", "")); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(configWith("", "localhost:6379"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.PoolSize != 10 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr, PoolSize: 10}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	lists       map[string][]string
	zsets       map[string]map[string]float64
	published   []string
	expireCalls []expireCall
	scanPage    int
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		incr:     make(map[string]int64),
		lists:    make(map[string][]string),
		zsets:    make(map[string]map[string]float64),
		scanPage: 100,
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
		delete(m.data, key)
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if ok, _ := path.Match(match, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	// Callers delete each page, so every call restarts from the survivors.
	if len(keys) > m.scanPage {
		return redis.NewScanCmdResult(keys[:m.scanPage], 1, nil)
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (m *mockCmdable) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append([]string{fmt.Sprint(v)}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd {
	list := m.lists[source]
	if len(list) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	value := list[len(list)-1]
	m.lists[source] = list[:len(list)-1]
	m.lists[destination] = append([]string{value}, m.lists[destination]...)
	return redis.NewStringResult(value, nil)
}

func (m *mockCmdable) LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd {
	target := fmt.Sprint(value)
	list := m.lists[key]
	for i, v := range list {
		if v == target {
			m.lists[key] = append(list[:i:i], list[i+1:]...)
			return redis.NewIntResult(1, nil)
		}
	}
	return redis.NewIntResult(0, nil)
}

func (m *mockCmdable) LLen(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	list := m.lists[key]
	if stop < 0 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start >= int64(len(list)) || start > stop {
		m.lists[key] = nil
	} else {
		m.lists[key] = list[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	for _, member := range members {
		set[fmt.Sprint(member.Member)] = member.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (m *mockCmdable) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	max, _ := strconv.ParseFloat(opt.Max, 64)
	out := []string{}
	for member, score := range m.zsets[key] {
		if score <= max {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	if opt.Count > 0 && int64(len(out)) > opt.Count {
		out = out[:opt.Count]
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	var n int64
	for _, member := range members {
		name := fmt.Sprint(member)
		if _, ok := m.zsets[key][name]; ok {
			delete(m.zsets[key], name)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) ZCard(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.zsets[key])), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel)
	return redis.NewIntResult(1, nil)
}
