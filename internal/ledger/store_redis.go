package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

const defaultRedisPrefix = "ledger"

// createScript writes the account only if its key is unset and adds it to every
// index key in the same script, so a listing never sees a half-created account.
//
// KEYS[1] account key, KEYS[2..n] index sorted sets
// ARGV[1] account JSON, ARGV[2] index score, ARGV[3] index member
var createScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
for i = 2, #KEYS do
	redis.call('ZADD', KEYS[i], ARGV[2], ARGV[3])
end
return 1
`)

// RedisLedger stores accounts as JSON strings and keeps one sorted set per
// indexed attribute, scored by creation time in milliseconds. Every key shares
// the {prefix} hash tag, so the create script stays in one cluster slot.
// Listings order by creation millisecond, then address.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithKeyPrefix namespaces every key, so several deployments can share a server.
func WithKeyPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// NewRedisLedger constructs a Redis-backed ledger. The client lifecycle is
// managed by the caller.
func NewRedisLedger(client redis.UniversalClient, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *RedisLedger) keyspace() string {
	return "{" + l.prefix + "}"
}

func (l *RedisLedger) accountKey(addr domain.Address) string {
	return l.memberKey(addr.String())
}

func (l *RedisLedger) memberKey(member string) string {
	return l.keyspace() + ":acct:" + member
}

func (l *RedisLedger) indexKey(kind Kind, attr string, addr domain.Address) string {
	if attr == "" {
		return l.keyspace() + ":idx:" + string(kind) + ":all"
	}
	return l.keyspace() + ":idx:" + string(kind) + ":" + attr + ":" + addr.String()
}

func (l *RedisLedger) indexKeys(acct Account) []string {
	keys := []string{l.indexKey(acct.Kind, "", domain.Address{})}
	if !acct.Issuer.IsZero() {
		keys = append(keys, l.indexKey(acct.Kind, "issuer", acct.Issuer))
	}
	if !acct.Achievement.IsZero() {
		keys = append(keys, l.indexKey(acct.Kind, "achievement", acct.Achievement))
	}
	if !acct.Recipient.IsZero() {
		keys = append(keys, l.indexKey(acct.Kind, "recipient", acct.Recipient))
	}
	return keys
}

func (l *RedisLedger) CreateIfAbsent(ctx context.Context, acct Account) error {
	payload, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	keys := append([]string{l.accountKey(acct.Address)}, l.indexKeys(acct)...)
	created, err := createScript.Run(ctx, l.client, keys,
		payload, acct.CreatedAt.UnixMilli(), acct.Address.String()).Int()
	if err != nil {
		return unavailable("create account", err)
	}
	if created == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (l *RedisLedger) Read(ctx context.Context, addr domain.Address) (Account, error) {
	raw, err := l.client.Get(ctx, l.accountKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Account{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Account{}, unavailable("read account", err)
	}
	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return acct, nil
}

// Replace rewrites the stored JSON with SET XX so a missing account is never
// created by an update. Index membership is immutable and left untouched.
func (l *RedisLedger) Replace(ctx context.Context, acct Account) error {
	existing, err := l.Read(ctx, acct.Address)
	if err != nil {
		return err
	}
	existing.Data = acct.Data
	existing.UpdatedAt = acct.UpdatedAt
	payload, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	ok, err := l.client.SetXX(ctx, l.accountKey(acct.Address), payload, 0).Result()
	if err != nil {
		return unavailable("replace account", err)
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

// CompareAndReplace reads and writes the account inside WATCH, so a write by
// another client between the two aborts the transaction.
func (l *RedisLedger) CompareAndReplace(ctx context.Context, acct Account, expected json.RawMessage) error {
	key := l.accountKey(acct.Address)
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return unavailable("read account", err)
		}
		var existing Account
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("decode account %s: %w", acct.Address, err)
		}
		if !bytes.Equal(existing.Data, expected) {
			return sentinel.ErrConflict
		}
		existing.Data = acct.Data
		existing.UpdatedAt = acct.UpdatedAt
		payload, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("marshal account: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable("replace account", err)
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

// List walks the most selective index for the filter. When that index is the
// only address predicate the page is cut by ZRANGE and counted by ZCOUNT;
// otherwise the whole index is loaded and the remaining predicates applied in
// process.
func (l *RedisLedger) List(ctx context.Context, f Filter) ([]Account, int, error) {
	if f.Kind == "" {
		return nil, 0, fmt.Errorf("redis ledger listing requires a kind")
	}
	key := l.indexKey(f.Kind, "", domain.Address{})
	predicates := 0
	for _, idx := range []struct {
		attr string
		addr domain.Address
	}{
		{"issuer", f.Issuer},
		{"achievement", f.Achievement},
		{"recipient", f.Recipient},
	} {
		if idx.addr.IsZero() {
			continue
		}
		predicates++
		key = l.indexKey(f.Kind, idx.attr, idx.addr)
	}

	minScore := "-inf"
	if !f.Since.IsZero() {
		minScore = strconv.FormatInt(f.Since.UnixMilli(), 10)
	}
	if predicates <= 1 {
		return l.listPage(ctx, key, minScore, f)
	}

	members, err := l.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, 0, unavailable("list index", err)
	}
	accts, err := l.load(ctx, members)
	if err != nil {
		return nil, 0, err
	}
	matched := accts[:0]
	for _, acct := range accts {
		if f.Matches(acct) {
			matched = append(matched, acct)
		}
	}
	sortAccounts(matched)
	return f.Page(matched), len(matched), nil
}

func (l *RedisLedger) listPage(ctx context.Context, key, minScore string, f Filter) ([]Account, int, error) {
	total, err := l.client.ZCount(ctx, key, minScore, "+inf").Result()
	if err != nil {
		return nil, 0, unavailable("count index", err)
	}
	offset := int64(max(f.Offset, 0))
	if total == 0 || offset >= total {
		return []Account{}, int(total), nil
	}
	count := int64(-1)
	if f.Limit > 0 {
		count = int64(f.Limit)
	}
	members, err := l.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    minScore,
		Max:    "+inf",
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, 0, unavailable("list index", err)
	}
	accts, err := l.load(ctx, members)
	if err != nil {
		return nil, 0, err
	}
	return accts, int(total), nil
}

// load fetches members with MGET, keeping index order.
func (l *RedisLedger) load(ctx context.Context, members []string) ([]Account, error) {
	if len(members) == 0 {
		return []Account{}, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = l.memberKey(m)
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("load accounts", err)
	}

	accts := make([]Account, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var acct Account
		if err := json.Unmarshal([]byte(s), &acct); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", members[i], err)
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
