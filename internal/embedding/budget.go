package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrBudgetExceeded = errors.New("daily embedding budget exceeded")

const dayLayout = "2006-01-02"

// Budget tracks spend per UTC day in nano-dollars. Reserve is the only
// checked operation: it rejects when the day's spend already meets the limit
// or the amount would push it over, and a rejection leaves spend unchanged.
type Budget interface {
	Reserve(ctx context.Context, amount int64) error
	// Release returns part of a reservation that was not used.
	Release(ctx context.Context, amount int64) error
	// Charge adds spend without a limit check, used to settle the
	// difference between an estimate and the billed amount.
	Charge(ctx context.Context, amount int64) error
	Spent(ctx context.Context) (int64, error)
}

// ToNanos converts dollars to the integer unit budgets count in.
func ToNanos(usd float64) int64 {
	return int64(math.Round(usd * 1e9))
}

func FromNanos(n int64) float64 {
	return float64(n) / 1e9
}

// MemoryBudget is a Budget for a single process. A limit <= 0 disables the check.
type MemoryBudget struct {
	mu    sync.Mutex
	limit int64
	spent int64
	day   string
	now   func() time.Time
}

func NewMemoryBudget(limitUSD float64) *MemoryBudget {
	return &MemoryBudget{limit: ToNanos(limitUSD), now: time.Now}
}

func (b *MemoryBudget) rollLocked() {
	day := b.now().UTC().Format(dayLayout)
	if day != b.day {
		b.day = day
		b.spent = 0
	}
}

func (b *MemoryBudget) Reserve(_ context.Context, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	if b.limit > 0 && (b.spent >= b.limit || b.spent+amount > b.limit) {
		return ErrBudgetExceeded
	}
	b.spent += amount
	return nil
}

func (b *MemoryBudget) Release(_ context.Context, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.spent -= amount
	if b.spent < 0 {
		b.spent = 0
	}
	return nil
}

func (b *MemoryBudget) Charge(_ context.Context, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.spent += amount
	return nil
}

func (b *MemoryBudget) Spent(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.spent, nil
}

const budgetKeyTTL = 48 * time.Hour

var reserveScript = redis.NewScript(`
local spent = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local amount = tonumber(ARGV[2])
if limit > 0 and (spent >= limit or spent + amount > limit) then
	return -1
end
local total = redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return total
`)

var adjustScript = redis.NewScript(`
local total = redis.call('INCRBY', KEYS[1], ARGV[1])
if total < 0 then
	redis.call('SET', KEYS[1], 0)
	total = 0
end
redis.call('EXPIRE', KEYS[1], ARGV[2])
return total
`)

// RedisBudget shares one counter per UTC day across every process.
type RedisBudget struct {
	client *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

func NewRedisBudget(client *redis.Client, prefix string, limitUSD float64) *RedisBudget {
	return &RedisBudget{
		client: client,
		prefix: prefix,
		limit:  ToNanos(limitUSD),
		now:    time.Now,
	}
}

func (b *RedisBudget) key() string {
	return fmt.Sprintf("%s:budget:%s", b.prefix, b.now().UTC().Format(dayLayout))
}

func (b *RedisBudget) Reserve(ctx context.Context, amount int64) error {
	res, err := reserveScript.Run(ctx, b.client, []string{b.key()}, b.limit, amount, int(budgetKeyTTL.Seconds())).Int64()
	if err != nil {
		return fmt.Errorf("failed to reserve budget: %w", err)
	}
	if res < 0 {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *RedisBudget) Release(ctx context.Context, amount int64) error {
	return b.adjust(ctx, -amount)
}

func (b *RedisBudget) Charge(ctx context.Context, amount int64) error {
	return b.adjust(ctx, amount)
}

func (b *RedisBudget) adjust(ctx context.Context, delta int64) error {
	if err := adjustScript.Run(ctx, b.client, []string{b.key()}, delta, int(budgetKeyTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("failed to adjust budget: %w", err)
	}
	return nil
}

func (b *RedisBudget) Spent(ctx context.Context) (int64, error) {
	n, err := b.client.Get(ctx, b.key()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read budget: %w", err)
	}
	return n, nil
}
