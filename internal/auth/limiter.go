package auth

import (
	"sync"
	"time"
)

const pruneThreshold = 1024

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// loginLimiter はIPごとのログイン失敗回数を数え、上限に達したら一定時間ロックします。
type loginLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptState
	window      time.Duration
	lockFor     time.Duration
	maxAttempts int
	now         func() time.Time
}

func newLoginLimiter(window, lockFor time.Duration, maxAttempts int) *loginLimiter {
	return &loginLimiter{
		attempts:    make(map[string]*attemptState),
		window:      window,
		lockFor:     lockFor,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// retryAfter はロック中なら残り時間を返します。
func (l *loginLimiter) retryAfter(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.attempts[ip]
	if !ok {
		return 0
	}
	now := l.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// fail は失敗を記録し、ロックまでの残り回数を返します。
func (l *loginLimiter) fail(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.attempts) >= pruneThreshold {
		l.pruneLocked(now)
	}
	state, ok := l.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > l.window {
		state = &attemptState{firstAttempt: now}
		l.attempts[ip] = state
	}

	state.count++
	if state.count >= l.maxAttempts {
		state.lockedUntil = now.Add(l.lockFor)
		state.count = l.maxAttempts
	}
	return max(l.maxAttempts-state.count, 0)
}

func (l *loginLimiter) reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// pruneLocked は期限切れの記録を削除します。呼び出し側で mu を保持していること。
func (l *loginLimiter) pruneLocked(now time.Time) {
	for ip, state := range l.attempts {
		if now.Sub(state.firstAttempt) > l.window && !now.Before(state.lockedUntil) {
			delete(l.attempts, ip)
		}
	}
}
