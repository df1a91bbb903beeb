// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a user. Identity is provisioned elsewhere, so the engine
// only requires a non-empty opaque string.
type UserID string

// MaxUserIDLength bounds identifiers accepted from callers.
const MaxUserIDLength = 128

// IsValid checks if the user ID is usable.
func (u UserID) IsValid() bool {
	return u != "" && len(u) <= MaxUserIDLength
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID")
	}
	return uid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP represents the experience currency balance of a user.
type XP int

// MinXP is the balance floor.
const MinXP XP = 0

// IsValid checks if the XP value is within valid range.
func (x XP) IsValid() bool {
	return x >= MinXP
}

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Add adds XP and returns the result.
func (x XP) Add(amount int) XP {
	return XP(int(x) + amount)
}

// Covers reports whether the balance can pay amount.
func (x XP) Covers(amount int) bool {
	return int(x) >= amount
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a user's 1-based position in a leaderboard.
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsTop returns true if the rank is in the top N.
func (r Rank) IsTop(n int) bool {
	return r.IsValid() && int(r) <= n
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Domain logic takes `now` explicitly;
// the application layer reads it from a Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Useful in tests and replays.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the fixed clock forward.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
