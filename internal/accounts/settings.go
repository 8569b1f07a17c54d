// Package accounts provides per-account configuration: calendar setup,
// required booking fields, and review outreach settings.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/resaflow/platform/internal/calendar"
)

// Settings is one account's business configuration. Required booking fields
// differ by vertical: restaurants collect a guest count, solo practices
// default it to 1 and omit it from the required set.
type Settings struct {
	AccountID    string `json:"account_id"`
	BusinessName string `json:"business_name,omitempty"`

	RequiredFields    []string `json:"required_fields,omitempty"`
	DefaultGuestCount int      `json:"default_guest_count,omitempty"`

	Calendar calendar.Settings `json:"calendar"`

	ReviewFlowID     string `json:"review_flow_id,omitempty"`
	ReviewDelayHours int    `json:"review_delay_hours,omitempty"`
	ReviewLink       string `json:"review_link,omitempty"`

	NotifyEmail     string `json:"notify_email,omitempty"`
	NotifyEmailName string `json:"notify_email_name,omitempty"`
}

// DefaultSettings returns the restaurant-vertical defaults.
func DefaultSettings(accountID string) *Settings {
	return &Settings{
		AccountID:         accountID,
		RequiredFields:    []string{"name", "date", "time", "guestCount"},
		DefaultGuestCount: 1,
		Calendar:          calendar.DefaultSettings(),
		ReviewDelayHours:  2,
	}
}

// Normalized fills gaps so callers never see a zero required-field set.
func (s *Settings) Normalized() *Settings {
	out := *s
	if len(out.RequiredFields) == 0 {
		out.RequiredFields = DefaultSettings(s.AccountID).RequiredFields
	}
	if out.DefaultGuestCount <= 0 {
		out.DefaultGuestCount = 1
	}
	if out.ReviewDelayHours <= 0 {
		out.ReviewDelayHours = 2
	}
	out.Calendar = out.Calendar.Normalized()
	return &out
}

// Store persists account settings in redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates an account settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(accountID string) string {
	return fmt.Sprintf("account:settings:%s", accountID)
}

// Get retrieves settings, returning defaults if none are saved.
func (s *Store) Get(ctx context.Context, accountID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("accounts: unmarshal settings: %w", err)
	}
	return settings.Normalized(), nil
}

// Set saves settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("accounts: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(settings.AccountID), data, 0).Err(); err != nil {
		return fmt.Errorf("accounts: set settings: %w", err)
	}
	return nil
}
