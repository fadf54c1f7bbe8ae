package scheduling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AvailabilityCache stores serialized availability pages. Every doctor has a
// version counter that is part of the key, so bumping the counter retires all
// pages cached for that doctor without enumerating them.
type AvailabilityCache interface {
	Version(ctx context.Context, doctorID uuid.UUID) (int64, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Bump(ctx context.Context, doctorID uuid.UUID) error
}

type nopCache struct{}

func (nopCache) Version(context.Context, uuid.UUID) (int64, error) { return 0, nil }
func (nopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, string, []byte) error         { return nil }
func (nopCache) Bump(context.Context, uuid.UUID) error             { return nil }

// availabilityKey renders avail:{doctor}:v{version}:{scope}:{offset}:{limit}.
// scope is the requested date, or the current second when no date was given,
// since a slot leaves the no-date listing the moment it starts.
func availabilityKey(doctorID uuid.UUID, version int64, q SlotQuery) string {
	scope := "all"
	switch {
	case q.Date != nil:
		scope = q.Date.String()
	case q.NotBefore != nil:
		scope = "now-" + q.NotBefore.String()
	}
	return fmt.Sprintf("avail:%s:v%d:%s:%d:%d", doctorID, version, scope, q.Offset, q.Limit)
}

type cachedPage struct {
	Items []TimeSlot `json:"items"`
	Total int        `json:"total"`
}

// cachedAvailability returns the page stored for q, if any. Cache failures are
// logged and treated as a miss.
func (s *Service) cachedAvailability(ctx context.Context, q SlotQuery) (page Page[TimeSlot], key string, ok bool) {
	version, err := s.cache.Version(ctx, q.DoctorID)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", q.DoctorID.String()).Msg("availability cache version lookup failed")
		return page, "", false
	}
	key = availabilityKey(q.DoctorID, version, q)

	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
		return page, key, false
	}
	if !found {
		return page, key, false
	}

	var cp cachedPage
	if err := json.Unmarshal(raw, &cp); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable availability cache entry")
		return page, key, false
	}
	return Page[TimeSlot]{Items: cp.Items, Total: cp.Total}, key, true
}

func (s *Service) storeAvailability(ctx context.Context, key string, page Page[TimeSlot]) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(cachedPage{Items: page.Items, Total: page.Total})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode availability page")
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}
}

// invalidate runs after commit for every write that changes a doctor's slots.
func (s *Service) invalidate(ctx context.Context, doctorID uuid.UUID) {
	if err := s.cache.Bump(ctx, doctorID); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability cache invalidation failed")
	}
}
