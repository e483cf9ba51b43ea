package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gymdesk/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DraftRepository keeps one draft per (user, shift date) with a TTL.
type DraftRepository interface {
	Save(ctx context.Context, d model.Draft) error
	// Find returns nil, nil when there is no draft.
	Find(ctx context.Context, userID, shiftDate string) (*model.Draft, error)
	Delete(ctx context.Context, userID, shiftDate string) error
}

const draftKeyPrefix = "cierre:draft:"

func draftKey(userID, shiftDate string) string {
	return draftKeyPrefix + userID + ":" + shiftDate
}

// draftRecord is the JSON stored in Redis. Amounts keep their exact decimal
// text.
type draftRecord struct {
	UserID           string                     `json:"user_id"`
	ShiftDate        string                     `json:"shift_date"`
	ShiftStart       time.Time                  `json:"shift_start"`
	Counted          map[string]decimal.Decimal `json:"counted"`
	Notes            string                     `json:"notes,omitempty"`
	DiscrepancyNotes string                     `json:"discrepancy_notes,omitempty"`
	SavedAt          time.Time                  `json:"saved_at"`
}

type draftRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDraftRepository(rdb *redis.Client, ttl time.Duration) DraftRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &draftRepo{rdb: rdb, ttl: ttl}
}

func (r *draftRepo) Save(ctx context.Context, d model.Draft) error {
	rec := draftRecord{
		UserID:           d.UserID,
		ShiftDate:        d.ShiftDate,
		ShiftStart:       d.ShiftStart,
		Counted:          make(map[string]decimal.Decimal, len(model.Tenders)),
		Notes:            d.Count.Notes,
		DiscrepancyNotes: d.Count.DiscrepancyNotes,
		SavedAt:          d.SavedAt,
	}
	for _, t := range model.Tenders {
		rec.Counted[string(t)] = d.Count.Counted.Get(t)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("draft: marshal: %w", err)
	}
	return r.rdb.Set(ctx, draftKey(d.UserID, d.ShiftDate), data, r.ttl).Err()
}

func (r *draftRepo) Find(ctx context.Context, userID, shiftDate string) (*model.Draft, error) {
	data, err := r.rdb.Get(ctx, draftKey(userID, shiftDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec draftRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("draft: unmarshal: %w", err)
	}
	d := &model.Draft{
		UserID:     rec.UserID,
		ShiftDate:  rec.ShiftDate,
		ShiftStart: rec.ShiftStart,
		Count:      model.PhysicalCount{Notes: rec.Notes, DiscrepancyNotes: rec.DiscrepancyNotes},
		SavedAt:    rec.SavedAt,
	}
	for k, v := range rec.Counted {
		t, err := model.ParseTenderType(k)
		if err != nil {
			continue
		}
		d.Count.Counted.Set(t, v)
	}
	return d, nil
}

func (r *draftRepo) Delete(ctx context.Context, userID, shiftDate string) error {
	return r.rdb.Del(ctx, draftKey(userID, shiftDate)).Err()
}
