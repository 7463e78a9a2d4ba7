package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
)

// WaitlistQueue keeps a section's waitlist as a contiguous 1..N sequence
// ordered by join time.
type WaitlistQueue struct {
	now func() time.Time
}

// NewWaitlistQueue constructs a queue using clock for join timestamps.
func NewWaitlistQueue(clock func() time.Time) WaitlistQueue {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return WaitlistQueue{now: clock}
}

// Join appends the student at the tail. joined_at never precedes the current
// tail's, so position order and time order agree even if the clock steps back.
func (q WaitlistQueue) Join(ctx context.Context, tx repository.SectionTx, studentID string) (models.WaitlistEntry, error) {
	entries, err := tx.Waitlist(ctx)
	if err != nil {
		return models.WaitlistEntry{}, err
	}
	joinedAt := q.now()
	for _, entry := range entries {
		if entry.StudentID == studentID {
			return models.WaitlistEntry{}, fmt.Errorf("join waitlist: student %s already queued: %w", studentID, repository.ErrTxConflict)
		}
	}
	if n := len(entries); n > 0 && joinedAt.Before(entries[n-1].JoinedAt) {
		joinedAt = entries[n-1].JoinedAt
	}

	entry := models.WaitlistEntry{
		SectionID: tx.Section().ID,
		StudentID: studentID,
		Position:  len(entries) + 1,
		JoinedAt:  joinedAt,
	}
	if err := tx.InsertWaitlistEntry(ctx, entry); err != nil {
		return models.WaitlistEntry{}, err
	}
	return entry, nil
}

// Leave removes the student and closes the gap. It reports false when the
// student was not queued.
func (q WaitlistQueue) Leave(ctx context.Context, tx repository.SectionTx, studentID string) (bool, error) {
	entries, err := tx.Waitlist(ctx)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.StudentID != studentID {
			continue
		}
		if err := q.remove(ctx, tx, entry); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// PopFront removes and returns position 1, or nil when the waitlist is empty.
func (q WaitlistQueue) PopFront(ctx context.Context, tx repository.SectionTx) (*models.WaitlistEntry, error) {
	entries, err := tx.Waitlist(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	if err := q.remove(ctx, tx, head); err != nil {
		return nil, err
	}
	return &head, nil
}

// List returns the waitlist in position order.
func (q WaitlistQueue) List(ctx context.Context, tx repository.SectionTx) ([]models.WaitlistEntry, error) {
	return tx.Waitlist(ctx)
}

func (q WaitlistQueue) remove(ctx context.Context, tx repository.SectionTx, entry models.WaitlistEntry) error {
	if err := tx.DeleteWaitlistEntry(ctx, entry.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("remove waitlist entry %s: %w", entry.StudentID, repository.ErrTxConflict)
		}
		return err
	}
	return tx.ShiftWaitlistAfter(ctx, entry.Position)
}
