package service

import (
	"context"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
)

// CapacityLedger owns a section's seat counter. Every method must run inside
// the section's atomic unit so the check and the mutation cannot interleave
// with another request.
type CapacityLedger struct{}

// TryReserveSeat takes a seat when one is free. A full section is reported as
// ReserveFull and leaves the counter untouched.
func (CapacityLedger) TryReserveSeat(ctx context.Context, tx repository.SectionTx) (models.ReserveOutcome, error) {
	section := tx.Section()
	if !section.HasFreeSeat() {
		return models.ReserveFull, nil
	}
	section.EnrolledCount++
	if err := tx.SaveSection(ctx, withSeatStatus(section)); err != nil {
		return "", err
	}
	return models.ReserveAccepted, nil
}

// ReleaseSeat gives a seat back. The counter never goes below zero.
func (CapacityLedger) ReleaseSeat(ctx context.Context, tx repository.SectionTx) error {
	section := tx.Section()
	if section.EnrolledCount > 0 {
		section.EnrolledCount--
	}
	return tx.SaveSection(ctx, withSeatStatus(section))
}

// ForceReserveSeat takes a seat regardless of capacity. Only override
// enrollments may call it.
func (CapacityLedger) ForceReserveSeat(ctx context.Context, tx repository.SectionTx) error {
	section := tx.Section()
	section.EnrolledCount++
	return tx.SaveSection(ctx, withSeatStatus(section))
}

// withSeatStatus keeps OPEN and FULL in step with the counter. CLOSED belongs
// to catalog management and is left alone.
func withSeatStatus(section models.Section) models.Section {
	if section.Status == models.SectionStatusClosed {
		return section
	}
	if section.EnrolledCount >= section.Capacity {
		section.Status = models.SectionStatusFull
	} else {
		section.Status = models.SectionStatusOpen
	}
	return section
}
