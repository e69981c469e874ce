package domain

import (
	"strings"
	"time"

	"github.com/diagnosis/buildhub/internal/utils"
	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/events"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

// CanTransition reports whether to is reachable from from in one step.
// Completed and cancelled bookings are terminal.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

const (
	DateLayout     = "2006-01-02"
	TimeSlotLayout = "3:04 PM"
)

type ContactDetails struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

type Address struct {
	Street     string `json:"street" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
}

type Booking struct {
	ID          int64
	UserID      int64
	ServiceID   *int64
	BookingType string
	BookingDate time.Time
	TimeSlot    string
	Status      BookingStatus
	Contact     ContactDetails
	Address     Address
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOwner checks if the given user ID owns this booking
func (b *Booking) IsOwner(userID int64) bool {
	return b.UserID == userID
}

type BookingDTO struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"userId"`
	ServiceID      *int64         `json:"serviceId,omitempty"`
	BookingType    string         `json:"bookingType,omitempty"`
	BookingDate    string         `json:"bookingDate"`
	TimeSlot       string         `json:"timeSlot"`
	Status         BookingStatus  `json:"status"`
	ContactDetails ContactDetails `json:"contactDetails"`
	Address        Address        `json:"address"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (b *Booking) ToDTO() BookingDTO {
	return BookingDTO{
		ID:             b.ID,
		UserID:         b.UserID,
		ServiceID:      b.ServiceID,
		BookingType:    b.BookingType,
		BookingDate:    b.BookingDate.Format(DateLayout),
		TimeSlot:       b.TimeSlot,
		Status:         b.Status,
		ContactDetails: b.Contact,
		Address:        b.Address,
		Notes:          b.Notes,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// EventData is the payload of booking.created and booking.updated events.
type EventData struct {
	Booking BookingDTO                         `json:"booking"`
	Change  *events.BookingStatusChangedEvent `json:"change,omitempty"`
}

type CreateBookingRequest struct {
	// Service is a catalog slug or numeric id.
	Service        string         `json:"service" validate:"required_without=BookingType,max=80"`
	BookingType    string         `json:"bookingType" validate:"max=80"`
	BookingDate    string         `json:"bookingDate" validate:"required"`
	TimeSlot       string         `json:"timeSlot" validate:"required"`
	ContactDetails ContactDetails `json:"contactDetails"`
	Address        Address        `json:"address"`
	Notes          string         `json:"notes" validate:"max=2000"`
}

func (r *CreateBookingRequest) Normalize() {
	r.Service = utils.NormalizeSlug(r.Service)
	r.BookingType = utils.NormalizeString(r.BookingType)
	r.BookingDate = utils.NormalizeString(r.BookingDate)
	r.TimeSlot = strings.ToUpper(utils.NormalizeString(r.TimeSlot))
	r.ContactDetails.Name = utils.NormalizeName(r.ContactDetails.Name)
	r.ContactDetails.Email = utils.NormalizeEmail(r.ContactDetails.Email)
	r.ContactDetails.Phone = utils.NormalizePhone(r.ContactDetails.Phone)
	r.Address.Street = utils.NormalizeString(r.Address.Street)
	r.Address.City = utils.NormalizeString(r.Address.City)
	r.Address.State = utils.NormalizeString(r.Address.State)
	r.Address.PostalCode = utils.NormalizeString(r.Address.PostalCode)
	r.Notes = utils.NormalizeString(r.Notes)
}

// Schedule parses the date and slot. When notBefore is non-zero, dates
// before notBefore's UTC day are rejected. The returned date is midnight UTC
// of the booked day.
func (r *CreateBookingRequest) Schedule(notBefore time.Time) (time.Time, string, error) {
	date, err := time.Parse(DateLayout, r.BookingDate)
	if err != nil {
		return time.Time{}, "", apperr.Validation("bookingDate must be a date in YYYY-MM-DD format")
	}
	slot, err := time.Parse(TimeSlotLayout, r.TimeSlot)
	if err != nil {
		return time.Time{}, "", apperr.Validation("timeSlot must look like 10:30 AM")
	}
	if notBefore.IsZero() {
		return date, slot.Format(TimeSlotLayout), nil
	}
	y, m, d := notBefore.UTC().Date()
	if date.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		return time.Time{}, "", apperr.Validation("bookingDate cannot be in the past")
	}
	return date, slot.Format(TimeSlotLayout), nil
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
