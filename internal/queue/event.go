// Package queue defines the booking events exchanged over RabbitMQ and the
// background consumer that records them.
package queue

import "time"

// Queue names; the routing key equals the queue name on the default exchange.
const (
	BookingCreatedQueue   = "booking.created"
	BookingConfirmedQueue = "booking.confirmed"
)

// BookingEvent is published when a booking is created or confirmed.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type BookingEvent struct {
	Type         string `json:"type"`
	BookingID    string `json:"booking_id"`
	FarmerID     string `json:"farmer_id"`
	ExpertID     string `json:"expert_id"`
	ExpertUserID string `json:"expert_user_id,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Status       string `json:"status"`
	OccurredAt   string `json:"occurred_at"`
}

// NewBookingEvent stamps OccurredAt with the current UTC time.
func NewBookingEvent(kind, bookingID, farmerID, expertID, expertUserID, date, slot, status string) BookingEvent {
	return BookingEvent{
		Type:         kind,
		BookingID:    bookingID,
		FarmerID:     farmerID,
		ExpertID:     expertID,
		ExpertUserID: expertUserID,
		Date:         date,
		Time:         slot,
		Status:       status,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}
}
