package model

import "time"

// BookingStatus is the lifecycle state of a Booking.  Only the
// pending -> confirmed transition is exposed by the API.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
)

// Booking is a consultation request from a farmer to an expert.  Date is a
// calendar day (YYYY-MM-DD), Time a free-form slot label such as "10:30".
type Booking struct {
	ID        string        `json:"id"`
	FarmerID  string        `json:"farmerId"`
	Farmer    *UserRef      `json:"farmer,omitempty"`
	ExpertID  string        `json:"expertId"`
	Expert    *Expert       `json:"expert,omitempty"`
	Date      string        `json:"date"`
	Time      string        `json:"time"`
	Message   string        `json:"message"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
