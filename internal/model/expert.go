package model

import "time"

// Expert is the verification profile of a user with userType "expert".
// One row per user; Verified only changes through the admin endpoint.
type Expert struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	User            *UserRef  `json:"user,omitempty"`
	Specialization  []string  `json:"specialization"`
	Credential      string    `json:"credential"`
	CredentialDoc   string    `json:"credentialDoc"`
	IDDoc           string    `json:"idDoc"`
	ExperienceYears int       `json:"experienceYears"`
	City            string    `json:"city"`
	Country         string    `json:"country"`
	Bio             string    `json:"bio"`
	Verified        bool      `json:"verified"`
	BookingIDs      []string  `json:"bookingIds"`
	CreatedAt       time.Time `json:"createdAt"`
}
