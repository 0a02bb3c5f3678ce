package org

import "time"

// Organization is the tenant root. Every other resource in the system belongs
// to exactly one organization.
type Organization struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ContactEmail string    `json:"contact_email"`
	Timezone     string    `json:"timezone"`
	DigestHour   int       `json:"digest_hour"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
