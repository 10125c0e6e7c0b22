package models

import "time"

var (
	officer = Actor{ID: "u-officer", Role: RoleCaseOfficer}
	t0      = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)
