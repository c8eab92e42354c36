package domain

import "time"

// CaseUpdate is an immutable audit entry describing one status transition.
type CaseUpdate struct {
	ID          string    `json:"id"`
	ComplaintID string    `json:"complaintId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	ActorID     string    `json:"actorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SystemActor is the actor recorded for updates the portal makes itself.
const SystemActor = "system"

// FIRDetails records the First Information Report registered for a case.
type FIRDetails struct {
	Number string    `json:"number"`
	Date   time.Time `json:"date"`
}

// StatusChange is the atomic write applied by the store for one transition.
// Clock is read inside the store transaction to stamp the complaint and the
// case update; nil means time.Now.
type StatusChange struct {
	ComplaintID string
	Status      Status
	FIR         *FIRDetails
	Update      *CaseUpdate
	Clock       func() time.Time
}
