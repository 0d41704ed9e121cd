package entity

import "time"

// AuditEntry is one record in an entity's append-only audit trail.
type AuditEntry struct {
	Action    string         `json:"action"`
	User      string         `json:"user,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int            `json:"version"`
	Details   map[string]any `json:"details"`
}

// Timestamps tracks creation and last-mutation instants in UTC.
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch refreshes the last-mutation instant.
func (t *Timestamps) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

func (t *Timestamps) initTimestamps() {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// SoftDelete marks rows logically deleted without physical removal.
// Soft-deleted rows are excluded from default list reads.
type SoftDelete struct {
	IsDeleted bool
	DeletedAt *time.Time
}

// MarkDeleted flags the row as deleted and records the instant.
func (d *SoftDelete) MarkDeleted() {
	now := time.Now().UTC()
	d.IsDeleted = true
	d.DeletedAt = &now
}

// Restore clears the deletion flags.
func (d *SoftDelete) Restore() {
	d.IsDeleted = false
	d.DeletedAt = nil
}

// Deleted reports whether the row is soft-deleted.
func (d *SoftDelete) Deleted() bool {
	return d.IsDeleted
}

// Audit carries actor references, a monotonically increasing version and an
// append-only trail. Appends always build a fresh slice so persistence layers
// comparing references see every change.
type Audit struct {
	CreatedBy *string
	UpdatedBy *string
	Version   int
	Trail     []AuditEntry
}

// AddAuditEntry appends one entry to the trail and increments the version.
// The entry records the version in effect when the action happened.
func (a *Audit) AddAuditEntry(action, user string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	entry := AuditEntry{
		Action:    action,
		Timestamp: time.Now().UTC(),
		Version:   a.Version,
		Details:   details,
	}
	if user != "" {
		entry.User = user
		a.UpdatedBy = &user
	}
	trail := make([]AuditEntry, 0, len(a.Trail)+1)
	trail = append(trail, a.Trail...)
	a.Trail = append(trail, entry)
	a.Version++
}

// BumpVersion increments the version without recording a trail entry.
func (a *Audit) BumpVersion() {
	a.Version++
}

// SoftDeletable tags entity types composing the SoftDelete capability.
type SoftDeletable interface {
	MarkDeleted()
	Restore()
	Deleted() bool
}

// Audited tags entity types composing the Audit capability.
type Audited interface {
	AddAuditEntry(action, user string, details map[string]any)
	BumpVersion()
}

var (
	_ SoftDeletable = (*SoftDelete)(nil)
	_ Audited       = (*Audit)(nil)
)
