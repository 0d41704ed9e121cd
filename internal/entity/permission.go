package entity

import "ghostid.org/internal/ids"

// Permission is a fine-grained capability, unique on (resource, action).
// It composes Timestamps only.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description *string

	Timestamps
}

func (p *Permission) Table() string    { return "permissions" }
func (p *Permission) EntityID() string { return p.ID }

func (p *Permission) InitDefaults() {
	p.ID = ids.New()
	p.initTimestamps()
}

// ToMap projects the permission for callers outside the core.
func (p *Permission) ToMap() map[string]any {
	out := map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"resource": p.Resource,
		"action":   p.Action,
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	return out
}

var permissionDescriptor = &Descriptor[*Permission]{
	TableName: "permissions",
	Columns: []string{
		"id", "name", "resource", "action", "description",
		"created_at", "updated_at",
	},
	New: func() *Permission { return &Permission{} },
	Fields: map[string]Field[*Permission]{
		"id": {
			Value:  func(p *Permission) any { return p.ID },
			Assign: func(p *Permission, v any) error { return setString(&p.ID, v) },
		},
		"name": {
			Value:  func(p *Permission) any { return p.Name },
			Assign: func(p *Permission, v any) error { return setString(&p.Name, v) },
		},
		"resource": {
			Value:  func(p *Permission) any { return p.Resource },
			Assign: func(p *Permission, v any) error { return setString(&p.Resource, v) },
		},
		"action": {
			Value:  func(p *Permission) any { return p.Action },
			Assign: func(p *Permission, v any) error { return setString(&p.Action, v) },
		},
		"description": {
			Value:  func(p *Permission) any { return p.Description },
			Assign: func(p *Permission, v any) error { return setStringPtr(&p.Description, v) },
		},
		"created_at": {
			Value:  func(p *Permission) any { return p.CreatedAt },
			Assign: func(p *Permission, v any) error { return setTime(&p.CreatedAt, v) },
		},
		"updated_at": {
			Value:  func(p *Permission) any { return p.UpdatedAt },
			Assign: func(p *Permission, v any) error { return setTime(&p.UpdatedAt, v) },
		},
	},
	ScanDest: func(p *Permission) []any {
		return []any{
			&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description,
			&p.CreatedAt, &p.UpdatedAt,
		}
	},
	KeyDest: func(p *Permission) []any {
		return []any{&p.ID, &p.CreatedAt, &p.UpdatedAt}
	},
}

// Permissions returns the field registry for the Permission entity.
func Permissions() *Descriptor[*Permission] { return permissionDescriptor }
