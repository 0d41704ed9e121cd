package entity

import "ghostid.org/internal/ids"

// Role groups permissions for RBAC. It composes Timestamps and Audit.
type Role struct {
	ID          string
	Name        string
	Description *string
	IsSystem    bool
	Priority    int

	Timestamps
	Audit

	// Relations, attached by the identity repository.
	Permissions []*Permission
}

func (r *Role) Table() string    { return "roles" }
func (r *Role) EntityID() string { return r.ID }

func (r *Role) InitDefaults() {
	r.ID = ids.New()
	r.Version = 1
	r.Trail = []AuditEntry{}
	r.initTimestamps()
}

// HasPermission reports whether the role carries the named permission.
func (r *Role) HasPermission(name string) bool {
	for _, perm := range r.Permissions {
		if perm.Name == name {
			return true
		}
	}
	return false
}

// ToMap projects the role for callers outside the core.
func (r *Role) ToMap() map[string]any {
	perms := make([]string, 0, len(r.Permissions))
	for _, perm := range r.Permissions {
		perms = append(perms, perm.Name)
	}
	out := map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"is_system":   r.IsSystem,
		"priority":    r.Priority,
		"permissions": perms,
		"created_at":  isoTime(r.CreatedAt),
	}
	if r.Description != nil {
		out["description"] = *r.Description
	}
	return out
}

var roleDescriptor = &Descriptor[*Role]{
	TableName: "roles",
	Columns: []string{
		"id", "name", "description", "is_system", "priority",
		"created_at", "updated_at",
		"created_by", "updated_by", "version", "audit_log",
	},
	New: func() *Role { return &Role{} },
	Fields: map[string]Field[*Role]{
		"id": {
			Value:  func(r *Role) any { return r.ID },
			Assign: func(r *Role, v any) error { return setString(&r.ID, v) },
		},
		"name": {
			Value:  func(r *Role) any { return r.Name },
			Assign: func(r *Role, v any) error { return setString(&r.Name, v) },
		},
		"description": {
			Value:  func(r *Role) any { return r.Description },
			Assign: func(r *Role, v any) error { return setStringPtr(&r.Description, v) },
		},
		"is_system": {
			Value:  func(r *Role) any { return r.IsSystem },
			Assign: func(r *Role, v any) error { return setBool(&r.IsSystem, v) },
		},
		"priority": {
			Value:  func(r *Role) any { return r.Priority },
			Assign: func(r *Role, v any) error { return setInt(&r.Priority, v) },
		},
		"created_at": {
			Value:  func(r *Role) any { return r.CreatedAt },
			Assign: func(r *Role, v any) error { return setTime(&r.CreatedAt, v) },
		},
		"updated_at": {
			Value:  func(r *Role) any { return r.UpdatedAt },
			Assign: func(r *Role, v any) error { return setTime(&r.UpdatedAt, v) },
		},
		"created_by": {
			Value:  func(r *Role) any { return r.CreatedBy },
			Assign: func(r *Role, v any) error { return setStringPtr(&r.CreatedBy, v) },
		},
		"updated_by": {
			Value:  func(r *Role) any { return r.UpdatedBy },
			Assign: func(r *Role, v any) error { return setStringPtr(&r.UpdatedBy, v) },
		},
		"version": {
			Value:  func(r *Role) any { return r.Version },
			Assign: func(r *Role, v any) error { return setInt(&r.Version, v) },
		},
		"audit_log": {
			Value:  func(r *Role) any { return jsonValue{r.Trail} },
			Assign: func(r *Role, v any) error { return setTrail(&r.Trail, v) },
		},
	},
	ScanDest: func(r *Role) []any {
		return []any{
			&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.Priority,
			&r.CreatedAt, &r.UpdatedAt,
			&r.CreatedBy, &r.UpdatedBy, &r.Version, jsonScan{&r.Trail},
		}
	},
	KeyDest: func(r *Role) []any {
		return []any{&r.ID, &r.CreatedAt, &r.UpdatedAt}
	},
}

// Roles returns the field registry for the Role entity.
func Roles() *Descriptor[*Role] { return roleDescriptor }
