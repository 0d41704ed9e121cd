package entity

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"ghostid.org/internal/ids"
)

// User is the authenticated principal. It composes the Timestamps, SoftDelete
// and Audit capabilities.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string

	// Profile
	FirstName   *string
	LastName    *string
	DisplayName *string
	AvatarURL   *string
	Bio         *string

	// Status
	IsActive    bool
	IsVerified  bool
	IsSuperuser bool

	// Authentication state
	LastLogin        *time.Time
	LoginCount       int
	FailedLoginCount int
	LockedUntil      *time.Time

	// Two-factor
	TwoFactorEnabled bool
	TwoFactorSecret  *string

	// Free-form data
	Settings map[string]any
	Metadata map[string]any

	Timestamps
	SoftDelete
	Audit

	// Relations, attached by the identity repository.
	Roles    []*Role
	Sessions []*UserSession
}

func (u *User) Table() string    { return "users" }
func (u *User) EntityID() string { return u.ID }

func (u *User) InitDefaults() {
	u.ID = ids.New()
	u.IsActive = true
	u.Settings = map[string]any{}
	u.Metadata = map[string]any{}
	u.Version = 1
	u.Trail = []AuditEntry{}
	u.initTimestamps()
}

// SetPassword hashes and stores the password using bcrypt.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword compares the plaintext password with the stored hash.
// bcrypt comparison is salted, adaptive and constant-time.
func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// FullName returns "first last", falling back to the display name and then
// the username. Empty strings count as unset, same as nil.
func (u *User) FullName() string {
	if u.FirstName != nil && *u.FirstName != "" && u.LastName != nil && *u.LastName != "" {
		return *u.FirstName + " " + *u.LastName
	}
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

// Locked reports whether the account lock is still in effect at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// HasRole reports whether any attached role carries the given name.
func (u *User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasPermission walks every attached role's permission set. The traversal is
// recomputed on every call; attaching or detaching a role changes the result
// immediately.
func (u *User) HasPermission(name string) bool {
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			if perm.Name == name {
				return true
			}
		}
	}
	return false
}

// ToMap projects the user for callers outside the core. Nil instants are
// absent rather than rendered as empty strings.
func (u *User) ToMap() map[string]any {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, role.Name)
	}
	out := map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"full_name":    u.FullName(),
		"is_active":    u.IsActive,
		"is_verified":  u.IsVerified,
		"is_superuser": u.IsSuperuser,
		"roles":        roles,
		"created_at":   isoTime(u.CreatedAt),
	}
	if u.FirstName != nil {
		out["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		out["last_name"] = *u.LastName
	}
	if u.DisplayName != nil {
		out["display_name"] = *u.DisplayName
	}
	if u.AvatarURL != nil {
		out["avatar_url"] = *u.AvatarURL
	}
	if u.LastLogin != nil {
		out["last_login"] = isoTime(*u.LastLogin)
	}
	return out
}

var userDescriptor = &Descriptor[*User]{
	TableName: "users",
	Columns: []string{
		"id", "username", "email", "password_hash",
		"first_name", "last_name", "display_name", "avatar_url", "bio",
		"is_active", "is_verified", "is_superuser",
		"last_login", "login_count", "failed_login_count", "locked_until",
		"two_factor_enabled", "two_factor_secret",
		"settings", "metadata",
		"created_at", "updated_at",
		"is_deleted", "deleted_at",
		"created_by", "updated_by", "version", "audit_log",
	},
	New: func() *User { return &User{} },
	Fields: map[string]Field[*User]{
		"id": {
			Value:  func(u *User) any { return u.ID },
			Assign: func(u *User, v any) error { return setString(&u.ID, v) },
		},
		"username": {
			Value:  func(u *User) any { return u.Username },
			Assign: func(u *User, v any) error { return setString(&u.Username, v) },
		},
		"email": {
			Value:  func(u *User) any { return u.Email },
			Assign: func(u *User, v any) error { return setString(&u.Email, v) },
		},
		"password_hash": {
			Value:  func(u *User) any { return u.PasswordHash },
			Assign: func(u *User, v any) error { return setString(&u.PasswordHash, v) },
		},
		"first_name": {
			Value:  func(u *User) any { return u.FirstName },
			Assign: func(u *User, v any) error { return setStringPtr(&u.FirstName, v) },
		},
		"last_name": {
			Value:  func(u *User) any { return u.LastName },
			Assign: func(u *User, v any) error { return setStringPtr(&u.LastName, v) },
		},
		"display_name": {
			Value:  func(u *User) any { return u.DisplayName },
			Assign: func(u *User, v any) error { return setStringPtr(&u.DisplayName, v) },
		},
		"avatar_url": {
			Value:  func(u *User) any { return u.AvatarURL },
			Assign: func(u *User, v any) error { return setStringPtr(&u.AvatarURL, v) },
		},
		"bio": {
			Value:  func(u *User) any { return u.Bio },
			Assign: func(u *User, v any) error { return setStringPtr(&u.Bio, v) },
		},
		"is_active": {
			Value:  func(u *User) any { return u.IsActive },
			Assign: func(u *User, v any) error { return setBool(&u.IsActive, v) },
		},
		"is_verified": {
			Value:  func(u *User) any { return u.IsVerified },
			Assign: func(u *User, v any) error { return setBool(&u.IsVerified, v) },
		},
		"is_superuser": {
			Value:  func(u *User) any { return u.IsSuperuser },
			Assign: func(u *User, v any) error { return setBool(&u.IsSuperuser, v) },
		},
		"last_login": {
			Value:  func(u *User) any { return u.LastLogin },
			Assign: func(u *User, v any) error { return setTimePtr(&u.LastLogin, v) },
		},
		"login_count": {
			Value:  func(u *User) any { return u.LoginCount },
			Assign: func(u *User, v any) error { return setInt(&u.LoginCount, v) },
		},
		"failed_login_count": {
			Value:  func(u *User) any { return u.FailedLoginCount },
			Assign: func(u *User, v any) error { return setInt(&u.FailedLoginCount, v) },
		},
		"locked_until": {
			Value:  func(u *User) any { return u.LockedUntil },
			Assign: func(u *User, v any) error { return setTimePtr(&u.LockedUntil, v) },
		},
		"two_factor_enabled": {
			Value:  func(u *User) any { return u.TwoFactorEnabled },
			Assign: func(u *User, v any) error { return setBool(&u.TwoFactorEnabled, v) },
		},
		"two_factor_secret": {
			Value:  func(u *User) any { return u.TwoFactorSecret },
			Assign: func(u *User, v any) error { return setStringPtr(&u.TwoFactorSecret, v) },
		},
		"settings": {
			Value:  func(u *User) any { return jsonValue{u.Settings} },
			Assign: func(u *User, v any) error { return setAnyMap(&u.Settings, v) },
		},
		"metadata": {
			Value:  func(u *User) any { return jsonValue{u.Metadata} },
			Assign: func(u *User, v any) error { return setAnyMap(&u.Metadata, v) },
		},
		"created_at": {
			Value:  func(u *User) any { return u.CreatedAt },
			Assign: func(u *User, v any) error { return setTime(&u.CreatedAt, v) },
		},
		"updated_at": {
			Value:  func(u *User) any { return u.UpdatedAt },
			Assign: func(u *User, v any) error { return setTime(&u.UpdatedAt, v) },
		},
		"is_deleted": {
			Value:  func(u *User) any { return u.IsDeleted },
			Assign: func(u *User, v any) error { return setBool(&u.IsDeleted, v) },
		},
		"deleted_at": {
			Value:  func(u *User) any { return u.DeletedAt },
			Assign: func(u *User, v any) error { return setTimePtr(&u.DeletedAt, v) },
		},
		"created_by": {
			Value:  func(u *User) any { return u.CreatedBy },
			Assign: func(u *User, v any) error { return setStringPtr(&u.CreatedBy, v) },
		},
		"updated_by": {
			Value:  func(u *User) any { return u.UpdatedBy },
			Assign: func(u *User, v any) error { return setStringPtr(&u.UpdatedBy, v) },
		},
		"version": {
			Value:  func(u *User) any { return u.Version },
			Assign: func(u *User, v any) error { return setInt(&u.Version, v) },
		},
		"audit_log": {
			Value:  func(u *User) any { return jsonValue{u.Trail} },
			Assign: func(u *User, v any) error { return setTrail(&u.Trail, v) },
		},
	},
	ScanDest: func(u *User) []any {
		return []any{
			&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.FirstName, &u.LastName, &u.DisplayName, &u.AvatarURL, &u.Bio,
			&u.IsActive, &u.IsVerified, &u.IsSuperuser,
			&u.LastLogin, &u.LoginCount, &u.FailedLoginCount, &u.LockedUntil,
			&u.TwoFactorEnabled, &u.TwoFactorSecret,
			jsonScan{&u.Settings}, jsonScan{&u.Metadata},
			&u.CreatedAt, &u.UpdatedAt,
			&u.IsDeleted, &u.DeletedAt,
			&u.CreatedBy, &u.UpdatedBy, &u.Version, jsonScan{&u.Trail},
		}
	},
	KeyDest: func(u *User) []any {
		return []any{&u.ID, &u.CreatedAt, &u.UpdatedAt}
	},
}

// Users returns the field registry for the User entity.
func Users() *Descriptor[*User] { return userDescriptor }
