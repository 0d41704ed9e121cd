package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ghostid.org/internal/entity"
	"ghostid.org/internal/obs"
	"ghostid.org/internal/store"
)

const (
	defaultLockThreshold = 5
	defaultLockDuration  = 30 * time.Minute
)

// UserRepository specializes the generic repository for principals: unique
// lookups, the authentication protocol with failure tracking and lockout,
// role attachment and audit recording.
type UserRepository struct {
	*Repository[*entity.User]

	rejectLocked  bool
	lockThreshold int
	lockDuration  time.Duration
	clock         func() time.Time
}

// UserOption configures a UserRepository.
type UserOption func(*UserRepository)

// WithRejectLockedUsers makes Authenticate fail for a locked principal even
// when the password is correct. Off by default: a lock only marks the
// account, it does not bar a correct login.
func WithRejectLockedUsers() UserOption {
	return func(r *UserRepository) { r.rejectLocked = true }
}

// WithLockPolicy overrides the failed-attempt threshold and lock duration.
func WithLockPolicy(threshold int, duration time.Duration) UserOption {
	return func(r *UserRepository) {
		r.lockThreshold = threshold
		r.lockDuration = duration
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) UserOption {
	return func(r *UserRepository) { r.clock = clock }
}

// NewUserRepository binds a principal repository to a session.
func NewUserRepository(sess *store.Session, opts ...UserOption) *UserRepository {
	r := &UserRepository{
		Repository:    New(sess, entity.Users()),
		lockThreshold: defaultLockThreshold,
		lockDuration:  defaultLockDuration,
		clock:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetByUsername loads a principal by its unique username.
func (r *UserRepository) GetByUsername(username string) (*entity.User, bool, error) {
	return r.GetBy(Conditions{"username": username})
}

// GetByUsernameContext is the non-blocking form of GetByUsername.
func (r *UserRepository) GetByUsernameContext(ctx context.Context, username string) (*entity.User, bool, error) {
	return r.GetByContext(ctx, Conditions{"username": username})
}

// GetByEmail loads a principal by its unique email.
func (r *UserRepository) GetByEmail(email string) (*entity.User, bool, error) {
	return r.GetBy(Conditions{"email": email})
}

// GetByEmailContext is the non-blocking form of GetByEmail.
func (r *UserRepository) GetByEmailContext(ctx context.Context, email string) (*entity.User, bool, error) {
	return r.GetByContext(ctx, Conditions{"email": email})
}

// Authenticate resolves a principal by username, falling back to email, and
// verifies the password. Success records last_login, increments login_count
// and resets the failure counter; failure against an existing principal
// increments the counter and locks the account once the threshold is
// reached. An unknown principal and a wrong password are indistinguishable
// in the result.
func (r *UserRepository) Authenticate(identifier, password string) (*entity.User, bool, error) {
	if err := r.blocking(); err != nil {
		return nil, false, err
	}
	return r.authenticate(context.Background(), identifier, password)
}

// AuthenticateContext is the non-blocking form of Authenticate.
func (r *UserRepository) AuthenticateContext(ctx context.Context, identifier, password string) (*entity.User, bool, error) {
	if err := r.nonBlocking(); err != nil {
		return nil, false, err
	}
	return r.authenticate(ctx, identifier, password)
}

func (r *UserRepository) authenticate(ctx context.Context, identifier, password string) (*entity.User, bool, error) {
	u, found, err := r.getBy(ctx, Conditions{"username": identifier})
	if err != nil {
		return nil, false, err
	}
	if !found {
		u, found, err = r.getBy(ctx, Conditions{"email": identifier})
		if err != nil {
			return nil, false, err
		}
	}
	if !found {
		obs.CountAuthAttempt("failure")
		return nil, false, nil
	}

	now := r.clock()
	if r.rejectLocked && u.Locked(now) {
		obs.CountAuthAttempt("locked")
		obs.LogEvent("auth.locked", map[string]any{"user_id": u.ID})
		return nil, false, nil
	}

	if !u.VerifyPassword(password) {
		u.FailedLoginCount++
		if u.FailedLoginCount >= r.lockThreshold {
			until := now.Add(r.lockDuration)
			u.LockedUntil = &until
		}
		u.UpdatedAt = now
		_, err := r.sess.Exec(ctx,
			"update users set failed_login_count = $1, locked_until = $2, updated_at = $3 where id = $4",
			u.FailedLoginCount, u.LockedUntil, u.UpdatedAt, u.ID)
		if err != nil {
			return nil, false, err
		}
		obs.CountAuthAttempt("failure")
		obs.LogEvent("auth.failure", map[string]any{"user_id": u.ID, "failed_count": u.FailedLoginCount})
		return nil, false, nil
	}

	u.LastLogin = &now
	u.LoginCount++
	u.FailedLoginCount = 0
	u.UpdatedAt = now
	_, err = r.sess.Exec(ctx,
		"update users set last_login = $1, login_count = $2, failed_login_count = 0, updated_at = $3 where id = $4",
		u.LastLogin, u.LoginCount, u.UpdatedAt, u.ID)
	if err != nil {
		return nil, false, err
	}
	obs.CountAuthAttempt("success")
	obs.LogEvent("auth.success", map[string]any{"user_id": u.ID})
	return u, true, nil
}

// AttachRoles loads the principal's roles and their permissions in two
// batched reads and assigns them to the entity.
func (r *UserRepository) AttachRoles(u *entity.User) error {
	if err := r.blocking(); err != nil {
		return err
	}
	return r.attachRoles(context.Background(), u)
}

// AttachRolesContext is the non-blocking form of AttachRoles.
func (r *UserRepository) AttachRolesContext(ctx context.Context, u *entity.User) error {
	if err := r.nonBlocking(); err != nil {
		return err
	}
	return r.attachRoles(ctx, u)
}

func (r *UserRepository) attachRoles(ctx context.Context, u *entity.User) error {
	roleDesc := entity.Roles()
	cols := make([]string, len(roleDesc.Columns))
	for i, col := range roleDesc.Columns {
		cols[i] = "r." + col
	}
	rows, err := r.sess.Query(ctx, fmt.Sprintf(
		"select %s from roles r join user_roles ur on ur.role_id = r.id where ur.user_id = $1 order by r.priority desc",
		strings.Join(cols, ", ")), u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	roles := []*entity.Role{}
	byID := map[string]*entity.Role{}
	for rows.Next() {
		role := roleDesc.New()
		if err := rows.Scan(roleDesc.ScanDest(role)...); err != nil {
			return err
		}
		role.Permissions = []*entity.Permission{}
		roles = append(roles, role)
		byID[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return err
	}
	u.Roles = roles
	if len(roles) == 0 {
		return nil
	}

	permDesc := entity.Permissions()
	permCols := make([]string, len(permDesc.Columns))
	for i, col := range permDesc.Columns {
		permCols[i] = "p." + col
	}
	placeholders := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, role := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = role.ID
	}
	permRows, err := r.sess.Query(ctx, fmt.Sprintf(
		"select rp.role_id, %s from permissions p join role_permissions rp on rp.permission_id = p.id where rp.role_id in (%s)",
		strings.Join(permCols, ", "), strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return err
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleID string
		perm := permDesc.New()
		dest := append([]any{&roleID}, permDesc.ScanDest(perm)...)
		if err := permRows.Scan(dest...); err != nil {
			return err
		}
		if role, ok := byID[roleID]; ok {
			role.Permissions = append(role.Permissions, perm)
		}
	}
	return permRows.Err()
}

// RecordAudit appends an audit trail entry to the principal and persists it.
func (r *UserRepository) RecordAudit(id, action, actor string, details map[string]any) (bool, error) {
	if err := r.blocking(); err != nil {
		return false, err
	}
	return r.recordAudit(context.Background(), id, action, actor, details)
}

// RecordAuditContext is the non-blocking form of RecordAudit.
func (r *UserRepository) RecordAuditContext(ctx context.Context, id, action, actor string, details map[string]any) (bool, error) {
	if err := r.nonBlocking(); err != nil {
		return false, err
	}
	return r.recordAudit(ctx, id, action, actor, details)
}

func (r *UserRepository) recordAudit(ctx context.Context, id, action, actor string, details map[string]any) (bool, error) {
	u, found, err := r.get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	u.AddAuditEntry(action, actor, details)
	u.Touch()
	r.enqueueUpdate(u, id)
	return true, r.sess.Flush(ctx)
}
