package repo

import (
	"context"
	"fmt"
	"strings"

	"ghostid.org/internal/entity"
	"ghostid.org/internal/store"
)

// RoleRepository specializes the generic repository for roles.
type RoleRepository struct {
	*Repository[*entity.Role]
}

// NewRoleRepository binds a role repository to a session.
func NewRoleRepository(sess *store.Session) *RoleRepository {
	return &RoleRepository{Repository: New(sess, entity.Roles())}
}

// GetByName loads a role by its unique name.
func (r *RoleRepository) GetByName(name string) (*entity.Role, bool, error) {
	return r.GetBy(Conditions{"name": name})
}

// GetByNameContext is the non-blocking form of GetByName.
func (r *RoleRepository) GetByNameContext(ctx context.Context, name string) (*entity.Role, bool, error) {
	return r.GetByContext(ctx, Conditions{"name": name})
}

// AttachPermissions loads the role's permissions and assigns them.
func (r *RoleRepository) AttachPermissions(role *entity.Role) error {
	if err := r.blocking(); err != nil {
		return err
	}
	return r.attachPermissions(context.Background(), role)
}

// AttachPermissionsContext is the non-blocking form of AttachPermissions.
func (r *RoleRepository) AttachPermissionsContext(ctx context.Context, role *entity.Role) error {
	if err := r.nonBlocking(); err != nil {
		return err
	}
	return r.attachPermissions(ctx, role)
}

func (r *RoleRepository) attachPermissions(ctx context.Context, role *entity.Role) error {
	permDesc := entity.Permissions()
	cols := make([]string, len(permDesc.Columns))
	for i, col := range permDesc.Columns {
		cols[i] = "p." + col
	}
	rows, err := r.sess.Query(ctx, fmt.Sprintf(
		"select %s from permissions p join role_permissions rp on rp.permission_id = p.id where rp.role_id = $1 order by p.name",
		strings.Join(cols, ", ")), role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	perms := []*entity.Permission{}
	for rows.Next() {
		perm := permDesc.New()
		if err := rows.Scan(permDesc.ScanDest(perm)...); err != nil {
			return err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	role.Permissions = perms
	return nil
}
