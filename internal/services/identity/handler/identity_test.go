package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pos-system/internal/database/dbtest"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

func newTestHandler(t *testing.T) *IdentityHandler {
	t.Helper()
	return NewIdentityHandler(dbtest.NewStore(t), WithHashCost(bcrypt.MinCost))
}

func createEmployee(t *testing.T, h *IdentityHandler, username string) *models.Employee {
	t.Helper()
	e, err := h.CreateEmployee(context.Background(), CreateEmployeeInput{
		FirstName: "Ada",
		Username:  username,
		Password:  "correct horse",
	})
	require.NoError(t, err)
	return e
}

func TestCreateEmployee(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	e := createEmployee(t, h, "ada")
	assert.NotZero(t, e.ID)
	assert.True(t, e.Active)
	assert.Len(t, e.Salt, 16)
	assert.NotContains(t, e.PasswordHash, "correct horse")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(e.Salt+"correct horse")))

	_, err := h.CreateEmployee(ctx, CreateEmployeeInput{FirstName: "Other", Username: "ada", Password: "x"})
	assert.ErrorIs(t, err, errs.ErrConstraintViolation)

	_, err = h.CreateEmployee(ctx, CreateEmployeeInput{FirstName: "", Username: "bob", Password: "x"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateEmployee_SaltSource(t *testing.T) {
	h := NewIdentityHandler(dbtest.NewStore(t),
		WithHashCost(bcrypt.MinCost),
		WithSaltSource(func() (string, error) { return "pepper", nil }))

	e, err := h.CreateEmployee(context.Background(), CreateEmployeeInput{FirstName: "A", Username: "a", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "pepper", e.Salt)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte("pepperpw")))
}

func TestAuthenticate(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	e := createEmployee(t, h, "ada")

	got, err := h.Authenticate(ctx, "ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = h.Authenticate(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = h.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	require.NoError(t, h.SetEmployeeActive(ctx, e.ID, false))
	_, err = h.Authenticate(ctx, "ada", "correct horse")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestAssignAndRevokeRole_WritesAudit(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	admin := createEmployee(t, h, "admin")
	clerk := createEmployee(t, h, "clerk")
	role, err := h.CreateRole(ctx, "cashier")
	require.NoError(t, err)

	require.NoError(t, h.AssignRole(ctx, clerk.ID, role.ID, &admin.ID))
	assert.ErrorIs(t, h.AssignRole(ctx, clerk.ID, role.ID, &admin.ID), errs.ErrConstraintViolation)
	require.NoError(t, h.RevokeRole(ctx, clerk.ID, role.ID, &admin.ID))
	assert.ErrorIs(t, h.RevokeRole(ctx, clerk.ID, role.ID, &admin.ID), errs.ErrNotFound)
	assert.ErrorIs(t, h.AssignRole(ctx, clerk.ID, 999, &admin.ID), errs.ErrNotFound)

	audit, err := h.ListRoleAudit(ctx, clerk.ID)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, models.EditActionAdd, audit[0].Action)
	assert.Equal(t, models.EditActionRemove, audit[1].Action)
	assert.Equal(t, role.ID, *audit[0].RoleID)
	assert.Equal(t, admin.ID, *audit[1].ChangedBy)
}

func TestGrantRevokePermission(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	role, err := h.CreateRole(ctx, "manager")
	require.NoError(t, err)

	require.NoError(t, h.GrantPermission(ctx, role.ID, models.PermissionB, nil))
	assert.ErrorIs(t, h.GrantPermission(ctx, role.ID, models.PermissionB, nil), errs.ErrConstraintViolation)
	assert.ErrorIs(t, h.GrantPermission(ctx, role.ID, models.Permission("z"), nil), errs.ErrValidation)

	got, err := h.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, got.Permissions, 1)
	assert.Equal(t, models.PermissionB, got.Permissions[0].Permission)

	require.NoError(t, h.RevokePermission(ctx, role.ID, models.PermissionB, nil))
	assert.ErrorIs(t, h.RevokePermission(ctx, role.ID, models.PermissionB, nil), errs.ErrNotFound)

	audit, err := h.ListPermissionAudit(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, models.EditActionAdd, audit[0].Action)
	assert.Equal(t, models.EditActionRemove, audit[1].Action)
}

func TestHasPermission(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	e := createEmployee(t, h, "clerk")
	role, err := h.CreateRole(ctx, "cashier")
	require.NoError(t, err)
	require.NoError(t, h.GrantPermission(ctx, role.ID, models.PermissionC, nil))

	ok, err := h.HasPermission(ctx, e.ID, models.PermissionC)
	require.NoError(t, err)
	assert.False(t, ok, "no role assigned yet")

	require.NoError(t, h.AssignRole(ctx, e.ID, role.ID, nil))
	ok, err = h.HasPermission(ctx, e.ID, models.PermissionC)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.HasPermission(ctx, e.ID, models.PermissionA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.SetRoleActive(ctx, role.ID, false))
	ok, err = h.HasPermission(ctx, e.ID, models.PermissionC)
	require.NoError(t, err)
	assert.False(t, ok, "inactive role")

	require.NoError(t, h.SetRoleActive(ctx, role.ID, true))
	require.NoError(t, h.SetEmployeeActive(ctx, e.ID, false))
	ok, err = h.HasPermission(ctx, e.ID, models.PermissionC)
	require.NoError(t, err)
	assert.False(t, ok, "inactive employee")
}

func TestDeleteEmployeeAndRole_PurgesOrphanedAudit(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	admin := createEmployee(t, h, "admin")
	clerk := createEmployee(t, h, "clerk")
	role, err := h.CreateRole(ctx, "cashier")
	require.NoError(t, err)
	require.NoError(t, h.AssignRole(ctx, clerk.ID, role.ID, &admin.ID))
	require.NoError(t, h.GrantPermission(ctx, role.ID, models.PermissionC, &admin.ID))

	countAudit := func() (roleAudit, permAudit int64) {
		db := h.store.DB
		require.NoError(t, db.Model(&models.EmployeeRoleAudit{}).Count(&roleAudit).Error)
		require.NoError(t, db.Model(&models.RolePermissionAudit{}).Count(&permAudit).Error)
		return
	}

	require.NoError(t, h.DeleteEmployee(ctx, clerk.ID))
	r, p := countAudit()
	assert.Equal(t, int64(1), r, "role and actor still referenced")
	assert.Equal(t, int64(1), p)

	var links int64
	require.NoError(t, h.store.DB.Model(&models.EmployeeRole{}).Count(&links).Error)
	assert.Zero(t, links)

	require.NoError(t, h.DeleteRole(ctx, role.ID))
	r, p = countAudit()
	assert.Equal(t, int64(1), r, "actor still referenced")
	assert.Equal(t, int64(1), p)

	require.NoError(t, h.DeleteEmployee(ctx, admin.ID))
	r, p = countAudit()
	assert.Zero(t, r)
	assert.Zero(t, p)

	assert.ErrorIs(t, h.DeleteEmployee(ctx, admin.ID), errs.ErrNotFound)
}

func TestDeleteRole_KeepsAuditOfRemainingRoles(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	e := createEmployee(t, h, "clerk")
	kept, err := h.CreateRole(ctx, "kept")
	require.NoError(t, err)
	gone, err := h.CreateRole(ctx, "gone")
	require.NoError(t, err)
	require.NoError(t, h.AssignRole(ctx, e.ID, kept.ID, nil))
	require.NoError(t, h.AssignRole(ctx, e.ID, gone.ID, nil))

	require.NoError(t, h.DeleteRole(ctx, gone.ID))

	audit, err := h.ListRoleAudit(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, audit, 2, "target employee still referenced")
	assert.Nil(t, audit[1].RoleID)

	_, err = h.GetRole(ctx, gone.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAuditUsesClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h := NewIdentityHandler(dbtest.NewStore(t), WithHashCost(bcrypt.MinCost), WithClock(func() time.Time { return at }))
	ctx := context.Background()
	role, err := h.CreateRole(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, h.GrantPermission(ctx, role.ID, models.PermissionA, nil))

	audit, err := h.ListPermissionAudit(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, at.Equal(audit[0].ChangedOn))
}

func TestBootstrapAdmin(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	admin, err := h.BootstrapAdmin(ctx, CreateEmployeeInput{FirstName: "Root", Username: "root", Password: "pw"})
	require.NoError(t, err)

	for _, p := range models.AllPermissions() {
		ok, err := h.HasPermission(ctx, admin.ID, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	second, err := h.BootstrapAdmin(ctx, CreateEmployeeInput{FirstName: "Two", Username: "root2", Password: "pw"})
	require.NoError(t, err)

	roles, err := h.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	ok, err := h.HasPermission(ctx, second.ID, models.PermissionC)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.BootstrapAdmin(ctx, CreateEmployeeInput{FirstName: "Root", Username: "root", Password: "pw"})
	assert.ErrorIs(t, err, errs.ErrConstraintViolation)
}
