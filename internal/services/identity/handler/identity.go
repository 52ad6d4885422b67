package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"pos-system/internal/database"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

// bcrypt only reads the first 72 bytes of its input.
const maxSecretLen = 72

// --- Helpers ---

// SaltSource yields a fresh per-employee salt.
type SaltSource func() (string, error)

// RandomSalt returns 16 hex characters of a random UUID.
func RandomSalt() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:16], nil
}

func hashSecret(salt, password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(salt+password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// --- Handler ---

type IdentityHandler struct {
	store *database.Store
	log   *logrus.Entry
	salt  SaltSource
	cost  int
	now   func() time.Time

	// dummyHash keeps Authenticate's cost the same for unknown usernames.
	dummyHash []byte
}

type Option func(*IdentityHandler)

func WithSaltSource(s SaltSource) Option {
	return func(h *IdentityHandler) { h.salt = s }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(h *IdentityHandler) { h.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(h *IdentityHandler) { h.now = now }
}

func NewIdentityHandler(store *database.Store, opts ...Option) *IdentityHandler {
	h := &IdentityHandler{
		store: store,
		log:   logrus.WithField("service", "identity"),
		salt:  RandomSalt,
		cost:  bcrypt.DefaultCost,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), h.cost)
	return h
}

// -- Employees --

type CreateEmployeeInput struct {
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
}

func (h *IdentityHandler) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (*models.Employee, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Username = strings.TrimSpace(in.Username)
	if in.FirstName == "" || in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: first name, username and password are required", errs.ErrValidation)
	}

	salt, err := h.salt()
	if err != nil {
		return nil, err
	}
	if len(salt)+len(in.Password) > maxSecretLen {
		return nil, fmt.Errorf("%w: password is too long", errs.ErrValidation)
	}
	hash, err := hashSecret(salt, in.Password, h.cost)
	if err != nil {
		return nil, err
	}

	employee := models.Employee{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		PasswordHash: hash,
		Salt:         salt,
		Active:       true,
		CreatedAt:    h.now(),
	}

	err = h.store.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Employee{}).Where("username = ?", in.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: username %q already exists", errs.ErrConstraintViolation, in.Username)
		}
		return tx.Create(&employee).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithField("employee_id", employee.ID).Info("Employee created")
	return &employee, nil
}

// Authenticate fails with ErrInvalidCredentials for an unknown username, a
// wrong password and an inactive account alike.
func (h *IdentityHandler) Authenticate(ctx context.Context, username, password string) (*models.Employee, error) {
	var employee models.Employee
	err := h.store.Read(ctx).Where("username = ?", strings.TrimSpace(username)).First(&employee).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.Classify(err)
		}
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
		return nil, errs.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(employee.Salt+password)); err != nil {
		return nil, errs.ErrInvalidCredentials
	}
	if !employee.Active {
		return nil, errs.ErrInvalidCredentials
	}

	return &employee, nil
}

func (h *IdentityHandler) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	var employee models.Employee
	if err := h.store.Read(ctx).First(&employee, id).Error; err != nil {
		return nil, notFound(err, "employee", id)
	}
	return &employee, nil
}

func (h *IdentityHandler) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	if err := h.store.Read(ctx).Order("id").Find(&employees).Error; err != nil {
		return nil, database.Classify(err)
	}
	return employees, nil
}

func (h *IdentityHandler) SetEmployeeActive(ctx context.Context, id int64, active bool) error {
	return h.store.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Employee{}).Where("id = ?", id).Update("active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: employee %d", errs.ErrNotFound, id)
		}
		return nil
	})
}

// DeleteEmployee removes the employee with its role links. Audit rows keep
// their history with the employee reference cleared; rows left without any
// reference are purged.
func (h *IdentityHandler) DeleteEmployee(ctx context.Context, id int64) error {
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findEmployee(tx, id); err != nil {
			return err
		}

		if err := tx.Where("employee_id = ?", id).Delete(&models.EmployeeRole{}).Error; err != nil {
			return err
		}

		clears := []struct {
			model  interface{}
			column string
		}{
			{&models.EmployeeRoleAudit{}, "target_employee"},
			{&models.EmployeeRoleAudit{}, "changed_by"},
			{&models.RolePermissionAudit{}, "changed_by"},
			{&models.PromotionAudit{}, "changed_by"},
			{&models.ProductPrice{}, "changed_by"},
		}
		for _, c := range clears {
			if err := clearReference(tx, c.model, c.column, id); err != nil {
				return err
			}
		}

		if err := tx.Delete(&models.Employee{}, id).Error; err != nil {
			return err
		}
		return purgeOrphanedAudit(tx)
	})
	if err != nil {
		return err
	}

	h.log.WithField("employee_id", id).Info("Employee deleted")
	return nil
}

// -- Roles --

func (h *IdentityHandler) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", errs.ErrValidation)
	}

	role := models.Role{Name: name, Active: true, CreatedAt: h.now()}
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Role{}).Where("name = ?", name).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: role %q already exists", errs.ErrConstraintViolation, name)
		}
		return tx.Create(&role).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithField("role_id", role.ID).Info("Role created")
	return &role, nil
}

func (h *IdentityHandler) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	if err := h.store.Read(ctx).Preload("Permissions").First(&role, id).Error; err != nil {
		return nil, notFound(err, "role", id)
	}
	return &role, nil
}

func (h *IdentityHandler) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := h.store.Read(ctx).Preload("Permissions").Order("id").Find(&roles).Error; err != nil {
		return nil, database.Classify(err)
	}
	return roles, nil
}

func (h *IdentityHandler) SetRoleActive(ctx context.Context, id int64, active bool) error {
	return h.store.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Role{}).Where("id = ?", id).Update("active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: role %d", errs.ErrNotFound, id)
		}
		return nil
	})
}

// DeleteRole removes the role with its assignments and grants. Audit rows
// referring to it are kept with the reference cleared, then orphans are
// purged.
func (h *IdentityHandler) DeleteRole(ctx context.Context, id int64) error {
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findRole(tx, id); err != nil {
			return err
		}

		if err := tx.Where("role_id = ?", id).Delete(&models.EmployeeRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		if err := clearReference(tx, &models.EmployeeRoleAudit{}, "role_id", id); err != nil {
			return err
		}
		if err := clearReference(tx, &models.RolePermissionAudit{}, "target_role", id); err != nil {
			return err
		}

		if err := tx.Delete(&models.Role{}, id).Error; err != nil {
			return err
		}
		return purgeOrphanedAudit(tx)
	})
	if err != nil {
		return err
	}

	h.log.WithField("role_id", id).Info("Role deleted")
	return nil
}

// -- Role assignment --

func (h *IdentityHandler) AssignRole(ctx context.Context, employeeID, roleID int64, actor *int64) error {
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findEmployee(tx, employeeID); err != nil {
			return err
		}
		if _, err := findRole(tx, roleID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.EmployeeRole{}).
			Where("employee_id = ? AND role_id = ?", employeeID, roleID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: employee %d already holds role %d", errs.ErrConstraintViolation, employeeID, roleID)
		}

		if err := tx.Create(&models.EmployeeRole{EmployeeID: employeeID, RoleID: roleID}).Error; err != nil {
			return err
		}
		return tx.Create(&models.EmployeeRoleAudit{
			TargetEmployee: &employeeID,
			Action:         models.EditActionAdd,
			RoleID:         &roleID,
			ChangedOn:      h.now(),
			ChangedBy:      actor,
		}).Error
	})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"employee_id": employeeID, "role_id": roleID}).Info("Role assigned")
	return nil
}

func (h *IdentityHandler) RevokeRole(ctx context.Context, employeeID, roleID int64, actor *int64) error {
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("employee_id = ? AND role_id = ?", employeeID, roleID).Delete(&models.EmployeeRole{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: employee %d does not hold role %d", errs.ErrNotFound, employeeID, roleID)
		}
		return tx.Create(&models.EmployeeRoleAudit{
			TargetEmployee: &employeeID,
			Action:         models.EditActionRemove,
			RoleID:         &roleID,
			ChangedOn:      h.now(),
			ChangedBy:      actor,
		}).Error
	})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"employee_id": employeeID, "role_id": roleID}).Info("Role revoked")
	return nil
}

// -- Permissions --

func (h *IdentityHandler) GrantPermission(ctx context.Context, roleID int64, permission models.Permission, actor *int64) error {
	if _, err := models.ParsePermission(string(permission)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findRole(tx, roleID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.RolePermission{}).
			Where("role_id = ? AND permission = ?", roleID, permission).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: role %d already has permission %s", errs.ErrConstraintViolation, roleID, permission)
		}

		if err := tx.Create(&models.RolePermission{RoleID: roleID, Permission: permission}).Error; err != nil {
			return err
		}
		return tx.Create(&models.RolePermissionAudit{
			TargetRole: &roleID,
			Action:     models.EditActionAdd,
			Permission: permission,
			ChangedOn:  h.now(),
			ChangedBy:  actor,
		}).Error
	})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"role_id": roleID, "permission": permission}).Info("Permission granted")
	return nil
}

func (h *IdentityHandler) RevokePermission(ctx context.Context, roleID int64, permission models.Permission, actor *int64) error {
	if _, err := models.ParsePermission(string(permission)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("role_id = ? AND permission = ?", roleID, permission).Delete(&models.RolePermission{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: role %d does not have permission %s", errs.ErrNotFound, roleID, permission)
		}
		return tx.Create(&models.RolePermissionAudit{
			TargetRole: &roleID,
			Action:     models.EditActionRemove,
			Permission: permission,
			ChangedOn:  h.now(),
			ChangedBy:  actor,
		}).Error
	})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"role_id": roleID, "permission": permission}).Info("Permission revoked")
	return nil
}

// HasPermission reports whether an active employee holds an active role
// granting permission.
func (h *IdentityHandler) HasPermission(ctx context.Context, employeeID int64, permission models.Permission) (bool, error) {
	var count int64
	err := h.store.Read(ctx).
		Table("employees").
		Joins("JOIN employee_roles ON employee_roles.employee_id = employees.id").
		Joins("JOIN roles ON roles.id = employee_roles.role_id").
		Joins("JOIN role_permissions ON role_permissions.role_id = roles.id").
		Where("employees.id = ? AND employees.active = ? AND roles.active = ? AND role_permissions.permission = ?",
			employeeID, true, true, permission).
		Count(&count).Error
	if err != nil {
		return false, database.Classify(err)
	}
	return count > 0, nil
}

// -- Audit --

func (h *IdentityHandler) ListRoleAudit(ctx context.Context, employeeID int64) ([]models.EmployeeRoleAudit, error) {
	var rows []models.EmployeeRoleAudit
	if err := h.store.Read(ctx).Where("target_employee = ?", employeeID).Order("id").Find(&rows).Error; err != nil {
		return nil, database.Classify(err)
	}
	return rows, nil
}

func (h *IdentityHandler) ListPermissionAudit(ctx context.Context, roleID int64) ([]models.RolePermissionAudit, error) {
	var rows []models.RolePermissionAudit
	if err := h.store.Read(ctx).Where("target_role = ?", roleID).Order("id").Find(&rows).Error; err != nil {
		return nil, database.Classify(err)
	}
	return rows, nil
}

// --- Store helpers ---

func findEmployee(tx *gorm.DB, id int64) (*models.Employee, error) {
	var employee models.Employee
	if err := tx.First(&employee, id).Error; err != nil {
		return nil, notFound(err, "employee", id)
	}
	return &employee, nil
}

func findRole(tx *gorm.DB, id int64) (*models.Role, error) {
	var role models.Role
	if err := tx.First(&role, id).Error; err != nil {
		return nil, notFound(err, "role", id)
	}
	return &role, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", errs.ErrNotFound, what, id)
	}
	return database.Classify(err)
}

func clearReference(tx *gorm.DB, model interface{}, column string, id int64) error {
	return tx.Model(model).Where(column+" = ?", id).Update(column, nil).Error
}

// purgeOrphanedAudit deletes audit rows whose references are all cleared.
func purgeOrphanedAudit(tx *gorm.DB) error {
	if err := tx.Where("target_employee IS NULL AND role_id IS NULL AND changed_by IS NULL").
		Delete(&models.EmployeeRoleAudit{}).Error; err != nil {
		return err
	}
	if err := tx.Where("target_role IS NULL AND changed_by IS NULL").
		Delete(&models.RolePermissionAudit{}).Error; err != nil {
		return err
	}
	return tx.Where("target_promotion IS NULL AND changed_by IS NULL").
		Delete(&models.PromotionAudit{}).Error
}
