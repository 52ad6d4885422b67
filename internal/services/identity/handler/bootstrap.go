package handler

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

const AdminRoleName = "admin"

// BootstrapAdmin makes sure an admin role holding every permission exists and
// creates an employee assigned to it. Running it again with a taken username
// fails with ErrConstraintViolation and leaves the role untouched.
func (h *IdentityHandler) BootstrapAdmin(ctx context.Context, in CreateEmployeeInput) (*models.Employee, error) {
	var role models.Role
	err := h.store.Read(ctx).Where("name = ?", AdminRoleName).First(&role).Error
	if err != nil {
		created, err := h.CreateRole(ctx, AdminRoleName)
		if err != nil {
			return nil, err
		}
		role = *created
	}

	for _, p := range models.AllPermissions() {
		if err := h.GrantPermission(ctx, role.ID, p, nil); err != nil && !errors.Is(err, errs.ErrConstraintViolation) {
			return nil, err
		}
	}

	employee, err := h.CreateEmployee(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := h.AssignRole(ctx, employee.ID, role.ID, nil); err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{"employee_id": employee.ID, "role_id": role.ID}).Info("Admin bootstrapped")
	return employee, nil
}
