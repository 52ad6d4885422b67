package models

import (
	"fmt"
	"time"
)

// EditAction mirrors the edit_action enum.
type EditAction string

const (
	EditActionAdd    EditAction = "add"
	EditActionRemove EditAction = "remove"
)

func (a EditAction) Valid() bool {
	switch a {
	case EditActionAdd, EditActionRemove:
		return true
	}
	return false
}

// Permission mirrors the permission enum. The tags are part of the persisted
// schema and must not change.
type Permission string

const (
	// PermissionA grants access management: roles, permissions, employees.
	PermissionA Permission = "a"
	// PermissionB grants catalog, promotion and rewards management.
	PermissionB Permission = "b"
	// PermissionC grants recording purchases and refunds.
	PermissionC Permission = "c"
)

func AllPermissions() []Permission {
	return []Permission{PermissionA, PermissionB, PermissionC}
}

func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionA, PermissionB, PermissionC:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

type Employee struct {
	ID           int64     `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	FirstName    string    `gorm:"column:first_name;type:text;not null" json:"first_name"`
	LastName     *string   `gorm:"column:last_name;type:text" json:"last_name,omitempty"`
	Username     string    `gorm:"column:username;type:text;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;type:text;not null" json:"-"`
	Salt         string    `gorm:"column:salt;type:text;not null" json:"-"`
	Active       bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Employee) TableName() string { return "employees" }

type Role struct {
	ID        int64     `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;type:text;uniqueIndex;not null" json:"name"`
	Active    bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Permissions []RolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"permissions,omitempty"`
}

func (Role) TableName() string { return "roles" }

type EmployeeRole struct {
	EmployeeID int64 `gorm:"size:32;column:employee_id;primaryKey;autoIncrement:false" json:"employee_id"`
	RoleID     int64 `gorm:"size:32;column:role_id;primaryKey;autoIncrement:false" json:"role_id"`

	Employee *Employee `gorm:"foreignKey:EmployeeID;constraint:OnDelete:CASCADE" json:"-"`
	Role     *Role     `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
}

func (EmployeeRole) TableName() string { return "employee_roles" }

type EmployeeRoleAudit struct {
	ID             int64      `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	TargetEmployee *int64     `gorm:"size:32;column:target_employee;index" json:"target_employee"`
	Action         EditAction `gorm:"column:action;type:edit_action;not null" json:"action"`
	RoleID         *int64     `gorm:"size:32;column:role_id;index" json:"role_id"`
	ChangedOn      time.Time  `gorm:"column:changed_on;not null" json:"changed_on"`
	ChangedBy      *int64     `gorm:"size:32;column:changed_by;index" json:"changed_by"`
}

func (EmployeeRoleAudit) TableName() string { return "employee_roles_audit" }

// Orphaned reports whether every reference of the row is gone.
func (a EmployeeRoleAudit) Orphaned() bool {
	return a.TargetEmployee == nil && a.RoleID == nil && a.ChangedBy == nil
}

type RolePermission struct {
	RoleID     int64      `gorm:"size:32;column:role_id;primaryKey;autoIncrement:false" json:"role_id"`
	Permission Permission `gorm:"column:permission;type:permission;primaryKey" json:"permission"`
}

func (RolePermission) TableName() string { return "role_permissions" }

type RolePermissionAudit struct {
	ID         int64      `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	TargetRole *int64     `gorm:"size:32;column:target_role;index" json:"target_role"`
	Action     EditAction `gorm:"column:action;type:edit_action;not null" json:"action"`
	Permission Permission `gorm:"column:permission;type:permission;not null" json:"permission"`
	ChangedOn  time.Time  `gorm:"column:changed_on;not null" json:"changed_on"`
	ChangedBy  *int64     `gorm:"size:32;column:changed_by;index" json:"changed_by"`
}

func (RolePermissionAudit) TableName() string { return "role_permissions_audit" }

func (a RolePermissionAudit) Orphaned() bool {
	return a.TargetRole == nil && a.ChangedBy == nil
}
