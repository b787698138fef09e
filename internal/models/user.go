package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPERADMIN"
	RoleTenantAdmin UserRole = "TENANT_ADMIN"
	RoleHRManager   UserRole = "HR_MANAGER"
	RoleManager     UserRole = "MANAGER"
	RoleEmployee    UserRole = "EMPLOYEE"

	// RoleSystem marks transitions triggered by the service itself, such as
	// an advance flipping to repaid when its balance reaches zero.
	RoleSystem UserRole = "SYSTEM"
)

// Employee is the payroll-relevant projection of an employee record. Master
// data lives in the HR core; this service reads what guard evaluation needs.
type Employee struct {
	ID               string     `db:"id" json:"id"`
	FullName         string     `db:"full_name" json:"fullName"`
	Email            string     `db:"email" json:"email"`
	Position         string     `db:"position" json:"position"`
	Department       string     `db:"department" json:"department"`
	ManagerID        *string    `db:"manager_id" json:"managerId,omitempty"`
	NetMonthlySalary int64      `db:"net_monthly_salary" json:"netMonthlySalary"`
	HiredAt          time.Time  `db:"hired_at" json:"hiredAt"`
	TerminatedAt     *time.Time `db:"terminated_at" json:"terminatedAt,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
