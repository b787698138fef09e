package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/samudra-hr/hris-api/internal/models"
)

// EmployeeRepository reads the payroll projection of employee master data.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs the repository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// GetByID fetches one employee.
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	var employee models.Employee
	const query = `SELECT id, full_name, email, position, department, manager_id, net_monthly_salary, hired_at, terminated_at
	FROM employees WHERE id = $1`
	if err := r.db.GetContext(ctx, &employee, query, id); err != nil {
		return nil, err
	}
	return &employee, nil
}

// IsManagerOf reports whether managerID manages employeeID directly.
func (r *EmployeeRepository) IsManagerOf(ctx context.Context, managerID, employeeID string) (bool, error) {
	var count int
	const query = `SELECT COUNT(*) FROM employees WHERE id = $1 AND manager_id = $2`
	if err := r.db.GetContext(ctx, &count, query, employeeID, managerID); err != nil {
		return false, err
	}
	return count > 0, nil
}
