package authz

import (
	"fmt"
	"strings"
)

// Role es el rol de un actor dentro de un tenant.
// Los roles NO forman una jerarquía: cada uno tiene su propia fila en la matriz.
type Role string

const (
	RoleViewer          Role = "viewer"
	RoleContributor     Role = "contributor"
	RoleCustomerManager Role = "customer_manager"
	RoleSupplierManager Role = "supplier_manager"
	RoleFinanceCustomer Role = "finance_customer"
	RoleFinanceSupplier Role = "finance_supplier"
	RoleAdmin           Role = "admin"
)

var allRoles = []Role{
	RoleViewer,
	RoleContributor,
	RoleCustomerManager,
	RoleSupplierManager,
	RoleFinanceCustomer,
	RoleFinanceSupplier,
	RoleAdmin,
}

// Roles devuelve el conjunto cerrado de roles en orden estable.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) Valid() bool {
	switch r {
	case RoleViewer,
		RoleContributor,
		RoleCustomerManager,
		RoleSupplierManager,
		RoleFinanceCustomer,
		RoleFinanceSupplier,
		RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
