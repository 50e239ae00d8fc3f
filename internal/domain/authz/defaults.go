package authz

import "sync"

// Atajos para la tabla.
const (
	viewer          = RoleViewer
	contributor     = RoleContributor
	customerManager = RoleCustomerManager
	supplierManager = RoleSupplierManager
	financeCustomer = RoleFinanceCustomer
	financeSupplier = RoleFinanceSupplier
	admin           = RoleAdmin
)

// Reglas con nombre, reutilizadas entre celdas. Cada sub-regla se testea sola.
var (
	// dueño, o un manager actuando en su nombre
	ownerOrSupplierSide = Any("owner_or_supplier_manager", Owner(), AnyRole(supplierManager, admin))
	ownerOrManager      = Any("owner_or_manager", Owner(), AnyRole(customerManager, supplierManager, admin))

	// expensas: la autoridad de aprobación se rutea por is_chargeable; admin siempre puede.
	expenseRouting = Any("expense_routing_or_admin",
		RouteByFlag(FlagChargeable, financeCustomer, financeSupplier),
		AnyRole(admin),
	)

	// un admin no edita ni revoca su propia membresía
	notSelf = Negate(Owner())
)

// finance_customer y finance_supplier nunca comparten una línea de la tabla.
func defaultTable() Table {
	return Table{
		ResourceTimesheet: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(All("timesheet_edit", Statuses(StatusDraft, StatusRejected), ownerOrSupplierSide), contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(All("timesheet_delete", Statuses(StatusDraft), ownerOrSupplierSide), contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionSubmit: {
				allow(All("timesheet_submit", StatusGate(ResourceTimesheet, ActionSubmit), ownerOrSupplierSide), contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionValidate: {
				allow(StatusGate(ResourceTimesheet, ActionValidate), customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionReject: {
				allow(StatusGate(ResourceTimesheet, ActionReject), customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		ResourceExpense: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(All("expense_edit", Statuses(StatusDraft, StatusRejected), ownerOrManager), contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(All("expense_delete", Statuses(StatusDraft), ownerOrManager), contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionSubmit: {
				allow(All("expense_submit", StatusGate(ResourceExpense, ActionSubmit), ownerOrManager), contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionValidate: {
				allow(All("expense_validate", StatusGate(ResourceExpense, ActionValidate), expenseRouting), financeCustomer),
				allow(All("expense_validate", StatusGate(ResourceExpense, ActionValidate), expenseRouting), financeSupplier),
				allow(All("expense_validate", StatusGate(ResourceExpense, ActionValidate), expenseRouting), admin),
				deny(viewer, contributor, customerManager, supplierManager),
			},
			ActionReject: {
				allow(All("expense_reject", StatusGate(ResourceExpense, ActionReject), expenseRouting), financeCustomer),
				allow(All("expense_reject", StatusGate(ResourceExpense, ActionReject), expenseRouting), financeSupplier),
				allow(All("expense_reject", StatusGate(ResourceExpense, ActionReject), expenseRouting), admin),
				deny(viewer, contributor, customerManager, supplierManager),
			},
		},

		ResourceMilestone: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, customerManager, supplierManager, admin),
				deny(viewer, contributor),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(nil, customerManager, supplierManager, admin),
				deny(viewer, contributor),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, customerManager, supplierManager, admin),
				deny(viewer, contributor),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		ResourceDeliverable: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(All("deliverable_edit", Statuses(StatusDraft), ownerOrSupplierSide), contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(Statuses(StatusDraft), supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionSubmit: {
				allow(All("deliverable_submit", StatusGate(ResourceDeliverable, ActionSubmit), ownerOrSupplierSide), contributor, supplierManager, admin),
				deny(viewer, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionSignOff: {
				allow(StatusGate(ResourceDeliverable, ActionSignOff), customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		// KPIs los reporta el proveedor; los estándares de calidad los define el cliente.
		ResourceKPI: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		ResourceQualityStandard: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(nil, customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, customerManager, admin),
				deny(viewer, contributor, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		ResourceRAIDItem: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(All("raid_edit", Statuses(StatusOpen), ownerOrManager), contributor, customerManager, supplierManager, admin),
				deny(viewer),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, customerManager, supplierManager, admin),
				deny(viewer, contributor),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionClose: {
				allow(StatusGate(ResourceRAIDItem, ActionClose), customerManager, supplierManager, admin),
				deny(viewer, contributor),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		// Partners (subcontratistas) son del lado proveedor.
		ResourcePartner: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeSupplier),
				deny(financeCustomer),
			},
			ActionCreate: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		// Fichas de equipo: incluyen tarifas, el viewer no las ve.
		ResourceTeamMember: {
			ActionView: {
				allow(nil, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
				deny(viewer),
			},
			ActionCreate: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(nil, supplierManager, admin),
				deny(viewer, contributor, customerManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},

		ResourceTenantMembership: {
			ActionView: {
				allow(nil, viewer, contributor, customerManager, supplierManager, admin),
				allow(nil, financeCustomer),
				allow(nil, financeSupplier),
			},
			ActionCreate: {
				allow(nil, admin),
				deny(viewer, contributor, customerManager, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionEdit: {
				allow(notSelf, admin),
				deny(viewer, contributor, customerManager, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
			ActionDelete: {
				allow(notSelf, admin),
				deny(viewer, contributor, customerManager, supplierManager),
				deny(financeCustomer),
				deny(financeSupplier),
			},
		},
	}
}

var (
	defaultOnce   sync.Once
	defaultPolicy *Policy
)

// Default es la política del producto, construida una vez al arrancar.
func Default() *Policy {
	defaultOnce.Do(func() {
		defaultPolicy = MustPolicy(defaultTable())
	})
	return defaultPolicy
}
