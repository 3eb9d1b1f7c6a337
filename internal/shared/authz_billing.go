package shared

// Billing permissions declared for RBAC.
const (
	PermBillingView          = "billing.view"
	PermBillingInvoiceEdit   = "billing.invoice.edit"
	PermBillingPaymentSubmit = "billing.payment.submit"
	PermBillingPaymentReview = "billing.payment.review"
	PermBillingConfigView    = "billing.config.view"
	PermBillingConfigEdit    = "billing.config.edit"
	PermPortalView           = "portal.view"
	PermAuditView            = "audit.view"
)

// BillingScopes lists all permissions related to the billing back-office.
func BillingScopes() []string {
	return []string{
		PermBillingView,
		PermBillingInvoiceEdit,
		PermBillingPaymentSubmit,
		PermBillingPaymentReview,
		PermBillingConfigView,
		PermBillingConfigEdit,
		PermAuditView,
	}
}

// PortalScopes lists the permissions granted to customers.
func PortalScopes() []string {
	return []string{PermPortalView, PermBillingPaymentSubmit}
}
