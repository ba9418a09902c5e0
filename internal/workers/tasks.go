// internal/workers/tasks.go
package workers

// Task type names registered on the asynq mux. Producers and the worker
// binary must agree on these strings.
const (
	TypeExportExcel      = "export:excel"
	TypeCheckReminders   = "checks:remind"
	TypeReconcileLedger  = "ledger:reconcile"
	TypeSendEmail        = "email:send"
	TypeCleanupTempFiles = "cleanup:temp_files"
	TypeCleanupExports   = "cleanup:exports"
)
