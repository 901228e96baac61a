package pg

import "fmt"

// NewAuditStore opens a managed-mode AuditStore bound to dsn. It is a
// thin wrapper over Open kept alongside the teacher's own NewPGStores
// factory style — a single named entry point per storage backend.
func NewAuditStore(dsn string) (*AuditStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	return Open(dsn)
}
