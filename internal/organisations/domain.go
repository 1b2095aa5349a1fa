package organisations

import "time"

// Organisation is a tenant. Soft-deleted organisations deny all permission
// resolution and are skipped by catalog push operations.
type Organisation struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
