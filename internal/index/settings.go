package index

import (
	"database/sql"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// TenantSettings holds per-tenant Oracle defaults (spec §4.10: "model
// derived from per-tenant settings ... never hard-coded").
type TenantSettings struct {
	Tenant       string
	DefaultModel string
	ThinkingMode string
}

// GetTenantSettings returns the row for tenant, and false if none has
// been set — callers fall back to a package default only in that case.
func (db *DB) GetTenantSettings(tenant string) (TenantSettings, bool, error) {
	var s TenantSettings
	var model, thinking sql.NullString
	row := db.QueryRow(`SELECT default_model, thinking_mode FROM tenant_settings WHERE tenant = ?`, tenant)
	if err := row.Scan(&model, &thinking); err != nil {
		if err == sql.ErrNoRows {
			return TenantSettings{}, false, nil
		}
		return TenantSettings{}, false, apperr.Internal("failed to read tenant settings", err)
	}
	s.Tenant = tenant
	s.DefaultModel = model.String
	s.ThinkingMode = thinking.String
	return s, true, nil
}

// SetTenantSettings upserts tenant's defaults.
func (db *DB) SetTenantSettings(tenant, defaultModel, thinkingMode string) error {
	return db.Tx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO tenant_settings (tenant, default_model, thinking_mode)
			VALUES (?, ?, ?)
			ON CONFLICT(tenant) DO UPDATE SET default_model = excluded.default_model,
				thinking_mode = excluded.thinking_mode`,
			tenant, defaultModel, thinkingMode)
		if err != nil {
			return apperr.Internal("failed to write tenant settings", err)
		}
		return nil
	})
}
