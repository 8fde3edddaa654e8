package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yieldvault/internal/delivery/http/dto"
	"yieldvault/internal/domain"
	"yieldvault/internal/middleware"
	"yieldvault/internal/service"
)

// BackupHandler exposes backup targets, export and import to admins
type BackupHandler struct {
	replication *service.ReplicationService
}

// NewBackupHandler creates a new BackupHandler
func NewBackupHandler(replication *service.ReplicationService) *BackupHandler {
	return &BackupHandler{replication: replication}
}

// GetBackups lists registered targets with status and last error
// GET /api/admin/backups
func (h *BackupHandler) GetBackups(c echo.Context) error {
	backups, err := h.replication.List(c.Request().Context())
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, backups)
}

// CreateBackup registers a target and runs its first sync
// POST /api/admin/backups
func (h *BackupHandler) CreateBackup(c echo.Context) error {
	var req dto.BackupRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	b, err := h.replication.Create(c.Request().Context(), req.Name, req.Kind, req.Target)
	if err != nil {
		return HandleError(c, err)
	}
	return CreatedResponse(c, b)
}

// SyncBackup copies the current ledger onto a target
// POST /api/admin/backups/:id/sync
func (h *BackupHandler) SyncBackup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid backup ID")
	}

	b, err := h.replication.Sync(c.Request().Context(), id)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Backup synced", b)
}

// TestBackup pings a target
// POST /api/admin/backups/:id/test
func (h *BackupHandler) TestBackup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid backup ID")
	}

	if err := h.replication.TestConnection(c.Request().Context(), id); err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Connection OK", nil)
}

// PromoteBackup makes a synced target the primary ledger database.
// force=true fails over to the target's last sync when the current primary is down.
// POST /api/admin/backups/:id/promote?force=true
func (h *BackupHandler) PromoteBackup(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid backup ID")
	}

	force, _ := strconv.ParseBool(c.QueryParam("force"))

	b, err := h.replication.Promote(c.Request().Context(), actorID, id, force)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Backup promoted to primary", b)
}

// Export downloads a consistent snapshot of the ledger
// GET /api/admin/export
func (h *BackupHandler) Export(c echo.Context) error {
	snap, err := h.replication.Export(c.Request().Context())
	if err != nil {
		return HandleError(c, err)
	}

	filename := fmt.Sprintf("yieldvault-%s.json", snap.ExportedAt.UTC().Format("20060102T150405Z"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.JSON(http.StatusOK, snap)
}

// Import replaces the ledger with an uploaded snapshot
// POST /api/admin/import?confirm=true
func (h *BackupHandler) Import(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	confirm, _ := strconv.ParseBool(c.QueryParam("confirm"))

	var snap domain.Snapshot
	if err := c.Bind(&snap); err != nil {
		return BadRequestResponse(c, "Invalid snapshot payload")
	}

	if err := h.replication.Import(c.Request().Context(), actorID, &snap, confirm); err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Ledger imported", map[string]int{
		"users":        len(snap.Users),
		"investments":  len(snap.Investments),
		"transactions": len(snap.Transactions),
	})
}
