package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

// FolderStore handles folder persistence
type FolderStore struct {
	db     *core.Database
	logger *core.Logger
}

// NewFolderStore creates a new folder store
func NewFolderStore(db *core.Database, logger *core.Logger) *FolderStore {
	return &FolderStore{
		db:     db,
		logger: logger.ForComponent("folders"),
	}
}

// Create creates a folder with a generated id
func (s *FolderStore) Create(ctx context.Context, name string, position int) (*models.Folder, error) {
	return s.CreateWithID(ctx, uuid.NewString(), name, position)
}

// CreateWithID creates a folder under an externally assigned id
func (s *FolderStore) CreateWithID(ctx context.Context, id, name string, position int) (*models.Folder, error) {
	if name == "" {
		return nil, core.NewValidationError("folder name is required", nil)
	}

	query := `INSERT INTO folders (id, name, position, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecWithTimeout(ctx, query, id, name, position, time.Now()); err != nil {
		return nil, core.NewDatabaseError("failed to create folder", err)
	}

	s.logger.Info("Created folder", "id", id, "name", name)
	return s.GetByID(ctx, id)
}

// GetByID retrieves a folder by id
func (s *FolderStore) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	row := s.db.QueryRowWithTimeout(ctx,
		`SELECT id, name, position, created_at FROM folders WHERE id = ?`, id)

	var folder models.Folder
	if err := row.Scan(&folder.ID, &folder.Name, &folder.Position, &folder.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(fmt.Sprintf("folder not found: %s", id), err)
		}
		return nil, core.NewDatabaseError("failed to scan folder", err)
	}

	return &folder, nil
}

// GetByName retrieves a folder by exact name, or nil when none exists
func (s *FolderStore) GetByName(ctx context.Context, name string) (*models.Folder, error) {
	row := s.db.QueryRowWithTimeout(ctx,
		`SELECT id, name, position, created_at FROM folders WHERE name = ?`, name)

	var folder models.Folder
	if err := row.Scan(&folder.ID, &folder.Name, &folder.Position, &folder.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, core.NewDatabaseError("failed to scan folder", err)
	}

	return &folder, nil
}

// List retrieves all folders in position order
func (s *FolderStore) List(ctx context.Context) ([]models.Folder, error) {
	rows, err := s.db.QueryWithTimeout(ctx,
		`SELECT id, name, position, created_at FROM folders ORDER BY position, name`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query folders", err)
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.Position, &folder.CreatedAt); err != nil {
			return nil, core.NewDatabaseError("failed to scan folder", err)
		}
		folders = append(folders, folder)
	}

	return folders, rows.Err()
}

// Rename updates a folder's name and position
func (s *FolderStore) Rename(ctx context.Context, id, name string, position int) error {
	result, err := s.db.ExecWithTimeout(ctx,
		`UPDATE folders SET name = ?, position = ? WHERE id = ?`, name, position, id)
	if err != nil {
		return core.NewDatabaseError("failed to update folder", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("folder not found: %s", id), nil)
	}

	return nil
}

// Delete removes a folder; feeds referencing it are detached, not deleted
func (s *FolderStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecWithTimeout(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return core.NewDatabaseError("failed to delete folder", err)
	}

	s.logger.Info("Deleted folder", "id", id)
	return nil
}

// ReconcileRemote applies an incoming remote folder in one transaction.
// An existing folder under the remote id is updated in place. A local
// folder with the identical name but a different id (created independently
// on another device) has its feed associations re-pointed onto the remote
// id and is removed. Otherwise the folder is simply created.
func (s *FolderStore) ReconcileRemote(ctx context.Context, id, name string, position int) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM folders WHERE id = ?`, id).Scan(&existingID)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE folders SET name = ?, position = ? WHERE id = ?`, name, position, id)
			return err
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up folder %s: %w", id, err)
		}

		var duplicateID string
		err = tx.QueryRowContext(ctx, `SELECT id FROM folders WHERE name = ?`, name).Scan(&duplicateID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up folder by name %q: %w", name, err)
		}
		hasDuplicate := err == nil

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO folders (id, name, position, created_at) VALUES (?, ?, ?, ?)`,
			id, name, position, time.Now()); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", id, err)
		}

		if hasDuplicate {
			if _, err := tx.ExecContext(ctx,
				`UPDATE feeds SET folder_id = ? WHERE folder_id = ?`, id, duplicateID); err != nil {
				return fmt.Errorf("failed to re-point feeds from folder %s: %w", duplicateID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, duplicateID); err != nil {
				return fmt.Errorf("failed to delete duplicate folder %s: %w", duplicateID, err)
			}
			s.logger.Info("Absorbed duplicate folder", "duplicate_id", duplicateID, "kept_id", id, "name", name)
		}

		return nil
	})
}
