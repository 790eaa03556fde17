// Package registry manages the set of elevated-privilege identities: the
// fixed root-admin allowlist from configuration plus durable admins
// stored in the database.
package registry

import (
	"fmt"

	"github.com/vgrishin/courier/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry answers admin-membership questions and mutates the durable
// admin set. All mutations are single atomic statements; the registry
// holds no in-process lock, so callers may use it from concurrent
// handlers freely.
type Registry struct {
	db    *gorm.DB
	roots map[int64]struct{}
}

// New creates a Registry over db with the given fixed root-admin set.
func New(db *gorm.DB, roots []int64) *Registry {
	rootSet := make(map[int64]struct{}, len(roots))
	for _, id := range roots {
		rootSet[id] = struct{}{}
	}
	return &Registry{db: db, roots: rootSet}
}

// IsRoot reports whether id is in the fixed root-admin allowlist.
// Root admins are never stored and never removable.
func (r *Registry) IsRoot(id int64) bool {
	_, ok := r.roots[id]
	return ok
}

// IsAdmin reports whether id is a root admin or a durable admin.
func (r *Registry) IsAdmin(id int64) (bool, error) {
	if r.IsRoot(id) {
		return true, nil
	}
	var count int64
	if err := r.db.Model(&models.Admin{}).Where("chat_id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("registry: is admin %d: %w", id, err)
	}
	return count > 0, nil
}

// Add grants durable admin status to id. It is an insert-or-ignore:
// added is false when id was already an admin (root or durable).
func (r *Registry) Add(id int64) (added bool, err error) {
	if r.IsRoot(id) {
		return false, nil
	}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Admin{ChatID: id})
	if result.Error != nil {
		return false, fmt.Errorf("registry: add %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Remove revokes durable admin status from id. Root admins are not
// demotable: removing a root-set id touches nothing and reports
// removed=false, as does removing an id that was never an admin.
func (r *Registry) Remove(id int64) (removed bool, err error) {
	if r.IsRoot(id) {
		return false, nil
	}
	result := r.db.Where("chat_id = ?", id).Delete(&models.Admin{})
	if result.Error != nil {
		return false, fmt.Errorf("registry: remove %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List returns the durable admins only, in insertion order. The order
// is for display; nothing else depends on it.
func (r *Registry) List() ([]int64, error) {
	var admins []models.Admin
	if err := r.db.Order("created_at ASC, chat_id ASC").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ChatID)
	}
	return ids, nil
}

// Count returns the number of durable admins.
func (r *Registry) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.Admin{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("registry: count: %w", err)
	}
	return count, nil
}
