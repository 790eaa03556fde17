// Package quota tracks per-user daily download counters and resolves the
// applicable daily limit.
package quota

import (
	"fmt"
	"time"

	"github.com/vgrishin/courier/internal/models"
	"github.com/vgrishin/courier/internal/registry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dateLayout is the UTC calendar-date key for quota rows.
const dateLayout = "2006-01-02"

// Tracker reads and increments daily download counters. Counters key on
// (user id, UTC date); an absent row counts as zero. Increment is a
// single atomic upsert so concurrent downloads by the same user cannot
// lose an update.
type Tracker struct {
	db           *gorm.DB
	reg          *registry.Registry
	regularLimit int
	adminLimit   int
	now          func() time.Time
}

// TrackerOpts holds parameters for creating a Tracker.
type TrackerOpts struct {
	DB           *gorm.DB
	Registry     *registry.Registry
	RegularLimit int
	AdminLimit   int
	Now          func() time.Time // defaults to time.Now; injectable for tests
}

// NewTracker creates a Tracker. Both limits are mandatory configuration.
func NewTracker(opts TrackerOpts) (*Tracker, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("quota: db is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("quota: registry is required")
	}
	if opts.RegularLimit <= 0 || opts.AdminLimit <= 0 {
		return nil, fmt.Errorf("quota: regular and admin limits are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		db:           opts.DB,
		reg:          opts.Registry,
		regularLimit: opts.RegularLimit,
		adminLimit:   opts.AdminLimit,
		now:          now,
	}, nil
}

// Today returns the current UTC calendar date key.
func (t *Tracker) Today() string {
	return t.now().UTC().Format(dateLayout)
}

// DailyCount returns the number of delivered downloads for userID on the
// current UTC date. Zero when no row exists.
func (t *Tracker) DailyCount(userID int64) (int, error) {
	var row models.DownloadCount
	err := t.db.Where("user_id = ? AND date = ?", userID, t.Today()).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: daily count %d: %w", userID, err)
	}
	return row.Count, nil
}

// Increment records one delivered download for userID on the current UTC
// date. INSERT .. ON CONFLICT .. count = count + 1, so two concurrent
// increments for the same (user, date) both land.
func (t *Tracker) Increment(userID int64) error {
	row := models.DownloadCount{UserID: userID, Date: t.Today(), Count: 1}
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("download_counts.count + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("quota: increment %d: %w", userID, err)
	}
	return nil
}

// LimitFor returns the daily limit applicable to chatID: the elevated
// limit for root or durable admins, the regular limit otherwise.
//
// Counts are tracked per user id while the limit is looked up per chat
// id. For direct messages the two coincide; in a group-chat deployment
// they would diverge and this lookup should be revisited.
func (t *Tracker) LimitFor(chatID int64) (int, error) {
	isAdmin, err := t.reg.IsAdmin(chatID)
	if err != nil {
		return 0, fmt.Errorf("quota: limit for %d: %w", chatID, err)
	}
	if isAdmin {
		return t.adminLimit, nil
	}
	return t.regularLimit, nil
}

// PurgeBefore deletes counter rows older than the given UTC date key and
// returns the number of rows removed. Used by the maintenance sweep;
// per-day counters have no value once the day is over.
func (t *Tracker) PurgeBefore(date string) (int64, error) {
	result := t.db.Where("date < ?", date).Delete(&models.DownloadCount{})
	if result.Error != nil {
		return 0, fmt.Errorf("quota: purge before %s: %w", date, result.Error)
	}
	return result.RowsAffected, nil
}
