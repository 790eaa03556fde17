// Package models defines the GORM models for Courier's durable state.
package models

import "time"

// Admin is a durable elevated-privilege identity, granted and revoked at
// runtime by root admins. Root admins themselves live only in
// configuration and are never stored here.
type Admin struct {
	ChatID    int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

// DownloadCount tracks successful downloads per user per UTC calendar
// date. Absence of a row means zero. The count only ever increases
// within a day; increments go through a single-statement atomic upsert.
type DownloadCount struct {
	UserID int64  `gorm:"primaryKey;autoIncrement:false"`
	Date   string `gorm:"primaryKey;size:10"` // "2006-01-02", UTC
	Count  int    `gorm:"not null;default:0"`
}
