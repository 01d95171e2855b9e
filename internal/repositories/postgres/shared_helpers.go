package postgres

import (
	"gorm.io/gorm"
)

// baseRepo carries the connection shared by every table repository.
type baseRepo struct {
	db *gorm.DB
}

// getDB prefers the caller's transaction over the base connection.
func (b baseRepo) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.db
}

// cacheable reports whether a read may be served from redis. Reads inside a
// transaction must observe the transaction's own writes.
func cacheable(tx *gorm.DB) bool {
	return tx == nil
}
