package specification

import "gorm.io/gorm"

// Specification encapsulates a reusable query predicate that can be
// stacked onto a gorm query before execution.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
