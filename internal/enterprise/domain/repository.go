package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	List(ctx context.Context, db *gorm.DB) ([]Enterprise, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Enterprise, error)
	// VersionsWithin returns attribute versions recorded inside [from, to),
	// ascending by RecordedAt. Versions outside the window are ignored.
	VersionsWithin(ctx context.Context, db *gorm.DB, enterpriseID snowflake.ID, from, to time.Time) ([]EnterpriseVersion, error)
}
