package models

import (
	"time"

	"gorm.io/gorm"
)

type BaseModel struct {
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;type:timestamp;index"`
}

// InstrumentTierModel assigns one exchange ticker to a dip tier.
// Position orders tickers within a tier; lower goes first.
type InstrumentTierModel struct {
	Ticker    string `gorm:"primaryKey;column:ticker;type:varchar(50);not null"`
	Tier      int    `gorm:"column:tier;type:smallint;not null;index"`
	Position  int    `gorm:"column:position;type:integer;not null;default:0"`
	ClassCode string `gorm:"column:class_code;type:varchar(50)"`
	BaseModel
}

func (InstrumentTierModel) TableName() string {
	return "instrument_tiers"
}
