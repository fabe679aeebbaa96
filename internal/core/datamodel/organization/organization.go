package organization

import "time"

type Organization struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Slug      string    `gorm:"column:slug;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}
