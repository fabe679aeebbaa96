package invoice

import "time"

type Invoice struct {
	ID             string    `gorm:"column:id;primaryKey"`
	RequestID      string    `gorm:"column:request_id;not null;uniqueIndex"`
	OrganizationID *string   `gorm:"column:organization_id"`
	Number         string    `gorm:"column:number;not null"`
	Amount         int64     `gorm:"column:amount;not null"`
	Currency       string    `gorm:"column:currency;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}
