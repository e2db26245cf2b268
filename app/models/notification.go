package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NOTIFICATION_POSITION_FILLED  = "position_filled"
	NOTIFICATION_PAYMENT_FAILED   = "payment_failed"
	NOTIFICATION_SUBSCRIPTION     = "subscription"
	NOTIFICATION_SUBSCRIPTION_END = "subscription_ended"
)

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"index" json:"accountId"`
	Type        string    `gorm:"type:varchar(50)" json:"type" validate:"oneof=position_filled payment_failed subscription subscription_ended"`
	Content     string    `gorm:"type:text" json:"content"`
	IsRead      bool      `gorm:"default:false" json:"isRead"`
	ReferenceID uint      `json:"referenceId"` // id of the job or subscription the notification is about
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}
