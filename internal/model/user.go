package model

import (
	"time"
)

// User 用户表
// 记录用户余额和推荐关系，是整个平台的核心数据
//
// 【重要】余额只能通过流水（Transaction）驱动的原子加减变动，
// 任何业务代码都不允许直接 UPDATE balance 字段
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	ReferralCode string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"referral_code"` // 本人的邀请码，全局唯一
	ReferredBy   *string   `gorm:"type:varchar(20);index" json:"referred_by"`                  // 上级的邀请码，可为空（无上级）
	Balance      float64   `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`       // 可用余额
	Rank         int       `gorm:"not null;default:0" json:"rank"`                             // 缓存的等级，仅展示用，权威等级以业绩实时计算为准
	IsActive     bool      `gorm:"not null" json:"is_active"`                                  // 软禁用标记，用户只禁用不删除；创建时显式赋值，不依赖列默认值
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
