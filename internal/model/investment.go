package model

import (
	"time"
)

// InvestmentPackage 投资套餐表
// 管理后台可以编辑套餐参数，但不影响已经开仓的投资单（开仓时会快照收益率）
type InvestmentPackage struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(64);not null" json:"name"`
	MinAmount    float64   `gorm:"type:decimal(15,2);not null" json:"min_amount"`
	MaxAmount    float64   `gorm:"type:decimal(15,2);not null" json:"max_amount"`
	MonthlyYield float64   `gorm:"type:decimal(5,2);not null" json:"monthly_yield"` // 月化收益率（百分数，如 30 表示 30%）
	DurationDays int       `gorm:"not null" json:"duration_days"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InvestmentPackage) TableName() string {
	return "investment_package"
}

// Investment 投资单表
//
// 【重要】同一用户在同一套餐下最多只有一张进行中的投资单：
// 追加投资会把本金合并进已有单据（endDate 不顺延），
// 避免同一用户同一套餐出现多张单据导致日收益记账碎片化
type Investment struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	InvestmentNo   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"investment_no"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	PackageID      uint       `gorm:"index;not null" json:"package_id"`
	Amount         float64    `gorm:"type:decimal(15,2);not null" json:"amount"`        // 本金，可通过追加投资增长
	MonthlyYield   float64    `gorm:"type:decimal(5,2);not null" json:"monthly_yield"`  // 开仓时快照的月化收益率
	StartDate      time.Time  `gorm:"not null" json:"start_date"`
	EndDate        time.Time  `gorm:"index;not null" json:"end_date"`                   // 开仓时固定，追加投资不顺延
	TotalEarned    float64    `gorm:"type:decimal(15,2);not null;default:0" json:"total_earned"`
	LastProfitDate *time.Time `json:"last_profit_date,omitempty"`
	// 不给 is_active 配列默认值：gorm 会把带 default 标签的零值字段从 INSERT
	// 里省略，false 会被列默认值悄悄覆盖成 true。所有创建路径都显式赋值
	IsActive       bool       `gorm:"index;not null" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Investment) TableName() string {
	return "investment"
}

// DailyProfit 计算当前本金对应的每日收益
// 公式：本金 * 月化收益率 / 30 / 100
func (i *Investment) DailyProfit() float64 {
	return i.Amount * i.MonthlyYield / 30 / 100
}

// ProfitRecord 日收益发放记录表
//
// 【关键点】(investment_id, profit_date) 唯一索引是防重复发放的幂等屏障：
// 同一个自然日内无论定时任务触发多少次（双重定时器、人工补跑），
// 插入记录失败（唯一键冲突）就跳过发放，保证每单每天最多收益一次
type ProfitRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	InvestmentID uint      `gorm:"uniqueIndex:uk_investment_profit_date;not null" json:"investment_id"`
	ProfitDate   string    `gorm:"type:varchar(10);uniqueIndex:uk_investment_profit_date;not null" json:"profit_date"` // 格式 2006-01-02
	Amount       float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProfitRecord) TableName() string {
	return "profit_record"
}
