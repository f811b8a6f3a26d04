package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TxnTypeDeposit       = "DEPOSIT"        // 充值（入账）
	TxnTypeWithdrawal    = "WITHDRAWAL"     // 提现（出账，落账时即扣减占款）
	TxnTypeInvestment    = "INVESTMENT"     // 购买/追加投资（出账）
	TxnTypeDailyProfit   = "DAILY_PROFIT"   // 每日收益（入账）
	TxnTypeReferralBonus = "REFERRAL_BONUS" // 推荐奖励（入账）
	TxnTypeRankBonus     = "RANK_BONUS"     // 等级分红（入账）
	TxnTypeRankReward    = "RANK_REWARD"    // 等级达标奖励（入账，实物奖励金额为 0）
	TxnTypeBonus         = "BONUS"          // 平台赠送/冲正（入账）
)

const (
	TxnStatusPending   = "PENDING"
	TxnStatusCompleted = "COMPLETED"
	TxnStatusFailed    = "FAILED"
)

// txnEffects 交易类型对余额的符号作用：+1 入账，-1 出账
var txnEffects = map[string]int{
	TxnTypeDeposit:       +1,
	TxnTypeWithdrawal:    -1,
	TxnTypeInvestment:    -1,
	TxnTypeDailyProfit:   +1,
	TxnTypeReferralBonus: +1,
	TxnTypeRankBonus:     +1,
	TxnTypeRankReward:    +1,
	TxnTypeBonus:         +1,
}

// EffectOf 返回交易类型的余额符号作用，未知类型返回 0
func EffectOf(txnType string) int {
	return txnEffects[txnType]
}

// ValidTxnType 校验交易类型是否合法
func ValidTxnType(txnType string) bool {
	_, ok := txnEffects[txnType]
	return ok
}

// ValidTxnStatus 校验交易状态是否合法
func ValidTxnStatus(status string) bool {
	switch status {
	case TxnStatusPending, TxnStatusCompleted, TxnStatusFailed:
		return true
	}
	return false
}

// ============================================================================
// 交易流水实体
// ============================================================================

// Transaction 资金流水表，余额的唯一事实来源
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 提现驳回通过追加冲正流水实现，原流水不动
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 余额变动与流水插入必须在同一个数据库事务里，同生共死
type Transaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TxnNo         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"txn_no"` // 流水号（全局唯一）
	UserID        uint      `gorm:"index;not null" json:"user_id"`
	Type          string    `gorm:"type:varchar(20);index;not null" json:"type"`
	Amount        float64   `gorm:"type:decimal(15,2);not null" json:"amount"` // 金额恒为非负，方向由 Type 决定
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	InvestmentID  *uint     `gorm:"index" json:"investment_id,omitempty"` // 可选关联投资单
	BalanceBefore float64   `gorm:"type:decimal(15,2);not null" json:"balance_before"`
	BalanceAfter  float64   `gorm:"type:decimal(15,2);not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}
