package job

import (
	"context"
	"testing"
	"time"

	"investsystem/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 日收益发放 Tests
// =============================================================================

func TestRunDailyAccrual_PaysDailyProfit(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	job := NewDailyProfitJob(db, cfg)
	ctx := context.Background()

	user := createTestUser(t, db, "alice", 500)
	// 本金 1000，月化 30% -> 每日 10
	inv := createTestInvestment(t, db, user.ID, 1000, 30, 29)

	result, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.InDelta(t, 10, result.TotalPaid, 1e-6)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Equal(t, 0, result.FailedCount)

	// 余额入账
	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 510, fresh.Balance, 1e-6)

	// 投资单簿记更新
	var freshInv model.Investment
	require.NoError(t, db.First(&freshInv, inv.ID).Error)
	assert.InDelta(t, 10, freshInv.TotalEarned, 1e-6)
	require.NotNil(t, freshInv.LastProfitDate)

	// 收益流水关联投资单
	var trans model.Transaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, model.TxnTypeDailyProfit).First(&trans).Error)
	require.NotNil(t, trans.InvestmentID)
	assert.Equal(t, inv.ID, *trans.InvestmentID)

	// 幂等记录落库
	var record model.ProfitRecord
	today := time.Now().Format("2006-01-02")
	require.NoError(t, db.Where("investment_id = ? AND profit_date = ?", inv.ID, today).First(&record).Error)
	assert.InDelta(t, 10, record.Amount, 1e-6)

	// 结算事件写进发件箱
	var msg model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", cfg.Kafka.Topic.ProfitSettled).First(&msg).Error)
	assert.Equal(t, today, msg.MessageKey)
}

func TestRunDailyAccrual_IdempotentWithinDay(t *testing.T) {
	db := newTestDB(t)
	job := NewDailyProfitJob(db, newTestConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "bob", 0)
	createTestInvestment(t, db, user.ID, 1000, 30, 29)

	first, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ProcessedCount)

	// 同日重复触发：幂等屏障命中，只跳过不再发放
	second, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 1, second.SkippedCount)

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 10, fresh.Balance, 1e-6)

	var txnCount int64
	require.NoError(t, db.Model(&model.Transaction{}).
		Where("user_id = ? AND type = ?", user.ID, model.TxnTypeDailyProfit).Count(&txnCount).Error)
	assert.EqualValues(t, 1, txnCount)
}

func TestRunDailyAccrual_ExpiredInvestmentNotPaid(t *testing.T) {
	db := newTestDB(t)
	job := NewDailyProfitJob(db, newTestConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "carol", 0)
	expired := createTestInvestment(t, db, user.ID, 1000, 30, -1)

	result, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)

	// 到期单先被关停，绝不进入发放名单
	var fresh model.Investment
	require.NoError(t, db.First(&fresh, expired.ID).Error)
	assert.False(t, fresh.IsActive)

	var txnCount int64
	require.NoError(t, db.Model(&model.Transaction{}).Where("user_id = ?", user.ID).Count(&txnCount).Error)
	assert.EqualValues(t, 0, txnCount)
}

func TestRunDailyAccrual_FailureIsolatedPerInvestment(t *testing.T) {
	db := newTestDB(t)
	job := NewDailyProfitJob(db, newTestConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "dave", 0)
	createTestInvestment(t, db, user.ID, 1000, 30, 29)
	// 指向不存在用户的脏数据单：发放失败但不中断整轮
	broken := createTestInvestment(t, db, 99999, 2000, 30, 29)

	result, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.InDelta(t, 10, result.TotalPaid, 1e-6)

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 10, fresh.Balance, 1e-6)

	// 失败单整事务回滚，幂等记录也不残留，下一轮还能重试
	var recordCount int64
	require.NoError(t, db.Model(&model.ProfitRecord{}).
		Where("investment_id = ?", broken.ID).Count(&recordCount).Error)
	assert.EqualValues(t, 0, recordCount)
}

func TestRunDailyAccrual_PaginatesThroughAllInvestments(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.AccrualBatchSize = 2
	job := NewDailyProfitJob(db, cfg)
	ctx := context.Background()

	user := createTestUser(t, db, "erin", 0)
	for i := 0; i < 5; i++ {
		createTestInvestment(t, db, user.ID, float64(100*(i+1)), 30, 29)
	}

	result, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProcessedCount)
	// 100+200+300+400+500 本金，月化 30% -> 每日合计 15
	assert.InDelta(t, 15, result.TotalPaid, 1e-6)

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 15, fresh.Balance, 1e-6)
}

func TestRunDailyAccrual_TopUpRaisesDailyProfit(t *testing.T) {
	db := newTestDB(t)
	job := NewDailyProfitJob(db, newTestConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "frank", 0)
	inv := createTestInvestment(t, db, user.ID, 1000, 30, 29)

	_, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)

	// 追加本金后，下一天的收益按新本金计算
	require.NoError(t, db.Model(inv).Update("amount", 1500).Error)
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	require.NoError(t, db.Model(&model.ProfitRecord{}).
		Where("investment_id = ?", inv.ID).Update("profit_date", yesterday).Error)

	result, err := job.RunDailyAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.InDelta(t, 15, result.TotalPaid, 1e-6)

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 25, fresh.Balance, 1e-6)
}
