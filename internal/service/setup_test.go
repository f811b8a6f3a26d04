package service

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =============================================================================
// 测试基础设施
// =============================================================================
//
// 用临时目录里的 SQLite 文件起一个真实的数据库（WAL 模式，
// 多连接读写互不阻塞），Redis 用 miniredis 进程内模拟。

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.User{},
		&model.InvestmentPackage{},
		&model.Investment{},
		&model.Transaction{},
		&model.ProfitRecord{},
		&model.OutboxMessage{},
	)
	require.NoError(t, err)

	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				ProfitSettled:     "invest.profit.settled",
				RankRewardClaimed: "invest.rank.reward.claimed",
			},
		},
		Business: config.BusinessConfig{
			AccrualCrons:          []string{"0 9 * * *", "0 21 * * *"},
			AccrualBatchSize:      50,
			TurnoverDepthCap:      10,
			TurnoverCacheTTLMin:   5,
			ReferralBonusPercents: []float64{5, 3, 1},
			MaxRetryCount:         3,
		},
	}
}

// createTestUser 落库一个用户，邀请码由名字派生（测试内名字唯一）
func createTestUser(t *testing.T, db *gorm.DB, name string, referredBy *string, balance float64) *model.User {
	t.Helper()
	user := &model.User{
		Name:         name,
		ReferralCode: "RC-" + name,
		ReferredBy:   referredBy,
		Balance:      balance,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestPackage(t *testing.T, db *gorm.DB, name string, min, max, yield float64, days int) *model.InvestmentPackage {
	t.Helper()
	pkg := &model.InvestmentPackage{
		Name:         name,
		MinAmount:    min,
		MaxAmount:    max,
		MonthlyYield: yield,
		DurationDays: days,
		IsActive:     true,
	}
	require.NoError(t, db.Create(pkg).Error)
	return pkg
}

// createTestInvestment 绕过开仓流程直接插入投资单，用于构造下级业绩
func createTestInvestment(t *testing.T, db *gorm.DB, userID, packageID uint, amount float64, active bool) *model.Investment {
	t.Helper()
	now := time.Now()
	inv := &model.Investment{
		InvestmentNo: fmt.Sprintf("INV-TEST-%d-%d-%.0f", userID, packageID, amount),
		UserID:       userID,
		PackageID:    packageID,
		Amount:       amount,
		MonthlyYield: 30,
		StartDate:    now,
		EndDate:      now.AddDate(0, 0, 30),
		IsActive:     active,
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

// assertLedgerConsistent 校验物化余额等于初始余额加上已生效流水的净效果
// （COMPLETED 按类型符号生效，待处理提现按占款计入）
func assertLedgerConsistent(t *testing.T, db *gorm.DB, userID uint, initial float64) {
	t.Helper()

	var user model.User
	require.NoError(t, db.First(&user, userID).Error)

	var txns []model.Transaction
	require.NoError(t, db.Where("user_id = ?", userID).Find(&txns).Error)

	expected := initial
	for _, txn := range txns {
		switch {
		case txn.Status == model.TxnStatusCompleted:
			expected += float64(model.EffectOf(txn.Type)) * txn.Amount
		case txn.Type == model.TxnTypeWithdrawal && txn.Status == model.TxnStatusPending:
			expected -= txn.Amount
		}
	}

	require.InDelta(t, expected, user.Balance, 1e-6,
		"余额与流水不一致: userID=%d", userID)
}
