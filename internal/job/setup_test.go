package job

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				ProfitSettled:     "invest.profit.settled",
				RankRewardClaimed: "invest.rank.reward.claimed",
			},
		},
		Business: config.BusinessConfig{
			AccrualCrons:     []string{"0 9 * * *", "0 21 * * *"},
			AccrualBatchSize: 50,
			MaxRetryCount:    3,
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, name string, balance float64) *model.User {
	t.Helper()
	user := &model.User{
		Name:         name,
		ReferralCode: "RC-" + name,
		Balance:      balance,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createTestInvestment 直接插入投资单，yield 为月化百分数，daysLeft 为负表示已到期
func createTestInvestment(t *testing.T, db *gorm.DB, userID uint, amount, yield float64, daysLeft int) *model.Investment {
	t.Helper()
	now := time.Now()
	inv := &model.Investment{
		InvestmentNo: fmt.Sprintf("INV-TEST-%d-%.0f", userID, amount),
		UserID:       userID,
		PackageID:    1,
		Amount:       amount,
		MonthlyYield: yield,
		StartDate:    now.AddDate(0, 0, -1),
		EndDate:      now.AddDate(0, 0, daysLeft),
		IsActive:     true,
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}
