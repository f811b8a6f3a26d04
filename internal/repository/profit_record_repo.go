package repository

import (
	"context"
	"errors"
	"strings"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

// ErrProfitAlreadyPaid 当日收益已发放（(investment_id, profit_date) 唯一键冲突）
var ErrProfitAlreadyPaid = errors.New("该投资单当日收益已发放")

type ProfitRecordRepository struct {
	db *gorm.DB
}

func NewProfitRecordRepository(db *gorm.DB) *ProfitRecordRepository {
	return &ProfitRecordRepository{db: db}
}

// Create 插入发放记录，唯一键冲突时返回 ErrProfitAlreadyPaid
//
// 【关键点】这一条 INSERT 就是防重复发放的幂等屏障，
// 必须与收益流水、余额变动在同一个事务内执行
func (r *ProfitRecordRepository) Create(ctx context.Context, tx *gorm.DB, record *model.ProfitRecord) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(record).Error
	if err != nil {
		if IsDuplicateKeyErr(err) {
			return ErrProfitAlreadyPaid
		}
		return err
	}
	return nil
}

func (r *ProfitRecordRepository) Exists(ctx context.Context, investmentID uint, profitDate string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProfitRecord{}).
		Where("investment_id = ? AND profit_date = ?", investmentID, profitDate).
		Count(&count).Error
	return count > 0, err
}

// IsDuplicateKeyErr 识别唯一键冲突（MySQL: Duplicate entry，SQLite: UNIQUE constraint）
func IsDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}
