package repository

import (
	"context"
	"errors"
	"time"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var ErrInvestmentNotFound = errors.New("投资单不存在")

type InvestmentRepository struct {
	db *gorm.DB
}

func NewInvestmentRepository(db *gorm.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, tx *gorm.DB, inv *model.Investment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(inv).Error
}

// GetActiveByUserAndPackage 查询用户在某套餐下进行中且未到期的投资单（追加投资的合并目标）
func (r *InvestmentRepository) GetActiveByUserAndPackage(ctx context.Context, tx *gorm.DB, userID, packageID uint, now time.Time) (*model.Investment, error) {
	if tx == nil {
		tx = r.db
	}
	var inv model.Investment
	err := tx.WithContext(ctx).
		Where("user_id = ? AND package_id = ? AND is_active = ? AND end_date > ?", userID, packageID, true, now).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

// AddAmount 原子追加本金（endDate 不变）
func (r *InvestmentRepository) AddAmount(ctx context.Context, tx *gorm.DB, investmentID uint, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Investment{}).
		Where("id = ? AND is_active = ?", investmentID, true).
		UpdateColumn("amount", gorm.Expr("amount + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvestmentNotFound
	}
	return nil
}

// GetPayable 分页查询待发收益的投资单（进行中且未到期），按 id 递增游标翻页
func (r *InvestmentRepository) GetPayable(ctx context.Context, now time.Time, afterID uint, limit int) ([]*model.Investment, error) {
	var invs []*model.Investment
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND end_date >= ? AND id > ?", true, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&invs).Error
	return invs, err
}

// ApplyProfit 发放一笔日收益后的簿记更新
func (r *InvestmentRepository) ApplyProfit(ctx context.Context, tx *gorm.DB, investmentID uint, profit float64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Investment{}).
		Where("id = ?", investmentID).
		Updates(map[string]interface{}{
			"total_earned":     gorm.Expr("total_earned + ?", profit),
			"last_profit_date": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvestmentNotFound
	}
	return nil
}

// ExpireDue 批量关停已到期的投资单，返回关停数量
func (r *InvestmentRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Investment{}).
		Where("is_active = ? AND end_date <= ?", true, now).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// SumActiveByUsers 汇总一批用户当前进行中投资单的本金
func (r *InvestmentRepository) SumActiveByUsers(ctx context.Context, userIDs []uint) (float64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var total float64
	err := r.db.WithContext(ctx).
		Model(&model.Investment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id IN ? AND is_active = ?", userIDs, true).
		Scan(&total).Error
	return total, err
}

func (r *InvestmentRepository) GetByID(ctx context.Context, investmentID uint) (*model.Investment, error) {
	var inv model.Investment
	err := r.db.WithContext(ctx).Where("id = ?", investmentID).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvestmentNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *InvestmentRepository) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*model.Investment, int64, error) {
	var invs []*model.Investment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Investment{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&invs).Error

	return invs, total, err
}
