package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	return r.GetByIDTx(ctx, nil, userID)
}

// GetByIDTx 在调用方事务内读取用户，tx 为 nil 时走默认连接
func (r *UserRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, userID uint) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetChildren 批量查询直接下级（referred_by 命中任一邀请码的在用用户）
func (r *UserRepository) GetChildren(ctx context.Context, codes []string) ([]*model.User, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("referred_by IN ? AND is_active = ?", codes, true).
		Find(&users).Error
	return users, err
}

// Deduct 原子扣减余额
//
// 【关键点】扣减条件里带 balance >= ?，数据库层面保证余额不会被扣成负数，
// 也避免了"先读后写"在并发下的丢失更新
func (r *UserRepository) Deduct(ctx context.Context, tx *gorm.DB, userID uint, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		user, err := r.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrUserNotFound
	}

	return nil
}

// Increase 原子增加余额
func (r *UserRepository) Increase(ctx context.Context, tx *gorm.DB, userID uint, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateRank 更新缓存等级（仅展示用，权威等级以业绩实时计算为准）
func (r *UserRepository) UpdateRank(ctx context.Context, userID uint, level int) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("rank", level).Error
}
