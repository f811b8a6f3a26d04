package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("流水不存在")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTxnNo(ctx context.Context, txnNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("txn_no = ?", txnNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID uint, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// FindRankReward 按 (用户, 等级, 奖励类型) 查找已完成的领奖流水，不存在返回 nil
// 领奖记录复用 RANK_REWARD 流水，按描述前缀匹配
func (r *TransactionRepository) FindRankReward(ctx context.Context, tx *gorm.DB, userID uint, level int, kind string) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status = ? AND description LIKE ?",
			userID, model.TxnTypeRankReward, model.TxnStatusCompleted,
			model.RankRewardPrefix(level, kind)+"%").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// ListRankRewards 查询用户全部已完成的领奖流水
func (r *TransactionRepository) ListRankRewards(ctx context.Context, userID uint) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status = ?",
			userID, model.TxnTypeRankReward, model.TxnStatusCompleted).
		Order("created_at ASC").
		Find(&transactions).Error
	return transactions, err
}

// FindByDescriptionPrefix 按描述前缀查找流水（提现冲正查重用）
func (r *TransactionRepository) FindByDescriptionPrefix(ctx context.Context, userID uint, prefix string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND description LIKE ?", userID, prefix+"%").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}
