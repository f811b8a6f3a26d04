package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidTxnType     = errors.New("交易类型不合法")
	ErrInvalidTxnStatus   = errors.New("交易状态不合法")
	ErrInvalidAmount      = errors.New("交易金额不合法")
	ErrWithdrawalInvalid  = errors.New("流水不是待处理的提现")
	ErrWithdrawalReversed = errors.New("该提现已驳回，请勿重复操作")
)

// LedgerService 流水账服务，余额的唯一写入口
//
// 【重要】所有余额变动都必须经过这里：流水插入和余额原子加减
// 在同一个数据库事务内完成，不存在"有流水没余额"或"有余额没流水"的中间态
type LedgerService struct {
	db              *gorm.DB
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		db:              db,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

type RecordRequest struct {
	UserID       uint
	Type         string
	Amount       float64
	Status       string
	Description  string
	InvestmentID *uint
}

// Record 独立事务记账，瞬时存储错误重试一次
func (s *LedgerService) Record(ctx context.Context, req *RecordRequest) (*model.Transaction, error) {
	var trans *model.Transaction
	var err error

	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			t, txErr := s.RecordInTx(ctx, tx, req)
			trans = t
			return txErr
		})
		if err == nil || !isTransientErr(err) {
			break
		}
		log.Printf("[Ledger] 记账遇到瞬时错误，重试一次: userID=%d, type=%s, err=%v", req.UserID, req.Type, err)
	}

	if err != nil {
		return nil, err
	}
	return trans, nil
}

// RecordInTx 在调用方事务内记账：原子变动余额并插入流水
// 购买投资、发放收益、领奖等业务在自己的事务里通过这里落账
func (s *LedgerService) RecordInTx(ctx context.Context, tx *gorm.DB, req *RecordRequest) (*model.Transaction, error) {
	if !model.ValidTxnType(req.Type) {
		return nil, ErrInvalidTxnType
	}
	if !model.ValidTxnStatus(req.Status) {
		return nil, ErrInvalidTxnStatus
	}
	if req.Amount < 0 {
		return nil, ErrInvalidAmount
	}

	// 事务内读取当前余额，作为流水里的前后余额快照
	// 真正的并发安全由下面的条件化原子加减保证，不依赖这次读取
	user, err := s.userRepo.GetByIDTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	// 余额生效规则：COMPLETED 即生效；提现特殊，PENDING 落账即占款，
	// 驳回时追加 BONUS 冲正流水恢复余额（原流水不动）
	var delta float64
	if req.Amount > 0 {
		switch {
		case req.Status == model.TxnStatusCompleted:
			delta = float64(model.EffectOf(req.Type)) * req.Amount
		case req.Type == model.TxnTypeWithdrawal && req.Status == model.TxnStatusPending:
			delta = -req.Amount
		}
	}

	if delta < 0 {
		if err := s.userRepo.Deduct(ctx, tx, req.UserID, -delta); err != nil {
			return nil, err
		}
	} else if delta > 0 {
		if err := s.userRepo.Increase(ctx, tx, req.UserID, delta); err != nil {
			return nil, err
		}
	}

	trans := &model.Transaction{
		TxnNo:         idgen.GenerateTxnNo(),
		UserID:        req.UserID,
		Type:          req.Type,
		Amount:        req.Amount,
		Status:        req.Status,
		Description:   req.Description,
		InvestmentID:  req.InvestmentID,
		BalanceBefore: user.Balance,
		BalanceAfter:  user.Balance + delta,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	return trans, nil
}

// RejectWithdrawal 驳回一笔待处理提现
// 不修改原流水，追加一条 BONUS 冲正流水恢复余额；描述里编码原流水号用于查重
func (s *LedgerService) RejectWithdrawal(ctx context.Context, txnNo, reason string) (*model.Transaction, error) {
	orig, err := s.transactionRepo.GetByTxnNo(ctx, txnNo)
	if err != nil {
		return nil, err
	}
	if orig.Type != model.TxnTypeWithdrawal || orig.Status != model.TxnStatusPending {
		return nil, ErrWithdrawalInvalid
	}

	prefix := fmt.Sprintf("提现驳回-%s", txnNo)
	existing, err := s.transactionRepo.FindByDescriptionPrefix(ctx, orig.UserID, prefix)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrWithdrawalReversed
	}

	desc := prefix
	if reason != "" {
		desc = fmt.Sprintf("%s-%s", prefix, reason)
	}

	return s.Record(ctx, &RecordRequest{
		UserID:      orig.UserID,
		Type:        model.TxnTypeBonus,
		Amount:      orig.Amount,
		Status:      model.TxnStatusCompleted,
		Description: desc,
	})
}

// GetBalance 查询用户余额（物化余额，不回表汇总流水）
func (s *LedgerService) GetBalance(ctx context.Context, userID uint) (float64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID uint, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// isTransientErr 判断是否为值得重试的瞬时存储错误
// 业务性错误（余额不足、用户不存在、参数不合法）重试没有意义
func isTransientErr(err error) bool {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrBalanceNotEnough),
		errors.Is(err, ErrInvalidTxnType),
		errors.Is(err, ErrInvalidTxnStatus),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
