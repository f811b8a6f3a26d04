package handler

import (
	"errors"
	"strconv"

	"investsystem/internal/config"
	"investsystem/internal/job"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/internal/service"
	"investsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
// HTTP 层只做参数解析和错误码映射，业务全部在 service 里
type Handler struct {
	userService       *service.UserService
	ledgerService     *service.LedgerService
	investmentService *service.InvestmentService
	turnoverService   *service.TurnoverService
	rewardService     *service.RewardService
	profitJob         *job.DailyProfitJob
	outboxRepo        *repository.OutboxRepository
}

// NewHandler 创建处理器实例
// profitJob 与 main 里挂在 cron 上的是同一个实例，管理端触发和定时触发共用一条代码路径
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, profitJob *job.DailyProfitJob) *Handler {
	return &Handler{
		userService:       service.NewUserService(db),
		ledgerService:     service.NewLedgerService(db),
		investmentService: service.NewInvestmentService(db, cfg),
		turnoverService:   service.NewTurnoverService(db, rdb, cfg),
		rewardService:     service.NewRewardService(db, rdb, cfg),
		profitJob:         profitJob,
		outboxRepo:        repository.NewOutboxRepository(db),
	}
}

// businessCode 业务错误到响应码的映射，命中返回 true
func businessCode(err error) (int, bool) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return response.CodeUserNotFound, true
	case errors.Is(err, repository.ErrBalanceNotEnough):
		return response.CodeBalanceNotEnough, true
	case errors.Is(err, service.ErrPackageUnavailable):
		return response.CodePackageInvalid, true
	case errors.Is(err, service.ErrAmountOutOfRange):
		return response.CodeAmountOutOfRange, true
	case errors.Is(err, service.ErrInvalidRank), errors.Is(err, service.ErrInvalidRewardKind):
		return response.CodeInvalidRank, true
	case errors.Is(err, service.ErrAlreadyClaimed):
		return response.CodeAlreadyClaimed, true
	case errors.Is(err, service.ErrInsufficientTurnover):
		return response.CodeInsufficientTurnover, true
	case errors.Is(err, service.ErrInviterNotFound):
		return response.CodeInviterNotFound, true
	case errors.Is(err, repository.ErrInvestmentNotFound):
		return response.CodeInvestmentNotFound, true
	}
	return 0, false
}

func fail(c *gin.Context, err error) {
	if code, ok := businessCode(err); ok {
		response.BusinessError(c, code, err.Error())
		return
	}
	response.ServerError(c, err.Error())
}

func parseUserID(c *gin.Context) (uint, bool) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return uint(userID), true
}

// ============================================================
// 用户相关接口
// ============================================================

// Register 注册用户
// POST /api/v1/user/register
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":       user.ID,
		"name":          user.Name,
		"referral_code": user.ReferralCode,
	})
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// DepositRequest 充值请求
type DepositRequest struct {
	UserID uint    `json:"user_id" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// Deposit 充值接口（简化版，实际应该走支付渠道）
// POST /api/v1/account/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledgerService.Record(c.Request.Context(), &service.RecordRequest{
		UserID:      req.UserID,
		Type:        model.TxnTypeDeposit,
		Amount:      req.Amount,
		Status:      model.TxnStatusCompleted,
		Description: "充值",
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"txn_no":  trans.TxnNo,
		"balance": trans.BalanceAfter,
	})
}

// WithdrawRequest 提现请求
type WithdrawRequest struct {
	UserID uint    `json:"user_id" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// Withdraw 申请提现
// POST /api/v1/account/withdraw
//
// 提现落账即占款（PENDING），打款由线下渠道处理；
// 驳回时追加冲正流水恢复余额
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledgerService.Record(c.Request.Context(), &service.RecordRequest{
		UserID:      req.UserID,
		Type:        model.TxnTypeWithdrawal,
		Amount:      req.Amount,
		Status:      model.TxnStatusPending,
		Description: "提现申请",
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"txn_no":  trans.TxnNo,
		"status":  trans.Status,
		"balance": trans.BalanceAfter,
	})
}

// ListTransactions 查询用户流水列表
// GET /api/v1/account/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 投资相关接口
// ============================================================

// ListPackages 查询在售套餐
// GET /api/v1/package/list
func (h *Handler) ListPackages(c *gin.Context) {
	pkgs, err := h.investmentService.ListPackages(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": pkgs})
}

// OpenInvestment 购买/追加投资
// POST /api/v1/investment/open
//
// 【关键点】购买是整个系统最核心的出账操作，需要保证：
// 1. 原子性：投资单、INVESTMENT 流水、余额扣减、推荐奖励同时成功或同时失败
// 2. 合并：同套餐已有进行中投资单时追加本金，不开新单
func (h *Handler) OpenInvestment(c *gin.Context) {
	var req service.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.investmentService.Open(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// GetInvestment 查询单张投资单详情
// GET /api/v1/investment/detail?investment_id=xxx
func (h *Handler) GetInvestment(c *gin.Context) {
	investmentID, err := strconv.ParseUint(c.Query("investment_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "investment_id 参数错误")
		return
	}

	inv, err := h.investmentService.GetInvestment(c.Request.Context(), uint(investmentID))
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, inv)
}

// ListInvestments 查询用户投资单列表
// GET /api/v1/investment/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListInvestments(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	invs, total, err := h.investmentService.ListUserInvestments(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      invs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 团队相关接口
// ============================================================

// GetTurnover 查询团队业绩
// GET /api/v1/team/turnover?user_id=xxx
func (h *Handler) GetTurnover(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	turnover, err := h.turnoverService.TurnoverOf(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":  userID,
		"turnover": turnover,
	})
}

// GetRank 查询当前等级
// GET /api/v1/team/rank?user_id=xxx
func (h *Handler) GetRank(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	tier, err := h.turnoverService.GetRank(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	// 未达最低门槛时 rank 为 null
	response.Success(c, gin.H{
		"user_id": userID,
		"rank":    tier,
	})
}

// GetNextRank 查询下一目标等级
// GET /api/v1/team/next-rank?user_id=xxx
func (h *Handler) GetNextRank(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	tier, turnover, err := h.turnoverService.GetNextRank(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":   userID,
		"turnover":  turnover,
		"next_rank": tier,
	})
}

// ============================================================
// 奖励相关接口
// ============================================================

// ClaimReward 领取等级奖励
// POST /api/v1/reward/claim
func (h *Handler) ClaimReward(c *gin.Context) {
	var req service.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.rewardService.Claim(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// ListClaimed 查询已领取奖励
// GET /api/v1/reward/claimed?user_id=xxx
func (h *Handler) ListClaimed(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	claimed, err := h.rewardService.ListClaimed(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{"list": claimed})
}

// ============================================================
// 管理端接口
// ============================================================

// RunAccrual 手动触发一轮收益发放（与定时触发同一条代码路径）
// POST /api/v1/admin/accrual/run
func (h *Handler) RunAccrual(c *gin.Context) {
	result, err := h.profitJob.RunDailyAccrual(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// RejectWithdrawal 驳回提现
// POST /api/v1/admin/withdrawal/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req struct {
		TxnNo  string `json:"txn_no" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledgerService.RejectWithdrawal(c.Request.Context(), req.TxnNo, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"txn_no":  trans.TxnNo,
		"balance": trans.BalanceAfter,
	})
}

// ListFailedOutbox 查询投递失败的发件箱消息
// GET /api/v1/admin/outbox/failed
func (h *Handler) ListFailedOutbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, err := h.outboxRepo.GetFailedMessages(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{"list": messages})
}

// RequeueFailedOutbox 把失败消息重新置为待发送
// POST /api/v1/admin/outbox/requeue
// 下游恢复后人工触发，发件箱任务会在下一个扫描周期重新投递
func (h *Handler) RequeueFailedOutbox(c *gin.Context) {
	var req struct {
		ID int64 `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.outboxRepo.Requeue(c.Request.Context(), req.ID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{"id": req.ID})
}
