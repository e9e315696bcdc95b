package service

import (
	"context"
	"errors"
	"fmt"

	"breakfastledger/internal/config"
	"breakfastledger/internal/metrics"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"
	"breakfastledger/pkg/idgen"
	"breakfastledger/pkg/money"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RechargeService 线下充值申请与审核
//
// 【审核流程】
//  1. 获取目标账户锁
//  2. 事务内锁定申请行，确认仍为 pending
//  3. 通过：RechargeWithTx 入账，再把申请标记为 approved 并记录流水 ID
//     驳回：直接标记为 rejected
//  4. 入账失败时整体回滚，申请保持 pending，可再次审核
type RechargeService struct {
	db           *gorm.DB
	cfg          *config.Config
	ledger       *LedgerService
	accounts     *AccountService
	rechargeRepo *repository.RechargeRepository
	log          *log.Helper
}

func NewRechargeService(db *gorm.DB, cfg *config.Config, ledger *LedgerService, accounts *AccountService, logger log.Logger) *RechargeService {
	return &RechargeService{
		db:           db,
		cfg:          cfg,
		ledger:       ledger,
		accounts:     accounts,
		rechargeRepo: repository.NewRechargeRepository(db),
		log:          log.NewHelper(log.With(logger, "module", "service/recharge")),
	}
}

type CreateRechargeRequest struct {
	UserID          int64
	Amount          decimal.Decimal
	PayMethod       string
	VoucherImageURL string
}

type ReviewRechargeRequest struct {
	RequestID  int64
	ReviewerID int64
	Approve    bool
	Comment    string
}

// CreateRequest 提交充值申请，不涉及账本
func (s *RechargeService) CreateRequest(ctx context.Context, req *CreateRechargeRequest) (*model.RechargeRequest, error) {
	amount := money.Round2(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.PayMethod == "" {
		return nil, fmt.Errorf("%w: pay_method 不能为空", ErrInvalidParam)
	}

	account, err := s.accounts.GetOrCreatePersonal(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	rr := &model.RechargeRequest{
		RequestNo:       idgen.GenerateRechargeNo(),
		AccountID:       account.ID,
		UserID:          req.UserID,
		Amount:          amount,
		PayMethod:       req.PayMethod,
		VoucherImageURL: req.VoucherImageURL,
		Status:          model.RechargeStatusPending,
	}
	if err := s.rechargeRepo.Create(ctx, rr); err != nil {
		return nil, fmt.Errorf("创建充值申请失败: %w", err)
	}

	s.log.WithContext(ctx).Infof("充值申请已提交: requestNo=%s, userID=%d, amount=%s",
		rr.RequestNo, req.UserID, money.Format(amount))
	return rr, nil
}

// ReviewRequest 审核充值申请，同一申请最多入账一次
func (s *RechargeService) ReviewRequest(ctx context.Context, req *ReviewRechargeRequest) (*model.RechargeRequest, error) {
	existing, err := s.rechargeRepo.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrRechargeRequestNotFound) {
			return nil, ErrRechargeNotReviewable
		}
		return nil, err
	}
	if existing.Status != model.RechargeStatusPending {
		return nil, ErrRechargeNotReviewable
	}

	unlock, err := s.ledger.LockAccount(ctx, existing.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	decision := model.RechargeStatusRejected
	if req.Approve {
		decision = model.RechargeStatusApproved
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rr, err := s.rechargeRepo.GetByIDForUpdate(ctx, tx, req.RequestID)
		if err != nil {
			if errors.Is(err, repository.ErrRechargeRequestNotFound) {
				return ErrRechargeNotReviewable
			}
			return err
		}
		if rr.Status != model.RechargeStatusPending {
			return ErrRechargeNotReviewable
		}

		var transactionID *int64
		if req.Approve {
			reviewer := req.ReviewerID
			res := s.ledger.RechargeWithTx(ctx, tx, &BalanceChangeRequest{
				AccountID:      rr.AccountID,
				Amount:         rr.Amount,
				SourceType:     model.SourceTypeRechargeApproval,
				SourceID:       rr.ID,
				OperatorUserID: &reviewer,
				Description:    fmt.Sprintf("充值审核通过 %s", rr.RequestNo),
			})
			if !res.Success {
				return fmt.Errorf("%w: %s %s", ErrRechargeFailed, res.ErrorCode, res.ErrorMessage)
			}
			id := res.TransactionID
			transactionID = &id
		}

		if err := s.rechargeRepo.MarkReviewed(ctx, tx, rr.ID, decision, req.ReviewerID, req.Comment, transactionID); err != nil {
			if errors.Is(err, repository.ErrRechargeNotPending) {
				return ErrRechargeNotReviewable
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.log.WithContext(ctx).Warnf("充值审核失败: requestID=%d, approve=%v, err=%v", req.RequestID, req.Approve, err)
		return nil, err
	}

	metrics.GetMetrics().RechargeReviewsTotal.WithLabelValues(decision).Inc()
	s.log.WithContext(ctx).Infof("充值审核完成: requestID=%d, decision=%s, reviewer=%d", req.RequestID, decision, req.ReviewerID)

	return s.rechargeRepo.GetByID(ctx, req.RequestID)
}

// ListRequests 按状态分页查询
func (s *RechargeService) ListRequests(ctx context.Context, status string, page, pageSize int) ([]*model.RechargeRequest, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.rechargeRepo.List(ctx, status, page, pageSize)
}
