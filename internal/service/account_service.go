package service

import (
	"context"
	"errors"
	"fmt"

	"breakfastledger/internal/config"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"
	"breakfastledger/pkg/money"

	"gorm.io/gorm"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 200
)

type AccountService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	cfg             *config.Config
	db              *gorm.DB
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		cfg:             cfg,
		db:              db,
	}
}

// newPersonalAccount 个人账户模板，透支额度和阈值取配置
func newPersonalAccount(cfg *config.Config, userID int64) *model.Account {
	return &model.Account{
		Type:              model.AccountTypePersonal,
		OwnerUserID:       userID,
		Name:              fmt.Sprintf("个人账户-%d", userID),
		Balance:           money.Zero,
		CreditLimit:       money.FromFloat(cfg.Business.DefaultCreditLimit),
		ReminderThreshold: money.FromFloat(cfg.Business.ReminderThreshold),
		DangerThreshold:   money.FromFloat(cfg.Business.DangerThreshold),
		Status:            model.AccountStatusActive,
	}
}

// GetOrCreatePersonal 获取用户个人账户，不存在则创建
func (s *AccountService) GetOrCreatePersonal(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetOrCreate(ctx, newPersonalAccount(s.cfg, userID))
	if err != nil {
		return nil, fmt.Errorf("获取个人账户失败: %w", err)
	}
	return account, nil
}

// GetMyAccount 当前用户的个人账户
func (s *AccountService) GetMyAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.GetOrCreatePersonal(ctx, userID)
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListTransactions 账户最近流水，limit 默认 50，最大 200
func (s *AccountService) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*model.AccountTransaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	return s.transactionRepo.ListByAccount(ctx, accountID, limit)
}
