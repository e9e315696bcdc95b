package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// ClassOrderService 班级团餐下单
//
// 老师通过班级账户为多名学生下单，每个学生从自己的个人账户扣款。
// 班级不存在、无权限、IP 不符、超出单笔上限时整单拒绝且不写入任何数据；
// 单个学生的校验失败只影响该学生的明细。
type ClassOrderService struct {
	db          *gorm.DB
	cfg         *config.Config
	ledger      *LedgerService
	classRepo   *repository.ClassOrderRepository
	accountRepo *repository.AccountRepository
	txRepo      *repository.TransactionRepository
	log         *log.Helper
}

func NewClassOrderService(db *gorm.DB, cfg *config.Config, ledger *LedgerService, logger log.Logger) *ClassOrderService {
	return &ClassOrderService{
		db:          db,
		cfg:         cfg,
		ledger:      ledger,
		classRepo:   repository.NewClassOrderRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		txRepo:      repository.NewTransactionRepository(db),
		log:         log.NewHelper(log.With(logger, "module", "service/class_order")),
	}
}

type GroupOrderItemInput struct {
	StudentID int64           `json:"student_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	ProductID *int64          `json:"product_id"`
}

type CreateGroupOrderRequest struct {
	OperatorUserID int64
	ClassAccountID int64
	Items          []GroupOrderItemInput
	Remark         string
	RequestIP      string
}

type GroupOrderSummary struct {
	StudentCount int             `json:"student_count"`
	SuccessCount int             `json:"success_count"`
	FailCount    int             `json:"fail_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type GroupOrderResult struct {
	Order   *model.ClassGroupOrder       `json:"order"`
	Summary GroupOrderSummary            `json:"summary"`
	Items   []*model.ClassGroupOrderItem `json:"items"`
}

// CreateGroupOrder 班级团餐下单
func (s *ClassOrderService) CreateGroupOrder(ctx context.Context, req *CreateGroupOrderRequest) (*GroupOrderResult, error) {
	classAccount, err := s.authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	sum := decimal.Zero
	for i := range req.Items {
		amount := money.Round2(req.Items[i].Amount)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: 第 %d 条明细金额必须大于0", ErrInvalidParam, i+1)
		}
		req.Items[i].Amount = amount
		sum = sum.Add(amount)
	}

	if len(req.Items) > classAccount.MaxStudentsPerOrder {
		return nil, fmt.Errorf("%w: 学生数 %d 超过上限 %d", ErrClassOrderLimit, len(req.Items), classAccount.MaxStudentsPerOrder)
	}
	if sum.GreaterThan(classAccount.MaxAmountPerOrder) {
		return nil, fmt.Errorf("%w: 金额 %s 超过上限 %s", ErrClassOrderLimit, money.Format(sum), money.Format(classAccount.MaxAmountPerOrder))
	}

	items, err := s.buildItems(ctx, classAccount, req.Items)
	if err != nil {
		return nil, err
	}

	// 先分配订单 ID 作为扣款来源，订单和明细在全部扣款结束后一次写入
	order := &model.ClassGroupOrder{
		ID:             idgen.NextID(),
		OrderNo:        idgen.GenerateGroupOrderNo(),
		ClassAccountID: classAccount.ID,
		OperatorUserID: req.OperatorUserID,
		OrderTime:      time.Now(),
		StudentCount:   len(items),
		TotalAmount:    decimal.Zero,
		Status:         model.OrderStatusCreated,
		Remark:         req.Remark,
	}

	operator := req.OperatorUserID
	for _, item := range items {
		if item.Status != model.ItemStatusPending {
			continue
		}
		res := s.ledger.Consume(ctx, &BalanceChangeRequest{
			AccountID:      item.AccountID,
			Amount:         item.Amount,
			SourceType:     model.SourceTypeClassGroupOrder,
			SourceID:       order.ID,
			OperatorUserID: &operator,
			Description:    fmt.Sprintf("班级团餐 %s", order.OrderNo),
		})
		if res.Success {
			transactionID := res.TransactionID
			item.Status = model.ItemStatusSuccess
			item.TransactionID = &transactionID
		} else {
			item.Status = model.ItemStatusFailed
			item.FailReason = res.ErrorCode
		}
	}

	summary, err := s.finalize(ctx, order, items)
	if err != nil {
		// 已扣款的流水没有对应订单，由 OrderSweepJob 超时后退回
		s.log.WithContext(ctx).Errorf("团餐订单写入失败: orderNo=%s, orderID=%d, err=%v", order.OrderNo, order.ID, err)
		return nil, fmt.Errorf("团餐订单写入失败: %w", err)
	}

	s.log.WithContext(ctx).Infof("团餐订单完成: orderNo=%s, classAccountID=%d, status=%s, success=%d/%d",
		order.OrderNo, classAccount.ID, order.Status, summary.SuccessCount, summary.StudentCount)

	return &GroupOrderResult{Order: order, Summary: *summary, Items: items}, nil
}

// authorize 班级账户存在且启用、操作人已授权、来源 IP 在白名单内
func (s *ClassOrderService) authorize(ctx context.Context, req *CreateGroupOrderRequest) (*model.ClassAccount, error) {
	classAccount, err := s.classRepo.GetClassAccount(ctx, req.ClassAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrClassAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !classAccount.Enabled {
		return nil, ErrNotFound
	}

	ok, err := s.classRepo.IsOperator(ctx, classAccount.ID, req.OperatorUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: 非班级账户操作人", ErrForbidden)
	}

	if classAccount.AllowedIP != "" && classAccount.AllowedIP != req.RequestIP {
		return nil, fmt.Errorf("%w: 来源 IP %q 不在白名单", ErrForbidden, req.RequestIP)
	}
	return classAccount, nil
}

// buildItems 批量加载学生和个人账户，逐条校验
func (s *ClassOrderService) buildItems(ctx context.Context, classAccount *model.ClassAccount, inputs []GroupOrderItemInput) ([]*model.ClassGroupOrderItem, error) {
	studentIDs := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		studentIDs = append(studentIDs, in.StudentID)
	}
	students, err := s.classRepo.GetStudents(ctx, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("查询学生失败: %w", err)
	}

	userIDs := make([]int64, 0, len(students))
	for _, st := range students {
		userIDs = append(userIDs, st.UserID)
	}
	accounts, err := s.accountRepo.GetPersonalByOwners(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("查询学生账户失败: %w", err)
	}

	items := make([]*model.ClassGroupOrderItem, 0, len(inputs))
	for _, in := range inputs {
		item := &model.ClassGroupOrderItem{
			StudentID: in.StudentID,
			ProductID: in.ProductID,
			Amount:    in.Amount,
			Status:    model.ItemStatusPending,
		}
		student, ok := students[in.StudentID]
		switch {
		case !ok:
			item.Status = model.ItemStatusFailed
			item.FailReason = CodeStudentNotFound
		case student.ClassID != classAccount.ClassID:
			item.Status = model.ItemStatusFailed
			item.FailReason = CodeNotSameClass
		default:
			account, found := accounts[student.UserID]
			if !found {
				item.Status = model.ItemStatusFailed
				item.FailReason = CodeNoPersonalAccount
			} else {
				item.AccountID = account.ID
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// finalize 汇总明细结果，在一个事务中写入订单和全部明细
func (s *ClassOrderService) finalize(ctx context.Context, order *model.ClassGroupOrder, items []*model.ClassGroupOrderItem) (*GroupOrderSummary, error) {
	summary := &GroupOrderSummary{StudentCount: len(items), TotalAmount: decimal.Zero}
	for _, item := range items {
		if item.Status == model.ItemStatusSuccess {
			summary.SuccessCount++
			summary.TotalAmount = summary.TotalAmount.Add(item.Amount)
		} else {
			summary.FailCount++
		}
	}
	summary.TotalAmount = money.Round2(summary.TotalAmount)
	order.Status = model.SettleStatus(summary.SuccessCount, len(items))
	order.TotalAmount = summary.TotalAmount

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reversed, err := s.txRepo.HasSourceType(ctx, tx, model.SourceTypeClassGroupOrder, order.ID, model.TransactionTypeRecharge)
		if err != nil {
			return err
		}
		if reversed {
			return ErrGroupOrderReversed
		}
		return s.classRepo.CreateWithItems(ctx, tx, order, items)
	})
	if err != nil {
		return nil, err
	}

	order.Items = items
	metrics.GetMetrics().OrdersTotal.WithLabelValues("class_group", order.Status).Inc()
	return summary, nil
}

func (s *ClassOrderService) GetGroupOrder(ctx context.Context, id int64) (*model.ClassGroupOrder, error) {
	order, err := s.classRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrGroupOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// ReverseOrphanDebits 退回没有对应团餐订单的扣款
//
// 团餐扣款在订单写入之前发生，进程在两者之间退出时会留下孤立的 CLASS_GROUP_ORDER 流水。
// 最后一笔流水早于 before 的来源按账户计算净扣款并充值退回，净额为 0 后不再被扫描到。
// 返回处理的来源数。
func (s *ClassOrderService) ReverseOrphanDebits(ctx context.Context, before time.Time, limit int) (int, error) {
	sourceIDs, err := s.classRepo.FindOrphanSourceIDs(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("查询孤立团餐流水失败: %w", err)
	}

	reversed := 0
	for _, sourceID := range sourceIDs {
		transactions, err := s.txRepo.FindBySource(ctx, nil, model.SourceTypeClassGroupOrder, sourceID)
		if err != nil {
			return reversed, fmt.Errorf("查询团餐流水失败: %w", err)
		}

		owed := make(map[int64]decimal.Decimal)
		var accountIDs []int64
		for _, t := range transactions {
			if _, ok := owed[t.AccountID]; !ok {
				accountIDs = append(accountIDs, t.AccountID)
			}
			owed[t.AccountID] = owed[t.AccountID].Sub(t.SignedAmount())
		}

		ok := true
		for _, accountID := range accountIDs {
			amount := money.Round2(owed[accountID])
			if !amount.IsPositive() {
				continue
			}
			res := s.ledger.Recharge(ctx, &BalanceChangeRequest{
				AccountID:   accountID,
				Amount:      amount,
				SourceType:  model.SourceTypeClassGroupOrder,
				SourceID:    sourceID,
				Description: "团餐订单未完成，退回扣款",
			})
			if !res.Success {
				ok = false
				s.log.WithContext(ctx).Errorf("团餐扣款退回失败: sourceID=%d, accountID=%d, code=%s", sourceID, accountID, res.ErrorCode)
			}
		}
		if ok {
			reversed++
			s.log.WithContext(ctx).Warnf("孤立团餐扣款已退回: sourceID=%d, accounts=%d", sourceID, len(accountIDs))
		}
	}
	return reversed, nil
}
