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

// OrderService 个人下单与管理员批量下单
//
// 【下单流程】
//  1. 校验明细，一次查询解析启用商品
//  2. 获取或创建扣款账户
//  3. 事务一：写入订单（created）和明细（pending / PRODUCT_NOT_FOUND）
//  4. 按输入顺序逐条扣款，每次只持有一把账户锁，扣款与刷新订单 updated_at 在同一事务
//  5. 事务二：写回明细结果，订单推进到 success / partially_success / canceled
//
// 不预先校验余额，账本是余额的唯一判断依据
type OrderService struct {
	db          *gorm.DB
	cfg         *config.Config
	ledger      *LedgerService
	accounts    *AccountService
	orderRepo   *repository.OrderRepository
	productRepo *repository.ProductRepository
	txRepo      *repository.TransactionRepository
	log         *log.Helper
}

func NewOrderService(db *gorm.DB, cfg *config.Config, ledger *LedgerService, accounts *AccountService, logger log.Logger) *OrderService {
	return &OrderService{
		db:          db,
		cfg:         cfg,
		ledger:      ledger,
		accounts:    accounts,
		orderRepo:   repository.NewOrderRepository(db),
		productRepo: repository.NewProductRepository(db),
		txRepo:      repository.NewTransactionRepository(db),
		log:         log.NewHelper(log.With(logger, "module", "service/order")),
	}
}

type OrderItemInput struct {
	ProductID  int64  `json:"product_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"gte=0"` // 0 视为 1
	ItemRemark string `json:"item_remark"`
}

type CreatePersonalOrderRequest struct {
	UserID int64
	Items  []OrderItemInput
	Remark string
}

type BatchOrderTarget struct {
	UserID int64            `json:"user_id" binding:"required"`
	Items  []OrderItemInput `json:"items" binding:"dive"`
}

type CreateBatchOrderRequest struct {
	CreatorUserID int64
	Targets       []BatchOrderTarget
	Remark        string
}

// CreatePersonalOrder 个人下单，从本人个人账户扣款
func (s *OrderService) CreatePersonalOrder(ctx context.Context, req *CreatePersonalOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetOrCreatePersonal(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	order := &model.Order{
		OrderNo:       idgen.GenerateOrderNo(),
		OrderType:     model.OrderTypePersonal,
		CreatorUserID: userID,
		TargetUserID:  &userID,
		Remark:        req.Remark,
		TotalAmount:   decimal.Zero,
		Status:        model.OrderStatusCreated,
	}
	items := buildOrderItems(account, req.Items, products)

	return s.placeOrder(ctx, order, items, model.SourceTypeOrder, &userID)
}

// CreateBatchOrder 管理员为多个用户下单，一个订单，多个扣款账户
func (s *OrderService) CreateBatchOrder(ctx context.Context, req *CreateBatchOrderRequest) (*model.Order, error) {
	var all []OrderItemInput
	for _, t := range req.Targets {
		if t.UserID <= 0 {
			return nil, fmt.Errorf("%w: user_id 不合法", ErrInvalidParam)
		}
		all = append(all, t.Items...)
	}
	if len(all) == 0 {
		return nil, ErrEmptyItems
	}

	products, err := s.resolveProducts(ctx, all)
	if err != nil {
		return nil, err
	}

	var items []*model.OrderItem
	for _, t := range req.Targets {
		if len(t.Items) == 0 {
			continue
		}
		account, err := s.accounts.GetOrCreatePersonal(ctx, t.UserID)
		if err != nil {
			return nil, err
		}
		items = append(items, buildOrderItems(account, t.Items, products)...)
	}

	creator := req.CreatorUserID
	order := &model.Order{
		OrderNo:       idgen.GenerateOrderNo(),
		OrderType:     model.OrderTypeBatch,
		CreatorUserID: creator,
		Remark:        req.Remark,
		TotalAmount:   decimal.Zero,
		Status:        model.OrderStatusCreated,
	}

	return s.placeOrder(ctx, order, items, model.SourceTypeBatchOrder, &creator)
}

func (s *OrderService) resolveProducts(ctx context.Context, inputs []OrderItemInput) (map[int64]*model.Product, error) {
	ids := make([]int64, 0, len(inputs))
	seen := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if !seen[in.ProductID] {
			seen[in.ProductID] = true
			ids = append(ids, in.ProductID)
		}
	}
	products, err := s.productRepo.ResolveEnabled(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	return products, nil
}

// buildOrderItems 快照单价和金额；商品不存在或已停用的明细直接失败
func buildOrderItems(account *model.Account, inputs []OrderItemInput, products map[int64]*model.Product) []*model.OrderItem {
	items := make([]*model.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		quantity := in.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		item := &model.OrderItem{
			AccountID:    account.ID,
			TargetUserID: account.OwnerUserID,
			ProductID:    in.ProductID,
			Quantity:     quantity,
			ItemRemark:   in.ItemRemark,
			UnitPrice:    decimal.Zero,
			Amount:       decimal.Zero,
			Status:       model.ItemStatusPending,
		}
		product, ok := products[in.ProductID]
		if !ok {
			item.Status = model.ItemStatusFailed
			item.FailReason = CodeProductNotFound
		} else {
			categoryID := product.CategoryID
			item.CategoryID = &categoryID
			item.VendorID = product.VendorID
			item.UnitPrice = product.Price
			item.Amount = money.Round2(product.Price.Mul(decimal.NewFromInt(int64(quantity))))
		}
		items = append(items, item)
	}
	return items
}

func (s *OrderService) placeOrder(ctx context.Context, order *model.Order, items []*model.OrderItem, sourceType string, operator *int64) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.orderRepo.CreateWithItems(ctx, tx, order, items)
	})
	if err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	for _, item := range items {
		if item.Status != model.ItemStatusPending {
			continue
		}
		res, err := s.chargeItem(ctx, order, &BalanceChangeRequest{
			AccountID:      item.AccountID,
			Amount:         item.Amount,
			SourceType:     sourceType,
			SourceID:       order.ID,
			OperatorUserID: operator,
			Description:    fmt.Sprintf("早餐订单 %s", order.OrderNo),
		})
		if errors.Is(err, ErrOrderAlreadySettled) {
			s.log.WithContext(ctx).Errorf("订单已被补偿结算，停止扣款: orderNo=%s", order.OrderNo)
			return nil, err
		}
		if err != nil {
			s.log.WithContext(ctx).Errorf("明细扣款失败: orderNo=%s, accountID=%d, err=%v", order.OrderNo, item.AccountID, err)
			res = failResult(CodeInternalError, err.Error())
		}
		if res.Success {
			transactionID := res.TransactionID
			item.Status = model.ItemStatusSuccess
			item.TransactionID = &transactionID
		} else {
			item.Status = model.ItemStatusFailed
			item.FailReason = res.ErrorCode
		}
	}

	if err := s.finalize(ctx, order, items); err != nil {
		// 订单停留在 created，由 OrderSweepJob 按流水补偿
		s.log.WithContext(ctx).Errorf("订单结算失败: orderNo=%s, err=%v", order.OrderNo, err)
		return nil, fmt.Errorf("订单结算失败: %w", err)
	}

	s.log.WithContext(ctx).Infof("订单完成: orderNo=%s, type=%s, status=%s, total=%s",
		order.OrderNo, order.OrderType, order.Status, money.Format(order.TotalAmount))
	return order, nil
}

// chargeItem 单条明细扣款
//
// 持有账户锁，在同一事务中先刷新订单 updated_at 再扣款。刷新语句锁住订单行，
// 与 ReconcileStale 互斥；订单已离开 created 时返回 ErrOrderAlreadySettled 且不扣款。
func (s *OrderService) chargeItem(ctx context.Context, order *model.Order, req *BalanceChangeRequest) (*BalanceChangeResult, error) {
	unlock, err := s.ledger.LockAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *BalanceChangeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.orderRepo.Touch(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("刷新订单进度失败: %w", err)
		}
		if !active {
			return ErrOrderAlreadySettled
		}
		res = s.ledger.ConsumeWithTx(ctx, tx, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// finalize 在一个事务中写回明细并推进订单状态
func (s *OrderService) finalize(ctx context.Context, order *model.Order, items []*model.OrderItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.settle(ctx, tx, order, items)
	})
	if err != nil {
		return err
	}
	metrics.GetMetrics().OrdersTotal.WithLabelValues(orderKind(order.OrderType), order.Status).Inc()
	return nil
}

func (s *OrderService) settle(ctx context.Context, tx *gorm.DB, order *model.Order, items []*model.OrderItem) error {
	successCount := 0
	total := decimal.Zero
	for _, item := range items {
		if item.Status == model.ItemStatusSuccess {
			successCount++
			total = total.Add(item.Amount)
		}
	}
	total = money.Round2(total)
	status := model.SettleStatus(successCount, len(items))

	for _, item := range items {
		if err := s.orderRepo.UpdateItemResult(ctx, tx, item); err != nil {
			return fmt.Errorf("更新订单明细失败: %w", err)
		}
	}
	if err := s.orderRepo.Settle(ctx, tx, order.ID, model.OrderStatusCreated, status, total); err != nil {
		return err
	}

	order.Status = status
	order.TotalAmount = total
	order.Items = items
	return nil
}

func orderKind(orderType string) string {
	if orderType == model.OrderTypeBatch {
		return "batch"
	}
	return "personal"
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	return s.orderRepo.ListByUser(ctx, userID, page, pageSize)
}

// ReconcileStale 补偿长时间停留在 created 的订单
//
// 进程在扣款之后、结算之前退出时会留下这类订单。事务内先锁订单行并确认订单仍为 created
// 且 before 之后没有进展，否则返回 ErrOrderNotStale；与下单流程的 chargeItem 互斥。
// pending 明细按 (来源、账户、金额) 匹配尚未认领的 CONSUME 流水，匹配到即成功，否则记为 INTERRUPTED。
func (s *OrderService) ReconcileStale(ctx context.Context, order *model.Order, before time.Time) error {
	sourceType := model.SourceTypeOrder
	if order.OrderType == model.OrderTypeBatch {
		sourceType = model.SourceTypeBatchOrder
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orderRepo.GetByIDForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != model.OrderStatusCreated || !locked.UpdatedAt.Before(before) {
			return ErrOrderNotStale
		}

		items, err := s.orderRepo.ListItems(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("查询订单明细失败: %w", err)
		}
		transactions, err := s.txRepo.FindBySource(ctx, tx, sourceType, order.ID)
		if err != nil {
			return fmt.Errorf("查询订单流水失败: %w", err)
		}

		claimed := make(map[int64]bool, len(transactions))
		for _, item := range items {
			if item.Status != model.ItemStatusPending {
				continue
			}
			if t := matchConsume(transactions, claimed, item.AccountID, item.Amount); t != nil {
				transactionID := t.ID
				item.Status = model.ItemStatusSuccess
				item.TransactionID = &transactionID
			} else {
				item.Status = model.ItemStatusFailed
				item.FailReason = CodeInterrupted
			}
		}
		return s.settle(ctx, tx, order, items)
	})
	if err != nil {
		return err
	}
	metrics.GetMetrics().OrdersTotal.WithLabelValues(orderKind(order.OrderType), order.Status).Inc()
	return nil
}

// matchConsume 找到第一笔未认领的匹配扣款流水并标记认领
func matchConsume(transactions []*model.AccountTransaction, claimed map[int64]bool, accountID int64, amount decimal.Decimal) *model.AccountTransaction {
	for _, t := range transactions {
		if claimed[t.ID] || t.Type != model.TransactionTypeConsume {
			continue
		}
		if t.AccountID == accountID && t.Amount.Equal(amount) {
			claimed[t.ID] = true
			return t
		}
	}
	return nil
}
