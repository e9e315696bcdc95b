package handler

import (
	"strconv"

	"breakfastledger/internal/config"
	"breakfastledger/internal/infrastructure/lock"
	"breakfastledger/internal/model"
	"breakfastledger/internal/service"
	"breakfastledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService      *service.AccountService
	ledgerService       *service.LedgerService
	notificationService *service.NotificationService
	orderService        *service.OrderService
	classOrderService   *service.ClassOrderService
	rechargeService     *service.RechargeService
	log                 *log.Helper
}

// Services 处理器依赖的服务集合
type Services struct {
	Account      *service.AccountService
	Ledger       *service.LedgerService
	Notification *service.NotificationService
	Order        *service.OrderService
	ClassOrder   *service.ClassOrderService
	Recharge     *service.RechargeService
}

// BuildServices 按依赖顺序创建服务：通知 -> 风险 -> 账本 -> 编排
func BuildServices(db *gorm.DB, cfg *config.Config, locker lock.AccountLocker, logger log.Logger) *Services {
	notification := service.NewNotificationService(db, cfg, logger)
	risk := service.NewRiskService(db, notification, logger)
	ledger := service.NewLedgerService(db, cfg, locker, risk, logger)
	accounts := service.NewAccountService(db, cfg)
	return &Services{
		Account:      accounts,
		Ledger:       ledger,
		Notification: notification,
		Order:        service.NewOrderService(db, cfg, ledger, accounts, logger),
		ClassOrder:   service.NewClassOrderService(db, cfg, ledger, logger),
		Recharge:     service.NewRechargeService(db, cfg, ledger, accounts, logger),
	}
}

// NewHandler 创建处理器实例
func NewHandler(svc *Services, logger log.Logger) *Handler {
	return &Handler{
		accountService:      svc.Account,
		ledgerService:       svc.Ledger,
		notificationService: svc.Notification,
		orderService:        svc.Order,
		classOrderService:   svc.ClassOrder,
		rechargeService:     svc.Recharge,
		log:                 log.NewHelper(log.With(logger, "module", "handler")),
	}
}

// fail 把服务层错误映射为响应码
func (h *Handler) fail(c *gin.Context, err error) {
	reason := service.CodeOf(err)
	switch reason {
	case service.CodeNotFound:
		response.ErrorWithReason(c, response.CodeNotFound, reason, err.Error())
	case service.CodeForbidden:
		response.ErrorWithReason(c, response.CodeForbidden, reason, err.Error())
	case service.CodeClassOrderLimitExceeded:
		response.ErrorWithReason(c, response.CodeClassOrderLimit, reason, err.Error())
	case service.CodeInvalidAmount:
		response.ErrorWithReason(c, response.CodeInvalidAmount, reason, err.Error())
	case service.CodeInsufficientFunds:
		response.ErrorWithReason(c, response.CodeInsufficientFunds, reason, err.Error())
	case service.CodeInvalidParam:
		response.ErrorWithReason(c, response.CodeParamError, reason, err.Error())
	default:
		h.log.WithContext(c.Request.Context()).Errorf("请求处理失败: %s %s: %v", c.Request.Method, c.FullPath(), err)
		response.ErrorWithReason(c, response.CodeServerError, service.CodeInternalError, "服务器内部错误")
	}
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 账户相关接口
// ============================================================

// GetMyAccount 当前用户的个人账户
// GET /api/v1/account/me
func (h *Handler) GetMyAccount(c *gin.Context) {
	account, err := h.accountService.GetMyAccount(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, account)
}

// ListTransactions 账户流水，仅账户本人或管理员可查
// GET /api/v1/account/:id/transactions?limit=50
func (h *Handler) ListTransactions(c *gin.Context) {
	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	account, err := h.accountService.GetAccount(ctx, accountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if account.OwnerUserID != currentUserID(c) && !isAdmin(c) {
		h.fail(c, service.ErrForbidden)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.accountService.ListTransactions(ctx, accountID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// ListNotifications 当前用户的通知
// GET /api/v1/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	list, err := h.notificationService.ListNotifications(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// 订单相关接口
// ============================================================

type CreateOrderRequest struct {
	Items  []service.OrderItemInput `json:"items" binding:"required,min=1,dive"`
	Remark string                   `json:"remark"`
}

// CreateOrder 个人下单
// POST /api/v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreatePersonalOrder(c.Request.Context(), &service.CreatePersonalOrderRequest{
		UserID: currentUserID(c),
		Items:  req.Items,
		Remark: req.Remark,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrder 订单详情，仅下单人、目标用户或管理员可查
// GET /api/v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !canViewOrder(c, order) {
		h.fail(c, service.ErrForbidden)
		return
	}
	response.Success(c, order)
}

func canViewOrder(c *gin.Context, order *model.Order) bool {
	userID := currentUserID(c)
	if order.CreatorUserID == userID || isAdmin(c) {
		return true
	}
	for _, item := range order.Items {
		if item.TargetUserID == userID {
			return true
		}
	}
	return false
}

// ListOrders 当前用户的订单
// GET /api/v1/orders?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type CreateBatchOrderRequest struct {
	Targets []service.BatchOrderTarget `json:"targets" binding:"required,min=1,dive"`
	Remark  string                     `json:"remark"`
}

// CreateBatchOrder 管理员批量下单
// POST /api/v1/admin/batch-orders
func (h *Handler) CreateBatchOrder(c *gin.Context) {
	var req CreateBatchOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateBatchOrder(c.Request.Context(), &service.CreateBatchOrderRequest{
		CreatorUserID: currentUserID(c),
		Targets:       req.Targets,
		Remark:        req.Remark,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, order)
}

// ============================================================
// 班级团餐接口
// ============================================================

type CreateGroupOrderRequest struct {
	ClassAccountID int64                         `json:"class_account_id" binding:"required"`
	Items          []service.GroupOrderItemInput `json:"items" binding:"required,min=1,dive"`
	Remark         string                        `json:"remark"`
}

// CreateGroupOrder 班级团餐下单
// POST /api/v1/class-orders
func (h *Handler) CreateGroupOrder(c *gin.Context) {
	var req CreateGroupOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.classOrderService.CreateGroupOrder(c.Request.Context(), &service.CreateGroupOrderRequest{
		OperatorUserID: currentUserID(c),
		ClassAccountID: req.ClassAccountID,
		Items:          req.Items,
		Remark:         req.Remark,
		RequestIP:      c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 充值相关接口
// ============================================================

type CreateRechargeRequest struct {
	Amount          *decimal.Decimal `json:"amount" binding:"required"`
	PayMethod       string           `json:"pay_method" binding:"required"`
	VoucherImageURL string           `json:"voucher_image_url"`
}

// SubmitRecharge 提交充值申请
// POST /api/v1/recharge-requests
func (h *Handler) SubmitRecharge(c *gin.Context) {
	var req CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	rr, err := h.rechargeService.CreateRequest(c.Request.Context(), &service.CreateRechargeRequest{
		UserID:          currentUserID(c),
		Amount:          *req.Amount,
		PayMethod:       req.PayMethod,
		VoucherImageURL: req.VoucherImageURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, rr)
}

// ListRechargeRequests 充值申请列表
// GET /api/v1/admin/recharge-requests?status=pending&page=1&page_size=20
func (h *Handler) ListRechargeRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.rechargeService.ListRequests(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type ReviewRechargeRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Comment string `json:"comment"`
}

// ReviewRecharge 审核充值申请，必须携带 confirm=true
// POST /api/v1/admin/recharge-requests/:id/review?confirm=true
func (h *Handler) ReviewRecharge(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		response.ErrorWithReason(c, response.CodeConfirmRequired, "CONFIRM_REQUIRED", "请确认后再提交审核")
		return
	}

	var req ReviewRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	rr, err := h.rechargeService.ReviewRequest(c.Request.Context(), &service.ReviewRechargeRequest{
		RequestID:  id,
		ReviewerID: currentUserID(c),
		Approve:    *req.Approve,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, rr)
}

// ============================================================
// 管理员调账接口
// ============================================================

type AdjustmentRequest struct {
	Type   string           `json:"type"`
	Amount *decimal.Decimal `json:"amount" binding:"required"`
	Remark string           `json:"remark"`
}

// PostAdjustment 为用户补录流水
// POST /api/v1/admin/users/:id/transactions
func (h *Handler) PostAdjustment(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledgerService.PostAdjustment(c.Request.Context(), &service.AdjustmentRequest{
		AdminUserID:  currentUserID(c),
		TargetUserID: userID,
		Type:         req.Type,
		Amount:       *req.Amount,
		Remark:       req.Remark,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, trans)
}

type AmendTransactionRequest struct {
	Type   *string          `json:"type"`
	Amount *decimal.Decimal `json:"amount"`
	Remark *string          `json:"remark"`
}

// AmendTransaction 修改流水
// PUT /api/v1/admin/transactions/:id
func (h *Handler) AmendTransaction(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AmendTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledgerService.AmendTransaction(c.Request.Context(), id, &service.AmendRequest{
		Type:   req.Type,
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, trans)
}

// DeleteTransaction 删除流水
// DELETE /api/v1/admin/transactions/:id
func (h *Handler) DeleteTransaction(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.ledgerService.DeleteTransaction(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "status": "deleted"})
}
