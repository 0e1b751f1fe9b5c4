// Package payments issues payment links, sends payment emails and confirms
// payments, activating the purchased plan's modules on confirmation.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"endurancy/internal/engine/entitlements"
	"endurancy/internal/pkg/mail"
	"endurancy/internal/pkg/money"
	"endurancy/internal/pkg/validator"
	"endurancy/internal/platform/audit"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/database"
	"endurancy/internal/platform/metrics"
	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound     = errors.New("token invalid or expired")
	ErrReferenceNotFound = errors.New("organization or plan not found")
	ErrEmailDelivery     = errors.New("failed to send payment email")
)

const (
	actorPaymentLink = "payment-link"
	actorSystem      = "system"
)

type Service struct {
	db         *sql.DB
	orgs       *repositories.OrganizationRepository
	plans      *repositories.PlanRepository
	orders     *repositories.OrderRepository
	reconciler *entitlements.Reconciler
	mailer     mail.Mailer
	links      LinkCache
	audit      *audit.Logger
	metrics    *metrics.Metrics
	cfg        config.PaymentConfig
	now        func() time.Time
}

// NewService wires the payment flow. links, auditLog and m may be nil.
func NewService(db *sql.DB, reconciler *entitlements.Reconciler, mailer mail.Mailer, links LinkCache,
	auditLog *audit.Logger, m *metrics.Metrics, cfg config.PaymentConfig) *Service {
	if links == nil {
		links = NewMemoryLinkCache(cfg.LinkCacheTTL)
	}
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	return &Service{
		db:         db,
		orgs:       repositories.NewOrganizationRepository(db),
		plans:      repositories.NewPlanRepository(db),
		orders:     repositories.NewOrderRepository(db),
		reconciler: reconciler,
		mailer:     mailer,
		links:      links,
		audit:      auditLog,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

// PaymentLink is a confirmation URL for an (organization, plan) pair. Order
// is set when the link belongs to an existing pending order.
type PaymentLink struct {
	Token  string
	URL    string
	Reused bool
	Order  *models.Order
}

// OrderDetails is an order with the display names used in confirmation
// messages.
type OrderDetails struct {
	*models.Order
	OrganizationName string `json:"organization_name"`
	PlanName         string `json:"plan_name"`
}

type GenerateRequest struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	PlanID         string `json:"planId" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"max=200"`
}

type GenerateResult struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
	Reused  bool   `json:"reused"`
}

type Confirmation struct {
	Order            *OrderDetails
	AlreadyConfirmed bool
	Message          string
}

func (s *Service) confirmURL(token string) string {
	return strings.ReplaceAll(s.cfg.ConfirmURLTemplate, "{token}", token)
}

// IssueLink returns the token of the pending order for the pair when there is
// one and mints a new token otherwise. It never creates the order.
func (s *Service) IssueLink(ctx context.Context, orgID, planID string) (*PaymentLink, error) {
	if token, ok := s.links.Get(ctx, orgID, planID); ok {
		order, err := s.orders.GetLatestByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if order != nil && order.Status == models.OrderStatusPending &&
			order.OrganizationID == orgID && order.PlanID == planID {
			return &PaymentLink{Token: token, URL: s.confirmURL(token), Reused: true, Order: order}, nil
		}
		s.links.Delete(ctx, orgID, planID)
	}

	order, err := s.orders.GetPending(ctx, orgID, planID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		s.links.Set(ctx, orgID, planID, order.PaymentToken)
		return &PaymentLink{Token: order.PaymentToken, URL: s.confirmURL(order.PaymentToken), Reused: true, Order: order}, nil
	}

	token := uuid.NewString()
	return &PaymentLink{Token: token, URL: s.confirmURL(token)}, nil
}

// GeneratePaymentEmail creates (or reuses) the pending order for the pair and
// emails its confirmation link.
func (s *Service) GeneratePaymentEmail(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if org == nil || plan == nil {
		return nil, ErrReferenceNotFound
	}

	link, err := s.IssueLink(ctx, org.ID, plan.ID)
	if err != nil {
		return nil, err
	}

	order := link.Order
	if !link.Reused {
		order, err = s.createOrder(ctx, org, plan, link.Token, req)
		if err != nil {
			return nil, err
		}
		if order.PaymentToken != link.Token {
			link = &PaymentLink{Token: order.PaymentToken, URL: s.confirmURL(order.PaymentToken), Reused: true, Order: order}
		}
		s.links.Set(ctx, org.ID, plan.ID, order.PaymentToken)
	}

	body, err := renderPaymentEmail(paymentEmailData{
		CustomerName:     req.Name,
		OrganizationName: org.Name,
		PlanName:         plan.Name,
		Price:            money.FormatBRL(order.Amount),
		ConfirmURL:       link.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("render payment email: %w", err)
	}

	err = s.mailer.Send(ctx, mail.Message{To: req.Email, Subject: paymentEmailSubject(plan.Name), HTMLBody: body})
	if err != nil {
		s.metrics.PaymentEmail("failed")
		log.Error().Err(err).Str("org_id", org.ID).Str("plan_id", plan.ID).Str("order_id", order.ID).Msg("Payment email delivery failed")
		return nil, fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}

	s.metrics.PaymentEmail("sent")
	s.audit.Log(ctx, audit.Entry{
		OrganizationID: org.ID,
		Actor:          req.Email,
		Action:         audit.ActionPaymentEmailSent,
		ResourceType:   "order",
		ResourceID:     order.ID,
		Metadata:       map[string]interface{}{"plan_id": plan.ID, "reused": link.Reused},
	})
	log.Info().Str("org_id", org.ID).Str("plan_id", plan.ID).Str("order_id", order.ID).Bool("reused", link.Reused).Msg("Payment email sent")

	return &GenerateResult{Message: "Payment email sent successfully", OrderID: order.ID, Reused: link.Reused}, nil
}

// createOrder inserts the pending order. When a concurrent request already
// inserted one for the pair, that order is returned instead.
func (s *Service) createOrder(ctx context.Context, org *models.Organization, plan *models.Plan, token string, req GenerateRequest) (*models.Order, error) {
	now := s.now().Unix()
	order := &models.Order{
		ID:             "ord_" + uuid.NewString(),
		OrganizationID: org.ID,
		PlanID:         plan.ID,
		Status:         models.OrderStatusPending,
		PaymentToken:   token,
		Email:          req.Email,
		CustomerName:   req.Name,
		Amount:         plan.Price,
		Currency:       s.cfg.Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.orders.Create(ctx, order)
	if errors.Is(err, repositories.ErrDuplicate) {
		existing, err := s.orders.GetPending(ctx, org.ID, plan.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("pending order for %s/%s vanished after conflict", org.ID, plan.ID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Entry{
		OrganizationID: org.ID,
		Actor:          req.Email,
		Action:         audit.ActionOrderCreated,
		ResourceType:   "order",
		ResourceID:     order.ID,
		Metadata:       map[string]interface{}{"plan_id": plan.ID, "amount": order.Amount.String(), "currency": order.Currency},
	})
	return order, nil
}

// ConfirmPayment completes the order behind token, points the organization at
// the purchased plan and reconciles its modules, all in one transaction. If
// any step fails nothing is written and the same link can be retried.
func (s *Service) ConfirmPayment(ctx context.Context, token string) (*Confirmation, error) {
	order, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status == models.OrderStatusExpired {
		s.metrics.Confirmation("not_found")
		return nil, ErrOrderNotFound
	}

	org, err := s.orgs.GetByID(ctx, order.OrganizationID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, order.PlanID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCompleted {
		return s.alreadyConfirmed(order, org, plan), nil
	}
	if org == nil || plan == nil {
		s.metrics.Confirmation("reference_not_found")
		return nil, ErrReferenceNotFound
	}

	var (
		completed bool
		changes   []entitlements.Change
	)
	err = s.reconciler.WithLock(ctx, org.ID, func(ctx context.Context) error {
		return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			now := s.now().Unix()

			ok, err := s.orders.WithTx(tx).MarkCompleted(ctx, order.ID, now)
			if err != nil {
				return fmt.Errorf("complete order: %w", err)
			}
			if !ok {
				return nil
			}
			completed = true

			if err := s.orgs.WithTx(tx).SetPlan(ctx, org.ID, plan.ID, now); err != nil {
				return fmt.Errorf("set active plan: %w", err)
			}

			changes, err = s.reconciler.ReconcileTx(ctx, tx, org.ID, plan.ID)
			return err
		})
	})
	if err != nil {
		return nil, s.confirmationFailed(ctx, order, err)
	}

	if !completed {
		// another confirmation committed first
		latest, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil || latest.Status != models.OrderStatusCompleted {
			return nil, ErrOrderNotFound
		}
		return s.alreadyConfirmed(latest, org, plan), nil
	}

	s.reconciler.Record(changes, nil)
	entitlements.LogChanges(org.ID, plan.ID, changes)
	s.links.Delete(ctx, org.ID, plan.ID)
	s.metrics.Confirmation("confirmed")

	s.audit.Log(ctx, audit.Entry{
		OrganizationID: org.ID,
		Actor:          actorPaymentLink,
		Action:         audit.ActionOrderCompleted,
		ResourceType:   "order",
		ResourceID:     order.ID,
		Metadata:       map[string]interface{}{"plan_id": plan.ID},
	})
	s.audit.Log(ctx, audit.Entry{
		OrganizationID: org.ID,
		Actor:          actorPaymentLink,
		Action:         audit.ActionEntitlementsReconciled,
		ResourceType:   "plan",
		ResourceID:     plan.ID,
		Metadata:       map[string]interface{}{"order_id": order.ID, "changes": entitlements.Summarize(changes)},
	})
	log.Info().Str("order_id", order.ID).Str("org_id", org.ID).Str("plan_id", plan.ID).Int("changes", len(changes)).Msg("Payment confirmed")

	completedOrder, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &Confirmation{
		Order:   details(completedOrder, org, plan),
		Message: "Payment confirmed successfully",
	}, nil
}

func (s *Service) alreadyConfirmed(order *models.Order, org *models.Organization, plan *models.Plan) *Confirmation {
	s.metrics.Confirmation("already_confirmed")
	return &Confirmation{
		Order:            details(order, org, plan),
		AlreadyConfirmed: true,
		Message:          "Payment already confirmed",
	}
}

func (s *Service) confirmationFailed(ctx context.Context, order *models.Order, err error) error {
	var rf *entitlements.ReconciliationFailure
	if !errors.As(err, &rf) {
		s.metrics.Confirmation("failed")
		log.Error().Err(err).Str("order_id", order.ID).Msg("Payment confirmation failed")
		return fmt.Errorf("confirm payment: %w", err)
	}

	s.reconciler.Record(nil, err)
	s.metrics.Confirmation("activation_failed")
	s.audit.Log(ctx, audit.Entry{
		OrganizationID: order.OrganizationID,
		Actor:          actorPaymentLink,
		Action:         audit.ActionReconciliationFailed,
		ResourceType:   "order",
		ResourceID:     order.ID,
		Metadata:       map[string]interface{}{"plan_id": order.PlanID, "error": err.Error()},
	})
	log.Error().Err(err).Str("order_id", order.ID).Str("org_id", order.OrganizationID).Msg("Module activation failed, order left pending")
	return err
}

// GetDetails looks up the order behind token without changing it.
func (s *Service) GetDetails(ctx context.Context, token string) (*OrderDetails, error) {
	order, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status == models.OrderStatusExpired {
		return nil, ErrOrderNotFound
	}

	org, err := s.orgs.GetByID(ctx, order.OrganizationID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, order.PlanID)
	if err != nil {
		return nil, err
	}
	return details(order, org, plan), nil
}

// ExpireStaleOrders expires pending orders older than the configured TTL so
// their links stop working.
func (s *Service) ExpireStaleOrders(ctx context.Context) (int64, error) {
	if s.cfg.PendingOrderTTL <= 0 {
		return 0, nil
	}

	now := s.now()
	n, err := s.orders.ExpirePendingBefore(ctx, now.Add(-s.cfg.PendingOrderTTL).Unix(), now.Unix())
	if err != nil {
		return 0, err
	}

	s.metrics.OrdersExpired(n)
	if n > 0 {
		log.Info().Int64("expired", n).Str("actor", actorSystem).Msg("Expired stale pending orders")
	}
	return n, nil
}

func (s *Service) lookup(ctx context.Context, token string) (*models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return s.orders.GetLatestByToken(ctx, token)
}

func details(order *models.Order, org *models.Organization, plan *models.Plan) *OrderDetails {
	d := &OrderDetails{Order: order}
	if org != nil {
		d.OrganizationName = org.Name
	}
	if plan != nil {
		d.PlanName = plan.Name
	}
	return d
}

func logCacheError(err error, op string) {
	log.Warn().Err(err).Str("op", op).Msg("Payment link cache unavailable")
}
