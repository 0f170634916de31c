package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/app/repository"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// Service drives customer resolution, card vaulting, purchases and refunds
// against an explicitly injected gateway registry. All financial state lives
// in the repositories; the service holds no mutable caches.
type Service struct {
	repos      *repository.Repositories
	registry   *gateway.Registry
	dispatcher events.Dispatcher
	validate   *validator.Validate
	locks      keyMutex
}

// NewService creates a billing service.
func NewService(repos *repository.Repositories, registry *gateway.Registry, dispatcher events.Dispatcher) *Service {
	return &Service{
		repos:      repos,
		registry:   registry,
		dispatcher: dispatcher,
		validate:   validator.New(),
	}
}

// resolveGateway maps a gateway name (or "" for the default) to a registry
// entry, translating resolution failures into configuration errors.
func (s *Service) resolveGateway(name string) (gateway.Entry, error) {
	entry, err := s.registry.Resolve(name)
	if err != nil {
		return gateway.Entry{}, NewConfigurationError("%v", err)
	}
	return entry, nil
}

// CreateCustomer resolves or lazily creates the gateway-side customer for a
// billable entity. Calling it twice for the same (billable, gateway) pair
// returns the same customer without a second gateway call.
func (s *Service) CreateCustomer(ctx context.Context, billableID uint, data CustomerData, gatewayName string) (*models.Customer, error) {
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	if err := s.validate.Struct(data); err != nil {
		return nil, NewValidationError("invalid customer data: %v", err)
	}

	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}

	// Serialize per (billable, gateway) so two concurrent calls cannot
	// both register the customer remotely.
	unlock := s.locks.Lock(fmt.Sprintf("customer:%d:%d", billableID, entry.Model.ID))
	defer unlock.Unlock()

	existing, err := s.repos.Customer.GetByBillableAndGateway(billableID, entry.Model.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	creator, ok := entry.Adapter.(gateway.CustomerCreator)
	if !ok {
		return nil, NewConfigurationError("gateway %q does not support customer creation", entry.Model.Name)
	}

	result, err := creator.CreateCustomer(ctx, billableID, data.Email)
	if err != nil {
		return nil, err
	}

	createdBy := data.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	customer := &models.Customer{
		GatewayID:          entry.Model.ID,
		BillableID:         billableID,
		Token:              result.CustomerReference,
		ExtendedAttributes: result.Data,
		CreatedBy:          createdBy,
		UpdatedBy:          createdBy,
	}
	if err := s.repos.Customer.Create(customer); err != nil {
		// A concurrent writer on another process may have won the unique
		// index race; fall back to the stored row.
		if existing, gerr := s.repos.Customer.GetByBillableAndGateway(billableID, entry.Model.ID); gerr == nil {
			return existing, nil
		}
		return nil, err
	}

	log.Infof("[Billing] Created customer %d for billable %d on gateway %s", customer.ID, billableID, entry.Model.Name)
	s.dispatcher.Dispatch(events.New(events.CustomerCreate, map[string]interface{}{
		"billable_id": billableID,
		"customer_id": customer.ID,
	}))
	return customer, nil
}

// GetCustomer retrieves the customer of a billable entity on the given (or
// default) gateway.
func (s *Service) GetCustomer(ctx context.Context, billableID uint, gatewayName string) (*models.Customer, error) {
	_ = ctx
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}
	return s.repos.Customer.GetByBillableAndGateway(billableID, entry.Model.ID)
}

// DeleteCustomer removes the billable entity's customer from the given
// gateway, or from every registered gateway when gatewayName is empty.
// With an empty gateway name deletion is best-effort per gateway.
func (s *Service) DeleteCustomer(ctx context.Context, billableID uint, gatewayName string) error {
	if billableID == 0 {
		return NewValidationError("empty billable id")
	}

	if gatewayName == "" {
		for _, entry := range s.registry.Entries() {
			if err := s.deleteCustomerOn(ctx, billableID, entry); err != nil {
				log.Warnf("[Billing] Delete customer for billable %d on gateway %s: %v", billableID, entry.Model.Name, err)
			}
		}
		return nil
	}

	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return err
	}
	return s.deleteCustomerOn(ctx, billableID, entry)
}

func (s *Service) deleteCustomerOn(ctx context.Context, billableID uint, entry gateway.Entry) error {
	deleter, ok := entry.Adapter.(gateway.CustomerDeleter)
	if !ok {
		return NewConfigurationError("gateway %q does not support customer deletion", entry.Model.Name)
	}

	customer, err := s.repos.Customer.GetByBillableAndGateway(billableID, entry.Model.ID)
	if err != nil {
		return err
	}

	if err := deleter.DeleteCustomer(ctx, customer.Token); err != nil {
		return err
	}
	if err := s.repos.Customer.Delete(customer); err != nil {
		return err
	}

	s.dispatcher.Dispatch(events.New(events.CustomerDelete, map[string]interface{}{
		"billable_id": billableID,
		"customer_id": customer.ID,
	}))
	return nil
}

// CreateCard registers a card with the gateway and vaults the returned
// reference. The billable entity's customer is created lazily when absent.
func (s *Service) CreateCard(ctx context.Context, billableID uint, card gateway.Card, gatewayName string) (*models.PaymentToken, error) {
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	if err := s.validate.Struct(card); err != nil {
		return nil, NewValidationError("invalid card data: %v", err)
	}

	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}
	creator, ok := entry.Adapter.(gateway.CardCreator)
	if !ok {
		return nil, NewConfigurationError("gateway %q does not support card registration", entry.Model.Name)
	}

	customer, err := s.CreateCustomer(ctx, billableID, CustomerData{Email: card.Email}, entry.Model.Name)
	if err != nil {
		return nil, err
	}

	result, err := creator.CreateCard(ctx, card, customer.Token)
	if err != nil {
		return nil, err
	}

	token, err := s.vaultCard(billableID, customer, card, result.CardReference)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(events.New(events.CardCreate, map[string]interface{}{
		"billable_id":      billableID,
		"payment_token_id": token.ID,
	}))
	return token, nil
}

// vaultCard creates or refreshes the PaymentToken record for a gateway card
// reference. The first token of a billable entity becomes the default.
func (s *Service) vaultCard(billableID uint, customer *models.Customer, card gateway.Card, cardReference string) (*models.PaymentToken, error) {
	unlock := s.locks.Lock(fmt.Sprintf("cards:%d", billableID))
	defer unlock.Unlock()

	expiry := models.CardExpiry(card.ExpiryMonth, card.ExpiryYear)
	now := time.Now().UTC()

	attrs := models.JSONMap{
		"payment_token": map[string]interface{}{
			"card": map[string]interface{}{
				"name":    card.Name(),
				"number":  card.LastFour(),
				"phone":   card.BillingPhone,
				"token":   cardReference,
				"expires": expiry.Format("2006-01-02"),
				"address": map[string]interface{}{
					"street":  card.BillingAddress1,
					"city":    card.BillingCity,
					"state":   card.BillingState,
					"country": card.BillingCountry,
					"zip":     card.BillingPostcode,
				},
			},
		},
	}

	existing, err := s.repos.PaymentToken.GetByToken(cardReference)
	if err == nil {
		existing.BillableID = billableID
		existing.CustomerID = customer.ID
		existing.ExtendedAttributes = attrs
		existing.StartDate = &now
		existing.ExpiryDate = &expiry
		if err := s.repos.PaymentToken.Update(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	count, err := s.repos.PaymentToken.CountByBillable(billableID)
	if err != nil {
		return nil, err
	}

	token := &models.PaymentToken{
		CustomerID:         customer.ID,
		BillableID:         billableID,
		Token:              cardReference,
		IsDefault:          count == 0,
		Brand:              cardBrand(card.Number),
		StartDate:          &now,
		ExpiryDate:         &expiry,
		ExtendedAttributes: attrs,
	}
	if err := s.repos.PaymentToken.Create(token); err != nil {
		return nil, err
	}
	return token, nil
}

// GetDefaultCard returns the default payment token of a billable entity.
func (s *Service) GetDefaultCard(ctx context.Context, billableID uint) (*models.PaymentToken, error) {
	_ = ctx
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	return s.repos.PaymentToken.GetDefault(billableID)
}

// GetCards returns all payment tokens of a billable entity.
func (s *Service) GetCards(ctx context.Context, billableID uint) ([]models.PaymentToken, error) {
	_ = ctx
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	return s.repos.PaymentToken.ListByBillable(billableID)
}

// SetDefaultCard moves the default flag to the token matching cardReference.
func (s *Service) SetDefaultCard(ctx context.Context, billableID uint, cardReference string) error {
	_ = ctx
	if billableID == 0 {
		return NewValidationError("empty billable id")
	}

	unlock := s.locks.Lock(fmt.Sprintf("cards:%d", billableID))
	defer unlock.Unlock()

	token, err := s.repos.PaymentToken.GetByTokenAndBillable(cardReference, billableID)
	if err != nil {
		return err
	}
	return s.repos.PaymentToken.SetDefault(billableID, token.ID)
}

// DeleteCard removes a vaulted card from the gateway and the vault. Deleting
// the card backing an ACTIVE subscription is a conflict. When the deleted
// card was the default, the most recently stored surviving token is
// promoted.
func (s *Service) DeleteCard(ctx context.Context, billableID uint, cardReference string) error {
	if billableID == 0 {
		return NewValidationError("empty billable id")
	}

	unlock := s.locks.Lock(fmt.Sprintf("cards:%d", billableID))
	defer unlock.Unlock()

	token, err := s.repos.PaymentToken.GetByTokenAndBillable(cardReference, billableID)
	if err != nil {
		return err
	}
	if token.Customer == nil {
		return NewValidationError("card has no attached customer record")
	}

	if sub, err := s.repos.Subscription.GetActiveByPaymentToken(token.ID); err == nil && sub != nil {
		return NewConflictError("an active subscription is using this card")
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	entry, err := s.gatewayByID(token.Customer.GatewayID)
	if err != nil {
		return err
	}
	deleter, ok := entry.Adapter.(gateway.CardDeleter)
	if !ok {
		return NewConfigurationError("gateway %q does not support card deletion", entry.Model.Name)
	}

	if err := deleter.DeleteCard(ctx, token.Token, token.Customer.Token); err != nil {
		return err
	}

	if err := s.repos.PaymentToken.Delete(token); err != nil {
		return err
	}

	if token.IsDefault {
		if err := s.promoteLatestToken(billableID); err != nil {
			return err
		}
	}

	s.dispatcher.Dispatch(events.New(events.CardDelete, map[string]interface{}{
		"billable_id":      billableID,
		"payment_token_id": token.ID,
	}))
	return nil
}

// promoteLatestToken marks the most recently stored surviving token as the
// default, keeping exactly one default while any token remains.
func (s *Service) promoteLatestToken(billableID uint) error {
	tokens, err := s.repos.PaymentToken.ListByBillable(billableID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	latest := tokens[len(tokens)-1]
	return s.repos.PaymentToken.SetDefault(billableID, latest.ID)
}

// FetchTransaction retrieves the gateway's record of a transaction, used to
// reconcile payments whose outcome is unknown.
func (s *Service) FetchTransaction(ctx context.Context, transactionReference, gatewayName string) (map[string]interface{}, error) {
	if transactionReference == "" {
		return nil, NewValidationError("empty transaction reference")
	}
	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}
	fetcher, ok := entry.Adapter.(gateway.TransactionFetcher)
	if !ok {
		return nil, NewConfigurationError("gateway %q does not support transaction lookup", entry.Model.Name)
	}
	return fetcher.FetchTransaction(ctx, transactionReference)
}

// cardBrand infers the card brand from the leading PAN digits. Gateways
// report the authoritative brand; this only seeds vault metadata.
func cardBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "5"):
		return "mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	case strings.HasPrefix(number, "6"):
		return "discover"
	}
	return ""
}

// gatewayByID resolves a registry entry from a stored gateway record id.
func (s *Service) gatewayByID(gatewayID uint) (gateway.Entry, error) {
	for _, entry := range s.registry.Entries() {
		if entry.Model.ID == gatewayID {
			return entry, nil
		}
	}
	return gateway.Entry{}, NewConfigurationError("gateway id %d is not registered", gatewayID)
}
