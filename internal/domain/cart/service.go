package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/identity"
)

// Service implements the cart operations on top of a Repository and the
// catalog read model.
type Service struct {
	carts    Repository
	variants catalog.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, variants catalog.Repository) *Service {
	return &Service{carts: carts, variants: variants}
}

// GetOrCreateActive resolves the caller's active cart, creating one lazily.
//
// An authenticated caller that still carries a session token may have a
// lingering guest cart from before login; on first access the guest cart's
// lines are merged into the user cart and the guest cart is deleted, all in
// one atomic step so a retried merge cannot double-count.
func (s *Service) GetOrCreateActive(ctx context.Context, ident identity.Identity) (*Cart, error) {
	if !ident.Valid() {
		return nil, errors.New("identity carries neither user nor session")
	}

	if !ident.Authenticated {
		return s.findOrCreate(ctx, Cart{SessionToken: ident.SessionToken})
	}

	userCart, err := s.findOrCreate(ctx, Cart{UserID: ident.UserID})
	if err != nil {
		return nil, err
	}

	if ident.SessionToken == "" {
		return userCart, nil
	}

	guestCart, err := s.carts.FindActiveBySession(ctx, ident.SessionToken)
	if errors.Is(err, ErrNotFound) {
		return userCart, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find guest cart")
	}
	if guestCart.ID == userCart.ID {
		return userCart, nil
	}

	if err := s.merge(ctx, userCart, guestCart); err != nil {
		return nil, err
	}
	return userCart, nil
}

func (s *Service) merge(ctx context.Context, userCart, guestCart *Cart) error {
	userItems, err := s.carts.Items(ctx, userCart.ID)
	if err != nil {
		return errors.Wrap(err, "load user cart items")
	}
	guestItems, err := s.carts.Items(ctx, guestCart.ID)
	if err != nil {
		return errors.Wrap(err, "load guest cart items")
	}

	merged := MergeItems(userItems, guestItems)
	for i := range merged {
		merged[i].CartID = userCart.ID
	}

	if err := s.carts.ApplyMerge(ctx, userCart.ID, guestCart.ID, merged); err != nil {
		return errors.Wrap(err, "apply cart merge")
	}

	subtotal, err := s.carts.RecomputeSubtotal(ctx, userCart.ID)
	if err != nil {
		return errors.Wrap(err, "recompute subtotal")
	}
	userCart.Subtotal = subtotal
	return nil
}

func (s *Service) findOrCreate(ctx context.Context, template Cart) (*Cart, error) {
	var (
		c   *Cart
		err error
	)
	if template.UserID != uuid.Nil {
		c, err = s.carts.FindActiveByUser(ctx, template.UserID)
	} else {
		c, err = s.carts.FindActiveBySession(ctx, template.SessionToken)
	}
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "find active cart")
	}

	template.ID = uuid.New()
	template.Status = StatusActive
	if err := s.carts.Create(ctx, &template); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return &template, nil
}

// AddItem adds qty units of a variant to the caller's active cart. Repeated
// adds increment the existing line. The unit price is re-snapshotted from the
// variant's current selling price on every add.
func (s *Service) AddItem(ctx context.Context, ident identity.Identity, variantID uuid.UUID, qty int) (*Item, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	v, err := s.variants.GetByID(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, &VariantUnavailableError{SKU: v.SKU}
	}

	c, err := s.GetOrCreateActive(ctx, ident)
	if err != nil {
		return nil, err
	}

	existing, err := s.findItem(ctx, c.ID, variantID)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return nil, err
	}

	it := Item{
		ID:        uuid.New(),
		CartID:    c.ID,
		VariantID: variantID,
		Quantity:  qty,
	}
	if existing != nil {
		it.ID = existing.ID
		it.Quantity = existing.Quantity + qty
	}
	it.SKU = v.SKU
	it.ProductName = v.ProductName
	it.UnitPrice = v.FinalPrice()
	it.LineTotal = it.UnitPrice.Mul(decimalFromInt(it.Quantity))

	if err := s.carts.UpsertItem(ctx, &it); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	if _, err := s.carts.RecomputeSubtotal(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "recompute subtotal")
	}
	return &it, nil
}

// UpdateItem sets the quantity of an existing line. A quantity of zero or
// less removes the line. The unit price is re-snapshotted.
func (s *Service) UpdateItem(ctx context.Context, ident identity.Identity, variantID uuid.UUID, qty int) (*Item, error) {
	c, err := s.GetOrCreateActive(ctx, ident)
	if err != nil {
		return nil, err
	}

	if qty < 1 {
		return nil, s.removeLine(ctx, c.ID, variantID)
	}

	existing, err := s.findItem(ctx, c.ID, variantID)
	if err != nil {
		return nil, err
	}

	v, err := s.variants.GetByID(ctx, variantID)
	if err != nil {
		return nil, err
	}

	existing.Quantity = qty
	existing.SKU = v.SKU
	existing.ProductName = v.ProductName
	existing.UnitPrice = v.FinalPrice()
	existing.LineTotal = existing.UnitPrice.Mul(decimalFromInt(qty))

	if err := s.carts.UpsertItem(ctx, existing); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	if _, err := s.carts.RecomputeSubtotal(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "recompute subtotal")
	}
	return existing, nil
}

// RemoveItem deletes a line from the caller's active cart.
func (s *Service) RemoveItem(ctx context.Context, ident identity.Identity, variantID uuid.UUID) error {
	c, err := s.GetOrCreateActive(ctx, ident)
	if err != nil {
		return err
	}
	return s.removeLine(ctx, c.ID, variantID)
}

func (s *Service) removeLine(ctx context.Context, cartID, variantID uuid.UUID) error {
	if err := s.carts.DeleteItem(ctx, cartID, variantID); err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	if _, err := s.carts.RecomputeSubtotal(ctx, cartID); err != nil {
		return errors.Wrap(err, "recompute subtotal")
	}
	return nil
}

// Items returns the lines of the caller's active cart.
func (s *Service) Items(ctx context.Context, ident identity.Identity) (*Cart, []Item, error) {
	c, err := s.GetOrCreateActive(ctx, ident)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart items")
	}
	return c, items, nil
}

// ValidateForCheckout checks that the cart is non-empty and that every line's
// variant is still active. It returns the lines on success.
func (s *Service) ValidateForCheckout(ctx context.Context, c *Cart) ([]Item, error) {
	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.VariantID
	}
	variants, err := s.variants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load variants")
	}
	active := make(map[uuid.UUID]bool, len(variants))
	for _, v := range variants {
		active[v.ID] = v.Active
	}

	for _, it := range items {
		if !active[it.VariantID] {
			return nil, &VariantUnavailableError{SKU: it.SKU}
		}
	}
	return items, nil
}

func (s *Service) findItem(ctx context.Context, cartID, variantID uuid.UUID) (*Item, error) {
	items, err := s.carts.Items(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}
	for i := range items {
		if items[i].VariantID == variantID {
			return &items[i], nil
		}
	}
	return nil, ErrItemNotFound
}
