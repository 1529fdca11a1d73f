package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
)

var pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// AddressInput is a new delivery address.
type AddressInput struct {
	Label       string `json:"label"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	Pincode     string `json:"pincode"`
	IsDefault   bool   `json:"is_default"`
}

// AddressUpdate changes the non-nil fields of an address.
type AddressUpdate struct {
	Label       *string `json:"label"`
	AddressLine *string `json:"address_line"`
	City        *string `json:"city"`
	Pincode     *string `json:"pincode"`
	IsDefault   *bool   `json:"is_default"`
}

// AddressService manages the signed-in user's address book. At most one address is default.
type AddressService struct {
	store store.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewAddressService(st store.Store, log *zap.SugaredLogger) *AddressService {
	return &AddressService{store: st, log: log, now: time.Now}
}

func (s *AddressService) ListAddresses(ctx context.Context, sess session.Store) ([]models.Address, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	addresses, err := store.All[models.Address](ctx, s.store, models.TableAddresses, store.Query{
		Filter: store.Filter{"user_id": actor.ID},
		Order:  "created_at.asc",
	})
	if err != nil {
		return nil, storeErr("failed to fetch addresses", err)
	}
	if addresses == nil {
		addresses = []models.Address{}
	}
	return addresses, nil
}

func (s *AddressService) CreateAddress(ctx context.Context, sess session.Store, in AddressInput) (*models.Address, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	in.Label = strings.TrimSpace(in.Label)
	in.AddressLine = strings.TrimSpace(in.AddressLine)
	in.City = strings.TrimSpace(in.City)
	if in.AddressLine == "" || in.City == "" {
		return nil, invalid("address_line", "address_line and city are required")
	}
	if !pincodePattern.MatchString(in.Pincode) {
		return nil, invalid("pincode", "pincode must be 6 digits")
	}

	if in.IsDefault {
		if err := s.clearDefault(ctx, actor.ID); err != nil {
			return nil, err
		}
	}

	address := &models.Address{
		BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: s.now()},
		UserID:      actor.ID,
		Label:       in.Label,
		AddressLine: in.AddressLine,
		City:        in.City,
		Pincode:     in.Pincode,
		IsDefault:   in.IsDefault,
	}
	if err := s.store.Insert(ctx, models.TableAddresses, address); err != nil {
		s.log.Errorw("address insert failed", "user_id", actor.ID, "error", err)
		return nil, storeErr("failed to create address", err)
	}
	return address, nil
}

func (s *AddressService) UpdateAddress(ctx context.Context, sess session.Store, id uuid.UUID, in AddressUpdate) error {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if in.Label != nil {
		updates["label"] = strings.TrimSpace(*in.Label)
	}
	if in.AddressLine != nil {
		updates["address_line"] = strings.TrimSpace(*in.AddressLine)
	}
	if in.City != nil {
		updates["city"] = strings.TrimSpace(*in.City)
	}
	if in.Pincode != nil {
		if !pincodePattern.MatchString(*in.Pincode) {
			return invalid("pincode", "pincode must be 6 digits")
		}
		updates["pincode"] = *in.Pincode
	}
	if in.IsDefault != nil {
		updates["is_default"] = *in.IsDefault
	}
	if len(updates) == 0 {
		return invalid("body", "no fields to update")
	}

	if in.IsDefault != nil && *in.IsDefault {
		existing, err := store.First[models.Address](ctx, s.store, models.TableAddresses, store.Query{
			Filter: store.Filter{"id": id, "user_id": actor.ID},
		})
		if err != nil {
			return storeErr("failed to update address", err)
		}
		if existing == nil {
			return fmt.Errorf("address %s: %w", id, ErrNotFound)
		}
		if err := s.clearDefault(ctx, actor.ID); err != nil {
			return err
		}
	}

	n, err := s.store.Update(ctx, models.TableAddresses, store.Filter{"id": id, "user_id": actor.ID}, updates)
	if err != nil {
		s.log.Errorw("address update failed", "address_id", id, "error", err)
		return storeErr("failed to update address", err)
	}
	if n == 0 {
		return fmt.Errorf("address %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAddress removes an address. Deleting a missing address is not an error.
func (s *AddressService) DeleteAddress(ctx context.Context, sess session.Store, id uuid.UUID) error {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, models.TableAddresses, store.Filter{"id": id, "user_id": actor.ID}); err != nil {
		s.log.Errorw("address delete failed", "address_id", id, "error", err)
		return storeErr("failed to delete address", err)
	}
	return nil
}

func (s *AddressService) clearDefault(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.store.Update(ctx, models.TableAddresses,
		store.Filter{"user_id": userID, "is_default": true},
		map[string]any{"is_default": false}); err != nil {
		s.log.Errorw("address default reset failed", "user_id", userID, "error", err)
		return storeErr("failed to update default address", err)
	}
	return nil
}
