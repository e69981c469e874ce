package domain

import (
	"regexp"
	"time"

	"github.com/diagnosis/buildhub/internal/utils"
	"github.com/diagnosis/buildhub/pkg/apperr"
)

// Service is an entry of the bookable service catalog.
type Service struct {
	ID             int64     `json:"id"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	BasePriceCents int64     `json:"basePriceCents"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type CreateServiceRequest struct {
	Slug           string `json:"slug" validate:"required,max=80"`
	Name           string `json:"name" validate:"required,max=120"`
	Description    string `json:"description" validate:"max=2000"`
	Category       string `json:"category" validate:"max=80"`
	BasePriceCents int64  `json:"basePriceCents" validate:"gte=0"`
	Active         *bool  `json:"active"`
}

func (r *CreateServiceRequest) Normalize() {
	r.Slug = utils.NormalizeSlug(r.Slug)
	r.Name = utils.NormalizeName(r.Name)
	r.Category = utils.NormalizeString(r.Category)
}

func (r *CreateServiceRequest) CheckSlug() error {
	if !slugRe.MatchString(r.Slug) {
		return apperr.Validation("slug must be lowercase words separated by hyphens")
	}
	return nil
}

func (r *CreateServiceRequest) ToService() *Service {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &Service{
		Slug:           r.Slug,
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		BasePriceCents: r.BasePriceCents,
		Active:         active,
	}
}

type UpdateServiceRequest struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category       *string `json:"category,omitempty" validate:"omitempty,max=80"`
	BasePriceCents *int64  `json:"basePriceCents,omitempty" validate:"omitempty,gte=0"`
	Active         *bool   `json:"active,omitempty"`
}
