package insurer

import (
	"time"

	"github.com/claimwise/platform/internal/shared/types"
)

// InsurerType defines the line of business an insurer operates in
type InsurerType string

const (
	InsurerTypeHealth   InsurerType = "HEALTH"
	InsurerTypeAccident InsurerType = "ACCIDENT"
	InsurerTypeTravel   InsurerType = "TRAVEL"
	InsurerTypeProperty InsurerType = "PROPERTY"
	InsurerTypeLife     InsurerType = "LIFE"
	InsurerTypeMulti    InsurerType = "MULTI_LINE"
)

// InsurerStatus defines the status of an insurer in the registry
type InsurerStatus string

const (
	InsurerStatusActive   InsurerStatus = "active"
	InsurerStatusInactive InsurerStatus = "inactive"
	InsurerStatusPending  InsurerStatus = "pending"
)

// Insurer is a registry entry for an insurance carrier claims can be
// filed with. The code is the stable key policy records and claims
// reference; sync adapters are looked up by it.
type Insurer struct {
	ID     types.ID      `json:"id"`
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Type   InsurerType   `json:"type"`
	Status InsurerStatus `json:"status"`

	Contact types.ContactInfo `json:"contact"`

	// Adapter names the claim status sync integration for this carrier;
	// empty means status updates are entered manually
	Adapter string `json:"adapter,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Syncable reports whether claim statuses can be pulled automatically
func (i Insurer) Syncable() bool {
	return i.Adapter != "" && i.Status == InsurerStatusActive
}

// CreateInsurerRequest is the request to register an insurer
type CreateInsurerRequest struct {
	Code    string            `json:"code" validate:"required,min=2,max=64"`
	Name    string            `json:"name" validate:"required,min=2,max=255"`
	Type    InsurerType       `json:"type" validate:"required"`
	Contact types.ContactInfo `json:"contact"`
	Adapter string            `json:"adapter,omitempty"`
}

// UpdateInsurerRequest is the request to update an insurer
type UpdateInsurerRequest struct {
	Name    *string            `json:"name,omitempty"`
	Status  *InsurerStatus     `json:"status,omitempty"`
	Contact *types.ContactInfo `json:"contact,omitempty"`
	Adapter *string            `json:"adapter,omitempty"`
}

// ListInsurersFilter defines filters for listing insurers
type ListInsurersFilter struct {
	Type   *InsurerType   `json:"type,omitempty"`
	Status *InsurerStatus `json:"status,omitempty"`
	Search string         `json:"search,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}
