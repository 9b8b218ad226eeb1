package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

var validate = validator.New()

// TestNotificationRequest carries optional synthetic events.
type TestNotificationRequest struct {
	Events []TestEvent `json:"events" validate:"omitempty,max=50,dive"`
}

// TestEvent is one synthetic drop. Prices are decimal strings.
type TestEvent struct {
	VendorID  string `json:"vendor_id" validate:"required"`
	ShipName  string `json:"ship_name" validate:"required"`
	SailDate  string `json:"sail_date"`
	DealCode  string `json:"deal_code"`
	DealName  string `json:"deal_name"`
	GradeCode string `json:"grade_code" validate:"required"`
	GradeName string `json:"grade_name"`
	PriceFrom string `json:"price_from" validate:"required,numeric"`
	PriceTo   string `json:"price_to" validate:"required,numeric"`
}

// Validate checks struct tags and that every event is an actual drop.
func (r TestNotificationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	for i, ev := range r.Events {
		from, _ := decimal.NewFromString(ev.PriceFrom)
		to, _ := decimal.NewFromString(ev.PriceTo)
		if !to.IsPositive() || !to.LessThan(from) {
			return fmt.Errorf("events[%d]: price_to must be positive and below price_from", i)
		}
	}
	return nil
}

// ToEvents converts the request into drop events stamped at.
func (r TestNotificationRequest) ToEvents(at time.Time) []offering.PriceDropEvent {
	events := make([]offering.PriceDropEvent, 0, len(r.Events))
	for _, ev := range r.Events {
		prev := offering.Offering{Price: decimal.RequireFromString(ev.PriceFrom)}
		cur := offering.Offering{
			Key:       offering.Key(ev.VendorID, ev.DealCode, ev.GradeCode),
			VendorID:  ev.VendorID,
			ShipName:  ev.ShipName,
			SailDate:  ev.SailDate,
			GradeCode: ev.GradeCode,
			GradeName: ev.GradeName,
			DealCode:  ev.DealCode,
			DealName:  ev.DealName,
			Price:     decimal.RequireFromString(ev.PriceTo),
		}
		events = append(events, offering.NewPriceDropEvent(prev, cur, at))
	}
	return events
}

// FormatValidationError renders the first validator error as a short message.
func FormatValidationError(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return err.Error()
	}
	fieldErr := validationErrors[0]
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Namespace())
	case "numeric":
		return fmt.Sprintf("%s must be a decimal number", fieldErr.Namespace())
	case "max":
		return fmt.Sprintf("%s allows at most %s items", fieldErr.Namespace(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fieldErr.Namespace(), fieldErr.Tag())
	}
}
