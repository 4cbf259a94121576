package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PlaceholderImage is shown wherever a media collection is empty.
const PlaceholderImage = "/public/file.svg"

var jsonNull = []byte("null")

// Text is a presentation string. Agents are not strict about scalar types,
// so numbers and booleans are kept as their literal JSON text.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case '{', '[':
		return fmt.Errorf("expected scalar, got %q", b[:1])
	}
	*t = Text(b)
	return nil
}

func (t Text) String() string { return string(t) }

// StringList is an ordered list of strings that tolerates null and a bare string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	}
	var xs []string
	if err := json.Unmarshal(b, &xs); err != nil {
		return err
	}
	*l = xs
	return nil
}

// MediaKind selects one of the three per-property galleries.
type MediaKind string

const (
	MediaPhotos       MediaKind = "main"
	MediaFloorPlans   MediaKind = "floor"
	MediaVirtualTours MediaKind = "virtual"
)

var MediaKinds = []MediaKind{MediaPhotos, MediaFloorPlans, MediaVirtualTours}

func (k MediaKind) IsValid() bool {
	for _, v := range MediaKinds {
		if k == v {
			return true
		}
	}
	return false
}

func (k MediaKind) Label() string {
	switch k {
	case MediaPhotos:
		return "Property Images"
	case MediaFloorPlans:
		return "Floor Plans"
	case MediaVirtualTours:
		return "Virtual Tour"
	default:
		return string(k)
	}
}

// Property is one listing pushed by the agent through initData.
type Property struct {
	PropertyID   Text `json:"property_id"`
	Title        Text `json:"title"`
	Price        Text `json:"price"`
	PropertyType Text `json:"property_type"`
	MarketedBy   Text `json:"marketed_by"`
	Status       Text `json:"status"`
	County       Text `json:"county"`
	Address      Text `json:"address"`

	Bedrooms      Text `json:"bedrooms"`
	FullBathrooms Text `json:"full_bathrooms"`
	TotalSqft     Text `json:"total_sqft"`
	LivingArea    Text `json:"living_area"`
	LotSize       Text `json:"lot_size"`
	LotSizeUnit   Text `json:"lot_size_unit"`

	Right                     Text       `json:"right"`
	Access                    StringList `json:"access"`
	Structure                 Text       `json:"structure"`
	LotCategory               Text       `json:"lot_category"`
	AreaDesignation           Text       `json:"area_designation"`
	AreaOfUse                 Text       `json:"area_of_use"`
	BuildingRatio             Text       `json:"building_ratio_and_floor_area_ratio"`
	FireProtectionDesignation Text       `json:"fire_protection_designation"`
	OtherRestrictions         Text       `json:"other_restrictions"`
	YearBuilt                 Text       `json:"year_built"`
	CurrentStatus             Text       `json:"current_status"`
	DeliveryDate              Text       `json:"delivery_date"`
	ModeOfTransaction         Text       `json:"mode_of_transaction"`

	Videos       Text       `json:"videos"`
	Images       StringList `json:"imgs"`
	FloorPlans   StringList `json:"floor_plan"`
	VirtualTours StringList `json:"virtual_tutor"`
}

// Media returns the gallery for kind; unknown kinds fall back to photos.
func (p Property) Media(kind MediaKind) StringList {
	switch kind {
	case MediaFloorPlans:
		return p.FloorPlans
	case MediaVirtualTours:
		return p.VirtualTours
	default:
		return p.Images
	}
}

// Thumbnail is the first photo or the placeholder.
func (p Property) Thumbnail() string {
	if len(p.Images) > 0 && p.Images[0] != "" {
		return p.Images[0]
	}
	return PlaceholderImage
}

// WrapIndex moves i by delta inside [0, n), wrapping at both ends.
func WrapIndex(i, delta, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i+delta)%n + n) % n
}
