// Package estimation computes indicative sale prices and mortgage
// simulations for the public forms. Results are heuristics shown to
// prospects, not valuations.
package estimation

import (
	"errors"
	"math"
	"strings"
)

// PropertyType is the kind of property being estimated.
type PropertyType string

const (
	Apartment PropertyType = "appartement"
	House     PropertyType = "maison"
)

// Condition describes the state of the property.
type Condition string

const (
	ConditionNew      Condition = "neuf"
	ConditionGood     Condition = "bon_etat"
	ConditionRefresh  Condition = "rafraichir"
	ConditionRenovate Condition = "renover"
)

// Outdoor describes private outdoor space.
type Outdoor string

const (
	OutdoorNone    Outdoor = "aucun"
	OutdoorBalcony Outdoor = "balcon"
	OutdoorTerrace Outdoor = "terrasse"
	OutdoorGarden  Outdoor = "jardin"
)

var (
	ErrInvalidSurface    = errors.New("surface must be between 9 and 2000 m²")
	ErrInvalidPostalCode = errors.New("postal code must have 5 digits")
	ErrInvalidType       = errors.New("property type must be appartement or maison")
)

// Input is the property description sent by the estimation form.
type Input struct {
	PostalCode   string       `json:"postal_code"`
	City         string       `json:"city,omitempty"`
	PropertyType PropertyType `json:"property_type"`
	Surface      float64      `json:"surface"`
	Rooms        int          `json:"rooms"`
	Condition    Condition    `json:"condition"`
	Floor        int          `json:"floor"`
	Elevator     bool         `json:"elevator"`
	Outdoor      Outdoor      `json:"outdoor"`
	Parking      bool         `json:"parking"`
	DPE          string       `json:"dpe"` // energy class A..G
}

// Result is a price range in euros.
type Result struct {
	Low        float64 `json:"low"`
	Mid        float64 `json:"mid"`
	High       float64 `json:"high"`
	PricePerM2 float64 `json:"price_per_m2"`
	BasePerM2  float64 `json:"base_price_per_m2"`
	Confidence string  `json:"confidence"` // "haute" when the postal code is in the table
}

// Estimator holds the €/m² reference table.
type Estimator struct {
	defaultPerM2 float64
	perM2        map[string]float64
	spread       float64
}

// DefaultPrices are reference prices per département (first two digits of
// the postal code), used when config does not provide a table.
var DefaultPrices = map[string]float64{
	"75": 10200, "92": 7100, "94": 5300, "93": 4100, "78": 4700,
	"69": 4900, "13": 3900, "06": 5500, "33": 4500, "31": 3700,
	"44": 3800, "34": 3600, "35": 3700, "67": 3300, "59": 2800,
	"74": 5600, "64": 4100, "17": 3900, "83": 4700, "38": 2900,
}

// New creates an estimator. An empty table uses DefaultPrices.
func New(defaultPerM2 float64, perM2 map[string]float64, spread float64) *Estimator {
	if len(perM2) == 0 {
		perM2 = DefaultPrices
	}
	if defaultPerM2 <= 0 {
		defaultPerM2 = 3200
	}
	if spread <= 0 || spread >= 1 {
		spread = 0.08
	}
	return &Estimator{defaultPerM2: defaultPerM2, perM2: perM2, spread: spread}
}

// Validate checks the input without estimating.
func (in *Input) Validate() error {
	pc := strings.TrimSpace(in.PostalCode)
	if len(pc) != 5 || strings.Trim(pc, "0123456789") != "" {
		return ErrInvalidPostalCode
	}
	if in.Surface < 9 || in.Surface > 2000 {
		return ErrInvalidSurface
	}
	if in.PropertyType != Apartment && in.PropertyType != House {
		return ErrInvalidType
	}
	return nil
}

// Estimate returns a price range for the property.
func (e *Estimator) Estimate(in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	base, confidence := e.basePrice(strings.TrimSpace(in.PostalCode))
	perM2 := base * in.multiplier()
	mid := perM2 * in.Surface

	return &Result{
		Low:        roundTo(mid*(1-e.spread), 1000),
		Mid:        roundTo(mid, 1000),
		High:       roundTo(mid*(1+e.spread), 1000),
		PricePerM2: math.Round(perM2),
		BasePerM2:  base,
		Confidence: confidence,
	}, nil
}

func (e *Estimator) basePrice(postalCode string) (float64, string) {
	// Longer prefixes win so a config can price a city above its département.
	for n := 5; n >= 2; n-- {
		if p, ok := e.perM2[postalCode[:n]]; ok {
			return p, "haute"
		}
	}
	return e.defaultPerM2, "moyenne"
}

func (in *Input) multiplier() float64 {
	m := 1.0

	if in.PropertyType == House {
		m *= 0.92
	}

	switch in.Condition {
	case ConditionNew:
		m *= 1.10
	case ConditionRefresh:
		m *= 0.95
	case ConditionRenovate:
		m *= 0.85
	}

	if in.PropertyType == Apartment {
		switch {
		case in.Floor == 0:
			m *= 0.95
		case in.Floor >= 3 && !in.Elevator:
			m *= 0.93
		case in.Floor >= 3 && in.Elevator:
			m *= 1.03
		}
	}

	switch in.Outdoor {
	case OutdoorBalcony:
		m *= 1.03
	case OutdoorTerrace:
		m *= 1.07
	case OutdoorGarden:
		m *= 1.08
	}

	if in.Parking {
		m *= 1.04
	}

	switch strings.ToUpper(in.DPE) {
	case "A", "B":
		m *= 1.05
	case "F":
		m *= 0.92
	case "G":
		m *= 0.85
	}

	// Small units sell at a higher price per m².
	if in.Surface < 30 {
		m *= 1.08
	} else if in.Surface > 150 {
		m *= 0.95
	}

	return m
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}
