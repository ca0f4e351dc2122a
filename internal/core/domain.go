// Package core holds the aviary domain types and the pure calculations over them.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	Gender          string
	BirdStatus      string
	PairStatus      string
	ClutchStatus    string
	DeviceStatus    string
	TransactionType string
)

const (
	Male          Gender = "male"
	Female        Gender = "female"
	UnknownGender Gender = "unknown"

	BirdActive   BirdStatus = "active"
	BirdInactive BirdStatus = "inactive"
	BirdSold     BirdStatus = "sold"
	BirdDeceased BirdStatus = "deceased"

	PairActive    PairStatus = "active"
	PairInactive  PairStatus = "inactive"
	PairSeparated PairStatus = "separated"

	ClutchIncubating ClutchStatus = "incubating"
	ClutchHatched    ClutchStatus = "hatched"
	ClutchFailed     ClutchStatus = "failed"

	DeviceActive      DeviceStatus = "active"
	DeviceInactive    DeviceStatus = "inactive"
	DeviceMaintenance DeviceStatus = "maintenance"

	Sale     TransactionType = "sale"
	Purchase TransactionType = "purchase"
	Expense  TransactionType = "expense"
)

type (
	Bird struct {
		ID            string     `json:"id"`
		Name          string     `json:"name"`
		Species       string     `json:"species"`
		Gender        Gender     `json:"gender"`
		BirthDate     Date       `json:"birth_date"`
		RingNumber    string     `json:"ring_number,omitempty"`
		ColorMutation string     `json:"color_mutation,omitempty"`
		Status        BirdStatus `json:"status"`
		FatherID      string     `json:"father_id,omitempty"`
		MotherID      string     `json:"mother_id,omitempty"`
		LicenseNumber string     `json:"license_number,omitempty"`
		LicenseExpiry Date       `json:"license_expiry"`
		// A non-zero purchase price marks the bird as bought; it is reported
		// as a purchase by the finance views.
		PurchasePrice    Money     `json:"purchase_price"`
		PurchaseCurrency string    `json:"purchase_currency,omitempty"`
		PurchaseDate     Date      `json:"purchase_date"`
		Notes            string    `json:"notes,omitempty"`
		CreatedAt        time.Time `json:"created_at"`
	}

	BreedingPair struct {
		ID            string     `json:"id"`
		PairName      string     `json:"pair_name"`
		MaleBirdID    string     `json:"male_bird_id"`
		FemaleBirdID  string     `json:"female_bird_id"`
		PairDate      Date       `json:"pair_date"`
		Status        PairStatus `json:"status"`
		LicenseNumber string     `json:"license_number,omitempty"`
		LicenseExpiry Date       `json:"license_expiry"`
		Notes         string     `json:"notes,omitempty"`
		CreatedAt     time.Time  `json:"created_at"`
	}

	Clutch struct {
		ID                string       `json:"id"`
		BreedingPairID    string       `json:"breeding_pair_id"`
		ClutchNumber      int          `json:"clutch_number"`
		EggLayingDate     Date         `json:"egg_laying_date"`
		EggsLaid          int          `json:"eggs_laid"`
		FertileEggs       int          `json:"fertile_eggs"`
		HatchedCount      int          `json:"hatched_count"`
		ExpectedHatchDate Date         `json:"expected_hatch_date"`
		IncubatorID       string       `json:"incubator_id,omitempty"`
		Status            ClutchStatus `json:"status"`
		HatchSuccessRate  *float64     `json:"hatch_success_rate"`
		Notes             string       `json:"notes,omitempty"`
		CreatedAt         time.Time    `json:"created_at"`
	}

	Incubator struct {
		ID               string       `json:"id"`
		Name             string       `json:"name"`
		Model            string       `json:"model,omitempty"`
		TemperatureRange string       `json:"temperature_range,omitempty"`
		HumidityRange    string       `json:"humidity_range,omitempty"`
		Status           DeviceStatus `json:"status"`
		Notes            string       `json:"notes,omitempty"`
		CreatedAt        time.Time    `json:"created_at"`
	}

	MonitoringEntry struct {
		ID          string    `json:"id"`
		IncubatorID string    `json:"incubator_id"`
		Date        Date      `json:"date"`
		RecordedAt  time.Time `json:"recorded_at"`
		Temperature *float64  `json:"temperature"`
		Humidity    *float64  `json:"humidity"`
		Notes       string    `json:"notes,omitempty"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Currency    string          `json:"currency"`
		Date        Date            `json:"date"`
		Category    string          `json:"category,omitempty"`
		Description string          `json:"description,omitempty"`
		BirdID      string          `json:"bird_id,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	Permit struct {
		ID               string    `json:"id"`
		PermitNumber     string    `json:"permit_number"`
		PermitType       string    `json:"permit_type,omitempty"`
		IssuingAuthority string    `json:"issuing_authority,omitempty"`
		Species          string    `json:"species,omitempty"`
		IssueDate        Date      `json:"issue_date"`
		ExpiryDate       Date      `json:"expiry_date"`
		Notes            string    `json:"notes,omitempty"`
		CreatedAt        time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty name")
	ErrEmptySpecies    = errors.New("empty species")
	ErrInvalidGender   = errors.New("invalid gender")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidCount    = errors.New("invalid egg count")
	ErrMissingRef      = errors.New("missing reference")
	ErrNoReading       = errors.New("no reading")
)

const maxTextLen = 200

func (g Gender) Valid() bool {
	switch g {
	case Male, Female, UnknownGender:
		return true
	}
	return false
}

func (s BirdStatus) Valid() bool {
	switch s {
	case BirdActive, BirdInactive, BirdSold, BirdDeceased:
		return true
	}
	return false
}

func (s PairStatus) Valid() bool {
	switch s {
	case PairActive, PairInactive, PairSeparated:
		return true
	}
	return false
}

func (s ClutchStatus) Valid() bool {
	switch s {
	case ClutchIncubating, ClutchHatched, ClutchFailed:
		return true
	}
	return false
}

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceActive, DeviceInactive, DeviceMaintenance:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case Sale, Purchase, Expense:
		return true
	}
	return false
}

func checkText(field, v string) error {
	if len(v) > maxTextLen {
		return fmt.Errorf("%s too long (max %d characters)", field, maxTextLen)
	}
	return nil
}

// IsPurchased reports whether the bird carries a purchase price.
func (b Bird) IsPurchased() bool {
	return b.PurchasePrice.Cents > 0
}

func (b Bird) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if err := checkText("name", b.Name); err != nil {
		return err
	}
	if strings.TrimSpace(b.Species) == "" {
		return ErrEmptySpecies
	}
	if !b.Gender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidGender, b.Gender)
	}
	if !b.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, b.Status)
	}
	if b.PurchasePrice.Cents < 0 {
		return ErrInvalidAmount
	}
	if b.IsPurchased() && !validCurrency(b.PurchaseCurrency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, b.PurchaseCurrency)
	}
	if b.FatherID != "" && b.FatherID == b.ID {
		return errors.New("bird cannot be its own father")
	}
	if b.MotherID != "" && b.MotherID == b.ID {
		return errors.New("bird cannot be its own mother")
	}
	return nil
}

func (p BreedingPair) Validate() error {
	if p.MaleBirdID == "" || p.FemaleBirdID == "" {
		return fmt.Errorf("%w: both birds are required", ErrMissingRef)
	}
	if p.MaleBirdID == p.FemaleBirdID {
		return errors.New("a pair needs two different birds")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	return checkText("pair name", p.PairName)
}

func (c Clutch) Validate() error {
	if c.BreedingPairID == "" {
		return fmt.Errorf("%w: breeding pair is required", ErrMissingRef)
	}
	if err := c.EggLayingDate.Validate(); err != nil {
		return fmt.Errorf("egg laying date: %w", err)
	}
	if c.EggsLaid < 0 || c.FertileEggs < 0 || c.HatchedCount < 0 {
		return ErrInvalidCount
	}
	if c.FertileEggs > c.EggsLaid || c.HatchedCount > c.EggsLaid {
		return fmt.Errorf("%w: cannot exceed eggs laid", ErrInvalidCount)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}
	if !c.ExpectedHatchDate.IsEmpty() && c.ExpectedHatchDate.Before(c.EggLayingDate) {
		return errors.New("expected hatch date is before egg laying date")
	}
	return nil
}

func (i Incubator) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, i.Status)
	}
	return checkText("name", i.Name)
}

func (m MonitoringEntry) Validate() error {
	if m.IncubatorID == "" {
		return fmt.Errorf("%w: incubator is required", ErrMissingRef)
	}
	if err := m.Date.Validate(); err != nil {
		return err
	}
	if m.Temperature == nil && m.Humidity == nil {
		return ErrNoReading
	}
	if m.Humidity != nil && (*m.Humidity < 0 || *m.Humidity > 100) {
		return fmt.Errorf("humidity out of range: %v (must be 0-100)", *m.Humidity)
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !validCurrency(t.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, t.Currency)
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := checkText("category", t.Category); err != nil {
		return err
	}
	return checkText("description", t.Description)
}

func (p Permit) Validate() error {
	if strings.TrimSpace(p.PermitNumber) == "" {
		return fmt.Errorf("%w: permit number is required", ErrMissingRef)
	}
	if !p.IssueDate.IsEmpty() && !p.ExpiryDate.IsEmpty() && p.ExpiryDate.Before(p.IssueDate) {
		return errors.New("expiry date is before issue date")
	}
	return nil
}

// validCurrency accepts three-letter alphabetic codes.
func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
