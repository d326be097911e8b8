package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Mapping is the versioned column-position-to-meaning contract for one source
// system's export layout. The engine never hardcodes positions: it reads this
// document and projects the raw table through it. Changing the export layout
// means shipping a new mapping version, not touching code.
type Mapping struct {
	Version       int            `yaml:"version" validate:"required,min=1"`
	SourceSystem  string         `yaml:"source_system" validate:"required"`
	RawTable      string         `yaml:"raw_table" validate:"required,alphanum|containsany=_"`
	ReturnMarkers []string       `yaml:"return_markers" validate:"required,min=1,dive,required"`
	Columns       MappingColumns `yaml:"columns" validate:"required"`
}

// MappingColumns names the fixed projection of labeled columns the engine
// reads. Every value must be a raw position name (c01..c61); anything else is
// rejected before it can reach generated SQL.
type MappingColumns struct {
	SalespersonID  string `yaml:"salesperson_id" validate:"required,raw_column"`
	ProductID      string `yaml:"product_id" validate:"required,raw_column"`
	TransactionType string `yaml:"transaction_type" validate:"required,raw_column"`
	SystemDate     string `yaml:"system_date" validate:"required,raw_column"`
	InvoiceID      string `yaml:"invoice_id" validate:"required,raw_column"`
	CustomerID     string `yaml:"customer_id" validate:"required,raw_column"`
	Quantity       string `yaml:"quantity" validate:"required,raw_column"`
	UnitPrice      string `yaml:"unit_price" validate:"required,raw_column"`
	GrossAmount    string `yaml:"gross_amount" validate:"required,raw_column"`
	DiscountVolume string `yaml:"discount_volume" validate:"required,raw_column"`
	DiscountCash   string `yaml:"discount_cash" validate:"required,raw_column"`
	NetAmount      string `yaml:"net_amount" validate:"required,raw_column"`
	ReferenceDate  string `yaml:"reference_date" validate:"required,raw_column"`
}

var rawColumnPattern = regexp.MustCompile(`^c(0[1-9]|[1-5][0-9]|6[01])$`)

// LoadMapping reads and validates a mapping document.
func LoadMapping(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}

	var m Mapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}

	v := validator.New()
	if err := v.RegisterValidation("raw_column", func(fl validator.FieldLevel) bool {
		return rawColumnPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	if err := v.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid mapping %s: %w", path, err)
	}
	return &m, nil
}
