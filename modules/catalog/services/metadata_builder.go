package services

import (
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/gamesync/modules/catalog/domain/catalog"
	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/pkg/normalize"
)

// Spreadsheet columns read by the sync.
const (
	ColumnGameCode   = "Game Code"
	ColumnVenture    = "Venture"
	ColumnVolatility = "Volatility"
	ColumnRTP        = "RTP"
	ColumnMaxWin     = "Max Win"
	ColumnMinBet     = "Min Bet"
	ColumnMaxBet     = "Max Bet"
	ColumnFeatures   = "Features"
	ColumnThemes     = "Themes"
	ColumnGameType   = "Game Type"
	ColumnCasinoType = "Casino Type"
	ColumnJackpot    = "Jackpot"
	ColumnDemo       = "Demo"
	ColumnProvider   = "Provider"
	ColumnPaylines   = "Paylines"
)

// Entry fields written by the sync.
const (
	FieldVolatility    = "volatility"
	FieldRTP           = "rtp"
	FieldMaxMultiplier = "maxMultiplier"
	FieldMinBet        = "minBet"
	FieldMaxBet        = "maxBet"
	FieldFeatures      = "features"
	FieldThemes        = "themes"
	FieldGameType      = "gameType"
	FieldCasinoType    = "casinoType"
	FieldJackpot       = "jackpot"
	FieldDemoAvailable = "demoAvailable"
	FieldProvider      = "provider"
	FieldPaylines      = "paylines"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// MetadataBuilder turns one row into a partial update. It is pure: blank or
// unparsable cells are omitted from the payload, never reported as errors.
type MetadataBuilder struct {
	catalog  *catalog.Catalog
	currency *money.Currency
}

func NewMetadataBuilder(c *catalog.Catalog, currencyCode string) (*MetadataBuilder, error) {
	if c == nil {
		c = catalog.Default()
	}
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	cur := money.GetCurrency(code)
	if cur == nil {
		return nil, errors.Wrapf(ErrUnknownCurrency, "%q", currencyCode)
	}
	return &MetadataBuilder{catalog: c, currency: cur}, nil
}

func (b *MetadataBuilder) Build(row gamerow.Row) gamerow.Payload {
	var fields []gamerow.Field
	add := func(name string, value any) {
		fields = append(fields, gamerow.Field{Name: name, Value: value})
	}

	if raw, ok := cell(row, ColumnVolatility); ok {
		if v := normalize.Value(raw, b.catalog.Volatility()); v != "" {
			add(FieldVolatility, v)
		}
	}
	if raw, ok := cell(row, ColumnRTP); ok {
		if v, ok := normalize.Float(raw); ok {
			add(FieldRTP, v)
		}
	}
	if raw, ok := cell(row, ColumnMaxWin); ok {
		if v, ok := normalize.Float(raw); ok {
			add(FieldMaxMultiplier, v)
		}
	}
	if raw, ok := cell(row, ColumnMinBet); ok {
		if v, ok := b.formatBet(raw); ok {
			add(FieldMinBet, v)
		}
	}
	if raw, ok := cell(row, ColumnMaxBet); ok {
		if v, ok := b.formatBet(raw); ok {
			add(FieldMaxBet, v)
		}
	}
	if raw, ok := cell(row, ColumnFeatures); ok {
		if v := normalize.CSV(raw, b.catalog.Features()); len(v) > 0 {
			add(FieldFeatures, v)
		}
	}
	if raw, ok := cell(row, ColumnThemes); ok {
		if v := normalize.CSV(raw, b.catalog.Themes()); len(v) > 0 {
			add(FieldThemes, v)
		}
	}

	gameType := ""
	if raw, ok := cell(row, ColumnGameType); ok {
		gameType = normalize.Value(raw, b.catalog.GameTypes())
		if gameType != "" {
			add(FieldGameType, gameType)
		}
	}

	if raw, ok := cell(row, ColumnJackpot); ok {
		add(FieldJackpot, normalize.Bool(raw, b.catalog.Truthy(), b.catalog.Invalid()))
	}
	if raw, ok := cell(row, ColumnDemo); ok {
		add(FieldDemoAvailable, normalize.Bool(raw, b.catalog.Truthy(), b.catalog.Invalid()))
	}
	if v := row.String(ColumnProvider); v != "" {
		add(FieldProvider, v)
	}
	if v := row.String(ColumnPaylines); v != "" {
		add(FieldPaylines, v)
	}

	if gameType == catalog.LiveCasino {
		if raw, ok := cell(row, ColumnCasinoType); ok {
			if v := normalize.Value(raw, b.catalog.CasinoTypes()); v != "" {
				add(FieldCasinoType, v)
			}
		}
	}

	return gamerow.NewPayload(fields...)
}

// cell returns the raw value of a column that is present and not blank.
func cell(row gamerow.Row, column string) (any, bool) {
	if !row.Has(column) {
		return nil, false
	}
	return row.Get(column)
}

// formatBet renders a bet amount in the builder currency, e.g. "0.1" as
// "£0.10". Amounts are rounded to the currency's minor unit.
func (b *MetadataBuilder) formatBet(raw any) (string, bool) {
	amount, ok := parseAmount(raw)
	if !ok || amount.IsNegative() {
		return "", false
	}
	minor := amount.Shift(int32(b.currency.Fraction)).Round(0)
	if minor.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return "", false
	}
	return money.New(minor.IntPart(), b.currency.Code).Display(), true
}

const maxMinorUnits = 1 << 53

func parseAmount(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	}
	s, ok := normalize.String(raw)
	if !ok {
		return decimal.Decimal{}, false
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == '-':
			sb.WriteRune(r)
		case r == ',', unicode.IsSpace(r), unicode.Is(unicode.Sc, r), unicode.IsLetter(r):
			// thousands separators, currency symbols and codes
		default:
			return decimal.Decimal{}, false
		}
	}
	cleaned := sb.String()
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
