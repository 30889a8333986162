package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const (
	// TextSentinel fills mandatory short-text columns nobody supplied.
	TextSentinel = "N/A"
	// PlaceholderDocument fills mandatory large-text columns nobody supplied.
	PlaceholderDocument = `<?xml version="1.0" encoding="UTF-8"?><Placeholder/>`
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Synthesizer decides the value written to a column.
type Synthesizer struct {
	now    func() time.Time
	logger *zap.Logger
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithClock overrides the time source for date and timestamp placeholders.
func WithClock(now func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// WithSynthesizerLogger sets the logger used for coercion recoveries.
func WithSynthesizerLogger(logger *zap.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the value to write for col given what the caller
// supplied. include=false means the column must be left out of the statement
// so the database applies NULL or its default.
func (s *Synthesizer) Synthesize(col ColumnDescriptor, supplied any, reference bool) (value any, include bool, err error) {
	if !IsAbsent(supplied) {
		v, cerr := Coerce(col, supplied)
		if cerr == nil {
			return s.fit(col, v, reference)
		}
		switch {
		case reference:
			return nil, false, newError(KindValueCoercionFailure, col.Table, col.Name, "", cerr)
		case col.Mandatory():
			s.logger.Warn("Coercion failed, writing category zero value",
				zap.String("table", col.Table),
				zap.String("column", col.Name),
				zap.String("category", string(col.Category)),
				zap.Error(cerr),
			)
			p, perr := s.Placeholder(col)
			return p, perr == nil, perr
		default:
			s.logger.Warn("Coercion failed, omitting nullable column",
				zap.String("table", col.Table),
				zap.String("column", col.Name),
				zap.Error(cerr),
			)
			return nil, false, nil
		}
	}

	if !col.Mandatory() {
		return nil, false, nil
	}
	if reference {
		return nil, false, newError(KindMandatoryColumnUnresolved, col.Table, col.Name, "", nil)
	}
	p, err := s.Placeholder(col)
	return p, err == nil, err
}

// fit keeps text within the column length. Identifiers and references are
// never shortened.
func (s *Synthesizer) fit(col ColumnDescriptor, v any, reference bool) (any, bool, error) {
	text, ok := v.(string)
	if !ok || col.Category != CategoryText || !overLength(text, col.MaxLength) {
		return v, true, nil
	}
	if reference {
		return nil, false, newError(KindValueCoercionFailure, col.Table, col.Name, "",
			fmt.Errorf("value of %d characters exceeds column length %d", utf8.RuneCountInString(text), col.MaxLength))
	}
	s.logger.Warn("Value truncated to column length",
		zap.String("table", col.Table),
		zap.String("column", col.Name),
		zap.Int("length", utf8.RuneCountInString(text)),
		zap.Int("max_length", col.MaxLength),
	)
	return truncate(text, col.MaxLength), true, nil
}

// Placeholder returns the deterministic fill value for a mandatory column.
func (s *Synthesizer) Placeholder(col ColumnDescriptor) (any, error) {
	now := s.now()
	switch col.Category {
	case CategoryNumeric:
		return int64(0), nil
	case CategoryDate:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case CategoryTimestamp:
		return now, nil
	case CategoryText:
		return truncate(TextSentinel, col.MaxLength), nil
	case CategoryLargeText:
		return PlaceholderDocument, nil
	case CategoryBinary:
		return []byte{}, nil
	case CategoryBoolean:
		return false, nil
	default:
		return nil, newError(KindMandatoryColumnUnresolved, col.Table, col.Name, "",
			fmt.Errorf("no placeholder for data type %q", col.DataType))
	}
}

// IsAbsent reports whether v counts as "not supplied": nil, a nil pointer or
// a blank string.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case *string:
		return t == nil || strings.TrimSpace(*t) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Coerce converts v to a Go value suitable for a column of col's category.
func Coerce(col ColumnDescriptor, v any) (any, error) {
	v = deref(v)
	switch col.Category {
	case CategoryText, CategoryLargeText:
		return norm.NFC.String(toText(v)), nil
	case CategoryNumeric:
		return toDecimal(v)
	case CategoryDate, CategoryTimestamp:
		return toTime(v)
	case CategoryBinary:
		switch t := v.(type) {
		case []byte:
			return t, nil
		case string:
			return []byte(t), nil
		}
		return nil, fmt.Errorf("cannot use %T as binary", v)
	case CategoryBoolean:
		return toBool(v)
	default:
		return v, nil
	}
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case decimal.Decimal:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case uint:
		return decimal.NewFromUint64(uint64(t)), nil
	case uint64:
		return decimal.NewFromUint64(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case bool:
		if t {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(t)))
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		return decimal.NewFromString(s)
	}
	return decimal.Decimal{}, fmt.Errorf("cannot use %T as numeric", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	}
	return time.Time{}, fmt.Errorf("cannot use %T as a date", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	}
	return false, fmt.Errorf("cannot use %T as boolean", v)
}

func overLength(s string, max int) bool {
	return max > 0 && utf8.RuneCountInString(s) > max
}

func truncate(s string, max int) string {
	if !overLength(s, max) {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
