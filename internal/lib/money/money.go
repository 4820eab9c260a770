// Package money реализует денежную величину в минимальных единицах (центах),
// чтобы списания с баланса были точными: 100.00 - 19.99 = 80.01.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount — сумма в сотых долях валютной единицы.
type Amount int64

// Scale — количество минимальных единиц в одной валютной единице.
const Scale = 100

// MaxBalance — верхняя граница баланса пользователя.
const MaxBalance Amount = 999_999_999 * Scale

// DefaultBalance — стартовый баланс нового пользователя.
const DefaultBalance Amount = 5000 * Scale

// ErrInvalidAmount возвращается, если строку нельзя разобрать как сумму.
var ErrInvalidAmount = errors.New("invalid amount")

// Parse разбирает десятичную строку вида "19.99", "20" или "0.5".
// Допускается не более двух знаков после точки.
func Parse(s string) (Amount, error) {
	const op = "money.Parse"
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s: %w: empty", op, ErrInvalidAmount)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("%s: %w: %q", op, ErrInvalidAmount, s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%s: %w: more than two decimal places", op, ErrInvalidAmount)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%s: %w: %q", op, ErrInvalidAmount, s)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/Scale-1 {
		return 0, fmt.Errorf("%s: %w: out of range", op, ErrInvalidAmount)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)

	total := Amount(units*Scale + cents)
	if negative {
		total = -total
	}
	return total, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FromFloat округляет значение до центов.
func FromFloat(f float64) Amount {
	return Amount(math.Round(f * Scale))
}

// Float64 возвращает значение в валютных единицах.
func (a Amount) Float64() float64 {
	return float64(a) / Scale
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/Scale, v%Scale)
}

// MarshalJSON кодирует сумму как JSON-число с двумя знаками после точки.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON принимает и число, и строку ("19.99").
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
