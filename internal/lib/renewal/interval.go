// Package renewal реализует интервал продления подписки в формате
// "<целое><единица>", где единица — h, d, w, m или y ("1m", "7d", "2w").
//
// Сложение месяцев и лет учитывает календарь: если в целевом месяце нет
// исходного дня, дата прижимается к последнему дню месяца
// (31 января + 1m = 28/29 февраля).
package renewal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit — единица интервала.
type Unit byte

const (
	Hour  Unit = 'h'
	Day   Unit = 'd'
	Week  Unit = 'w'
	Month Unit = 'm'
	Year  Unit = 'y'
)

// maxCount ограничивает множитель, чтобы вычисления не переполнялись.
const maxCount = 10000

// ErrInvalidInterval возвращается для строк, не соответствующих формату.
var ErrInvalidInterval = errors.New("invalid renewal interval")

// Interval — количество единиц между продлениями.
type Interval struct {
	Count int
	Unit  Unit
}

// Default — интервал по умолчанию для позиций каталога.
var Default = Interval{Count: 1, Unit: Month}

// Parse разбирает строку интервала. Неизвестная единица или нечисловой
// множитель — ошибка, значение по умолчанию не подставляется.
func Parse(s string) (Interval, error) {
	const op = "renewal.Parse"
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Interval{}, fmt.Errorf("%s: %w: %q", op, ErrInvalidInterval, s)
	}

	unit := Unit(s[len(s)-1])
	switch unit {
	case Hour, Day, Week, Month, Year:
	default:
		return Interval{}, fmt.Errorf("%s: %w: unknown unit %q", op, ErrInvalidInterval, string(unit))
	}

	digits := s[:len(s)-1]
	if strings.ContainsAny(digits, "+- ") {
		return Interval{}, fmt.Errorf("%s: %w: %q", op, ErrInvalidInterval, s)
	}
	count, err := strconv.Atoi(digits)
	if err != nil || count <= 0 || count > maxCount {
		return Interval{}, fmt.Errorf("%s: %w: %q", op, ErrInvalidInterval, s)
	}

	return Interval{Count: count, Unit: unit}, nil
}

// ParseOrDefault возвращает Default для пустой строки и ошибку для некорректной.
func ParseOrDefault(s string) (Interval, error) {
	if strings.TrimSpace(s) == "" {
		return Default, nil
	}
	return Parse(s)
}

// IsZero сообщает, что интервал не задан.
func (i Interval) IsZero() bool {
	return i.Count == 0
}

func (i Interval) String() string {
	if i.IsZero() {
		return ""
	}
	return strconv.Itoa(i.Count) + string(i.Unit)
}

// AddTo возвращает момент следующего продления относительно from.
// Результат всегда строго позже from.
func (i Interval) AddTo(from time.Time) time.Time {
	switch i.Unit {
	case Hour:
		return from.Add(time.Duration(i.Count) * time.Hour)
	case Day:
		return from.AddDate(0, 0, i.Count)
	case Week:
		return from.AddDate(0, 0, 7*i.Count)
	case Month:
		return addMonthsClamped(from, i.Count)
	case Year:
		return addMonthsClamped(from, 12*i.Count)
	default:
		return addMonthsClamped(from, 1)
	}
}

// addMonthsClamped прибавляет месяцы, не перескакивая в следующий месяц,
// как это делает time.AddDate для 31 января.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// MarshalText кодирует интервал строкой ("1m").
func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText разбирает интервал; пустая строка даёт нулевой интервал.
func (i *Interval) UnmarshalText(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		*i = Interval{}
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
