package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/lib/money"
	"github.com/magabrotheeeer/subscribely/internal/lib/renewal"
)

// CatalogItem — предложение каталога, доступное для покупки.
type CatalogItem struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Price           money.Amount     `json:"price"`
	RenewalInterval renewal.Interval `json:"renewal_interval"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CreateCatalogItemRequest используется для приёма данных из JSON-запроса
// до валидации. Цена может прийти числом или десятичной строкой,
// интервал и флаг активности необязательны.
type CreateCatalogItemRequest struct {
	Name            string       `json:"name" validate:"required"`
	Description     string       `json:"description,omitempty"`
	Price           DecimalInput `json:"price" validate:"required"`
	RenewalInterval string       `json:"renewal_interval,omitempty"`
	Active          *bool        `json:"active,omitempty"`
}

// SetActiveRequest — тело запроса включения/выключения позиции каталога.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// DecimalInput хранит сырое значение десятичного числа из JSON.
// Принимает как число, так и строку; разбор выполняется позже через money.Parse,
// чтобы некорректное значение стало ошибкой валидации, а не ошибкой декодирования.
type DecimalInput string

// UnmarshalJSON сохраняет текст числа или строки без проверки.
func (d *DecimalInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DecimalInput(s)
		return nil
	}
	*d = DecimalInput(data)
	return nil
}

// Amount разбирает значение в денежную сумму.
func (d DecimalInput) Amount() (money.Amount, error) {
	return money.Parse(string(d))
}
