package domain

import (
	"maps"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	customerNamePattern = regexp.MustCompile(`^[\p{L}\s]+$`)
	cpfPattern          = regexp.MustCompile(`^\d{11}$`)
	cepPattern          = regexp.MustCompile(`^\d{8}$`)
)

// Customer содержит данные покупателя и доставки, фиксируемые в заказе.
type Customer struct {
	Name    string `json:"name"`
	CPF     string `json:"cpf"`
	Email   string `json:"email"`
	CEP     string `json:"cep"`
	Address string `json:"address"`
	Number  string `json:"number"`
}

// Normalize убирает пробелы по краям всех полей.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		CPF:     strings.TrimSpace(c.CPF),
		Email:   strings.TrimSpace(c.Email),
		CEP:     strings.TrimSpace(c.CEP),
		Address: strings.TrimSpace(c.Address),
		Number:  strings.TrimSpace(c.Number),
	}
}

// Validate возвращает *ValidationError со всеми нарушениями или nil.
func (c Customer) Validate() error {
	fields := map[string]string{}

	switch n := utf8.RuneCountInString(c.Name); {
	case n < 2 || n > 100:
		fields["name"] = "name must be between 2 and 100 characters long"
	case !customerNamePattern.MatchString(c.Name):
		fields["name"] = "name must contain only letters and spaces"
	}
	if !cpfPattern.MatchString(c.CPF) {
		fields["cpf"] = "cpf must contain exactly 11 digits"
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		fields["email"] = "email must have a valid format"
	}
	if !cepPattern.MatchString(c.CEP) {
		fields["cep"] = "cep must contain exactly 8 digits"
	}
	if n := utf8.RuneCountInString(c.Address); n < 5 || n > 200 {
		fields["address"] = "address must be between 5 and 200 characters long"
	}
	if n := utf8.RuneCountInString(c.Number); n < 1 || n > 10 {
		fields["number"] = "number must be between 1 and 10 characters long"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
