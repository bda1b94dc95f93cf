package domain

import (
	"errors"
	"strings"
)

var (
	// ErrValidation: отсутствует или некорректно обязательное поле.
	ErrValidation = errors.New("validation failed")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound: футболка не найдена.
	ErrProductNotFound = errors.New("product not found")
	// ErrCouponNotFound: купон не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponCodeTaken: купон с таким кодом уже существует.
	ErrCouponCodeTaken = errors.New("coupon code already exists")
	// ErrDuplicateSequence: хранилище отвергло запись: номер заказа уже занят.
	// Ошибка временная, сервис повторяет присвоение номера.
	ErrDuplicateSequence = errors.New("order number already taken")
	// ErrSequenceAssignmentFailed: исчерпаны попытки присвоить уникальный номер.
	ErrSequenceAssignmentFailed = errors.New("order number assignment failed")
	// ErrPersistence: хранилище недоступно или отклонило запись.
	ErrPersistence = errors.New("persistence failure")
	// ErrNoFieldsProvided: в запросе на обновление статуса нет ни одного поля.
	ErrNoFieldsProvided = errors.New("no updatable fields provided")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// FieldError описывает проблему с конкретным полем запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError собирает ошибки по полям. errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError создаёт ошибку валидации с одним полем.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add добавляет замечание по полю.
func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// OrNil возвращает nil, если замечаний нет.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsDuplicateSequence проверяет, является ли ошибка коллизией номера заказа.
func IsDuplicateSequence(err error) bool {
	return errors.Is(err, ErrDuplicateSequence)
}

// IsNotFound объединяет все not-found ошибки домена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCouponNotFound)
}
