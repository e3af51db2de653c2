package domain

import "errors"

var (
	// ErrProductNotFound возвращается, если товара с таким ID нет в репозитории.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказа с таким ID нет в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOutboxPublish означает ошибку публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound возвращается, если сообщение outbox не найдено при смене статуса.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// IsNotFound сообщает, относится ли ошибка к промаху по идентификатору товара или заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrOrderNotFound)
}
