// Package apperr define as categorias de erro usadas por serviços e handlers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindInternal
)

const internalMessage = "Erro interno do servidor"

// Status retorna o código HTTP da categoria.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindAuth:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }

// Internal embrulha uma falha inesperada; a causa nunca chega ao cliente.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: internalMessage, Err: err}
}

// IsKind informa se err (ou algo que ele embrulha) é da categoria k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// FromDB converte erros do gorm. notFound é usado para ErrRecordNotFound.
func FromDB(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: "Registro duplicado", Err: err}
	default:
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return Internal(err)
	}
}

// StatusOf devolve o status HTTP que Handler usará para err.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind.Status()
	}
	return fiber.StatusInternalServerError
}

// Handler é o ErrorHandler do fiber: responde {"error": msg} com o status da categoria.
func Handler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		var ae *Error
		if errors.As(err, &ae) && ae.Kind != KindInternal {
			return c.Status(ae.Kind.Status()).JSON(fiber.Map{"error": ae.Message})
		}

		logger.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": internalMessage,
		})
	}
}
