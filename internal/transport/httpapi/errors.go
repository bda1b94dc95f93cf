package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const (
	msgRequiredFields = "Campos obrigatórios não preenchidos"
	msgInvalidJSON    = "JSON inválido"
	msgNoFields       = "Nenhum campo para atualizar"
	msgCouponTaken    = "Código de cupom já existe"
	msgInternal       = "Erro interno do servidor"
)

// errorResponse: тело любой ошибки API.
type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// resourceMessages: тексты ошибок конкретного ресурса.
type resourceMessages struct {
	notFound string
	failure  string
}

var (
	orderMessages   = resourceMessages{notFound: "Pedido não encontrado", failure: "Erro ao processar pedido"}
	productMessages = resourceMessages{notFound: "Camiseta não encontrada", failure: "Erro ao processar camiseta"}
	couponMessages  = resourceMessages{notFound: "Cupom não encontrado", failure: "Erro ao processar cupom"}
)

// statusFor сопоставляет доменную ошибку с HTTP-кодом и телом ответа.
func statusFor(err error, msgs resourceMessages) (int, errorResponse) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResponse{Error: msgRequiredFields, Details: verr.Fields}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: msgRequiredFields, Details: err.Error()}
	case errors.Is(err, domain.ErrNoFieldsProvided):
		return http.StatusBadRequest, errorResponse{Error: msgNoFields, Details: err.Error()}
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Error: msgs.notFound}
	case errors.Is(err, domain.ErrCouponCodeTaken):
		return http.StatusConflict, errorResponse{Error: msgCouponTaken, Details: err.Error()}
	case errors.Is(err, domain.ErrSequenceAssignmentFailed),
		errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, errorResponse{Error: msgs.failure, Details: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: msgInternal, Details: err.Error()}
	}
}

func writeError(c *gin.Context, err error, msgs resourceMessages) {
	code, body := statusFor(err, msgs)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

// writeBindError отвечает 400. Ошибка поля из UnmarshalJSON отдаётся как ошибка валидации.
func writeBindError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msgRequiredFields, Details: verr.Fields})
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msgInvalidJSON, Details: err.Error()})
}
