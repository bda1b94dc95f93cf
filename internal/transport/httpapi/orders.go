package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/service/orders"
)

const (
	modePerItem = "por_item"

	msgOrderCreated  = "Pedido criado com sucesso!"
	msgOrdersCreated = "Pedidos criados com sucesso!"
	msgOrderUpdated  = "Pedido atualizado com sucesso!"
	msgOrderDeleted  = "Pedido removido com sucesso!"
)

type orderHandler struct {
	svc    OrderService
	logger *log.Entry
}

type createdResponse struct {
	Message string       `json:"message"`
	Order   domain.Order `json:"pedido"`
}

type createdManyResponse struct {
	Message string         `json:"message"`
	Orders  []domain.Order `json:"pedidos"`
}

// partialFailureResponse возвращается, когда часть заказов по позициям уже создана.
type partialFailureResponse struct {
	errorResponse
	Orders []domain.Order `json:"pedidos"`
}

type listResponse struct {
	Orders      []domain.Order `json:"pedidos"`
	TotalPages  int64          `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Total       int64          `json:"total"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// create обрабатывает POST /pedidos; ?modo=por_item создаёт отдельный заказ на каждую позицию.
func (h *orderHandler) create(c *gin.Context) {
	var in orders.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	if c.Query("modo") == modePerItem {
		created, err := h.svc.CreatePerItemOrders(c.Request.Context(), in)
		if err != nil {
			if len(created) > 0 {
				h.logger.WithError(err).WithField("created", len(created)).Warn("per-item creation partially failed")
				code, body := statusFor(err, orderMessages)
				_ = c.Error(err)
				c.AbortWithStatusJSON(code, partialFailureResponse{errorResponse: body, Orders: created})
				return
			}
			writeError(c, err, orderMessages)
			return
		}
		c.JSON(http.StatusCreated, createdManyResponse{Message: msgOrdersCreated, Orders: created})
		return
	}

	order, err := h.svc.CreateConsolidatedOrder(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{Message: msgOrderCreated, Order: order})
}

func (h *orderHandler) list(c *gin.Context) {
	filter := domain.ListFilter{
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
		Status: c.Query("status"),
	}

	result, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}

	// Сервис подставляет значения по умолчанию, ответ должен показывать фактическую страницу.
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	c.JSON(http.StatusOK, listResponse{
		Orders:      result.Orders,
		TotalPages:  result.TotalPages(limit),
		CurrentPage: page,
		Total:       result.Total,
	})
}

func (h *orderHandler) getByID(c *gin.Context) {
	order, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *orderHandler) getByNumber(c *gin.Context) {
	number, ok := pathNumber(c)
	if !ok {
		return
	}
	order, err := h.svc.GetByNumber(c.Request.Context(), number)
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *orderHandler) listByPhone(c *gin.Context) {
	list, err := h.svc.ListByPhone(c.Request.Context(), c.Param("telefone"))
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *orderHandler) updateStatusByID(c *gin.Context) {
	var patch domain.StatusPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}
	order, err := h.svc.UpdateStatusByID(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, createdResponse{Message: msgOrderUpdated, Order: order})
}

func (h *orderHandler) updateStatusByNumber(c *gin.Context) {
	number, ok := pathNumber(c)
	if !ok {
		return
	}
	var patch domain.StatusPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}
	order, err := h.svc.UpdateStatusByNumber(c.Request.Context(), number, patch)
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, createdResponse{Message: msgOrderUpdated, Order: order})
}

func (h *orderHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgOrderDeleted})
}

func (h *orderHandler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, orderMessages)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// health всегда отвечает 200: это проверка самого HTTP-слоя, а не зависимостей.
func (h *orderHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
	})
}

func pathNumber(c *gin.Context) (int64, bool) {
	raw := c.Param("numero")
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || number <= 0 {
		writeError(c, domain.NewValidationError("numero", "must be a positive integer"), orderMessages)
		return 0, false
	}
	return number, true
}

// queryInt возвращает 0 для отсутствующего или нечислового параметра.
func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
