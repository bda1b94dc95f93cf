package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/service/catalog"
)

const (
	msgProductDeleted = "Camiseta removida"
	msgCouponDeleted  = "Cupom removido"
)

type catalogHandler struct {
	svc    CatalogService
	logger *log.Entry
}

func (h *catalogHandler) createProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	product, err := h.svc.CreateProduct(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, productMessages)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *catalogHandler) listProducts(c *gin.Context) {
	products, err := h.svc.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err, productMessages)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *catalogHandler) getProduct(c *gin.Context) {
	product, err := h.svc.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, productMessages)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *catalogHandler) updateProduct(c *gin.Context) {
	var patch catalog.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}
	product, err := h.svc.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err, productMessages)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *catalogHandler) deleteProduct(c *gin.Context) {
	if err := h.svc.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, productMessages)
		return
	}
	h.logger.WithField("product_id", c.Param("id")).Info("product deleted")
	c.JSON(http.StatusOK, messageResponse{Message: msgProductDeleted})
}

func (h *catalogHandler) createCoupon(c *gin.Context) {
	var in catalog.CouponInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	coupon, err := h.svc.CreateCoupon(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, couponMessages)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (h *catalogHandler) listCoupons(c *gin.Context) {
	coupons, err := h.svc.ListCoupons(c.Request.Context())
	if err != nil {
		writeError(c, err, couponMessages)
		return
	}
	c.JSON(http.StatusOK, coupons)
}

func (h *catalogHandler) getCoupon(c *gin.Context) {
	coupon, err := h.svc.GetCoupon(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, couponMessages)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *catalogHandler) updateCoupon(c *gin.Context) {
	var patch catalog.CouponPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}
	coupon, err := h.svc.UpdateCoupon(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err, couponMessages)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *catalogHandler) deleteCoupon(c *gin.Context) {
	if err := h.svc.DeleteCoupon(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, couponMessages)
		return
	}
	h.logger.WithField("coupon_id", c.Param("id")).Info("coupon deleted")
	c.JSON(http.StatusOK, messageResponse{Message: msgCouponDeleted})
}
