package handlers

import (
	"os"

	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/cart"
	"lifecycle-service/internal/orders"
	"lifecycle-service/internal/payments"
	"lifecycle-service/internal/prefs"
	"lifecycle-service/internal/products"
	"lifecycle-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	o        *orders.Conf
	p        *payments.Conf
	c        *cart.Conf
	pr       *products.Conf
	n        *prefs.Conf
	b        *bus.Bus
	validate *validator.Validate
}

func NewHandler(o *orders.Conf, p *payments.Conf, c *cart.Conf, pr *products.Conf, n *prefs.Conf, b *bus.Bus) *Handler {
	return &Handler{
		o:        o,
		p:        p,
		c:        c,
		pr:       pr,
		n:        n,
		b:        b,
		validate: validator.New(),
	}
}

func API(endpointPrefix string, k *auth.Keys, o *orders.Conf, p *payments.Conf,
	c *cart.Conf, pr *products.Conf, n *prefs.Conf, b *bus.Bus) *gin.Engine {

	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(k)
	if err != nil {
		panic(err)
	}

	h := NewHandler(o, p, c, pr, n, b)
	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)

	v1 := r.Group(endpointPrefix)
	{
		// Stripe signs the webhook itself; no bearer token on this route.
		v1.POST("/webhook", h.Webhook)

		v1.Use(m.Authentication())
		v1.POST("/checkout", h.Checkout)
		v1.POST("/:id/pay", h.CreatePayment)
		v1.GET("/:id", h.GetOrder)
		v1.GET("", h.ListOrders)
		v1.PATCH("/:id/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
	}

	cartGroup := r.Group("/cart")
	{
		cartGroup.Use(m.Authentication())
		cartGroup.POST("/add-item", m.Authorize(h.AddToCart, auth.RoleUser))
		cartGroup.GET("/items", m.Authorize(h.GetActiveCartItems, auth.RoleUser))
	}

	prefGroup := r.Group("/preferences")
	{
		prefGroup.Use(m.Authentication())
		prefGroup.GET("", h.GetPreferences)
		prefGroup.PATCH("", h.UpdatePreferences)
	}

	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}
