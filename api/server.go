package api

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxLimit = 500

// NewRouter builds the read-only KPI surface. Every endpoint is a pure
// pass-through over a precomputed view: no business logic lives here.
func NewRouter(db *gorm.DB, logger *logrus.Logger, cache *Cache) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	kpi := r.Group("/kpi")
	kpi.GET("/net-sales-daily", viewHandler(db, logger, cache,
		"kpi_net_sales_daily", "day desc", 30))
	kpi.GET("/top-customers-month", viewHandler(db, logger, cache,
		"kpi_top_customers_month", "month desc, net_sales_amount desc", 50))
	kpi.GET("/return-rate-by-product-month", viewHandler(db, logger, cache,
		"kpi_return_rate_by_product_month", "return_rate desc", 50))

	return r
}

// viewHandler serves `select * from <view> order by ... limit ?`. View and
// order-by are compile-time constants, only the limit is caller-supplied.
func viewHandler(db *gorm.DB, logger *logrus.Logger, cache *Cache, view, orderBy string, defaultLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		cacheKey := c.Request.URL.RequestURI()
		if body, ok := cache.Get(c.Request.Context(), cacheKey); ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}

		var rows []map[string]interface{}
		if err := db.WithContext(c.Request.Context()).
			Table(view).
			Order(orderBy).
			Limit(limit).
			Find(&rows).Error; err != nil {
			config.LogError(logger, "api", "viewHandler", view, nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if rows == nil {
			rows = []map[string]interface{}{}
		}

		c.JSON(http.StatusOK, rows)
		cache.SetJSON(c.Request.Context(), cacheKey, rows)
	}
}
