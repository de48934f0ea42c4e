package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resident-trust-ledger/internal/api_gateway/handler"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
)

// handlers groups the HTTP handlers mounted by setupRouter
type handlers struct {
	residents      *handler.ResidentHandler
	serviceBatches *handler.ServiceBatchHandler
	depositBatches *handler.DepositBatchHandler
	preAuth        *handler.PreAuthHandler
	cashBox        *handler.CashBoxHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.UserID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		residents := v1.Group("/residents")
		{
			residents.POST("", h.residents.Create)
			residents.GET("/:id", h.residents.GetByID)
			residents.GET("/:id/balance", h.residents.GetBalance)
			residents.GET("/:id/entries", h.residents.ListEntries)
			residents.POST("/:id/entries", h.residents.RecordEntry)
			residents.GET("/:id/reconciliation", h.residents.Reconcile)
			residents.POST("/:id/deactivate", h.residents.Deactivate)
		}

		// Facility scoped views
		facilities := v1.Group("/facilities/:id")
		{
			facilities.GET("/residents", h.residents.ListByFacility)
			facilities.GET("/entries", h.residents.ListFacilityEntries)
			facilities.GET("/withdrawals", h.residents.ListWithdrawals)
			facilities.GET("/service-batches", h.serviceBatches.ListByFacility)
			facilities.GET("/deposit-batches", h.depositBatches.ListByFacility)

			facilities.GET("/preauth/:month", h.preAuth.GetMonthlyList)
			facilities.POST("/preauth/:month/close", h.preAuth.CloseMonthlyList)
			facilities.POST("/preauth/:month/run", h.preAuth.RunMonth)

			facilities.GET("/cash-box", h.cashBox.GetBalance)
			facilities.POST("/cash-box/transactions", h.cashBox.CreateTransaction)
			facilities.GET("/cash-box/transactions", h.cashBox.ListTransactions)
			facilities.POST("/cash-box/reset", h.cashBox.Reset)
			facilities.GET("/cash-box/history", h.cashBox.ListHistory)
		}

		serviceBatches := v1.Group("/service-batches")
		{
			serviceBatches.POST("", h.serviceBatches.Create)
			serviceBatches.GET("/:id", h.serviceBatches.GetByID)
			serviceBatches.DELETE("/:id", h.serviceBatches.Delete)
			serviceBatches.PUT("/:id/items/:residentId", h.serviceBatches.PutItem)
			serviceBatches.PATCH("/:id/items/:residentId", h.serviceBatches.PatchItem)
			serviceBatches.DELETE("/:id/items/:residentId", h.serviceBatches.RemoveItem)
			serviceBatches.POST("/:id/post", h.serviceBatches.Post)
		}

		depositBatches := v1.Group("/deposit-batches")
		{
			depositBatches.POST("", h.depositBatches.Create)
			depositBatches.GET("/:id", h.depositBatches.GetByID)
			depositBatches.DELETE("/:id", h.depositBatches.Delete)
			depositBatches.POST("/:id/entries", h.depositBatches.AddEntry)
			depositBatches.PUT("/:id/entries/:entryId", h.depositBatches.UpdateEntry)
			depositBatches.DELETE("/:id/entries/:entryId", h.depositBatches.RemoveEntry)
			depositBatches.POST("/:id/close", h.depositBatches.Close)
		}

		preAuth := v1.Group("/preauth")
		{
			preAuth.POST("", h.preAuth.Create)
			preAuth.POST("/process", h.preAuth.ProcessBatch)
			preAuth.GET("/:id", h.preAuth.GetByID)
			preAuth.POST("/:id/process", h.preAuth.Process)
			preAuth.POST("/:id/cancel", h.preAuth.Cancel)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
