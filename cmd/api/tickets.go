package main

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/store"
)

// setupTicketRoutes registers the ASSISTED_LIVE trade-ticket inbox: the
// operator lists PENDING tickets, looks one up (by ID or by the run that
// produced it), and reports back what actually filled (or cancels it)
// once it's been placed by hand on the broker's own UI.
func (s *APIServer) setupTicketRoutes(v1 *gin.RouterGroup) {
	if s.store == nil {
		return
	}
	tickets := v1.Group("/trade_tickets")
	tickets.GET("", s.rateLimiter.ReadMiddleware(), s.handleListPendingTickets)
	tickets.GET("/by-run/:run_id", s.rateLimiter.ReadMiddleware(), s.handleTicketsByRun)
	tickets.GET("/:ticket_id", s.rateLimiter.ReadMiddleware(), s.handleGetTicket)
	tickets.POST("/:ticket_id/receipt", s.rateLimiter.OrderMiddleware(), s.handleTicketReceipt)
	tickets.POST("/:ticket_id/cancel", s.rateLimiter.OrderMiddleware(), s.handleTicketCancel)
}

func (s *APIServer) handleListPendingTickets(c *gin.Context) {
	tickets, err := s.store.ListPendingTickets(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("list pending tickets failed")
		c.JSON(500, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(200, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *APIServer) handleTicketsByRun(c *gin.Context) {
	runID := c.Param("run_id")
	tickets, err := s.store.TicketsByRun(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("tickets by run failed")
		c.JSON(500, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(200, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *APIServer) handleGetTicket(c *gin.Context) {
	ticketID := c.Param("ticket_id")
	ticket, err := s.store.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			c.JSON(404, gin.H{"error": "ticket_not_found", "ticket_id": ticketID})
			return
		}
		log.Error().Err(err).Str("ticket_id", ticketID).Msg("get ticket failed")
		c.JSON(500, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(200, ticket)
}

// ticketReceiptRequest is the wire shape for POST
// /trade_tickets/{id}/receipt: the fill details the operator observed
// placing the order by hand on the broker's own interface.
type ticketReceiptRequest struct {
	BrokerOrderID string  `json:"broker_order_id"`
	FilledQty     float64 `json:"filled_qty" binding:"required,gt=0"`
	FilledPrice   float64 `json:"filled_price" binding:"required,gt=0"`
	Fees          float64 `json:"fees"`
	Notes         string  `json:"notes"`
}

func (s *APIServer) handleTicketReceipt(c *gin.Context) {
	ticketID := c.Param("ticket_id")
	var req ticketReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	receipt := store.TicketReceipt{
		BrokerOrderID: req.BrokerOrderID,
		FilledQty:     req.FilledQty,
		FilledPrice:   req.FilledPrice,
		Fees:          req.Fees,
		FillTime:      time.Now().UTC(),
		Notes:         req.Notes,
	}
	if err := s.store.RecordReceipt(c.Request.Context(), ticketID, receipt); err != nil {
		log.Error().Err(err).Str("ticket_id", ticketID).Msg("record ticket receipt failed")
		c.JSON(500, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(200, gin.H{"ticket_id": ticketID, "status": "EXECUTED"})
}

func (s *APIServer) handleTicketCancel(c *gin.Context) {
	ticketID := c.Param("ticket_id")
	if err := s.store.CancelTicket(c.Request.Context(), ticketID); err != nil {
		log.Error().Err(err).Str("ticket_id", ticketID).Msg("cancel ticket failed")
		c.JSON(500, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(200, gin.H{"ticket_id": ticketID, "status": "CANCELLED"})
}
