package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradesync/exchange"
	"tradesync/logger"
	"tradesync/store"
	"tradesync/syncer"
)

// errorStatus maps the error taxonomy onto HTTP statuses
func errorStatus(err error) int {
	var badReq *syncer.BadRequestError
	if errors.As(err, &badReq) {
		return http.StatusBadRequest
	}
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func orderQueryFrom(c *gin.Context) syncer.OrderQuery {
	return syncer.OrderQuery{
		Owner:         currentUserID(c),
		Exchange:      c.Query("exchange"),
		Start:         queryInt64(c, "start"),
		End:           queryInt64(c, "end"),
		Sort:          c.Query("sort"),
		Search:        c.Query("search"),
		Page:          queryInt(c, "page", 1),
		Limit:         queryInt(c, "limit", 20),
		BookmarksOnly: c.Query("bookmarks") == "true",
	}
}

func (s *Server) handleGetOrders(c *gin.Context) {
	page, err := s.service.Orders(c.Request.Context(), orderQueryFrom(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetTransactions(c *gin.Context) {
	q := syncer.TransactionQuery{
		Owner:         currentUserID(c),
		Exchange:      c.Query("exchange"),
		Start:         queryInt64(c, "start"),
		End:           queryInt64(c, "end"),
		Sort:          c.Query("sort"),
		Search:        c.Query("search"),
		Page:          queryInt(c, "page", 1),
		Limit:         queryInt(c, "limit", 20),
		BookmarksOnly: c.Query("bookmarks") == "true",
	}
	page, err := s.service.Transactions(c.Request.Context(), q)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetTotals(c *gin.Context) {
	totals, err := s.service.Totals(c.Request.Context(), orderQueryFrom(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, totals)
}

type startSyncRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	Start    int64  `json:"start" binding:"required"`
	End      int64  `json:"end"`
}

func (s *Server) handleStartSync(c *gin.Context) {
	var req startSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !exchange.Supported(req.Exchange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported exchange: " + req.Exchange})
		return
	}

	owner := currentUserID(c)
	go func() {
		// Detached from the request: the sync outlives this HTTP call and is
		// observed via the progress endpoints.
		if err := s.coordinator.StartSync(context.Background(), owner, req.Exchange, req.Start, req.End, nil); err != nil {
			logger.Errorf("sync failed for owner %s (%s): %v", owner, req.Exchange, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleCancelSync(c *gin.Context) {
	s.coordinator.CancelSync(currentUserID(c))
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleClearProgress(c *gin.Context) {
	s.coordinator.ClearProgress(currentUserID(c))
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) handleGetProgress(c *gin.Context) {
	progress, active := s.coordinator.Progress(currentUserID(c))
	c.JSON(http.StatusOK, gin.H{"active": active, "progress": progress})
}

type bookmarkRequest struct {
	Exchange   string `json:"exchange" binding:"required"`
	Bookmarked bool   `json:"bookmarked"`
}

func (s *Server) handleBookmarkOrder(c *gin.Context) {
	s.handleBookmark(c, s.service.SetOrderBookmark)
}

func (s *Server) handleBookmarkTransaction(c *gin.Context) {
	s.handleBookmark(c, s.service.SetTransactionBookmark)
}

func (s *Server) handleBookmark(c *gin.Context, set func(owner, exchange string, id int64, bookmarked bool) error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := set(currentUserID(c), req.Exchange, id, req.Bookmarked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": req.Bookmarked})
}

func (s *Server) handleGetExchanges(c *gin.Context) {
	accounts, err := s.store.Exchange().List(currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Never echo decrypted secrets back to the client
	out := make([]gin.H, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, gin.H{
			"id":         acct.ID,
			"exchange":   acct.Exchange,
			"label":      acct.Label,
			"enabled":    acct.Enabled,
			"configured": acct.APIKey != "" && acct.SecretKey != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": out})
}

type updateExchangeRequest struct {
	Exchange  string `json:"exchange" binding:"required"`
	Label     string `json:"label"`
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
	Enabled   bool   `json:"enabled"`
}

func (s *Server) handleUpdateExchange(c *gin.Context) {
	var req updateExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !exchange.Supported(req.Exchange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported exchange: " + req.Exchange})
		return
	}
	if req.Label == "" {
		req.Label = "Default"
	}

	acct := &store.ExchangeAccount{
		UserID:    currentUserID(c),
		Exchange:  req.Exchange,
		Label:     req.Label,
		APIKey:    req.APIKey,
		SecretKey: req.SecretKey,
		Enabled:   req.Enabled,
	}
	if err := s.store.Exchange().Upsert(acct); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": acct.ID})
}

func (s *Server) handleDeleteExchange(c *gin.Context) {
	if err := s.store.Exchange().Delete(currentUserID(c), c.Param("exchange")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
