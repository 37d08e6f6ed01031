package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	costreportdomain "github.com/cloudtally/cloudtally/internal/costreport/domain"
)

// accountReport factors out the shared parse-resolve-query-respond shape of
// the per-account report endpoints.
func (s *Server) accountReport(c *gin.Context, query func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error)) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	params, err := parseRangeParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	r, err := s.reportSvc.ResolveRange(params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	results, err := query(c.Request.Context(), accountID, r)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"range":   rangeJSON(r),
		"results": results,
	})
}

func rangeJSON(r costreportdomain.DateRange) gin.H {
	return gin.H{
		"start": r.Since.Format(dateOnlyLayout),
		"end":   r.Until.Format(dateOnlyLayout),
	}
}

func (s *Server) DailyCosts(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.DailyCosts(ctx, accountID, r)
	})
}

func (s *Server) CostByService(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.CostByService(ctx, accountID, r)
	})
}

func (s *Server) CostByRegion(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.CostByRegion(ctx, accountID, r)
	})
}

func (s *Server) UsageByServiceDay(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.UsageByServiceDay(ctx, accountID, r)
	})
}

func (s *Server) MonthlyServiceTotals(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.MonthlyServiceTotals(ctx, accountID, r)
	})
}

func (s *Server) AccountSummary(c *gin.Context) {
	s.accountReport(c, func(ctx context.Context, accountID uuid.UUID, r costreportdomain.DateRange) (any, error) {
		return s.reportSvc.AccountTotals(ctx, accountID, r)
	})
}

func (s *Server) OrgSummary(c *gin.Context) {
	orgID, err := parseUUIDParam(c, "org_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	params, err := parseRangeParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	r, err := s.reportSvc.ResolveRange(params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.reportSvc.OrgSummary(c.Request.Context(), orgID, r)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"range":   rangeJSON(r),
		"results": summary,
	})
}

type batchSummaryRequest struct {
	OrganizationIDs []string `json:"organization_ids"`
	Days            *int     `json:"days"`
	Since           *string  `json:"since"`
	Until           *string  `json:"until"`
}

func (s *Server) BatchOrgSummary(c *gin.Context) {
	var req batchSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if len(req.OrganizationIDs) == 0 {
		AbortWithError(c, newValidationError("organization_ids", "required", "organization_ids is required"))
		return
	}

	orgIDs := make([]uuid.UUID, 0, len(req.OrganizationIDs))
	for _, raw := range req.OrganizationIDs {
		id, ok, err := parseOptionalUUID("organization_ids", raw)
		if err != nil || !ok {
			AbortWithError(c, newValidationError("organization_ids", "invalid_uuid", "organization_ids must contain valid uuids"))
			return
		}
		orgIDs = append(orgIDs, id)
	}

	params := costreportdomain.RangeParams{Days: req.Days}
	if req.Since != nil {
		since, err := parseOptionalDate("since", *req.Since)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		params.Since = since
	}
	if req.Until != nil {
		until, err := parseOptionalDate("until", *req.Until)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		params.Until = until
	}
	r, err := s.reportSvc.ResolveRange(params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summaries, err := s.reportSvc.BatchOrgSummary(c.Request.Context(), orgIDs, r)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"range":   rangeJSON(r),
		"results": summaries,
	})
}
