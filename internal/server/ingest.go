package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ingestdomain "github.com/cloudtally/cloudtally/internal/ingest/domain"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

func (s *Server) TriggerIngest(c *gin.Context) {
	accountID, err := parseUUIDParam(c, "account_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	since, err := parseOptionalDate("since", c.Query("since"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	until, err := parseOptionalDate("until", c.Query("until"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var window *vendordomain.Window
	switch {
	case since != nil && until != nil:
		if since.After(*until) {
			AbortWithError(c, newValidationError("since", "invalid_date_range", "since must not be after until"))
			return
		}
		window = &vendordomain.Window{Start: *since, End: *until}
	case since != nil || until != nil:
		AbortWithError(c, newValidationError("since", "required", "since and until must be provided together"))
		return
	}

	result, err := s.ingestSvc.RunAccount(c.Request.Context(), ingestdomain.RunRequest{
		AccountID: accountID,
		Window:    window,
	})
	if err != nil {
		// Nothing behind the watermark to pull is a successful no-op.
		if errors.Is(err, ingestdomain.ErrEmptyWindow) {
			c.JSON(http.StatusOK, gin.H{
				"account_id":      accountID,
				"records_written": 0,
				"up_to_date":      true,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":      result.AccountID,
		"provider":        result.Provider,
		"range":           gin.H{"start": result.Window.Start.Format(dateOnlyLayout), "end": result.Window.End.Format(dateOnlyLayout)},
		"records_fetched": result.Fetched,
		"records_skipped": result.Skipped,
		"records_written": result.Upserted,
		"attempts":        result.Attempts,
		"refreshed":       result.Refreshed,
		"duration_ms":     result.Duration.Milliseconds(),
	})
}
