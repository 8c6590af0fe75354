package http

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/zapflow/campaignd/internal/repository"
)

func listAuditHandler(auditRepo repository.AuditRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, err := strconv.ParseInt(c.QueryParam("tenant_id"), 10, 64)
		if err != nil || tenantID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		}
		campaignID, err := strconv.ParseInt(c.QueryParam("campaign_id"), 10, 64)
		if err != nil || campaignID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad campaign_id"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		events, err := auditRepo.ListByCampaign(
			c.Request().Context(),
			tenantID,
			campaignID,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
