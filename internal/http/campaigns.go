package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

func campaignProgressHandler(
	campaigns repository.CampaignsRepository,
	contacts repository.ContactsRepository,
	shipments repository.ShipmentsRepository,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad campaign id"})
		}

		cam, err := campaigns.GetByID(c.Request().Context(), id)
		if err != nil {
			log.Errorf("progress: load campaign: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if cam == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		total, err := contacts.CountValid(c.Request().Context(), cam.ContactListID)
		if err != nil {
			log.Errorf("progress: count contacts: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		progress, err := shipments.Progress(c.Request().Context(), cam.ID)
		if err != nil {
			log.Errorf("progress: shipment counts: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"campaign":  cam.ID,
			"status":    cam.Status,
			"contacts":  total,
			"shipments": progress,
		})
	}
}

// confirmShipmentHandler is the reply path for confirmation campaigns: it
// is called when a parked contact answers, and re-enqueues the dispatch so
// the actual campaign message goes out immediately.
func confirmShipmentHandler(shipments repository.ShipmentsRepository, jobs queue.Enqueuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad shipment id"})
		}

		ship, err := shipments.GetByID(c.Request().Context(), id)
		if err != nil {
			log.Errorf("confirm: load shipment: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if ship == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "shipment not found"})
		}
		if ship.Terminal() {
			return c.JSON(http.StatusConflict, map[string]string{"error": "shipment already settled"})
		}
		if !ship.AwaitingConfirmation() {
			return c.JSON(http.StatusConflict, map[string]string{"error": "shipment not awaiting confirmation"})
		}

		jobID, err := jobs.Enqueue(c.Request().Context(), model.TaskDispatchCampaign,
			model.DispatchPayload{
				CampaignID: ship.CampaignID,
				ShipmentID: ship.ID,
				ContactID:  ship.ContactID,
			},
			queue.Options{},
		)
		if err != nil {
			log.Errorf("confirm: enqueue dispatch: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if err := shipments.SetJobID(c.Request().Context(), ship.ID, jobID); err != nil {
			log.Errorf("confirm: record job id: %v", err)
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"confirmed": true,
			"shipment":  ship.ID,
			"job":       jobID,
		})
	}
}
