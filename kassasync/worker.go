package kassasync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/ristobook/ristobook_backend/config"
	"github.com/ristobook/ristobook_backend/models"
	"github.com/ristobook/ristobook_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SyncResources selects which KassaCloud resources a run imports.
type SyncResources struct {
	Categories bool `json:"categories"`
	Products   bool `json:"products"`
	Customers  bool `json:"customers"`
	Receipts   bool `json:"receipts"`
	Sales      bool `json:"sales"`
	Rooms      bool `json:"rooms"`
	Tables     bool `json:"tables"`
	Stock      bool `json:"stock"`
}

func DefaultResources() SyncResources {
	return SyncResources{
		Categories: true,
		Products:   true,
		Customers:  true,
		Receipts:   true,
		Sales:      false,
		Rooms:      false,
		Tables:     false,
		Stock:      false,
	}
}

func NormalizeResources(res SyncResources) SyncResources {
	// Products cannot import without their categories.
	if res.Products {
		res.Categories = true
	}
	return res
}

func DecodeResources(raw []byte) SyncResources {
	if len(raw) == 0 {
		return DefaultResources()
	}
	var res SyncResources
	if err := json.Unmarshal(raw, &res); err != nil {
		return DefaultResources()
	}
	return NormalizeResources(res)
}

func EncodeResources(res SyncResources) []byte {
	b, _ := json.Marshal(NormalizeResources(res))
	return b
}

type SyncPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	RestaurantId string `json:"restaurant_id"`
	ConnectionId uint   `json:"connection_id"`
}

// processSyncRun executes one queued run end to end. Runs are idempotent to
// redelivery: a run already in a terminal status is acknowledged and skipped,
// and a per-restaurant lock keeps concurrent deliveries from racing.
func processSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.RestaurantId == "" {
		return errors.New("invalid payload")
	}

	log := config.GetLogger()
	ctx = utils.SetRestaurantIdInContext(ctx, payload.RestaurantId)
	db := config.GetDB().WithContext(ctx)

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "kassasync:run:"+payload.RestaurantId, 10*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				log.WithFields(logrus.Fields{
					"restaurant_id": payload.RestaurantId,
					"run_id":        payload.RunId,
				}).Warn("sync already running for restaurant, skipping")
				return nil
			}
			return err
		}
		defer lock.Release(context.Background())
	}

	var run models.SyncRun
	if err := db.Where("id = ? AND restaurant_id = ?", payload.RunId, payload.RestaurantId).Take(&run).Error; err != nil {
		return err
	}

	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	var conn models.PosConnection
	if err := db.Where("id = ? AND restaurant_id = ?", run.ConnectionId, payload.RestaurantId).Take(&conn).Error; err != nil {
		return err
	}
	if conn.Status != models.IntegrationStatusConnected {
		return errors.New("kassacloud not connected")
	}

	resources := DecodeResources(run.ResourcesJSON)

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}

	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	importer := NewImporter(NewClient(), NewStore(config.GetDB()))
	service := NewService(importer)

	stats := map[string]int{}
	errorCount := 0
	totalSynced := 0

	runResource := func(resource string, req SyncRequest) {
		req.Resource = resource
		req.RestaurantId = payload.RestaurantId
		req.APIKey = conn.APIKey
		if req.SalesPointId == "" {
			req.SalesPointId = conn.SalesPointId
		}

		res := service.Sync(ctx, req)
		stats[resource] = res.Count
		totalSynced += res.Count
		for _, warning := range res.Warnings {
			_ = createSyncError(ctx, db, run.ID, resource, "", "record_skipped", warning, nil, false)
		}
		if res.Err != nil {
			errorCount++
			_ = createSyncError(ctx, db, run.ID, resource, "", "sync_failed", res.Err.Error(), nil, true)
		}
	}

	dateFrom, dateTo := runDateRange(conn)

	// Dependency order: products reference categories, tables reference rooms.
	if resources.Categories {
		runResource(ResourceCategories, SyncRequest{})
	}
	if resources.Products {
		runResource(ResourceProducts, SyncRequest{})
	}
	if resources.Customers {
		runResource(ResourceCustomers, SyncRequest{})
	}
	if resources.Rooms {
		runResource(ResourceRooms, SyncRequest{})
	}
	if resources.Tables {
		runResource(ResourceTables, SyncRequest{})
	}
	if resources.Stock {
		runResource(ResourceStock, SyncRequest{})
	}
	if resources.Receipts {
		runResource(ResourceReceipts, SyncRequest{DateFrom: dateFrom, DateTo: dateTo})
	}
	if resources.Sales {
		runResource(ResourceSales, SyncRequest{DateFrom: dateFrom, DateTo: dateTo})
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && totalSynced == 0 {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(stats)
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    durationMs,
		"records_synced": totalSynced,
		"error_count":    errorCount,
		"stats_json":     statsJSON,
	}).Error; err != nil {
		return err
	}

	connUpdates := map[string]interface{}{
		"last_sync_at": finishedAt,
	}
	if status == models.SyncRunStatusSuccess {
		connUpdates["last_success_sync_at"] = finishedAt
	}
	if err := db.Model(&models.PosConnection{}).
		Where("id = ? AND restaurant_id = ?", conn.ID, payload.RestaurantId).
		Updates(connUpdates).Error; err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"restaurant_id":  payload.RestaurantId,
		"run_id":         run.ID,
		"status":         status,
		"records_synced": totalSynced,
		"error_count":    errorCount,
		"duration_ms":    durationMs,
	}).Info("sync run finished")

	return nil
}

// EnqueueScheduledRuns queues a system-triggered run for every connected
// restaurant, each with that restaurant's configured resources. One
// restaurant's failure does not block the rest.
func EnqueueScheduledRuns(ctx context.Context, db *gorm.DB, publish func(ctx context.Context, runId uint, restaurantId string, connectionId uint) error) (int, error) {
	log := config.GetLogger()

	var conns []models.PosConnection
	if err := db.WithContext(ctx).
		Where("provider = ? AND status = ?", models.IntegrationProviderKassa, models.IntegrationStatusConnected).
		Find(&conns).Error; err != nil {
		return 0, err
	}

	queued := 0
	for _, conn := range conns {
		run := models.SyncRun{
			RestaurantId:  conn.RestaurantId,
			ConnectionId:  conn.ID,
			Provider:      models.IntegrationProviderKassa,
			Status:        models.SyncRunStatusQueued,
			TriggeredBy:   models.SyncTriggeredSystem,
			ResourcesJSON: EncodeResources(DecodeResources(conn.SettingsJSON)),
		}
		if err := db.WithContext(ctx).Create(&run).Error; err != nil {
			log.WithFields(logrus.Fields{
				"restaurant_id": conn.RestaurantId,
			}).Warn("scheduled run not queued: " + err.Error())
			continue
		}
		if err := publish(ctx, run.ID, conn.RestaurantId, conn.ID); err != nil {
			log.WithFields(logrus.Fields{
				"restaurant_id": conn.RestaurantId,
				"run_id":        run.ID,
			}).Warn("scheduled run not published: " + err.Error())
			continue
		}
		queued++
	}
	return queued, nil
}

// runDateRange is the receipts and sales range for a scheduled run: from the
// last successful sync (or 30 days back on the first run) through today.
func runDateRange(conn models.PosConnection) (string, string) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if conn.LastSuccessSyncAt != nil {
		from = *conn.LastSuccessSyncAt
	}
	return from.Format(dateLayout), to.Format(dateLayout)
}

// createSyncError persists one per-record or per-resource failure. The tenant
// comes from the context, the same source the tenant guard scopes by.
func createSyncError(ctx context.Context, db *gorm.DB, runId uint, entityType string, externalId string, code string, message string, payload []byte, retryable bool) error {
	restaurantId, _ := utils.GetRestaurantIdFromContext(ctx)
	errRec := models.SyncError{
		SyncRunId:    runId,
		RestaurantId: restaurantId,
		EntityType:   entityType,
		ExternalId:   externalId,
		ErrorCode:    code,
		Message:      message,
		PayloadJSON:  payload,
		Retryable:    retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}
