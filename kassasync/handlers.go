package kassasync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ristobook/ristobook_backend/config"
	"github.com/ristobook/ristobook_backend/models"
	"github.com/ristobook/ristobook_backend/utils"
	"gorm.io/gorm"
)

type ConnectRequest struct {
	APIKey       string `json:"apiKey"`
	SalesPointId string `json:"salesPointId"`
}

type UpdateSettingsRequest struct {
	Resources SyncResources `json:"resources"`
}

type TriggerSyncRequest struct {
	Resources SyncResources `json:"resources"`
}

type SyncNowRequest struct {
	Resource     string `json:"resource"`
	DateFrom     string `json:"dateFrom"`
	DateTo       string `json:"dateTo"`
	SalesPointId string `json:"salesPointId"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Resources         SyncResources      `json:"resources"`
}

type ConnectionResponse struct {
	Status       string `json:"status"`
	SalesPointId string `json:"salesPointId"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{
					Status: models.IntegrationStatusDisconnected,
				},
				Resources: DefaultResources(),
			})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:       conn.Status,
				SalesPointId: conn.SalesPointId,
			},
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Resources:         DecodeResources(conn.SettingsJSON),
		})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.APIKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey is required"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		// Verify the credential before storing it.
		client := NewClient()
		if _, err := client.Tokens().GetValidAccessToken(ctx, req.APIKey); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "kassacloud credential check failed: " + err.Error()})
			return
		}

		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		if conn == nil {
			conn = &models.PosConnection{
				RestaurantId: restaurantId,
				Provider:     models.IntegrationProviderKassa,
				Status:       models.IntegrationStatusConnected,
				APIKey:       req.APIKey,
				SalesPointId: strings.TrimSpace(req.SalesPointId),
				SettingsJSON: EncodeResources(DefaultResources()),
				UpdatedAt:    now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":         models.IntegrationStatusConnected,
				"api_key":        req.APIKey,
				"sales_point_id": strings.TrimSpace(req.SalesPointId),
				"updated_at":     now,
			}
			if len(conn.SettingsJSON) == 0 {
				update["settings_json"] = EncodeResources(DefaultResources())
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":     models.IntegrationStatusDisconnected,
			"api_key":    "",
			"updated_at": time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Evict any cached token minted for the revoked credential.
		if conn.APIKey != "" {
			_ = config.RemoveRedisKey(tokenCacheKey(conn.APIKey))
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)
		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resources := EncodeResources(req.Resources)
		if conn == nil {
			conn = &models.PosConnection{
				RestaurantId: restaurantId,
				Provider:     models.IntegrationProviderKassa,
				Status:       models.IntegrationStatusDisconnected,
				SettingsJSON: resources,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			if err := db.Model(conn).Updates(map[string]interface{}{
				"settings_json": resources,
				"updated_at":    time.Now(),
			}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "kassacloud is not connected"})
			return
		}

		resources := req.Resources
		if isEmptyResources(resources) {
			resources = DecodeResources(conn.SettingsJSON)
		}

		run := models.SyncRun{
			RestaurantId:  restaurantId,
			ConnectionId:  conn.ID,
			Provider:      models.IntegrationProviderKassa,
			Status:        models.SyncRunStatusQueued,
			TriggeredBy:   models.SyncTriggeredManual,
			ResourcesJSON: EncodeResources(resources),
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(c.Request.Context(), run.ID, restaurantId, conn.ID)

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

// SyncNowHandler runs one resource synchronously in the request. Useful for
// first-time imports and debugging; scheduled work goes through TriggerSync.
func SyncNowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req SyncNowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, restaurantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "kassacloud is not connected"})
			return
		}

		salesPointId := strings.TrimSpace(req.SalesPointId)
		if salesPointId == "" {
			salesPointId = conn.SalesPointId
		}

		service := NewService(NewImporter(NewClient(), NewStore(config.GetDB())))
		res := service.Sync(ctx, SyncRequest{
			Resource:     req.Resource,
			RestaurantId: restaurantId,
			DateFrom:     req.DateFrom,
			DateTo:       req.DateTo,
			SalesPointId: salesPointId,
			APIKey:       conn.APIKey,
		})
		if res.Err != nil {
			var vErr *ValidationError
			if errors.As(res.Err, &vErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": res.Err.Error(), "count": res.Count})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		var runs []models.SyncRun
		if err := db.Where("restaurant_id = ? AND provider = ?", restaurantId, models.IntegrationProviderKassa).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		var run models.SyncRun
		if err := db.Where("id = ? AND restaurant_id = ?", id, restaurantId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.SyncError
		if err := db.Where("sync_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		})
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantId, err := resolveRestaurantID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetRestaurantIdInContext(c.Request.Context(), restaurantId)
		db := config.GetDB().WithContext(ctx)

		var run models.SyncRun
		if err := db.Where("id = ? AND restaurant_id = ?", id, restaurantId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.SyncRun{
			RestaurantId:  restaurantId,
			ConnectionId:  run.ConnectionId,
			Provider:      run.Provider,
			Status:        models.SyncRunStatusQueued,
			TriggeredBy:   models.SyncTriggeredRetry,
			ResourcesJSON: run.ResourcesJSON,
			ParentRunId:   &run.ID,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(c.Request.Context(), newRun.ID, restaurantId, run.ConnectionId)

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// ScheduledSyncHandler queues a run for every connected restaurant. Cloud
// Scheduler invokes it on a cron; it is not part of the restaurant-facing API.
func ScheduledSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		queued, err := EnqueueScheduledRuns(c.Request.Context(), config.GetDB(), PublishSyncRun)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queued": queued})
	}
}

// resolveRestaurantID reads the tenant from the X-Restaurant-Id header or the
// restaurant_id query parameter. Caller authentication sits in front of this
// service at the gateway.
func resolveRestaurantID(c *gin.Context) (string, error) {
	restaurantId := strings.TrimSpace(c.GetHeader("X-Restaurant-Id"))
	if restaurantId == "" {
		restaurantId = strings.TrimSpace(c.Query("restaurant_id"))
	}
	if restaurantId == "" {
		return "", errors.New("restaurant_id is required")
	}
	return restaurantId, nil
}

func getConnection(db *gorm.DB, restaurantId string) (*models.PosConnection, error) {
	var conn models.PosConnection
	err := db.Where("restaurant_id = ? AND provider = ?", restaurantId, models.IntegrationProviderKassa).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			ExternalId: errItem.ExternalId,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}

func isEmptyResources(res SyncResources) bool {
	return !res.Categories && !res.Products && !res.Customers && !res.Receipts && !res.Sales && !res.Rooms && !res.Tables && !res.Stock
}
