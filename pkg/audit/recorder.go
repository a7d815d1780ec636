package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sneakly/catalog/pkg/common/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Entry is one immutable audit record. The pipeline appends, never updates or
// deletes.
type Entry struct {
	ID        string         `json:"id" gorm:"primaryKey;column:id"`
	Action    string         `json:"action" gorm:"column:action"`
	Entity    string         `json:"entity" gorm:"column:entity"`
	EntityID  string         `json:"entity_id" gorm:"column:entity_id"`
	Severity  string         `json:"severity" gorm:"column:severity"`
	Details   datatypes.JSON `json:"details,omitempty" gorm:"column:details"`
	Actor     string         `json:"actor" gorm:"column:actor"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "audit_log_entries"
}

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) AutoMigrate() error {
	return r.db.AutoMigrate(&Entry{})
}

// Record appends one entry. A write failure never fails the triggering
// operation; catalog consistency does not wait on audit availability.
func (r *Recorder) Record(ctx context.Context, action, entity, entityID, severity, actor string, details map[string]interface{}) {
	payload, _ := json.Marshal(details)
	entry := &Entry{
		ID:        uuid.New().String(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Severity:  severity,
		Details:   datatypes.JSON(payload),
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"action":    action,
			"entity":    entity,
			"entity_id": entityID,
		}).Warn("audit write failed, continuing")
	}
}

func (r *Recorder) List(ctx context.Context, entity string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if entity != "" {
		query = query.Where("entity = ?", entity)
	}
	var rows []Entry
	err := query.Find(&rows).Error
	return rows, err
}
