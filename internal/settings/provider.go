package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
)

// DBProvider reads and writes the settings table.
type DBProvider struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBProvider(conn *gorm.DB) (*DBProvider, error) {
	if conn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings db required")
	}
	return &DBProvider{db: conn, now: time.Now}, nil
}

func (p *DBProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	var rows []models.Setting
	if err := p.db.WithContext(ctx).Where("key IN ?", KnownKeys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	snap := &Snapshot{
		Modes:           map[string]enums.IntegrationMode{},
		RevisionCursors: map[string]int64{},
		Readiness:       ReadinessPolicy{MaxUnlinkedPercent: DefaultMaxUnlinkedPercent},
		TakenAt:         p.now().UTC(),
	}
	for _, row := range rows {
		if err := decodeInto(snap, row.Key, row.Value); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func decodeInto(snap *Snapshot, key string, raw datatypes.JSON) error {
	if len(raw) == 0 {
		return nil
	}
	var target any
	switch key {
	case KeyPOS:
		target = &snap.POS
	case KeyLoyalty:
		target = &snap.Loyalty
	case KeyModes:
		target = &snap.Modes
	case KeyReadinessPolicy:
		target = &snap.Readiness
	case KeyRevisionCursors:
		target = &snap.RevisionCursors
	default:
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("setting %s is malformed", key))
	}
	return nil
}

func (p *DBProvider) SaveRevisionCursors(ctx context.Context, cursors map[string]int64) error {
	if len(cursors) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current := map[string]int64{}
		var row models.Setting
		err := tx.Where("key = ?", KeyRevisionCursors).Take(&row).Error
		switch {
		case err == nil:
			if len(row.Value) > 0 {
				if err := json.Unmarshal(row.Value, &current); err != nil {
					return fmt.Errorf("decode revision cursors: %w", err)
				}
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return upsert(tx, KeyRevisionCursors, MergeCursors(current, cursors))
	})
}

func (p *DBProvider) Set(ctx context.Context, key string, value any) error {
	if !slices.Contains(KnownKeys, key) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown setting %q", key)
	}
	if key == KeyRevisionCursors {
		cursors, ok := value.(map[string]int64)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "revision cursors must be a map of organization to revision")
		}
		return p.SaveRevisionCursors(ctx, cursors)
	}
	return upsert(p.db.WithContext(ctx), key, value)
}

func upsert(tx *gorm.DB, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("setting %s is not serializable", key))
	}
	row := models.Setting{Key: key, Value: datatypes.JSON(data)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// StaticProvider holds settings in memory. Snapshots are deep copies.
type StaticProvider struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewStaticProvider(snap Snapshot) *StaticProvider {
	return &StaticProvider{snap: snap.Clone()}
}

func (p *StaticProvider) Snapshot(context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.snap.Clone()
	out.TakenAt = time.Now().UTC()
	return out, nil
}

func (p *StaticProvider) SaveRevisionCursors(_ context.Context, cursors map[string]int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.RevisionCursors = MergeCursors(p.snap.RevisionCursors, cursors)
	return nil
}

// Set accepts the typed value of a known key.
func (p *StaticProvider) Set(_ context.Context, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := value.(type) {
	case POSSettings:
		p.snap.POS = v
	case LoyaltySettings:
		p.snap.Loyalty = v
	case map[string]enums.IntegrationMode:
		p.snap.Modes = v
	case ReadinessPolicy:
		p.snap.Readiness = v
	case map[string]int64:
		p.snap.RevisionCursors = MergeCursors(p.snap.RevisionCursors, v)
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported value for setting %q", key)
	}
	return nil
}
