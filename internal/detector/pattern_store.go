package detector

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/grow"
)

// MemoryPatternStore keeps patterns in a map, for tests and ephemeral runs.
type MemoryPatternStore struct {
	mu       sync.RWMutex
	patterns map[string]CultivationPattern
}

func NewMemoryPatternStore() *MemoryPatternStore {
	return &MemoryPatternStore{patterns: map[string]CultivationPattern{}}
}

func (s *MemoryPatternStore) Get(_ context.Context, key string) (*CultivationPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[key]
	if !ok {
		return nil, nil
	}
	clone := p
	clone.Baselines = make(map[grow.ParameterKey]ParameterBaseline, len(p.Baselines))
	for k, v := range p.Baselines {
		clone.Baselines[k] = v
	}
	return &clone, nil
}

func (s *MemoryPatternStore) Put(_ context.Context, pattern *CultivationPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[pattern.Key] = *pattern
	return nil
}

func (s *MemoryPatternStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, key)
	return nil
}

func (s *MemoryPatternStore) List(_ context.Context) ([]CultivationPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CultivationPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// patternRecord is the persisted row shape. Baselines are serialized
// as JSON since their set of parameters can evolve.
type patternRecord struct {
	Key         string `gorm:"primaryKey;column:key"`
	SeedStrain  string `gorm:"column:seed_strain;index"`
	Phase       string `gorm:"column:phase"`
	Baselines   string `gorm:"column:baselines;type:text"`
	SampleSize  int    `gorm:"column:sample_size"`
	SuccessRate float64
	UpdatedAt   time.Time
}

func (patternRecord) TableName() string {
	return "cultivation_patterns"
}

// GormPatternStore persists patterns in the relational store.
type GormPatternStore struct {
	db *gorm.DB
}

func NewGormPatternStore(db *gorm.DB) (*GormPatternStore, error) {
	if err := db.AutoMigrate(&patternRecord{}); err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate_patterns").
			Build()
	}
	return &GormPatternStore{db: db}, nil
}

func (s *GormPatternStore) Get(ctx context.Context, key string) (*CultivationPattern, error) {
	var rec patternRecord
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("pattern_key", key).
			Build()
	}
	return recordToPattern(&rec)
}

func (s *GormPatternStore) Put(ctx context.Context, pattern *CultivationPattern) error {
	baselines, err := json.Marshal(pattern.Baselines)
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("pattern_key", pattern.Key).
			Build()
	}
	rec := patternRecord{
		Key:         pattern.Key,
		SeedStrain:  pattern.SeedStrain,
		Phase:       string(pattern.Phase),
		Baselines:   string(baselines),
		SampleSize:  pattern.SampleSize,
		SuccessRate: pattern.SuccessRate,
		UpdatedAt:   pattern.UpdatedAt,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("pattern_key", pattern.Key).
			Build()
	}
	return nil
}

func (s *GormPatternStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Delete(&patternRecord{}, "key = ?", key).Error
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("pattern_key", key).
			Build()
	}
	return nil
}

func (s *GormPatternStore) List(ctx context.Context) ([]CultivationPattern, error) {
	var recs []patternRecord
	err := s.db.WithContext(ctx).Order("key asc").Find(&recs).Error
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDatabase).
			Context("operation", "list_patterns").
			Build()
	}
	out := make([]CultivationPattern, 0, len(recs))
	for i := range recs {
		p, err := recordToPattern(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func recordToPattern(rec *patternRecord) (*CultivationPattern, error) {
	pattern := CultivationPattern{
		Key:         rec.Key,
		SeedStrain:  rec.SeedStrain,
		Phase:       Phase(rec.Phase),
		Baselines:   map[grow.ParameterKey]ParameterBaseline{},
		SampleSize:  rec.SampleSize,
		SuccessRate: rec.SuccessRate,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.Baselines != "" {
		if err := json.Unmarshal([]byte(rec.Baselines), &pattern.Baselines); err != nil {
			return nil, errors.New(err).
				Component("detector").
				Category(errors.CategoryDatabase).
				Context("pattern_key", rec.Key).
				Build()
		}
	}
	return &pattern, nil
}
