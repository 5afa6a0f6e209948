package scheduler

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
)

// JobValueLogGC reclaims Badger value log space
const JobValueLogGC = "badger-gc"

// GarbageCollector is the storage hook used by the GC job
type GarbageCollector interface {
	RunGarbageCollection(discardRatio float64) (int, error)
}

// RegisterMaintenanceJobs adds the storage housekeeping jobs. An empty
// schedule leaves maintenance off.
func RegisterMaintenanceJobs(s *Service, gc GarbageCollector, config common.MaintenanceConfig, logger arbor.ILogger) error {
	if config.GCSchedule == "" {
		logger.Info().Msg("Value log GC disabled (no schedule)")
		return nil
	}

	ratio := config.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	return s.RegisterJob(JobValueLogGC, config.GCSchedule, "Reclaim Badger value log space", func() error {
		rewrites, err := gc.RunGarbageCollection(ratio)
		if err != nil {
			return fmt.Errorf("value log gc failed: %w", err)
		}
		logger.Debug().Int("rewrites", rewrites).Float64("discard_ratio", ratio).Msg("Value log GC finished")
		return nil
	})
}
