package workflow

import (
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/models"
	"github.com/sirupsen/logrus"
)

// RunTokenCleanupSweep prunes expired refresh tokens. This is the only
// background work in the system; it never touches container rows.
func RunTokenCleanupSweep(logger *logrus.Logger) (int64, error) {
	db := config.GetDB()
	if db == nil {
		return 0, nil
	}
	removed, err := models.DeleteExpiredRefreshTokens(db)
	if err != nil {
		config.LogError(logger, "tokenCleanup.go", "RunTokenCleanupSweep", "DeleteExpiredRefreshTokens", nil, err)
		return 0, err
	}
	return removed, nil
}

// StartTokenCleanupSweep runs the sweep on an interval until stop is closed.
func StartTokenCleanupSweep(logger *logrus.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = RunTokenCleanupSweep(logger)
			case <-stop:
				return
			}
		}
	}()
}
