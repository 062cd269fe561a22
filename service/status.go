package service

import (
	"fmt"
	"os"
	"path/filepath"

	"forge/builddb"
)

// GetStatus retrieves build status information from the database.
//
// If opts.TargetList is empty, returns overall database statistics.
// Otherwise returns per-target status for each listed target, including
// whether its source tree has drifted from the recorded CRC.
//
// This method handles all the business logic but does not interact with
// the user; the caller formats the result.
func (s *Service) GetStatus(opts StatusOptions) (*StatusResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	result := &StatusResult{
		Targets: make([]TargetStatus, 0),
	}

	// No specific targets requested: overall database statistics only
	if len(opts.TargetList) == 0 {
		stats, err := s.db.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to get database stats: %w", err)
		}
		result.Stats = stats
		result.DatabaseSize = stats.DatabaseSize
		return result, nil
	}

	for _, targetID := range opts.TargetList {
		status, err := s.GetTargetStatus(targetID)
		if err != nil {
			return nil, err
		}
		result.Targets = append(result.Targets, *status)
	}

	return result, nil
}

// GetDatabaseStats returns overall database statistics without
// per-target information.
func (s *Service) GetDatabaseStats() (*builddb.DBStats, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stats, err := s.db.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	return stats, nil
}

// GetTargetStatus returns status for a single target.
func (s *Service) GetTargetStatus(targetID string) (*TargetStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	status := &TargetStatus{
		TargetID: targetID,
	}

	// Latest successful build, if any
	rec, err := s.db.LatestFor(targetID, "")
	if err == nil && rec != nil {
		status.LastBuild = rec
		status.Version = rec.Version
	}

	// Recorded CRC from the last successful build
	if crc, exists, err := s.db.GetCRC(targetID); err == nil && exists {
		status.CRC = crc
	}

	// Staleness: compare the recorded CRC against the tree's current
	// state when the target's source directory is reachable. A missing
	// directory reads as "needs build" only if the target was never
	// built at all.
	srcDir := filepath.Join(s.cfg.TreePath, targetID)
	if _, statErr := os.Stat(srcDir); statErr == nil {
		if current, err := builddb.ComputeTreeCRC(srcDir); err == nil {
			if stale, err := s.db.NeedsBuild(targetID, current); err == nil {
				status.NeedsBuild = stale
			}
		}
	} else if status.LastBuild == nil {
		status.NeedsBuild = true
	}

	return status, nil
}
