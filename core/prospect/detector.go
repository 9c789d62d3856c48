package prospect

import (
	"context"
	"fmt"
	"time"

	"github.com/tmkamba/kanisa/core"
)

// StageThresholds maps a pipeline stage to the number of inactive days tolerated
// before a prospect is flagged as dropped off.
type StageThresholds map[string]int

// Thresholds builds the per-stage drop-off windows from config.
func Thresholds(conf core.DetectorConfig) StageThresholds {
	return StageThresholds{
		StageInvited:    conf.InvitedDays,
		StageAttended:   conf.AttendedDays,
		StageBaptized:   conf.BaptizedDays,
		StageReceivedHG: conf.ReceivedDays,
	}
}

// DetectDropOffs scans for prospects whose last activity predates the per-stage
// threshold and flags them. The scan is idempotent: a prospect with an active
// drop-off is never flagged twice, and the flagging itself is an atomic
// check-and-set so a concurrent stage advance cannot be raced. Failures on one
// prospect are logged and do not abort the scan.
func (svc *Service) DetectDropOffs(ctx context.Context, thresholds StageThresholds, asOf time.Time) ([]DropOff, error) {
	asOf = asOf.UTC()
	now := time.Now().UTC()

	var flagged []DropOff
	for _, stage := range Stages {
		if stage == StageConverted {
			continue
		}
		days, ok := thresholds[stage]
		if !ok || days <= 0 {
			continue
		}
		cutoff := asOf.AddDate(0, 0, -days)

		candidates, err := svc.repo.QueryStalled(ctx, stage, cutoff)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("querying stalled prospects at %s", stage), err)
			continue
		}

		for _, p := range candidates {
			select {
			case <-ctx.Done():
				return flagged, ctx.Err()
			default:
			}

			d := DropOff{
				ProspectID:   p.ID,
				ProspectName: p.Name,
				DropOffDate:  asOf,
				DropOffStage: p.PipelineStage,
				DaysInactive: core.DaysBetween(p.LastActivityDate, asOf),
				Reason:       DropOffNoContact,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			d, won, err := svc.repo.FlagDroppedOff(ctx, p.ID, d)
			if err != nil {
				svc.logger.Error(fmt.Sprintf("flagging prospect %s", p.ID), err)
				continue
			}
			if !won {
				// already flagged, or a concurrent advance recovered it first
				continue
			}
			flagged = append(flagged, d)

			svc.scheduleRecovery(ctx, p, asOf)
		}
	}
	return flagged, nil
}

// scheduleRecovery asks the follow-up scheduler for a recovery task, escalating
// priority by the number of drop-off cycles the prospect has been through.
func (svc *Service) scheduleRecovery(ctx context.Context, p Prospect, asOf time.Time) {
	if svc.scheduler == nil {
		return
	}
	cycles, err := svc.repo.CountDropOffs(ctx, p.ID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("counting drop-off cycles for %s", p.ID), err)
		cycles = 1
	}
	due := asOf.Add(svc.conf.Detector.FollowUpDueIn)
	if err := svc.scheduler.EnsureRecoveryTask(ctx, p.ID, p.Name, p.InvitedBy, cycles, due); err != nil {
		svc.logger.Error(fmt.Sprintf("scheduling recovery task for %s", p.ID), err)
	}
}
