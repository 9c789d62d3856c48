// Package report is the aggregation engine: read-only, deterministic rollups of
// the funnel stores into the tally and statistics views the dashboards consume.
// A report is a best-effort summary, not a transactional artifact: malformed
// records are logged and excluded rather than failing the whole computation.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/prospect"
	"github.com/tmkamba/kanisa/core/weekly"
)

type (
	ProspectStore interface {
		QueryProspects(ctx context.Context, filter *prospect.QueryFilter, ordering []core.DBOrdering) ([]prospect.Prospect, error)
		QueryStageEntriesBetween(ctx context.Context, from, to time.Time) ([]prospect.StageEntry, error)
	}

	ConversionStore interface {
		QueryConversions(ctx context.Context, filter *conversion.QueryFilter, ordering []core.DBOrdering) ([]conversion.Conversion, error)
	}

	WeeklyStore interface {
		QueryReports(ctx context.Context, filter *weekly.QueryFilter, ordering []core.DBOrdering) ([]weekly.Report, error)
	}

	GoalStore interface {
		GetGoalByClusterYear(ctx context.Context, cluster string, year int) (goal.Goal, error)
	}

	Service struct {
		prospects   ProspectStore
		conversions ConversionStore
		reports     WeeklyStore
		goals       GoalStore
		logger      core.Logger
	}
)

func NewService(prospects ProspectStore, conversions ConversionStore, reports WeeklyStore, goals GoalStore, logger core.Logger) *Service {
	return &Service{
		prospects:   prospects,
		conversions: conversions,
		reports:     reports,
		goals:       goals,
		logger:      logger,
	}
}

// ISOWeekRange returns the [start, end) bounds of an ISO week, midnight UTC.
func ISOWeekRange(year, week int) (time.Time, time.Time) {
	// Jan 4 is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, 1-weekday)
	start := monday.AddDate(0, 0, (week-1)*7)
	return start, start.AddDate(0, 0, 7)
}

// WeeklyTally rolls the week's gathering reports, new prospects and conversions
// up into one row per cluster/group. Gathering type is MIXED when reports for
// the same group disagree, UNKNOWN when a report carries no cluster.
func (svc *Service) WeeklyTally(ctx context.Context, cluster string, year, week int) ([]WeeklyTallyRow, error) {
	reports, err := svc.reports.QueryReports(ctx, &weekly.QueryFilter{Cluster: cluster, Year: year, WeekNumber: week}, nil)
	if err != nil {
		return nil, err
	}

	type key struct{ cluster, group string }
	rows := make(map[key]*WeeklyTallyRow)
	row := func(k key) *WeeklyTallyRow {
		if r, ok := rows[k]; ok {
			return r
		}
		r := &WeeklyTallyRow{
			Cluster:         k.cluster,
			EvangelismGroup: k.group,
			Year:            year,
			WeekNumber:      week,
		}
		rows[k] = r
		return r
	}

	for _, rep := range reports {
		k := key{rep.Cluster, rep.EvangelismGroup}
		r := row(k)
		r.MembersPresent += rep.MembersPresent
		r.VisitorsPresent += rep.VisitorsPresent
		switch {
		case rep.Cluster == "":
			r.GatheringType = weekly.GatheringUnknown
		case r.GatheringType == "":
			r.GatheringType = rep.GatheringType
		case r.GatheringType != rep.GatheringType:
			r.GatheringType = weekly.GatheringMixed
		}
	}

	start, end := ISOWeekRange(year, week)

	// new prospects this week
	prospects, err := svc.prospects.QueryProspects(ctx, &prospect.QueryFilter{Cluster: cluster}, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range prospects {
		if p.FirstContactDate.Before(start) || !p.FirstContactDate.Before(end) {
			continue
		}
		row(key{p.InviterCluster, p.EvangelismGroup}).NewProspects++
	}

	// conversions this week
	convs, err := svc.conversions.QueryConversions(ctx, &conversion.QueryFilter{Cluster: cluster, Year: year}, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.ConversionDate.Before(start) || !c.ConversionDate.Before(end) {
			continue
		}
		row(key{c.Cluster, c.EvangelismGroup}).Conversions++
	}

	out := make([]WeeklyTallyRow, 0, len(rows))
	for _, r := range rows {
		if r.GatheringType == "" {
			r.GatheringType = weekly.GatheringUnknown
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cluster != out[j].Cluster {
			return out[i].Cluster < out[j].Cluster
		}
		return out[i].EvangelismGroup < out[j].EvangelismGroup
	})
	return out, nil
}

// MonthlyStatistics counts, per cluster, the prospects entering each stage for
// the first time within the month. A prospect re-entering a stage after
// drop-off recovery counts once, on its first entry.
func (svc *Service) MonthlyStatistics(ctx context.Context, cluster string, year int, month time.Month) ([]MonthlyStatisticsRow, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	firsts, clusters, err := svc.firstStageEntries(ctx, cluster, monthEnd)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*MonthlyStatisticsRow)
	for k, at := range firsts {
		if at.Before(monthStart) || !at.Before(monthEnd) {
			continue
		}
		cl := clusters[k.prospectID]
		r, ok := rows[cl]
		if !ok {
			r = &MonthlyStatisticsRow{Cluster: cl, Year: year, Month: month}
			rows[cl] = r
		}
		bumpStageCount(r, k.stage)
	}

	out := make([]MonthlyStatisticsRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out, nil
}

// PeopleTally is the org-wide monthly funnel breakdown for a year, derived from
// the union of all clusters' first-time stage entries.
func (svc *Service) PeopleTally(ctx context.Context, year int) ([]PeopleTallyRow, error) {
	yearEnd := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	firsts, _, err := svc.firstStageEntries(ctx, "", yearEnd)
	if err != nil {
		return nil, err
	}

	// lesson enrollment per prospect, for the Students column
	inLessons := make(map[string]bool)
	prospects, err := svc.prospects.QueryProspects(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range prospects {
		inLessons[p.ID] = p.IsAttendingCluster && !p.HasFinishedLessons
	}

	out := make([]PeopleTallyRow, 12)
	for i := range out {
		out[i].Month = time.Month(i + 1)
	}
	for k, at := range firsts {
		if at.Year() != year {
			continue
		}
		r := &out[int(at.Month())-1]
		switch k.stage {
		case prospect.StageInvited:
			r.Invited++
		case prospect.StageAttended:
			r.Attended++
			if inLessons[k.prospectID] {
				r.Students++
			}
		case prospect.StageBaptized:
			r.Baptized++
		case prospect.StageReceivedHG:
			r.ReceivedHG++
		}
	}
	return out, nil
}

// GoalProgress returns the derived Each1Reach1 progress for one cluster/year.
func (svc *Service) GoalProgress(ctx context.Context, cluster string, year int) (GoalProgressRow, error) {
	g, err := svc.goals.GetGoalByClusterYear(ctx, cluster, year)
	if err != nil {
		return GoalProgressRow{}, err
	}

	convs, err := svc.conversions.QueryConversions(ctx, &conversion.QueryFilter{Cluster: cluster, Year: year}, nil)
	if err != nil {
		return GoalProgressRow{}, err
	}
	g.Recompute(len(convs))

	return GoalProgressRow{
		Cluster:             g.Cluster,
		ClusterName:         g.ClusterName,
		Year:                g.Year,
		TargetConversions:   g.TargetConversions,
		AchievedConversions: g.AchievedConversions,
		ProgressPercentage:  g.ProgressPercentage,
		Status:              g.Status,
	}, nil
}

type entryKey struct {
	prospectID string
	stage      string
}

// firstStageEntries returns each prospect's earliest entry date per stage, up to
// `until`, plus a prospect→cluster index. Entries with an unknown stage or no
// prospect reference are logged and skipped.
func (svc *Service) firstStageEntries(ctx context.Context, cluster string, until time.Time) (map[entryKey]time.Time, map[string]string, error) {
	var filter *prospect.QueryFilter
	if cluster != "" {
		filter = &prospect.QueryFilter{Cluster: cluster}
	}
	prospects, err := svc.prospects.QueryProspects(ctx, filter, nil)
	if err != nil {
		return nil, nil, err
	}
	clusters := make(map[string]string, len(prospects))
	for _, p := range prospects {
		clusters[p.ID] = p.InviterCluster
	}

	entries, err := svc.prospects.QueryStageEntriesBetween(ctx, time.Time{}, until)
	if err != nil {
		return nil, nil, err
	}

	firsts := make(map[entryKey]time.Time)
	for _, e := range entries {
		if e.ProspectID == "" || prospect.StageRank(e.ToStage) < 0 {
			svc.logger.Warn(fmt.Sprintf("skipping malformed stage entry %s", e.ID))
			continue
		}
		if _, ok := clusters[e.ProspectID]; !ok {
			// prospect outside the requested cluster (or deleted)
			continue
		}
		k := entryKey{e.ProspectID, e.ToStage}
		if at, ok := firsts[k]; !ok || e.ActivityDate.Before(at) {
			firsts[k] = e.ActivityDate
		}
	}
	return firsts, clusters, nil
}

func bumpStageCount(r *MonthlyStatisticsRow, stage string) {
	switch stage {
	case prospect.StageInvited:
		r.Invited++
	case prospect.StageAttended:
		r.Attended++
	case prospect.StageBaptized:
		r.Baptized++
	case prospect.StageReceivedHG:
		r.ReceivedHG++
	case prospect.StageConverted:
		r.Converted++
	}
}
