package report

import "time"

// WeeklyTallyRow summarizes one cluster/group's activity within an ISO week.
type WeeklyTallyRow struct {
	Cluster         string `json:"cluster"`
	EvangelismGroup string `json:"evangelism_group,omitempty"`
	Year            int    `json:"year"`
	WeekNumber      int    `json:"week_number"`
	GatheringType   string `json:"gathering_type"`
	MembersPresent  int    `json:"members_present"`
	VisitorsPresent int    `json:"visitors_present"`
	NewProspects    int    `json:"new_prospects"`
	Conversions     int    `json:"conversions"`
}

// MonthlyStatisticsRow counts prospects entering each stage for the first time
// within a month, per cluster. Re-entries after drop-off recovery do not double
// count.
type MonthlyStatisticsRow struct {
	Cluster    string     `json:"cluster"`
	Year       int        `json:"year"`
	Month      time.Month `json:"month"`
	Invited    int        `json:"invited"`
	Attended   int        `json:"attended"`
	Baptized   int        `json:"baptized"`
	ReceivedHG int        `json:"received_hg"`
	Converted  int        `json:"converted"`
}

// PeopleTallyRow is one month of the org-wide funnel breakdown.
type PeopleTallyRow struct {
	Month      time.Month `json:"month"`
	Invited    int        `json:"invited"`
	Attended   int        `json:"attended"`
	Students   int        `json:"students"`
	Baptized   int        `json:"baptized"`
	ReceivedHG int        `json:"received_hg"`
}

// GoalProgressRow is the derived Each1Reach1 progress view for one cluster/year.
type GoalProgressRow struct {
	Cluster             string  `json:"cluster"`
	ClusterName         string  `json:"cluster_name,omitempty"`
	Year                int     `json:"year"`
	TargetConversions   int     `json:"target_conversions"`
	AchievedConversions int     `json:"achieved_conversions"`
	ProgressPercentage  float64 `json:"progress_percentage"`
	Status              string  `json:"status"`
}
