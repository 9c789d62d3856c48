// Package inmemdb is a map-backed implementation of the domain repositories,
// used by handler tests and local development without Postgres.
package inmemdb

import (
	"sync"

	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/prospect"
	"github.com/tmkamba/kanisa/core/weekly"
)

type (
	DB struct {
		prospects   *prospectTable
		tasks       *taskTable
		conversions *conversionTable
		goals       *goalTable
		reports     *reportTable
	}

	// prospectTable also owns the stage-entry and drop-off rows so that
	// flagging a prospect and creating its DropOff happen under one lock.
	prospectTable struct {
		sync.RWMutex
		prospects map[string]*prospect.Prospect
		entries   map[string]*prospect.StageEntry
		dropOffs  map[string]*prospect.DropOff
	}

	taskTable struct {
		sync.RWMutex
		tasks map[string]*followup.Task
	}

	conversionTable struct {
		sync.RWMutex
		conversions map[string]*conversion.Conversion
	}

	goalTable struct {
		sync.RWMutex
		goals map[string]*goal.Goal
	}

	reportTable struct {
		sync.RWMutex
		reports map[string]*weekly.Report
	}
)

func Open() (*DB, error) {
	db := &DB{
		prospects: &prospectTable{
			prospects: make(map[string]*prospect.Prospect),
			entries:   make(map[string]*prospect.StageEntry),
			dropOffs:  make(map[string]*prospect.DropOff),
		},
		tasks:       &taskTable{tasks: make(map[string]*followup.Task)},
		conversions: &conversionTable{conversions: make(map[string]*conversion.Conversion)},
		goals:       &goalTable{goals: make(map[string]*goal.Goal)},
		reports:     &reportTable{reports: make(map[string]*weekly.Report)},
	}
	return db, nil
}

func matchSearch(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if containsFold(h, needle) {
			return true
		}
	}
	return false
}
