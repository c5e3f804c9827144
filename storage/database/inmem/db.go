// Package inmemdb implements every repository in memory, for tests & the "inmem" storage mode.
package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
	"github.com/trezcool/bitacora/core/notification"
	"github.com/trezcool/bitacora/core/user"
)

type DB struct {
	txMu sync.Mutex

	mu             sync.RWMutex
	seq            int64
	order          map[string]int64 // {id: insertion seq}
	users          map[string]*user.User
	learners       map[string]*directory.Learner
	instructors    map[string]*directory.Instructor
	administrators map[string]*directory.Administrator
	companies      map[string]*directory.Company
	contracts      map[string]*directory.Contract
	programs       map[string]*directory.Program
	cohorts        map[string]*directory.Cohort
	evidence       map[string]*evidence.Record
	tracks         map[trackKey]evidence.TrackHistory
	notifications  map[string]*notification.Notification
}

type trackKey struct {
	learnerID string
	track     string
}

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{
		order:          make(map[string]int64),
		users:          make(map[string]*user.User),
		learners:       make(map[string]*directory.Learner),
		instructors:    make(map[string]*directory.Instructor),
		administrators: make(map[string]*directory.Administrator),
		companies:      make(map[string]*directory.Company),
		contracts:      make(map[string]*directory.Contract),
		programs:       make(map[string]*directory.Program),
		cohorts:        make(map[string]*directory.Cohort),
		evidence:       make(map[string]*evidence.Record),
		tracks:         make(map[trackKey]evidence.TrackHistory),
		notifications:  make(map[string]*notification.Notification),
	}
}

// RunInTx serializes `fn` with every other transaction. exec is nil; changes are not rolled back on error.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

// newID returns a new primary key; db.mu must be held.
func (db *DB) newID() string {
	id := uuid.New().String()
	db.seq++
	db.order[id] = db.seq
	return id
}

// sortIDs sorts ids by insertion order; db.mu must be held.
func (db *DB) sortIDs(ids []string, newestFirst bool) {
	sort.Slice(ids, func(i, j int) bool {
		if newestFirst {
			return db.order[ids[i]] > db.order[ids[j]]
		}
		return db.order[ids[i]] < db.order[ids[j]]
	})
}
