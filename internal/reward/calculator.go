// Package reward computes the coin award for one completed learning
// session: a flat focus-time rate, a task/difficulty result rate, and a
// set of independent bonus rules. Calculation never writes; Record turns
// a result into ledger entries atomically.
package reward

import (
	"context"
	"crypto/rand"
	"math"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/metrics"
	"github.com/oakmund/sprout/internal/store"
)

const (
	focusUnitMinutes = 30 // one coin per full unit
	focusMinMinutes  = 5  // below this, focus earns nothing
	maxFocusMinutes  = 24 * 60
	maxResultQty     = 100000
)

// Result is the itemized outcome of one calculation. It is transient —
// the caller turns it into ledger entries via Record.
type Result struct {
	UserID         string      `json:"user_id"`
	TaskID         string      `json:"task_id"`
	DifficultyID   string      `json:"difficulty_id"`
	SessionDate    string      `json:"session_date"`
	FocusMinutes   int         `json:"focus_minutes"`
	ResultQuantity int         `json:"result_quantity"`
	FocusCoins     int64       `json:"focus_coins"`
	ResultCoins    int64       `json:"result_coins"`
	BonusCoins     int64       `json:"bonus_coins"`
	Bonuses        []BonusItem `json:"bonuses"`
}

// BonusItem names one bonus rule's contribution.
type BonusItem struct {
	Name  string `json:"name"`
	Coins int64  `json:"coins"`
}

// Total returns focus + result + bonus coins.
func (r *Result) Total() int64 {
	return r.FocusCoins + r.ResultCoins + r.BonusCoins
}

// Calculator computes rewards against catalog and history data.
type Calculator struct {
	db *store.DB
}

// New creates a Calculator backed by the given store.
func New(db *store.DB) *Calculator {
	return &Calculator{db: db}
}

// Calculate computes the award for a session without writing anything.
// The task and difficulty must exist and be active.
func (c *Calculator) Calculate(ctx context.Context, userID, taskID, difficultyID string, focusMinutes, resultQuantity int, sessionDate time.Time) (*Result, error) {
	if userID == "" {
		return nil, coinerr.Validation("user_id is required")
	}
	if focusMinutes < 0 || focusMinutes > maxFocusMinutes {
		return nil, coinerr.Validation("focus_minutes %d out of range [0, %d]", focusMinutes, maxFocusMinutes)
	}
	if resultQuantity < 0 || resultQuantity > maxResultQty {
		return nil, coinerr.Validation("result_quantity %d out of range [0, %d]", resultQuantity, maxResultQty)
	}

	task, err := c.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, coinerr.Internal("load task", err)
	}
	if task == nil {
		return nil, coinerr.NotFound("task", taskID)
	}
	if !task.Active {
		return nil, coinerr.Validation("task %s is inactive", taskID)
	}

	diff, err := c.db.GetDifficulty(ctx, difficultyID)
	if err != nil {
		return nil, coinerr.Internal("load difficulty", err)
	}
	if diff == nil {
		return nil, coinerr.NotFound("difficulty", difficultyID)
	}
	if !diff.Active {
		return nil, coinerr.Validation("difficulty %s is inactive", difficultyID)
	}

	res := &Result{
		UserID:         userID,
		TaskID:         taskID,
		DifficultyID:   difficultyID,
		SessionDate:    sessionDate.Format(store.DateLayout),
		FocusMinutes:   focusMinutes,
		ResultQuantity: resultQuantity,
		FocusCoins:     focusCoins(focusMinutes),
		ResultCoins:    resultCoins(resultQuantity, task.BaseCoin, diff.Coefficient),
	}

	bonuses, err := c.evaluateBonuses(ctx, userID, task, diff, sessionDate)
	if err != nil {
		return nil, err
	}
	res.Bonuses = bonuses
	for _, b := range bonuses {
		res.BonusCoins += b.Coins
	}

	return res, nil
}

// focusCoins pays one coin per full 30-minute unit, with a 5-minute
// activation floor.
func focusCoins(minutes int) int64 {
	if minutes < focusMinMinutes {
		return 0
	}
	return int64(minutes / focusUnitMinutes)
}

// resultCoins pays floor(quantity * base * coefficient).
func resultCoins(quantity int, baseCoin int64, coefficient float64) int64 {
	return int64(math.Floor(float64(quantity) * float64(baseCoin) * coefficient))
}

// Record turns a Result into persistent state: the session row, one
// earned entry for focus+result, and one bonus entry when bonuses fired,
// all in a single transaction. Returns the session id and the entries.
func (c *Calculator) Record(ctx context.Context, res *Result) (string, []store.Entry, error) {
	sessionID := newSessionID()

	session := &store.Session{
		ID:             sessionID,
		UserID:         res.UserID,
		TaskID:         res.TaskID,
		DifficultyID:   res.DifficultyID,
		SessionDate:    res.SessionDate,
		FocusMinutes:   res.FocusMinutes,
		ResultQuantity: res.ResultQuantity,
		TotalCoins:     res.Total(),
	}

	var ins []store.AppendInput
	if base := res.FocusCoins + res.ResultCoins; base > 0 {
		ins = append(ins, store.AppendInput{
			UserID:      res.UserID,
			Amount:      base,
			ChangeKind:  store.ChangeEarned,
			SourceKind:  "session",
			ReferenceID: sessionID,
			Description: "session reward",
			Metadata: map[string]string{
				"task_id":       res.TaskID,
				"difficulty_id": res.DifficultyID,
			},
		})
	}
	if res.BonusCoins > 0 {
		meta := map[string]string{"task_id": res.TaskID}
		for _, b := range res.Bonuses {
			if b.Coins > 0 {
				meta["bonus_"+b.Name] = strconv.FormatInt(b.Coins, 10)
			}
		}
		ins = append(ins, store.AppendInput{
			UserID:      res.UserID,
			Amount:      res.BonusCoins,
			ChangeKind:  store.ChangeBonus,
			SourceKind:  "session",
			ReferenceID: sessionID,
			Description: "session bonuses",
			Metadata:    meta,
		})
	}

	var entries []store.Entry
	var err error
	if len(ins) == 0 {
		// A zero-coin session still counts toward streaks and daily goals.
		err = c.db.InsertSession(ctx, session)
	} else {
		entries, err = c.db.RecordReward(ctx, session, ins)
	}
	if err != nil {
		return "", nil, err
	}

	for _, e := range entries {
		metrics.EntriesAppended.WithLabelValues(string(e.ChangeKind)).Inc()
		metrics.CoinsAwarded.Add(float64(e.Amount))
	}
	return sessionID, entries, nil
}

func newSessionID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return "sess-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
