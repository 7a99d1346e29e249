package core

import "time"

const (
	// minCallDuration is the shortest speed-dial call that earns a reward
	minCallDuration = 5 * time.Minute

	callRewardPoints  = 10
	callRewardMinutes = 10

	// BadgeSpeedDialCaller is granted for the first verified phone call
	BadgeSpeedDialCaller = "speed_dial_caller"

	// Trace accuracy tiers (average deviation in pixels)
	traceExcellentDeviation = 10.0
	traceGoodDeviation      = 30.0
)

// Activity is a completed activity with its kind-specific payload.
// The set of implementations is closed: Exercise, Reading, PhoneCall, ArcadeGame, TraceDrawing.
type Activity interface {
	Kind() ActivityKind
	activity()
}

// Exercise is a set of counted repetitions (push-ups or squats)
type Exercise struct {
	Squats bool // false = push-ups
	Reps   int
}

// Reading is a timed reading session, optionally followed by a comprehension quiz
type Reading struct {
	UserProvided bool // false = content provided by the app
	Minutes      int
	ContentID    *int64
	Title        string
	Category     string // completed category, if the reading finished one
	QuizCorrect  int
	QuizTotal    int // zero when no quiz was taken
}

// PhoneCall is a verified speed-dial call
type PhoneCall struct {
	Duration time.Duration
	Contact  string
}

// ArcadeGame is a finished mini-game; the game reports the points it awarded
type ArcadeGame struct {
	Points int
	Title  string
}

// TraceDrawing is a motor-tracing task scored by average deviation from the path
type TraceDrawing struct {
	AverageDeviation float64 // pixels
}

func (e Exercise) Kind() ActivityKind {
	if e.Squats {
		return KindSquats
	}
	return KindPushUps
}

func (r Reading) Kind() ActivityKind {
	if r.UserProvided {
		return KindReadingUser
	}
	return KindReadingApp
}

func (PhoneCall) Kind() ActivityKind    { return KindSpeedDialCall }
func (ArcadeGame) Kind() ActivityKind   { return KindArcadeGame }
func (TraceDrawing) Kind() ActivityKind { return KindTraceDrawing }

func (Exercise) activity()     {}
func (Reading) activity()      {}
func (PhoneCall) activity()    {}
func (ArcadeGame) activity()   {}
func (TraceDrawing) activity() {}

// PerfectQuiz reports whether a quiz was taken and every answer was correct
func (r Reading) PerfectQuiz() bool {
	return r.QuizTotal > 0 && r.QuizCorrect == r.QuizTotal
}

// Reward is what an activity earns
type Reward struct {
	Points        int
	UnlockMinutes int
	Badge         string // empty when no badge is granted
}

// CalculateReward maps an activity to its reward. It is deterministic and side-effect free.
func CalculateReward(a Activity) (Reward, error) {
	switch act := a.(type) {
	case Exercise:
		return ExerciseReward(act.Reps), nil
	case Reading:
		return ReadingReward(act.Minutes), nil
	case PhoneCall:
		return CallReward(act.Duration), nil
	case ArcadeGame:
		return ArcadeReward(act.Points), nil
	case TraceDrawing:
		return TraceReward(act.AverageDeviation), nil
	default:
		return Reward{}, ErrUnknownActivity
	}
}

// ExerciseReward awards 1 point per rep and 1.5 unlock minutes per rep, truncated
func ExerciseReward(reps int) Reward {
	if reps <= 0 {
		return Reward{}
	}
	return Reward{Points: reps, UnlockMinutes: reps * 15 / 10}
}

// ReadingReward awards 2 points per minute read and unlocks the same number of minutes
func ReadingReward(minutes int) Reward {
	if minutes <= 0 {
		return Reward{}
	}
	return Reward{Points: minutes * 2, UnlockMinutes: minutes}
}

// CallReward awards a fixed reward and a badge for calls of at least five minutes
func CallReward(d time.Duration) Reward {
	if d < minCallDuration {
		return Reward{}
	}
	return Reward{Points: callRewardPoints, UnlockMinutes: callRewardMinutes, Badge: BadgeSpeedDialCaller}
}

// ArcadeReward passes the game's points through and unlocks one minute per point
func ArcadeReward(points int) Reward {
	if points <= 0 {
		return Reward{}
	}
	return Reward{Points: points, UnlockMinutes: points}
}

// TraceReward is tiered by average deviation: <10px → 5/5, <30px → 1/1, otherwise 0/0
func TraceReward(averageDeviation float64) Reward {
	switch {
	case averageDeviation < traceExcellentDeviation:
		return Reward{Points: 5, UnlockMinutes: 5}
	case averageDeviation < traceGoodDeviation:
		return Reward{Points: 1, UnlockMinutes: 1}
	default:
		return Reward{}
	}
}
