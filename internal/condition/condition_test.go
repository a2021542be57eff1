package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
)

type fakeEnv struct {
	app     map[string]state.Value
	inputs  map[int]gpio.Snapshot
	outputs map[int]gpio.Snapshot
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		app:     make(map[string]state.Value),
		inputs:  make(map[int]gpio.Snapshot),
		outputs: make(map[int]gpio.Snapshot),
	}
}

func (e *fakeEnv) Lookup(key string) (state.Value, bool) {
	v, ok := e.app[key]
	return v, ok
}

func (e *fakeEnv) Pin(id int, output bool) (gpio.Snapshot, bool) {
	if output {
		s, ok := e.outputs[id]
		return s, ok
	}
	s, ok := e.inputs[id]
	return s, ok
}

var t0 = time.Unix(1_700_000_000, 0)

var (
	rearm   = RunningTree{FirstIterationAfterMove: true, CurrentlyActive: true}
	settled = RunningTree{CurrentlyActive: true}
)

// bound binds c and returns it with fresh cells.
func bound(t *testing.T, c Condition) (Condition, *Cells) {
	t.Helper()
	var slots Slots
	b, err := Bind(c, &slots)
	require.NoError(t, err)
	return b, NewCells(slots.Count())
}

func mustEval(t *testing.T, c Condition, env Env, rt RunningTree, cells *Cells, now time.Time) bool {
	t.Helper()
	ok, err := Eval(c, env, rt, cells, now)
	require.NoError(t, err)
	return ok
}

func TestLiteral_PlainIsAlwaysTrue(t *testing.T) {
	c, cells := bound(t, Always())
	env := newFakeEnv()

	assert.True(t, mustEval(t, c, env, rearm, cells, t0))
	for i := 1; i < 5; i++ {
		assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(time.Duration(i)*time.Second)))
	}
}

func TestLiteral_EdgeFiresOncePerRearm(t *testing.T) {
	c, cells := bound(t, Always().OnEdge())
	env := newFakeEnv()

	assert.True(t, mustEval(t, c, env, rearm, cells, t0))
	for i := 1; i <= 10; i++ {
		assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(time.Duration(i)*time.Second)))
	}

	// Re-entry allows exactly one more firing.
	assert.True(t, mustEval(t, c, env, rearm, cells, t0.Add(20*time.Second)))
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(21*time.Second)))
}

func TestLiteral_DelayGatesUntilElapsed(t *testing.T) {
	c, cells := bound(t, Always().After(2*time.Second))
	env := newFakeEnv()

	assert.False(t, mustEval(t, c, env, rearm, cells, t0))
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(1999*time.Millisecond)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(2*time.Second)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(5*time.Second)))

	// Rearm restarts the delay.
	assert.False(t, mustEval(t, c, env, rearm, cells, t0.Add(6*time.Second)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(8*time.Second)))
}

func TestLiteral_DelayWithEdge(t *testing.T) {
	c, cells := bound(t, Always().After(time.Second).OnEdge())
	env := newFakeEnv()

	assert.False(t, mustEval(t, c, env, rearm, cells, t0))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(time.Second)))
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(2*time.Second)))
}

func TestLiteral_Unbound(t *testing.T) {
	_, err := Eval(Always(), newFakeEnv(), rearm, NewCells(0), t0)
	require.Error(t, err)
	assert.True(t, IsTriggerError(err))
}

func TestStateEquals(t *testing.T) {
	env := newFakeEnv()
	c := StateIs("mode", state.String("auto"))

	// Missing key is false, never an error.
	ok, err := Eval(c, env, rearm, nil, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	env.app["mode"] = state.String("manual")
	assert.False(t, mustEval(t, c, env, settled, nil, t0))

	env.app["mode"] = state.String("auto")
	assert.True(t, mustEval(t, c, env, settled, nil, t0))
}

func TestStateEquals_VariantSensitive(t *testing.T) {
	env := newFakeEnv()
	env.app["count"] = state.String("1")

	assert.False(t, mustEval(t, StateIs("count", state.Number(1)), env, settled, nil, t0))
	assert.True(t, mustEval(t, StateIs("count", state.String("1")), env, settled, nil, t0))
}

func TestPinEquals_UnknownPinIsError(t *testing.T) {
	c, cells := bound(t, InputPin(9))
	_, err := Eval(c, newFakeEnv(), rearm, cells, t0)
	require.Error(t, err)

	var te *TriggerError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrCodeUnknownPin, te.Code)
	assert.Equal(t, 9, te.Pin)
}

func TestPinEquals_MatchesState(t *testing.T) {
	env := newFakeEnv()
	env.inputs[4] = gpio.Snapshot{Current: false, LastChange: t0.Add(-time.Hour)}

	high, cells := bound(t, InputPin(4))
	assert.False(t, mustEval(t, high, env, rearm, cells, t0))

	low, lowCells := bound(t, InputPin(4).WhenLow())
	assert.True(t, mustEval(t, low, env, rearm, lowCells, t0))

	env.inputs[4] = gpio.Snapshot{Current: true, Last: false, LastChange: t0}
	assert.True(t, mustEval(t, high, env, settled, cells, t0))
}

func TestPinEquals_OutputPin(t *testing.T) {
	env := newFakeEnv()
	env.outputs[17] = gpio.Snapshot{Current: true, LastChange: t0.Add(-time.Minute)}

	c, cells := bound(t, OutputPin(17))
	assert.True(t, mustEval(t, c, env, rearm, cells, t0))
}

func TestPinEquals_DelayFromLastChange(t *testing.T) {
	env := newFakeEnv()
	env.inputs[4] = gpio.Snapshot{Current: false, LastChange: t0.Add(-time.Hour)}
	c, cells := bound(t, InputPin(4).After(500*time.Millisecond))

	assert.False(t, mustEval(t, c, env, rearm, cells, t0))

	changed := t0.Add(time.Second)
	env.inputs[4] = gpio.Snapshot{Current: true, LastChange: changed}
	assert.False(t, mustEval(t, c, env, settled, cells, changed))
	assert.False(t, mustEval(t, c, env, settled, cells, changed.Add(499*time.Millisecond)))
	assert.True(t, mustEval(t, c, env, settled, cells, changed.Add(500*time.Millisecond)))
}

func TestPinEquals_DelayFromRearm(t *testing.T) {
	env := newFakeEnv()
	// Pin has been active for a long time; the delay counts from rearm.
	env.inputs[4] = gpio.Snapshot{Current: true, LastChange: t0.Add(-time.Hour)}
	c, cells := bound(t, InputPin(4).After(time.Second))

	child := RunningTree{FirstIterationAfterMove: true}
	assert.False(t, mustEval(t, c, env, child, cells, t0))
	assert.False(t, mustEval(t, c, env, RunningTree{}, cells, t0.Add(900*time.Millisecond)))
	assert.True(t, mustEval(t, c, env, RunningTree{}, cells, t0.Add(time.Second)))
}

func TestPinEquals_ActiveNodeKeepsRearmTime(t *testing.T) {
	env := newFakeEnv()
	env.inputs[4] = gpio.Snapshot{Current: true, LastChange: t0.Add(-time.Hour)}
	c, cells := bound(t, InputPin(4).After(time.Second))

	// Evaluated as a child: rearm at t0.
	assert.False(t, mustEval(t, c, env, RunningTree{FirstIterationAfterMove: true}, cells, t0))

	// Same tick the node becomes active (moved down into it): rearm time is kept.
	assert.False(t, mustEval(t, c, env, rearm, cells, t0.Add(400*time.Millisecond)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(time.Second)))

	// Returning from a child recaptures the rearm time.
	back := RunningTree{FirstIterationAfterMove: true, CurrentlyActive: true, MovedInFromBack: true}
	assert.False(t, mustEval(t, c, env, back, cells, t0.Add(5*time.Second)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(6*time.Second)))
}

func TestPinEquals_EdgeResetsWhenFalse(t *testing.T) {
	env := newFakeEnv()
	env.inputs[4] = gpio.Snapshot{Current: true, LastChange: t0}
	c, cells := bound(t, InputPin(4).OnEdge())

	assert.True(t, mustEval(t, c, env, rearm, cells, t0))
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(time.Second)))

	// Released: edge state resets.
	env.inputs[4] = gpio.Snapshot{Current: false, Last: true, LastChange: t0.Add(2 * time.Second)}
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(2*time.Second)))

	// Pressed again: fires again without a rearm.
	env.inputs[4] = gpio.Snapshot{Current: true, Last: false, LastChange: t0.Add(3 * time.Second)}
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(3*time.Second)))
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(4*time.Second)))
}

func TestDirection(t *testing.T) {
	env := newFakeEnv()
	back := RunningTree{MovedInFromBack: true, FirstIterationAfterMove: true, CurrentlyActive: true}

	assert.True(t, mustEval(t, OnReturn(), env, back, nil, t0))
	assert.False(t, mustEval(t, OnReturn(), env, rearm, nil, t0))
	assert.False(t, mustEval(t, OnDescent(), env, back, nil, t0))
	assert.True(t, mustEval(t, OnDescent(), env, rearm, nil, t0))
}

func TestComposition_Identities(t *testing.T) {
	env := newFakeEnv()

	assert.True(t, mustEval(t, All(), env, settled, nil, t0), "empty AND is true")
	assert.False(t, mustEval(t, Any(), env, settled, nil, t0), "empty OR is false")
	assert.False(t, mustEval(t, &Not{}, env, settled, nil, t0), "NOT with no inner is false")

	c, cells := bound(t, Negate(Always()))
	for i := 0; i < 3; i++ {
		assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(time.Duration(i)*time.Second)))
	}

	allTrue, cells := bound(t, All(Always(), Always(), OnDescent()))
	assert.True(t, mustEval(t, allTrue, env, settled, cells, t0))
}

func TestComposition_ShortCircuit(t *testing.T) {
	env := newFakeEnv()

	// The unknown pin would error if evaluated.
	and, cells := bound(t, All(StateIs("missing", state.Bool(true)), InputPin(99)))
	assert.False(t, mustEval(t, and, env, settled, cells, t0))

	or, cells := bound(t, Any(Always(), InputPin(99)))
	assert.True(t, mustEval(t, or, env, settled, cells, t0))

	orErr, cells := bound(t, Any(StateIs("missing", state.Bool(true)), InputPin(99)))
	_, err := Eval(orErr, env, settled, cells, t0)
	assert.True(t, IsTriggerError(err))
}

func TestRearm_ReachesShortCircuitedChildren(t *testing.T) {
	env := newFakeEnv()
	env.app["armed"] = state.Bool(false)

	c, cells := bound(t, All(StateIs("armed", state.Bool(true)), Always().After(5*time.Second)))
	assert.False(t, mustEval(t, c, env, rearm, cells, t0))
	cell := cells.At(0)
	assert.True(t, cell.Armed)
	assert.True(t, cell.ArmedAt.Equal(t0))

	env.app["armed"] = state.Bool(true)
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(time.Second)))
	assert.True(t, mustEval(t, c, env, settled, cells, t0.Add(5*time.Second)))

	// A later entry restarts the delay even if the literal is not reached.
	env.app["armed"] = state.Bool(false)
	assert.False(t, mustEval(t, c, env, rearm, cells, t0.Add(time.Minute)))
	env.app["armed"] = state.Bool(true)
	assert.False(t, mustEval(t, c, env, settled, cells, t0.Add(time.Minute+time.Second)))
}

func TestRearm_PinKeepsEntryTimeWhileActive(t *testing.T) {
	c, cells := bound(t, Any(Always(), InputPin(4).After(time.Second)))

	Rearm(c, rearm, cells, t0)
	assert.True(t, cells.At(1).ArmedAt.Equal(t0))

	// Still active and not back from a child: the pin keeps its time.
	Rearm(c, rearm, cells, t0.Add(time.Minute))
	assert.True(t, cells.At(0).ArmedAt.Equal(t0.Add(time.Minute)))
	assert.True(t, cells.At(1).ArmedAt.Equal(t0))

	back := RunningTree{MovedInFromBack: true, FirstIterationAfterMove: true, CurrentlyActive: true}
	Rearm(c, back, cells, t0.Add(2*time.Minute))
	assert.True(t, cells.At(1).ArmedAt.Equal(t0.Add(2*time.Minute)))
}

func TestEval_Deterministic(t *testing.T) {
	env := newFakeEnv()
	env.app["mode"] = state.String("on")
	env.inputs[4] = gpio.Snapshot{Current: true, LastChange: t0.Add(-time.Minute)}

	c, cells := bound(t, All(StateIs("mode", state.String("on")), InputPin(4), Negate(OnReturn())))
	first := mustEval(t, c, env, settled, cells, t0)
	second := mustEval(t, c, env, settled, cells, t0)
	assert.Equal(t, first, second)
	assert.True(t, first)
}

func TestEval_NilIsFalse(t *testing.T) {
	ok, err := Eval(nil, newFakeEnv(), rearm, nil, t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBind_CopiesSoSharedPredicatesDoNotShareCells(t *testing.T) {
	shared := Always().OnEdge()
	var slots Slots
	a, err := Bind(shared, &slots)
	require.NoError(t, err)
	b, err := Bind(shared, &slots)
	require.NoError(t, err)
	require.Equal(t, 2, slots.Count())

	cells := NewCells(slots.Count())
	env := newFakeEnv()
	assert.True(t, mustEval(t, a, env, rearm, cells, t0))
	assert.True(t, mustEval(t, b, env, settled, cells, t0), "second instance has its own cell")
	assert.False(t, mustEval(t, a, env, settled, cells, t0))
}

func TestBind_RejectsNilChildAndValue(t *testing.T) {
	var slots Slots
	_, err := Bind(All(Always(), nil), &slots)
	assert.Error(t, err)

	_, err = Bind(&StateEquals{Key: "x"}, &slots)
	assert.Error(t, err)
}

func TestRequirements(t *testing.T) {
	c := All(
		StateIs("mode", state.String("auto")),
		Any(InputPin(4), Negate(OutputPin(17))),
		Always(),
		OnReturn(),
	)
	reqs := Requirements(c)
	require.Len(t, reqs, 3)

	assert.Equal(t, Requirement{Kind: RequireState, Key: "mode", Default: state.String("")}, reqs[0])
	assert.Equal(t, Requirement{Kind: RequirePin, Pin: 4}, reqs[1])
	assert.Equal(t, Requirement{Kind: RequirePin, Pin: 17, Output: true}, reqs[2])

	assert.Empty(t, Requirements(nil))
	assert.Empty(t, Requirements(&Not{}))
}

func TestRunningTree_ForChild(t *testing.T) {
	rt := RunningTree{MovedInFromBack: true, FirstIterationAfterMove: true, CurrentlyActive: true}
	child := rt.ForChild()
	assert.False(t, child.MovedInFromBack)
	assert.True(t, child.FirstIterationAfterMove)
	assert.False(t, child.CurrentlyActive)

	assert.Equal(t, RunningTree{FirstIterationAfterMove: true, CurrentlyActive: true}, NewRunningTree())
}

func TestDescribe(t *testing.T) {
	c := All(
		Always().After(time.Second).OnEdge(),
		StateIs("mode", state.String("auto")),
		StateIs("count", state.Number(3)),
		Any(InputPin(4).WhenLow(), OnReturn()),
		Negate(nil),
	)
	assert.Equal(t,
		`all(always after 1s on-edge, state(mode)=="auto", state(count)==3, any(pin(in:4)==false, on-return), not(always))`,
		Describe(c))
	assert.Equal(t, "never", Describe(nil))
}
