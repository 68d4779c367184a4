package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarSeries_AlignedTo(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	aligned := BarSeries{Bars: []Bar{
		{Timestamp: start},
		{Timestamp: start.Add(5 * time.Minute)},
		{Timestamp: start.Add(10 * time.Minute)},
	}}
	assert.True(t, aligned.AlignedTo(M5))

	// Off-boundary timestamp fails.
	offBoundary := BarSeries{Bars: []Bar{
		{Timestamp: start.Add(2 * time.Minute)},
	}}
	assert.False(t, offBoundary.AlignedTo(M5))

	// Gap between consecutive bars fails (not exactly one width apart).
	gapped := BarSeries{Bars: []Bar{
		{Timestamp: start},
		{Timestamp: start.Add(15 * time.Minute)},
	}}
	assert.False(t, gapped.AlignedTo(M5))

	// Empty and single-bar series are vacuously aligned.
	assert.True(t, BarSeries{}.AlignedTo(M5))
	assert.True(t, BarSeries{Bars: []Bar{{Timestamp: start}}}.AlignedTo(M5))

	// Unknown timeframe is never aligned.
	assert.False(t, aligned.AlignedTo("W1"))
}

func TestMirrorKey_WithAndWithoutMagic(t *testing.T) {
	magic := int32(42)
	assert.Equal(t, "EURUSD#42", MirrorKey("EURUSD", &magic))
	assert.Equal(t, "EURUSD", MirrorKey("EURUSD", nil))
}

func TestPosition_KeyMatchesMirrorKey(t *testing.T) {
	magic := int32(7)
	p := Position{Symbol: "GBPUSD", MagicNumber: &magic}
	assert.Equal(t, MirrorKey("GBPUSD", &magic), p.Key())

	noMagic := Position{Symbol: "GBPUSD"}
	assert.Equal(t, "GBPUSD", noMagic.Key())
}

func TestTradeRecord_Key(t *testing.T) {
	entry := time.Unix(100, 0)
	exit := time.Unix(200, 0)
	t1 := TradeRecord{Symbol: "EURUSD", StrategyName: "sma", EntryTime: entry, ExitTime: exit}
	t2 := TradeRecord{Symbol: "EURUSD", StrategyName: "sma", EntryTime: entry, ExitTime: exit, PnL: 123}
	t3 := TradeRecord{Symbol: "EURUSD", StrategyName: "other", EntryTime: entry, ExitTime: exit}

	assert.Equal(t, t1.Key(), t2.Key(), "dedup key ignores fields outside the 4-tuple")
	assert.NotEqual(t, t1.Key(), t3.Key(), "distinct strategy name yields a distinct key")
}

func TestTimeframe_FinerAndValid(t *testing.T) {
	finer, err := M1.Finer(M5)
	require.NoError(t, err)
	assert.True(t, finer)

	finer, err = H1.Finer(M5)
	require.NoError(t, err)
	assert.False(t, finer)

	_, err = Timeframe("W1").Finer(M5)
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)

	assert.True(t, M15.Valid())
	assert.False(t, Timeframe("bogus").Valid())
}

func TestRiskLimits_Validate(t *testing.T) {
	valid := RiskLimits{InitialBalance: 100}
	assert.NoError(t, valid.Validate())

	zeroBalance := RiskLimits{InitialBalance: 0}
	assert.ErrorIs(t, zeroBalance.Validate(), ErrConfig)

	badGlobal := 150.0
	assert.ErrorIs(t, RiskLimits{InitialBalance: 100, DDGlobal: &badGlobal}.Validate(), ErrConfig)

	badSymbol := RiskLimits{InitialBalance: 100, DDPerSymbol: map[string]float64{"EURUSD": -1}}
	assert.ErrorIs(t, badSymbol.Validate(), ErrConfig)

	badStrategy := RiskLimits{InitialBalance: 100, DDPerStrategy: map[string]float64{"sma": 101}}
	assert.ErrorIs(t, badStrategy.Validate(), ErrConfig)
}

type fakeStrategy struct {
	allowedSymbols []string
}

func (f fakeStrategy) Name() string                                     { return "fake" }
func (f fakeStrategy) Timeframes() []Timeframe                          { return []Timeframe{M1} }
func (f fakeStrategy) AllowedSymbols() []string                         { return f.allowedSymbols }
func (f fakeStrategy) GenerateSignals(map[Timeframe]BarSeries) []Signal { return nil }

func TestEligibleForSymbol(t *testing.T) {
	unrestricted := fakeStrategy{}
	assert.True(t, EligibleForSymbol(unrestricted, "EURUSD"))

	restricted := fakeStrategy{allowedSymbols: []string{"EURUSD"}}
	assert.True(t, EligibleForSymbol(restricted, "EURUSD"))
	assert.False(t, EligibleForSymbol(restricted, "GBPUSD"))
}
