package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"numball/store"
)

func testTimings() Timings {
	return Timings{
		SecretPhase:     200 * time.Millisecond,
		TurnStartDelay:  5 * time.Millisecond,
		TimeWarning:     5 * time.Second,
		DisconnectGrace: 30 * time.Millisecond,
		RematchWindow:   time.Second,
		SnapshotTTL:     time.Minute,
	}
}

type gameFixture struct {
	svc      *GameService
	notifier *fakeNotifier
	users    *fakeUserStore
	records  *fakeGameStore
	session  *store.MemoryStore
}

func newGameFixture(t *testing.T) *gameFixture {
	t.Helper()
	users := newFakeUserStore(
		testUser("p1", 1200, 10),
		testUser("p2", 1200, 10),
	)
	notifier := newFakeNotifier()
	records := newFakeGameStore()
	session := store.NewMemoryStore()
	svc := NewGameService(users, records, session, notifier, testTimings())
	return &gameFixture{svc: svc, notifier: notifier, users: users, records: records, session: session}
}

func (f *gameFixture) players() []PlayerInfo {
	return []PlayerInfo{
		{UserID: "p1", Username: "user-p1", Rating: 1200, Tier: "SILVER_1", Level: 10},
		{UserID: "p2", Username: "user-p2", Rating: 1200, Tier: "SILVER_1", Level: 10},
	}
}

// startPlaying drives a fresh game through the secret phase and returns the
// mover and waiter once the first turn is announced.
func (f *gameFixture) startPlaying(t *testing.T, settings RoomSettings) (gameID, mover, waiter string) {
	t.Helper()
	ctx := context.Background()

	gameID, err := f.svc.StartGame(ctx, "ROOM01", f.players(), settings.Mode, settings)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := f.svc.SetSecret(ctx, "p1", "1234"); err != nil {
		t.Fatalf("SetSecret p1: %v", err)
	}
	if err := f.svc.SetSecret(ctx, "p2", "5678"); err != nil {
		t.Fatalf("SetSecret p2: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return f.notifier.received("p1", "game:yourTurn") || f.notifier.received("p2", "game:yourTurn")
	})
	if f.notifier.received("p1", "game:yourTurn") {
		return gameID, "p1", "p2"
	}
	return gameID, "p2", "p1"
}

func classic4(ranked bool) RoomSettings {
	return RoomSettings{
		Mode:         "CLASSIC_4",
		TimeLimit:    60,
		MaxAttempts:  15,
		HintsAllowed: true,
		IsRanked:     ranked,
	}
}

func TestStartGameRejectsWrongPlayerCount(t *testing.T) {
	f := newGameFixture(t)
	_, err := f.svc.StartGame(context.Background(), "R", f.players()[:1], "CLASSIC_4", classic4(true))
	if err != ErrNotEnoughPlayers {
		t.Errorf("err = %v, want ErrNotEnoughPlayers", err)
	}
}

func TestSecretPhaseFlow(t *testing.T) {
	f := newGameFixture(t)
	ctx := context.Background()

	if _, err := f.svc.StartGame(ctx, "R", f.players(), "CLASSIC_4", classic4(true)); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if !f.notifier.received("p1", "game:started") || !f.notifier.received("p2", "game:started") {
		t.Fatal("players never told the game started")
	}
	if !f.notifier.received("p1", "game:setSecretPhase") {
		t.Fatal("secret phase never announced")
	}

	var verr *ValidationError
	if err := f.svc.SetSecret(ctx, "p1", "123"); !errors.As(err, &verr) {
		t.Errorf("short secret err = %v, want ValidationError", err)
	}
	if err := f.svc.SetSecret(ctx, "p1", "1123"); !errors.As(err, &verr) {
		t.Errorf("duplicate secret err = %v, want ValidationError", err)
	}

	if err := f.svc.SetSecret(ctx, "p1", "1234"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if f.notifier.received("p1", "game:allSecretsSet") {
		t.Error("allSecretsSet fired with one secret missing")
	}
	if err := f.svc.SetSecret(ctx, "p2", "5678"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if !f.notifier.received("p1", "game:allSecretsSet") {
		t.Error("allSecretsSet never fired")
	}
}

func TestSecretPhaseTimeoutGeneratesSecrets(t *testing.T) {
	f := newGameFixture(t)
	ctx := context.Background()

	if _, err := f.svc.StartGame(ctx, "R", f.players(), "CLASSIC_4", classic4(true)); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	// Nobody sets a secret; the phase deadline fills them in.
	waitFor(t, time.Second, func() bool {
		return f.notifier.received("p1", "game:yourTurn") || f.notifier.received("p2", "game:yourTurn")
	})
	if !f.notifier.received("p1", "game:secretSet") || !f.notifier.received("p2", "game:secretSet") {
		t.Error("generated secrets never confirmed")
	}

	if err := f.svc.SetSecret(ctx, "p1", "1234"); err != ErrSecretPhaseOver {
		t.Errorf("late SetSecret err = %v, want ErrSecretPhaseOver", err)
	}
}

func TestTurnEnforcement(t *testing.T) {
	f := newGameFixture(t)
	_, _, waiter := f.startPlaying(t, classic4(true))

	if _, err := f.svc.MakeGuess(context.Background(), waiter, "1234"); err != ErrNotYourTurn {
		t.Errorf("off-turn guess err = %v, want ErrNotYourTurn", err)
	}
}

func TestWinByCorrectGuess(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, classic4(true))
	ctx := context.Background()

	// The mover guesses the opponent's secret outright.
	target := "5678"
	if mover == "p2" {
		target = "1234"
	}
	outcome, err := f.svc.MakeGuess(ctx, mover, target)
	if err != nil {
		t.Fatalf("MakeGuess: %v", err)
	}
	if !outcome.Win || outcome.Strikes != 4 {
		t.Fatalf("outcome = %+v, want 4-strike win", outcome)
	}

	waitFor(t, time.Second, func() bool { return f.notifier.received(mover, "game:ended") })

	guessed, _ := f.notifier.lastPayload(mover, "game:guessResult").(map[string]interface{})
	if guessed["remainingAttempts"] != 14 {
		t.Errorf("remainingAttempts = %v, want 14", guessed["remainingAttempts"])
	}

	winner, _ := f.notifier.lastPayload(mover, "game:ended").(map[string]interface{})
	if winner["result"] != "WIN" || winner["reason"] != ReasonCorrectGuess {
		t.Errorf("winner payload = %v", winner)
	}
	if winner["myAttempts"] != 1 || winner["opponentAttempts"] != 0 {
		t.Errorf("attempt counts = %v/%v, want 1/0", winner["myAttempts"], winner["opponentAttempts"])
	}
	rating, _ := winner["rating"].(map[string]interface{})
	if _, ok := rating["tierBefore"]; !ok {
		t.Error("rating payload lost the previous tier")
	}
	if _, ok := rating["tierChanged"].(bool); !ok {
		t.Error("rating payload lost the tier-changed flag")
	}
	loser, _ := f.notifier.lastPayload(waiter, "game:ended").(map[string]interface{})
	if loser["result"] != "LOSE" {
		t.Errorf("loser payload = %v", loser)
	}
	if loser["myAttempts"] != 0 || loser["opponentAttempts"] != 1 {
		t.Errorf("loser attempt counts = %v/%v, want 0/1", loser["myAttempts"], loser["opponentAttempts"])
	}

	// Ranked settlement moved ratings in opposite directions.
	w, _ := f.users.GetUser(ctx, mover)
	l, _ := f.users.GetUser(ctx, waiter)
	if w.Rating <= 1200 {
		t.Errorf("winner rating = %d, want > 1200", w.Rating)
	}
	if l.Rating >= 1200 {
		t.Errorf("loser rating = %d, want < 1200", l.Rating)
	}
	if w.GamesWon != 1 || l.GamesLost != 1 {
		t.Errorf("stats: winner won=%d loser lost=%d", w.GamesWon, l.GamesLost)
	}

	if _, in := f.svc.GameOfUser(mover); in {
		t.Error("finished game still holds the players")
	}
}

func TestDrawNeedsBothCapsSpent(t *testing.T) {
	f := newGameFixture(t)
	settings := classic4(true)
	settings.MaxAttempts = 1
	_, mover, waiter := f.startPlaying(t, settings)
	ctx := context.Background()

	wrong := map[string]string{"p1": "8765", "p2": "4321"}

	if _, err := f.svc.MakeGuess(ctx, mover, wrong[mover]); err != nil {
		t.Fatalf("first guess: %v", err)
	}
	// One exhausted cap is not a draw; the other player still gets a turn.
	if f.notifier.received(mover, "game:ended") {
		t.Fatal("game ended after a single exhausted cap")
	}

	waitFor(t, time.Second, func() bool {
		return f.notifier.eventCount(waiter, "game:yourTurn") > 0
	})
	if _, err := f.svc.MakeGuess(ctx, waiter, wrong[waiter]); err != nil {
		t.Fatalf("second guess: %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.notifier.received(mover, "game:ended") })
	payload, _ := f.notifier.lastPayload(mover, "game:ended").(map[string]interface{})
	if payload["result"] != "DRAW" || payload["reason"] != ReasonMaxAttempts {
		t.Errorf("payload = %v, want draw by exhausted attempts", payload)
	}

	u, _ := f.users.GetUser(ctx, mover)
	if u.GamesDraw != 1 {
		t.Errorf("draws = %d, want 1", u.GamesDraw)
	}
}

func TestTurnTimeoutForfeitsMover(t *testing.T) {
	f := newGameFixture(t)
	settings := classic4(true)
	settings.TimeLimit = 1
	_, mover, waiter := f.startPlaying(t, settings)

	waitFor(t, 3*time.Second, func() bool { return f.notifier.received(mover, "game:ended") })

	if !f.notifier.received(mover, "game:timeout") {
		t.Error("timeout never announced")
	}
	payload, _ := f.notifier.lastPayload(mover, "game:ended").(map[string]interface{})
	if payload["result"] != "LOSE" || payload["reason"] != ReasonTimeout {
		t.Errorf("mover payload = %v, want timeout loss", payload)
	}
	other, _ := f.notifier.lastPayload(waiter, "game:ended").(map[string]interface{})
	if other["result"] != "WIN" {
		t.Errorf("waiter payload = %v, want win", other)
	}
}

func TestUnlimitedTimeLimitArmsNoTimers(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, RoomSettings{Mode: "MARATHON", HintsAllowed: true})
	ctx := context.Background()

	// A zero time limit means unlimited thinking time; nothing may expire.
	time.Sleep(100 * time.Millisecond)
	if f.notifier.received(mover, "game:timeout") {
		t.Fatal("unlimited-time turn timed out")
	}
	if f.notifier.received(mover, "game:ended") {
		t.Fatal("unlimited-time game ended on its own")
	}

	wrong := map[string]string{"p1": "8765", "p2": "4321"}
	if _, err := f.svc.MakeGuess(ctx, mover, wrong[mover]); err != nil {
		t.Fatalf("MakeGuess after the wait: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return f.notifier.eventCount(waiter, "game:yourTurn") > 0
	})
	if f.notifier.received(mover, "game:ended") {
		t.Error("game ended while both players still have turns")
	}
}

func TestSurrenderForfeits(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, classic4(true))
	ctx := context.Background()

	if err := f.svc.Surrender(ctx, waiter); err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.notifier.received(waiter, "game:ended") })

	payload, _ := f.notifier.lastPayload(waiter, "game:ended").(map[string]interface{})
	if payload["result"] != "LOSE" || payload["reason"] != ReasonForfeit {
		t.Errorf("payload = %v, want forfeit loss", payload)
	}
	winner, _ := f.notifier.lastPayload(mover, "game:ended").(map[string]interface{})
	if winner["result"] != "WIN" {
		t.Errorf("winner payload = %v", winner)
	}
}

func TestHintCostsCoins(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, classic4(false))
	ctx := context.Background()

	if _, err := f.svc.UseHint(ctx, waiter, 1); err != ErrNotYourTurn {
		t.Errorf("off-turn hint err = %v, want ErrNotYourTurn", err)
	}

	hint, err := f.svc.UseHint(ctx, mover, 1)
	if err != nil {
		t.Fatalf("UseHint: %v", err)
	}
	if hint.Cost != 50 {
		t.Errorf("level 1 hint cost = %d, want 50", hint.Cost)
	}
	u, _ := f.users.GetUser(ctx, mover)
	if u.Coins != 450 {
		t.Errorf("coins = %d, want 450", u.Coins)
	}

	f.svc.UseHint(ctx, mover, 1)
	f.svc.UseHint(ctx, mover, 2)
	if _, err := f.svc.UseHint(ctx, mover, 1); err != ErrHintLimitReached {
		t.Errorf("fourth hint err = %v, want ErrHintLimitReached", err)
	}
}

func TestHintLevelIsCallerChosen(t *testing.T) {
	f := newGameFixture(t)
	_, mover, _ := f.startPlaying(t, classic4(false))
	ctx := context.Background()

	for _, bad := range []int{0, 4, -1} {
		if _, err := f.svc.UseHint(ctx, mover, bad); err != ErrInvalidHintLevel {
			t.Errorf("level %d err = %v, want ErrInvalidHintLevel", bad, err)
		}
	}

	// Level 3 may be bought first; nothing forces the cheap hint to come
	// before the expensive one.
	hint, err := f.svc.UseHint(ctx, mover, 3)
	if err != nil {
		t.Fatalf("UseHint level 3: %v", err)
	}
	if hint.Cost != 200 {
		t.Errorf("level 3 hint cost = %d, want 200", hint.Cost)
	}
	u, _ := f.users.GetUser(ctx, mover)
	if u.Coins != 300 {
		t.Errorf("coins = %d, want 300", u.Coins)
	}

	// The same level may be repeated; the cap counts uses, not levels.
	if hint, err = f.svc.UseHint(ctx, mover, 3); err != nil || hint.Cost != 200 {
		t.Errorf("repeated level 3 = (%+v, %v), want another 200-coin hint", hint, err)
	}
	if hint, err = f.svc.UseHint(ctx, mover, 1); err != nil || hint.Cost != 50 {
		t.Errorf("level 1 after level 3 = (%+v, %v), want a 50-coin hint", hint, err)
	}
}

func TestItemsRejected(t *testing.T) {
	f := newGameFixture(t)
	_, mover, _ := f.startPlaying(t, classic4(false))

	if err := f.svc.UseItem(context.Background(), mover, "shield"); err != ErrItemsNotAvailable {
		t.Errorf("UseItem err = %v, want ErrItemsNotAvailable", err)
	}
}

func TestDisconnectGraceForfeit(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, classic4(true))
	ctx := context.Background()

	f.svc.HandleDisconnect(ctx, waiter)
	if !f.notifier.received(mover, "game:playerDisconnected") {
		t.Fatal("opponent never told about the disconnect")
	}

	waitFor(t, time.Second, func() bool { return f.notifier.received(mover, "game:ended") })
	payload, _ := f.notifier.lastPayload(mover, "game:ended").(map[string]interface{})
	if payload["result"] != "WIN" || payload["reason"] != ReasonDisconnect {
		t.Errorf("payload = %v, want disconnect win", payload)
	}
}

func TestReconnectCancelsGrace(t *testing.T) {
	f := newGameFixture(t)
	_, mover, waiter := f.startPlaying(t, classic4(true))
	ctx := context.Background()

	f.svc.HandleDisconnect(ctx, waiter)
	f.svc.HandleReconnect(ctx, waiter)

	if !f.notifier.received(waiter, "game:state") {
		t.Error("reconnecting player never got a state replay")
	}

	// Let the old grace timer fire; it must be a no-op.
	time.Sleep(60 * time.Millisecond)
	if f.notifier.received(mover, "game:ended") {
		t.Error("stale grace timer ended the game after a reconnect")
	}
}

func TestRematchHandshake(t *testing.T) {
	f := newGameFixture(t)
	gameID, mover, waiter := f.startPlaying(t, classic4(false))
	ctx := context.Background()

	target := "5678"
	if mover == "p2" {
		target = "1234"
	}
	if _, err := f.svc.MakeGuess(ctx, mover, target); err != nil {
		t.Fatalf("MakeGuess: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.notifier.received(mover, "game:ended") })

	if err := f.svc.RequestRematch(ctx, mover, gameID); err != nil {
		t.Fatalf("RequestRematch: %v", err)
	}
	if !f.notifier.received(waiter, "game:rematchRequested") {
		t.Fatal("opponent never saw the offer")
	}

	startedBefore := f.notifier.eventCount(mover, "game:started")
	if err := f.svc.RequestRematch(ctx, waiter, gameID); err != nil {
		t.Fatalf("accepting RequestRematch: %v", err)
	}
	if !f.notifier.received(mover, "game:rematchAccepted") {
		t.Error("acceptance never announced")
	}
	if f.notifier.eventCount(mover, "game:started") != startedBefore+1 {
		t.Error("rematch never started a new game")
	}
}

func TestRematchDecline(t *testing.T) {
	f := newGameFixture(t)
	gameID, mover, waiter := f.startPlaying(t, classic4(false))
	ctx := context.Background()

	if err := f.svc.Surrender(ctx, waiter); err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.notifier.received(mover, "game:ended") })

	if err := f.svc.RequestRematch(ctx, mover, gameID); err != nil {
		t.Fatalf("RequestRematch: %v", err)
	}
	if err := f.svc.DeclineRematch(ctx, waiter, gameID); err != nil {
		t.Fatalf("DeclineRematch: %v", err)
	}
	if !f.notifier.received(mover, "game:rematchDeclined") {
		t.Error("requester never told about the decline")
	}
}
