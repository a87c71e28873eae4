package telegram

import (
	"context"
	"fmt"
)

type handlerFunc func(b *Bot, ctx context.Context, in *Inbound)

type transition struct {
	state  SessionState
	intent Intent
}

// transitions is the whole conversation: (current state, intent) → handler.
// IntentText is the per-state fallback; every state must have one.
var transitions = map[transition]handlerFunc{
	{StateIdle, IntentStart}:          (*Bot).handleStart,
	{StateIdle, IntentMenu}:           (*Bot).handleShowMenu,
	{StateIdle, IntentBack}:           (*Bot).handleShowMenu,
	{StateIdle, IntentSkip}:           (*Bot).handleShowMenu,
	{StateIdle, IntentGoToMenu}:       (*Bot).handleShowMenu,
	{StateIdle, IntentExportUsers}:    (*Bot).handleExportUsers,
	{StateIdle, IntentReferralLookup}: (*Bot).handleRequestReferralTarget,
	{StateIdle, IntentBroadcast}:      (*Bot).handleRequestBroadcastText,
	{StateIdle, IntentSetAdmin}:       (*Bot).handleSetAdmin,
	{StateIdle, IntentSetBalance}:     (*Bot).handleSetBalance,
	{StateIdle, IntentGroup}:          (*Bot).handleGroup,
	{StateIdle, IntentReviews}:        (*Bot).handleReviews,
	{StateIdle, IntentAbout}:          (*Bot).handleAbout,
	{StateIdle, IntentCatalog}:        (*Bot).handleCatalog,
	{StateIdle, IntentJob}:            (*Bot).handleJob,
	{StateIdle, IntentManager}:        (*Bot).handleManager,
	{StateIdle, IntentExamType}:       (*Bot).handleExamType,
	{StateIdle, IntentCity}:           (*Bot).handleCity,
	{StateIdle, IntentSubject}:        (*Bot).handleSubject,
	{StateIdle, IntentUnknownCommand}: (*Bot).handleUnknown,
	{StateIdle, IntentText}:           (*Bot).handleUnknown,

	{StateAwaitingPromo, IntentStart}: (*Bot).handleStart,
	{StateAwaitingPromo, IntentSkip}:  (*Bot).handleShowMenu,
	{StateAwaitingPromo, IntentMenu}:  (*Bot).handleShowMenu,
	{StateAwaitingPromo, IntentText}:  (*Bot).handlePromoInput,

	{StateAwaitingPromoRetryChoice, IntentStart}:    (*Bot).handleStart,
	{StateAwaitingPromoRetryChoice, IntentTryAgain}: (*Bot).handleRetryPromo,
	{StateAwaitingPromoRetryChoice, IntentGoToMenu}: (*Bot).handleShowMenu,
	{StateAwaitingPromoRetryChoice, IntentSkip}:     (*Bot).handleShowMenu,
	{StateAwaitingPromoRetryChoice, IntentMenu}:     (*Bot).handleShowMenu,
	{StateAwaitingPromoRetryChoice, IntentText}:     (*Bot).handleRetryChoiceReminder,

	{StateAwaitingReferralTarget, IntentStart}: (*Bot).handleStart,
	{StateAwaitingReferralTarget, IntentMenu}:  (*Bot).handleShowMenu,
	{StateAwaitingReferralTarget, IntentBack}:  (*Bot).handleShowMenu,
	{StateAwaitingReferralTarget, IntentText}:  (*Bot).handleReferralTarget,

	{StateAwaitingBroadcastText, IntentStart}: (*Bot).handleStart,
	{StateAwaitingBroadcastText, IntentMenu}:  (*Bot).handleShowMenu,
	{StateAwaitingBroadcastText, IntentBack}:  (*Bot).handleShowMenu,
	{StateAwaitingBroadcastText, IntentText}:  (*Bot).handleBroadcastText,
}

// statelessIntents never depend on the chat's flow: they abandon it and run
// as if the chat were idle, so a slash command is never taken for a promo
// code or broadcast text.
var statelessIntents = []Intent{IntentSetAdmin, IntentSetBalance, IntentUnknownCommand}

func isStateless(intent Intent) bool {
	for _, c := range statelessIntents {
		if c == intent {
			return true
		}
	}
	return false
}

func init() {
	if err := validateTransitions(transitions); err != nil {
		panic(err)
	}
}

// validateTransitions makes sure every state can handle any inbound message.
func validateTransitions(table map[transition]handlerFunc) error {
	for _, state := range allStates {
		for _, intent := range []Intent{IntentText, IntentStart} {
			if table[transition{state, intent}] == nil {
				return fmt.Errorf("no handler for state %s, intent %d", state, intent)
			}
		}
	}
	for _, intent := range statelessIntents {
		if table[transition{StateIdle, intent}] == nil {
			return fmt.Errorf("no idle handler for command intent %d", intent)
		}
	}
	for t := range table {
		known := false
		for _, s := range allStates {
			if s == t.state {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("transition for unknown state %d", t.state)
		}
	}
	return nil
}

// route picks the handler for the chat's state. Command intents end the
// current flow and use the idle handler; other intents a state does not name
// are treated as free text for that state.
func route(state SessionState, intent Intent) handlerFunc {
	if isStateless(intent) {
		h := transitions[transition{StateIdle, intent}]
		if state == StateIdle {
			return h
		}
		return func(b *Bot, ctx context.Context, in *Inbound) {
			b.state.Clear(in.ChatID)
			h(b, ctx, in)
		}
	}
	if h, ok := transitions[transition{state, intent}]; ok {
		return h
	}
	return transitions[transition{state, IntentText}]
}
