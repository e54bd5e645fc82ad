package api

// Event is an event emitted after a message was processed or an item was
// dispatched. Exactly one of the fields is set.
type Event struct {
	StateMachineUpdated    *StateMachineUpdatedEvent    `json:"state_machine_updated,omitempty"`
	ChallengePeriodStarted *ChallengePeriodStartedEvent `json:"challenge_period_started,omitempty"`
	Request                *RequestEvent                `json:"request,omitempty"`
	Response               *ResponseEvent               `json:"response,omitempty"`
}

// StateMachineUpdatedEvent is emitted when the latest height of a state
// machine advanced.
type StateMachineUpdatedEvent struct {
	StateMachineID StateMachineID `json:"state_machine_id"`
	LatestHeight   uint64         `json:"latest_height"`
}

// ChallengePeriodStartedEvent is emitted when a consensus update starts the
// challenge period of the updated heights.
type ChallengePeriodStartedEvent struct {
	ConsensusClientID ConsensusClientID    `json:"consensus_client_id"`
	StateMachines     []StateMachineUpdate `json:"state_machines"`
}

// RequestEvent is emitted when an outgoing request is dispatched.
type RequestEvent struct {
	DestChain   StateMachine `json:"dest_chain"`
	SourceChain StateMachine `json:"source_chain"`
	Nonce       uint64       `json:"nonce"`
}

// ResponseEvent is emitted when an outgoing response is dispatched.
type ResponseEvent struct {
	DestChain   StateMachine `json:"dest_chain"`
	SourceChain StateMachine `json:"source_chain"`
	Nonce       uint64       `json:"nonce"`
}

// EventsFromResult derives the events of a processed message.
func EventsFromResult(res *MessageResult) []*Event {
	if res == nil || res.ConsensusUpdated == nil {
		return nil
	}

	upd := res.ConsensusUpdated
	events := make([]*Event, 0, len(upd.StateMachines)+1)
	for _, sm := range upd.StateMachines {
		events = append(events, &Event{
			StateMachineUpdated: &StateMachineUpdatedEvent{
				StateMachineID: sm.ID,
				LatestHeight:   sm.NewHeight,
			},
		})
	}
	if len(upd.StateMachines) > 0 {
		events = append(events, &Event{
			ChallengePeriodStarted: &ChallengePeriodStartedEvent{
				ConsensusClientID: upd.ConsensusClientID,
				StateMachines:     upd.StateMachines,
			},
		})
	}
	return events
}
