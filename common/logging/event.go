package logging

// LogEvent is the structured log key used to signal log events that
// operators and test harnesses match on.
//
// Values should be defined as constants in the respective modules
// that emit these events.
const LogEvent = "log_event"
