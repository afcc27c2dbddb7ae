// Package scheduler spreads LLM requests across a matrix of API-key/model
// combinations. Each combination owns an independent quota state (sliding
// request and token windows, daily counter, cooldown) and the scheduler picks
// the least-used available pair per attempt, cooling pairs down on failure
// with a duration that depends on the failure class.
package scheduler
