// Package pipeline implements the two-period OSCAR run.
//
// A run infers its label from the parameter file name, assembles the
// parameter, forcing and initial-state datasets, calls the model over the
// historical period, hands the state at the handoff year over to the
// scenario period, and writes both outputs. Each preparation step is an
// exported function so that it can be checked on its own; Runner strings
// them together.
package pipeline
