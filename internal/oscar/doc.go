// Package oscar defines the contract with the external OSCAR model and the
// exec backend that reaches it through a local bridge command.
//
// The model itself is opaque. A backend stages the initial state, the
// parameters and the forcing as netCDF files in a fresh work directory,
// invokes the bridge with the file paths, the number of sub-steps and the
// variables to keep, and reads the result back. The docker backend in
// internal/docker speaks the same contract from inside a container.
package oscar
