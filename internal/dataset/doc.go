// Package dataset provides the labelled multi-dimensional arrays that
// oscar-runner moves between files and the external model.
//
// A Dataset is an ordered set of named Variables sharing named dimensions.
// Each dimension has a Coord that carries its length and, optionally, its
// labels (numbers such as years, or strings such as scenario names).
// Variable data is stored in dense row-major Arrays.
//
// The operations mirror what a run needs: merging parameter sets,
// partitioning by a dimension, dropping labels, label-based range
// selection, point selection with dimension drop, and broadcasting zero
// arrays over coordinates.
package dataset
